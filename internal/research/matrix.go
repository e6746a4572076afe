package research

import (
	"fmt"
	"sort"
	"strings"
)

// Matrix is a comparison table keyed dimension -> entity -> nullable cell.
// The key surface is frozen at construction: Set rejects unknown keys, and
// the matrix is rectangular by construction (every dimension holds a cell,
// possibly null, for every entity).
type Matrix struct {
	entities   []string
	dimensions []string
	cells      map[string]map[string]*string
}

// NewMatrix builds an all-null matrix over the given key surface.
func NewMatrix(dimensions, entities []string) *Matrix {
	m := &Matrix{
		entities:   append([]string(nil), entities...),
		dimensions: append([]string(nil), dimensions...),
		cells:      make(map[string]map[string]*string, len(dimensions)),
	}
	for _, d := range m.dimensions {
		row := make(map[string]*string, len(m.entities))
		for _, e := range m.entities {
			row[e] = nil
		}
		m.cells[d] = row
	}
	return m
}

// Entities returns the frozen entity list in construction order.
func (m *Matrix) Entities() []string { return append([]string(nil), m.entities...) }

// Dimensions returns the frozen dimension list in construction order.
func (m *Matrix) Dimensions() []string { return append([]string(nil), m.dimensions...) }

// Set writes one cell. Keys outside the frozen surface are an error.
func (m *Matrix) Set(dimension, entity, value string) error {
	row, ok := m.cells[dimension]
	if !ok {
		return fmt.Errorf("unknown dimension %q", dimension)
	}
	if _, ok := row[entity]; !ok {
		return fmt.Errorf("unknown entity %q", entity)
	}
	v := value
	row[entity] = &v
	return nil
}

// Cell returns the value of one cell and whether it is non-null.
func (m *Matrix) Cell(dimension, entity string) (string, bool) {
	if v, ok := m.cells[dimension][entity]; ok && v != nil {
		return *v, true
	}
	return "", false
}

// Rectangular reports whether every dimension holds exactly one cell slot
// per entity. Holds by construction; exists so callers can assert it.
func (m *Matrix) Rectangular() bool {
	for _, d := range m.dimensions {
		row, ok := m.cells[d]
		if !ok || len(row) != len(m.entities) {
			return false
		}
		for _, e := range m.entities {
			if _, ok := row[e]; !ok {
				return false
			}
		}
	}
	return true
}

// NullCells counts cells that hold no value.
func (m *Matrix) NullCells() int {
	n := 0
	for _, d := range m.dimensions {
		for _, e := range m.entities {
			if m.cells[d][e] == nil {
				n++
			}
		}
	}
	return n
}

// Table returns a deep copy of the cells, suitable for embedding verbatim
// as the comparison_table JSON value.
func (m *Matrix) Table() map[string]map[string]*string {
	out := make(map[string]map[string]*string, len(m.dimensions))
	for _, d := range m.dimensions {
		row := make(map[string]*string, len(m.entities))
		for _, e := range m.entities {
			if v := m.cells[d][e]; v != nil {
				c := *v
				row[e] = &c
			} else {
				row[e] = nil
			}
		}
		out[d] = row
	}
	return out
}

// Markdown renders the matrix as a pipe table, entities as columns and
// dimensions as rows. Null cells render as a dash.
func (m *Matrix) Markdown() string {
	var b strings.Builder
	b.WriteString("| |")
	for _, e := range m.entities {
		b.WriteString(" " + e + " |")
	}
	b.WriteString("\n|---|")
	for range m.entities {
		b.WriteString("---|")
	}
	b.WriteString("\n")
	for _, d := range m.dimensions {
		b.WriteString("| " + d + " |")
		for _, e := range m.entities {
			if v, ok := m.Cell(d, e); ok {
				b.WriteString(" " + v + " |")
			} else {
				b.WriteString(" - |")
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// TruncateCell cuts a cell value to at most maxRunes runes, always on a
// rune boundary. The same input always yields the same output.
func TruncateCell(s string, maxRunes int) string {
	s = strings.TrimSpace(s)
	if maxRunes <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes])
}

// sortedKeys is shared by deterministic renderers.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
