package research

import (
	"fmt"
	"strings"
)

// Error kinds recorded on jobs. Every entry in Job.Errors carries one.
const (
	KindClassificationDegraded = "classification_degraded"
	KindStructureValidation    = "structure_validation_failed"
	KindCellFillDegraded       = "cell_fill_degraded"
	KindRetrievalFailed        = "retrieval_failed"
	KindGuardrailExceeded      = "guardrail_exceeded"
	KindTimeout                = "timeout"
	KindGenerationFailed       = "generation_failed"
)

// ErrExceeded is returned when a job surpasses a guardrail limit.
type ErrExceeded struct {
	Kind  string
	Used  int
	Limit int
}

func (e ErrExceeded) Error() string {
	return fmt.Sprintf("guardrail %s exceeded: used=%d limit=%d", e.Kind, e.Used, e.Limit)
}

// ErrStructureInvalid carries the validation problems of a skeleton that
// was rejected after all retries.
type ErrStructureInvalid struct {
	Problems []string
}

func (e ErrStructureInvalid) Error() string {
	return "invalid table structure: " + strings.Join(e.Problems, "; ")
}

func nodeErr(node NodeKind, kind, format string, args ...interface{}) JobError {
	return JobError{Node: string(node), Kind: kind, Message: fmt.Sprintf(format, args...)}
}
