package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"scout/internal/research"
	"scout/internal/store"
	"scout/internal/telemetry"
)

const maxQueryLen = 2000

// JobStore is what the handlers need from persistence.
type JobStore interface {
	research.JobStore
	GetReport(ctx context.Context, jobID string) (research.ReportArtifact, error)
}

// JobsHandler owns the research job endpoints.
type JobsHandler struct {
	Store     JobStore
	Events    research.EventSink
	Engine    *research.Engine
	Logger    *log.Logger
	Telemetry *telemetry.Telemetry
}

// Register mounts the handlers on /api/research.
func (h *JobsHandler) Register(g *echo.Group) {
	g.POST("", h.create)
	g.GET("/:id", h.get)
	g.GET("/:id/report", h.report)
	g.GET("/:id/events", h.events)
}

func (h *JobsHandler) create(c echo.Context) error {
	var body struct {
		Query string `json:"query"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	query := strings.TrimSpace(body.Query)
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	if len(query) > maxQueryLen {
		return echo.NewHTTPError(http.StatusBadRequest, "query too long")
	}

	job := research.NewJob(uuid.NewString(), query)
	if err := h.Store.UpsertJob(c.Request().Context(), job); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create job")
	}
	if h.Telemetry != nil {
		h.Telemetry.JobsStarted.Inc()
	}

	// The engine owns the whole-job timeout; the request context ends with
	// this response, so the run gets a fresh background context.
	go func(job research.Job) {
		if _, err := h.Engine.Execute(context.Background(), job); err != nil {
			h.Logger.Printf("job %s executor error: %v", job.ID, err)
		}
	}(job)

	return c.JSON(http.StatusAccepted, map[string]string{"job_id": job.ID})
}

func (h *JobsHandler) get(c echo.Context) error {
	job, err := h.Store.GetJob(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "job not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load job")
	}
	return c.JSON(http.StatusOK, job)
}

func (h *JobsHandler) report(c echo.Context) error {
	id := c.Param("id")
	art, err := h.Store.GetReport(c.Request().Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		// Distinguish "no such job" from "still running".
		if _, jerr := h.Store.GetJob(c.Request().Context(), id); errors.Is(jerr, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "job not found")
		}
		return echo.NewHTTPError(http.StatusNotFound, "report not ready")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load report")
	}
	return c.JSON(http.StatusOK, art)
}

func (h *JobsHandler) events(c echo.Context) error {
	evs, err := h.Events.List(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load events")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"events": evs})
}
