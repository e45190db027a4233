// Package api contains the HTTP handlers for the docforge service
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"docforge/internal/alerting"
	"docforge/internal/metrics"
	"docforge/internal/realtime"
	"docforge/internal/services"
	"docforge/pkg/models"
)

// Server holds the dependencies for the API server.
type Server struct {
	Orchestrator *services.Orchestrator
	Realtime     *realtime.Manager
	Metrics      *metrics.Collector
	Alerts       *alerting.System
	Logger       services.Logger

	callbackLimiter *rate.Limiter
}

// NewServer creates a new Server. callbackRate/callbackBurst bound the
// agent-runtime progress callback endpoint.
func NewServer(orch *services.Orchestrator, rt *realtime.Manager, coll *metrics.Collector, alerts *alerting.System, logger services.Logger, callbackRate float64, callbackBurst int) *Server {
	if callbackRate <= 0 {
		callbackRate = 100
	}
	if callbackBurst <= 0 {
		callbackBurst = int(callbackRate) * 2
	}
	return &Server{
		Orchestrator:    orch,
		Realtime:        rt,
		Metrics:         coll,
		Alerts:          alerts,
		Logger:          logger,
		callbackLimiter: rate.NewLimiter(rate.Limit(callbackRate), callbackBurst),
	}
}

// writeError maps a domain error to the stable error envelope. Unexpected
// errors are logged with context and surfaced as a generic 500.
func (s *Server) writeError(c echo.Context, err error) error {
	status := statusFor(err)
	code := models.ErrorCode(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.Logger.Error("internal error", "path", c.Path(), "error", err)
		message = "internal server error"
	}
	return c.JSON(status, models.ErrorResponse{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrCheckpointNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrInvalidState),
		errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrAlreadyRunning),
		errors.Is(err, models.ErrNoRecoverableCheckpoint):
		return http.StatusConflict
	case errors.Is(err, models.ErrDuplicateStep),
		errors.Is(err, models.ErrSupersededStep),
		errors.Is(err, models.ErrRecoveryInProgress):
		return http.StatusConflict
	case errors.Is(err, models.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HealthStatus represents the basic health check response
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
}

// HandleHealth returns basic liveness status (always 200 OK)
// (GET /healthz)
func (s *Server) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthStatus{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Service:   "docforge",
		Version:   "1.0.0",
	})
}
