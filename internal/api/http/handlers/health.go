package handlers

import (
	"context"
	"net/http"
	"time"

	"tokentable/internal/logger"
	"tokentable/internal/metrics"
	"tokentable/internal/service"
	"tokentable/pkg/httputil"
)

type StreamConfig struct {
	Heartbeat time.Duration
	Buffer    int
}

type Handler struct {
	Log       logger.Logger
	Table     *service.TableService
	Metrics   *metrics.Metrics
	StreamCfg StreamConfig
}

func NewHandler(log logger.Logger, table *service.TableService, m *metrics.Metrics, stream StreamConfig) *Handler {
	if table == nil {
		panic("table service cannot be nil")
	}
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.New()
	}
	if stream.Heartbeat <= 0 {
		stream.Heartbeat = 15 * time.Second
	}
	if stream.Buffer <= 0 {
		stream.Buffer = 16
	}

	return &Handler{Log: log, Table: table, Metrics: m, StreamCfg: stream}
}

func (a *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	if err := httputil.JSON(w, http.StatusOK, map[string]any{}, nil); err != nil {
		a.Log.Errorf("Healthz handler error: %s", err.Error())
	}
}

// Readiness checks the broker and that the catalogue loaded without error
func (a *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := a.Table.CheckDependency(ctx); err != nil {
		err = httputil.Error(w, r, http.StatusServiceUnavailable, "dependencies_unhealthy", "dependencies check failed", map[string]any{
			"error": err.Error(),
		})
		if err != nil {
			a.Log.Errorf("Readiness handler error: %s", err.Error())
		}
		return
	}

	if err := httputil.JSON(w, http.StatusOK, map[string]string{"dependencies": "healthy"}, nil); err != nil {
		a.Log.Errorf("Readiness handler error: %s", err.Error())
	}
}

// reply writes body and logs a failed write; handlers never retry
func (a *Handler) reply(w http.ResponseWriter, status int, body any, handler string) {
	if err := httputil.JSON(w, status, body, nil); err != nil {
		a.Log.Errorf("%s handler error: %s", handler, err.Error())
	}
}

func (a *Handler) fail(w http.ResponseWriter, r *http.Request, status int, code, message string, handler string) {
	if err := httputil.Error(w, r, status, code, message, nil); err != nil {
		a.Log.Errorf("%s handler error: %s", handler, err.Error())
	}
}
