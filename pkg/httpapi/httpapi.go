// Package httpapi exposes the query pipeline over HTTP as a single POST
// /query endpoint, translating pipeline errors into the status codes and
// response shapes the caller sees.
package httpapi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/pgnlq/isaqe/pkg/httputil"
	"github.com/pgnlq/isaqe/pkg/model"
	pg "github.com/pgnlq/isaqe/pkg/pgx"
	"github.com/pgnlq/isaqe/pkg/pipeline"
)

// Handler answers /query requests by running them through a Pipeline
// against a fixed connection pool.
type Handler struct {
	pipeline *pipeline.Pipeline
	conn     pg.Conn
	log      *zap.Logger
}

// NewHandler builds a Handler.
func NewHandler(p *pipeline.Pipeline, conn pg.Conn, log *zap.Logger) *Handler {
	return &Handler{pipeline: p, conn: conn, log: log}
}

// Register mounts the handler's routes on r.
func (h *Handler) Register(r *httputil.Router) {
	r.Handle("POST /query", http.HandlerFunc(h.handleQuery))
	r.Handle("GET /healthz", http.HandlerFunc(h.handleHealthz))
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req model.Request
	if err := httputil.BindOrError(r, w, &req); err != nil {
		return
	}

	resp, err := h.pipeline.Handle(r.Context(), h.conn, req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, resp)
}

// writeError maps a pipeline error to its HTTP status. Every non-rate-limit
// failure returns a generic detail message: the underlying cause (including
// any rejected SQL) is never surfaced to the caller, only recorded in the
// server logs. The audit log receives entries for successful requests only.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, pipeline.ErrRateLimitExceeded) {
		httputil.Error(w, http.StatusTooManyRequests, "Rate limit exceeded")
		return
	}

	if h.log != nil {
		h.log.Error("query processing failed", zap.Error(err))
	}
	httputil.Error(w, http.StatusInternalServerError, "Query processing failed")
}
