package httpapi

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Router on the standard http.ServeMux
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterDashboardRoutes WebSocket stream plus per-session REST routes
func (r *Router) RegisterDashboardRoutes(stream *StreamHandler, d *DashboardHandler) {
	r.HandleHandler("/dashboard/api/v1/stream", stream)
	r.Handle(sessionsPrefix, d.ServeSession)
}

// RegisterOpsRoutes health and metrics
func (r *Router) RegisterOpsRoutes(ping func(ctx context.Context) error, metrics http.Handler) {
	r.Handle("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := ping(ctx); err != nil {
			r.logger.Warn("Health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, failed(err.Error()))
			return
		}
		writeJSON(w, http.StatusOK, ok("ok"))
	})
	r.HandleHandler("/metrics", metrics)
}
