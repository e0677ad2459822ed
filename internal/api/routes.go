package api

import (
	"net/http"

	"pipeliner/internal/health"
	"pipeliner/internal/observability"
	"pipeliner/internal/pipeline"
	"pipeliner/internal/run"
	"pipeliner/internal/trigger"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	RunService    *run.Service
	Registry      *pipeline.Registry
	PushHandler   *trigger.PushHandler
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
	APIKey        string
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.RunService, cfg.Registry, cfg.PushHandler, cfg.HealthChecker)

	mux := http.NewServeMux()

	// Health check endpoints (liveness/readiness probes) - no auth required
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)

	// Webhook endpoint - authenticated by HMAC signature, not bearer token
	mux.HandleFunc("POST /hooks/push", handler.PushHook)

	// Run and pipeline endpoints - auth required
	authMiddleware := AuthMiddleware(cfg.APIKey)
	mux.Handle("POST /v1/runs", authMiddleware(http.HandlerFunc(handler.CreateRun)))
	mux.Handle("GET /v1/runs", authMiddleware(http.HandlerFunc(handler.ListRuns)))
	mux.Handle("GET /v1/runs/{runId}", authMiddleware(http.HandlerFunc(handler.GetRun)))
	mux.Handle("DELETE /v1/runs/{runId}", authMiddleware(http.HandlerFunc(handler.CancelRun)))
	mux.Handle("GET /v1/pipelines", authMiddleware(http.HandlerFunc(handler.ListPipelines)))
	mux.Handle("GET /v1/pipelines/{name}", authMiddleware(http.HandlerFunc(handler.GetPipeline)))

	// Apply middleware chain (order matters: outermost first)
	var h http.Handler = mux
	h = ContentTypeMiddleware()(h)
	h = CORSMiddleware()(h)
	if cfg.Metrics != nil {
		h = MetricsMiddleware(cfg.Metrics)(h)
	}
	h = LoggingMiddleware()(h)
	h = RecoveryMiddleware()(h)

	return h
}
