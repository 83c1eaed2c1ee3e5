package handlers

import (
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"natsume/internal/api"
)

// NewRouter assembles the full HTTP surface. metricsHandler is mounted on
// /metrics when non-nil.
func NewRouter(h *Handler, logger logr.Logger, metricsHandler http.Handler) http.Handler {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "no such route")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	syncDigest := h.cfg.SyncToken.Digest
	adminDigest := h.cfg.AdminToken.Digest

	router.HandleFunc(api.PathIP, h.IPHandler).Methods(http.MethodGet)
	router.HandleFunc(api.PathHealth, h.HealthHandler).Methods(http.MethodGet)
	router.HandleFunc(api.PathBind, h.BindHandler).Methods(http.MethodPost)
	router.HandleFunc(api.PathUnbind, RequireToken(adminDigest, h.UnbindHandler)).Methods(http.MethodPost)
	router.HandleFunc(api.PathReport, h.ReportHandler).Methods(http.MethodPost)
	router.HandleFunc(api.PathSync, RequireToken(syncDigest, h.SyncHandler)).Methods(http.MethodPost)
	router.HandleFunc(api.PathStatus, RequireToken(adminDigest, h.StatusHandler)).Methods(http.MethodGet)
	if metricsHandler != nil {
		router.Handle(api.PathMetrics, metricsHandler).Methods(http.MethodGet)
	}

	c := cors.New(cors.Options{
		AllowedOrigins: h.cfg.APICORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", api.TokenHeader, api.RequestIDHeader},
	})

	// Zero requests per window disables limiting.
	limiter := rate.NewLimiter(rate.Inf, 0)
	if h.cfg.APIRateLimitRequests > 0 {
		limiter = rate.NewLimiter(
			rate.Every(time.Duration(h.cfg.APIRateLimitWindowMins)*time.Minute/time.Duration(h.cfg.APIRateLimitRequests)),
			h.cfg.APIRateLimitRequests,
		)
	}

	return requestMiddleware(logger, h.metrics)(rateLimitMiddleware(limiter)(c.Handler(router)))
}
