package handlers

import (
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"natsume/internal/api"
	"natsume/internal/crypto"
	"natsume/internal/metrics"
)

// RequireToken rejects requests whose token header does not match digest
// before the wrapped handler reads the body or touches the store.
func RequireToken(digest string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		presented := r.Header.Get(api.TokenHeader)
		if presented == "" {
			writeError(w, http.StatusUnauthorized, "missing token header")
			return
		}
		if !crypto.TokenMatches(presented, digest) {
			logr.FromContextOrDiscard(r.Context()).Info("rejected request with invalid token", "path", r.URL.Path)
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) code() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}

var knownRoutes = map[string]struct{}{
	api.PathIP:      {},
	api.PathHealth:  {},
	api.PathBind:    {},
	api.PathUnbind:  {},
	api.PathReport:  {},
	api.PathSync:    {},
	api.PathStatus:  {},
	api.PathMetrics: {},
}

func routeLabel(path string) string {
	if _, ok := knownRoutes[path]; ok {
		return path
	}
	return "other"
}

// requestMiddleware tags each request with an ID, attaches a request-scoped
// logger to the context and records the outcome.
func requestMiddleware(logger logr.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(api.RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(api.RequestIDHeader, requestID)

			reqLogger := logger.WithValues("requestID", requestID, "method", r.Method, "path", r.URL.Path)
			ctx := logr.NewContext(r.Context(), reqLogger)

			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r.WithContext(ctx))

			elapsed := time.Since(start)
			m.Observe(routeLabel(r.URL.Path), rec.code(), elapsed)
			reqLogger.V(1).Info("request served", "code", rec.code(), "duration", elapsed)
		})
	}
}

func rateLimitMiddleware(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
