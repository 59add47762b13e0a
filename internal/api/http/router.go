package apihttp

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"fleet-risk-engine/internal/auth"
	"fleet-risk-engine/internal/platform/logging"
)

// Routes is a handler group that mounts itself on a mux.
type Routes interface {
	Register(mux *http.ServeMux)
}

// NewRouter mounts every route group plus /healthz and /metrics, behind auth and request logging.
// A nil middleware leaves the API open.
func NewRouter(authMiddleware *auth.Middleware, logger *zap.Logger, groups ...Routes) http.Handler {
	mux := http.NewServeMux()
	for _, group := range groups {
		if group != nil {
			group.Register(mux)
		}
	}
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	var handler http.Handler = mux
	if authMiddleware != nil {
		handler = authMiddleware.Wrap(handler)
	}
	return loggingMiddleware(handler, logging.OrNop(logger))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", recorder.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
