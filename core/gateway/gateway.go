// Package gateway is the HTTP surface of shrekd.
package gateway

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shrekd/shrekd/core/infra/logging"
	"github.com/shrekd/shrekd/core/infra/metrics"
	"github.com/shrekd/shrekd/core/share"
)

const headerRequestID = "X-Request-Id"

type server struct {
	svc     *share.Service
	metrics metrics.GatewayMetrics
}

// NewHandler returns the routed API handler.
func NewHandler(svc *share.Service, m metrics.GatewayMetrics) http.Handler {
	if m == nil {
		m = metrics.Noop{}
	}
	s := &server{svc: svc, metrics: m}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /{$}", s.instrumented("/", s.handleUsage))
	mux.HandleFunc("POST /paste", s.instrumented("/paste", s.handleCreatePaste))
	mux.HandleFunc("POST /url", s.instrumented("/url", s.handleCreateURL))
	mux.HandleFunc("PUT /{filename}", s.instrumented("/{filename}", s.handleCreateFile))
	mux.HandleFunc("GET /{slug}", s.instrumented("/{slug}", s.handleFetch))
	return withRequestID(mux)
}

// NewServer wraps handler with the timeouts used for the public listener.
// WriteTimeout stays unset so large downloads are not cut off.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(headerRequestID))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush preserves streaming support if the wrapped writer implements it.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *server) instrumented(route string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		fn(rec, r)
		s.metrics.ObserveRequest(r.Method, route, fmt.Sprintf("%d", rec.status), time.Since(start).Seconds())
		logging.Debug("gateway", "request", "method", r.Method, "path", r.URL.Path, "status", rec.status)
	}
}

func (s *server) handleUsage(w http.ResponseWriter, r *http.Request) {
	limits := s.svc.Limits()
	base := baseURL(r)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, `shrekd: ephemeral file, paste and link sharing

  curl -T file.txt %[1]s/            upload a file (max %[2]d bytes)
  curl --data-binary @note %[1]s/paste   create a paste (max %[3]d bytes)
  curl -d https://example.com %[1]s/url  create a redirect
  curl %[1]s/<slug>                     retrieve

Optional request headers:
  Max-Access: <n>          delete after n reads
  Expiry-Timestamp: <unix> expire at an absolute time
  Expire-In: <seconds>     expire after a delay
  Slug-Length: <n>         longer generated slug
  Custom-Slug: <slug>      request a specific slug
  Data-Checksum: <sha256>  expected upload digest
`, base, limits.File, limits.Paste)
}
