package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"isoserve/logger"
)

// Header is a single fixed response header.
type Header struct {
	Name  string
	Value string
}

// IsolationHeaderSet is added to every response. COOP and COEP make pages
// cross-origin isolated; the wildcard origin lets other origins load the assets.
var IsolationHeaderSet = []Header{
	{Name: "Cross-Origin-Opener-Policy", Value: "same-origin"},
	{Name: "Cross-Origin-Embedder-Policy", Value: "require-corp"},
	{Name: "Access-Control-Allow-Origin", Value: "*"},
}

// IsolationHeadersMiddleware sets the fixed headers before the wrapped handler runs,
// so they are part of whatever status line it eventually writes.
func (s *Server) IsolationHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, h := range IsolationHeaderSet {
			w.Header().Set(h.Name, h.Value)
		}
		next.ServeHTTP(w, r)
	})
}

// AccessLogMiddleware tags the request with an ID and logs one line per request.
func (s *Server) AccessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logger.ContextWithRequestID(r.Context(), uuid.NewString())
		rec := newResponseRecorder(w)

		next.ServeHTTP(rec, r.WithContext(ctx))

		props := map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.RequestURI(),
			"proto":       r.Proto,
			"status":      rec.statusCode(),
			"bytes":       rec.bytes,
			"duration_ms": time.Since(start).Milliseconds(),
			"remote":      r.RemoteAddr,
			"user_agent":  r.UserAgent(),
		}
		log := s.log.WithContext(ctx)
		if rec.statusCode() >= http.StatusInternalServerError {
			log.Error("HTTP request", props)
		} else {
			log.Info("HTTP request", props)
		}
	})
}

// LimitMiddleware bounds the number of requests handled at once. Requests over
// the limit wait for a slot; a request whose client goes away while waiting is dropped.
func (s *Server) LimitMiddleware(next http.Handler) http.Handler {
	if s.maxConcurrent <= 0 {
		return next
	}
	sem := semaphore.NewWeighted(int64(s.maxConcurrent))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := sem.Acquire(r.Context(), 1); err != nil {
			s.log.WithContext(r.Context()).Debug("Request abandoned while waiting for a slot", map[string]interface{}{
				"path":  r.URL.Path,
				"error": err.Error(),
			})
			return
		}
		defer sem.Release(1)
		next.ServeHTTP(w, r)
	})
}

// responseRecorder captures the status code and body size written by a handler.
type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{ResponseWriter: w}
}

func (r *responseRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += int64(n)
	return n, err
}

// statusCode reports 200 when the handler wrote nothing, as net/http does.
func (r *responseRecorder) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *responseRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
