package api

import (
	"net/http"
)

// setupRoutes wires the file handler into the router and wraps the router in
// the middleware chain. The chain sits outside the router so that mux's own
// replies (path-clean redirects, 501) are decorated and logged as well.
func (s *Server) setupRoutes() {
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.handleUnsupportedMethod)
	s.router.PathPrefix("/").Handler(s.files).Methods(http.MethodGet, http.MethodHead)

	var h http.Handler = s.serverWideMiddleware(s.router)
	h = s.LimitMiddleware(h)
	h = s.metrics.Middleware(h)
	h = s.AccessLogMiddleware(h)
	h = s.IsolationHeadersMiddleware(h)
	s.handler = h
}

func (s *Server) handleUnsupportedMethod(w http.ResponseWriter, r *http.Request) {
	SendNotImplemented(w, r.Method)
}

// serverWideMiddleware answers requests for "*" (OPTIONS * and friends),
// which name no file. mux would otherwise redirect them to "/*".
func (s *Server) serverWideMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.RequestURI != "*" {
			next.ServeHTTP(w, r)
			return
		}
		switch r.Method {
		case http.MethodGet, http.MethodHead:
			SendNotFound(w, r.RequestURI)
		default:
			s.handleUnsupportedMethod(w, r)
		}
	})
}
