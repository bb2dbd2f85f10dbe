package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"isoserve/logger"
)

const defaultShutdownTimeout = 10 * time.Second

// Options configures a Server.
type Options struct {
	// Addr is the host:port to bind.
	Addr string
	// Root is the directory to serve. Ignored when FS is set.
	Root string
	// FS overrides the served file tree.
	FS fs.FS
	// MaxConcurrent bounds in-flight requests; 0 means no limit.
	MaxConcurrent int
	// MetricsAddr is the address of the Prometheus listener. Empty disables it.
	MetricsAddr string
	// RuntimeMetrics adds the Go runtime and process collectors.
	RuntimeMetrics  bool
	ShutdownTimeout time.Duration
	Logger          *logger.Logger
}

// Server is the static file server: one listener for the file tree and an
// optional second one for metrics.
type Server struct {
	router  *mux.Router
	handler http.Handler
	files   *FileHandler
	metrics *Metrics

	addr            string
	metricsAddr     string
	root            string
	maxConcurrent   int
	shutdownTimeout time.Duration

	server          *http.Server
	listener        net.Listener
	metricsServer   *http.Server
	metricsListener net.Listener
	errorLog        io.Closer

	// done is closed when Serve returns, stopped when Shutdown has drained
	// in-flight requests.
	done        chan struct{}
	stopped     chan struct{}
	serveErr    error
	shutdownErr error
	stopOnce    sync.Once
	log         *logger.Logger
}

// NewServer builds the router and middleware chain. Nothing is bound until Start.
func NewServer(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}

	fsys := opts.FS
	if fsys == nil {
		fsys = os.DirFS(opts.Root)
	}

	timeout := opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	s := &Server{
		router:          mux.NewRouter(),
		files:           NewFileHandler(fsys, log),
		metrics:         NewMetrics(log, opts.RuntimeMetrics),
		addr:            opts.Addr,
		metricsAddr:     opts.MetricsAddr,
		root:            opts.Root,
		maxConcurrent:   opts.MaxConcurrent,
		shutdownTimeout: timeout,
		done:            make(chan struct{}),
		stopped:         make(chan struct{}),
		log:             log,
	}
	s.setupRoutes()
	return s
}

// Handler returns the complete request handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Metrics returns the server's collectors.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Start binds the listeners and serves in the background. Bind errors are
// returned directly; there is no retry. The server shuts down when ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.listener = ln

	if s.metricsAddr != "" {
		mln, err := net.Listen("tcp", s.metricsAddr)
		if err != nil {
			ln.Close()
			return fmt.Errorf("listen metrics %s: %w", s.metricsAddr, err)
		}
		s.metricsListener = mln
	}

	errorWriter := s.log.Writer()
	s.errorLog = errorWriter
	errorLog := log.New(errorWriter, "", 0)

	s.server = &http.Server{
		Handler:     s.handler,
		IdleTimeout: 600 * time.Second,
		ErrorLog:    errorLog,

		// OPTIONS * goes through the handler chain like any other request
		DisableGeneralOptionsHandler: true,
	}

	s.log.Info("Starting static file server", map[string]interface{}{
		"address": ln.Addr().String(),
		"root":    s.root,
	})

	go func() {
		defer close(s.done)
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Static file server error", map[string]interface{}{
				"error": err.Error(),
			})
			s.serveErr = err
		}
	}()

	if s.metricsListener != nil {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", s.metrics.Handler())
		s.metricsServer = &http.Server{
			Handler:  metricsMux,
			ErrorLog: errorLog,
		}

		s.log.Info("Starting metrics server", map[string]interface{}{
			"address": s.metricsListener.Addr().String(),
		})

		go func() {
			if err := s.metricsServer.Serve(s.metricsListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("Metrics server error", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}()
	}

	// Wait for context cancellation
	go func() {
		select {
		case <-ctx.Done():
			if err := s.Shutdown(); err != nil {
				s.log.Error("Shutdown failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		case <-s.done:
		}
	}()

	return nil
}

// Wait blocks until the file server stops and returns its serve error, if any.
// After a shutdown it also waits for in-flight requests to finish.
// Only valid after a successful Start.
func (s *Server) Wait() error {
	<-s.done
	if s.serveErr != nil {
		return s.serveErr
	}
	<-s.stopped
	return s.shutdownErr
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// MetricsAddr returns the bound metrics address, or "" when disabled.
func (s *Server) MetricsAddr() string {
	if s.metricsListener != nil {
		return s.metricsListener.Addr().String()
	}
	return s.metricsAddr
}

// Shutdown gracefully shuts down both listeners. Idempotent.
func (s *Server) Shutdown() error {
	var err error
	s.stopOnce.Do(func() {
		defer close(s.stopped)
		if s.server == nil {
			return
		}
		s.log.Info("Shutting down static file server", nil)

		ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		if serr := s.server.Shutdown(ctx); serr != nil {
			err = fmt.Errorf("server shutdown failed: %w", serr)
		}
		if s.metricsServer != nil {
			if merr := s.metricsServer.Shutdown(ctx); merr != nil && err == nil {
				err = fmt.Errorf("metrics server shutdown failed: %w", merr)
			}
		}
		if s.errorLog != nil {
			s.errorLog.Close()
		}
		s.shutdownErr = err
	})
	return err
}
