package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxprune/internal/instrumentation"
)

const (
	// DefaultHTTPAddr is the default listen address for streamable-http.
	DefaultHTTPAddr = ":8080"

	// DefaultHTTPWriteTimeout bounds a single response. Deletes of several
	// paced batches take minutes.
	DefaultHTTPWriteTimeout = 10 * time.Minute
)

// HTTPServer serves the MCP streamable-http transport on /mcp next to the
// health endpoints.
type HTTPServer struct {
	mcp        http.Handler
	health     *HealthChecker
	sc         *ServerContext
	httpServer *http.Server
	addr       string
}

// NewHTTPServer returns an HTTPServer for mcpServer listening on addr.
func NewHTTPServer(mcpServer *mcpserver.MCPServer, sc *ServerContext, addr string) *HTTPServer {
	if addr == "" {
		addr = DefaultHTTPAddr
	}
	s := &HTTPServer{
		mcp:    mcpserver.NewStreamableHTTPServer(mcpServer, mcpserver.WithEndpointPath("/mcp")),
		health: NewHealthChecker(sc),
		sc:     sc,
		addr:   addr,
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      DefaultHTTPWriteTimeout,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the routing mux.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/mcp", s.instrumentationMiddleware(s.mcp))
	s.health.RegisterHealthEndpoints(mux)
	return mux
}

// HealthChecker exposes the readiness state, e.g. to flip it during shutdown.
func (s *HTTPServer) HealthChecker() *HealthChecker {
	return s.health
}

// Start serves until Shutdown.
func (s *HTTPServer) Start() error {
	slog.Info("starting MCP server", "transport", "streamable-http", "addr", s.addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown marks the server not ready and drains connections.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.health.SetReady(false)
	return s.httpServer.Shutdown(ctx)
}

// instrumentationMiddleware records request count and duration.
func (s *HTTPServer) instrumentationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var metrics *instrumentation.Metrics
		if s.sc != nil {
			metrics = s.sc.Metrics()
		}
		if metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)
		metrics.RecordHTTPRequest(r.Context(), r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}

// responseWriter captures the status code for metrics.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush keeps server-sent event streams working through the wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
