package http

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ValentinKolb/dDoc/rpc/common"
	"github.com/ValentinKolb/dDoc/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport/rpc")

// maxBodySize limits the size of a single request
const maxBodySize = 64 << 20

func NewHttpServerTransport() transport.IRPCServerTransport {
	return &httpServerTransport{}
}

type httpServerTransport struct {
	handler transport.ServerHandleFunc
	config  common.ServerConfig
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *httpServerTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *httpServerTransport) Listen(config common.ServerConfig) error {
	if t.handler == nil {
		return fmt.Errorf("no handler registered")
	}
	t.config = config

	server := &http.Server{
		Addr:    config.Endpoint,
		Handler: NewHandler(t.handler, config.LogLevel == "debug"),
	}
	if config.TimeoutSecond > 0 {
		timeout := time.Duration(config.TimeoutSecond) * time.Second
		server.ReadTimeout = timeout
		server.WriteTimeout = timeout
	}

	Logger.Infof("Starting HTTP server on %s", config.Endpoint)
	return server.ListenAndServe()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// NewHandler returns the routes of the server as a http.Handler:
//
//	POST /{collection}  collection operation
//	POST /              store operation
//	GET  /metrics       prometheus exposition
//
// Listen serves it, tests can mount it on a httptest.Server.
func NewHandler(handler transport.ServerHandleFunc, debug bool) http.Handler {
	handle := serveWith(handler)
	if debug {
		handle = loggerMiddleware(handle)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /{collection}", handle)
	mux.HandleFunc("POST /{$}", handle)
	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w, true)
	})
	return mux
}

// serveWith returns a http handler that passes the request body to handler
// and writes its response
func serveWith(handler transport.ServerHandleFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handleRequest(handler, w, r)
	}
}

func handleRequest(handler transport.ServerHandleFunc, w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	defer r.Body.Close()
	if err != nil {
		metrics.GetOrCreateCounter(`ddoc_http_request_errors_total{reason="body"}`).Inc()
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	metrics.GetOrCreateCounter(fmt.Sprintf(`ddoc_http_requests_total{collection=%q}`, collection)).Inc()
	metrics.GetOrCreateCounter(`ddoc_http_request_bytes_total`).Add(len(body))

	resp := handler(collection, body)

	metrics.GetOrCreateCounter(`ddoc_http_response_bytes_total`).Add(len(resp))
	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err = w.Write(resp); err != nil {
		Logger.Warningf("failed to write response for %q: %v", collection, err)
	}
}

// --------------------------------------------------------------------------
// Middleware (logging)
// --------------------------------------------------------------------------

// responseWriter is a custom ResponseWriter that captures status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggerMiddleware is a middleware that logs HTTP requests
func loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rw, r)

		Logger.Debugf("%s %s => %d took %s", r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	}
}
