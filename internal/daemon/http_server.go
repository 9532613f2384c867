package daemon

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
	"git.home.luguber.info/inful/buildworker/internal/metrics"
	"git.home.luguber.info/inful/buildworker/internal/version"
)

const maxTaskBody = 1 << 20

// HTTPServer serves task intake, health and metrics.
type HTTPServer struct {
	addr         string
	gatherer     prom.Gatherer
	errorAdapter *errors.HTTPErrorAdapter
	server       *http.Server
	logger       *slog.Logger
}

// NewHTTPServer returns a server that will listen on addr.
func NewHTTPServer(addr string, gatherer prom.Gatherer, logger *slog.Logger) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPServer{
		addr:         addr,
		gatherer:     gatherer,
		errorAdapter: errors.NewHTTPErrorAdapter(logger),
		logger:       logger,
	}
}

// Handler builds the route table for d.
func (s *HTTPServer) Handler(d *Daemon) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/tasks", func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(io.LimitReader(r.Body, maxTaskBody))
		if err != nil {
			s.errorAdapter.WriteErrorResponse(w, r,
				errors.ValidationError("failed to read task body").WithCause(err).Build())
			return
		}
		env, err := d.Submit(data)
		if err != nil {
			s.errorAdapter.WriteErrorResponse(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "type": string(env.Type)})
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		snap := d.Snapshot()
		code := http.StatusOK
		if snap.Status != StatusRunning {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, struct {
			Snapshot
			Version string `json:"version"`
		}{snap, version.String()})
	})
	mux.Handle("GET /metrics", metrics.HTTPHandler(s.gatherer))
	return mux
}

// Start binds the listener up front so address errors surface immediately.
func (s *HTTPServer) Start(ctx context.Context, d *Daemon) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.DaemonError("failed to bind http listener").
			WithCause(err).
			WithContext("addr", s.addr).
			Build()
	}
	s.server = &http.Server{
		Handler:           s.Handler(d),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		if err := s.server.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server stopped", slog.String("addr", s.addr), slog.Any("error", err))
		}
	}()
	s.logger.Info("HTTP server listening", slog.String("addr", ln.Addr().String()))
	return nil
}

// Stop shuts the server down gracefully.
func (s *HTTPServer) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
