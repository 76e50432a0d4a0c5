// Package httpapi serves read-only views of the monitor to rendering
// clients: the current model as JSON, a websocket push of every update,
// the weekly report and Prometheus metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/spyhelmet/helmetmon/internal/engine"
	"github.com/spyhelmet/helmetmon/internal/models"
	"github.com/spyhelmet/helmetmon/internal/report"
)

const (
	writeWait       = 5 * time.Second
	pingPeriod      = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

// ViewSource is the subset of the engine the server reads.
type ViewSource interface {
	View() engine.View
	Subscribe() (<-chan engine.View, func())
}

// ReportCache is the subset of the report cache the server drives.
type ReportCache interface {
	Open(ctx context.Context) (models.Report, error)
	Close()
	Invalidate()
	State() report.State
}

// Server is the view server.
type Server struct {
	views    ViewSource
	reports  ReportCache
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	upgrader websocket.Upgrader
	http     *http.Server
}

// New creates a server. gatherer may be nil to omit /metrics.
func New(addr string, views ViewSource, reports ReportCache, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		views:    views,
		reports:  reports,
		gatherer: gatherer,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 8192,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routed handler with recovery and access logging.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/state", s.handleState).Methods(http.MethodGet)
	r.HandleFunc("/api/ws", s.handleWS).Methods(http.MethodGet)
	r.HandleFunc("/api/report", s.handleReportOpen).Methods(http.MethodGet)
	r.HandleFunc("/api/report", s.handleReportInvalidate).Methods(http.MethodDelete)
	r.HandleFunc("/api/report/state", s.handleReportState).Methods(http.MethodGet)
	r.HandleFunc("/api/report/close", s.handleReportClose).Methods(http.MethodPost)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	logged := handlers.CombinedLoggingHandler(zap.NewStdLog(s.logger.Named("access")).Writer(), r)
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(zapRecoveryLogger{s.logger}),
		handlers.PrintRecoveryStack(false),
	)(logged)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("View server listening", zap.String("addr", s.http.Addr))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.views.View())
}

func (s *Server) handleReportOpen(w http.ResponseWriter, r *http.Request) {
	doc, err := s.reports.Open(r.Context())
	if err != nil {
		s.writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleReportState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.reports.State())
}

func (s *Server) handleReportClose(w http.ResponseWriter, r *http.Request) {
	s.reports.Close()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReportInvalidate(w http.ResponseWriter, r *http.Request) {
	s.reports.Invalidate()
	w.WriteHeader(http.StatusNoContent)
}

// handleWS sends the current view, then every update until the client
// goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	views, unsubscribe := s.views.Subscribe()
	defer unsubscribe()

	// Reader goroutine: detect client close and discard client frames.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	if err := s.send(conn, s.views.View()); err != nil {
		return
	}
	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case v, ok := <-views:
			if !ok {
				return
			}
			if err := s.send(conn, v); err != nil {
				s.logger.Debug("Websocket write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (s *Server) send(conn *websocket.Conn, v engine.View) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response", zap.Error(err))
	}
}

// zapRecoveryLogger adapts zap to handlers.RecoveryHandlerLogger.
type zapRecoveryLogger struct {
	logger *zap.Logger
}

func (l zapRecoveryLogger) Println(v ...interface{}) {
	l.logger.Error("Recovered from handler panic", zap.Any("panic", v))
}
