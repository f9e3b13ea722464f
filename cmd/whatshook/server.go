package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"whatshook/internal/constants"
	apperrors "whatshook/internal/errors"
	"whatshook/internal/metrics"
	"whatshook/internal/middleware"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// ReplyHandler processes one raw reply payload end to end
type ReplyHandler interface {
	HandleReply(ctx context.Context, raw []byte) error
}

type Server struct {
	router  *mux.Router
	logger  *logrus.Logger
	replies ReplyHandler
	port    string
	server  *http.Server
}

func NewServer(port string, replies ReplyHandler, logger *logrus.Logger) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		logger:  logger,
		replies: replies,
		port:    port,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Observability(s.logger))

	// Liveness probe
	s.router.HandleFunc("/", s.handleRoot()).Methods(http.MethodGet)

	s.router.HandleFunc("/reply", s.handleReply()).Methods(http.MethodPost)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)
}

func (s *Server) Start() error {
	port := s.port
	if port == "" {
		port = constants.DefaultServerPort
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      s.router,
		ReadTimeout:  constants.DefaultServerReadTimeoutSec * time.Second,
		WriteTimeout: constants.DefaultServerWriteTimeoutSec * time.Second,
		IdleTimeout:  constants.DefaultServerIdleTimeoutSec * time.Second,
	}

	s.logger.Infof("Starting server on port %s", port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleRoot() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("whatshook is running"))
	}
}

func (s *Server) handleReply() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, apperrors.Wrap(err, apperrors.ErrCodeValidation, "failed to read request body"))
			return
		}

		if err := s.replies.HandleReply(r.Context(), body); err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	}
}

func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.Snapshot())
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	detail := err.Error()

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		detail = appErr.Detail()
	}

	writeJSON(w, apperrors.HTTPStatus(code), map[string]interface{}{
		"error":  string(code),
		"detail": detail,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
