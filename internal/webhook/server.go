// Package webhook exposes the Gmail push endpoint over HTTP.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"rfp-mail-ingest/internal/ingest"
	"rfp-mail-ingest/internal/logging"
	"rfp-mail-ingest/internal/models"
)

const defaultMaxBodyBytes = 1 << 20

// PushHandler processes one push delivery body
type PushHandler interface {
	HandlePush(ctx context.Context, body []byte) (ingest.Outcome, error)
}

// Server routes /health and the push webhook path
type Server struct {
	path         string
	maxBodyBytes int64
	handler      PushHandler
}

// NewServer creates the HTTP handler
func NewServer(cfg models.ServerConfig, handler PushHandler) *Server {
	s := &Server{
		path:         cfg.WebhookPath,
		maxBodyBytes: cfg.MaxBodyBytes,
		handler:      handler,
	}
	if s.path == "" {
		s.path = "/webhooks/gmail"
	}
	if s.maxBodyBytes <= 0 {
		s.maxBodyBytes = defaultMaxBodyBytes
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/health":
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			writeText(w, http.StatusMethodNotAllowed, "Method Not Allowed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case s.path:
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeText(w, http.StatusMethodNotAllowed, "Method Not Allowed")
			return
		}
		s.handlePush(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeText(w, http.StatusRequestEntityTooLarge, "Payload Too Large")
			return
		}
		writeText(w, http.StatusBadRequest, "Bad Request")
		return
	}

	// A push client hanging up must not abort a batch halfway through
	outcome, err := s.handler.HandlePush(context.WithoutCancel(r.Context()), body)
	switch {
	case errors.Is(err, ingest.ErrInvalidPayload):
		logging.Log.WithError(err).Warn("Rejected push delivery")
		writeText(w, http.StatusBadRequest, "Invalid payload")
	case err != nil:
		logging.Log.WithError(err).Error("Push processing failed")
		writeText(w, http.StatusInternalServerError, "Internal Server Error")
	case outcome == ingest.OutcomeIgnored:
		writeText(w, http.StatusOK, "Ignored")
	default:
		writeText(w, http.StatusOK, "OK")
	}
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
