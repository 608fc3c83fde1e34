package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"recall/internal/metrics"
	"recall/shared/reminders"
)

// ActionApplier applies a notification action on behalf of a user.
type ActionApplier interface {
	Handle(ctx context.Context, req reminders.ActionRequest, now time.Time) error
}

// MeetingPublisher announces a newly saved meeting.
type MeetingPublisher interface {
	PublishMeetingCreated(ctx context.Context, m reminders.MeetingCreated) error
}

// DueRunner runs one due pass.
type DueRunner interface {
	ProcessDue(ctx context.Context, now time.Time) (reminders.RunReport, error)
}

// DigestRunner runs one digest pass.
type DigestRunner interface {
	SendDailyDigests(ctx context.Context, now time.Time) (reminders.DigestReport, error)
}

// Pinger is a dependency checked by /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Deps bundles what the HTTP server drives. Nil runners disable their routes.
type Deps struct {
	Actions  ActionApplier
	Meetings MeetingPublisher
	Due      DueRunner
	Digest   DigestRunner
	Checks   map[string]Pinger
}

// HTTPServer exposes notification actions, meeting intake and run triggers.
type HTTPServer struct {
	apiKey string
	deps   Deps
	now    func() time.Time
	logger zerolog.Logger
	server *http.Server
}

// NewHTTPServer builds the server. An empty apiKey disables the key check.
func NewHTTPServer(port int, apiKey string, deps Deps, logger zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		apiKey: apiKey,
		deps:   deps,
		now:    time.Now,
		logger: logger.With().Str("component", "http").Logger(),
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      2 * time.Minute,
	}
	return s
}

// Handler returns the routed handler.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/notifications/action", s.requireKey(s.handleAction))
	mux.HandleFunc("/api/events/meeting-created", s.requireKey(s.handleMeetingCreated))
	mux.HandleFunc("/api/run/due", s.requireKey(s.handleRunDue))
	mux.HandleFunc("/api/run/digest", s.requireKey(s.handleRunDigest))
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	return mux
}

// Start serves until Shutdown. http.ErrServerClosed is not returned.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) requireKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" {
			got := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.apiKey)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			}
		}
		next(w, r)
	}
}

// handleAction applies a notification action.
// POST /api/notifications/action with X-User-ID
func (s *HTTPServer) handleAction(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("notification_action")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}
	if s.deps.Actions == nil {
		writeError(w, http.StatusServiceUnavailable, "actions unavailable")
		return
	}

	userID, err := userIDFromHeader(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	var req reminders.ActionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.EntityID <= 0 {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	req.UserID = userID

	err = s.deps.Actions.Handle(r.Context(), req, s.now())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case errors.Is(err, reminders.ErrUnsupportedAction):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, reminders.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		s.logger.Error().Err(err).Int64("user_id", userID).Str("action", req.Action).Msg("notification action failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// handleMeetingCreated expands a meeting into lead-time reminders.
// POST /api/events/meeting-created
func (s *HTTPServer) handleMeetingCreated(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("meeting_created")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}
	if s.deps.Meetings == nil {
		writeError(w, http.StatusServiceUnavailable, "meeting intake unavailable")
		return
	}

	var m reminders.MeetingCreated
	if err := decodeJSON(r, &m); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.deps.Meetings.PublishMeetingCreated(r.Context(), m); err != nil {
		if errors.Is(err, reminders.ErrInvalidReminder) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error().Err(err).Int64("meeting_id", m.MeetingID).Msg("meeting expansion failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

// POST /api/run/due
func (s *HTTPServer) handleRunDue(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("run_due")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}
	if s.deps.Due == nil {
		writeError(w, http.StatusServiceUnavailable, "due pass unavailable")
		return
	}
	report, err := s.deps.Due.ProcessDue(r.Context(), s.now())
	if err != nil {
		s.logger.Error().Err(err).Msg("manual due pass failed")
		writeError(w, http.StatusInternalServerError, "due pass failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// POST /api/run/digest
func (s *HTTPServer) handleRunDigest(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("run_digest")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}
	if s.deps.Digest == nil {
		writeError(w, http.StatusServiceUnavailable, "digest unavailable")
		return
	}
	report, err := s.deps.Digest.SendDailyDigests(r.Context(), s.now())
	if err != nil {
		s.logger.Error().Err(err).Msg("manual digest pass failed")
		writeError(w, http.StatusInternalServerError, "digest pass failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(s.deps.Checks))
	for name, p := range s.deps.Checks {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	writeJSON(w, status, map[string]any{"checks": checks})
}

func userIDFromHeader(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if raw == "" {
		return 0, errors.New("missing X-User-ID")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid X-User-ID")
	}
	return id, nil
}

func decodeJSON(r *http.Request, out any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
