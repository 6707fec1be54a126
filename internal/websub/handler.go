package websub

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/google/uuid"
)

// Challenges outside this pattern are never reflected back to the hub.
var challengePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// EventFunc receives each authenticated, successfully parsed video event.
type EventFunc func(ctx context.Context, ev VideoEvent)

// CallbackHandler is the hub-facing endpoint: GET serves subscription
// verification challenges, POST receives signed notification deliveries.
type CallbackHandler struct {
	verifier *Verifier
	onEvent  EventFunc
	logger   *slog.Logger
}

// NewCallbackHandler creates a handler that verifies notifications with secret
// and hands each parsed event to onEvent.
func NewCallbackHandler(secret string, onEvent EventFunc, logger *slog.Logger) *CallbackHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CallbackHandler{
		verifier: NewVerifier(secret, logger),
		onEvent:  onEvent,
		logger:   logger,
	}
}

// ServeHTTP implements http.Handler for CallbackHandler.
func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleChallenge(w, r)
	case http.MethodPost:
		h.handleNotification(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *CallbackHandler) handleChallenge(w http.ResponseWriter, r *http.Request) {
	challenge := r.URL.Query().Get("hub.challenge")
	if challenge == "" {
		h.logger.Info("verification GET without challenge")
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("OK"))
		return
	}

	if !challengePattern.MatchString(challenge) {
		h.logger.Error("rejected malformed hub challenge")
		http.Error(w, "Invalid challenge", http.StatusBadRequest)
		return
	}

	h.logger.Info("echoing hub challenge",
		slog.String("hub.mode", r.URL.Query().Get("hub.mode")),
		slog.String("hub.topic", r.URL.Query().Get("hub.topic")))
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(challenge))
}

func (h *CallbackHandler) handleNotification(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("delivery_id", uuid.NewString()))

	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error("failed to read notification body", slog.String("err", err.Error()))
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	switch err := h.verifier.Verify(body, r.Header.Get("X-Hub-Signature")); {
	case errors.Is(err, ErrSecretNotConfigured):
		logger.Error("rejecting notification, webhook secret not configured")
		http.Error(w, "Server HMAC not configured", http.StatusServiceUnavailable)
		return
	case errors.Is(err, ErrNotSigned):
		logger.Error("missing X-Hub-Signature header")
		http.Error(w, "Signature required", http.StatusUnauthorized)
		return
	case err != nil:
		logger.Error("rejecting notification with invalid signature", slog.String("err", err.Error()))
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	// From here on the hub only needs delivery acknowledgement: parse and
	// dispatch failures are logged, never surfaced as an error status.
	ev, err := ParseNotification(body)
	if err != nil {
		logger.Warn("discarding unparseable notification", slog.String("err", err.Error()))
		w.Write([]byte("OK"))
		return
	}

	logger.Info("video notification parsed",
		slog.String("video_id", ev.VideoID),
		slog.String("channel", ev.Channel),
		slog.String("title", ev.Title),
		slog.String("published", ev.Published))

	if h.onEvent != nil {
		h.onEvent(r.Context(), *ev)
	}

	w.Write([]byte("OK"))
}
