package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/andrevargas22/websub-github-middleware/internal/websub"
)

// Video ids outside this pattern never reach the API.
var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{6,20}$`)

// Dispatcher forwards parsed video events to the target repository as
// repository_dispatch events.
type Dispatcher struct {
	client    *Client
	owner     string
	repo      string
	eventType string
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher targeting owner/repo with the given
// event type.
func NewDispatcher(client *Client, owner, repo, eventType string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		client:    client,
		owner:     owner,
		repo:      repo,
		eventType: eventType,
		logger:    logger,
	}
}

// dispatchPayload is the client_payload the downstream workflow consumes.
type dispatchPayload struct {
	VideoID     string `json:"video_id"`
	VideoURL    string `json:"video_url"`
	Title       string `json:"title"`
	Channel     string `json:"channel"`
	PublishedAt string `json:"published_at"`
}

// Dispatch validates the event and fires one repository_dispatch for it.
// Events whose video id is absent, a placeholder, or outside the allow-listed
// pattern are refused before any outbound call. Errors are returned for the
// caller to log; there is no retry.
func (d *Dispatcher) Dispatch(ctx context.Context, ev websub.VideoEvent) error {
	if ev.VideoID == "" || ev.VideoID == websub.UnknownField {
		return errors.New("missing or placeholder video id, refusing dispatch")
	}
	if !videoIDPattern.MatchString(ev.VideoID) {
		return errors.New("video id fails allow-list pattern, refusing dispatch")
	}

	payload := dispatchPayload{
		VideoID:     ev.VideoID,
		VideoURL:    ev.URL,
		Title:       ev.Title,
		Channel:     ev.Channel,
		PublishedAt: ev.Published,
	}
	if err := d.client.CreateDispatch(ctx, d.owner, d.repo, d.eventType, payload); err != nil {
		return fmt.Errorf("dispatching %s event for video %s failed: %w", d.eventType, ev.VideoID, err)
	}

	d.logger.Info("workflow dispatch sent",
		slog.String("video_id", ev.VideoID),
		slog.String("repo", d.owner+"/"+d.repo))
	return nil
}
