package websub

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/andrevargas22/websub-github-middleware/pkg/utils"
)

const (
	// DefaultHubURL is Google's shared PubSubHubbub hub, which serves the
	// YouTube feed topics.
	DefaultHubURL = "https://pubsubhubbub.appspot.com/subscribe"

	// DefaultLeaseSeconds is 32 days, comfortably past a monthly renewal job.
	DefaultLeaseSeconds = 2764800

	modeSubscribe   = "subscribe"
	modeUnsubscribe = "unsubscribe"
)

// Topic identifies one YouTube channel watched over WebSub.
type Topic struct {
	Name      string
	ChannelID string
}

// URL returns the feed address the hub publishes for the channel.
func (t Topic) URL() string {
	return fmt.Sprintf("https://www.youtube.com/xml/feeds/videos.xml?channel_id=%s", t.ChannelID)
}

// ManagerOptions configures how subscription requests are issued.
type ManagerOptions struct {
	HubURL       string
	CallbackURL  string
	Secret       string
	LeaseSeconds int
	Client       *http.Client
	Logger       *slog.Logger
}

// Manager registers and deregisters topics with the hub. Runs are expected to
// be driven out-of-band by a scheduler; the manager itself keeps no state.
type Manager struct {
	hubURL       string
	callbackURL  string
	secret       string
	leaseSeconds int
	client       *http.Client
	logger       *slog.Logger
}

// NewManager creates a subscription manager, filling unset options with
// defaults.
func NewManager(opts ManagerOptions) *Manager {
	if opts.HubURL == "" {
		opts.HubURL = DefaultHubURL
	}
	if opts.LeaseSeconds <= 0 {
		opts.LeaseSeconds = DefaultLeaseSeconds
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 15 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{
		hubURL:       opts.HubURL,
		callbackURL:  opts.CallbackURL,
		secret:       opts.Secret,
		leaseSeconds: opts.LeaseSeconds,
		client:       opts.Client,
		logger:       opts.Logger,
	}
}

// TopicResult records the outcome of one hub request.
type TopicResult struct {
	Topic Topic
	Err   error
}

// Report aggregates one subscription run.
type Report struct {
	Results   []TopicResult
	Total     int
	Succeeded int
	Failed    int
}

// AllOK reports whether every topic in the run succeeded.
func (r Report) AllOK() bool {
	return r.Failed == 0
}

// Subscribe issues one subscribe request per topic. A failed topic never
// aborts the remaining ones. It returns an error only when the run could not
// start at all, such as a missing signing secret.
func (m *Manager) Subscribe(ctx context.Context, topics []Topic) (Report, error) {
	return m.run(ctx, modeSubscribe, topics)
}

// Unsubscribe issues one unsubscribe request per topic.
func (m *Manager) Unsubscribe(ctx context.Context, topics []Topic) (Report, error) {
	return m.run(ctx, modeUnsubscribe, topics)
}

func (m *Manager) run(ctx context.Context, mode string, topics []Topic) (Report, error) {
	if m.secret == "" {
		m.logger.Error("refusing to contact hub without a signing secret, signed notifications required")
		return Report{}, ErrSecretNotConfigured
	}

	report := Report{Total: len(topics)}
	for _, topic := range topics {
		err := m.request(ctx, mode, topic)
		if err != nil {
			m.logger.Error("hub request failed",
				slog.String("mode", mode),
				slog.String("channel", topic.Name),
				slog.String("err", err.Error()))
			report.Failed++
		} else {
			m.logger.Info("hub request accepted",
				slog.String("mode", mode),
				slog.String("channel", topic.Name))
			report.Succeeded++
		}
		report.Results = append(report.Results, TopicResult{Topic: topic, Err: err})
	}

	m.logger.Info("subscription run complete",
		slog.String("mode", mode),
		slog.Int("total", report.Total),
		slog.Int("succeeded", report.Succeeded),
		slog.Int("failed", report.Failed),
		slog.Float64("success_rate", utils.Percent(report.Succeeded, report.Total)))

	return report, nil
}

// request posts one hub.* form for a topic. The hub acknowledges queued
// verification with 202; every other status is a failure.
func (m *Manager) request(ctx context.Context, mode string, topic Topic) error {
	form := url.Values{}
	form.Set("hub.callback", m.callbackURL)
	form.Set("hub.topic", topic.URL())
	form.Set("hub.verify", "async")
	form.Set("hub.mode", mode)
	if mode == modeSubscribe {
		form.Set("hub.lease_seconds", strconv.Itoa(m.leaseSeconds))
	}
	form.Set("hub.secret", m.secret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.hubURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating hub request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("hub request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("hub returned unexpected status %d", resp.StatusCode)
	}
	return nil
}
