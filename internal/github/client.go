package github

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultBaseURL is the public GitHub API; tests point it at a local server.
const DefaultBaseURL = "https://api.github.com"

// Client authenticates as a GitHub App and issues repository_dispatch events.
// Installation tokens are minted per call and never cached.
type Client struct {
	baseURL        string
	appID          string
	installationID string
	privateKey     *rsa.PrivateKey
	client         *http.Client
	logger         *slog.Logger
}

// Options configures a Client. AppID, InstallationID and PrivateKeyPEM are
// required; the rest fall back to defaults.
type Options struct {
	BaseURL        string
	AppID          string
	InstallationID string
	PrivateKeyPEM  string
	Client         *http.Client
	Logger         *slog.Logger
}

// NewClient validates the App configuration and parses the private key.
// Key material delivered through the environment with escaped "\n" sequences
// is normalized before parsing.
func NewClient(opts Options) (*Client, error) {
	if opts.AppID == "" || opts.InstallationID == "" || opts.PrivateKeyPEM == "" {
		return nil, errors.New("github app configuration incomplete (app id, installation id, or private key missing)")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(normalizeKey(opts.PrivateKeyPEM)))
	if err != nil {
		return nil, fmt.Errorf("parsing github app private key failed: %w", err)
	}

	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Client{
		baseURL:        strings.TrimSuffix(opts.BaseURL, "/"),
		appID:          opts.AppID,
		installationID: opts.InstallationID,
		privateKey:     key,
		client:         opts.Client,
		logger:         opts.Logger,
	}, nil
}

func normalizeKey(key string) string {
	if strings.Contains(key, `\n`) {
		key = strings.ReplaceAll(key, `\n`, "\n")
	}
	return key
}

// appJWT mints the short-lived RS256 assertion used to request installation
// tokens. Issued-at is skewed a minute into the past to absorb clock drift.
func (c *Client) appJWT(now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-60 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(540 * time.Second)),
		Issuer:    c.appID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.privateKey)
}

// installationToken exchanges an App assertion for a scoped installation
// access token.
func (c *Client) installationToken(ctx context.Context) (string, error) {
	assertion, err := c.appJWT(time.Now())
	if err != nil {
		return "", fmt.Errorf("signing app assertion failed: %w", err)
	}

	url := fmt.Sprintf("%s/app/installations/%s/access_tokens", c.baseURL, c.installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating token request failed: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+assertion)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("token request had an unexpected status %d: %s", resp.StatusCode, respBody)
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decoding token response failed: %w", err)
	}
	if payload.Token == "" {
		return "", errors.New("token absent from response")
	}
	c.logger.Debug("installation token minted")
	return payload.Token, nil
}

// CreateDispatch mints an installation token and fires one repository_dispatch
// event in owner/repo. The token is used for this single call and discarded.
func (c *Client) CreateDispatch(ctx context.Context, owner, repo, eventType string, clientPayload any) error {
	token, err := c.installationToken(ctx)
	if err != nil {
		return fmt.Errorf("obtaining installation token failed: %w", err)
	}

	body, err := json.Marshal(map[string]any{
		"event_type":     eventType,
		"client_payload": clientPayload,
	})
	if err != nil {
		return fmt.Errorf("marshaling dispatch body failed: %w", err)
	}

	url := fmt.Sprintf("%s/repos/%s/%s/dispatches", c.baseURL, owner, repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating dispatch request failed: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("dispatch request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("dispatch had an unexpected status %d: %s", resp.StatusCode, respBody)
	}
	return nil
}
