package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/andrevargas22/websub-github-middleware/pkg/utils"
)

// Credentials are only ever read from the environment, never from the config
// file.
const (
	EnvWebhookSecret  = "WEBHOOK_HMAC_SECRET"
	EnvAppID          = "GRENALBOT_ID"
	EnvInstallationID = "GRENALBOT_INSTALLATION_ID"
	EnvPrivateKey     = "GRENALBOT_PRIVATE_KEY"
)

type Config struct {
	Server   *Server   `yaml:"server"`
	Hub      *Hub      `yaml:"hub"`
	GitHub   *GitHub   `yaml:"github"`
	Channels []Channel `yaml:"channels"`
}

type Server struct {
	Addr         string `yaml:"addr"`
	BaseURL      string `yaml:"base_url"`
	CallbackPath string `yaml:"callback_path"`
}

type Hub struct {
	URL            string `yaml:"url"`
	LeaseSeconds   int    `yaml:"lease_seconds"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type GitHub struct {
	Owner     string `yaml:"owner"`
	Repo      string `yaml:"repo"`
	EventType string `yaml:"event_type"`
}

// Channel is one YouTube channel watched for uploads.
type Channel struct {
	Name      string `yaml:"name"`
	ChannelID string `yaml:"channel_id"`
}

// Secrets holds the credentials read from the process environment. Presence is
// checked at the point of use so each operation fails closed independently.
type Secrets struct {
	WebhookSecret  string
	AppID          string
	InstallationID string
	PrivateKey     string
}

// LoadSecrets reads the credential environment variables.
func LoadSecrets() Secrets {
	return Secrets{
		WebhookSecret:  os.Getenv(EnvWebhookSecret),
		AppID:          os.Getenv(EnvAppID),
		InstallationID: os.Getenv(EnvInstallationID),
		PrivateKey:     os.Getenv(EnvPrivateKey),
	}
}

// GitHubComplete reports whether every App credential is present.
func (s Secrets) GitHubComplete() bool {
	return s.AppID != "" && s.InstallationID != "" && s.PrivateKey != ""
}

// LoadConfig reads and validates the YAML configuration file, applying
// defaults for the optional fields.
func LoadConfig(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	var cfg Config
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server == nil || c.Server.BaseURL == "" {
		return errors.New("config: server.base_url is required")
	}
	if c.GitHub == nil || c.GitHub.Owner == "" || c.GitHub.Repo == "" {
		return errors.New("config: github.owner and github.repo are required")
	}
	for i, ch := range c.Channels {
		if ch.ChannelID == "" {
			return fmt.Errorf("config: channels[%d] has no channel_id", i)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = "0.0.0.0:" + utils.GetenvDefault("PORT", "8080")
	}
	if c.Server.CallbackPath == "" {
		c.Server.CallbackPath = "/websub/callback"
	}
	if c.Hub == nil {
		c.Hub = &Hub{}
	}
	if c.Hub.URL == "" {
		c.Hub.URL = "https://pubsubhubbub.appspot.com/subscribe"
	}
	if c.Hub.LeaseSeconds <= 0 {
		c.Hub.LeaseSeconds = 2764800
	}
	if c.Hub.TimeoutSeconds <= 0 {
		c.Hub.TimeoutSeconds = 15
	}
	if c.GitHub.EventType == "" {
		c.GitHub.EventType = "video_published"
	}
}

// CallbackURL is the public endpoint handed to the hub.
func (c *Config) CallbackURL() string {
	return c.Server.BaseURL + c.Server.CallbackPath
}
