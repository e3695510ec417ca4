package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dnodevkis/tg-news-bot/internal/llm"
)

// DefaultChannelID is the broadcast channel used when none is configured.
const DefaultChannelID = "@Echo_of_Langinion"

// Config holds the application's configuration.
type Config struct {
	Database struct {
		Driver string `yaml:"driver"` // "postgres" or "sqlite"
		URL    string `yaml:"url"`
	} `yaml:"database"`

	Telegram struct {
		BotToken  string `yaml:"bot_token"`
		AdminID   int64  `yaml:"admin_id"`
		ChannelID string `yaml:"channel_id"`
		Endpoint  string `yaml:"endpoint"`
	} `yaml:"telegram"`

	Editor struct {
		Providers               []llm.ProviderConfig `yaml:"providers"`
		MaxFailuresBeforeSwitch int                  `yaml:"max_failures_before_switch"`
		MaxTokens               int                  `yaml:"max_tokens"`
		TimeoutSeconds          int                  `yaml:"timeout_seconds"`
		MinReplyLength          int                  `yaml:"min_reply_length"`
		MaxAttempts             int                  `yaml:"max_attempts"`
		BaseDelayMs             int                  `yaml:"base_delay_ms"`
		MaxJitterMs             int                  `yaml:"max_jitter_ms"`
		SystemPrompt            string               `yaml:"system_prompt"`
	} `yaml:"editor"`

	Image struct {
		APIKey         string `yaml:"api_key"`
		BaseURL        string `yaml:"base_url"`
		Model          string `yaml:"model"`
		Size           string `yaml:"size"`
		Quality        string `yaml:"quality"`
		MaxAttempts    int    `yaml:"max_attempts"`
		BaseDelayMs    int    `yaml:"base_delay_ms"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"image"`

	Pipeline struct {
		PollInterval  int64 `yaml:"poll_interval_seconds"`
		FirstRunDelay int64 `yaml:"first_run_delay_seconds"`
		Concurrency   int   `yaml:"concurrency"`
		GroupWindow   int   `yaml:"group_window"`
	} `yaml:"pipeline"`

	Review struct {
		ScheduleSlots []string `yaml:"schedule_slots"`
		Timezone      string   `yaml:"timezone"`
	} `yaml:"review"`

	Scheduler struct {
		PublishTimeoutSeconds int `yaml:"publish_timeout_seconds"`
	} `yaml:"scheduler"`

	Ingest struct {
		Enabled       bool   `yaml:"enabled"`
		Dir           string `yaml:"dir"`
		SweepInterval int64  `yaml:"sweep_interval_seconds"`
	} `yaml:"ingest"`

	Server struct {
		Enabled   bool   `yaml:"enabled"`
		Port      string `yaml:"port"`
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"server"`

	Logging struct {
		Development bool   `yaml:"development"`
		Level       string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads configuration from the specified YAML file, applies
// environment overrides and fills in defaults. An empty path skips the file.
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	if configPath != "" {
		file, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer file.Close()

		decoder := yaml.NewDecoder(file)
		if err := decoder.Decode(config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	config.setDefaults()

	return config, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("ADMIN_ID"); v != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid ADMIN_ID %q: %w", v, err)
		}
		c.Telegram.AdminID = id
	}
	if v := os.Getenv("CHANNEL_ID"); v != "" {
		c.Telegram.ChannelID = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Image.APIKey = v
	}
	if v := os.Getenv("API_JWT_SECRET"); v != "" {
		c.Server.JWTSecret = v
	}

	claudeKey, claudeModel := os.Getenv("CLAUDE_API_KEY"), os.Getenv("CLAUDE_MODEL")
	if claudeKey != "" || claudeModel != "" {
		idx := -1
		for i, p := range c.Editor.Providers {
			if p.Type == llm.ProviderAnthropic || p.Type == "" {
				idx = i
				break
			}
		}
		if idx < 0 {
			c.Editor.Providers = append(c.Editor.Providers, llm.ProviderConfig{Type: llm.ProviderAnthropic})
			idx = len(c.Editor.Providers) - 1
		}
		if claudeKey != "" {
			c.Editor.Providers[idx].APIKey = claudeKey
		}
		if claudeModel != "" {
			c.Editor.Providers[idx].ModelName = claudeModel
		}
	}

	// Expand environment variables in provider API keys
	for i := range c.Editor.Providers {
		c.Editor.Providers[i].APIKey = os.ExpandEnv(c.Editor.Providers[i].APIKey)
	}
	c.Image.APIKey = os.ExpandEnv(c.Image.APIKey)
	c.Database.URL = os.ExpandEnv(c.Database.URL)
	c.Telegram.BotToken = os.ExpandEnv(c.Telegram.BotToken)
	c.Server.JWTSecret = os.ExpandEnv(c.Server.JWTSecret)
	return nil
}

func (c *Config) setDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Telegram.ChannelID == "" {
		c.Telegram.ChannelID = DefaultChannelID
	}
	if c.Editor.MaxFailuresBeforeSwitch == 0 {
		c.Editor.MaxFailuresBeforeSwitch = 3
	}
	if c.Pipeline.PollInterval == 0 {
		c.Pipeline.PollInterval = 600
	}
	if c.Pipeline.FirstRunDelay == 0 {
		c.Pipeline.FirstRunDelay = 10
	}
	if c.Pipeline.Concurrency == 0 {
		c.Pipeline.Concurrency = 1
	}
	if c.Pipeline.GroupWindow == 0 {
		c.Pipeline.GroupWindow = 3
	}
	if len(c.Review.ScheduleSlots) == 0 {
		c.Review.ScheduleSlots = []string{"09:00", "13:00", "19:00"}
	}
	if c.Scheduler.PublishTimeoutSeconds == 0 {
		c.Scheduler.PublishTimeoutSeconds = 60
	}
	if c.Ingest.Dir == "" {
		c.Ingest.Dir = "./fetched-events"
	}
	if c.Ingest.SweepInterval == 0 {
		c.Ingest.SweepInterval = 600
	}
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate reports every missing or malformed required setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Telegram.BotToken == "" {
		errs = append(errs, errors.New("telegram.bot_token (BOT_TOKEN) is required"))
	}
	if c.Telegram.AdminID == 0 {
		errs = append(errs, errors.New("telegram.admin_id (ADMIN_ID) is required"))
	}
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url (DATABASE_URL) is required"))
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}

	hasKey := false
	for _, p := range c.Editor.Providers {
		if p.APIKey != "" {
			hasKey = true
		}
	}
	if !hasKey {
		errs = append(errs, errors.New("editor.providers needs at least one provider with an api_key (CLAUDE_API_KEY)"))
	}
	if c.Image.APIKey == "" {
		errs = append(errs, errors.New("image.api_key (OPENAI_API_KEY) is required"))
	}

	for _, slot := range c.Review.ScheduleSlots {
		if _, err := time.Parse("15:04", slot); err != nil {
			errs = append(errs, fmt.Errorf("review.schedule_slots: invalid time %q", slot))
		}
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("review.timezone: %w", err))
	}

	if c.Server.Enabled && c.Server.JWTSecret == "" {
		errs = append(errs, errors.New("server.jwt_secret (API_JWT_SECRET) is required when the server is enabled"))
	}

	return errors.Join(errs...)
}

// Location returns the operator's timezone, the local one by default.
func (c *Config) Location() (*time.Location, error) {
	if c.Review.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Review.Timezone)
}

func seconds(n int64) time.Duration {
	return time.Duration(n) * time.Second
}

// PollInterval returns the pipeline poll interval.
func (c *Config) PollInterval() time.Duration { return seconds(c.Pipeline.PollInterval) }

// FirstRunDelay returns the delay before the first poll.
func (c *Config) FirstRunDelay() time.Duration { return seconds(c.Pipeline.FirstRunDelay) }

// SweepInterval returns the ingest sweep interval.
func (c *Config) SweepInterval() time.Duration { return seconds(c.Ingest.SweepInterval) }

// PublishTimeout returns the timeout of a single channel publish.
func (c *Config) PublishTimeout() time.Duration {
	return seconds(int64(c.Scheduler.PublishTimeoutSeconds))
}
