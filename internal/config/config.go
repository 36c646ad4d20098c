// Package config provides configuration loading, validation, and management
// for the bot. It handles reading from an optional YAML file, BOT_* environment
// variables, default values, and validating configuration parameters.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrConfiguration indicates an invalid or unloadable configuration.
var ErrConfiguration = errors.New("configuration error")

// Config defines the application configuration parameters for all components:
// logging, the webhook server, the LINE channel, sender authorization, the
// ThingSpeak fetcher, chart rendering, the Imgur uploader, the OpenAI client,
// token persistence, and scheduled maintenance.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Server     ServerConfig     `mapstructure:"server"`
	Line       LineConfig       `mapstructure:"line"`
	Auth       AuthConfig       `mapstructure:"auth"`
	ThingSpeak ThingSpeakConfig `mapstructure:"thingspeak"`
	Chart      ChartConfig      `mapstructure:"chart"`
	Imgur      ImgurConfig      `mapstructure:"imgur"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Messages   MessagesConfig   `mapstructure:"messages"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// ServerConfig controls the webhook HTTP server.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"         validate:"required"`
	WebhookPath     string        `mapstructure:"webhook_path" validate:"required,startswith=/"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LineConfig holds the LINE Messaging API channel credentials.
type LineConfig struct {
	ChannelToken  string `mapstructure:"channel_token"  validate:"required"`
	ChannelSecret string `mapstructure:"channel_secret" validate:"required"`
}

// AuthConfig holds the sender allow-lists as comma-separated user ID lists.
// AllowedUsers gates all commands; AIAllowedUsers additionally gates the ai:
// command. An ai: request from a sender outside AIAllowedUsers falls through
// to the echo flow rather than being rejected.
type AuthConfig struct {
	AllowedUsers   string `mapstructure:"allowed_users" validate:"required"`
	AIAllowedUsers string `mapstructure:"ai_allowed_users"`
}

// ThingSpeakConfig controls the feed fetcher.
type ThingSpeakConfig struct {
	BaseURL string        `mapstructure:"base_url" validate:"required,url"`
	Timeout time.Duration `mapstructure:"timeout"  validate:"min=1s,max=2m"`
}

// ChartConfig controls chart rendering.
type ChartConfig struct {
	Timezone      string `mapstructure:"timezone"       validate:"required"`
	Width         int    `mapstructure:"width"          validate:"min=100,max=4000"`
	Height        int    `mapstructure:"height"         validate:"min=100,max=4000"`
	ThumbnailSize int    `mapstructure:"thumbnail_size" validate:"min=16,max=1024"`
}

// ImgurConfig controls image uploads. ClientID alone selects anonymous
// Client-ID uploads; setting AccessToken (with ClientSecret and RefreshToken)
// selects authenticated Bearer uploads with refresh-on-expiry.
type ImgurConfig struct {
	ClientID     string        `mapstructure:"client_id" validate:"required"`
	ClientSecret string        `mapstructure:"client_secret"`
	AccessToken  string        `mapstructure:"access_token"`
	RefreshToken string        `mapstructure:"refresh_token"`
	UploadURL    string        `mapstructure:"upload_url" validate:"required,url"`
	TokenURL     string        `mapstructure:"token_url"  validate:"required,url"`
	Timeout      time.Duration `mapstructure:"timeout"    validate:"min=1s,max=5m"`
}

// OpenAIConfig controls the chat completion client.
type OpenAIConfig struct {
	APIKey      string        `mapstructure:"api_key"     validate:"required"`
	BaseURL     string        `mapstructure:"base_url"    validate:"required,url"`
	Model       string        `mapstructure:"model"       validate:"required"`
	Temperature float32       `mapstructure:"temperature" validate:"min=0,max=2"`
	Instruction string        `mapstructure:"instruction" validate:"required"`
	Timeout     time.Duration `mapstructure:"timeout"     validate:"min=1s,max=10m"`
}

// DatabaseConfig controls the sqlite store used for Imgur token persistence.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// MessagesConfig holds the fixed user-visible reply texts.
type MessagesConfig struct {
	NotAuthorized   string `mapstructure:"not_authorized"    validate:"required"`
	UserNotFound    string `mapstructure:"user_not_found"    validate:"required"`
	NoData          string `mapstructure:"no_data"           validate:"required"`
	BadChartRequest string `mapstructure:"bad_chart_request" validate:"required"`
	GeneralError    string `mapstructure:"general_error"     validate:"required"`
}

// SchedulerConfig controls the optional proactive token refresh job.
type SchedulerConfig struct {
	TokenRefreshEnabled  bool   `mapstructure:"token_refresh_enabled"`
	TokenRefreshSchedule string `mapstructure:"token_refresh_schedule"`
}

// Validate checks the configuration for consistency beyond struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	// Bearer mode needs the complete OAuth credential set.
	if c.Imgur.AccessToken != "" && (c.Imgur.ClientSecret == "" || c.Imgur.RefreshToken == "") {
		return fmt.Errorf("%w: imgur access_token set but client_secret or refresh_token missing", ErrConfiguration)
	}
	if c.Scheduler.TokenRefreshEnabled && c.Imgur.AccessToken == "" {
		return fmt.Errorf("%w: token refresh scheduled but imgur is not in bearer mode", ErrConfiguration)
	}
	if c.Scheduler.TokenRefreshEnabled && c.Scheduler.TokenRefreshSchedule == "" {
		return fmt.Errorf("%w: token refresh scheduled but schedule is empty", ErrConfiguration)
	}

	return nil
}

// SplitList splits a comma-separated list into trimmed, non-empty entries.
func SplitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
