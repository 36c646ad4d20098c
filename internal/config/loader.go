package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load loads and validates configuration from:
// 1. Default values
// 2. config.yaml file (optional)
// 3. BOT_* environment variables
func Load() (*Config, error) {
	setDefaults()

	if err := loadConfig(); err != nil {
		return nil, fmt.Errorf("%w: failed to load config file: %v", ErrConfiguration, err)
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadConfig initializes and loads the configuration using viper
func loadConfig() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	// Setup environment variables
	viper.SetEnvPrefix("BOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Allow missing config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %v", err)
		}
		// Config file not found is okay, we'll use defaults
	}

	return nil
}

// setDefaults sets default values for optional configuration parameters.
// Secrets default to empty so their keys are known to viper and can be
// supplied via environment variables alone.
func setDefaults() {
	// Log defaults
	viper.SetDefault("log.level", DefaultLogLevel)
	viper.SetDefault("log.json", DefaultLogJSON)

	// Server defaults
	viper.SetDefault("server.addr", DefaultServerAddr)
	viper.SetDefault("server.webhook_path", DefaultWebhookPath)
	viper.SetDefault("server.read_timeout", DefaultReadTimeout)
	viper.SetDefault("server.write_timeout", DefaultWriteTimeout)
	viper.SetDefault("server.shutdown_timeout", DefaultShutdownTimeout)

	// LINE channel credentials
	viper.SetDefault("line.channel_token", "")
	viper.SetDefault("line.channel_secret", "")

	// Allow-lists
	viper.SetDefault("auth.allowed_users", "")
	viper.SetDefault("auth.ai_allowed_users", "")

	// ThingSpeak defaults
	viper.SetDefault("thingspeak.base_url", DefaultThingSpeakBaseURL)
	viper.SetDefault("thingspeak.timeout", DefaultThingSpeakTimeout)

	// Chart defaults
	viper.SetDefault("chart.timezone", DefaultChartTimezone)
	viper.SetDefault("chart.width", DefaultChartWidth)
	viper.SetDefault("chart.height", DefaultChartHeight)
	viper.SetDefault("chart.thumbnail_size", DefaultChartThumbnailSize)

	// Imgur defaults
	viper.SetDefault("imgur.client_id", "")
	viper.SetDefault("imgur.client_secret", "")
	viper.SetDefault("imgur.access_token", "")
	viper.SetDefault("imgur.refresh_token", "")
	viper.SetDefault("imgur.upload_url", DefaultImgurUploadURL)
	viper.SetDefault("imgur.token_url", DefaultImgurTokenURL)
	viper.SetDefault("imgur.timeout", DefaultImgurTimeout)

	// OpenAI defaults
	viper.SetDefault("openai.api_key", "")
	viper.SetDefault("openai.base_url", DefaultOpenAIBaseURL)
	viper.SetDefault("openai.model", DefaultOpenAIModel)
	viper.SetDefault("openai.temperature", DefaultOpenAITemperature)
	viper.SetDefault("openai.instruction", DefaultOpenAIInstruction)
	viper.SetDefault("openai.timeout", DefaultOpenAITimeout)

	// Database defaults
	viper.SetDefault("database.path", DefaultDBPath)

	// Message defaults
	viper.SetDefault("messages.not_authorized", DefaultMessages.NotAuthorized)
	viper.SetDefault("messages.user_not_found", DefaultMessages.UserNotFound)
	viper.SetDefault("messages.no_data", DefaultMessages.NoData)
	viper.SetDefault("messages.bad_chart_request", DefaultMessages.BadChartRequest)
	viper.SetDefault("messages.general_error", DefaultMessages.GeneralError)

	// Scheduler defaults
	viper.SetDefault("scheduler.token_refresh_enabled", false)
	viper.SetDefault("scheduler.token_refresh_schedule", DefaultTokenRefreshSchedule)
}
