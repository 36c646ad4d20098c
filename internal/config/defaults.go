package config

import "time"

// Default values for configuration
const (
	// Log defaults
	DefaultLogLevel = "info"
	DefaultLogJSON  = true

	// Server defaults
	DefaultServerAddr      = ":8080"
	DefaultWebhookPath     = "/callback"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultShutdownTimeout = 10 * time.Second

	// ThingSpeak defaults
	DefaultThingSpeakBaseURL = "https://thingspeak.com"
	DefaultThingSpeakTimeout = 15 * time.Second

	// Chart defaults
	DefaultChartTimezone      = "Asia/Taipei"
	DefaultChartWidth         = 1200
	DefaultChartHeight        = 800
	DefaultChartThumbnailSize = 240

	// Imgur defaults
	DefaultImgurUploadURL = "https://api.imgur.com/3/image"
	DefaultImgurTokenURL  = "https://api.imgur.com/oauth2/token"
	DefaultImgurTimeout   = 30 * time.Second

	// OpenAI defaults
	DefaultOpenAIBaseURL     = "https://api.openai.com/v1"
	DefaultOpenAIModel       = "gpt-3.5-turbo-0125"
	DefaultOpenAITemperature = 1.0
	DefaultOpenAITimeout     = 2 * time.Minute
	DefaultOpenAIInstruction = "如果回答問題盡可能用簡潔的話回復"

	// Database defaults
	DefaultDBPath = "pulseline.db"

	// Scheduler defaults. Imgur access tokens live about a month; refreshing
	// nightly keeps the pair well inside its window.
	DefaultTokenRefreshSchedule = "0 4 * * *"
)

// DefaultMessages holds the fixed reply texts sent to users.
var DefaultMessages = MessagesConfig{
	NotAuthorized:   "使用者沒有權限",
	UserNotFound:    "User not found",
	NoData:          "No data in this channel yet",
	BadChartRequest: "請輸入正確格式：圖表:channel_id,read_key",
	GeneralError:    "An error occurred. Please try again later.",
}
