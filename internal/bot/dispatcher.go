package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/ycwu/pulseline/internal/chart"
	"github.com/ycwu/pulseline/internal/config"
	"github.com/ycwu/pulseline/internal/imgur"
	"github.com/ycwu/pulseline/internal/openai"
	"github.com/ycwu/pulseline/internal/thingspeak"
)

// Command prefixes. These are matched explicitly against the start of the
// message; the chart prefix is an exact byte prefix, the ai prefix is
// case-insensitive.
const (
	chartPrefix = "圖表:"
	aiPrefix    = "ai:"
)

// Reply is the single outbound reply the dispatcher produces for one accepted
// message: either a text reply or an image reply carrying both hosted URLs.
type Reply struct {
	Text       string
	ImageURL   string
	PreviewURL string
}

func textReply(text string) Reply {
	return Reply{Text: text}
}

func imageReply(full, preview string) Reply {
	return Reply{ImageURL: full, PreviewURL: preview}
}

// IsImage reports whether the reply carries hosted image URLs.
func (r Reply) IsImage() bool {
	return r.ImageURL != ""
}

type feedFetcher interface {
	FetchFeed(ctx context.Context, channelID, readKey string) (*thingspeak.Series, error)
}

type timeLocalizer interface {
	Localize(timestamps []string) ([]string, error)
}

type chartRenderer interface {
	Render(labels []string, values []string) ([]byte, error)
	Thumbnail(chartPNG []byte) ([]byte, error)
}

// Dispatcher routes an incoming message to the chart, AI, or echo flow after
// the authorization gate. It is the only component that produces user-visible
// replies; the leaves below it only return values and errors.
type Dispatcher struct {
	logger    *slog.Logger
	messages  config.MessagesConfig
	allowed   map[string]struct{}
	aiAllowed map[string]struct{}
	fetcher   feedFetcher
	localizer timeLocalizer
	renderer  chartRenderer
	uploader  imgur.Uploader
	completer openai.Completer
}

// NewDispatcher creates a dispatcher. The allow-lists come from the
// comma-separated auth configuration and are immutable after startup.
func NewDispatcher(
	logger *slog.Logger,
	cfg *config.Config,
	fetcher feedFetcher,
	localizer timeLocalizer,
	renderer chartRenderer,
	uploader imgur.Uploader,
	completer openai.Completer,
) *Dispatcher {
	allowed := make(map[string]struct{})
	for _, id := range config.SplitList(cfg.Auth.AllowedUsers) {
		allowed[id] = struct{}{}
	}
	aiAllowed := make(map[string]struct{})
	for _, id := range config.SplitList(cfg.Auth.AIAllowedUsers) {
		aiAllowed[id] = struct{}{}
	}

	return &Dispatcher{
		logger:    logger.With("component", "dispatcher"),
		messages:  cfg.Messages,
		allowed:   allowed,
		aiAllowed: aiAllowed,
		fetcher:   fetcher,
		localizer: localizer,
		renderer:  renderer,
		uploader:  uploader,
		completer: completer,
	}
}

// Dispatch handles one incoming message and returns exactly one reply.
// Unauthorized senders get the fixed not-authorized text and nothing else
// runs. Every downstream failure is converted into a user-visible reply here.
func (d *Dispatcher) Dispatch(ctx context.Context, userID, text string) Reply {
	if _, ok := d.allowed[userID]; !ok {
		d.logger.WarnContext(ctx, "unauthorized sender", "user_id", userID)
		return textReply(d.messages.NotAuthorized)
	}

	switch {
	case strings.HasPrefix(text, chartPrefix):
		return d.chartFlow(ctx, userID, strings.TrimPrefix(text, chartPrefix))

	case hasAIPrefix(text):
		if _, ok := d.aiAllowed[userID]; ok {
			return d.aiFlow(ctx, text[len(aiPrefix):])
		}
		// Senders outside the AI allow-list fall through to echo, with no
		// denial reply.
		d.logger.InfoContext(ctx, "ai request from sender outside ai allow-list, echoing", "user_id", userID)
		return textReply(text)

	default:
		return textReply(text)
	}
}

func hasAIPrefix(text string) bool {
	return len(text) >= len(aiPrefix) && strings.EqualFold(text[:len(aiPrefix)], aiPrefix)
}

// chartFlow runs fetch -> localize -> render -> thumbnail -> upload and
// builds the image reply.
func (d *Dispatcher) chartFlow(ctx context.Context, userID, args string) Reply {
	channelID, readKey, ok := strings.Cut(args, ",")
	if !ok || channelID == "" || readKey == "" {
		return textReply(d.messages.BadChartRequest)
	}

	series, err := d.fetcher.FetchFeed(ctx, channelID, readKey)
	if err != nil {
		if errors.Is(err, thingspeak.ErrNotFound) {
			return textReply(d.messages.UserNotFound)
		}
		d.logger.ErrorContext(ctx, "feed fetch failed", "user_id", userID, "channel_id", channelID, "error", err)
		return textReply(d.messages.GeneralError)
	}

	labels, err := d.localizer.Localize(series.Timestamps)
	if err != nil {
		d.logger.ErrorContext(ctx, "timestamp conversion failed", "channel_id", channelID, "error", err)
		return textReply(d.messages.GeneralError)
	}

	chartPNG, err := d.renderer.Render(labels, series.Values)
	if err != nil {
		if errors.Is(err, chart.ErrNoData) {
			return textReply(d.messages.NoData)
		}
		d.logger.ErrorContext(ctx, "chart rendering failed", "channel_id", channelID, "error", err)
		return textReply(d.messages.GeneralError)
	}

	thumbPNG, err := d.renderer.Thumbnail(chartPNG)
	if err != nil {
		d.logger.ErrorContext(ctx, "thumbnail rendering failed", "channel_id", channelID, "error", err)
		return textReply(d.messages.GeneralError)
	}

	result, err := d.uploader.UploadPair(ctx, chartPNG, thumbPNG)
	if err != nil {
		d.logger.ErrorContext(ctx, "image upload failed", "channel_id", channelID, "error", err)
		return textReply(d.messages.GeneralError)
	}

	d.logger.InfoContext(ctx, "chart delivered", "channel_id", channelID, "entries", len(series.Values))
	return imageReply(result.FullURL, result.ThumbnailURL)
}

// aiFlow forwards the text as a single-turn completion.
func (d *Dispatcher) aiFlow(ctx context.Context, userText string) Reply {
	answer, err := d.completer.Complete(ctx, userText)
	if err != nil {
		d.logger.ErrorContext(ctx, "completion failed", "error", err)
		return textReply(d.messages.GeneralError)
	}
	return textReply(answer)
}
