package bot

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/line/line-bot-sdk-go/v7/linebot"
)

// eventTimeout bounds the work done for one message event (feed fetch,
// rendering, uploads, completion, reply).
const eventTimeout = 2 * time.Minute

// Replier sends the dispatcher's reply back through the messaging platform.
type Replier interface {
	ReplyText(ctx context.Context, replyToken, text string) error
	ReplyImage(ctx context.Context, replyToken, originalURL, previewURL string) error
}

// LineReplier sends replies through the LINE Messaging API.
type LineReplier struct {
	client *linebot.Client
}

// NewLineReplier wraps a LINE client as a Replier.
func NewLineReplier(client *linebot.Client) *LineReplier {
	return &LineReplier{client: client}
}

// ReplyText sends a text message reply.
func (r *LineReplier) ReplyText(ctx context.Context, replyToken, text string) error {
	_, err := r.client.ReplyMessage(replyToken, linebot.NewTextMessage(text)).WithContext(ctx).Do()
	return err
}

// ReplyImage sends an image message reply with original and preview URLs.
func (r *LineReplier) ReplyImage(ctx context.Context, replyToken, originalURL, previewURL string) error {
	_, err := r.client.ReplyMessage(replyToken, linebot.NewImageMessage(originalURL, previewURL)).WithContext(ctx).Do()
	return err
}

// Handler is the inbound webhook endpoint. It verifies the request signature,
// acknowledges the webhook immediately, and processes each text message event
// off the accept path so slow external calls cannot stall LINE's delivery
// window.
type Handler struct {
	logger     *slog.Logger
	lineClient *linebot.Client
	replier    Replier
	dispatcher *Dispatcher
}

// NewHandler creates the webhook handler.
func NewHandler(logger *slog.Logger, lineClient *linebot.Client, replier Replier, dispatcher *Dispatcher) *Handler {
	return &Handler{
		logger:     logger.With("component", "webhook_handler"),
		lineClient: lineClient,
		replier:    replier,
		dispatcher: dispatcher,
	}
}

// HandleWebhook handles POSTs from the LINE platform. A bad signature is
// rejected with 400 before any event is processed.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	events, err := h.lineClient.ParseRequest(r)
	if err != nil {
		if errors.Is(err, linebot.ErrInvalidSignature) {
			h.logger.Warn("webhook signature verification failed")
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to parse webhook request", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	for _, event := range events {
		if event.Type != linebot.EventTypeMessage {
			continue
		}
		message, ok := event.Message.(*linebot.TextMessage)
		if !ok {
			continue
		}
		go h.handleTextMessage(event, message.Text)
	}

	w.WriteHeader(http.StatusOK)
}

// handleTextMessage dispatches one message event and sends the reply. It runs
// detached from the webhook request, so it carries its own deadline.
func (h *Handler) handleTextMessage(event *linebot.Event, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	var userID string
	if event.Source != nil {
		userID = event.Source.UserID
	}

	reply := h.dispatcher.Dispatch(ctx, userID, text)

	var err error
	if reply.IsImage() {
		err = h.replier.ReplyImage(ctx, event.ReplyToken, reply.ImageURL, reply.PreviewURL)
	} else {
		err = h.replier.ReplyText(ctx, event.ReplyToken, reply.Text)
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to send reply", "user_id", userID, "error", err)
	}
}

// HandleHealth is a liveness probe target.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
