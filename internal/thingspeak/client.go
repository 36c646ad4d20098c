// Package thingspeak implements a read-only client for the ThingSpeak channel
// feed API. It fetches a channel's feed as two index-correspondent sequences
// of timestamps and field values.
package thingspeak

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/ycwu/pulseline/internal/config"
)

// ErrNotFound is returned when ThingSpeak reports an unknown channel or a
// read key that does not grant access to it. Callers must check for it with
// errors.Is before using the returned series.
var ErrNotFound = errors.New("channel not found")

// Series holds a channel feed as parallel sequences. Timestamps[i] is the
// creation time of Values[i]; both always have equal length and keep the
// upstream (chronological, oldest first) order.
type Series struct {
	Timestamps []string
	Values     []string
}

type feedEntry struct {
	CreatedAt string `json:"created_at"`
	EntryID   int    `json:"entry_id"`
	Field1    string `json:"field1"`
}

type feedResponse struct {
	Error string      `json:"error"`
	Feeds []feedEntry `json:"feeds"`
}

// Client fetches channel feeds from a ThingSpeak-compatible endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a feed client for the configured ThingSpeak base URL.
func NewClient(cfg config.ThingSpeakConfig, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		logger:     logger.With("component", "thingspeak_client"),
	}
}

// FetchFeed retrieves the feed for a channel using its read key. It returns
// ErrNotFound when the service reports an unknown channel, otherwise the
// parsed series in service-provided order.
func (c *Client) FetchFeed(ctx context.Context, channelID, readKey string) (*Series, error) {
	reqURL := fmt.Sprintf("%s/channels/%s/feed.json?api_key=%s",
		c.baseURL, url.PathEscape(channelID), url.QueryEscape(readKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build feed request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed response: %w", err)
	}

	var feed feedResponse
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to parse feed response (status %d): %w", resp.StatusCode, err)
	}

	// ThingSpeak reports unknown channels with an error body, not a bare 404.
	if feed.Error == "Not Found" {
		c.logger.InfoContext(ctx, "channel not found", "channel_id", channelID)
		return nil, ErrNotFound
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed request failed with status %d: %s", resp.StatusCode, string(body))
	}

	series := &Series{
		Timestamps: make([]string, 0, len(feed.Feeds)),
		Values:     make([]string, 0, len(feed.Feeds)),
	}
	for _, entry := range feed.Feeds {
		series.Timestamps = append(series.Timestamps, entry.CreatedAt)
		series.Values = append(series.Values, entry.Field1)
	}

	c.logger.DebugContext(ctx, "feed fetched", "channel_id", channelID, "entries", len(feed.Feeds))
	return series, nil
}
