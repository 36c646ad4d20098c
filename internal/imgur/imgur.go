// Package imgur uploads chart images to the Imgur API and returns their
// public links. Two authentication strategies are provided: anonymous
// Client-ID uploads and OAuth Bearer uploads with refresh-on-expiry.
package imgur

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/ycwu/pulseline/internal/config"
)

// UploadResult carries the public links of an uploaded chart and its thumbnail.
type UploadResult struct {
	FullURL      string
	ThumbnailURL string
}

// Uploader uploads a rendered chart and its thumbnail and returns their links.
type Uploader interface {
	UploadPair(ctx context.Context, chartPNG, thumbnailPNG []byte) (*UploadResult, error)
}

// TokenStore persists refreshed token pairs so they survive restarts.
type TokenStore interface {
	SaveToken(ctx context.Context, accessToken, refreshToken string) error
}

type uploadResponse struct {
	Data struct {
		Link string `json:"link"`
	} `json:"data"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// upload posts one image as a multipart form and returns its public link.
// The HTTP status is returned alongside the error so callers can distinguish
// an expired token (401) from other failures.
func upload(ctx context.Context, client *http.Client, uploadURL, authHeader, name string, img []byte) (string, int, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", name)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(img); err != nil {
		return "", 0, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", 0, fmt.Errorf("failed to finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, &body)
	if err != nil {
		return "", 0, fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Authorization", authHeader)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("failed to read upload response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", resp.StatusCode, fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed uploadResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", resp.StatusCode, fmt.Errorf("failed to parse upload response: %w", err)
	}
	if parsed.Data.Link == "" {
		return "", resp.StatusCode, fmt.Errorf("upload response missing link")
	}
	return parsed.Data.Link, resp.StatusCode, nil
}

// ClientIDUploader uploads anonymously with a static Client-ID header.
type ClientIDUploader struct {
	httpClient *http.Client
	uploadURL  string
	clientID   string
	logger     *slog.Logger
}

// NewClientIDUploader creates an anonymous uploader from the configuration.
func NewClientIDUploader(cfg config.ImgurConfig, logger *slog.Logger) *ClientIDUploader {
	return &ClientIDUploader{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		uploadURL:  cfg.UploadURL,
		clientID:   cfg.ClientID,
		logger:     logger.With("component", "imgur_uploader"),
	}
}

// UploadPair uploads the chart and then the thumbnail. If the chart upload
// fails the thumbnail is never attempted and no partial result is returned.
func (u *ClientIDUploader) UploadPair(ctx context.Context, chartPNG, thumbnailPNG []byte) (*UploadResult, error) {
	auth := "Client-ID " + u.clientID

	full, _, err := upload(ctx, u.httpClient, u.uploadURL, auth, "chart.png", chartPNG)
	if err != nil {
		return nil, fmt.Errorf("chart upload: %w", err)
	}
	thumb, _, err := upload(ctx, u.httpClient, u.uploadURL, auth, "pre_chart.png", thumbnailPNG)
	if err != nil {
		return nil, fmt.Errorf("thumbnail upload: %w", err)
	}

	u.logger.DebugContext(ctx, "images uploaded", "full_url", full, "thumbnail_url", thumb)
	return &UploadResult{FullURL: full, ThumbnailURL: thumb}, nil
}

// Credentials is the process-wide holder for the OAuth token pair. Reads and
// the read-then-replace refresh sequence are serialized by its mutex so two
// in-flight requests cannot race a refresh with a stale refresh token.
type Credentials struct {
	mu           sync.Mutex
	clientID     string
	clientSecret string
	accessToken  string
	refreshToken string
}

// NewCredentials creates a credential holder seeded with the given pair.
func NewCredentials(clientID, clientSecret, accessToken, refreshToken string) *Credentials {
	return &Credentials{
		clientID:     clientID,
		clientSecret: clientSecret,
		accessToken:  accessToken,
		refreshToken: refreshToken,
	}
}

// AccessToken returns the current access token.
func (c *Credentials) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// Replace swaps in a new token pair, e.g. one restored from the store.
func (c *Credentials) Replace(accessToken, refreshToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = accessToken
	c.refreshToken = refreshToken
}

// BearerUploader uploads with an OAuth bearer token. A 401 triggers a single
// token refresh and a retry of the failed upload only, so an image that
// already uploaded successfully is never uploaded twice.
type BearerUploader struct {
	httpClient *http.Client
	uploadURL  string
	tokenURL   string
	creds      *Credentials
	store      TokenStore // optional; nil disables persistence
	logger     *slog.Logger
}

// NewBearerUploader creates an authenticated uploader from the configuration.
func NewBearerUploader(cfg config.ImgurConfig, creds *Credentials, store TokenStore, logger *slog.Logger) *BearerUploader {
	return &BearerUploader{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		uploadURL:  cfg.UploadURL,
		tokenURL:   cfg.TokenURL,
		creds:      creds,
		store:      store,
		logger:     logger.With("component", "imgur_uploader"),
	}
}

// UploadPair uploads the chart and then the thumbnail, refreshing the token
// at most once per image on 401. If the chart upload fails the thumbnail is
// never attempted.
func (u *BearerUploader) UploadPair(ctx context.Context, chartPNG, thumbnailPNG []byte) (*UploadResult, error) {
	full, err := u.uploadWithRefresh(ctx, "chart.png", chartPNG)
	if err != nil {
		return nil, fmt.Errorf("chart upload: %w", err)
	}
	thumb, err := u.uploadWithRefresh(ctx, "pre_chart.png", thumbnailPNG)
	if err != nil {
		return nil, fmt.Errorf("thumbnail upload: %w", err)
	}

	u.logger.DebugContext(ctx, "images uploaded", "full_url", full, "thumbnail_url", thumb)
	return &UploadResult{FullURL: full, ThumbnailURL: thumb}, nil
}

func (u *BearerUploader) uploadWithRefresh(ctx context.Context, name string, img []byte) (string, error) {
	token := u.creds.AccessToken()

	link, status, err := upload(ctx, u.httpClient, u.uploadURL, "Bearer "+token, name, img)
	if err == nil {
		return link, nil
	}
	if status != http.StatusUnauthorized {
		return "", err
	}

	u.logger.InfoContext(ctx, "access token rejected, refreshing", "image", name)
	token, err = u.refresh(ctx, token)
	if err != nil {
		return "", fmt.Errorf("token refresh failed: %w", err)
	}

	link, _, err = upload(ctx, u.httpClient, u.uploadURL, "Bearer "+token, name, img)
	if err != nil {
		return "", err
	}
	return link, nil
}

// Refresh exchanges the refresh token for a new pair unconditionally. It is
// used by the scheduled proactive refresh job.
func (u *BearerUploader) Refresh(ctx context.Context) error {
	_, err := u.refresh(ctx, u.creds.AccessToken())
	return err
}

// refresh performs the refresh round trip for the given stale access token.
// If another request already refreshed while this one waited on the mutex,
// the fresh token is returned without a second round trip.
func (u *BearerUploader) refresh(ctx context.Context, stale string) (string, error) {
	u.creds.mu.Lock()
	defer u.creds.mu.Unlock()

	if u.creds.accessToken != stale {
		return u.creds.accessToken, nil
	}

	form := url.Values{}
	form.Set("client_id", u.creds.clientID)
	form.Set("client_secret", u.creds.clientSecret)
	form.Set("refresh_token", u.creds.refreshToken)
	form.Set("grant_type", "refresh_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if tr.AccessToken == "" || tr.RefreshToken == "" {
		return "", fmt.Errorf("token response missing token pair")
	}

	u.creds.accessToken = tr.AccessToken
	u.creds.refreshToken = tr.RefreshToken

	if u.store != nil {
		if err := u.store.SaveToken(ctx, tr.AccessToken, tr.RefreshToken); err != nil {
			// The in-memory pair is already valid; losing persistence only
			// costs a refresh after the next restart.
			u.logger.ErrorContext(ctx, "failed to persist refreshed token pair", "error", err)
		}
	}

	u.logger.InfoContext(ctx, "token pair refreshed")
	return tr.AccessToken, nil
}
