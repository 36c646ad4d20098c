package imgur_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ycwu/pulseline/internal/config"
	"github.com/ycwu/pulseline/internal/imgur"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(uploadURL, tokenURL string) config.ImgurConfig {
	return config.ImgurConfig{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		UploadURL:    uploadURL,
		TokenURL:     tokenURL,
		Timeout:      5 * time.Second,
	}
}

// uploadRecorder counts uploads per filename and controls per-request status.
type uploadRecorder struct {
	mu      sync.Mutex
	uploads []string
	auths   []string
	// respond decides the status code for each request, by call index and
	// Authorization header.
	respond func(call int, auth string) int
}

func (rec *uploadRecorder) handler(t *testing.T) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("failed to parse multipart form: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, header, err := r.FormFile("image")
		if err != nil {
			t.Errorf("missing image part: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		auth := r.Header.Get("Authorization")
		rec.mu.Lock()
		call := len(rec.uploads)
		rec.uploads = append(rec.uploads, header.Filename)
		rec.auths = append(rec.auths, auth)
		rec.mu.Unlock()

		status := http.StatusOK
		if rec.respond != nil {
			status = rec.respond(call, auth)
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			fmt.Fprint(w, `{"data": {"error": "nope"}, "success": false}`)
			return
		}
		fmt.Fprintf(w, `{"data": {"link": "https://i.example/%s"}, "success": true}`, header.Filename)
	}
}

func (rec *uploadRecorder) countOf(name string) int {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	n := 0
	for _, u := range rec.uploads {
		if u == name {
			n++
		}
	}
	return n
}

func TestClientIDUploadPair(t *testing.T) {
	t.Parallel()

	rec := &uploadRecorder{}
	server := httptest.NewServer(rec.handler(t))
	defer server.Close()

	u := imgur.NewClientIDUploader(testConfig(server.URL, server.URL+"/token"), discardLogger())
	result, err := u.UploadPair(context.Background(), []byte("chart-bytes"), []byte("thumb-bytes"))
	if err != nil {
		t.Fatalf("UploadPair returned error: %v", err)
	}

	if result.FullURL != "https://i.example/chart.png" {
		t.Errorf("FullURL = %q", result.FullURL)
	}
	if result.ThumbnailURL != "https://i.example/pre_chart.png" {
		t.Errorf("ThumbnailURL = %q", result.ThumbnailURL)
	}
	for _, auth := range rec.auths {
		if auth != "Client-ID test-client-id" {
			t.Errorf("Authorization = %q, want Client-ID header", auth)
		}
	}
}

// A failed chart upload must abort the operation before the thumbnail is
// attempted.
func TestClientIDUploadAbortsOnFailure(t *testing.T) {
	t.Parallel()

	rec := &uploadRecorder{respond: func(int, string) int { return http.StatusForbidden }}
	server := httptest.NewServer(rec.handler(t))
	defer server.Close()

	u := imgur.NewClientIDUploader(testConfig(server.URL, server.URL+"/token"), discardLogger())
	_, err := u.UploadPair(context.Background(), []byte("chart-bytes"), []byte("thumb-bytes"))
	if err == nil {
		t.Fatal("UploadPair expected error, got nil")
	}

	if got := len(rec.uploads); got != 1 {
		t.Fatalf("upload attempts = %d, want 1 (thumbnail must not be attempted)", got)
	}
}

// A 401 on the first image followed by a successful refresh must result in
// both images uploaded exactly once each, with the refreshed pair in memory
// and persisted.
func TestBearerUploadRefreshOn401(t *testing.T) {
	t.Parallel()

	rec := &uploadRecorder{respond: func(call int, _ string) int {
		if call == 0 {
			return http.StatusUnauthorized
		}
		return http.StatusOK
	}}

	mux := http.NewServeMux()
	var tokenCalls int
	var tokenMu sync.Mutex
	mux.Handle("/upload", rec.handler(t))
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse token form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q, want refresh_token", got)
		}
		if got := r.PostForm.Get("refresh_token"); got != "old-refresh" {
			t.Errorf("refresh_token = %q, want old-refresh", got)
		}
		if got := r.PostForm.Get("client_id"); got != "test-client-id" {
			t.Errorf("client_id = %q, want test-client-id", got)
		}
		tokenMu.Lock()
		tokenCalls++
		tokenMu.Unlock()
		fmt.Fprint(w, `{"access_token": "new-access", "refresh_token": "new-refresh"}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	creds := imgur.NewCredentials("test-client-id", "test-client-secret", "old-access", "old-refresh")
	store := &fakeStore{}
	u := imgur.NewBearerUploader(testConfig(server.URL+"/upload", server.URL+"/token"), creds, store, discardLogger())

	result, err := u.UploadPair(context.Background(), []byte("chart-bytes"), []byte("thumb-bytes"))
	if err != nil {
		t.Fatalf("UploadPair returned error: %v", err)
	}
	if result.FullURL == "" || result.ThumbnailURL == "" {
		t.Fatalf("incomplete result: %+v", result)
	}

	if got := rec.countOf("chart.png"); got != 2 {
		t.Errorf("chart.png attempts = %d, want 2 (401 then retry)", got)
	}
	if got := rec.countOf("pre_chart.png"); got != 1 {
		t.Errorf("pre_chart.png attempts = %d, want exactly 1 (no duplicate upload)", got)
	}
	if tokenCalls != 1 {
		t.Errorf("token refresh calls = %d, want 1", tokenCalls)
	}

	// The retried and subsequent uploads must carry the refreshed token.
	if got := rec.auths[len(rec.auths)-1]; got != "Bearer new-access" {
		t.Errorf("last Authorization = %q, want refreshed bearer token", got)
	}
	if got := creds.AccessToken(); got != "new-access" {
		t.Errorf("in-memory access token = %q, want new-access", got)
	}
	if store.access != "new-access" || store.refresh != "new-refresh" {
		t.Errorf("persisted pair = %q/%q, want new-access/new-refresh", store.access, store.refresh)
	}
}

// Two requests whose uploads are rejected with the same stale token must
// result in exactly one refresh round trip; the loser of the race reuses the
// pair the winner fetched.
func TestBearerRefreshSingleFlight(t *testing.T) {
	t.Parallel()

	// Hold both stale-token uploads at the server until each request has one
	// in flight, so both observe the 401 before either can refresh.
	var barrier sync.WaitGroup
	barrier.Add(2)
	rec := &uploadRecorder{respond: func(_ int, auth string) int {
		if auth == "Bearer old-access" {
			barrier.Done()
			barrier.Wait()
			return http.StatusUnauthorized
		}
		return http.StatusOK
	}}

	mux := http.NewServeMux()
	var tokenCalls int
	var tokenMu sync.Mutex
	mux.Handle("/upload", rec.handler(t))
	mux.HandleFunc("/token", func(w http.ResponseWriter, _ *http.Request) {
		tokenMu.Lock()
		tokenCalls++
		tokenMu.Unlock()
		fmt.Fprint(w, `{"access_token": "new-access", "refresh_token": "new-refresh"}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	creds := imgur.NewCredentials("test-client-id", "test-client-secret", "old-access", "old-refresh")
	u := imgur.NewBearerUploader(testConfig(server.URL+"/upload", server.URL+"/token"), creds, nil, discardLogger())

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = u.UploadPair(context.Background(), []byte("chart-bytes"), []byte("thumb-bytes"))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("UploadPair %d returned error: %v", i, err)
		}
	}
	if tokenCalls != 1 {
		t.Errorf("token refresh calls = %d, want 1 (loser must reuse the fresh pair)", tokenCalls)
	}
	if got := creds.AccessToken(); got != "new-access" {
		t.Errorf("access token = %q, want new-access", got)
	}
	// Each request retries its chart once after the 401; thumbnails go through
	// first try with the fresh token.
	if got := rec.countOf("chart.png"); got != 4 {
		t.Errorf("chart.png attempts = %d, want 4", got)
	}
	if got := rec.countOf("pre_chart.png"); got != 2 {
		t.Errorf("pre_chart.png attempts = %d, want 2", got)
	}
}

// A failed refresh surfaces as an error, never as a silent empty result.
func TestBearerUploadRefreshFailure(t *testing.T) {
	t.Parallel()

	rec := &uploadRecorder{respond: func(int, string) int { return http.StatusUnauthorized }}

	mux := http.NewServeMux()
	mux.Handle("/upload", rec.handler(t))
	mux.HandleFunc("/token", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"data": {"error": "invalid refresh token"}}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	creds := imgur.NewCredentials("test-client-id", "test-client-secret", "old-access", "old-refresh")
	u := imgur.NewBearerUploader(testConfig(server.URL+"/upload", server.URL+"/token"), creds, nil, discardLogger())

	_, err := u.UploadPair(context.Background(), []byte("chart-bytes"), []byte("thumb-bytes"))
	if err == nil {
		t.Fatal("UploadPair expected error after refresh failure, got nil")
	}
	if got := creds.AccessToken(); got != "old-access" {
		t.Errorf("access token = %q, want unchanged old-access", got)
	}
}

type fakeStore struct {
	mu      sync.Mutex
	access  string
	refresh string
}

func (f *fakeStore) SaveToken(_ context.Context, accessToken, refreshToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.access = accessToken
	f.refresh = refreshToken
	return nil
}
