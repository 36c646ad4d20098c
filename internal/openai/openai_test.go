package openai_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ycwu/pulseline/internal/config"
	"github.com/ycwu/pulseline/internal/openai"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(baseURL string) *openai.Client {
	return openai.NewClient(config.OpenAIConfig{
		APIKey:      "test-key",
		BaseURL:     baseURL,
		Model:       "gpt-3.5-turbo-0125",
		Temperature: 1.0,
		Instruction: "如果回答問題盡可能用簡潔的話回復",
		Timeout:     5 * time.Second,
	}, discardLogger())
}

func TestComplete(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if len(req.Messages) != 2 {
			t.Errorf("message count = %d, want 2 (system + user)", len(req.Messages))
		} else {
			if req.Messages[0].Role != "system" || req.Messages[0].Content != "如果回答問題盡可能用簡潔的話回復" {
				t.Errorf("system turn = %+v", req.Messages[0])
			}
			if req.Messages[1].Role != "user" || req.Messages[1].Content != "What is 2+2?" {
				t.Errorf("user turn = %+v", req.Messages[1])
			}
		}

		fmt.Fprint(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "4"}, "finish_reason": "stop"}]
		}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	got, err := newTestClient(server.URL + "/v1").Complete(context.Background(), "What is 2+2?")
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if got != "4" {
		t.Errorf("Complete = %q, want %q unmodified", got, "4")
	}
}

func TestCompleteEmptyMessage(t *testing.T) {
	t.Parallel()

	_, err := newTestClient("http://127.0.0.1:0/v1").Complete(context.Background(), "   \n ")
	if !errors.Is(err, openai.ErrEmptyMessage) {
		t.Fatalf("Complete error = %v, want ErrEmptyMessage", err)
	}
}

func TestCompleteUpstreamFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error": {"message": "overloaded"}}`)
	}))
	defer server.Close()

	if _, err := newTestClient(server.URL + "/v1").Complete(context.Background(), "hi"); err == nil {
		t.Fatal("Complete expected error on 500, got nil")
	}
}
