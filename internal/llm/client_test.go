package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aimerfeng/scribe/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(baseURL string) *config.LLMConfig {
	return &config.LLMConfig{
		Provider:  "groq",
		BaseURL:   baseURL,
		APIKey:    "test-key",
		Model:     "llama3-8b-8192",
		MaxTokens: 150,
		Timeout:   2 * time.Second,
	}
}

func TestComplete_SendsChatRequest(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model": "llama3-8b-8192",
			"choices": [{"message": {"role": "assistant", "content": "Once upon a time"}}],
			"usage": {"prompt_tokens": 7, "completion_tokens": 4}
		}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL+"/"), nil)
	completion, err := client.Complete(context.Background(), "Write a story")
	require.NoError(t, err)

	assert.Equal(t, "Once upon a time", completion.Text)
	assert.Equal(t, 4, completion.CompletionTokens)
	assert.Equal(t, "llama3-8b-8192", got.Model)
	assert.Equal(t, 150, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "Write a story", got.Messages[0].Content)
}

func TestComplete_EmptyPrompt(t *testing.T) {
	client := NewClient(testConfig("http://127.0.0.1:1"), nil)
	_, err := client.Complete(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyPrompt)
}

func TestComplete_UpstreamFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"provider error body", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"error": {"message": "model overloaded", "type": "server_error"}}`))
		}},
		{"no choices", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices": []}`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			client := NewClient(testConfig(srv.URL), nil)
			_, err := client.Complete(context.Background(), "hi")
			assert.ErrorIs(t, err, ErrUpstreamError)
		})
	}
}

func TestComplete_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Timeout = 50 * time.Millisecond
	client := NewClient(cfg, nil)

	_, err := client.Complete(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrUpstreamTimeout)
}

func TestComplete_BreakerOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), &BreakerConfig{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 2,
	})

	for i := 0; i < 2; i++ {
		_, err := client.Complete(context.Background(), "hi")
		require.ErrorIs(t, err, ErrUpstreamError)
	}

	_, err := client.Complete(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load(), "open circuit must not reach the provider")
	assert.True(t, client.Breaker().IsOpen())
	assert.Equal(t, BreakerStateOpen, client.Breaker().Status().State)
}

func TestComplete_CallerCancelDoesNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if len(req.Messages) == 1 && req.Messages[0].Content == "slow" {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "ok"}}]}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Timeout = 5 * time.Second
	client := NewClient(cfg, &BreakerConfig{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 5,
	})

	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		timer := time.AfterFunc(20*time.Millisecond, cancel)

		_, err := client.Complete(ctx, "slow")
		timer.Stop()
		cancel()

		require.ErrorIs(t, err, context.Canceled, "call %d", i)
		assert.NotErrorIs(t, err, ErrUpstreamError)
		assert.Equal(t, "canceled", ErrorType(err))
	}

	assert.False(t, client.Breaker().IsOpen(), "client disconnects must not open the circuit")
	assert.Equal(t, uint32(0), client.Breaker().Status().TotalFailure)

	completion, err := client.Complete(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", completion.Text)
}
