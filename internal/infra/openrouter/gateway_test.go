package openrouter

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asfc/doc-chat/internal/core/answer"
)

func gatewayLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func completionBody(content string) map[string]any {
	return map[string]any{
		"id":     "chatcmpl-test",
		"object": "chat.completion",
		"model":  "test-model",
		"choices": []map[string]any{
			{
				"index":   0,
				"message": map[string]any{"role": "assistant", "content": content},
			},
		},
	}
}

func errorBody(message string) map[string]any {
	return map[string]any{
		"error": map[string]any{"message": message, "type": "test_error"},
	}
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// newTestGateway は待機時間を極小化したテスト用 Gateway を返す
func newTestGateway(t *testing.T, baseURL string, opts ...GatewayOption) *Gateway {
	t.Helper()
	base := []GatewayOption{
		WithRateLimitWait(time.Millisecond),
		WithBackoffBase(time.Millisecond),
		WithGatewayLogger(gatewayLogger()),
	}
	return NewGateway("test-key", baseURL, "test-model", NewPacer(time.Millisecond), append(base, opts...)...)
}

func askMessages() []answer.Message {
	return []answer.Message{
		{Role: answer.RoleSystem, Content: "system prompt"},
		{Role: answer.RoleUser, Content: "question"},
	}
}

func TestGateway_CompleteSuccess(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/chat/completions", r.URL.Path)

		var body struct {
			Model       string  `json:"model"`
			Temperature float64 `json:"temperature"`
			MaxTokens   int     `json:"max_tokens"`
		}
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
			assert.Equal(t, "test-model", body.Model)
			assert.InDelta(t, DefaultTemperature, body.Temperature, 1e-9)
			assert.Equal(t, DefaultMaxTokens, body.MaxTokens)
		}

		writeJSON(w, http.StatusOK, completionBody("the answer"))
	}))
	defer server.Close()

	gw := newTestGateway(t, server.URL)

	got, err := gw.Complete(context.Background(), askMessages())
	require.NoError(t, err)

	assert.Equal(t, "the answer", got)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGateway_CompleteSamplingOptionsOverrideDefaults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Temperature float64 `json:"temperature"`
			MaxTokens   int     `json:"max_tokens"`
		}
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
			assert.InDelta(t, 0.2, body.Temperature, 1e-9)
			assert.Equal(t, 512, body.MaxTokens)
		}
		writeJSON(w, http.StatusOK, completionBody("ok"))
	}))
	defer server.Close()

	gw := newTestGateway(t, server.URL, WithTemperature(0.2), WithMaxTokens(512))

	_, err := gw.Complete(context.Background(), askMessages())
	require.NoError(t, err)
}

func TestGateway_CompleteRetriesRateLimitUntilExhausted(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusTooManyRequests, errorBody("rate limited"))
	}))
	defer server.Close()

	gw := newTestGateway(t, server.URL)

	_, err := gw.Complete(context.Background(), askMessages())
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
	assert.Equal(t, int32(DefaultMaxRetries), calls.Load())
}

func TestGateway_CompleteRecoversAfterRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeJSON(w, http.StatusTooManyRequests, errorBody("rate limited"))
			return
		}
		writeJSON(w, http.StatusOK, completionBody("recovered"))
	}))
	defer server.Close()

	gw := newTestGateway(t, server.URL)

	got, err := gw.Complete(context.Background(), askMessages())
	require.NoError(t, err)

	assert.Equal(t, "recovered", got)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGateway_CompleteAuthFailureIsTerminal(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusUnauthorized, errorBody("invalid api key"))
	}))
	defer server.Close()

	gw := newTestGateway(t, server.URL)

	_, err := gw.Complete(context.Background(), askMessages())
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrTerminal)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGateway_CompleteUnknownModelIsTerminal(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusNotFound, errorBody("model not found"))
	}))
	defer server.Close()

	gw := newTestGateway(t, server.URL)

	_, err := gw.Complete(context.Background(), askMessages())
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrTerminal)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGateway_CompleteEmptyResponseIsTerminal(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"model":   "test-model",
			"choices": []map[string]any{},
		})
	}))
	defer server.Close()

	gw := newTestGateway(t, server.URL)

	_, err := gw.Complete(context.Background(), askMessages())
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrTerminal)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGateway_CompleteHonorsRetryAfterHeader(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, errorBody("rate limited"))
			return
		}
		writeJSON(w, http.StatusOK, completionBody("ok"))
	}))
	defer server.Close()

	gw := newTestGateway(t, server.URL)

	start := time.Now()
	got, err := gw.Complete(context.Background(), askMessages())
	require.NoError(t, err)

	assert.Equal(t, "ok", got)
	// フォールバックの1msではなくヘッダ指示の1秒を待つ
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
}

func TestGateway_CompleteRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(w, http.StatusInternalServerError, errorBody("upstream error"))
			return
		}
		writeJSON(w, http.StatusOK, completionBody("eventually"))
	}))
	defer server.Close()

	gw := newTestGateway(t, server.URL)

	got, err := gw.Complete(context.Background(), askMessages())
	require.NoError(t, err)

	assert.Equal(t, "eventually", got)
	assert.Equal(t, int32(3), calls.Load())
}
