package textgen

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anomaly-dashboard/internal/config"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestOllamaClient_Generate(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(generateResponse{Response: "A bulk order.", Done: true})
	}))
	defer srv.Close()

	client := NewOllamaClient(srv.URL+"/", "tiny-model", srv.Client())
	text, err := client.Generate(context.Background(), "Explain this.", 42)
	require.NoError(t, err)

	assert.Equal(t, "A bulk order.", text)
	assert.Equal(t, "tiny-model", got.Model)
	assert.Equal(t, "Explain this.", got.Prompt)
	assert.False(t, got.Stream)
	assert.Equal(t, 42, got.Options.NumPredict)
}

func TestOllamaClient_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		temporary bool
		isStatus  bool
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "boom", temporary: true, isStatus: true},
		{name: "rate limited", status: http.StatusTooManyRequests, body: "slow down", temporary: true, isStatus: true},
		{name: "model not found", status: http.StatusNotFound, body: "model not found", isStatus: true},
		{name: "model error", status: http.StatusOK, body: `{"error":"out of memory"}`},
		{name: "empty response", status: http.StatusOK, body: `{"response":"  ","done":true}`},
		{name: "invalid json", status: http.StatusOK, body: `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewOllamaClient(srv.URL, "", srv.Client()).Generate(context.Background(), "p", 10)
			require.Error(t, err)

			var statusErr *StatusError
			assert.Equal(t, tt.isStatus, errors.As(err, &statusErr))
			if tt.isStatus {
				assert.Equal(t, tt.status, statusErr.StatusCode)
				assert.Equal(t, tt.temporary, statusErr.Temporary())
				assert.Contains(t, err.Error(), tt.body)
			}
		})
	}
}

func TestOllamaClient_Defaults(t *testing.T) {
	c := NewOllamaClient("", "", nil)
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, DefaultModel, c.model)
	assert.NotNil(t, c.client)
}

func TestTemplateGenerator(t *testing.T) {
	gen := NewTemplateGenerator(rand.New(rand.NewPCG(1, 2)))
	prompt := "Explain why the following sales record is an anomaly: Provide a plausible reason."

	text, err := gen.Generate(context.Background(), prompt, 100)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, prompt))

	var matched bool
	for _, reason := range reasons {
		if strings.HasSuffix(text, reason) {
			matched = true
		}
	}
	assert.True(t, matched, "continuation should be one of the known reasons: %q", text)
}

func TestTemplateGenerator_MaxLength(t *testing.T) {
	gen := NewTemplateGenerator(nil)
	text, err := gen.Generate(context.Background(), "one two three four five six", 4)
	require.NoError(t, err)
	assert.Equal(t, "one two three four", text)
}

func TestTemplateGenerator_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewTemplateGenerator(nil).Generate(ctx, "p", 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithRetry(t *testing.T) {
	var calls atomic.Int64
	flaky := GeneratorFunc(func(ctx context.Context, prompt string, maxLength int) (string, error) {
		if calls.Add(1) < 3 {
			return "", &StatusError{StatusCode: http.StatusServiceUnavailable, Body: "loading model"}
		}
		return "ok", nil
	})

	text, err := WithRetry(flaky, 3, testLogger).Generate(context.Background(), "p", 10)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int64(3), calls.Load())
}

func TestWithRetry_GivesUp(t *testing.T) {
	var calls atomic.Int64
	failing := GeneratorFunc(func(ctx context.Context, prompt string, maxLength int) (string, error) {
		calls.Add(1)
		return "", errors.New("connection refused")
	})

	_, err := WithRetry(failing, 1, testLogger).Generate(context.Background(), "p", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, int64(2), calls.Load())
}

func TestWithRetry_PermanentErrors(t *testing.T) {
	var calls atomic.Int64
	badRequest := GeneratorFunc(func(ctx context.Context, prompt string, maxLength int) (string, error) {
		calls.Add(1)
		return "", &StatusError{StatusCode: http.StatusBadRequest, Body: "bad prompt"}
	})

	_, err := WithRetry(badRequest, 5, testLogger).Generate(context.Background(), "p", 10)
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Equal(t, int64(1), calls.Load())
}

func TestRateLimited(t *testing.T) {
	var calls atomic.Int64
	gen := RateLimited(GeneratorFunc(func(ctx context.Context, prompt string, maxLength int) (string, error) {
		calls.Add(1)
		return "ok", nil
	}), 20)

	start := time.Now()
	for range 3 {
		_, err := gen.Generate(context.Background(), "p", 10)
		require.NoError(t, err)
	}
	// Burst of one: the second and third calls each wait about 50ms.
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	assert.Equal(t, int64(3), calls.Load())
}

func TestRateLimited_Cancelled(t *testing.T) {
	gen := RateLimited(GeneratorFunc(func(ctx context.Context, prompt string, maxLength int) (string, error) {
		return "ok", nil
	}), 0.001)

	_, err := gen.Generate(context.Background(), "p", 10)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = gen.Generate(ctx, "p", 10)
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	cfg := config.TextGenConfig{
		Provider:   config.ProviderTemplate,
		MaxLength:  100,
		MaxRetries: 2,
		RPS:        1000,
	}
	gen, err := New(cfg, testLogger)
	require.NoError(t, err)

	text, err := gen.Generate(context.Background(), "Explain this record.", 100)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "Explain this record."))

	cfg.Provider = "gpt-remote"
	_, err = New(cfg, testLogger)
	assert.Error(t, err)
}
