package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "github.com/mobilityedgeai/chatplanilha/pkg/errors"
)

func chatReply(content string) string {
	body, _ := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	return string(body)
}

func testClient(baseURL string, retries int) *OpenAIClient {
	return NewOpenAIClient(OpenAIConfig{
		APIKey:     "test-key",
		BaseURL:    baseURL,
		Model:      "test-model",
		Timeout:    5 * time.Second,
		MaxRetries: retries,
		RetryDelay: time.Millisecond,
	})
}

func TestComplete_Success(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/chat/completions", r.URL.Path)

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)

		_, _ = w.Write([]byte(chatReply("hello")))
	}))
	defer srv.Close()

	text, err := testClient(srv.URL, 2).Complete(context.Background(), []Message{
		{Role: RoleUser, Content: "hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.Equal(t, "Bearer test-key", gotAuth)
}

func TestComplete_RetriesRateLimit(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(chatReply("recovered")))
	}))
	defer srv.Close()

	text, err := testClient(srv.URL, 2).Complete(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.Equal(t, 2, attempts)
}

func TestComplete_ExhaustsRetries(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 2).Complete(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, coreerrors.IsExternalService(err))
	assert.ErrorIs(t, err, coreerrors.ErrModelUnavailable)
	assert.Equal(t, 3, attempts, "initial call plus two retries")
}

func TestComplete_BadRequestNotRetried(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 2).Complete(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestComplete_MissingAPIKey(t *testing.T) {
	c := NewOpenAIClient(OpenAIConfig{})
	_, err := c.Complete(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, coreerrors.IsExternalService(err))
}

func TestComplete_DeadlineDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{
		APIKey:     "k",
		BaseURL:    srv.URL,
		MaxRetries: 5,
		RetryDelay: time.Hour,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Complete(ctx, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, coreerrors.ErrRequestTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
