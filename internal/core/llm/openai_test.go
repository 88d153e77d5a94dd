package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIComplete(t *testing.T) {
	var got openaiRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"model":"deepseek-chat","choices":[{"message":{"role":"assistant","content":"Lunch plans were made."}}]}`))
	}))
	defer srv.Close()

	p, err := NewOpenAI(OpenAIConfig{Endpoint: srv.URL + "/v1/", APIKey: "sk-test", Timeout: time.Second})
	require.NoError(t, err)

	resp, err := p.Complete(context.Background(), Request{
		Model: "deepseek-chat", System: "You summarise group chats.", Prompt: "[10:00] Ann: lunch?",
		Temperature: 0.3, MaxTokens: 512,
	})
	require.NoError(t, err)
	assert.Equal(t, "Lunch plans were made.", resp.Text)
	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, 0.3, got.Temperature)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
}

func TestOpenAIHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	p, err := NewOpenAI(OpenAIConfig{Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), Request{Prompt: "x"})
	var be *BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, http.StatusTooManyRequests, be.StatusCode)
	assert.Contains(t, be.Body, "rate limited")
	assert.True(t, be.Retryable())
}

func TestOpenAITimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	p, err := NewOpenAI(OpenAIConfig{Endpoint: srv.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), Request{Prompt: "x"})
	var be *BackendError
	require.True(t, errors.As(err, &be))
	assert.Zero(t, be.StatusCode)
	assert.Error(t, be.Err)
}

func TestOpenAIEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	p, err := NewOpenAI(OpenAIConfig{Endpoint: srv.URL})
	require.NoError(t, err)
	_, err = p.Complete(context.Background(), Request{Prompt: "x"})
	assert.Error(t, err)
}

func TestNewOpenAIRequiresEndpoint(t *testing.T) {
	_, err := NewOpenAI(OpenAIConfig{})
	assert.Error(t, err)
}
