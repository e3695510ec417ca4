package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestChatClientComplete(t *testing.T) {
	t.Parallel()

	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer groq-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_, _ = w.Write([]byte(`{"id":"1","choices":[{"index":0,"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	client, err := NewChatClient(ProviderConfig{Type: ProviderGroq, APIKey: "groq-key", BaseURL: srv.URL}, zaptest.NewLogger(t))
	require.NoError(t, err)

	completion, err := client.Complete(context.Background(), Request{System: "sys", User: "usr", MaxTokens: 100})
	require.NoError(t, err)

	assert.Equal(t, "hello", completion.Text)
	assert.True(t, completion.Complete)
	assert.Equal(t, "llama-3.3-70b-versatile", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "usr", got.Messages[1].Content)
}

func TestChatClientLengthFinishIsIncomplete(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"res"},"finish_reason":"length"}]}`))
	}))
	defer srv.Close()

	client, err := NewChatClient(ProviderConfig{Type: ProviderOpenRouter, APIKey: "k", BaseURL: srv.URL}, zaptest.NewLogger(t))
	require.NoError(t, err)

	completion, err := client.Complete(context.Background(), Request{User: "x"})
	require.NoError(t, err)
	assert.False(t, completion.Complete)
	assert.Equal(t, "length", completion.StopReason)
}
