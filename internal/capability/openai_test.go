package capability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/engage_go_server/internal/pkg/logger"
)

func TestOpenAIGenerator_GenerateText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body.Model)
		assert.Equal(t, 300, body.MaxTokens)
		assert.Equal(t, "json_object", body.ResponseFormat["type"])
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)
		assert.Equal(t, "user", body.Messages[1].Role)

		_, _ = w.Write([]byte(`{"model":"gpt-4o-mini-2024","choices":[{"message":{"content":"{\"comments\":[]}"}}],"usage":{"prompt_tokens":120,"completion_tokens":30,"total_tokens":150}}`))
	}))
	defer srv.Close()

	g := NewOpenAIGenerator(srv.URL+"/", "sk-test", 5*time.Second, logger.Nop())
	resp, err := g.GenerateText(context.Background(), GenerateRequest{
		Model:          "gpt-4o-mini",
		System:         "be brief",
		Prompt:         "hello",
		Temperature:    0.7,
		MaxTokens:      300,
		ResponseFormat: FormatJSON,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"comments":[]}`, resp.Text)
	assert.Equal(t, "gpt-4o-mini-2024", resp.Model)
	assert.Equal(t, 150, resp.Usage.TotalTokens)
}

func TestOpenAIGenerator_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		transient bool
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"error":"slow down"}`, transient: true},
		{name: "server error", status: http.StatusBadGateway, transient: true},
		{name: "bad request", status: http.StatusBadRequest, body: `{"error":"bad"}`, transient: false},
		{name: "empty choices", status: http.StatusOK, body: `{"choices":[]}`, transient: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			g := NewOpenAIGenerator(srv.URL, "", time.Second, logger.Nop())
			_, err := g.GenerateText(context.Background(), GenerateRequest{Model: "m", Prompt: "p"})
			require.Error(t, err)
			assert.Equal(t, tt.transient, IsTransient(err))
		})
	}
}
