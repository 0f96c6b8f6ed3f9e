package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pario-ai/tierwise/pkg/config"
	"github.com/pario-ai/tierwise/pkg/dispatch"
	"github.com/pario-ai/tierwise/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const anthropicStream = `event: message_start
data: {"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"m","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":12,"output_tokens":1}}}

event: content_block_start
data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Bonjour"}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" !"}}

event: content_block_stop
data: {"type":"content_block_stop","index":0}

event: message_delta
data: {"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":5}}

event: message_stop
data: {"type":"message_stop"}

`

const openaiStream = `data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":"Bon"},"finish_reason":null}]}

data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":"jour"},"finish_reason":"stop"}]}

data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[],"usage":{"prompt_tokens":9,"completion_tokens":2,"total_tokens":11}}

data: [DONE]

`

// upstreamServer replies with status and body, recording the last request body.
func upstreamServer(t *testing.T, status int, contentType, body string, lastBody *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		if lastBody != nil {
			*lastBody = string(b)
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func collect(out *strings.Builder) dispatch.EmitFunc {
	return func(c string) error {
		out.WriteString(c)
		return nil
	}
}

func TestNew(t *testing.T) {
	up, err := New(config.UpstreamConfig{Type: "anthropic"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Anthropic{}, up)

	up, err = New(config.UpstreamConfig{Type: "openai"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &OpenAI{}, up)

	_, err = New(config.UpstreamConfig{Type: "smoke-signals"}, nil)
	assert.Error(t, err)
}

func TestAnthropicStream(t *testing.T) {
	var body string
	srv := upstreamServer(t, http.StatusOK, "text/event-stream", anthropicStream, &body)
	up := NewAnthropic(config.UpstreamConfig{APIKey: "sk-test", BaseURL: srv.URL}, nil)

	var out strings.Builder
	usage, err := up.Stream(context.Background(), dispatch.Request{
		Model:             "claude-test",
		System:            "Tu es un expert en valorisation.",
		Messages:          []models.ChatMessage{{Role: models.RoleUser, Content: "Bonjour"}},
		MaxTokens:         256,
		CacheSystemPrompt: true,
	}, collect(&out))
	require.NoError(t, err)
	assert.Equal(t, "Bonjour !", out.String())
	assert.Equal(t, models.Usage{InputTokens: 12, OutputTokens: 5}, usage)

	assert.Contains(t, body, `"model":"claude-test"`)
	assert.Contains(t, body, `"cache_control":{"type":"ephemeral"}`)
	assert.Contains(t, body, "Tu es un expert en valorisation.")
}

func TestAnthropicMessagesStartWithUser(t *testing.T) {
	var body string
	srv := upstreamServer(t, http.StatusOK, "text/event-stream", anthropicStream, &body)
	up := NewAnthropic(config.UpstreamConfig{APIKey: "sk-test", BaseURL: srv.URL}, nil)

	_, err := up.Stream(context.Background(), dispatch.Request{
		Model: "claude-test",
		Messages: []models.ChatMessage{
			{Role: models.RoleAssistant, Content: "Quel est votre secteur ?"},
			{Role: models.RoleAssistant, Content: "Et votre chiffre d'affaires ?"},
			{Role: models.RoleUser, Content: "Boulangerie, 850 k€"},
			{Role: models.RoleAssistant, Content: "Merci."},
			{Role: models.RoleUser, Content: "Combien vaut mon entreprise ?"},
		},
	}, func(string) error { return nil })
	require.NoError(t, err)

	var sent struct {
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &sent))
	roles := make([]string, 0, len(sent.Messages))
	for _, m := range sent.Messages {
		roles = append(roles, m.Role)
	}
	assert.Equal(t, []string{"user", "assistant", "user"}, roles)
	assert.NotContains(t, body, "Quel est votre secteur")

	assert.Empty(t, buildAnthropicMessages([]models.ChatMessage{{Role: models.RoleAssistant, Content: "Bonjour"}}))
}

func TestAnthropicErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		unavailable bool
	}{
		{"not found", http.StatusNotFound, true},
		{"rate limited", http.StatusTooManyRequests, false},
		{"server error", http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := upstreamServer(t, tt.status, "application/json",
				`{"type":"error","error":{"type":"not_found_error","message":"model: claude-nope"}}`, nil)
			up := NewAnthropic(config.UpstreamConfig{APIKey: "sk-test", BaseURL: srv.URL}, nil)

			_, err := up.Stream(context.Background(), dispatch.Request{
				Model:    "claude-nope",
				Messages: []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}},
			}, func(string) error { return nil })
			require.Error(t, err)
			assert.Equal(t, tt.unavailable, dispatch.IsUnavailable(err))

			var ue *dispatch.UpstreamError
			require.True(t, errors.As(err, &ue))
			assert.Equal(t, tt.status, ue.StatusCode)
			assert.Equal(t, "claude-nope", ue.Model)
		})
	}
}

func TestOpenAIStream(t *testing.T) {
	var body string
	srv := upstreamServer(t, http.StatusOK, "text/event-stream", openaiStream, &body)
	up := NewOpenAI(config.UpstreamConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/"}, nil)

	var out strings.Builder
	usage, err := up.Stream(context.Background(), dispatch.Request{
		Model:  "gpt-test",
		System: "system prompt",
		Messages: []models.ChatMessage{
			{Role: models.RoleUser, Content: "Bonjour"},
			{Role: models.RoleAssistant, Content: "Bonjour, que puis-je faire ?"},
			{Role: models.RoleUser, Content: "20"},
		},
		MaxTokens: 128,
	}, collect(&out))
	require.NoError(t, err)
	assert.Equal(t, "Bonjour", out.String())
	assert.Equal(t, models.Usage{InputTokens: 9, OutputTokens: 2}, usage)

	assert.Contains(t, body, `"model":"gpt-test"`)
	assert.Contains(t, body, `"include_usage":true`)
	assert.Contains(t, body, "system prompt")
}

func TestOpenAIModelNotFound(t *testing.T) {
	srv := upstreamServer(t, http.StatusNotFound, "application/json",
		`{"error":{"message":"The model does not exist","type":"invalid_request_error","code":"model_not_found"}}`, nil)
	up := NewOpenAI(config.UpstreamConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/"}, nil)

	_, err := up.Stream(context.Background(), dispatch.Request{
		Model:    "gpt-nope",
		Messages: []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}},
	}, func(string) error { return nil })
	require.Error(t, err)
	assert.True(t, dispatch.IsUnavailable(err))
}

func TestStreamStopsOnEmitError(t *testing.T) {
	srv := upstreamServer(t, http.StatusOK, "text/event-stream", anthropicStream, nil)
	up := NewAnthropic(config.UpstreamConfig{APIKey: "sk-test", BaseURL: srv.URL}, nil)

	stop := errors.New("client gone")
	calls := 0
	_, err := up.Stream(context.Background(), dispatch.Request{
		Model:    "claude-test",
		Messages: []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}},
	}, func(string) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestMergeTurns(t *testing.T) {
	got := mergeTurns([]models.ChatMessage{
		{Role: models.RoleUser, Content: "a"},
		{Role: models.RoleUser, Content: "b", Summary: true},
		{Role: models.RoleAssistant, Content: ""},
		{Role: models.RoleAssistant, Content: "c"},
		{Role: models.RoleUser, Content: "d"},
	})
	require.Len(t, got, 3)
	assert.Equal(t, "a\n\nb", got[0].Content)
	assert.Equal(t, "c", got[1].Content)
	assert.Equal(t, "d", got[2].Content)
}
