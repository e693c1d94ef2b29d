package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewisedginton/organizer/internal/conversation"
)

type capture struct {
	path string
	body map[string]any
}

func newTestModel(t *testing.T, handler func(w http.ResponseWriter, c capture)) (*Model, *[]capture) {
	t.Helper()
	var seen []capture
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		c := capture{path: r.URL.Path}
		_ = json.Unmarshal(raw, &c.body)
		seen = append(seen, c)
		handler(w, c)
	}))
	t.Cleanup(srv.Close)

	m, err := New(Config{APIKey: "test-key", BaseURL: srv.URL, Model: "gpt-4o"})
	require.NoError(t, err)
	return m, &seen
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "valid", cfg: Config{APIKey: "k", Model: "gpt-4o"}},
		{name: "empty api key", cfg: Config{Model: "gpt-4o"}, wantErr: true},
		{name: "empty model", cfg: Config{APIKey: "k"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "gpt-4o", m.Name())
			assert.Equal(t, "onyx", m.Voice())
			assert.Equal(t, "tts-1", m.SpeechModel())
		})
	}
}

func TestComplete_ToolCalls(t *testing.T) {
	m, seen := newTestModel(t, func(w http.ResponseWriter, _ capture) {
		writeJSON(w, http.StatusOK, `{
			"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o",
			"choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant","content":null,
				"tool_calls":[{"id":"call_1","type":"function","function":{"name":"list_tasks","arguments":"{\"maxResults\":3}"}}]}}]}`)
	})

	got, err := m.Complete(context.Background(), conversation.Request{
		Messages: []conversation.Message{
			conversation.SystemMessage("persona"),
			conversation.UserMessage("quais tarefas?"),
		},
		Tools:       []conversation.ToolSpec{{Name: "list_tasks", Description: "Lista tarefas", Parameters: map[string]any{"properties": map[string]any{}}}},
		Temperature: 0.7,
		MaxTokens:   300,
	})
	require.NoError(t, err)
	assert.True(t, got.HasToolCalls())
	assert.Equal(t, []conversation.ToolCall{{ID: "call_1", Name: "list_tasks", Arguments: `{"maxResults":3}`}}, got.ToolCalls)

	require.Len(t, *seen, 1)
	req := (*seen)[0]
	assert.Equal(t, "/chat/completions", req.path)
	assert.Equal(t, "gpt-4o", req.body["model"])
	assert.InDelta(t, 0.7, req.body["temperature"], 1e-9)
	assert.InDelta(t, 300, req.body["max_tokens"], 0)
	assert.NotContains(t, req.body, "response_format")

	tools := req.body["tools"].([]any)
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "list_tasks", fn["name"])
	assert.Equal(t, "object", fn["parameters"].(map[string]any)["type"])
}

func TestComplete_JSONReplyAndToolResults(t *testing.T) {
	m, seen := newTestModel(t, func(w http.ResponseWriter, _ capture) {
		writeJSON(w, http.StatusOK, `{
			"id":"c2","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant",
				"content":"{\"mode\":\"doer\",\"text\":\"Feito, Senhor.\",\"language\":\"pt-BR\"}"}}]}`)
	})

	got, err := m.Complete(context.Background(), conversation.Request{
		Model: "gpt-4o-mini",
		Messages: []conversation.Message{
			conversation.UserMessage("crie a tarefa"),
			{Role: conversation.RoleAssistant, ToolCalls: []conversation.ToolCall{{ID: "call_1", Name: "create_task", Arguments: `{"title":"x"}`}}},
			conversation.ToolResultMessage("call_1", "create_task", "Tarefa criada: x"),
		},
		JSONReply: true,
	})
	require.NoError(t, err)
	assert.False(t, got.HasToolCalls())
	assert.Contains(t, got.Content, "Feito, Senhor.")

	body := (*seen)[0].body
	assert.Equal(t, "gpt-4o-mini", body["model"])
	assert.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])
	assert.NotContains(t, body, "tools")
	assert.NotContains(t, body, "temperature")

	msgs := body["messages"].([]any)
	require.Len(t, msgs, 3)
	assistant := msgs[1].(map[string]any)
	assert.Equal(t, "assistant", assistant["role"])
	call := assistant["tool_calls"].([]any)[0].(map[string]any)
	assert.Equal(t, "call_1", call["id"])
	tool := msgs[2].(map[string]any)
	assert.Equal(t, "tool", tool["role"])
	assert.Equal(t, "call_1", tool["tool_call_id"])
	assert.Equal(t, "Tarefa criada: x", tool["content"])
}

func TestComplete_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusBadRequest, body: `{"error":{"message":"bad","type":"invalid_request_error"}}`},
		{name: "no choices", status: http.StatusOK, body: `{"id":"c3","object":"chat.completion","created":1,"model":"gpt-4o","choices":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestModel(t, func(w http.ResponseWriter, _ capture) { writeJSON(w, tt.status, tt.body) })
			_, err := m.Complete(context.Background(), conversation.Request{Messages: []conversation.Message{conversation.UserMessage("oi")}})
			assert.Error(t, err)
		})
	}
}

func TestEmbed(t *testing.T) {
	m, seen := newTestModel(t, func(w http.ResponseWriter, _ capture) {
		writeJSON(w, http.StatusOK, `{"object":"list","model":"text-embedding-3-small",
			"data":[{"object":"embedding","index":0,"embedding":[0.1,-0.2,0.3]}],
			"usage":{"prompt_tokens":1,"total_tokens":1}}`)
	})

	vec, err := m.Embed(context.Background(), "prefiro reuniões pela manhã")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, -0.2, 0.3}, vec)
	assert.Equal(t, "/embeddings", (*seen)[0].path)
	assert.Equal(t, "text-embedding-3-small", (*seen)[0].body["model"])
	assert.Equal(t, "prefiro reuniões pela manhã", (*seen)[0].body["input"])
}

func TestEmbed_Empty(t *testing.T) {
	m, _ := newTestModel(t, func(w http.ResponseWriter, _ capture) {
		writeJSON(w, http.StatusOK, `{"object":"list","model":"m","data":[],"usage":{"prompt_tokens":0,"total_tokens":0}}`)
	})
	_, err := m.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestSynthesize(t *testing.T) {
	m, seen := newTestModel(t, func(w http.ResponseWriter, _ capture) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-audio"))
	})

	audio, err := m.Synthesize(context.Background(), "Bom dia, Senhor.")
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3-audio"), audio)

	req := (*seen)[0]
	assert.Equal(t, "/audio/speech", req.path)
	assert.Equal(t, "tts-1", req.body["model"])
	assert.Equal(t, "onyx", req.body["voice"])
	assert.Equal(t, "mp3", req.body["response_format"])

	_, err = m.Synthesize(context.Background(), "   ")
	assert.Error(t, err)
}
