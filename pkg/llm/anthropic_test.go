package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func anthropicEvents(events ...string) string {
	var b strings.Builder
	for _, data := range events {
		typ := gjson.Get(data, "type").String()
		fmt.Fprintf(&b, "event: %s\ndata: %s\n\n", typ, data)
	}
	return b.String()
}

func newTestAnthropic(baseURL string) *AnthropicProvider {
	return NewAnthropicProvider(ProviderConfig{
		Provider: ProviderAnthropic,
		APIKey:   "test-key",
		BaseURL:  baseURL,
		Model:    "test-model",
		Logger:   zerolog.Nop(),
	})
}

func TestAnthropicStream(t *testing.T) {
	t.Run("should accumulate tool input per block index", func(t *testing.T) {
		srv := newStreamServer(t, http.StatusOK, anthropicEvents(
			`{"type":"message_start","message":{"id":"msg_1","role":"assistant","content":[]}}`,
			`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Clicking."}}`,
			`{"type":"content_block_stop","index":0}`,
			`{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"click","input":{}}}`,
			`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"x\":1"}}`,
			`{"type":"ping"}`,
			`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"00,\"y\":200}"}}`,
			`{"type":"content_block_stop","index":1}`,
			`{"type":"content_block_start","index":2,"content_block":{"type":"tool_use","id":"toolu_2","name":"capture_screen","input":{}}}`,
			`{"type":"content_block_stop","index":2}`,
			`{"type":"message_delta","delta":{"stop_reason":"tool_use"}}`,
			`{"type":"message_stop"}`,
		))
		p := newTestAnthropic(srv.URL)

		stream, err := p.Stream(context.Background(), Request{Messages: userTurn("click")})
		require.NoError(t, err)
		events := collect(t, stream)

		require.Equal(t, []EventKind{EventToolCall, EventToolCall, EventFinal}, kinds(events))
		assert.Equal(t, "toolu_1", events[0].ToolCall.ID)
		assert.JSONEq(t, `{"x":100,"y":200}`, string(events[0].ToolCall.Arguments))
		assert.Equal(t, "capture_screen", events[1].ToolCall.Name)
		assert.JSONEq(t, `{}`, string(events[1].ToolCall.Arguments))
		assert.Equal(t, "Clicking.", events[2].Text)
		assert.False(t, events[2].ShouldContinue)

		body := srv.lastBody(t)
		assert.True(t, gjson.GetBytes(body, "stream").Bool())
		assert.Equal(t, int64(defaultAnthropicMaxTokens), gjson.GetBytes(body, "max_tokens").Int())
	})

	t.Run("should emit reasoning per thinking delta and keep thinking as the token", func(t *testing.T) {
		srv := newStreamServer(t, http.StatusOK, anthropicEvents(
			`{"type":"message_start","message":{"id":"msg_1"}}`,
			`{"type":"content_block_start","index":0,"content_block":{"type":"thinking","thinking":""}}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"First "}}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"second."}}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"signature_delta","signature":"sig=="}}`,
			`{"type":"content_block_stop","index":0}`,
			`{"type":"content_block_start","index":1,"content_block":{"type":"redacted_thinking","data":"opaque"}}`,
			`{"type":"content_block_stop","index":1}`,
			`{"type":"content_block_start","index":2,"content_block":{"type":"text","text":""}}`,
			`{"type":"content_block_delta","index":2,"delta":{"type":"text_delta","text":"Done"}}`,
			`{"type":"message_delta","delta":{"stop_reason":"end_turn"}}`,
			`{"type":"message_stop"}`,
		))
		p := newTestAnthropic(srv.URL)

		stream, err := p.Stream(context.Background(), Request{Messages: userTurn("think"), ReasoningBudget: 1024})
		require.NoError(t, err)
		events := collect(t, stream)

		require.Equal(t, []EventKind{EventReasoning, EventReasoning, EventFinal}, kinds(events))
		assert.Equal(t, "First ", events[0].Text)
		assert.Equal(t, "second.", events[1].Text)
		assert.Equal(t, "Done", events[2].Text)
		assert.Equal(t,
			`[{"type":"thinking","thinking":"First second.","signature":"sig=="},{"type":"redacted_thinking","data":"opaque"}]`,
			string(events[2].ContinuationToken))

		body := srv.lastBody(t)
		assert.Equal(t, "enabled", gjson.GetBytes(body, "thinking.type").String())
		assert.Equal(t, int64(1024), gjson.GetBytes(body, "thinking.budget_tokens").Int())
	})

	t.Run("should honor only the first stop reason", func(t *testing.T) {
		srv := newStreamServer(t, http.StatusOK, anthropicEvents(
			`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":"hi"}}`,
			`{"type":"message_delta","delta":{"stop_reason":"end_turn"}}`,
			`{"type":"message_delta","delta":{"stop_reason":"max_tokens"}}`,
			`{"type":"message_stop"}`,
		))
		p := newTestAnthropic(srv.URL)

		stream, err := p.Stream(context.Background(), Request{Messages: userTurn("hi")})
		require.NoError(t, err)
		events := collect(t, stream)

		require.Len(t, events, 1)
		assert.Equal(t, "hi", events[0].Text)
		assert.False(t, events[0].ShouldContinue)
	})

	t.Run("should ask to continue when stopped for max tokens", func(t *testing.T) {
		srv := newStreamServer(t, http.StatusOK, anthropicEvents(
			`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":"par"}}`,
			`{"type":"mystery_event"}`,
			`{"type":"message_delta","delta":{"stop_reason":"max_tokens"}}`,
			`{"type":"message_stop"}`,
		))
		p := newTestAnthropic(srv.URL)

		stream, err := p.Stream(context.Background(), Request{Messages: userTurn("hi")})
		require.NoError(t, err)
		events := collect(t, stream)

		require.Len(t, events, 1)
		assert.True(t, events[0].ShouldContinue)
	})

	t.Run("should end with an error event on a stream error", func(t *testing.T) {
		srv := newStreamServer(t, http.StatusOK, anthropicEvents(
			`{"type":"message_start","message":{"id":"msg_1"}}`,
			`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`,
		))
		p := newTestAnthropic(srv.URL)

		stream, err := p.Stream(context.Background(), Request{Messages: userTurn("hi")})
		require.NoError(t, err)
		events := collect(t, stream)

		require.Equal(t, []EventKind{EventError}, kinds(events))
		assert.Contains(t, events[0].Err.Error(), "Overloaded")
	})

	t.Run("should return backend errors with status and body", func(t *testing.T) {
		srv := newStreamServer(t, http.StatusBadRequest,
			`{"type":"error","error":{"type":"invalid_request_error","message":"messages: roles must alternate"}}`)
		p := newTestAnthropic(srv.URL)

		_, err := p.Stream(context.Background(), Request{Messages: userTurn("hi")})
		var mbe *ModelBackendError
		require.ErrorAs(t, err, &mbe)
		assert.Equal(t, http.StatusBadRequest, mbe.StatusCode)
		assert.Contains(t, mbe.Body, "roles must alternate")
	})
}

func TestBuildAnthropicBody(t *testing.T) {
	token := `[{"type":"thinking", "thinking":"plan","signature":"abc"}]`
	history := []Message{
		{Role: RoleUser, Parts: []Part{TextPart("goal"), ImagePart([]byte{1, 2, 3}, "")}},
		{
			Role:              RoleAssistant,
			Parts:             []Part{TextPart("Clicking")},
			ToolCalls:         []ToolCall{{ID: "toolu_1", Name: "click", Arguments: []byte(`{"x":1,"y":2}`)}},
			ContinuationToken: []byte(token),
		},
		NewToolMessage("toolu_1", "Error: boom"),
		{Role: RoleUser, Parts: []Part{ImagePart([]byte{4}, "image/jpeg")}},
	}

	body, err := buildAnthropicBody(Request{
		Model:     "m",
		System:    "system prompt",
		Messages:  history,
		MaxTokens: 10,
		Tools: []ToolSchema{{
			Name:        "click",
			Description: "Click",
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"x": map[string]interface{}{"type": "integer"}},
				"required":   []interface{}{"x"},
			},
		}},
	})
	require.NoError(t, err)

	t.Run("should replay continuation blocks verbatim ahead of the assistant content", func(t *testing.T) {
		content := gjson.GetBytes(body, "messages.1.content")
		require.Len(t, content.Array(), 3)
		assert.Equal(t, `{"type":"thinking", "thinking":"plan","signature":"abc"}`, content.Get("0").Raw)
		assert.Equal(t, "text", content.Get("1.type").String())
		assert.Equal(t, "tool_use", content.Get("2.type").String())
		assert.JSONEq(t, `{"x":1,"y":2}`, content.Get("2.input").Raw)
	})

	t.Run("should merge tool results and the next user turn", func(t *testing.T) {
		assert.Len(t, gjson.GetBytes(body, "messages").Array(), 3)
		user := gjson.GetBytes(body, "messages.2")
		assert.Equal(t, "user", user.Get("role").String())
		assert.Equal(t, "tool_result", user.Get("content.0.type").String())
		assert.Equal(t, "toolu_1", user.Get("content.0.tool_use_id").String())
		assert.True(t, user.Get("content.0.is_error").Bool())
		assert.Equal(t, "image", user.Get("content.1.type").String())
		assert.Equal(t, "image/jpeg", user.Get("content.1.source.media_type").String())
	})

	t.Run("should send the system prompt and tools", func(t *testing.T) {
		assert.Equal(t, "system prompt", gjson.GetBytes(body, "system.0.text").String())
		assert.Equal(t, "click", gjson.GetBytes(body, "tools.0.name").String())
		assert.Equal(t, "x", gjson.GetBytes(body, "tools.0.input_schema.required.0").String())
		assert.Equal(t, "image/png", gjson.GetBytes(body, "messages.0.content.1.source.media_type").String())
	})
}
