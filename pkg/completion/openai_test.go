package completion

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oslianyabel/basic-wa-bot/pkg/message"
)

const sampleOutput = `{
	"id": "resp_1",
	"output": [
		{"type": "reasoning", "id": "rs_1", "summary": [{"type": "summary_text", "text": "checking user"}]},
		{"type": "function_call", "id": "fc_1", "call_id": "call_1", "name": "fast_user_check", "arguments": "{}"},
		{"type": "custom_tool_call", "id": "ctc_1", "call_id": "call_2", "name": "notes", "input": "hello"},
		{"type": "web_search_call", "id": "ws_1"},
		{"type": "message", "id": "msg_1", "role": "assistant", "content": [{"type": "output_text", "text": "Hola"}]}
	]
}`

func newTestOpenAIServer(t *testing.T, status int, body string, captured *map[string]interface{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/responses", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		if captured != nil {
			data, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(data, captured))
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIClientComplete(t *testing.T) {
	t.Run("decodes every supported item kind", func(t *testing.T) {
		srv := newTestOpenAIServer(t, http.StatusOK, sampleOutput, nil)
		client := NewOpenAIClient(OpenAIOptions{APIKey: "sk-test", BaseURL: srv.URL + "/v1/", Logger: zerolog.Nop()})

		result, err := client.Complete(context.Background(), Request{Model: "gpt-5"})
		require.NoError(t, err)

		require.Len(t, result.Items, 4)
		assert.Equal(t, "resp_1", result.ID)

		reasoning, ok := result.Items[0].(message.ReasoningTrace)
		require.True(t, ok)
		assert.Equal(t, []string{"checking user"}, reasoning.Summary)

		fn, ok := result.Items[1].(message.FunctionCallRequest)
		require.True(t, ok)
		assert.Equal(t, "call_1", fn.CallID)
		assert.Equal(t, "fast_user_check", fn.Name)

		custom, ok := result.Items[2].(message.CustomToolCallRequest)
		require.True(t, ok)
		assert.Equal(t, "hello", custom.Input)

		text, ok := result.Text()
		require.True(t, ok)
		assert.Equal(t, "Hola", text)
	})

	t.Run("sends history, tools and controls", func(t *testing.T) {
		var captured map[string]interface{}
		srv := newTestOpenAIServer(t, http.StatusOK, `{"id":"r","output":[]}`, &captured)
		client := NewOpenAIClient(OpenAIOptions{APIKey: "sk-test", BaseURL: srv.URL + "/v1/", Logger: zerolog.Nop()})

		req := Request{
			Model: "gpt-5",
			Input: []message.Message{
				{Role: message.RoleDeveloper, Content: "system"},
				{Role: message.RoleUser, Content: "hi"},
				{Role: message.RoleAssistant, Item: message.FunctionCallRequest{CallID: "call_1", Name: "t", Arguments: "{}"}},
				{Role: message.RoleToolOutput, CallID: "call_1", Content: "done"},
				{Role: message.RoleToolOutput, CallID: "call_2", Content: "raw", Custom: true},
			},
			Tools: []ToolSchema{{Type: "function", Name: "t", Description: "test"}},
		}
		ApplyModelControls(&req)

		_, err := client.Complete(context.Background(), req)
		require.NoError(t, err)

		assert.Equal(t, "gpt-5", captured["model"])
		assert.Equal(t, map[string]interface{}{"verbosity": "low"}, captured["text"])
		assert.Equal(t, map[string]interface{}{"effort": "low"}, captured["reasoning"])

		input, ok := captured["input"].([]interface{})
		require.True(t, ok)
		require.Len(t, input, 5)
		assert.Equal(t, "developer", input[0].(map[string]interface{})["role"])
		assert.Equal(t, "function_call", input[2].(map[string]interface{})["type"])
		assert.Equal(t, "function_call_output", input[3].(map[string]interface{})["type"])
		assert.Equal(t, "custom_tool_call_output", input[4].(map[string]interface{})["type"])

		tools, ok := captured["tools"].([]interface{})
		require.True(t, ok)
		assert.Len(t, tools, 1)
	})

	t.Run("wraps remote errors", func(t *testing.T) {
		srv := newTestOpenAIServer(t, http.StatusInternalServerError, `{"error":{"message":"boom"}}`, nil)
		client := NewOpenAIClient(OpenAIOptions{APIKey: "sk-test", BaseURL: srv.URL + "/v1/", Logger: zerolog.Nop()})

		_, err := client.Complete(context.Background(), Request{Model: "gpt-4.1"})
		require.Error(t, err)

		var transportErr *TransportError
		assert.True(t, errors.As(err, &transportErr))
		assert.Equal(t, "openai", transportErr.Provider)
	})
}

func TestApplyModelControls(t *testing.T) {
	req := Request{Model: "gpt-4.1"}
	ApplyModelControls(&req)
	assert.Empty(t, req.Verbosity)
	assert.Empty(t, req.ReasoningEffort)

	req = Request{Model: "gpt-5-mini"}
	ApplyModelControls(&req)
	assert.Equal(t, VerbosityLow, req.Verbosity)
	assert.Equal(t, EffortLow, req.ReasoningEffort)
}

func TestCompleteAsync(t *testing.T) {
	srv := newTestOpenAIServer(t, http.StatusOK, sampleOutput, nil)
	client := NewOpenAIClient(OpenAIOptions{APIKey: "sk-test", BaseURL: srv.URL + "/v1/", Logger: zerolog.Nop()})

	outcome := <-CompleteAsync(context.Background(), client, Request{Model: "gpt-5"})
	require.NoError(t, outcome.Err)
	assert.Len(t, outcome.Result.Items, 4)
}
