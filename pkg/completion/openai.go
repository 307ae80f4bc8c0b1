package completion

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"

	"github.com/oslianyabel/basic-wa-bot/pkg/message"
)

// OpenAIClient implements Client on the OpenAI Responses endpoint
type OpenAIClient struct {
	client openai.Client
	logger zerolog.Logger
}

// OpenAIOptions configures the OpenAI client
type OpenAIOptions struct {
	APIKey  string
	BaseURL string // optional, e.g. "https://api.openai.com/v1/"
	Logger  zerolog.Logger
}

// NewOpenAIClient creates a new OpenAI completion client. SDK retries are
// disabled so failures reach the caller on the first attempt.
func NewOpenAIClient(opts OpenAIOptions) *OpenAIClient {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}

	return &OpenAIClient{
		client: openai.NewClient(reqOpts...),
		logger: opts.Logger,
	}
}

// Provider returns the provider name
func (c *OpenAIClient) Provider() string {
	return "openai"
}

// Complete posts the conversation to the Responses endpoint
func (c *OpenAIClient) Complete(ctx context.Context, request Request) (*Result, error) {
	body, err := buildResponsesRequest(request)
	if err != nil {
		return nil, err
	}

	var resp responsesResponse
	if err := c.client.Post(ctx, "responses", body, &resp); err != nil {
		return nil, &TransportError{Provider: c.Provider(), Err: err}
	}

	result, skipped, err := decodeOutput(resp)
	if err != nil {
		return nil, &TransportError{Provider: c.Provider(), Err: err}
	}
	for _, kind := range skipped {
		c.logger.Debug().Str("type", kind).Msg("Ignoring unsupported output item")
	}

	return result, nil
}

type textConfig struct {
	Verbosity string `json:"verbosity"`
}

type reasoningConfig struct {
	Effort string `json:"effort"`
}

type responsesRequest struct {
	Model     string            `json:"model"`
	Input     []json.RawMessage `json:"input"`
	Tools     []ToolSchema      `json:"tools,omitempty"`
	Text      *textConfig       `json:"text,omitempty"`
	Reasoning *reasoningConfig  `json:"reasoning,omitempty"`
}

// MarshalJSON lets the SDK send the request as a JSON body
func (r responsesRequest) MarshalJSON() ([]byte, error) {
	type plain responsesRequest
	return json.Marshal(plain(r))
}

type responsesResponse struct {
	ID     string            `json:"id"`
	Output []json.RawMessage `json:"output"`
}

func (r *responsesResponse) UnmarshalJSON(data []byte) error {
	type plain responsesResponse
	return json.Unmarshal(data, (*plain)(r))
}

type wireText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type wireItem struct {
	Type      string     `json:"type"`
	ID        string     `json:"id"`
	CallID    string     `json:"call_id"`
	Name      string     `json:"name"`
	Arguments string     `json:"arguments"`
	Input     string     `json:"input"`
	Content   []wireText `json:"content"`
	Summary   []wireText `json:"summary"`
}

func buildResponsesRequest(request Request) (responsesRequest, error) {
	body := responsesRequest{
		Model: request.Model,
		Tools: request.Tools,
		Input: make([]json.RawMessage, 0, len(request.Input)),
	}
	if request.Verbosity != "" {
		body.Text = &textConfig{Verbosity: request.Verbosity}
	}
	if request.ReasoningEffort != "" {
		body.Reasoning = &reasoningConfig{Effort: request.ReasoningEffort}
	}

	for i, msg := range request.Input {
		raw, err := encodeInput(msg)
		if err != nil {
			return responsesRequest{}, fmt.Errorf("failed to encode input %d: %w", i, err)
		}
		if raw == nil {
			continue
		}
		body.Input = append(body.Input, raw)
	}

	return body, nil
}

// encodeInput converts a stored message into a Responses input item. Items
// received from the endpoint are replayed verbatim.
func encodeInput(msg message.Message) (json.RawMessage, error) {
	if msg.Item != nil {
		if raw := msg.Item.Raw(); len(raw) > 0 {
			return raw, nil
		}
		return encodeLocalItem(msg.Item)
	}

	if msg.IsToolOutput() {
		kind := "function_call_output"
		if msg.Custom {
			kind = "custom_tool_call_output"
		}
		return json.Marshal(map[string]string{
			"type":    kind,
			"call_id": msg.CallID,
			"output":  msg.Content,
		})
	}

	return json.Marshal(map[string]string{
		"role":    string(msg.Role),
		"content": msg.Content,
	})
}

func encodeLocalItem(item message.Item) (json.RawMessage, error) {
	switch it := item.(type) {
	case message.PlainMessage:
		return json.Marshal(map[string]string{"role": "assistant", "content": it.Text})
	case message.FunctionCallRequest:
		return json.Marshal(map[string]string{
			"type":      "function_call",
			"call_id":   it.CallID,
			"name":      it.Name,
			"arguments": it.Arguments,
		})
	case message.CustomToolCallRequest:
		return json.Marshal(map[string]string{
			"type":    "custom_tool_call",
			"call_id": it.CallID,
			"name":    it.Name,
			"input":   it.Input,
		})
	case message.ReasoningTrace:
		// reasoning cannot be replayed without the endpoint's own payload
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown item type %T", item)
	}
}

func decodeOutput(resp responsesResponse) (*Result, []string, error) {
	result := &Result{ID: resp.ID}
	var skipped []string

	for i, raw := range resp.Output {
		var w wireItem
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, nil, fmt.Errorf("failed to decode output item %d: %w", i, err)
		}

		switch w.Type {
		case "message":
			text := ""
			for _, part := range w.Content {
				if part.Type == "output_text" {
					text = part.Text
					break
				}
			}
			result.Items = append(result.Items, message.PlainMessage{ID: w.ID, Text: text, Wire: raw})
		case "reasoning":
			summary := make([]string, 0, len(w.Summary))
			for _, part := range w.Summary {
				summary = append(summary, part.Text)
			}
			result.Items = append(result.Items, message.ReasoningTrace{ID: w.ID, Summary: summary, Wire: raw})
		case "function_call":
			result.Items = append(result.Items, message.FunctionCallRequest{
				ID:        w.ID,
				CallID:    w.CallID,
				Name:      w.Name,
				Arguments: w.Arguments,
				Wire:      raw,
			})
		case "custom_tool_call":
			result.Items = append(result.Items, message.CustomToolCallRequest{
				ID:     w.ID,
				CallID: w.CallID,
				Name:   w.Name,
				Input:  w.Input,
				Wire:   raw,
			})
		default:
			skipped = append(skipped, w.Type)
		}
	}

	return result, skipped, nil
}
