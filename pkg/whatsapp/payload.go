package whatsapp

import (
	"encoding/json"
	"fmt"
	"strings"
)

// WebhookPayload is the body Meta posts to the webhook
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

type ChangeValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Messages         []InboundMessage  `json:"messages,omitempty"`
	Statuses         []json.RawMessage `json:"statuses,omitempty"`
}

// InboundMessage is a message sent by a user
type InboundMessage struct {
	From        string       `json:"from"`
	ID          string       `json:"id"`
	Timestamp   string       `json:"timestamp"`
	Type        string       `json:"type"`
	Text        *TextBody    `json:"text,omitempty"`
	Interactive *Interactive `json:"interactive,omitempty"`
}

type TextBody struct {
	Body string `json:"body"`
}

// Interactive carries the user's choice on a button or list message
type Interactive struct {
	Type        string            `json:"type"`
	ButtonReply *InteractiveReply `json:"button_reply,omitempty"`
	ListReply   *InteractiveReply `json:"list_reply,omitempty"`
}

type InteractiveReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Incoming is the part of an inbound message the bot acts on
type Incoming struct {
	From string
	Text string
	ID   string
}

// ParsePayload decodes a webhook body
func ParsePayload(data []byte) (*WebhookPayload, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode webhook payload: %w", err)
	}
	return &payload, nil
}

// FirstMessage returns the first inbound message of the payload. ok is false
// for status updates, empty payloads and unsupported message types.
func (p *WebhookPayload) FirstMessage() (Incoming, bool) {
	if p == nil || len(p.Entry) == 0 || len(p.Entry[0].Changes) == 0 {
		return Incoming{}, false
	}
	messages := p.Entry[0].Changes[0].Value.Messages
	if len(messages) == 0 {
		return Incoming{}, false
	}

	msg := messages[0]
	text := msg.ExtractText()
	if text == "" {
		return Incoming{}, false
	}
	return Incoming{From: msg.From, Text: text, ID: msg.ID}, true
}

// ExtractText returns the text of a text message or the title of an
// interactive reply, or "" for any other type
func (m InboundMessage) ExtractText() string {
	switch m.Type {
	case "text":
		if m.Text == nil {
			return ""
		}
		return strings.TrimSpace(m.Text.Body)
	case "interactive":
		if m.Interactive == nil {
			return ""
		}
		switch m.Interactive.Type {
		case "button_reply":
			if m.Interactive.ButtonReply != nil {
				return m.Interactive.ButtonReply.Title
			}
		case "list_reply":
			if m.Interactive.ListReply != nil {
				return m.Interactive.ListReply.Title
			}
		}
	}
	return ""
}
