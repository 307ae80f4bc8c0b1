package whatsapp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Incoming
		ok   bool
	}{
		{
			name: "text message is trimmed",
			body: `{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"messages","value":{
				"messaging_product":"whatsapp",
				"messages":[{"from":"5350000001","id":"wamid.1","type":"text","text":{"body":"  hola  "}}]}}]}]}`,
			want: Incoming{From: "5350000001", Text: "hola", ID: "wamid.1"},
			ok:   true,
		},
		{
			name: "button reply",
			body: `{"entry":[{"changes":[{"value":{"messages":[{"from":"1","id":"w2","type":"interactive",
				"interactive":{"type":"button_reply","button_reply":{"id":"b1","title":"Sí"}}}]}}]}]}`,
			want: Incoming{From: "1", Text: "Sí", ID: "w2"},
			ok:   true,
		},
		{
			name: "list reply",
			body: `{"entry":[{"changes":[{"value":{"messages":[{"from":"1","id":"w3","type":"interactive",
				"interactive":{"type":"list_reply","list_reply":{"id":"l1","title":"Contratos"}}}]}}]}]}`,
			want: Incoming{From: "1", Text: "Contratos", ID: "w3"},
			ok:   true,
		},
		{
			name: "status update",
			body: `{"entry":[{"changes":[{"value":{"statuses":[{"id":"w1","status":"read"}]}}]}]}`,
		},
		{
			name: "unsupported type",
			body: `{"entry":[{"changes":[{"value":{"messages":[{"from":"1","id":"w4","type":"image"}]}}]}]}`,
		},
		{
			name: "blank text",
			body: `{"entry":[{"changes":[{"value":{"messages":[{"from":"1","id":"w5","type":"text","text":{"body":"   "}}]}}]}]}`,
		},
		{
			name: "empty entry",
			body: `{"entry":[]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := ParsePayload([]byte(tt.body))
			require.NoError(t, err)

			got, ok := payload.FirstMessage()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePayload_Invalid(t *testing.T) {
	_, err := ParsePayload([]byte("not json"))
	assert.Error(t, err)
}
