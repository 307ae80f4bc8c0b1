package webhook

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oslianyabel/basic-wa-bot/pkg/agent"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeProcessor struct {
	mu    sync.Mutex
	calls []string
	reply agent.Reply
	block chan struct{}
}

func (p *fakeProcessor) ProcessAsync(ctx context.Context, userID, text string) <-chan agent.Reply {
	p.mu.Lock()
	p.calls = append(p.calls, userID+":"+text)
	p.mu.Unlock()

	out := make(chan agent.Reply, 1)
	go func() {
		defer close(out)
		if p.block != nil {
			<-p.block
		}
		out <- p.reply
	}()
	return out
}

func (p *fakeProcessor) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

type fakeMessenger struct {
	mu   sync.Mutex
	read []string
	sent []string
}

func (m *fakeMessenger) MarkAsRead(ctx context.Context, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.read = append(m.read, messageID)
	return nil
}

func (m *fakeMessenger) Notify(ctx context.Context, userID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, userID+":"+text)
	return nil
}

func (m *fakeMessenger) Snapshot() (read, sent []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.read...), append([]string(nil), m.sent...)
}

func createTestServer(t *testing.T, processor *fakeProcessor, messenger *fakeMessenger) *Server {
	t.Helper()
	server, err := NewServer(ServerOptions{
		VerifyToken:        "secret",
		RateLimitPerSecond: 100,
		RateLimitBurst:     100,
		ShutdownTimeout:    time.Second,
		Logger:             zerolog.Nop(),
	}, processor, messenger)
	require.NoError(t, err)
	t.Cleanup(server.limiter.Stop)
	return server
}

const textPayload = `{
	"object": "whatsapp_business_account",
	"entry": [{"changes": [{"value": {"messages": [
		{"from": "5350000001", "id": "wamid.1", "type": "text", "text": {"body": "  hola  "}}
	]}}]}]
}`

func doRequest(server *Server, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	return w
}

func TestNewServer(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		server := createTestServer(t, &fakeProcessor{}, &fakeMessenger{})
		assert.Equal(t, "0.0.0.0:8000", server.Addr())
	})

	t.Run("requires collaborators", func(t *testing.T) {
		_, err := NewServer(ServerOptions{VerifyToken: "x"}, nil, &fakeMessenger{})
		assert.Error(t, err)
		_, err = NewServer(ServerOptions{VerifyToken: "x"}, &fakeProcessor{}, nil)
		assert.Error(t, err)
		_, err = NewServer(ServerOptions{}, &fakeProcessor{}, &fakeMessenger{})
		assert.Error(t, err)
	})
}

func TestHealth(t *testing.T) {
	server := createTestServer(t, &fakeProcessor{}, &fakeMessenger{})

	w := doRequest(server, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, ServiceName, body["service"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestVerify(t *testing.T) {
	server := createTestServer(t, &fakeProcessor{}, &fakeMessenger{})

	tests := []struct {
		name   string
		query  string
		status int
		body   string
	}{
		{name: "valid", query: "hub.mode=subscribe&hub.verify_token=secret&hub.challenge=1158201444", status: http.StatusOK, body: "1158201444"},
		{name: "wrong token", query: "hub.mode=subscribe&hub.verify_token=nope&hub.challenge=1", status: http.StatusForbidden},
		{name: "wrong mode", query: "hub.mode=unsubscribe&hub.verify_token=secret&hub.challenge=1", status: http.StatusForbidden},
		{name: "non numeric challenge", query: "hub.mode=subscribe&hub.verify_token=secret&hub.challenge=abc", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(server, http.MethodGet, "/whatsapp?"+tt.query, "")
			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestHandleMessage(t *testing.T) {
	t.Run("processes and replies in the background", func(t *testing.T) {
		processor := &fakeProcessor{reply: agent.Reply{Text: "respuesta", OK: true}}
		messenger := &fakeMessenger{}
		server := createTestServer(t, processor, messenger)

		w := doRequest(server, http.MethodPost, "/whatsapp", textPayload)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

		require.True(t, server.Wait(2*time.Second))
		assert.Equal(t, []string{"5350000001:hola"}, processor.Calls())

		read, sent := messenger.Snapshot()
		assert.Equal(t, []string{"wamid.1"}, read)
		assert.Equal(t, []string{"5350000001:respuesta"}, sent)
	})

	t.Run("failed run sends nothing", func(t *testing.T) {
		processor := &fakeProcessor{reply: agent.Reply{}}
		messenger := &fakeMessenger{}
		server := createTestServer(t, processor, messenger)

		doRequest(server, http.MethodPost, "/whatsapp", textPayload)
		require.True(t, server.Wait(2*time.Second))

		_, sent := messenger.Snapshot()
		assert.Empty(t, sent)
	})

	t.Run("invalid body", func(t *testing.T) {
		processor := &fakeProcessor{}
		server := createTestServer(t, processor, &fakeMessenger{})

		w := doRequest(server, http.MethodPost, "/whatsapp", "{not json")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"error"}`, w.Body.String())
		assert.Empty(t, processor.Calls())
	})

	t.Run("status update is acknowledged", func(t *testing.T) {
		processor := &fakeProcessor{}
		server := createTestServer(t, processor, &fakeMessenger{})

		w := doRequest(server, http.MethodPost, "/whatsapp", `{"entry":[{"changes":[{"value":{"statuses":[{"id":"x"}]}}]}]}`)
		assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
		require.True(t, server.Wait(time.Second))
		assert.Empty(t, processor.Calls())
	})
}

func TestStopWaitsForRuns(t *testing.T) {
	block := make(chan struct{})
	processor := &fakeProcessor{reply: agent.Reply{Text: "fin", OK: true}, block: block}
	messenger := &fakeMessenger{}
	server := createTestServer(t, processor, messenger)

	doRequest(server, http.MethodPost, "/whatsapp", textPayload)
	assert.False(t, server.Wait(50*time.Millisecond))

	close(block)
	require.NoError(t, server.Stop(context.Background()))

	_, sent := messenger.Snapshot()
	assert.Equal(t, []string{"5350000001:fin"}, sent)

	doRequest(server, http.MethodPost, "/whatsapp", textPayload)
	assert.Len(t, processor.Calls(), 1)
}

func TestStopDrainsRunsWhenShutdownFails(t *testing.T) {
	block := make(chan struct{})
	processor := &fakeProcessor{reply: agent.Reply{Text: "fin", OK: true}, block: block}
	messenger := &fakeMessenger{}
	server := createTestServer(t, processor, messenger)

	doRequest(server, http.MethodPost, "/whatsapp", textPayload)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	accepted := make(chan struct{}, 1)
	server.server = &http.Server{
		Handler: server.Handler(),
		ConnState: func(_ net.Conn, state http.ConnState) {
			if state == http.StateNew {
				select {
				case accepted <- struct{}{}:
				default:
				}
			}
		},
	}
	go func() { _ = server.server.Serve(ln) }()

	// a half-written request keeps the connection from going idle
	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("GET /health HTTP/1.1\r\n"))
	require.NoError(t, err)
	<-accepted

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(block)
	}()

	err = server.Stop(ctx)
	require.ErrorIs(t, err, context.Canceled)

	_, sent := messenger.Snapshot()
	assert.Equal(t, []string{"5350000001:fin"}, sent)

	select {
	case <-server.limiter.stopCleanup:
	default:
		t.Fatal("rate limiter cleanup still running")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	server, err := NewServer(ServerOptions{
		VerifyToken:        "secret",
		RateLimitPerSecond: 0.001,
		RateLimitBurst:     2,
		Logger:             zerolog.Nop(),
	}, &fakeProcessor{}, &fakeMessenger{})
	require.NoError(t, err)
	t.Cleanup(server.limiter.Stop)

	for i := 0; i < 2; i++ {
		w := doRequest(server, http.MethodGet, "/whatsapp?hub.mode=subscribe&hub.verify_token=secret&hub.challenge=1", "")
		assert.Equal(t, http.StatusOK, w.Code)
	}
	w := doRequest(server, http.MethodGet, "/whatsapp?hub.mode=subscribe&hub.verify_token=secret&hub.challenge=1", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	assert.Equal(t, http.StatusOK, doRequest(server, http.MethodGet, "/health", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	server := createTestServer(t, &fakeProcessor{}, &fakeMessenger{})
	doRequest(server, http.MethodGet, "/health", "")

	w := doRequest(server, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "webhook_requests_total")
}
