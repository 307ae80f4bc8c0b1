package daemon

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oslianyabel/basic-wa-bot/internal/config"
	"github.com/oslianyabel/basic-wa-bot/pkg/completion"
	"github.com/oslianyabel/basic-wa-bot/pkg/completion/completiontest"
	"github.com/oslianyabel/basic-wa-bot/pkg/message"
)

type graphRecorder struct {
	mu     sync.Mutex
	bodies []map[string]interface{}
}

func (g *graphRecorder) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &body))

		g.mu.Lock()
		g.bodies = append(g.bodies, body)
		g.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.out"}],"success":true}`))
	}
}

func (g *graphRecorder) texts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for _, body := range g.bodies {
		if text, ok := body["text"].(map[string]interface{}); ok {
			out = append(out, text["body"].(string))
		}
	}
	return out
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func withCompletionClient(t *testing.T, client completion.Client) {
	t.Helper()
	previous := newCompletionClient
	newCompletionClient = func(config.OpenAIConfig, zerolog.Logger) completion.Client { return client }
	t.Cleanup(func() { newCompletionClient = previous })
}

func createTestDaemon(t *testing.T, client completion.Client) (*Daemon, *graphRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	withCompletionClient(t, client)

	graph := &graphRecorder{}
	srv := httptest.NewServer(graph.handler(t))
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig()
	cfg.OpenAI.APIKey = "sk-test-key"
	cfg.WhatsApp.AccessToken = "EAAtest"
	cfg.WhatsApp.PhoneNumberID = "123"
	cfg.WhatsApp.VerifyToken = "vibecode"
	cfg.WhatsApp.BaseURL = srv.URL
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = freePort(t)
	cfg.Server.ShutdownTimeout = 2 * time.Second
	cfg.Users.File = filepath.Join(t.TempDir(), "users.json")

	d, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	return d, graph
}

const inbound = `{"entry":[{"changes":[{"value":{"messages":[
	{"from":"5350000001","id":"wamid.in","type":"text","text":{"body":"Hola"}}
]}}]}]}`

func TestNew(t *testing.T) {
	d, _ := createTestDaemon(t, completiontest.New())

	assert.NotNil(t, d.GetConfig())
	assert.NotNil(t, d.GetService())
	assert.NotNil(t, d.GetWebhookServer())
	assert.NotNil(t, d.GetSweeper())
	assert.Equal(t, []string{"fast_user_check", "set_user_data", "user_check", "user_register"}, d.GetCore().Registry.Names())
}

func TestNewRejectsBrokenRegistry(t *testing.T) {
	withCompletionClient(t, completiontest.New())

	cfg := config.DefaultConfig()
	cfg.OpenAI.APIKey = "sk-test-key"
	cfg.Users.File = t.TempDir()

	_, err := New(cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestDaemonStartStop(t *testing.T) {
	d, _ := createTestDaemon(t, completiontest.New())

	require.NoError(t, d.Start())
	assert.Error(t, d.Start())
	assert.True(t, d.Status().Running)
	assert.True(t, d.GetSweeper().IsRunning())

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + d.GetWebhookServer().Addr() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, d.Stop())
	assert.False(t, d.Status().Running)
	assert.False(t, d.GetSweeper().IsRunning())
	assert.Error(t, d.Stop())
}

func TestWebhookToReply(t *testing.T) {
	client := completiontest.New(
		completiontest.Items(message.FunctionCallRequest{ID: "fc_1", CallID: "call_1", Name: "fast_user_check", Arguments: "{}"}),
		completiontest.Text("Hola, ¿cuál es tu email?"),
	)
	d, graph := createTestDaemon(t, client)

	req := httptest.NewRequest(http.MethodPost, "/whatsapp", strings.NewReader(inbound))
	w := httptest.NewRecorder()
	d.GetWebhookServer().Handler().ServeHTTP(w, req)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	require.True(t, d.GetWebhookServer().Wait(3*time.Second))
	assert.Equal(t, []string{"Hola, ¿cuál es tu email?"}, graph.texts())

	requests := client.Requests()
	require.Len(t, requests, 2)
	last := requests[1].Input[len(requests[1].Input)-1]
	assert.Equal(t, message.RoleToolOutput, last.Role)
	assert.Equal(t, "El usuario con el telefono 5350000001 y el email  no está registrado", last.Content)

	history := d.GetCore().Store.Get("5350000001", false)
	require.Len(t, history, 2)
	assert.Equal(t, "Hola", history[0].Content)

	_, tracked := d.GetSweeper().LastActivity("5350000001")
	assert.True(t, tracked)
	assert.Equal(t, 1, d.Status().Conversations)
}
