package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithUserID(ctx, "5350000001")

	logger := LoggerFromContext(ctx, base)
	logger.Info().Msg("test")

	output := buf.String()
	if !strings.Contains(output, `"request_id":"req-1"`) {
		t.Errorf("Expected request_id in log output, got %s", output)
	}
	if !strings.Contains(output, `"user_id":"5350000001"`) {
		t.Errorf("Expected user_id in log output, got %s", output)
	}
	if strings.Contains(output, "run_id") {
		t.Errorf("Unexpected run_id in log output: %s", output)
	}
}

func TestDetach(t *testing.T) {
	parent, cancel := context.WithCancel(WithRequestID(context.Background(), "req-1"))
	detached := Detach(parent)
	cancel()

	if detached.Err() != nil {
		t.Error("Detached context was cancelled with its parent")
	}
	if GetRequestID(detached) != "req-1" {
		t.Errorf("Expected request ID req-1, got %s", GetRequestID(detached))
	}
}
