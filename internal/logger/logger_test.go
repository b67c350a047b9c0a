package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContextAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	SetOutput("production", &buf)
	t.Cleanup(func() { SetOutput("production", &bytes.Buffer{}) })

	ctx := WithRequestID(context.Background(), "req-123")
	CtxWarn(ctx, "invalid signature", "order_id", "order_1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "invalid signature", line["msg"])
	assert.Equal(t, "req-123", line["request_id"])
	assert.Equal(t, "order_1", line["order_id"])
}

func TestGetRequestIDMissing(t *testing.T) {
	assert.Equal(t, "", GetRequestID(context.Background()))
}

func TestHTTPLogLevelByStatus(t *testing.T) {
	var buf bytes.Buffer
	SetOutput("production", &buf)
	t.Cleanup(func() { SetOutput("production", &bytes.Buffer{}) })

	HTTPLog(context.Background(), "POST", "/api/payment/verify", 502, 0, "10.0.0.1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "ERROR", line["level"])
	assert.Equal(t, float64(502), line["status"])
}

func TestWithAddsComponentFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput("production", &buf)
	t.Cleanup(func() { SetOutput("production", &bytes.Buffer{}) })

	With("component", "donation_relay").Info("relay started")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "donation_relay", line["component"])
	assert.Equal(t, "relay started", line["msg"])
}
