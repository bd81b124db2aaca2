package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandler(t *testing.T) {
	RecordChannelSend("pointer", 15*time.Millisecond, true)
	RecordChannelRetry("pointer")
	RecordReconnect(true)
	RecordStateTransition("ready")
	RecordToolExecution("click", time.Millisecond, false)
	RecordLLMStream("openai", time.Second, true)
	RecordAgentRun("completed", time.Second)

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `channel_send_total{capability="pointer",status="success"}`)
	assert.Contains(t, string(body), `tool_errors_total{tool="click"}`)
	assert.Contains(t, string(body), `channel_reconnects_total{status="success"}`)
}

func TestAuditLogger(t *testing.T) {
	var buf bytes.Buffer
	SetAuditWriter(&buf)

	RecordActionAudit(context.Background(), "click", "sess-1", "success", map[string]interface{}{"x": 1})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "action", entry["type"])
	assert.Equal(t, "execute:click", entry["action"])
	assert.Equal(t, "sess-1", entry["actor"])
	assert.NoError(t, GetAuditLogger().Close())
}
