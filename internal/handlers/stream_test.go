package handlers

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testFlusher struct {
	flushes int
}

func (f *testFlusher) Flush() {
	f.flushes++
}

func TestWriteSSEJSON(t *testing.T) {
	var output bytes.Buffer
	writer := bufio.NewWriter(&output)
	flusher := &testFlusher{}

	require.NoError(t, writeSSEJSON(writer, flusher, "hello", map[string]any{"ok": true, "userId": "u1"}))
	raw := output.String()
	require.True(t, strings.HasPrefix(raw, "event: hello\ndata: "), raw)
	require.True(t, strings.HasSuffix(raw, "\n\n"), raw)
	assert.Equal(t, 1, flusher.flushes)

	payloadText := strings.TrimSuffix(strings.TrimPrefix(raw, "event: hello\ndata: "), "\n\n")
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(payloadText), &payload))
	assert.Equal(t, true, payload["ok"])
	assert.Equal(t, "u1", payload["userId"])
}

func TestWriteSSEComment(t *testing.T) {
	var output bytes.Buffer
	writer := bufio.NewWriter(&output)
	flusher := &testFlusher{}

	require.NoError(t, writeSSEComment(writer, flusher, "ping"))
	assert.Equal(t, ": ping\n\n", output.String())
	assert.Equal(t, 1, flusher.flushes)
}

func TestWriteSSEEventKeepsRawPayload(t *testing.T) {
	var output bytes.Buffer
	writer := bufio.NewWriter(&output)

	require.NoError(t, writeSSEEvent(writer, &testFlusher{}, "message.created", []byte(`{"source":"inbox.send"}`)))
	assert.Equal(t, "event: message.created\ndata: {\"source\":\"inbox.send\"}\n\n", output.String())
}
