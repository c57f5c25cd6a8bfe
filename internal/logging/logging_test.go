package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerToRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, Config{Level: "warn", Format: "json"})

	logger.Info().Msg("hidden")
	logger.Warn().Str("component", "poller").Msg("shown")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "shown", entry["message"])
	assert.Equal(t, "poller", entry["component"])
	assert.Equal(t, "warn", entry["level"])
}

func TestCronLoggerBridgesErrors(t *testing.T) {
	var buf bytes.Buffer
	cl := NewCronLogger(NewLoggerTo(&buf, Config{Level: "debug"}))

	cl.Error(errors.New("job panicked"), "panic", "entry", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "cron", entry["component"])
	assert.Equal(t, "job panicked", entry["error"])
	assert.EqualValues(t, 3, entry["entry"])
}
