package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuredOutput(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, DebugLevel)

	log.Info("session active", String("session_id", "77"), Int("chunks", 3))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "session active", entry["message"])
	assert.Equal(t, "77", entry["session_id"])
	assert.Equal(t, float64(3), entry["chunks"])
	assert.NotEmpty(t, entry["timestamp"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, WarnLevel)

	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("visible")
	log.Error("visible")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 2)
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, InfoLevel).WithFields(String("component", "store"))

	log.Info("put ok")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "store", entry["component"])
}

func TestErrorField(t *testing.T) {
	assert.Nil(t, Error(nil).Value)
	assert.Equal(t, assert.AnError.Error(), Error(assert.AnError).Value)
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, InfoLevel)
	assert.Equal(t, InfoLevel, log.GetLevel())

	log.SetLevel(ErrorLevel)
	assert.Equal(t, ErrorLevel, log.GetLevel())
	log.Info("hidden")
	assert.Empty(t, buf.String())
}
