package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWriterEmitsFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "debug").Component("session")

	l.Info("frame dropped",
		String("conn_id", "abc"),
		Int("bytes", 12),
		Float64("storage", 12.5),
		Duration("delay_ms", 5*time.Second),
		Error(errors.New("boom")),
	)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	assert.Equal(t, "info", m["level"])
	assert.Equal(t, "frame dropped", m["message"])
	assert.Equal(t, "session", m["component"])
	assert.Equal(t, "abc", m["conn_id"])
	assert.Equal(t, 12.0, m["bytes"])
	assert.Equal(t, 12.5, m["storage"])
	assert.Equal(t, 5000.0, m["delay_ms"])
	assert.Equal(t, "boom", m["error"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "warn")
	l.Debug("hidden")
	l.Info("hidden")
	assert.Zero(t, buf.Len())

	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud", Output: "stdout"})
	require.Error(t, err)
}

func TestNopDiscards(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop().With(String("k", "v")).Error("ignored", Error(nil))
	})
}
