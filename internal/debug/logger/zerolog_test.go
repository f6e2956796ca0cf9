package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarning, ParseLevel("warn"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}

func TestZerologWritesComponentAndFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewZerolog(&buf, LevelInfo)

	log.Debug("Loader", "hidden", nil)
	assert.Zero(t, buf.Len())

	log.Error("Loader", errors.New("boom"), map[string]interface{}{"path": "a.dng"})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Loader", entry["component"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "a.dng", entry["path"])
	assert.Equal(t, "error", entry["level"])
}
