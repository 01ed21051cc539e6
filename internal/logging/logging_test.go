package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter(&buf, LevelNormal, FormatJSON)
	t.Cleanup(func() { SetupWriter(&bytes.Buffer{}, LevelNormal, FormatConsole) })

	Logger.Debug().Msg("hidden")
	Logger.Info().Int("count", 3).Msg("visible")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "visible", entry["message"])
	assert.Equal(t, "sportlog", entry["app"])
	assert.EqualValues(t, 3, entry["count"])
	assert.False(t, IsVerbose())
}

func TestSetupWriterVerbose(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter(&buf, LevelTrace, FormatJSON)
	t.Cleanup(func() { SetupWriter(&bytes.Buffer{}, LevelNormal, FormatConsole) })

	assert.True(t, IsVerbose())
	assert.True(t, IsTraceEnabled())

	(&LeveledLogger{}).Debug("performing request", "url", "http://example")
	assert.Contains(t, buf.String(), "performing request")
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, ParseFormat("json"))
	assert.Equal(t, FormatConsole, ParseFormat("console"))
	assert.Equal(t, FormatConsole, ParseFormat(""))
}

func TestToJSON(t *testing.T) {
	assert.Equal(t, "null", ToJSON(nil))
	assert.Equal(t, `{"a":1}`, ToJSON(map[string]int{"a": 1}))
	assert.Equal(t, "<marshal error>", ToJSON(make(chan int)))

	long := ToJSON(strings.Repeat("x", 3000))
	assert.True(t, strings.HasSuffix(long, "...(truncated)"))
}

func TestKeyValueHelpers(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter(&buf, LevelNormal, FormatJSON)
	t.Cleanup(func() { SetupWriter(&bytes.Buffer{}, LevelNormal, FormatConsole) })

	Info("tool call", "tool", "log_activity", "user", "alice")
	Debug("not shown")
	Warn("careful")
	Error("broken", "code", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "log_activity", entry["tool"])
	assert.Equal(t, "alice", entry["user"])

	require.NoError(t, json.Unmarshal([]byte(lines[2]), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.EqualValues(t, 3, entry["code"])
}
