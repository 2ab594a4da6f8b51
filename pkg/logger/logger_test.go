package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", DebugLevel.String())
	assert.Equal(t, "INFO", InfoLevel.String())
	assert.Equal(t, "WARN", WarnLevel.String())
	assert.Equal(t, "ERROR", ErrorLevel.String())
	assert.Equal(t, "FATAL", FatalLevel.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("debug"))
	assert.Equal(t, WarnLevel, ParseLevel(" WARNING "))
	assert.Equal(t, ErrorLevel, ParseLevel("error"))
	assert.Equal(t, InfoLevel, ParseLevel("nonsense"))
}

func TestZeroLogger_Info(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(&Config{Level: DebugLevel, Output: buf})

	l.Info("song published", String("song_id", "s1"), Int("followers", 3))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "info", lines[0]["level"])
	assert.Equal(t, "song published", lines[0]["message"])
	assert.Equal(t, "s1", lines[0]["song_id"])
	assert.EqualValues(t, 3, lines[0]["followers"])
	assert.Contains(t, lines[0], "time")
}

func TestZeroLogger_FilteredByLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(&Config{Level: WarnLevel, Output: buf})

	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["message"])

	l.SetLevel(DebugLevel)
	assert.Equal(t, DebugLevel, l.GetLevel())
	l.Debug("now shown")
	assert.Len(t, decodeLines(t, buf), 2)
}

func TestZeroLogger_WithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	base := New(&Config{Level: InfoLevel, Output: buf})

	child := base.WithFields(String("component", "publish"))
	child.Info("child")
	base.Info("base")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "publish", lines[0]["component"])
	assert.NotContains(t, lines[1], "component")
}

func TestZeroLogger_WithContext(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(&Config{Level: InfoLevel, Output: buf})

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithUserID(ctx, "u1")
	ctx = WithSessionID(ctx, "sess-1")

	l.WithContext(ctx).Info("hello")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "req-1", lines[0]["request_id"])
	assert.Equal(t, "u1", lines[0]["user_id"])
	assert.Equal(t, "sess-1", lines[0]["session_id"])
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
}

func TestFieldHelpers(t *testing.T) {
	assert.Equal(t, Field{Key: "d", Value: "1.5s"}, Duration("d", 1500*time.Millisecond))
	assert.Equal(t, Field{Key: "error", Value: "boom"}, Error(errors.New("boom")))
	assert.Equal(t, Field{Key: "error", Value: nil}, Error(nil))
	assert.Equal(t, Field{Key: "ok", Value: true}, Bool("ok", true))
	assert.Equal(t, Field{Key: "n", Value: int64(7)}, Int64("n", 7))
	assert.Equal(t, Field{Key: "f", Value: 0.5}, Float64("f", 0.5))
}

func TestGlobalLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	prev := L()
	defer SetGlobalLogger(prev)

	SetGlobalLogger(New(&Config{Level: InfoLevel, Output: buf}))
	Info("global info")
	ErrorLog("global error", Error(errors.New("x")))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "error", lines[1]["level"])
}

func TestConsoleFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(&Config{Level: InfoLevel, Output: buf, Format: "console"})
	l.Info("plain text", String("k", "v"))
	assert.Contains(t, buf.String(), "plain text")
	assert.Contains(t, buf.String(), "k=v")
}

func TestConcurrentLogging(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(&Config{Level: InfoLevel, Output: buf})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.Info("concurrent", Int("i", i))
		}(i)
	}
	wg.Wait()

	assert.Len(t, decodeLines(t, buf), 20)
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Error("dropped")
	assert.NotNil(t, l.Writer())
}
