package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggerTextOutputIncludesFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: Debug, Output: &buf, Format: FormatText})

	l.Info("insert completed", Fields{"fs": "fs1", "path": "/a/b.txt"})

	out := buf.String()
	require.Contains(t, out, "insert completed")
	require.Contains(t, out, "fs=fs1")
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: Warn, Output: &buf, Format: FormatText})

	l.Debug("should not appear")
	l.Info("also should not appear")
	l.Warn("should appear")

	out := buf.String()
	require.False(t, strings.Contains(out, "should not appear"))
	require.Contains(t, out, "should appear")
}

func TestWithComponentPersistsAcrossCalls(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: Debug, Output: &buf, Format: FormatText})
	child := base.WithComponent("reclaim")

	child.Info("enqueued blob")

	require.Contains(t, buf.String(), "component=reclaim")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: Debug, Output: &buf, Format: FormatJSON})

	l.Error("boom", Fields{"fileId": "F1"})

	out := buf.String()
	require.Contains(t, out, `"level":"ERROR"`)
	require.Contains(t, out, `"fileId":"F1"`)
}
