package log

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Not parallel: the logger and its level are package globals.
func TestLevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetLevel(LevelInfo) })

	SetLevel(LevelInfo)
	Debug("hidden", "k", 1)
	Info("render done", "drawings", 3)
	Error("fetch failed", errors.New("boom"), "id", "work")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "render done")
	assert.Contains(t, out, `"drawings": 3`)
	assert.Contains(t, out, `"err": "boom"`)
	assert.Contains(t, out, `"id": "work"`)

	buf.Reset()
	SetLevel(LevelDebug)
	Debug("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestParseLevel(t *testing.T) {
	l, ok := ParseLevel(" debug ")
	assert.True(t, ok)
	assert.Equal(t, LevelDebug, l)

	l, ok = ParseLevel("")
	assert.True(t, ok)
	assert.Equal(t, LevelInfo, l)

	_, ok = ParseLevel("verbose")
	assert.False(t, ok)
}
