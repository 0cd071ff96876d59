package debug

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitWriter(t *testing.T) {
	t.Cleanup(func() { Init(false) })

	var buf bytes.Buffer
	InitWriter(true, &buf)
	assert.True(t, Enabled())

	Debug("compiled plan", "key", "abc")
	With("cache", "plans").Info("evicted")
	out := buf.String()
	assert.Contains(t, out, "level=DEBUG")
	assert.Contains(t, out, `msg="compiled plan"`)
	assert.Contains(t, out, "component=objql")
	assert.Contains(t, out, "key=abc")
	assert.Contains(t, out, "cache=plans")

	buf.Reset()
	InitWriter(false, &buf)
	assert.False(t, Enabled())

	Debug("hidden")
	Warn("hidden too")
	Error("query failed", "error", "boom")
	out = buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "error=boom")
	assert.Same(t, Logger(), current())
}
