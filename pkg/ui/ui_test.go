package ui

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetQuiet(false)
	t.Cleanup(func() {
		SetOutput(os.Stdout)
		SetQuiet(false)
	})
	return &buf
}

func TestProgressLines(t *testing.T) {
	buf := captureOutput(t)

	p := NewProgress()
	p.Page(100)
	p.Page(100)
	p.Page(1234)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"Fetched 100 posts so far...",
		"Fetched 200 posts so far...",
		"Fetched 1,434 posts so far...",
	}, lines)
	assert.Equal(t, 3, p.Pages)
	assert.Contains(t, p.Summary(), "1,434 posts in 3 pages")
}

func TestQuietKeepsErrors(t *testing.T) {
	buf := captureOutput(t)
	SetQuiet(true)

	PrintSuccess("done")
	PrintInfo("Handle", "alice.test")
	PrintWarning("careful")
	PrintError("failed", "boom")
	PrintHint("check the handle")

	out := buf.String()
	assert.NotContains(t, out, "done")
	assert.NotContains(t, out, "careful")
	assert.Contains(t, out, "failed: boom")
	assert.Contains(t, out, "hint: check the handle")
	assert.True(t, IsQuiet())
}

func TestPrintHelpers(t *testing.T) {
	buf := captureOutput(t)

	PrintInfo("Total tokens", "1,000")
	PrintHighlight("ready")
	PrintWarning("slow", 3)

	out := buf.String()
	assert.Contains(t, out, "Total tokens")
	assert.Contains(t, out, "1,000")
	assert.Contains(t, out, "ready")
	assert.Contains(t, out, "slow: 3")
}

func TestFormatters(t *testing.T) {
	assert.Equal(t, "950,000", FormatCount(950000))
	assert.Equal(t, "1.0 MB", FormatBytes(1000000))
	assert.Equal(t, "0 B", FormatBytes(-1))
	assert.Contains(t, FormatAge(time.Now().Add(-2*time.Hour)), "hours ago")
}
