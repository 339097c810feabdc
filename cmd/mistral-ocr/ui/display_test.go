package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func captureOutput(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	prevOut, prevErr, prevColor, prevVerbose := stdout, stderr, color.NoColor, verboseFlag
	SetOutput(&out, &errOut)
	t.Cleanup(func() {
		stdout, stderr = prevOut, prevErr
		color.NoColor = prevColor
		verboseFlag = prevVerbose
	})
	return &out, &errOut
}

func TestMessages(t *testing.T) {
	out, errOut := captureOutput(t)
	InitUI(true, false)

	Success("wrote %d files", 2)
	Error("failed: %s", "boom")
	Detail("hidden unless verbose")

	assert.Equal(t, "✓ wrote 2 files\n", out.String())
	assert.Equal(t, "✗ failed: boom\n", errOut.String())

	InitUI(true, true)
	Detail("elapsed %s", "1.0s")
	assert.Contains(t, out.String(), "  elapsed 1.0s\n")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0.4s", FormatDuration(400*time.Millisecond))
	assert.Equal(t, "12.3s", FormatDuration(12340*time.Millisecond))
	assert.Equal(t, "2m 5s", FormatDuration(125*time.Second))
	assert.Equal(t, "1h 1m 1s", FormatDuration(time.Hour+time.Minute+time.Second))
}

func TestFormatList(t *testing.T) {
	assert.Equal(t, "  • a\n  • b\n", FormatList([]string{"a", "b"}))
}
