// Package ui provides terminal output for the mistral-ocr CLI.
package ui

import (
	"io"
	"os"

	"github.com/fatih/color"
)

var (
	verboseFlag bool

	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// InitUI initializes the UI with color and verbose settings.
func InitUI(noColor, verbose bool) {
	verboseFlag = verbose

	if noColor {
		color.NoColor = true
	}
}

// SetOutput redirects regular and error output.
func SetOutput(out, errOut io.Writer) {
	if out != nil {
		stdout = out
	}
	if errOut != nil {
		stderr = errOut
	}
}
