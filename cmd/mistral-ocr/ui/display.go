package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	blue   = color.New(color.FgBlue).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

// Header displays the program banner.
func Header(title, subtitle string) {
	fmt.Fprintf(stdout, "\n%s\n", bold(blue(title)))
	if subtitle != "" {
		fmt.Fprintf(stdout, "%s\n", faint(subtitle))
	}
	fmt.Fprintln(stdout)
}

// Message displays a simple message without decoration.
func Message(format string, args ...interface{}) {
	fmt.Fprintf(stdout, format, args...)
	fmt.Fprintln(stdout)
}

// Error displays an error message to stderr.
func Error(format string, args ...interface{}) {
	fmt.Fprintf(stderr, "%s %s\n", red("✗"), fmt.Sprintf(format, args...))
}

// Success displays a success message.
func Success(format string, args ...interface{}) {
	fmt.Fprintf(stdout, "%s %s\n", green("✓"), fmt.Sprintf(format, args...))
}

// Warning displays a warning message.
func Warning(format string, args ...interface{}) {
	fmt.Fprintf(stdout, "%s %s\n", yellow("⚠"), fmt.Sprintf(format, args...))
}

// Info displays an informational message.
func Info(format string, args ...interface{}) {
	fmt.Fprintf(stdout, "%s %s\n", blue("ℹ"), fmt.Sprintf(format, args...))
}

// Detail displays an indented line, only in verbose mode.
func Detail(format string, args ...interface{}) {
	if !verboseFlag {
		return
	}
	fmt.Fprintf(stdout, "  %s\n", faint(fmt.Sprintf(format, args...)))
}

// Newline prints a newline.
func Newline() {
	fmt.Fprintln(stdout)
}

// FormatList formats a list of items as bullets.
func FormatList(items []string) string {
	var sb strings.Builder
	for _, item := range items {
		sb.WriteString(fmt.Sprintf("  • %s\n", item))
	}
	return sb.String()
}

// FormatDuration formats a duration in a human-readable way. Durations
// under a minute keep one decimal.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}

	d = d.Round(time.Second)

	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
