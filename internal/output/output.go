// Package output provides formatted CLI output for command runs.
package output

import (
	"fmt"
	"io"
	"time"
)

// Colors for terminal output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

// Output handles formatted output.
type Output struct {
	w        io.Writer
	useColor bool
	debug    bool
}

// New creates a new output handler.
func New(w io.Writer) *Output {
	return &Output{
		w:        w,
		useColor: true,
	}
}

// SetColor enables or disables color output.
func (o *Output) SetColor(enabled bool) {
	o.useColor = enabled
}

// SetDebug enables or disables debug output.
func (o *Output) SetDebug(enabled bool) {
	o.debug = enabled
}

// color returns the string wrapped in color codes if enabled.
func (o *Output) color(c, s string) string {
	if !o.useColor {
		return s
	}
	return c + s + colorReset
}

// RunStart prints the command about to run (debug mode only).
func (o *Output) RunStart(target, command string) {
	if !o.debug {
		return
	}
	o.printf("%s %s %s\n", o.color(colorBold, "EXEC"), command, o.color(colorGray, "("+target+")"))
}

// RunEnd prints how the command finished (debug mode only).
// Format: ✓ exit 0 (1.20s) | ✗ exit 3 (0.10s) | ✗ killed (0.10s)
func (o *Output) RunEnd(exitCode int, killed bool, d time.Duration) {
	if !o.debug {
		return
	}

	indicator, statusColor := "✓", colorGreen
	if exitCode != 0 {
		indicator, statusColor = "✗", colorRed
	}

	status := fmt.Sprintf("exit %d", exitCode)
	if killed {
		status = "killed"
	}

	o.printf("%s %s %s\n",
		o.color(statusColor, indicator),
		o.color(statusColor, status),
		o.color(colorGray, fmt.Sprintf("(%.2fs)", d.Seconds())))
}

// Info prints an informational message.
func (o *Output) Info(format string, args ...any) {
	o.printf("%s %s\n", o.color(colorBlue, "INFO"), fmt.Sprintf(format, args...))
}

// Warn prints a warning message.
func (o *Output) Warn(format string, args ...any) {
	o.printf("%s %s\n", o.color(colorYellow, "WARN"), fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (o *Output) Error(format string, args ...any) {
	o.printf("%s %s\n", o.color(colorRed, "ERROR"), fmt.Sprintf(format, args...))
}

// Debug prints a debug message (only in debug mode).
func (o *Output) Debug(format string, args ...any) {
	if o.debug {
		o.printf("%s %s\n", o.color(colorGray, "DEBUG"), fmt.Sprintf(format, args...))
	}
}

func (o *Output) printf(format string, args ...any) {
	fmt.Fprintf(o.w, format, args...)
}
