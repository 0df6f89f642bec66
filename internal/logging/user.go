package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// Writers for operator messages. Tests replace them.
var (
	Out    io.Writer = os.Stdout
	ErrOut io.Writer = os.Stderr
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
)

// Step announces one step of a multi-step operation
func Step(format string, args ...any) {
	fmt.Fprintf(Out, "🔨 %s\n", fmt.Sprintf(format, args...))
}

// Info prints a plain status line
func Info(format string, args ...any) {
	fmt.Fprintf(Out, "%s\n", fmt.Sprintf(format, args...))
}

// Success prints a completed-operation line
func Success(format string, args ...any) {
	fmt.Fprintf(Out, "✅ %s\n", green(fmt.Sprintf(format, args...)))
}

// Warning prints a non-fatal problem
func Warning(format string, args ...any) {
	fmt.Fprintf(ErrOut, "⚠️  %s\n", yellow(fmt.Sprintf(format, args...)))
}

// Failure prints a failed operation
func Failure(format string, args ...any) {
	fmt.Fprintf(ErrOut, "❌ %s\n", red(fmt.Sprintf(format, args...)))
}

// StatusColor colors a container status the way list output shows it
func StatusColor(status string) string {
	switch status {
	case "running":
		return green(status)
	case "exited", "stopped", "created", "paused":
		return yellow(status)
	case "":
		return status
	default:
		return red(status)
	}
}
