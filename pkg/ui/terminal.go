// Package ui prints operator-facing progress and results to stdout.
package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
)

var (
	mu     sync.Mutex
	output io.Writer = os.Stdout
	quiet  bool
)

// SetOutput redirects console output, mainly for tests
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// SetQuiet suppresses everything except errors
func SetQuiet(q bool) {
	mu.Lock()
	defer mu.Unlock()
	quiet = q
}

// IsQuiet reports whether quiet mode is on
func IsQuiet() bool {
	mu.Lock()
	defer mu.Unlock()
	return quiet
}

func emit(s string, force bool) {
	mu.Lock()
	defer mu.Unlock()
	if quiet && !force {
		return
	}
	fmt.Fprintln(output, s)
}

func withArg(msg string, args []interface{}) string {
	if len(args) > 0 {
		return msg + ": " + fmt.Sprintf("%v", args[0])
	}
	return msg
}

// PrintTitle prints a boxed title
func PrintTitle(title string) {
	emit(titleStyle.Render(title), false)
}

// PrintError prints an error message. Errors are shown even in quiet mode.
func PrintError(msg string, args ...interface{}) {
	emit(errorStyle.Render(withArg(msg, args)), true)
}

// PrintSuccess prints a success message
func PrintSuccess(msg string) {
	emit(successStyle.Render(msg), false)
}

// PrintInfo prints a labelled value
func PrintInfo(label string, value string) {
	emit(fmt.Sprintf("%s: %s", labelStyle.Render(label), valueStyle.Render(value)), false)
}

// PrintWarning prints a warning message
func PrintWarning(msg string, args ...interface{}) {
	emit(warningStyle.Render(withArg(msg, args)), false)
}

// PrintHighlight prints a highlighted message
func PrintHighlight(msg string) {
	emit(highlightStyle.Render(msg), false)
}

// PrintHint prints an actionable hint below an error. Hints accompany
// errors so they are shown in quiet mode too.
func PrintHint(msg string) {
	emit(hintStyle.Render("hint: "+msg), true)
}

// Println prints an unstyled line
func Println(msg string) {
	emit(msg, false)
}
