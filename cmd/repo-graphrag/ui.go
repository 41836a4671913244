package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	red   = color.New(color.FgRed)
	green = color.New(color.FgGreen)
	cyan  = color.New(color.FgCyan)
	bold  = color.New(color.Bold)
	dim   = color.New(color.Faint)
)

// initColors disables color when asked; fatih/color already honours
// NO_COLOR and non-TTY output.
func initColors(noColor bool) {
	if noColor {
		color.NoColor = true
	}
}

func successf(w io.Writer, format string, args ...any) {
	_, _ = green.Fprintf(w, "✓ "+format+"\n", args...)
}

func errorf(w io.Writer, format string, args ...any) {
	_, _ = red.Fprintf(w, "✗ "+format+"\n", args...)
}

func infof(w io.Writer, format string, args ...any) {
	_, _ = cyan.Fprintf(w, "ℹ "+format+"\n", args...)
}

// row prints one "label value" line of a summary.
func row(w io.Writer, label string, value any) {
	fmt.Fprintf(w, "  %s %v\n", bold.Sprintf("%-14s", label), value)
}

func path(s string) string {
	return dim.Sprint(s)
}
