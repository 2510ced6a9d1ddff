package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the decomp banner and version to w.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	lines := []struct{ text, color string }{
		{"      _                              ", "#818cf8"},
		{"   __| | ___  ___ ___  _ __ ___  _ __ ", "#a78bfa"},
		{"  / _` |/ _ \\/ __/ _ \\| '_ ` _ \\| '_ \\", "#c084fc"},
		{" | (_| |  __/ (_| (_) | | | | | | |_) |", "#e879f9"},
		{"  \\__,_|\\___|\\___\\___/|_| |_| |_| .__/", "#f472b6"},
		{"                                 |_|   ", "#fb7185"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintf(w, "  %s\n\n", termenv.String(version).Faint())
}
