package tui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/aretw0/decomp/pkg/domain"
)

// NewRenderer returns a function that renders markdown using glamour.
func NewRenderer() func(string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // Automatically detect light/dark background
	)
	return func(markdown string) (string, error) {
		if err != nil {
			return markdown, err
		}
		return r.Render(markdown)
	}
}

// ResultMarkdown formats a run summary as a markdown table.
func ResultMarkdown(name string, res domain.Result) string {
	var sb strings.Builder
	if name != "" {
		fmt.Fprintf(&sb, "## %s\n\n", name)
	}
	sb.WriteString("| | |\n|---|---|\n")
	fmt.Fprintf(&sb, "| Status | `%s` |\n", res.Status)
	fmt.Fprintf(&sb, "| Iterations | %d |\n", res.Iterations)
	fmt.Fprintf(&sb, "| Bound | %s |\n", FormatFloat(res.Bound))
	fmt.Fprintf(&sb, "| Objective | %s |\n", FormatFloat(res.Objective))
	fmt.Fprintf(&sb, "| Elapsed | %s |\n", res.Elapsed)
	if len(res.Solution) > 0 {
		parts := make([]string, len(res.Solution))
		for i, v := range res.Solution {
			parts[i] = FormatFloat(v)
		}
		fmt.Fprintf(&sb, "\n**Solution**: `[%s]`\n", strings.Join(parts, " "))
	}
	return sb.String()
}

// FormatFloat prints a value with six significant digits and infinities as ±inf.
func FormatFloat(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "+inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	return fmt.Sprintf("%.6g", v)
}
