package tui_test

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/decomp/internal/presentation/tui"
	"github.com/aretw0/decomp/pkg/domain"
)

func TestResultMarkdown(t *testing.T) {
	md := tui.ResultMarkdown("capacity", domain.Result{
		Status:     domain.StatusOptimal,
		Iterations: 4,
		Bound:      2.5,
		Objective:  2.5,
		Solution:   []float64{5, math.Inf(1)},
		Elapsed:    time.Millisecond,
	})

	assert.Contains(t, md, "## capacity")
	assert.Contains(t, md, "| Status | `optimal` |")
	assert.Contains(t, md, "| Iterations | 4 |")
	assert.Contains(t, md, "`[5 +inf]`")
}

func TestNewRenderer(t *testing.T) {
	out, err := tui.NewRenderer()("**bold**")
	require.NoError(t, err)
	assert.Contains(t, out, "bold")
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	tui.PrintBanner(&buf, "0.1.0")
	assert.Contains(t, buf.String(), "0.1.0")
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "-inf", tui.FormatFloat(math.Inf(-1)))
	assert.Equal(t, "2.5", tui.FormatFloat(2.5))
}
