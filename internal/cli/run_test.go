package cli_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/decomp/internal/cli"
)

const sharing = "../../examples/sharing/problem.yaml"

func TestExecute_PrintsPlainResult(t *testing.T) {
	for _, mode := range []string{"tree", "hub", "distributed"} {
		t.Run(mode, func(t *testing.T) {
			var out bytes.Buffer
			err := cli.Execute(cli.RunOptions{
				ProblemPath: sharing,
				Mode:        mode,
				Ranks:       2,
				Rank:        -1,
				OutputDir:   t.TempDir(),
				LogLevel:    "error",
				Stdout:      &out,
			})
			require.NoError(t, err)
			assert.Contains(t, out.String(), ">>> Status:     optimal")
			assert.Contains(t, out.String(), ">>> Bound:      -26")
		})
	}
}

func TestExecute_AppliesOverrides(t *testing.T) {
	var out bytes.Buffer
	err := cli.Execute(cli.RunOptions{
		ProblemPath: sharing,
		Mode:        "tree",
		Rank:        -1,
		OutputDir:   t.TempDir(),
		LogLevel:    "error",
		Overrides:   map[string]string{"max_iterations": "1"},
		Stdout:      &out,
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "max_iteration")
}

func TestExecute_Errors(t *testing.T) {
	tests := []struct {
		name string
		opts cli.RunOptions
	}{
		{"unknown mode", cli.RunOptions{ProblemPath: sharing, Mode: "ring", Rank: -1}},
		{"missing problem", cli.RunOptions{ProblemPath: "missing.yaml", Mode: "tree", Rank: -1}},
		{"bad log level", cli.RunOptions{ProblemPath: sharing, Mode: "tree", Rank: -1, LogLevel: "loud"}},
		{"bad override", cli.RunOptions{ProblemPath: sharing, Mode: "tree", Rank: -1, Overrides: map[string]string{"max_iterations": "many"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Stdout = &bytes.Buffer{}
			tt.opts.OutputDir = t.TempDir()
			assert.Error(t, cli.Execute(tt.opts))
		})
	}
}

func TestValidate(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, cli.Validate(&out, sharing, ""))
	assert.Contains(t, out.String(), `Problem "sharing" is valid: lagrangian decomposition with 3 children.`)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("decomposition: lagrangian\n"), 0o644))
	assert.Error(t, cli.Validate(&out, bad, ""))
}

func TestGraph(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, cli.Graph(&out, sharing, "", 2))
	assert.Contains(t, out.String(), "graph TD")
	assert.Contains(t, out.String(), "class n3 rank0;")
}
