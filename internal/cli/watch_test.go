package cli_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/decomp/internal/cli"
	"github.com/aretw0/decomp/internal/logging"
)

func TestWatchFiles(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "problem.yaml")
	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(target, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(other, []byte("a"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	changes, err := cli.WatchFiles(ctx, logging.NewNop(), target)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(other, []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(target, []byte("b"), 0o644))

	select {
	case path := <-changes:
		want, _ := filepath.Abs(target)
		assert.Equal(t, want, path)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	for range changes {
	}
}

func TestWatchFiles_MissingFile(t *testing.T) {
	_, err := cli.WatchFiles(context.Background(), logging.NewNop(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
