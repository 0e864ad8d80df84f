package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symmetricalboy/bsky-to-gem/pkg/ui"
)

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var buf bytes.Buffer
	ui.SetOutput(io.Discard)
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		ui.SetOutput(os.Stdout)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := Execute(context.Background())
	return buf.String(), err
}

func TestMissingHandlePrintsUsage(t *testing.T) {
	t.Chdir(t.TempDir())

	for _, args := range [][]string{{}, {""}, {"   "}, {"a.test", "b.test"}} {
		out, err := runRoot(t, args...)
		require.Error(t, err)
		assert.ErrorIs(t, err, errUsage)
		assert.Contains(t, out, "Usage:")
		assert.Contains(t, out, "bsky-to-gem <handle>")
	}

	written, err := filepath.Glob("*_posts_*.json")
	require.NoError(t, err)
	assert.Empty(t, written, "no archive is written without a handle")
}

func TestHandleFromArchive(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"alice.bsky.social_posts_20240501_120000.json", "alice.bsky.social"},
		{"/tmp/out/alice.test_posts_20240501_120000_trimmed.json", "alice.test"},
		{"export.json", "export"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, handleFromArchive(tt.path))
		})
	}
}

func TestCommandFlagsOnlyChanged(t *testing.T) {
	require.NoError(t, rootCmd.ParseFlags([]string{"--no-trim", "-o", "out", "--yes"}))
	t.Cleanup(func() {
		for _, name := range []string{"no-trim", "output", "yes"} {
			f := rootCmd.Flags().Lookup(name)
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		}
	})

	flags := commandFlags(rootCmd)
	assert.Equal(t, true, flags["no-trim"])
	assert.Equal(t, "out", flags["output"])
	assert.Equal(t, "yes", flags["auto-confirm"])
	assert.NotContains(t, flags, "token-limit")
	assert.NotContains(t, flags, "cache")
}

func TestCommandFlagsSubcommand(t *testing.T) {
	require.NoError(t, rootCmd.ParseFlags([]string{"-o", "out"}))
	t.Cleanup(func() {
		f := rootCmd.Flags().Lookup("output")
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})

	require.True(t, historyCmd.HasParent())
	assert.NotContains(t, commandFlags(historyCmd), "output")
	assert.Contains(t, commandFlags(rootCmd), "output")
}
