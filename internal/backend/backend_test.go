package backend

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTargetWithinRoot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file.txt"), []byte("hi"), 0o600))

	b := NewLocalBackend(dir, 0, nil, nil)
	info, err := b.ResolveTarget(context.Background(), "file.txt")
	require.NoError(t, err)
	assert.Equal(t, "file", info.Kind)
}

func TestResolveTargetRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	b := NewLocalBackend(dir, 0, nil, nil)

	_, err := b.ResolveTarget(context.Background(), "../../../etc/passwd")
	require.Error(t, err)
	var be *Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "path_traversal", be.Code)
}

func TestRunDiagnosticUnknownAction(t *testing.T) {
	b := NewLocalBackend(t.TempDir(), 0, nil, nil)
	_, err := b.RunDiagnostic(context.Background(), "nonexistent", "x", nil)
	require.Error(t, err)
	var be *Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "unknown_diagnostic", be.Code)
}

func TestRunShellTimesOutWithoutLeakingProcess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
	b := NewLocalBackend(t.TempDir(), 0, nil, nil)

	result, err := b.RunShell(context.Background(), "sleep 5", "", ShellOptions{Timeout: 50 * time.Millisecond})
	require.NoError(t, err)
	assert.True(t, result.TimedOut)
	assert.Equal(t, -1, result.ExitCode)
}

func TestRunShellCapturesOutputAndExitCode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
	b := NewLocalBackend(t.TempDir(), 0, nil, nil)

	result, err := b.RunShell(context.Background(), "echo hello", "", ShellOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, result.Stdout, "hello")
	assert.False(t, result.TimedOut)
}

func TestRouterResolvesByLongestPrefixMatch(t *testing.T) {
	genericBackend := NewLocalBackend(t.TempDir(), 0, nil, nil)
	specificDir := t.TempDir()
	specificBackend := NewLocalBackend(specificDir, 0, nil, nil)

	r := NewRouter(genericBackend)
	r.Register("prod/", specificBackend)

	b, err := r.resolve("prod/db-1")
	require.NoError(t, err)
	assert.Same(t, specificBackend, b)

	b, err = r.resolve("staging/db-1")
	require.NoError(t, err)
	assert.Same(t, genericBackend, b)
}

func TestRouterWithoutFallbackErrorsOnUnmatched(t *testing.T) {
	r := NewRouter(nil)
	_, err := r.ResolveTarget(context.Background(), "anything")
	require.Error(t, err)
	var be *Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "unresolved_target", be.Code)
}
