package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPicksPlatformShell(t *testing.T) {
	cfg := Default()

	require.NotEmpty(t, cfg.Shell)
	if runtime.GOOS == "windows" {
		assert.Equal(t, "/C", cfg.ShellCmdFlag)
	} else {
		assert.Equal(t, "-c", cfg.ShellCmdFlag)
	}
	assert.Equal(t, Duration(250*time.Millisecond), cfg.SweepInterval)
	assert.False(t, cfg.FastRun)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filestorm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"shell: /bin/bash\nfast_run: true\nsweep_interval: 100ms\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/bin/bash", cfg.Shell)
	assert.True(t, cfg.FastRun)
	assert.Equal(t, Duration(100*time.Millisecond), cfg.SweepInterval)
	// Untouched keys keep their defaults.
	assert.NotEmpty(t, cfg.ShellCmdFlag)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filestorm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("shelll: /bin/bash\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filestorm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sweep_interval: soon\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestCompleteCommand(t *testing.T) {
	bin := t.TempDir()
	for _, name := range []string{"rsync", "rsort", "unique-tool"} {
		require.NoError(t, os.WriteFile(filepath.Join(bin, name), []byte("#!/bin/sh\n"), 0o700))
	}
	t.Setenv("PATH", bin)

	cfg := Default()
	cfg.FastRun = true

	t.Run("unique prefix expands", func(t *testing.T) {
		got, err := cfg.CompleteCommand("uniq --lines")
		require.NoError(t, err)
		assert.Equal(t, "unique-tool --lines", got)
	})

	t.Run("exact name passes through", func(t *testing.T) {
		got, err := cfg.CompleteCommand("rsync -a src dst")
		require.NoError(t, err)
		assert.Equal(t, "rsync -a src dst", got)
	})

	t.Run("ambiguous prefix fails", func(t *testing.T) {
		_, err := cfg.CompleteCommand("rs -x")
		assert.Error(t, err)
	})

	t.Run("unknown prefix fails", func(t *testing.T) {
		_, err := cfg.CompleteCommand("nosuch")
		assert.Error(t, err)
	})

	t.Run("disabled fast run passes through", func(t *testing.T) {
		plain := Default()
		plain.FastRun = false
		got, err := plain.CompleteCommand("uniq")
		require.NoError(t, err)
		assert.Equal(t, "uniq", got)
	})
}
