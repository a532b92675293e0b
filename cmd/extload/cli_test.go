package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	var out bytes.Buffer
	cfg, exit, err := Parse([]string{"-activator", "SYMBOL", "-max-parallel", "4", "-ready-timeout", "2s", "plugins.hcl"}, &out)
	require.NoError(t, err)
	require.False(t, exit)

	assert.Equal(t, "plugins.hcl", cfg.ManifestPath)
	assert.Equal(t, "symbol", cfg.Activator)
	assert.Equal(t, 4, cfg.MaxParallel)
	assert.Equal(t, 2*time.Second, cfg.ReadyTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, ".", cfg.Root)
}

func TestParse_UsageAndErrors(t *testing.T) {
	var out bytes.Buffer
	cfg, exit, err := Parse(nil, &out)
	require.NoError(t, err)
	assert.True(t, exit)
	assert.Nil(t, cfg)
	assert.Contains(t, out.String(), "Usage:")

	_, exit, err = Parse([]string{"-h"}, &out)
	require.NoError(t, err)
	assert.True(t, exit)

	for _, args := range [][]string{
		{"-activator", "wasm", "m.hcl"},
		{"-log-format", "xml", "m.hcl"},
		{"-log-level", "loud", "m.hcl"},
		{"-max-parallel", "0", "m.hcl"},
		{"-nope"},
	} {
		_, _, err := Parse(args, &out)
		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr, "args %v", args)
		assert.Equal(t, 2, exitErr.Code)
	}
}

func TestRun_MissingManifest(t *testing.T) {
	var out, errOut bytes.Buffer
	err := run(context.Background(), &out, &errOut, []string{filepath.Join(t.TempDir(), "missing.hcl")})

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
}

func TestRun_ReportsFailures(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plugins.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`plugin "ghost" {}`), 0o600))

	var out, errOut bytes.Buffer
	err := run(context.Background(), &out, &errOut, []string{"-root", dir, "-log-level", "error", path})

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.Code)
	assert.Contains(t, out.String(), "failed\tghost")
}
