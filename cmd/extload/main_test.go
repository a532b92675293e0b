package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowmerak/extload/lib/remote"
)

const helperEnv = "EXTLOAD_CLI_HELPER"

// TestMain lets the test binary serve as a plugin for the process activator.
func TestMain(m *testing.M) {
	if os.Getenv(helperEnv) == "1" {
		mod := remote.NewModule(os.Stdin, os.Stdout)
		mod.Handle("echo", func(ctx context.Context, payload []byte) ([]byte, error) {
			return payload, nil
		})
		if err := mod.Listen(context.Background()); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func TestRun_LoadsProcessPlugin(t *testing.T) {
	self, err := os.Executable()
	require.NoError(t, err)
	t.Setenv(helperEnv, "1")

	path := filepath.Join(t.TempDir(), "plugins.hcl")
	src := fmt.Sprintf("plugin \"calc\" {\n  url = %q\n}\n", self)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))

	var out bytes.Buffer
	err = run(context.Background(), &out, io.Discard, []string{"-activator", "process", path})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "registered\tcalc\t(from calc)")
	assert.Contains(t, out.String(), "registered\tcalc.echo\t(from calc)")
}
