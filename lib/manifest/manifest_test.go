package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Setenv("EXTLOAD_TEST_TOKEN", "s3cret")

	src := `
defaults {
  extension = "so"
  transfer {
    headers = { "X-Client" = "extload" }
    timeout = "30s"
  }
}

plugin "fx1" {}

plugin "fx2" {
  url = "plugins/fx2.min.js"
  transfer {
    headers   = { Authorization = "Bearer ${env.EXTLOAD_TEST_TOKEN}" }
    timeout   = "5s"
    max_bytes = 1024
  }
}

plugin "fx3" {
  extension = upper("bin")
}
`
	cfgs, err := Parse([]byte(src), "plugins.hcl")
	require.NoError(t, err)
	require.Len(t, cfgs, 3)

	assert.Equal(t, "fx1", cfgs[0].Key)
	assert.Empty(t, cfgs[0].URL)
	assert.Equal(t, "so", cfgs[0].Extension)
	assert.Equal(t, 30*time.Second, cfgs[0].TransferOptions.Timeout)
	assert.Equal(t, map[string]string{"X-Client": "extload"}, cfgs[0].TransferOptions.Headers)

	assert.Equal(t, "fx2", cfgs[1].Key)
	assert.Equal(t, "plugins/fx2.min.js", cfgs[1].URL)
	assert.Equal(t, 5*time.Second, cfgs[1].TransferOptions.Timeout)
	assert.EqualValues(t, 1024, cfgs[1].TransferOptions.MaxBytes)
	assert.Equal(t, map[string]string{
		"X-Client":      "extload",
		"Authorization": "Bearer s3cret",
	}, cfgs[1].TransferOptions.Headers)

	assert.Equal(t, "BIN", cfgs[2].Extension)

	// defaults stay untouched by per-plugin headers
	assert.Len(t, cfgs[0].TransferOptions.Headers, 1)
}

func TestParse_NoDefaults(t *testing.T) {
	cfgs, err := Parse([]byte(`plugin "alien" {}`), "m.hcl")
	require.NoError(t, err)
	require.Len(t, cfgs, 1)

	n, err := cfgs[0].Normalize("")
	require.NoError(t, err)
	assert.Equal(t, "alien.js", n.URL)
}

func TestParse_Errors(t *testing.T) {
	tests := map[string]string{
		"syntax":         `plugin "fx1" {`,
		"unknown field":  `plugin "fx1" { nope = 1 }`,
		"missing label":  `plugin {}`,
		"bad timeout":    `plugin "fx1" { transfer { timeout = "soon" } }`,
		"negative bytes": `plugin "fx1" { transfer { max_bytes = -1 } }`,
		"duplicate":      "plugin \"fx1\" {}\nplugin \"fx1\" {}",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(src), "bad.hcl")
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plugins.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`plugin "fx1" { url = "https://cdn.example.com/fx1.js" }`), 0o600))

	cfgs, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfgs, 1)
	assert.Equal(t, "https://cdn.example.com/fx1.js", cfgs[0].URL)

	_, err = Load(filepath.Join(t.TempDir(), "missing.hcl"))
	assert.Error(t, err)
}
