// Package manifest reads HCL manifests that describe batches of plugins.
//
//	defaults {
//	  extension = "so"
//	}
//
//	plugin "fx1" {}
//
//	plugin "fx2" {
//	  url = "plugins/fx2.min.js"
//	  transfer {
//	    headers = { Authorization = "Bearer ${env.FX_TOKEN}" }
//	    timeout = "5s"
//	  }
//	}
//
// Expressions may reference environment variables through env and call
// the lower, upper, format and join functions.
package manifest

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"

	"github.com/snowmerak/extload/lib/transport"
	"github.com/snowmerak/extload/lib/unit"
)

type hclFile struct {
	Defaults *hclDefaults `hcl:"defaults,block"`
	Plugins  []*hclPlugin `hcl:"plugin,block"`
}

type hclDefaults struct {
	Extension string       `hcl:"extension,optional"`
	Transfer  *hclTransfer `hcl:"transfer,block"`
}

type hclPlugin struct {
	Key       string       `hcl:"key,label"`
	URL       string       `hcl:"url,optional"`
	Extension string       `hcl:"extension,optional"`
	Transfer  *hclTransfer `hcl:"transfer,block"`
}

type hclTransfer struct {
	Headers  map[string]string `hcl:"headers,optional"`
	Timeout  string            `hcl:"timeout,optional"`
	User     string            `hcl:"user,optional"`
	Password string            `hcl:"password,optional"`
	MaxBytes int64             `hcl:"max_bytes,optional"`
}

// Load reads and decodes the manifest at path.
func Load(path string) ([]unit.Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	return Parse(src, path)
}

// Parse decodes manifest source. filename is used in diagnostics.
func Parse(src []byte, filename string) ([]unit.Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", filename, diags)
	}

	var parsed hclFile
	diags = gohcl.DecodeBody(file.Body, evalContext(), &parsed)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", filename, diags)
	}

	defaults := hclDefaults{}
	if parsed.Defaults != nil {
		defaults = *parsed.Defaults
	}
	base, err := defaults.Transfer.options(nil)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: defaults: %w", filename, err)
	}

	seen := make(map[string]bool, len(parsed.Plugins))
	cfgs := make([]unit.Config, 0, len(parsed.Plugins))
	for _, p := range parsed.Plugins {
		if seen[p.Key] {
			return nil, fmt.Errorf("manifest %s: plugin %q declared twice", filename, p.Key)
		}
		seen[p.Key] = true

		opts, err := p.Transfer.options(&base)
		if err != nil {
			return nil, fmt.Errorf("manifest %s: plugin %q: %w", filename, p.Key, err)
		}

		ext := p.Extension
		if ext == "" {
			ext = defaults.Extension
		}
		cfgs = append(cfgs, unit.Config{
			Key:             p.Key,
			URL:             p.URL,
			Extension:       ext,
			TransferOptions: opts,
		})
	}
	return cfgs, nil
}

// options merges t over base. Headers are merged key by key.
func (t *hclTransfer) options(base *transport.Options) (transport.Options, error) {
	var opts transport.Options
	if base != nil {
		opts = *base
		if base.Headers != nil {
			opts.Headers = make(map[string]string, len(base.Headers))
			for k, v := range base.Headers {
				opts.Headers[k] = v
			}
		}
	}
	if t == nil {
		return opts, nil
	}

	for k, v := range t.Headers {
		if opts.Headers == nil {
			opts.Headers = make(map[string]string, len(t.Headers))
		}
		opts.Headers[k] = v
	}
	if t.Timeout != "" {
		d, err := time.ParseDuration(t.Timeout)
		if err != nil {
			return opts, fmt.Errorf("invalid timeout %q: %w", t.Timeout, err)
		}
		if d < 0 {
			return opts, fmt.Errorf("invalid timeout %q: negative", t.Timeout)
		}
		opts.Timeout = d
	}
	if t.User != "" {
		opts.User = t.User
	}
	if t.Password != "" {
		opts.Password = t.Password
	}
	if t.MaxBytes < 0 {
		return opts, fmt.Errorf("invalid max_bytes %d", t.MaxBytes)
	}
	if t.MaxBytes > 0 {
		opts.MaxBytes = t.MaxBytes
	}
	return opts, nil
}

func evalContext() *hcl.EvalContext {
	env := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		env[k] = cty.StringVal(v)
	}

	envVal := cty.MapValEmpty(cty.String)
	if len(env) > 0 {
		envVal = cty.MapVal(env)
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": envVal,
		},
		Functions: map[string]function.Function{
			"lower":  stdlib.LowerFunc,
			"upper":  stdlib.UpperFunc,
			"format": stdlib.FormatFunc,
			"join":   stdlib.JoinFunc,
		},
	}
}
