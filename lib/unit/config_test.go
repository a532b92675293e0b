package unit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowmerak/extload/lib/transport"
)

func TestConfig_Normalize(t *testing.T) {
	tests := []struct {
		name    string
		in      Config
		defExt  string
		wantURL string
		wantExt string
	}{
		{name: "derived", in: Config{Key: "fx1"}, wantURL: "fx1.js", wantExt: "js"},
		{name: "explicit url", in: Config{Key: "fx2", URL: "plugins/fx2.min.js"}, wantURL: "plugins/fx2.min.js", wantExt: "js"},
		{name: "explicit extension", in: Config{Key: "fx3", Extension: "so"}, wantURL: "fx3.so", wantExt: "so"},
		{name: "dotted extension", in: Config{Key: "fx4", Extension: ".bin"}, wantURL: "fx4.bin", wantExt: "bin"},
		{name: "env default", in: Config{Key: "fx5"}, defExt: "so", wantURL: "fx5.so", wantExt: "so"},
		{name: "trimmed key", in: Config{Key: "  fx6 "}, wantURL: "fx6.js", wantExt: "js"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Normalize(tt.defExt)
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, got.URL)
			assert.Equal(t, tt.wantExt, got.Extension)
		})
	}
}

func TestConfig_NormalizeRejects(t *testing.T) {
	_, err := Config{Key: "   "}.Normalize("")
	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "key", ce.Field)
	assert.ErrorIs(t, err, ErrMissingKey)

	_, err = Config{Key: "fx1", TransferOptions: transport.Options{Timeout: -time.Second}}.Normalize("")
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "fx1", ce.Key)
}

func TestFromArgs(t *testing.T) {
	opts := transport.Options{Headers: map[string]string{"X-Test": "1"}}

	cfg, err := FromArgs("fx1", nil, opts)
	require.NoError(t, err)
	assert.Empty(t, cfg.URL)
	assert.Equal(t, opts, cfg.TransferOptions)

	cfg, err = FromArgs("fx2", "plugins/fx2.min.js", opts)
	require.NoError(t, err)
	assert.Equal(t, "plugins/fx2.min.js", cfg.URL)

	live := &countingRegistrant{}
	cfg, err = FromArgs("fx3", live, opts)
	require.NoError(t, err)
	assert.Same(t, live, cfg.Value)

	_, err = FromArgs("fx4", 42, opts)
	var ce *ConfigurationError
	assert.ErrorAs(t, err, &ce)
}

func TestKeyOf(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		err  error
		want string
		ok   bool
	}{
		{err: &TransferError{Key: "a", Err: cause}, want: "a", ok: true},
		{err: &ActivationError{Key: "b", Err: cause}, want: "b", ok: true},
		{err: &NamespaceCollisionError{Key: "c", Err: cause}, want: "c", ok: true},
		{err: &ConfigurationError{Key: "d", Err: cause}, want: "d", ok: true},
		{err: &ConfigurationError{Err: cause}, ok: false},
		{err: cause, ok: false},
	}
	for _, tt := range tests {
		got, ok := KeyOf(tt.err)
		assert.Equal(t, tt.ok, ok, "%v", tt.err)
		assert.Equal(t, tt.want, got)
	}
}

func TestState(t *testing.T) {
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "destroyed", StateDestroyed.String())
	assert.False(t, StateLoading.Terminal())
	assert.True(t, StateErrored.Terminal())

	assert.True(t, canAdvance(StatePending, StateLoading))
	assert.True(t, canAdvance(StatePending, StateComplete))
	assert.False(t, canAdvance(StateLoading, StatePending))
	assert.False(t, canAdvance(StateComplete, StateDestroyed))
	assert.True(t, canAdvance(StateProcessing, StateDestroyed))
}
