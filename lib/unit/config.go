package unit

import (
	"fmt"
	"strings"

	"github.com/snowmerak/extload/lib/registry"
	"github.com/snowmerak/extload/lib/transport"
)

// DefaultExtension is appended to the key when no URL is configured.
const DefaultExtension = "js"

// Config is the record form of a unit configuration.
type Config struct {
	// Key names the queue slot and the namespace slot. Required.
	Key string
	// URL locates the payload. Defaults to Key + "." + Extension.
	URL string
	// Extension is used to derive URL. Defaults to DefaultExtension.
	Extension string
	// TransferOptions are forwarded verbatim to the transport.
	TransferOptions transport.Options
	// Value, when set, is an already in-process code unit. It is activated
	// at construction time and no transfer happens.
	Value registry.Registrant
}

// Normalize validates c and fills in the derived fields. defaultExtension
// replaces DefaultExtension when non-empty.
func (c Config) Normalize(defaultExtension string) (Config, error) {
	c.Key = strings.TrimSpace(c.Key)
	if c.Key == "" {
		return c, &ConfigurationError{Field: "key", Err: ErrMissingKey}
	}

	if c.Extension == "" {
		c.Extension = defaultExtension
	}
	if c.Extension == "" {
		c.Extension = DefaultExtension
	}
	c.Extension = strings.TrimPrefix(c.Extension, ".")

	if c.URL == "" {
		c.URL = c.Key + "." + c.Extension
	}

	if c.TransferOptions.Timeout < 0 {
		return c, &ConfigurationError{Key: c.Key, Field: "xhrSettings.timeout", Err: fmt.Errorf("negative timeout %s", c.TransferOptions.Timeout)}
	}
	return c, nil
}

// FromArgs builds a Config from the positional form. source is either a
// string locator (possibly empty) or a live registry.Registrant.
func FromArgs(key string, source any, opts transport.Options) (Config, error) {
	cfg := Config{Key: key, TransferOptions: opts}
	switch s := source.(type) {
	case nil:
	case string:
		cfg.URL = s
	case registry.Registrant:
		cfg.Value = s
	default:
		return cfg, &ConfigurationError{Key: key, Field: "url", Err: fmt.Errorf("unsupported source type %T", source)}
	}
	return cfg, nil
}
