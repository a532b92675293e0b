package remote

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/snowmerak/extload/lib/registry"
)

// DefaultRegisterTimeout bounds the register round trip.
const DefaultRegisterTimeout = 10 * time.Second

// Extension is an activated plugin process. It satisfies registry.Registrant.
type Extension struct {
	host            *Host
	RegisterTimeout time.Duration
}

// NewExtension wraps a connected host.
func NewExtension(host *Host) *Extension {
	return &Extension{host: host, RegisterTimeout: DefaultRegisterTimeout}
}

// Register sends the register request and provides the extension under its
// key plus one Capability per served name, as "<key>.<name>".
func (e *Extension) Register(h *registry.Handle) error {
	req, err := structpb.NewStruct(map[string]any{
		"key":   h.Key(),
		"token": h.Token().String(),
	})
	if err != nil {
		return fmt.Errorf("failed to build register request: %w", err)
	}
	data, err := proto.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal register request: %w", err)
	}

	timeout := e.RegisterTimeout
	if timeout <= 0 {
		timeout = DefaultRegisterTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	respData, err := e.host.Call(ctx, NameRegister, data)
	if err != nil {
		return err
	}

	var resp structpb.Struct
	if err := proto.Unmarshal(respData, &resp); err != nil {
		return fmt.Errorf("invalid register response: %w", err)
	}

	if err := h.Provide(h.Key(), e); err != nil {
		return err
	}
	for _, v := range resp.GetFields()["capabilities"].GetListValue().GetValues() {
		name := v.GetStringValue()
		if name == "" {
			continue
		}
		if err := h.Provide(h.Key()+"."+name, &Capability{ext: e, name: name}); err != nil {
			return err
		}
	}
	return nil
}

// Call invokes a service of the plugin.
func (e *Extension) Call(ctx context.Context, name string, payload []byte) ([]byte, error) {
	return e.host.Call(ctx, name, payload)
}

// Close shuts the plugin down.
func (e *Extension) Close() error {
	return e.host.Close()
}

// Capability is one service announced by a plugin during registration.
type Capability struct {
	ext  *Extension
	name string
}

// Name returns the service name inside the plugin.
func (c *Capability) Name() string { return c.name }

// Call invokes the service.
func (c *Capability) Call(ctx context.Context, payload []byte) ([]byte, error) {
	return c.ext.Call(ctx, c.name, payload)
}
