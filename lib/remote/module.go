package remote

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/snowmerak/extload/lib/multiplexer"
)

// HandlerFunc serves one named request inside a plugin.
type HandlerFunc func(ctx context.Context, payload []byte) ([]byte, error)

// RegisterFunc is called when the host registers the plugin.
type RegisterFunc func(key, token string) error

// Module is the plugin side of the protocol.
type Module struct {
	node   *multiplexer.Node
	logger *slog.Logger

	handlerLock sync.RWMutex
	handlers    map[string]HandlerFunc
	onRegister  RegisterFunc

	activeJobs sync.WaitGroup
}

// NewModule creates a Module. Nil reader/writer default to os.Stdin/os.Stdout.
func NewModule(reader io.Reader, writer io.Writer) *Module {
	if reader == nil {
		reader = os.Stdin
	}
	if writer == nil {
		writer = os.Stdout
	}
	return &Module{
		node:     multiplexer.New(reader, writer),
		logger:   slog.New(slog.NewTextHandler(os.Stderr, nil)),
		handlers: make(map[string]HandlerFunc),
	}
}

// SetLogger replaces the module logger, which writes to stderr by default.
func (m *Module) SetLogger(logger *slog.Logger) {
	m.logger = logger
}

// Handle registers handler for name. Registering a name twice or a
// protocol name panics.
func (m *Module) Handle(name string, handler HandlerFunc) {
	m.handlerLock.Lock()
	defer m.handlerLock.Unlock()

	switch name {
	case NameReady, NameRegister, NameShutdown, NameShutdownAck:
		panic(fmt.Sprintf("handler name %s is reserved", name))
	}
	if _, exists := m.handlers[name]; exists {
		panic(fmt.Sprintf("handler for %s already registered", name))
	}
	m.handlers[name] = handler
}

// OnRegister sets a hook that runs before the register response is sent.
// An error from the hook fails the registration on the host.
func (m *Module) OnRegister(fn RegisterFunc) {
	m.handlerLock.Lock()
	defer m.handlerLock.Unlock()
	m.onRegister = fn
}

// Notify sends a message to the host that expects no response.
func (m *Module) Notify(ctx context.Context, name string, payload []byte) error {
	return m.send(ctx, m.node.NextSequence(), Header{Name: name, MessageType: MessageTypeNotify, Payload: payload})
}

// Listen sends the ready signal and serves requests until the host asks
// for shutdown, the stream ends or ctx is done.
func (m *Module) Listen(ctx context.Context) error {
	listenCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	recv, err := m.node.ReadMessage(listenCtx)
	if err != nil {
		return fmt.Errorf("failed to read message: %w", err)
	}

	if err := m.send(listenCtx, m.node.NextSequence(), Header{Name: NameReady, MessageType: MessageTypeNotify, Payload: []byte(NameReady)}); err != nil {
		return fmt.Errorf("failed to send ready signal: %w", err)
	}

	defer m.activeJobs.Wait()

	for {
		select {
		case <-listenCtx.Done():
			return listenCtx.Err()
		case msg, ok := <-recv:
			if !ok {
				return nil
			}
			if msg.Type == multiplexer.FrameTypeError {
				return fmt.Errorf("stream error: %s", msg.Data)
			}

			var header Header
			if err := header.UnmarshalBinary(msg.Data); err != nil {
				m.logger.Warn("Dropping malformed request.", "error", err)
				continue
			}

			switch header.Name {
			case NameShutdown:
				m.activeJobs.Wait()
				return m.send(listenCtx, msg.Sequence, Header{Name: NameShutdownAck, MessageType: MessageTypeResponse})
			case NameRegister:
				m.reply(listenCtx, msg.Sequence, header.Name, m.register(header.Payload))
				continue
			}

			if header.MessageType != MessageTypeRequest {
				continue
			}

			m.activeJobs.Add(1)
			go func(seq uint32, hdr Header) {
				defer m.activeJobs.Done()
				m.reply(listenCtx, seq, hdr.Name, m.dispatch(listenCtx, hdr))
			}(msg.Sequence, header)
		}
	}
}

type result struct {
	payload []byte
	err     error
}

func (m *Module) dispatch(ctx context.Context, hdr Header) (res result) {
	m.handlerLock.RLock()
	handler, exists := m.handlers[hdr.Name]
	m.handlerLock.RUnlock()

	if !exists {
		return result{err: fmt.Errorf("no handler registered for service: %s", hdr.Name)}
	}

	defer func() {
		if r := recover(); r != nil {
			res = result{err: fmt.Errorf("handler %s panicked: %v", hdr.Name, r)}
		}
	}()
	payload, err := handler(ctx, hdr.Payload)
	return result{payload: payload, err: err}
}

// register answers the host's register request with the served names.
func (m *Module) register(payload []byte) result {
	var req structpb.Struct
	if err := proto.Unmarshal(payload, &req); err != nil {
		return result{err: fmt.Errorf("invalid register request: %w", err)}
	}
	key := req.GetFields()["key"].GetStringValue()
	token := req.GetFields()["token"].GetStringValue()

	m.handlerLock.RLock()
	hook := m.onRegister
	names := make([]any, 0, len(m.handlers))
	for name := range m.handlers {
		names = append(names, name)
	}
	m.handlerLock.RUnlock()

	sort.Slice(names, func(i, j int) bool { return names[i].(string) < names[j].(string) })

	if hook != nil {
		if err := hook(key, token); err != nil {
			return result{err: err}
		}
	}

	resp, err := structpb.NewStruct(map[string]any{"capabilities": names})
	if err != nil {
		return result{err: fmt.Errorf("failed to build register response: %w", err)}
	}
	data, err := proto.Marshal(resp)
	if err != nil {
		return result{err: fmt.Errorf("failed to marshal register response: %w", err)}
	}
	m.logger.Debug("Registered with host.", "key", key, "capabilities", len(names))
	return result{payload: data}
}

func (m *Module) reply(ctx context.Context, seq uint32, name string, res result) {
	header := Header{Name: name, MessageType: MessageTypeResponse, Payload: res.payload}
	if res.err != nil {
		header.IsError = true
		header.MessageType = MessageTypeError
		header.Payload = []byte(res.err.Error())
	}
	if err := m.send(ctx, seq, header); err != nil {
		m.logger.Warn("Failed to send response.", "name", name, "error", err)
	}
}

func (m *Module) send(ctx context.Context, seq uint32, header Header) error {
	data, err := header.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	return m.node.WriteMessageWithSequence(ctx, seq, data)
}
