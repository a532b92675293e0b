package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/snowmerak/extload/lib/multiplexer"
)

var (
	// ErrHostClosed is returned by calls on a closed host.
	ErrHostClosed = errors.New("host is closed")
	// ErrPlugin wraps error responses sent by the plugin.
	ErrPlugin = errors.New("plugin error")
)

// Host is the host side of a plugin connection.
type Host struct {
	node   *multiplexer.Node
	closer io.Closer
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
	wg     sync.WaitGroup

	pendingRequests map[uint32]chan Header
	requestMutex    sync.Mutex

	readySignal chan struct{}
	readyOnce   sync.Once
	shutdownAck chan struct{}
}

// NewHost starts reading plugin messages from r. closer, if non-nil, is
// closed by Close after the shutdown handshake (usually the process).
func NewHost(r io.Reader, w io.Writer, closer io.Closer, logger *slog.Logger) (*Host, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Host{
		node:            multiplexer.New(r, w),
		closer:          closer,
		logger:          logger,
		ctx:             ctx,
		cancel:          cancel,
		pendingRequests: make(map[uint32]chan Header),
		readySignal:     make(chan struct{}),
		shutdownAck:     make(chan struct{}, 1),
	}

	recv, err := h.node.ReadMessage(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start reader: %w", err)
	}

	h.wg.Add(1)
	go h.handleMessages(recv)
	return h, nil
}

// WaitReady blocks until the plugin announced it is ready.
func (h *Host) WaitReady(ctx context.Context) error {
	select {
	case <-h.readySignal:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for ready signal: %w", ctx.Err())
	case <-h.ctx.Done():
		return fmt.Errorf("waiting for ready signal: %w", ErrHostClosed)
	}
}

// Call sends a request to the plugin and waits for its response payload.
func (h *Host) Call(ctx context.Context, name string, payload []byte) ([]byte, error) {
	if h.closed.Load() {
		return nil, ErrHostClosed
	}

	data, err := (&Header{Name: name, MessageType: MessageTypeRequest, Payload: payload}).MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode header: %w", err)
	}

	seq := h.node.NextSequence()
	responseChan := make(chan Header, 1)

	h.requestMutex.Lock()
	if h.closed.Load() || h.ctx.Err() != nil {
		h.requestMutex.Unlock()
		return nil, ErrHostClosed
	}
	h.pendingRequests[seq] = responseChan
	h.requestMutex.Unlock()

	defer func() {
		h.requestMutex.Lock()
		delete(h.pendingRequests, seq)
		h.requestMutex.Unlock()
	}()

	if err := h.node.WriteMessageWithSequence(ctx, seq, data); err != nil {
		return nil, fmt.Errorf("failed to write request %s: %w", name, err)
	}

	select {
	case resp, ok := <-responseChan:
		if !ok {
			return nil, fmt.Errorf("call %s: %w", name, ErrHostClosed)
		}
		if resp.IsError {
			return nil, fmt.Errorf("%w for service %s: %s", ErrPlugin, name, resp.Payload)
		}
		return resp.Payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.ctx.Done():
		return nil, fmt.Errorf("call %s: %w", name, ErrHostClosed)
	}
}

func (h *Host) handleMessages(recv <-chan *multiplexer.Message) {
	defer h.wg.Done()
	defer h.cancel()
	defer func() {
		h.requestMutex.Lock()
		defer h.requestMutex.Unlock()
		for seq, ch := range h.pendingRequests {
			close(ch)
			delete(h.pendingRequests, seq)
		}
	}()

	for msg := range recv {
		if msg.Type == multiplexer.FrameTypeError {
			h.logger.Warn("Plugin stream error.", "error", string(msg.Data))
			continue
		}

		var header Header
		if err := header.UnmarshalBinary(msg.Data); err != nil {
			h.logger.Warn("Dropping malformed plugin message.", "error", err)
			continue
		}

		switch header.Name {
		case NameReady:
			h.readyOnce.Do(func() { close(h.readySignal) })
			continue
		case NameShutdownAck:
			select {
			case h.shutdownAck <- struct{}{}:
			default:
			}
			continue
		}

		switch header.MessageType {
		case MessageTypeResponse, MessageTypeError:
			h.requestMutex.Lock()
			ch, ok := h.pendingRequests[msg.Sequence]
			h.requestMutex.Unlock()
			if !ok {
				h.logger.Debug("Dropping unsolicited response.", "name", header.Name, "seq", msg.Sequence)
				continue
			}
			select {
			case ch <- header:
			default:
			}
		case MessageTypeNotify:
			h.logger.Info("Plugin notification.", "name", header.Name, "payload", string(header.Payload))
		default:
			h.logger.Debug("Ignoring plugin message.", "name", header.Name, "type", header.MessageType)
		}
	}
}

// Close asks the plugin to shut down, then releases the connection.
func (h *Host) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}

	if h.ctx.Err() == nil {
		data, err := (&Header{Name: NameShutdown, MessageType: MessageTypeRequest}).MarshalBinary()
		if err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
			if err := h.node.WriteMessage(ctx, data); err == nil {
				select {
				case <-h.shutdownAck:
				case <-h.ctx.Done():
				case <-ctx.Done():
					h.logger.Debug("Plugin did not acknowledge shutdown.")
				}
			}
			cancel()
		}
	}

	var closeErr error
	if h.closer != nil {
		closeErr = h.closer.Close()
	}
	h.cancel()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		h.logger.Warn("Plugin reader did not stop in time.")
	}
	return closeErr
}

// Done is closed when the connection is gone.
func (h *Host) Done() <-chan struct{} {
	return h.ctx.Done()
}
