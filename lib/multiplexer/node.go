// Package multiplexer frames sequence-numbered messages over a byte stream.
//
// Each frame is a 9 byte header followed by the payload:
//
//	[type u8][sequence u32 BE][length u32 BE][payload]
package multiplexer

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
)

const (
	// FrameHeaderSize is 1 byte for the frame type, 4 for the sequence and 4 for the length.
	FrameHeaderSize = 9
	// MaxMessageSize bounds a single message.
	MaxMessageSize = 10 * 1024 * 1024

	FrameTypeMessage = uint8(0x05)
	FrameTypeError   = uint8(0x04) // produced locally by the reader, never written
)

// ErrMessageTooLarge is returned for payloads over MaxMessageSize.
var ErrMessageTooLarge = errors.New("message exceeds maximum size")

// Message is one received frame.
type Message struct {
	Sequence uint32
	Type     uint8
	Data     []byte
}

// Node reads and writes frames. Writes are serialized; a single reader
// goroutine is started by ReadMessage.
type Node struct {
	reader io.Reader
	writer io.Writer

	writerLock sync.Mutex
	sequence   atomic.Uint32
	reading    atomic.Bool
}

func New(reader io.Reader, writer io.Writer) *Node {
	return &Node{
		reader: reader,
		writer: writer,
	}
}

// NextSequence returns a fresh non-zero sequence number.
func (n *Node) NextSequence() uint32 {
	for {
		if seq := n.sequence.Add(1); seq != 0 {
			return seq
		}
	}
}

// WriteMessage sends data with an automatic sequence number.
func (n *Node) WriteMessage(ctx context.Context, data []byte) error {
	return n.WriteMessageWithSequence(ctx, n.NextSequence(), data)
}

// WriteMessageWithSequence sends data under seq.
func (n *Node) WriteMessageWithSequence(ctx context.Context, seq uint32, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(data) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(data))
	}
	if n.writer == nil {
		return fmt.Errorf("writer is nil")
	}

	frame := make([]byte, FrameHeaderSize+len(data))
	frame[0] = FrameTypeMessage
	binary.BigEndian.PutUint32(frame[1:5], seq)
	binary.BigEndian.PutUint32(frame[5:9], uint32(len(data)))
	copy(frame[FrameHeaderSize:], data)

	n.writerLock.Lock()
	defer n.writerLock.Unlock()
	if _, err := n.writer.Write(frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// ReadMessage starts the reader goroutine. The channel is closed at end of
// stream, on a read error (after delivering a FrameTypeError message), or
// when ctx is done. It may be called once.
func (n *Node) ReadMessage(ctx context.Context) (<-chan *Message, error) {
	if !n.reading.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("reader already started")
	}

	ch := make(chan *Message, 64)
	go func() {
		defer close(ch)
		for {
			msg, err := n.readFrame()
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed) {
					return
				}
				msg = &Message{Type: FrameTypeError, Data: []byte(err.Error())}
			}
			select {
			case ch <- msg:
			case <-ctx.Done():
				return
			}
			if msg.Type == FrameTypeError {
				return
			}
		}
	}()
	return ch, nil
}

func (n *Node) readFrame() (*Message, error) {
	var header [FrameHeaderSize]byte
	if _, err := io.ReadFull(n.reader, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("incomplete header: %w", err)
		}
		return nil, err
	}

	frameType := header[0]
	seq := binary.BigEndian.Uint32(header[1:5])
	length := binary.BigEndian.Uint32(header[5:9])

	if frameType != FrameTypeMessage {
		return nil, fmt.Errorf("unknown frame type: %d", frameType)
	}
	if length > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(n.reader, data); err != nil {
		return nil, fmt.Errorf("incomplete data: %w", err)
	}
	return &Message{Sequence: seq, Type: frameType, Data: data}, nil
}
