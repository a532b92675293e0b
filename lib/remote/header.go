// Package remote implements the protocol between a host and a plugin
// executable that talks over its stdin/stdout.
//
// The host forks the plugin, waits for its "ready" message, then sends one
// "register" request. The plugin answers with the names of the services it
// handles; the host exposes each of them in the extension registry.
package remote

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Protocol message names.
const (
	NameReady       = "ready"
	NameRegister    = "register"
	NameShutdown    = "shutdown"
	NameShutdownAck = "shutdown_ack"
)

// MessageType represents the type of message being sent
type MessageType uint8

const (
	MessageTypeRequest  MessageType = 0x01 // expects a response
	MessageTypeResponse MessageType = 0x02
	MessageTypeNotify   MessageType = 0x03 // no response expected
	MessageTypeError    MessageType = 0x05
)

// String returns the string representation of MessageType
func (mt MessageType) String() string {
	switch mt {
	case MessageTypeRequest:
		return "Request"
	case MessageTypeResponse:
		return "Response"
	case MessageTypeNotify:
		return "Notify"
	case MessageTypeError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Header is the envelope of every protocol message.
type Header struct {
	Name        string
	IsError     bool
	MessageType MessageType
	Payload     []byte
}

// MarshalBinary encodes the header as
// [name len u32][name][is error u8][type u8][payload len u32][payload].
func (h *Header) MarshalBinary() ([]byte, error) {
	var buffer bytes.Buffer
	buffer.Grow(10 + len(h.Name) + len(h.Payload))

	if err := binary.Write(&buffer, binary.BigEndian, uint32(len(h.Name))); err != nil {
		return nil, fmt.Errorf("failed to write name length: %w", err)
	}
	buffer.WriteString(h.Name)

	var isError byte
	if h.IsError {
		isError = 1
	}
	buffer.WriteByte(isError)
	buffer.WriteByte(byte(h.MessageType))

	if err := binary.Write(&buffer, binary.BigEndian, uint32(len(h.Payload))); err != nil {
		return nil, fmt.Errorf("failed to write payload length: %w", err)
	}
	buffer.Write(h.Payload)

	return buffer.Bytes(), nil
}

// UnmarshalBinary decodes the header from binary format.
func (h *Header) UnmarshalBinary(data []byte) error {
	buffer := bytes.NewReader(data)

	var nameLen uint32
	if err := binary.Read(buffer, binary.BigEndian, &nameLen); err != nil {
		return fmt.Errorf("failed to read name length: %w", err)
	}
	if int64(nameLen) > int64(buffer.Len()) {
		return fmt.Errorf("name length %d exceeds message", nameLen)
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(buffer, name); err != nil {
		return fmt.Errorf("failed to read name: %w", err)
	}

	var flags [2]byte
	if _, err := io.ReadFull(buffer, flags[:]); err != nil {
		return fmt.Errorf("failed to read flags: %w", err)
	}

	var payloadLen uint32
	if err := binary.Read(buffer, binary.BigEndian, &payloadLen); err != nil {
		return fmt.Errorf("failed to read payload length: %w", err)
	}
	if int64(payloadLen) > int64(buffer.Len()) {
		return fmt.Errorf("payload length %d exceeds message", payloadLen)
	}
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(buffer, payload); err != nil {
		return fmt.Errorf("failed to read payload: %w", err)
	}

	h.Name = string(name)
	h.IsError = flags[0] == 1
	h.MessageType = MessageType(flags[1])
	h.Payload = payload
	return nil
}
