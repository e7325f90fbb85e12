package wire

import (
	"encoding/binary"

	"github.com/lk2023060901/space-gateway-go/internal/json"
	"github.com/lk2023060901/space-gateway-go/pkg/util/merr"
)

const (
	// headerSize is the fixed frame header: 4 bytes payload length plus
	// 4 bytes op code, both big endian.
	headerSize = 8

	// DefaultMaxPayload bounds the JSON payload of a single frame.
	DefaultMaxPayload = 16 << 20
)

// Codec translates between typed messages and wire frames.
//
// Frame layout:
//
//	| length uint32 BE | op uint32 BE | payload (JSON) |
//
// length counts the payload only. The codec is stateless and safe for
// concurrent use.
type Codec struct {
	maxPayload uint32
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithMaxPayload overrides the per-frame payload bound.
func WithMaxPayload(n uint32) CodecOption {
	return func(c *Codec) {
		c.maxPayload = n
	}
}

// NewCodec creates a Codec with the default payload bound.
func NewCodec(opts ...CodecOption) *Codec {
	c := &Codec{maxPayload: DefaultMaxPayload}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EncodeClient frames a client -> server message.
func (c *Codec) EncodeClient(msg ClientMessage) ([]byte, error) {
	return c.encode(uint32(msg.ClientKind()), msg)
}

// EncodeServer frames a server -> client message.
func (c *Codec) EncodeServer(msg ServerMessage) ([]byte, error) {
	return c.encode(uint32(msg.ServerKind()), msg)
}

func (c *Codec) encode(op uint32, msg interface{}) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, merr.WrapErrBadPayload(op, err.Error())
	}
	if uint32(len(payload)) > c.maxPayload {
		return nil, merr.WrapErrFrameTooBig(uint32(len(payload)), c.maxPayload)
	}

	frame := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(frame[0:4], uint32(len(payload)))
	binary.BigEndian.PutUint32(frame[4:8], op)
	copy(frame[headerSize:], payload)
	return frame, nil
}

// DecodeClient parses a frame received from a client.
func (c *Codec) DecodeClient(frame []byte) (ClientMessage, error) {
	op, payload, err := c.split(frame)
	if err != nil {
		return nil, err
	}

	ctor, ok := clientRegistry[Kind(op)]
	if !ok {
		return nil, merr.WrapErrUnknownOp(op)
	}
	msg := ctor()
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, msg); err != nil {
			return nil, merr.WrapErrBadPayload(op, err.Error())
		}
	}
	return msg, nil
}

// DecodeServer parses a frame received from the gateway.
func (c *Codec) DecodeServer(frame []byte) (ServerMessage, error) {
	op, payload, err := c.split(frame)
	if err != nil {
		return nil, err
	}

	ctor, ok := serverRegistry[Kind(op)]
	if !ok {
		return nil, merr.WrapErrUnknownOp(op)
	}
	msg := ctor()
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, msg); err != nil {
			return nil, merr.WrapErrBadPayload(op, err.Error())
		}
	}
	return msg, nil
}

func (c *Codec) split(frame []byte) (uint32, []byte, error) {
	if len(frame) < headerSize {
		return 0, nil, merr.WrapErrBadPayload(0, "frame shorter than header")
	}
	length := binary.BigEndian.Uint32(frame[0:4])
	op := binary.BigEndian.Uint32(frame[4:8])

	if length > c.maxPayload {
		return 0, nil, merr.WrapErrFrameTooBig(length, c.maxPayload)
	}
	if uint32(len(frame)-headerSize) != length {
		return 0, nil, merr.WrapErrBadPayload(op, "frame length does not match header")
	}
	return op, frame[headerSize:], nil
}
