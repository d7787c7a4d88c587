package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// FrameHeaderSize is the size of the u16 id | u32 length frame header.
const FrameHeaderSize = 6

// MaxFrameSize bounds the payload of a single frame.
const MaxFrameSize = 16 << 20

// MsgStreamOpen is reserved for transports that must write before the peer
// can observe a new stream. It is never dispatched.
const MsgStreamOpen MessageID = 0

var ErrFrameTooLarge = errors.New("frame too large")

// AppendFrame appends a framed payload to buf.
func AppendFrame(buf []byte, id MessageID, payload []byte) ([]byte, error) {
	if len(payload) > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	buf = binary.LittleEndian.AppendUint16(buf, uint16(id))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(payload)))
	return append(buf, payload...), nil
}

// ParseFrame splits a single complete frame.
func ParseFrame(b []byte) (MessageID, []byte, error) {
	if len(b) < FrameHeaderSize {
		return 0, nil, fmt.Errorf("%w: frame header", ErrTruncated)
	}
	id := MessageID(binary.LittleEndian.Uint16(b))
	n := binary.LittleEndian.Uint32(b[2:])
	if n > MaxFrameSize {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	if uint32(len(b)-FrameHeaderSize) != n {
		return 0, nil, fmt.Errorf("%w: frame length %d, have %d", ErrTruncated, n, len(b)-FrameHeaderSize)
	}
	return id, b[FrameHeaderSize:], nil
}

// WriteFrame writes a framed payload to w.
func WriteFrame(w io.Writer, id MessageID, payload []byte) error {
	buf, err := AppendFrame(make([]byte, 0, FrameHeaderSize+len(payload)), id, payload)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// ReadFrame reads one frame from r. It returns io.EOF only when r ends
// cleanly on a frame boundary.
func ReadFrame(r io.Reader) (MessageID, []byte, error) {
	var hdr [FrameHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	id := MessageID(binary.LittleEndian.Uint16(hdr[:]))
	n := binary.LittleEndian.Uint32(hdr[2:])
	if n > MaxFrameSize {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return 0, nil, err
	}
	return id, payload, nil
}

// Marshal frames a typed message.
func Marshal(m Message) ([]byte, error) {
	payload, err := m.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", m.MessageID(), err)
	}
	return payload, nil
}
