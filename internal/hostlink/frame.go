// Package hostlink implements the framed serial protocol that exposes the
// bridge to PC or Bluetooth clients: a two-byte start marker, a message
// type, a length, an opaque payload and a single-byte checksum.
package hostlink

import (
	"fmt"
	"io"

	"github.com/openhobd/dlcbridge/internal/ecu"
)

// Frame start markers.
const (
	sof1 = 0xAA
	sof2 = 0x55
)

// MsgType identifies a bridge-to-host message.
type MsgType byte

const (
	MsgLive MsgType = 0x81 // packed live-data payload
	MsgDTC  MsgType = 0x82 // [count, code...]
	MsgAck  MsgType = 0x83 // [1] ok / [0] failed
	MsgErr  MsgType = 0x84 // [error code]
)

// Host-to-bridge commands, sent as a single byte.
const (
	CmdGetLive byte = 0x01
	CmdGetDTC  byte = 0x02
	CmdReset   byte = 0x03
)

// Error codes carried in MsgErr payloads.
const (
	ErrCodeLiveFailed byte = 0x01
	ErrCodeScanFailed byte = 0x02
	ErrCodeUnknownCmd byte = 0xFF
)

const headerLen = 4 // sof1, sof2, type, length

// Encode builds a complete frame. The trailing checksum is the byte sum of
// the header block checksum and the payload block checksum, reusing the
// vehicle-bus codec on each block.
func Encode(t MsgType, payload []byte) []byte {
	header := []byte{sof1, sof2, byte(t), byte(len(payload))}
	crc := ecu.Checksum(header) + ecu.Checksum(payload)

	out := make([]byte, 0, headerLen+len(payload)+1)
	out = append(out, header...)
	out = append(out, payload...)
	return append(out, crc)
}

// Decode parses and validates one frame from buf, returning the message
// type, its payload, and the number of bytes consumed.
func Decode(buf []byte) (MsgType, []byte, int, error) {
	if len(buf) < headerLen+1 {
		return 0, nil, 0, fmt.Errorf("hostlink: short frame: %d bytes", len(buf))
	}
	if buf[0] != sof1 || buf[1] != sof2 {
		return 0, nil, 0, fmt.Errorf("hostlink: bad start marker % X", buf[:2])
	}
	plen := int(buf[3])
	total := headerLen + plen + 1
	if len(buf) < total {
		return 0, nil, 0, fmt.Errorf("hostlink: truncated frame: %d of %d bytes", len(buf), total)
	}

	payload := buf[headerLen : headerLen+plen]
	want := ecu.Checksum(buf[:headerLen]) + ecu.Checksum(payload)
	if got := buf[total-1]; got != want {
		return 0, nil, 0, fmt.Errorf("hostlink: checksum mismatch: got 0x%02X, want 0x%02X", got, want)
	}
	return MsgType(buf[2]), payload, total, nil
}

// ReadFrame reads exactly one frame from r.
func ReadFrame(r io.Reader) (MsgType, []byte, error) {
	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, fmt.Errorf("hostlink: read header: %w", err)
	}
	rest := make([]byte, int(header[3])+1)
	if _, err := io.ReadFull(r, rest); err != nil {
		return 0, nil, fmt.Errorf("hostlink: read payload: %w", err)
	}
	t, payload, _, err := Decode(append(header, rest...))
	return t, payload, err
}
