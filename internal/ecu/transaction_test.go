package ecu

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

// fakeLink scripts one response per Write call. Reads can be chunked to
// exercise partial-read accumulation. An empty script simulates a silent
// bus: reads return no data and no error, like a serial port read timeout.
type fakeLink struct {
	replies [][]byte
	pending []byte
	chunk   int
	wrote   [][]byte
}

func (f *fakeLink) Write(p []byte) (int, error) {
	f.wrote = append(f.wrote, append([]byte(nil), p...))
	if len(f.replies) > 0 {
		f.pending = f.replies[0]
		f.replies = f.replies[1:]
	}
	return len(p), nil
}

func (f *fakeLink) Read(p []byte) (int, error) {
	if len(f.pending) == 0 {
		return 0, nil
	}
	n := len(p)
	if f.chunk > 0 && n > f.chunk {
		n = f.chunk
	}
	if n > len(f.pending) {
		n = len(f.pending)
	}
	copy(p, f.pending[:n])
	f.pending = f.pending[n:]
	return n, nil
}

func (f *fakeLink) ResetInput() error { f.pending = nil; return nil }
func (f *fakeLink) Close() error      { return nil }

// makeReply builds a well-formed response: two header bytes, the payload
// padded to rxLen, and the trailing checksum over everything before it.
func makeReply(rxLen byte, payload []byte) []byte {
	total := int(rxLen) + replyOverhead
	r := make([]byte, 0, total)
	r = append(r, 0x00, byte(total))
	r = append(r, payload...)
	for len(r) < total-1 {
		r = append(r, 0x00)
	}
	return append(r, Checksum(r))
}

func TestExecuteSuccess(t *testing.T) {
	resp := makeReply(rowLen, []byte{0x0B, 0xB7, 0x1E})
	link := &fakeLink{replies: [][]byte{resp}, chunk: 3}
	eng := newEngine(link, NewErrorLog(4))

	if err := eng.execute(tableRead(regRPM)); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if len(link.wrote) != 1 {
		t.Fatalf("expected 1 write, got %d", len(link.wrote))
	}
	wantFrame := []byte{0x20, 0x05, 0x00, 0x10, 0xCB}
	if !bytes.Equal(link.wrote[0], wantFrame) {
		t.Errorf("request frame = % X, want % X", link.wrote[0], wantFrame)
	}

	if eng.rx.n != len(resp) {
		t.Errorf("reply length = %d, want %d", eng.rx.n, len(resp))
	}
	if !bytes.Equal(eng.rx.buf[:eng.rx.n], resp) {
		t.Errorf("reply buffer = % X, want % X", eng.rx.buf[:eng.rx.n], resp)
	}
	if got := eng.rx.payload(); len(got) != int(rowLen) {
		t.Errorf("payload length = %d, want %d", len(got), rowLen)
	}
	if eng.rx.u16(0) != 0x0BB7 {
		t.Errorf("u16(0) = 0x%04X, want 0x0BB7", eng.rx.u16(0))
	}
	if eng.rx.at(2) != 0x1E {
		t.Errorf("at(2) = 0x%02X, want 0x1E", eng.rx.at(2))
	}
}

func TestExecuteChecksumMismatch(t *testing.T) {
	resp := makeReply(rowLen, []byte{0x0B, 0xB7})
	resp[4] ^= 0x01 // corrupt one payload byte

	link := &fakeLink{replies: [][]byte{resp}}
	log := NewErrorLog(4)
	eng := newEngine(link, log)

	err := eng.execute(tableRead(regRPM))
	if !errors.Is(err, ErrChecksum) {
		t.Fatalf("execute = %v, want ErrChecksum", err)
	}
	if eng.checksumErrs != 1 {
		t.Errorf("checksum error count = %d, want 1", eng.checksumErrs)
	}
	entries := log.Entries()
	if len(entries) != 1 || entries[0].Kind != KindChecksum {
		t.Errorf("error log = %+v, want one checksum entry", entries)
	}
}

func TestExecuteTimeout(t *testing.T) {
	// Short response: only 5 of the 19 expected bytes ever arrive.
	link := &fakeLink{replies: [][]byte{{0x00, 0x13, 0x01, 0x02, 0x03}}}
	log := NewErrorLog(4)
	eng := newEngine(link, log)
	eng.timeout = 25 * time.Millisecond

	start := time.Now()
	err := eng.execute(tableRead(regRPM))
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("execute = %v, want ErrTimeout", err)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("timeout not enforced: took %v", elapsed)
	}
	if eng.timeouts != 1 {
		t.Errorf("timeout count = %d, want 1", eng.timeouts)
	}
	entries := log.Entries()
	if len(entries) != 1 || entries[0].Kind != KindTimeout {
		t.Errorf("error log = %+v, want one timeout entry", entries)
	}
}

func TestExecuteSilentBus(t *testing.T) {
	link := &fakeLink{} // nothing scripted, reads always empty
	eng := newEngine(link, NewErrorLog(4))
	eng.timeout = 25 * time.Millisecond

	if err := eng.execute(tableRead(regRPM)); !errors.Is(err, ErrTimeout) {
		t.Fatalf("execute on silent bus = %v, want ErrTimeout", err)
	}
}

func TestReplyBoundsChecked(t *testing.T) {
	var rx reply
	if got := rx.at(0); got != 0 {
		t.Errorf("at(0) on empty reply = 0x%02X, want 0", got)
	}
	rx.buf[2] = 0xAA
	rx.n = 5
	if got := rx.at(10); got != 0 {
		t.Errorf("at past payload = 0x%02X, want 0", got)
	}
	if got := rx.at(-1); got != 0 {
		t.Errorf("at(-1) = 0x%02X, want 0", got)
	}
	if got := rx.at(0); got != 0xAA {
		t.Errorf("at(0) = 0x%02X, want 0xAA", got)
	}
}
