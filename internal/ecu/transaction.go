package ecu

import (
	"errors"
	"fmt"
	"time"
)

// Link is the half-duplex connection to the diagnostic connector. The
// production implementation wraps a go.bug.st/serial port on the single
// K-line wire; tests substitute scripted fakes.
//
// Because the line is a single wire, every byte written is also seen by
// the receiver. Write implementations must consume their own transmit
// echo before returning, so that Read only ever yields ECU response bytes.
type Link interface {
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
	ResetInput() error
	Close() error
}

// Transaction failure classes. Errors returned by the engine wrap one of
// these sentinels; callers distinguish them with errors.Is.
var (
	ErrTimeout  = errors.New("response timeout")
	ErrChecksum = errors.New("response checksum mismatch")
)

const (
	// replyOverhead is the fixed envelope around a response payload:
	// two header bytes before it and the trailing checksum after it.
	replyOverhead = 3
	// payloadOffset is where the payload starts inside a raw reply.
	payloadOffset = 2

	maxReply = rowLen + replyOverhead

	// defaultTimeout bounds the wait for a complete response. A silent
	// or disconnected bus fails the transaction instead of blocking.
	defaultTimeout = 200 * time.Millisecond

	// turnaround is the inter-transaction delay the bus needs before it
	// will accept the next request.
	turnaround = time.Millisecond
)

// request describes one command/response exchange: which command to send,
// the advertised frame length, the register to address, and how many
// payload bytes the ECU should reply with.
type request struct {
	cmd   byte
	txLen byte
	reg   byte
	rxLen byte
}

// tableRead builds the standard 16-byte row read used by the live-data
// decoder and the DTC scanner.
func tableRead(reg byte) request {
	return request{cmd: cmdTableRead, txLen: 0x05, reg: reg, rxLen: rowLen}
}

// frame assembles the 5-byte request frame with its trailing checksum.
func (r request) frame() []byte {
	f := []byte{r.cmd, r.txLen, r.reg, r.rxLen, 0}
	f[4] = Checksum(f[:4])
	return f
}

// reply is the raw response buffer. It is owned by the engine, overwritten
// at the start of every transaction, and only valid between a successful
// execute and the next one. Accessors are bounds-checked; out-of-range
// offsets read as zero, matching how absent channels decode.
type reply struct {
	buf [maxReply]byte
	n   int
}

// payload returns the response bytes between the envelope header and the
// trailing checksum.
func (r *reply) payload() []byte {
	if r.n < replyOverhead {
		return nil
	}
	return r.buf[payloadOffset : r.n-1]
}

// at returns the payload byte at off.
func (r *reply) at(off int) byte {
	p := r.payload()
	if off < 0 || off >= len(p) {
		return 0
	}
	return p[off]
}

// u16 returns the big-endian word at payload offset off.
func (r *reply) u16(off int) uint16 {
	return uint16(r.at(off))<<8 | uint16(r.at(off+1))
}

// engine runs command/response transactions on the link and owns the raw
// reply buffer. It has no knowledge of payload semantics; decoding is the
// caller's job.
type engine struct {
	link    Link
	rx      reply
	log     *ErrorLog
	timeout time.Duration

	timeouts     int
	checksumErrs int
}

func newEngine(link Link, log *ErrorLog) *engine {
	return &engine{link: link, log: log, timeout: defaultTimeout}
}

// execute sends the request frame and collects exactly rxLen+3 response
// bytes under the wall-clock timeout, then validates the trailing checksum
// over everything before it. On success the validated bytes are left in
// the reply buffer for the caller to decode.
func (e *engine) execute(req request) error {
	e.rx = reply{}

	if err := e.link.ResetInput(); err != nil {
		return fmt.Errorf("flush input: %w", err)
	}
	if _, err := e.link.Write(req.frame()); err != nil {
		return fmt.Errorf("write request reg 0x%02X: %w", req.reg, err)
	}

	want := int(req.rxLen) + replyOverhead
	if err := e.collect(want); err != nil {
		if errors.Is(err, ErrTimeout) {
			e.timeouts++
			e.log.Append(KindTimeout)
		}
		return fmt.Errorf("reg 0x%02X: %w", req.reg, err)
	}

	raw := e.rx.buf[:want]
	if got, calc := raw[want-1], Checksum(raw[:want-1]); got != calc {
		e.checksumErrs++
		e.log.Append(KindChecksum)
		return fmt.Errorf("reg 0x%02X: %w: got 0x%02X, want 0x%02X",
			req.reg, ErrChecksum, got, calc)
	}

	e.rx.n = want
	return nil
}

// collect polls the link until want bytes have arrived or the deadline
// expires. Partial reads are accumulated; a short read is not an error
// until the deadline passes.
func (e *engine) collect(want int) error {
	deadline := time.Now().Add(e.timeout)
	got := 0
	for got < want {
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: got %d of %d bytes", ErrTimeout, got, want)
		}
		n, err := e.link.Read(e.rx.buf[got:want])
		if n == 0 && err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		got += n
	}
	return nil
}
