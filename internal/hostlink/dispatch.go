package hostlink

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"go.bug.st/serial"

	"github.com/openhobd/dlcbridge/internal/ecu"
)

// Dispatcher reads single-byte commands from a host link and answers with
// framed responses, delegating the actual bus work to the ECU provider.
type Dispatcher struct {
	rw   io.ReadWriter
	prov ecu.Provider
}

// NewDispatcher creates a dispatcher over rw. In production rw is a serial
// port to the PC or Bluetooth module; tests use in-memory pipes.
func NewDispatcher(rw io.ReadWriter, prov ecu.Provider) *Dispatcher {
	return &Dispatcher{rw: rw, prov: prov}
}

// Run services host commands until the context is cancelled or the link
// returns a read error. Reads that yield no data (serial read timeouts)
// just poll again.
func (d *Dispatcher) Run(ctx context.Context) error {
	buf := make([]byte, 1)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := d.rw.Read(buf)
		if err != nil {
			return fmt.Errorf("hostlink: read command: %w", err)
		}
		if n == 0 {
			continue
		}
		if err := d.handle(buf[0]); err != nil {
			return err
		}
	}
}

// handle services one host command and writes the response frame.
func (d *Dispatcher) handle(cmd byte) error {
	switch cmd {
	case CmdGetLive:
		ld, err := d.prov.ReadLiveData()
		if err != nil {
			log.Printf("[hostlink] live data fetch failed: %v", err)
			return d.send(MsgErr, []byte{ErrCodeLiveFailed})
		}
		return d.send(MsgLive, PackLive(ld))

	case CmdGetDTC:
		codes, err := d.prov.ScanDTC()
		if err != nil {
			log.Printf("[hostlink] dtc scan failed: %v", err)
			return d.send(MsgErr, []byte{ErrCodeScanFailed})
		}
		payload := make([]byte, 0, 1+len(codes))
		payload = append(payload, byte(len(codes)))
		for _, c := range codes {
			payload = append(payload, byte(c))
		}
		return d.send(MsgDTC, payload)

	case CmdReset:
		ok := byte(1)
		if err := d.prov.ResetECU(); err != nil {
			log.Printf("[hostlink] reset failed: %v", err)
			ok = 0
		}
		return d.send(MsgAck, []byte{ok})

	default:
		log.Printf("[hostlink] unknown command 0x%02X", cmd)
		return d.send(MsgErr, []byte{ErrCodeUnknownCmd})
	}
}

func (d *Dispatcher) send(t MsgType, payload []byte) error {
	if _, err := d.rw.Write(Encode(t, payload)); err != nil {
		return fmt.Errorf("hostlink: write response: %w", err)
	}
	return nil
}

// OpenSerial opens the host-facing serial port in 8N1 mode with a short
// read timeout so Run's poll loop stays responsive to cancellation.
func OpenSerial(path string, baud int) (io.ReadWriteCloser, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("hostlink: open %s: %w", path, err)
	}
	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("hostlink: set read timeout: %w", err)
	}
	return port, nil
}
