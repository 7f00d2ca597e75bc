package ecu

import (
	"fmt"
	"log"
	"sync"
	"time"

	"go.bug.st/serial"
)

// wakeSequence is the byte string that brings the ECU's diagnostic
// interface out of idle. It must be sent once after opening the line,
// followed by a settle delay, before the first transaction.
var wakeSequence = []byte{0x68, 0x6a, 0xf5, 0xaf, 0xbf, 0xb3, 0xb2, 0xc1, 0xdb, 0xb3, 0xe9}

const (
	wakeSettle = 300 * time.Millisecond

	// errorLogCap bounds the per-connection error log.
	errorLogCap = 14
)

// DLC talks to an OBD1 Honda ECU over the single-wire diagnostic
// connector (the DLC). It implements the Provider interface.
//
// All operations are serialized: the bus is half-duplex and the engine's
// reply buffer is reused across transactions, so nothing may run while a
// transaction is pending.
type DLC struct {
	portPath string
	baudRate int
	timeout  time.Duration

	mu        sync.Mutex
	port      serial.Port
	eng       *engine
	errs      *ErrorLog
	connected bool
}

// DLCConfig holds connection configuration for the DLC provider.
type DLCConfig struct {
	PortPath  string `yaml:"port_path" json:"portPath"`
	BaudRate  int    `yaml:"baud_rate" json:"baudRate"`
	TimeoutMs int    `yaml:"timeout_ms" json:"timeoutMs"` // per-transaction reply timeout
}

// NewDLC creates a DLC provider. The OBD1 diagnostic line runs at 9600
// baud; the default timeout is 200 ms per transaction.
func NewDLC(cfg DLCConfig) *DLC {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 9600
	}
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &DLC{
		portPath: cfg.PortPath,
		baudRate: cfg.BaudRate,
		timeout:  timeout,
	}
}

func (d *DLC) Name() string { return "OBD1 DLC" }

// Connect opens the serial port, sends the wake-up sequence and waits for
// the interface to settle.
func (d *DLC) Connect() error {
	mode := &serial.Mode{
		BaudRate: d.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(d.portPath, mode)
	if err != nil {
		return fmt.Errorf("dlc: open %s: %w", d.portPath, err)
	}
	if err := port.SetReadTimeout(50 * time.Millisecond); err != nil {
		port.Close()
		return fmt.Errorf("dlc: set read timeout: %w", err)
	}

	log.Printf("[dlc] opened %s at %d baud", d.portPath, d.baudRate)

	if _, err := port.Write(wakeSequence); err != nil {
		port.Close()
		return fmt.Errorf("dlc: wake-up write: %w", err)
	}
	time.Sleep(wakeSettle)
	// The wake bytes echo back on the single wire; clear them along with
	// anything the ECU said during bring-up.
	port.ResetInputBuffer()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.port = port
	d.errs = NewErrorLog(errorLogCap)
	d.eng = newEngine(&serialLink{port: port}, d.errs)
	d.eng.timeout = d.timeout
	d.connected = true

	log.Printf("[dlc] ECU awake on %s", d.portPath)
	return nil
}

func (d *DLC) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = false
	if d.port != nil {
		err := d.port.Close()
		d.port = nil
		return err
	}
	return nil
}

func (d *DLC) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// ReadLiveData issues the four row reads in sequence and decodes each into
// the snapshot. The first failed transaction aborts the poll; the bus
// needs a short turnaround pause between rows.
func (d *DLC) ReadLiveData() (*LiveData, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return nil, fmt.Errorf("dlc: not connected")
	}

	rows := []struct {
		reg    byte
		decode func(*reply, *LiveData)
	}{
		{regRPM, decodeRow0},
		{regECT, decodeRow1},
		{regTrims, decodeRow2},
		{regKnock, decodeRow3},
	}

	var ld LiveData
	for i, row := range rows {
		if i > 0 {
			time.Sleep(turnaround)
		}
		if err := d.eng.execute(tableRead(row.reg)); err != nil {
			return nil, fmt.Errorf("dlc: live data: %w", err)
		}
		row.decode(&d.eng.rx, &ld)
	}

	ld.Intake.MAF = massAirflow(ld.Engine.RPM, ld.Intake.MAP, ld.Thermal.Intake)
	return &ld, nil
}

// ScanDTC reads the error-flag block and expands it into code numbers.
func (d *DLC) ScanDTC() ([]int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return nil, fmt.Errorf("dlc: not connected")
	}

	if err := d.eng.execute(tableRead(regErrorFlags)); err != nil {
		d.errs.Append(KindDTC)
		return nil, fmt.Errorf("dlc: dtc scan: %w", err)
	}
	return decodeDTC(d.eng.rx.payload()), nil
}

// ResetECU commands a controller reset. The ECU acknowledges with a bare
// envelope; success means the transaction engine reported no error.
func (d *DLC) ResetECU() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return fmt.Errorf("dlc: not connected")
	}

	req := request{cmd: cmdReset, txLen: 0x04, reg: 0x01, rxLen: 0x00}
	if err := d.eng.execute(req); err != nil {
		return fmt.Errorf("dlc: reset: %w", err)
	}
	log.Printf("[dlc] ECU reset commanded")
	return nil
}

// ReadECUID reads the identity bytes from the 0x76 block.
func (d *DLC) ReadECUID() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return nil, fmt.Errorf("dlc: not connected")
	}

	req := request{cmd: cmdTableRead, txLen: 0x05, reg: regECUID, rxLen: ecuIDLen}
	if err := d.eng.execute(req); err != nil {
		return nil, fmt.Errorf("dlc: ecu id: %w", err)
	}
	id := make([]byte, ecuIDLen)
	copy(id, d.eng.rx.payload())
	return id, nil
}

// Stats returns a snapshot of the error counters and log.
func (d *DLC) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Stats{}
	if d.eng != nil {
		s.Timeouts = d.eng.timeouts
		s.ChecksumErrors = d.eng.checksumErrs
	}
	if d.errs != nil {
		s.Errors = d.errs.Entries()
		s.ErrorsDropped = d.errs.Dropped()
	}
	return s
}

// serialLink adapts a serial port to the Link interface. The K-line is a
// single shared wire, so the port receives everything it transmits;
// Write consumes that echo before returning.
type serialLink struct {
	port serial.Port
}

func (l *serialLink) Write(p []byte) (int, error) {
	n, err := l.port.Write(p)
	if err != nil {
		return n, err
	}
	if err := l.discardEcho(len(p)); err != nil {
		return n, err
	}
	return n, nil
}

// discardEcho reads back the n bytes just transmitted. A missing echo
// means the line is not wired as expected (or the adapter eats its own
// transmit), either way the response read would misalign.
func (l *serialLink) discardEcho(n int) error {
	buf := make([]byte, n)
	deadline := time.Now().Add(100 * time.Millisecond)
	got := 0
	for got < n {
		if time.Now().After(deadline) {
			return fmt.Errorf("transmit echo: got %d of %d bytes", got, n)
		}
		r, err := l.port.Read(buf[got:])
		if r == 0 && err != nil {
			return fmt.Errorf("transmit echo: %w", err)
		}
		got += r
	}
	return nil
}

func (l *serialLink) Read(p []byte) (int, error) { return l.port.Read(p) }
func (l *serialLink) ResetInput() error          { return l.port.ResetInputBuffer() }
func (l *serialLink) Close() error               { return l.port.Close() }
