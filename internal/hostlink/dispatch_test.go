package hostlink

import (
	"bytes"
	"errors"
	"testing"

	"github.com/openhobd/dlcbridge/internal/ecu"
)

// stubProvider implements ecu.Provider with canned responses.
type stubProvider struct {
	live    *ecu.LiveData
	liveErr error
	codes   []int
	scanErr error
	rstErr  error
	resets  int
}

func (s *stubProvider) Name() string      { return "stub" }
func (s *stubProvider) Connect() error    { return nil }
func (s *stubProvider) Close() error      { return nil }
func (s *stubProvider) IsConnected() bool { return true }
func (s *stubProvider) ReadLiveData() (*ecu.LiveData, error) {
	return s.live, s.liveErr
}
func (s *stubProvider) ScanDTC() ([]int, error) { return s.codes, s.scanErr }
func (s *stubProvider) ResetECU() error {
	s.resets++
	return s.rstErr
}
func (s *stubProvider) ReadECUID() ([]byte, error) { return nil, nil }
func (s *stubProvider) Stats() ecu.Stats           { return ecu.Stats{} }

// rwPipe records writes and serves scripted reads.
type rwPipe struct {
	in  *bytes.Reader
	out bytes.Buffer
}

func (p *rwPipe) Read(b []byte) (int, error)  { return p.in.Read(b) }
func (p *rwPipe) Write(b []byte) (int, error) { return p.out.Write(b) }

func dispatchOne(t *testing.T, prov ecu.Provider, cmd byte) (MsgType, []byte) {
	t.Helper()
	pipe := &rwPipe{in: bytes.NewReader(nil)}
	d := NewDispatcher(pipe, prov)
	if err := d.handle(cmd); err != nil {
		t.Fatalf("handle(0x%02X): %v", cmd, err)
	}
	mt, payload, err := ReadFrame(&pipe.out)
	if err != nil {
		t.Fatalf("response frame: %v", err)
	}
	return mt, payload
}

func TestDispatchGetLive(t *testing.T) {
	prov := &stubProvider{live: &ecu.LiveData{
		Engine: ecu.EngineData{RPM: 1500, VSS: 30},
	}}

	mt, payload := dispatchOne(t, prov, CmdGetLive)
	if mt != MsgLive {
		t.Fatalf("type = 0x%02X, want MsgLive", mt)
	}
	lp, err := UnpackLive(payload)
	if err != nil {
		t.Fatalf("UnpackLive: %v", err)
	}
	if lp.RPM != 1500 || lp.VSS != 30 {
		t.Errorf("payload rpm=%d vss=%d, want 1500/30", lp.RPM, lp.VSS)
	}
}

func TestDispatchGetLiveFailure(t *testing.T) {
	prov := &stubProvider{liveErr: errors.New("bus silent")}

	mt, payload := dispatchOne(t, prov, CmdGetLive)
	if mt != MsgErr {
		t.Fatalf("type = 0x%02X, want MsgErr", mt)
	}
	if len(payload) != 1 || payload[0] != ErrCodeLiveFailed {
		t.Errorf("payload = % X, want [%02X]", payload, ErrCodeLiveFailed)
	}
}

func TestDispatchGetDTC(t *testing.T) {
	prov := &stubProvider{codes: []int{0, 1, 22}}

	mt, payload := dispatchOne(t, prov, CmdGetDTC)
	if mt != MsgDTC {
		t.Fatalf("type = 0x%02X, want MsgDTC", mt)
	}
	want := []byte{3, 0, 1, 22}
	if !bytes.Equal(payload, want) {
		t.Errorf("payload = % X, want % X", payload, want)
	}
}

func TestDispatchGetDTCFailure(t *testing.T) {
	prov := &stubProvider{scanErr: errors.New("checksum")}

	mt, payload := dispatchOne(t, prov, CmdGetDTC)
	if mt != MsgErr || payload[0] != ErrCodeScanFailed {
		t.Errorf("response = (0x%02X, % X), want scan-failed error", mt, payload)
	}
}

func TestDispatchReset(t *testing.T) {
	prov := &stubProvider{}

	mt, payload := dispatchOne(t, prov, CmdReset)
	if mt != MsgAck || len(payload) != 1 || payload[0] != 1 {
		t.Errorf("response = (0x%02X, % X), want ack [01]", mt, payload)
	}
	if prov.resets != 1 {
		t.Errorf("resets = %d, want 1", prov.resets)
	}

	prov.rstErr = errors.New("timeout")
	mt, payload = dispatchOne(t, prov, CmdReset)
	if mt != MsgAck || payload[0] != 0 {
		t.Errorf("response = (0x%02X, % X), want ack [00]", mt, payload)
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	mt, payload := dispatchOne(t, &stubProvider{}, 0x7F)
	if mt != MsgErr || payload[0] != ErrCodeUnknownCmd {
		t.Errorf("response = (0x%02X, % X), want unknown-command error", mt, payload)
	}
}
