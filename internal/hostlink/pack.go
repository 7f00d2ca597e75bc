package hostlink

import (
	"fmt"

	"github.com/openhobd/dlcbridge/internal/ecu"
)

// LivePayloadLen is the size of the packed live-data payload.
const LivePayloadLen = 16

// PackLive packs the interesting subset of a live snapshot into the fixed
// 16-byte wire layout:
//
//	rpm(u16) vss(u8) ect(i16 x10) iat(i16 x10) map(i16 x10) tps(i16 x10)
//	batt(u16 x100) o2(u16 x1000) flags(u8)
//
// Scaled values keep one to three decimals while staying in small
// fixed-width integers.
func PackLive(ld *ecu.LiveData) []byte {
	p := make([]byte, LivePayloadLen)

	rpm := ld.Engine.RPM
	if rpm < 0 {
		rpm = 0
	}
	if rpm > 65535 {
		rpm = 65535
	}
	putU16(p, 0, uint16(rpm))
	p[2] = ld.Engine.VSS

	putU16(p, 3, uint16(int16(ld.Thermal.Coolant*10)))
	putU16(p, 5, uint16(int16(ld.Thermal.Intake*10)))
	putU16(p, 7, uint16(int16(ld.Intake.MAP*10)))
	putU16(p, 9, uint16(int16(ld.Intake.TPS*10)))
	putU16(p, 11, uint16(ld.Electrical.Battery*100))
	putU16(p, 13, uint16(ld.Electrical.O2*1000))

	var flags byte
	if ld.Switches.AirCon {
		flags |= 1 << 0
	}
	if ld.Switches.Brake {
		flags |= 1 << 1
	}
	if ld.Switches.VTEC {
		flags |= 1 << 2
	}
	if ld.Switches.CheckEngine {
		flags |= 1 << 3
	}
	p[15] = flags

	return p
}

// LivePayload is the host-side view of a packed live frame.
type LivePayload struct {
	RPM         uint16
	VSS         uint8
	CoolantC    float64
	IntakeC     float64
	MAPkPa      float64
	TPSPct      float64
	BatteryV    float64
	O2V         float64
	AirCon      bool
	Brake       bool
	VTEC        bool
	CheckEngine bool
}

// UnpackLive decodes a packed live payload. Host clients use this to
// recover the scaled values.
func UnpackLive(p []byte) (*LivePayload, error) {
	if len(p) < LivePayloadLen {
		return nil, errShortPayload(len(p))
	}
	lp := &LivePayload{
		RPM:      getU16(p, 0),
		VSS:      p[2],
		CoolantC: float64(int16(getU16(p, 3))) / 10,
		IntakeC:  float64(int16(getU16(p, 5))) / 10,
		MAPkPa:   float64(int16(getU16(p, 7))) / 10,
		TPSPct:   float64(int16(getU16(p, 9))) / 10,
		BatteryV: float64(getU16(p, 11)) / 100,
		O2V:      float64(getU16(p, 13)) / 1000,
	}
	flags := p[15]
	lp.AirCon = flags&(1<<0) != 0
	lp.Brake = flags&(1<<1) != 0
	lp.VTEC = flags&(1<<2) != 0
	lp.CheckEngine = flags&(1<<3) != 0
	return lp, nil
}

func errShortPayload(n int) error {
	return fmt.Errorf("hostlink: live payload too short: %d bytes", n)
}

func putU16(p []byte, off int, v uint16) {
	p[off] = byte(v >> 8)
	p[off+1] = byte(v)
}

func getU16(p []byte, off int) uint16 {
	return uint16(p[off])<<8 | uint16(p[off+1])
}
