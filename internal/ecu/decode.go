package ecu

// Conversion formulas for the raw data-table bytes. These encode the
// reverse-engineered scaling of the OBD1 ECU and must not be "cleaned up":
// the constants are the calibration.

// engineRPM converts the big-endian RPM word. The ECU reports the period
// between ignition events, so speed is the reciprocal; raw 0 is the
// shortest period the counter can express.
func engineRPM(raw uint16) float64 {
	rpm := 1875000.0 / (float64(raw) + 1.0)
	if rpm < 0 {
		rpm = 0
	}
	return rpm
}

// thermistorC converts an ECT/IAT byte through the quintic approximation
// of the thermistor curve. Monotonically decreasing over 0..255.
func thermistorC(raw byte) float64 {
	x := float64(raw)
	x2 := x * x
	x3 := x2 * x
	x4 := x3 * x
	x5 := x4 * x
	return 55.04149 -
		3.0414878*x +
		0.03952185*x2 -
		0.00029383913*x3 +
		0.0000010792568*x4 -
		0.0000000015618437*x5
}

// pressureKPa converts a MAP or barometric pressure byte.
func pressureKPa(raw byte) float64 {
	return float64(raw)*0.716 - 5.0
}

// throttlePct converts the TPS byte. The sensor's closed-throttle rest
// position reads 24.
func throttlePct(raw byte) float64 {
	return (float64(raw) - 24) / 2
}

// fuelTrimPct converts a short/long term trim byte: 128 is neutral, the
// range maps to ±100%.
func fuelTrimPct(raw byte) float64 {
	return (float64(raw)/128 - 1) * 100
}

// ignitionDeg converts an ignition timing or limiter byte to degrees.
func ignitionDeg(raw byte) float64 {
	return (float64(raw) - 24) / 4
}

// massAirflow derives a mass airflow estimate (g/s) from engine speed,
// manifold pressure and intake temperature via the speed-density relation.
// The intermediate manifold-flow terms are truncated to integers; the
// truncation is part of the calibrated behavior and is kept.
func massAirflow(rpm, mapKPa, iatC float64) float64 {
	imap := int(rpm * mapKPa / (iatC + 273) / 2)
	return float64(imap/60) * 0.8 * 1.595 * 28.9644 / 8.314472
}

// Payload byte positions within each 16-byte row. Rows 0x00 and 0x10 are
// addressed by register offset; the row 0x20 and 0x30 positions below are
// raw buffer indices carried over from the factory table layout.
const (
	row2OffTrimShort = 0
	row2OffTrimLong  = 1
	row2OffInjector  = 4
	row2OffIgnition  = 6
	row2OffLimiter   = 7
	row2OffIACV      = 8

	row3OffKnock = 12

	dtcFlagBytes = 14
	maxDTCCodes  = 2 * dtcFlagBytes
)

// decodeRow0 fills engine speed, vehicle speed and the switch flags from
// the 0x00 row.
func decodeRow0(rx *reply, ld *LiveData) {
	ld.Engine.RPM = engineRPM(rx.u16(regRPM))
	ld.Engine.VSS = rx.at(regVSS)

	f08 := rx.at(regFlags08)
	f0B := rx.at(regFlags0B)

	ld.Switches.AirCon = f08&flgACSwitch != 0
	ld.Switches.Brake = f08&flgBrake != 0
	ld.Switches.Starter = f08&flgStarter != 0
	ld.Switches.VTEC = f08&flgVTEC != 0
	ld.Switches.MainRelay = f0B&flgMainRelay != 0
	ld.Switches.CheckEngine = f0B&flgCEL != 0
}

// decodeRow1 fills the thermal, pressure and electrical channels from the
// 0x10 row.
func decodeRow1(rx *reply, ld *LiveData) {
	ld.Thermal.Coolant = thermistorC(rx.at(0))
	ld.Thermal.Intake = thermistorC(rx.at(regIAT - regECT))

	ld.Intake.MAP = pressureKPa(rx.at(regMAP - regECT))
	ld.Intake.Baro = pressureKPa(rx.at(regBaro - regECT))
	ld.Intake.TPS = throttlePct(rx.at(regTPS - regECT))

	ld.Electrical.O2 = float64(rx.at(regO2-regECT)) / 51.3
	ld.Electrical.Battery = float64(rx.at(regBatt-regECT)) / 10.45
	ld.Electrical.AltField = float64(rx.at(regAltF-regECT)) / 2.55
	ld.Electrical.Load = 77.06 - float64(rx.at(regELD-regECT))/2.5371
}

// decodeRow2 fills fuel trims, injector pulse width and ignition values
// from the 0x20 row.
func decodeRow2(rx *reply, ld *LiveData) {
	ld.Engine.ShortTrim = fuelTrimPct(rx.at(row2OffTrimShort))
	ld.Engine.LongTrim = fuelTrimPct(rx.at(row2OffTrimLong))
	ld.Engine.InjectorMs = float64(rx.u16(row2OffInjector)) / 250
	ld.Engine.IgnitionDeg = ignitionDeg(rx.at(row2OffIgnition))
	ld.Engine.LimiterDeg = ignitionDeg(rx.at(row2OffLimiter))
	ld.Engine.IACVDuty = float64(rx.at(row2OffIACV)) / 2.55
}

// decodeRow3 fills the knock indicator from the 0x30 row.
func decodeRow3(rx *reply, ld *LiveData) {
	ld.Engine.Knock = float64(rx.at(row3OffKnock)) / 51
}

// decodeDTC expands the error-flag payload into trouble code numbers.
// For each of the first 14 bytes, a set high nibble means code 2i and a
// set low nibble means code 2i+1; both can be present. Codes 23 and 24 do
// not exist in the factory numbering, so anything landing on them is
// shifted down one.
func decodeDTC(payload []byte) []int {
	codes := make([]int, 0, maxDTCCodes)
	for i := 0; i < dtcFlagBytes && i < len(payload); i++ {
		if payload[i]>>4 != 0 {
			codes = append(codes, remapDTC(2*i))
		}
		if payload[i]&0x0F != 0 {
			codes = append(codes, remapDTC(2*i+1))
		}
	}
	return codes
}

func remapDTC(code int) int {
	switch code {
	case 23:
		return 22
	case 24:
		return 23
	default:
		return code
	}
}
