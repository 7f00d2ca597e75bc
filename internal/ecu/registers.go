package ecu

// Command bytes understood by the OBD1 ECU on the diagnostic connector.
const (
	cmdTableRead = 0x20 // read a block of the data table
	cmdReset     = 0x21 // command an ECU reset
)

// Data-table register addresses. The live data table is read in 16-byte
// rows; a handful of registers inside each row carry the values below.
const (
	regRPM     = 0x00 // u16 big-endian
	regVSS     = 0x02 // km/h, raw
	regFlags08 = 0x08 // switch flag byte
	regFlags0B = 0x0B // relay/CEL flag byte

	regECT  = 0x10 // coolant temperature (thermistor curve)
	regIAT  = 0x11 // intake air temperature (thermistor curve)
	regMAP  = 0x12 // manifold absolute pressure
	regBaro = 0x13 // barometric pressure
	regTPS  = 0x14 // throttle position
	regO2   = 0x15 // primary O2 sensor voltage
	regBatt = 0x17 // battery voltage
	regAltF = 0x18 // alternator field duty
	regELD  = 0x19 // electrical load

	regTrims = 0x20 // fuel trims, injector, ignition row
	regKnock = 0x30 // knock row

	regErrorFlags = 0x40 // diagnostic trouble code flag block
	regECUID      = 0x76 // ECU identity bytes, 0x76..0x7D
)

// Flag bits in the 0x08 register.
const (
	flgStarter  = 1 << 0
	flgACSwitch = 1 << 1
	flgBrake    = 1 << 3
	flgVTEC     = 1 << 7
)

// Flag bits in the 0x0B register.
const (
	flgMainRelay = 1 << 0
	flgCEL       = 1 << 5
)

const (
	rowLen   = 0x10 // every live-data row is requested as 16 bytes
	ecuIDLen = 0x08
)
