package ecu

// Provider is the interface the host-facing layers talk to. DLC is the
// real implementation; DemoProvider generates simulated data so the
// dashboard and host link can be developed without a vehicle.
type Provider interface {
	// Name returns the human-readable name of this provider.
	Name() string
	// Connect opens the serial port and wakes the ECU.
	Connect() error
	// Close shuts down the serial connection.
	Close() error
	// IsConnected returns whether the provider has an active connection.
	IsConnected() bool

	// ReadLiveData performs the full live-data poll: four block reads
	// against the data table, decoded into engineering units. On any
	// transaction failure the poll aborts and no snapshot is returned.
	ReadLiveData() (*LiveData, error)

	// ScanDTC reads the error-flag block and expands it into a list of
	// diagnostic trouble code numbers, in ascending flag order.
	ScanDTC() ([]int, error)

	// ResetECU commands a controller reset. No data is decoded.
	ResetECU() error

	// ReadECUID returns the raw ECU identity bytes.
	ReadECUID() ([]byte, error)

	// Stats returns transaction error bookkeeping.
	Stats() Stats
}

// LiveData is one decoded snapshot of the ECU's live data table.
type LiveData struct {
	Engine     EngineData     `json:"engine"`
	Intake     IntakeData     `json:"intake"`
	Thermal    ThermalData    `json:"thermal"`
	Electrical ElectricalData `json:"electrical"`
	Switches   SwitchData     `json:"switches"`
}

// EngineData groups rotation, fueling and ignition values.
type EngineData struct {
	RPM         float64 `json:"rpm"`
	VSS         uint8   `json:"vss"`         // km/h
	InjectorMs  float64 `json:"injectorMs"`  // injector pulse width
	IgnitionDeg float64 `json:"ignitionDeg"` // ignition advance
	LimiterDeg  float64 `json:"limiterDeg"`
	IACVDuty    float64 `json:"iacvDuty"`  // idle air control valve %
	ShortTrim   float64 `json:"shortTrim"` // short term fuel trim %
	LongTrim    float64 `json:"longTrim"`  // long term fuel trim %
	Knock       float64 `json:"knock"`     // 0..5
}

// IntakeData groups pressure and airflow values.
type IntakeData struct {
	MAP  float64 `json:"map"`  // kPa
	Baro float64 `json:"baro"` // kPa
	TPS  float64 `json:"tps"`  // %
	MAF  float64 `json:"maf"`  // g/s, derived from RPM/MAP/IAT
}

// ThermalData groups the two thermistor channels.
type ThermalData struct {
	Coolant float64 `json:"coolant"` // °C
	Intake  float64 `json:"intake"`  // °C
}

// ElectricalData groups voltage and load channels.
type ElectricalData struct {
	Battery  float64 `json:"battery"`  // V
	O2       float64 `json:"o2"`       // V
	AltField float64 `json:"altField"` // %
	Load     float64 `json:"load"`     // A
}

// SwitchData holds the boolean switch inputs decoded from the flag bytes.
type SwitchData struct {
	AirCon      bool `json:"airCon"`
	Brake       bool `json:"brake"`
	Starter     bool `json:"starter"`
	VTEC        bool `json:"vtec"`
	MainRelay   bool `json:"mainRelay"`
	CheckEngine bool `json:"checkEngine"`
}

// Stats carries transaction error counters and the bounded error log.
type Stats struct {
	Timeouts       int          `json:"timeouts"`
	ChecksumErrors int          `json:"checksumErrors"`
	ErrorsDropped  int          `json:"errorsDropped"`
	Errors         []ErrorEntry `json:"errors"`
}
