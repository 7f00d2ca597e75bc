package ecu

import (
	"math"
	"math/rand"
	"sync"
)

// DemoProvider generates simulated ECU data for development and testing
// without a vehicle on the bench.
type DemoProvider struct {
	mu        sync.Mutex
	connected bool
	t         float64 // virtual time accumulator
}

func NewDemoProvider() *DemoProvider {
	return &DemoProvider{}
}

func (d *DemoProvider) Name() string { return "Demo (Simulated)" }

func (d *DemoProvider) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = true
	return nil
}

func (d *DemoProvider) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = false
	return nil
}

func (d *DemoProvider) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

func (d *DemoProvider) ReadLiveData() (*LiveData, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.t += 0.1

	// RPM sweeps between idle and a lazy rev
	rpm := 850.0 + 5200.0*math.Sin(d.t*0.2)*math.Sin(d.t*0.2) + rand.Float64()*40
	tps := (rpm - 850) / 6000 * 100
	if tps < 0 {
		tps = 0
	}
	mapKPa := 25.0 + tps/100*70
	iat := 32.0 + rand.Float64()*4
	ect := 88.0 + rand.Float64()*3

	ld := &LiveData{
		Engine: EngineData{
			RPM:         rpm,
			VSS:         uint8(tps / 100 * 160),
			InjectorMs:  2.0 + tps/100*8,
			IgnitionDeg: 16 + tps/100*18,
			LimiterDeg:  45,
			IACVDuty:    30 + rand.Float64()*5,
			ShortTrim:   rand.Float64()*6 - 3,
			LongTrim:    1.5,
			Knock:       0,
		},
		Intake: IntakeData{
			MAP:  mapKPa,
			Baro: 100.2,
			TPS:  tps,
		},
		Thermal: ThermalData{
			Coolant: ect,
			Intake:  iat,
		},
		Electrical: ElectricalData{
			Battery:  13.8 + rand.Float64()*0.4,
			O2:       0.45 + 0.4*math.Sin(d.t*2),
			AltField: 40 + rand.Float64()*10,
			Load:     18 + tps/100*10,
		},
		Switches: SwitchData{
			VTEC:      rpm > 5500,
			MainRelay: true,
		},
	}
	ld.Intake.MAF = massAirflow(ld.Engine.RPM, ld.Intake.MAP, ld.Thermal.Intake)
	return ld, nil
}

func (d *DemoProvider) ScanDTC() ([]int, error) {
	return []int{}, nil
}

func (d *DemoProvider) ResetECU() error {
	return nil
}

func (d *DemoProvider) ReadECUID() ([]byte, error) {
	return []byte{0x37, 0x30, 0x30, 0x2d, 0x50, 0x32, 0x38, 0x00}, nil
}

func (d *DemoProvider) Stats() Stats {
	return Stats{Errors: []ErrorEntry{}}
}
