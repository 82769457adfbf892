package telemetry

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Simulated generates readings around each component's healthy operating
// point. On every Read each component independently drifts towards failure
// with roughly the configured probability.
//
// Simulated is safe for concurrent use.
type Simulated struct {
	failureProbability float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulated creates a simulated source. seed 0 seeds from the clock.
func NewSimulated(failureProbability float64, seed int64) *Simulated {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulated{
		failureProbability: failureProbability,
		rng:                rand.New(rand.NewSource(seed)),
	}
}

// Read implements Source.
func (s *Simulated) Read(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// Jitter the base probability per frame so failures cluster.
	p := s.failureProbability * s.uniform(0.5, 1.5)
	return Frame{
		"engine":       s.engine(p),
		"transmission": s.transmission(p),
		"brakes":       s.brakes(p),
		"battery":      s.battery(p),
		"electrical":   s.electrical(p),
	}, nil
}

func (s *Simulated) normal(mean, std float64) float64 { return mean + std*s.rng.NormFloat64() }

func (s *Simulated) uniform(lo, hi float64) float64 { return lo + (hi-lo)*s.rng.Float64() }

func (s *Simulated) failing(p float64) bool { return s.rng.Float64() < p }

func (s *Simulated) engine(p float64) map[string]float64 {
	d := map[string]float64{
		"temperature":  s.normal(90, 5),
		"rpm":          s.normal(2500, 200),
		"oil_pressure": s.normal(50, 3),
		"vibration":    math.Abs(s.normal(0.05, 0.01)),
	}
	if s.failing(p) {
		d["temperature"] += s.normal(15, 5)
		d["rpm"] += s.normal(300, 100)
		d["oil_pressure"] -= s.normal(10, 3)
		d["vibration"] *= 2.5
	}
	return d
}

func (s *Simulated) transmission(p float64) map[string]float64 {
	d := map[string]float64{
		"gear_shifts":         s.normal(50, 5),
		"transmission_temp":   s.normal(85, 5),
		"fluid_level":         s.normal(7, 0.2),
		"gear_ratio_variance": math.Abs(s.normal(0.02, 0.005)),
	}
	if s.failing(p) {
		d["transmission_temp"] += s.normal(20, 5)
		d["gear_shifts"] += s.normal(15, 5)
		d["fluid_level"] -= s.normal(1.5, 0.5)
		d["gear_ratio_variance"] *= 4
	}
	return d
}

func (s *Simulated) brakes(p float64) map[string]float64 {
	d := map[string]float64{
		"pad_wear":          s.normal(10, 1),
		"rotor_thickness":   s.normal(25, 1),
		"brake_fluid_level": s.normal(80, 3),
		"brake_temperature": s.normal(100, 10),
	}
	if s.failing(p) {
		d["pad_wear"] += s.normal(4, 1)
		d["rotor_thickness"] -= s.normal(2, 0.5)
		d["brake_fluid_level"] -= s.normal(15, 5)
		d["brake_temperature"] += s.normal(40, 10)
	}
	return d
}

func (s *Simulated) battery(p float64) map[string]float64 {
	d := map[string]float64{
		"voltage":       s.normal(12.6, 0.2),
		"current":       s.normal(10, 1),
		"temperature":   s.normal(25, 3),
		"charge_cycles": s.normal(500, 50),
	}
	if s.failing(p) {
		d["voltage"] -= s.normal(0.8, 0.2)
		d["current"] += s.normal(3, 1)
		d["temperature"] += s.normal(15, 5)
		d["charge_cycles"] += s.normal(150, 50)
	}
	return d
}

func (s *Simulated) electrical(p float64) map[string]float64 {
	d := map[string]float64{
		"alternator_voltage": s.normal(14.2, 0.2),
		"wire_resistance":    s.normal(0.1, 0.01),
		"ground_connection":  s.normal(0.05, 0.005),
		"electrical_noise":   s.normal(0.1, 0.02),
	}
	if s.failing(p) {
		d["alternator_voltage"] -= s.normal(1.5, 0.5)
		d["wire_resistance"] += s.normal(0.08, 0.02)
		d["ground_connection"] += s.normal(0.08, 0.02)
		d["electrical_noise"] *= 4
	}
	return d
}
