package predict

import (
	"errors"
	"math"
)

// ErrNoFeatures is returned when none of a model's sensors are present.
var ErrNoFeatures = errors.New("no known features")

// Sensor is the healthy operating profile of one feature.
type Sensor struct {
	Mean float64
	Std  float64
	// Direction is +1 when failures push the reading up and -1 when they
	// push it down.
	Direction float64
}

// DeviationModel scores how far readings have moved from their healthy
// profile in the failure direction. Each sensor contributes a one-sided
// z-score capped at maxZ; the mean contribution is mapped through a
// logistic curve centred on Midpoint with slope Steepness.
type DeviationModel struct {
	Sensors   map[string]Sensor
	Midpoint  float64
	Steepness float64
}

const maxZ = 4.0

// Predict implements Predictor.
func (m DeviationModel) Predict(features map[string]float64) (float64, error) {
	var sum float64
	var n int
	for name, s := range m.Sensors {
		v, ok := features[name]
		if !ok || s.Std <= 0 {
			continue
		}
		z := s.Direction * (v - s.Mean) / s.Std
		sum += clamp(z, 0, maxZ)
		n++
	}
	if n == 0 {
		return 0, ErrNoFeatures
	}
	return logistic(m.Steepness * (sum/float64(n) - m.Midpoint)), nil
}

func logistic(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

// clamp returns v constrained to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Healthy operating profiles for the built-in vehicle components.
var defaultProfiles = map[string]map[string]Sensor{
	"engine": {
		"temperature":  {Mean: 90, Std: 5, Direction: 1},
		"rpm":          {Mean: 2500, Std: 200, Direction: 1},
		"oil_pressure": {Mean: 50, Std: 3, Direction: -1},
		"vibration":    {Mean: 0.05, Std: 0.01, Direction: 1},
	},
	"transmission": {
		"gear_shifts":         {Mean: 50, Std: 5, Direction: 1},
		"transmission_temp":   {Mean: 85, Std: 5, Direction: 1},
		"fluid_level":         {Mean: 7, Std: 0.2, Direction: -1},
		"gear_ratio_variance": {Mean: 0.02, Std: 0.005, Direction: 1},
	},
	"brakes": {
		"pad_wear":          {Mean: 10, Std: 1, Direction: 1},
		"rotor_thickness":   {Mean: 25, Std: 1, Direction: -1},
		"brake_fluid_level": {Mean: 80, Std: 3, Direction: -1},
		"brake_temperature": {Mean: 100, Std: 10, Direction: 1},
	},
	"battery": {
		"voltage":       {Mean: 12.6, Std: 0.2, Direction: -1},
		"current":       {Mean: 10, Std: 1, Direction: 1},
		"temperature":   {Mean: 25, Std: 3, Direction: 1},
		"charge_cycles": {Mean: 500, Std: 50, Direction: 1},
	},
	"electrical": {
		"alternator_voltage": {Mean: 14.2, Std: 0.2, Direction: -1},
		"wire_resistance":    {Mean: 0.1, Std: 0.01, Direction: 1},
		"ground_connection":  {Mean: 0.05, Std: 0.005, Direction: 1},
		"electrical_noise":   {Mean: 0.1, Std: 0.02, Direction: 1},
	},
}

// Default model curve: an average deviation of 1.5σ maps to p = 0.5.
const (
	DefaultMidpoint  = 1.5
	DefaultSteepness = 2.0
)

// Profiles returns a copy of the built-in healthy profiles keyed by
// component, then sensor.
func Profiles() map[string]map[string]Sensor {
	out := make(map[string]map[string]Sensor, len(defaultProfiles))
	for c, sensors := range defaultProfiles {
		cp := make(map[string]Sensor, len(sensors))
		for k, v := range sensors {
			cp[k] = v
		}
		out[c] = cp
	}
	return out
}

// DefaultRegistry returns a Registry with a DeviationModel for each built-in
// component.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for component, sensors := range Profiles() {
		r.Register(component, DeviationModel{
			Sensors:   sensors,
			Midpoint:  DefaultMidpoint,
			Steepness: DefaultSteepness,
		})
	}
	return r
}
