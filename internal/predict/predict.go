package predict

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNoPredictor is returned for a component without a registered predictor.
var ErrNoPredictor = errors.New("predict: no predictor for component")

// Predictor estimates the probability, in [0, 1], that a component will fail
// given its current sensor features.
type Predictor interface {
	Predict(features map[string]float64) (float64, error)
}

// Func adapts an ordinary function to Predictor.
type Func func(features map[string]float64) (float64, error)

// Predict implements Predictor.
func (f Func) Predict(features map[string]float64) (float64, error) { return f(features) }

// Registry maps component names to predictors.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	predictors map[string]Predictor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{predictors: make(map[string]Predictor)}
}

// Register sets the predictor for component, replacing any previous one.
func (r *Registry) Register(component string, p Predictor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.predictors[component] = p
}

// Components returns the registered component names, sorted.
func (r *Registry) Components() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.predictors))
	for c := range r.predictors {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Predict runs the predictor for component. Results outside [0, 1] are
// rejected.
func (r *Registry) Predict(component string, features map[string]float64) (float64, error) {
	r.mu.RLock()
	p, ok := r.predictors[component]
	r.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoPredictor, component)
	}
	prob, err := p.Predict(features)
	if err != nil {
		return 0, fmt.Errorf("predict: %s: %w", component, err)
	}
	if prob < 0 || prob > 1 || prob != prob {
		return 0, fmt.Errorf("predict: %s: probability %v outside [0, 1]", component, prob)
	}
	return prob, nil
}
