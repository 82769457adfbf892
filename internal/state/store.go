package state

import (
	"log/slog"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/drivewatch/drivewatch/internal/alert"
)

// Store is a thread-safe alert state store keyed by component.
//
// At most one current alert exists per component. Every alert passed to
// Update or ApplyCycle is also appended to the history, which is never
// rewritten.
//
// Current alerts with equal rank keep the order in which their components
// became current. A component keeps its place while it stays current.
type Store struct {
	mu      sync.RWMutex
	current map[string]*alert.Alert
	order   map[string]uint64 // component -> insertion sequence
	seq     uint64
	history []alert.Alert
	now     func() time.Time // injectable for deterministic tests
}

// New creates an empty Store. A nil clock defaults to time.Now.
func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		current: make(map[string]*alert.Alert),
		order:   make(map[string]uint64),
		now:     now,
	}
}

// Update sets or clears the current alert for component. A nil alert models
// recovery: the component's current alert, if any, is removed.
func (s *Store) Update(component string, a *alert.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(component, a)
}

// ApplyCycle applies the results of one evaluation cycle under a single lock,
// so readers never observe half of a cycle. Nil values clear the component.
// Components are applied in name order, which fixes their history order.
func (s *Store) ApplyCycle(results map[string]*alert.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, component := range slices.Sorted(maps.Keys(results)) {
		s.apply(component, results[component])
	}
}

func (s *Store) apply(component string, a *alert.Alert) {
	if a == nil {
		if _, ok := s.current[component]; ok {
			delete(s.current, component)
			delete(s.order, component)
			slog.Debug("state: alert cleared", "component", component)
		}
		return
	}
	cur := a.Clone()
	// A re-evaluated alert keeps an unexpired snooze of the one it replaces.
	if prev, ok := s.current[component]; ok && cur.SnoozedUntil == nil && prev.Snoozed(s.now()) {
		until := *prev.SnoozedUntil
		cur.SnoozedUntil = &until
	}
	if _, ok := s.order[component]; !ok {
		s.seq++
		s.order[component] = s.seq
	}
	s.current[component] = &cur
	s.history = append(s.history, a.Clone())
}

// Current returns copies of all current alerts in ranked order.
func (s *Store) Current() []alert.Alert {
	s.mu.RLock()
	out := make([]alert.Alert, 0, len(s.current))
	seqs := make(map[string]uint64, len(s.current))
	for c, a := range s.current {
		out = append(out, a.Clone())
		seqs[c] = s.order[c]
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return seqs[out[i].Component] < seqs[out[j].Component] })
	return alert.Rank(out)
}

// Get returns a copy of the current alert for component.
func (s *Store) Get(component string) (alert.Alert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.current[component]
	if !ok {
		return alert.Alert{}, false
	}
	return a.Clone(), true
}

// Snooze suppresses the current alert for component until now+d. It returns
// the snooze deadline, or false when the component has no current alert.
// The alert stays current and its history entries are untouched.
func (s *Store) Snooze(component string, d time.Duration) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.current[component]
	if !ok {
		return time.Time{}, false
	}
	until := s.now().Add(d)
	a.SnoozedUntil = &until
	return until, true
}

// History returns every recorded alert with a timestamp inside the trailing
// window, in recording order. Snooze state is ignored.
func (s *Store) History(window time.Duration) []alert.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().Add(-window)
	out := make([]alert.Alert, 0)
	for _, a := range s.history {
		if a.Timestamp.After(cutoff) {
			out = append(out, a.Clone())
		}
	}
	return out
}

// Count returns the number of current alerts.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.current)
}

// HistoryLen returns the total number of recorded alerts.
func (s *Store) HistoryLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}
