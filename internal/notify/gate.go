package notify

import (
	"sync"
	"time"

	"github.com/drivewatch/drivewatch/internal/alert"
	"github.com/drivewatch/drivewatch/internal/config"
)

// Decision reasons.
const (
	ReasonBootstrap       = "bootstrap"
	ReasonEscalation      = "escalation"
	ReasonCooldownElapsed = "cooldown_elapsed"
	ReasonQuietHours      = "quiet_hours"
	ReasonCooldown        = "cooldown"
	ReasonSnoozed         = "snoozed"
)

// Record is the last successful notification for one component.
type Record struct {
	Level   alert.Level `json:"level"`
	SentAt  time.Time   `json:"sent_at"`
	Message string      `json:"message"`
}

// Decision is the outcome of ShouldNotify.
type Decision struct {
	Admit  bool   `json:"admit"`
	Reason string `json:"reason"`
}

// Gate decides whether an alert may be sent now, given the last notification
// for its component. Records are written only through RecordSent and are never
// deleted.
//
// Gate is safe for concurrent use.
type Gate struct {
	mu      sync.Mutex
	policy  config.NotificationConfig
	loc     *time.Location
	records map[string]Record
}

// NewGate creates a Gate with no notification records.
func NewGate(policy config.NotificationConfig) *Gate {
	return &Gate{
		policy:  policy,
		loc:     policy.QuietHours.Zone(),
		records: make(map[string]Record),
	}
}

// SetPolicy swaps the admission policy. Existing records are kept.
func (g *Gate) SetPolicy(policy config.NotificationConfig) {
	loc := policy.QuietHours.Zone()
	g.mu.Lock()
	g.policy = policy
	g.loc = loc
	g.mu.Unlock()
}

// ShouldNotify applies, in order: snooze, quiet hours (High may override),
// first notification for the component, escalation above the last sent
// level, and finally the per-level cooldown of a's level.
func (g *Gate) ShouldNotify(a alert.Alert, now time.Time) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	if a.Snoozed(now) {
		return Decision{Reason: ReasonSnoozed}
	}

	q := g.policy.QuietHours
	if q.Respect && InQuietHours(q, now.In(g.loc)) {
		if !(a.Level == alert.High && q.OverrideForHigh) {
			return Decision{Reason: ReasonQuietHours}
		}
	}

	last, ok := g.records[a.Component]
	if !ok {
		return Decision{Admit: true, Reason: ReasonBootstrap}
	}
	if a.Level > last.Level {
		return Decision{Admit: true, Reason: ReasonEscalation}
	}
	if !now.Before(last.SentAt.Add(g.policy.Cooldowns.For(a.Level))) {
		return Decision{Admit: true, Reason: ReasonCooldownElapsed}
	}
	return Decision{Reason: ReasonCooldown}
}

// RecordSent stores a successful notification of a at now.
func (g *Gate) RecordSent(component string, a alert.Alert, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.records[component] = Record{Level: a.Level, SentAt: now, Message: a.Message}
}

// Record returns the last notification for component.
func (g *Gate) Record(component string) (Record, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.records[component]
	return r, ok
}

// Records returns a copy of all notification records keyed by component.
func (g *Gate) Records() map[string]Record {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]Record, len(g.records))
	for k, v := range g.records {
		out[k] = v
	}
	return out
}

// InQuietHours reports whether t's hour falls in [q.Start, q.End). The window
// wraps past midnight when Start > End and is empty when Start == End. t is
// used as given; convert it to the quiet-hours zone first.
func InQuietHours(q config.QuietHours, t time.Time) bool {
	h := t.Hour()
	switch {
	case q.Start < q.End:
		return h >= q.Start && h < q.End
	case q.Start > q.End:
		return h >= q.Start || h < q.End
	default:
		return false
	}
}
