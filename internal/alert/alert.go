package alert

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Level is the severity of an alert. The zero value None means "no alert".
// Levels compare with the ordinary integer operators: None < Low < Medium < High.
type Level int

const (
	None Level = iota
	Low
	Medium
	High
)

// String returns the lowercase name used in config files and JSON payloads.
func (l Level) String() string {
	switch l {
	case High:
		return "high"
	case Medium:
		return "medium"
	case Low:
		return "low"
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(b []byte) error {
	v, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// ParseLevel converts "high", "medium", "low" or "none" (case-insensitive).
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return High, nil
	case "medium":
		return Medium, nil
	case "low":
		return Low, nil
	case "none", "":
		return None, nil
	default:
		return None, fmt.Errorf("alert: unknown level %q", s)
	}
}

// Levels lists the alerting levels from most to least severe.
var Levels = []Level{High, Medium, Low}

// Alert is one evaluation result for a component that crossed a threshold.
type Alert struct {
	ID           string     `json:"id"`
	Component    string     `json:"component"`
	Probability  float64    `json:"probability"`
	Level        Level      `json:"level"`
	Priority     int        `json:"priority"`
	Message      string     `json:"message"`
	Timestamp    time.Time  `json:"timestamp"`
	SnoozedUntil *time.Time `json:"snoozed_until,omitempty"`
}

// Snoozed reports whether the alert is snoozed at now.
func (a Alert) Snoozed(now time.Time) bool {
	return a.SnoozedUntil != nil && a.SnoozedUntil.After(now)
}

// Clone returns a deep copy; the SnoozedUntil pointer is not shared.
func (a Alert) Clone() Alert {
	if a.SnoozedUntil != nil {
		t := *a.SnoozedUntil
		a.SnoozedUntil = &t
	}
	return a
}

// ErrInvalidThresholds is wrapped by Thresholds.Validate failures.
var ErrInvalidThresholds = errors.New("invalid alert thresholds")

// Thresholds are the minimum probabilities for each alert level.
type Thresholds struct {
	High   float64 `yaml:"high" json:"high"`
	Medium float64 `yaml:"medium" json:"medium"`
	Low    float64 `yaml:"low" json:"low"`
}

// DefaultThresholds are used when no configuration is available.
var DefaultThresholds = Thresholds{High: 0.7, Medium: 0.4, Low: 0.2}

// Validate rejects thresholds outside [0, 1] and inverted orderings.
func (t Thresholds) Validate() error {
	for _, v := range []struct {
		name string
		val  float64
	}{{"high", t.High}, {"medium", t.Medium}, {"low", t.Low}} {
		if v.val < 0 || v.val > 1 {
			return fmt.Errorf("%w: %s threshold %v outside [0, 1]", ErrInvalidThresholds, v.name, v.val)
		}
	}
	if t.High < t.Medium || t.Medium < t.Low {
		return fmt.Errorf("%w: want high >= medium >= low, got %v/%v/%v",
			ErrInvalidThresholds, t.High, t.Medium, t.Low)
	}
	return nil
}
