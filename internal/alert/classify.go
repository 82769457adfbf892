package alert

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	urgency = map[Level]string{
		High:   "Urgent service required!",
		Medium: "Service recommended.",
		Low:    "Monitor condition.",
	}
	action = map[Level]string{
		High:   "Please visit a service center immediately",
		Medium: "Schedule service within the next week",
		Low:    "Check during your next maintenance visit",
	}
	titlePrefix = map[Level]string{
		High:   "URGENT",
		Medium: "WARNING",
		Low:    "NOTICE",
	}
)

// Classify returns the highest level whose threshold p meets, or None.
func Classify(p float64, t Thresholds) Level {
	switch {
	case p >= t.High:
		return High
	case p >= t.Medium:
		return Medium
	case p >= t.Low:
		return Low
	default:
		return None
	}
}

// New classifies p for component and, if it qualifies, returns the rendered
// Alert stamped with now. ok is false when p is below every threshold.
func New(component string, p float64, priority int, t Thresholds, now time.Time) (a Alert, ok bool) {
	level := Classify(p, t)
	if level == None {
		return Alert{}, false
	}
	return Alert{
		ID:          uuid.NewString(),
		Component:   component,
		Probability: p,
		Level:       level,
		Priority:    priority,
		Message:     Message(component, level, p),
		Timestamp:   now,
	}, true
}

// Message renders the driver-facing text for an alert.
// Returns "" for None.
func Message(component string, level Level, p float64) string {
	if level == None {
		return ""
	}
	return fmt.Sprintf("%s %s issue detected. Potential failure risk: %.1f%%. %s.",
		urgency[level], DisplayName(component), p*100, action[level])
}

// Title renders the notification title, e.g. "URGENT: Engine Issue Detected".
func Title(a Alert) string {
	name := DisplayName(a.Component) + " Issue Detected"
	if prefix, ok := titlePrefix[a.Level]; ok {
		return prefix + ": " + name
	}
	return name
}

// DisplayName turns a component identifier such as "fuel_pump" into "Fuel Pump".
func DisplayName(component string) string {
	// Casers are stateful; build one per call.
	return cases.Title(language.Und).String(strings.ReplaceAll(component, "_", " "))
}
