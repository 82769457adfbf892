// Package alert turns per-component failure probabilities into driver alerts.
//
// Classify maps a probability to a Level using the configured Thresholds,
// checked in descending order (high, medium, low) with a >= comparison. A
// probability below the low threshold yields None: the component has no alert.
//
// New builds a complete Alert, including the rendered driver message:
//
//	"Urgent service required! Engine issue detected. Potential failure risk: 75.0%.
//	 Please visit a service center immediately."
//
// Rank orders simultaneous alerts by component priority (descending), breaking
// ties by probability (descending). The sort is stable, so alerts with equal
// keys keep their input order. Display and notification dispatch both use it.
package alert
