package alert

import "sort"

// Rank returns a copy of alerts ordered by priority, then probability, both
// descending. Equal keys keep their input order.
func Rank(alerts []Alert) []Alert {
	out := make([]Alert, len(alerts))
	copy(out, alerts)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Probability > out[j].Probability
	})
	return out
}
