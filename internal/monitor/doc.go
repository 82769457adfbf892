// Package monitor runs the alert pipeline.
//
// Monitor owns a state.Store and a notify.Notifier and drives them with two
// independent Periodic loops:
//   - evaluation (default every 2s): read a telemetry.Frame, predict each
//     component's failure probability, classify it and apply the whole cycle
//     to the store at once; components that fall below the low threshold
//     are cleared
//   - dispatch (default every 5s): take the ranked current alerts and pass
//     them through the gate and channels; not started when mobile alerts
//     are disabled
//
// Both loops stop cooperatively: Stop cancels their context and waits for
// the in-flight cycle. Cycle errors and panics are logged and counted and
// the loop carries on.
//
// Metrics registers the drivewatch_* Prometheus instruments.
package monitor
