// Package notify admits alerts to notification channels.
//
// Gate holds one Record per component (level, time and message of the last
// successful send) and decides, per alert, whether sending now is allowed:
// snoozed alerts and alerts inside quiet hours are held back (High alerts
// may override quiet hours), the first alert for a component and any
// escalation above the last sent level go out at once, and otherwise the
// per-level cooldown must have elapsed.
//
// Dispatcher fans an admitted alert out to its Channels in the fixed order
// push, sms, email. Delivery succeeds when any channel succeeds.
//
// Notifier combines the two for one dispatch cycle.
package notify
