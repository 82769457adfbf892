// Package config loads, validates, saves and watches the drivewatch
// configuration file (config.yaml).
//
// Top-level types:
//   - Config: thresholds, priorities, notifications, channels, monitor,
//     server, telemetry and the device directory path
//   - NotificationConfig: mobile switch, display logging, snooze duration,
//     per-level Cooldowns and QuietHours
//   - ChannelsConfig: push (NATS), sms (HTTP gateway), email (SMTP) and the
//     shared circuit breaker settings
//   - AuthConfig: mode (apikey|bearer|basic|none) with secrets resolved from
//     environment variables named in the file
//
// Parse and Load apply Default, decode YAML on top and run Validate; every
// validation failure wraps ErrInvalid. LoadOrDefault falls back to Default
// and reports why. Save validates and atomically replaces the file.
//
// Watch(ctx, path, onChange) watches the parent directory with fsnotify and calls
// onChange only with configs that validate.
package config
