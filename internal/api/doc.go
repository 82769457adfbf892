// Package api implements the drivewatch HTTP REST API.
//
// New(opts) returns an http.Handler that serves:
//
//	GET    /api/v1/health                       - loop state, alert counts by level, channels
//	GET    /api/v1/alerts                       - current alerts, ranked
//	GET    /api/v1/alerts/history?window=72h    - alerts recorded within window
//	POST   /api/v1/alerts/{component}/snooze    - snooze, optional ?for=30m
//	GET    /api/v1/notifications                - last notification per component
//	GET    /api/v1/config                       - active config as YAML
//	PUT    /api/v1/config                       - validate, persist and apply a YAML config
//	GET    /api/v1/devices                      - registered devices, optional ?kind=
//	POST   /api/v1/devices                      - register {kind, address, label}
//	DELETE /api/v1/devices/{token}              - unregister by address or ID
//
// Responses are JSON except the config endpoints. With auth mode apikey,
// every route except health requires the key in the configured header;
// with bearer, an Authorization: Bearer token.
package api
