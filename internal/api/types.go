package api

import (
	"github.com/drivewatch/drivewatch/internal/alert"
	"github.com/drivewatch/drivewatch/internal/notify"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status          string         `json:"status"` // "running" | "stopped"
	DispatchRunning bool           `json:"dispatch_running"`
	AlertCount      int            `json:"alert_count"`
	ByLevel         map[string]int `json:"by_level"`
	Channels        []string       `json:"channels"`
	GeneratedAt     string         `json:"generated_at"` // RFC3339
}

// AlertsResponse is the payload for GET /api/v1/alerts and the data of each
// WebSocket broadcast.
type AlertsResponse struct {
	Alerts      []alert.Alert `json:"alerts"`
	GeneratedAt string        `json:"generated_at"` // RFC3339
}

// HistoryResponse is the payload for GET /api/v1/alerts/history.
type HistoryResponse struct {
	Window string        `json:"window"`
	Alerts []alert.Alert `json:"alerts"`
}

// SnoozeResponse is the payload for POST /api/v1/alerts/{component}/snooze.
type SnoozeResponse struct {
	Component    string `json:"component"`
	SnoozedUntil string `json:"snoozed_until"` // RFC3339
}

// NotificationsResponse is the payload for GET /api/v1/notifications,
// keyed by component.
type NotificationsResponse map[string]notify.Record

// DeviceRequest is the body of POST /api/v1/devices.
type DeviceRequest struct {
	Kind    string `json:"kind"` // push | sms | email
	Address string `json:"address"`
	Label   string `json:"label,omitempty"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
