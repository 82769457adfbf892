package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/drivewatch/drivewatch/internal/alert"
	"github.com/drivewatch/drivewatch/internal/channel"
	"github.com/drivewatch/drivewatch/internal/config"
	"github.com/drivewatch/drivewatch/internal/notify"
)

const maxBodyBytes = 1 << 20

// Pipeline is the running alert pipeline served by the API.
// *monitor.Monitor implements it.
type Pipeline interface {
	Current() []alert.Alert
	History(window time.Duration) []alert.Alert
	Snooze(component string, d time.Duration) (time.Time, bool)
	Records() map[string]notify.Record
	Channels() []string
	Config() *config.Config
	UpdateConfig(cfg *config.Config) error
	Running() bool
	DispatchRunning() bool
}

// Devices is the registered device directory. *channel.Directory
// implements it.
type Devices interface {
	Register(kind, address, label string) (channel.Device, error)
	Unregister(key string) (bool, error)
	List(kind string) []channel.Device
}

// Options configures the API handler.
type Options struct {
	Pipeline Pipeline
	Devices  Devices

	// ConfigPath, when set, is where PUT /api/v1/config persists the new
	// configuration before applying it.
	ConfigPath string

	// Auth guards every route except /api/v1/health.
	Auth config.AuthConfig
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	opts Options
	mux  *http.ServeMux
}

// New creates a Handler and registers all routes.
func New(opts Options) http.Handler {
	h := &Handler{opts: opts, mux: http.NewServeMux()}

	h.mux.HandleFunc("GET /api/v1/health", h.health)
	h.mux.Handle("GET /api/v1/alerts", h.guard(h.alerts))
	h.mux.Handle("GET /api/v1/alerts/history", h.guard(h.history))
	h.mux.Handle("POST /api/v1/alerts/{component}/snooze", h.guard(h.snooze))
	h.mux.Handle("GET /api/v1/notifications", h.guard(h.notifications))
	h.mux.Handle("GET /api/v1/config", h.guard(h.getConfig))
	h.mux.Handle("PUT /api/v1/config", h.guard(h.putConfig))
	h.mux.Handle("GET /api/v1/devices", h.guard(h.listDevices))
	h.mux.Handle("POST /api/v1/devices", h.guard(h.registerDevice))
	h.mux.Handle("DELETE /api/v1/devices/{token}", h.guard(h.unregisterDevice))

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Lister supplies the current ranked alerts.
type Lister interface {
	Current() []alert.Alert
}

// BuildAlerts returns the current alert payload. It is shared by the REST
// API and the WebSocket hub.
func BuildAlerts(p Lister) AlertsResponse {
	return AlertsResponse{
		Alerts:      nonNil(p.Current()),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health - loop state and alert counts by level.
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	p := h.opts.Pipeline
	current := p.Current()

	resp := HealthResponse{
		Status:          "stopped",
		DispatchRunning: p.DispatchRunning(),
		AlertCount:      len(current),
		ByLevel:         make(map[string]int, len(alert.Levels)),
		Channels:        p.Channels(),
		GeneratedAt:     time.Now().UTC().Format(time.RFC3339),
	}
	if p.Running() {
		resp.Status = "running"
	}
	for _, l := range alert.Levels {
		resp.ByLevel[l.String()] = 0
	}
	for _, a := range current {
		resp.ByLevel[a.Level.String()]++
	}
	if resp.Channels == nil {
		resp.Channels = []string{}
	}
	jsonResp(w, http.StatusOK, resp)
}

// alerts returns GET /api/v1/alerts - current alerts in ranked order.
func (h *Handler) alerts(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, BuildAlerts(h.opts.Pipeline))
}

// history returns GET /api/v1/alerts/history?window=72h.
func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	window := h.opts.Pipeline.Config().Monitor.HistoryWindow
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			jsonErr(w, http.StatusBadRequest, "window must be a positive duration")
			return
		}
		window = d
	}
	jsonResp(w, http.StatusOK, HistoryResponse{
		Window: window.String(),
		Alerts: nonNil(h.opts.Pipeline.History(window)),
	})
}

// snooze handles POST /api/v1/alerts/{component}/snooze?for=30m.
// Without ?for the configured snooze duration applies.
func (h *Handler) snooze(w http.ResponseWriter, r *http.Request) {
	component := r.PathValue("component")
	var d time.Duration
	if v := r.URL.Query().Get("for"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed <= 0 {
			jsonErr(w, http.StatusBadRequest, "for must be a positive duration")
			return
		}
		d = parsed
	}

	until, ok := h.opts.Pipeline.Snooze(component, d)
	if !ok {
		jsonErr(w, http.StatusNotFound, "no current alert for component")
		return
	}
	jsonResp(w, http.StatusOK, SnoozeResponse{
		Component:    component,
		SnoozedUntil: until.UTC().Format(time.RFC3339),
	})
}

// notifications returns GET /api/v1/notifications - last send per component.
func (h *Handler) notifications(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, NotificationsResponse(h.opts.Pipeline.Records()))
}

// getConfig returns the active configuration as YAML, the format of the
// config file.
func (h *Handler) getConfig(w http.ResponseWriter, _ *http.Request) {
	data, err := config.Marshal(h.opts.Pipeline.Config())
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck
}

// putConfig replaces the configuration with the YAML document in the body.
// Fields absent from the document take their defaults.
func (h *Handler) putConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "read body")
		return
	}
	cfg, err := config.Parse(body)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if h.opts.ConfigPath != "" {
		if err := config.Save(h.opts.ConfigPath, cfg); err != nil {
			slog.Error("api: persist config failed", "path", h.opts.ConfigPath, "err", err)
			jsonErr(w, http.StatusInternalServerError, "persist config failed")
			return
		}
	}
	if err := h.opts.Pipeline.UpdateConfig(cfg); err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	slog.Info("api: config updated", "persisted", h.opts.ConfigPath != "")
	h.getConfig(w, r)
}

// listDevices returns GET /api/v1/devices[?kind=push].
func (h *Handler) listDevices(w http.ResponseWriter, r *http.Request) {
	if h.opts.Devices == nil {
		jsonResp(w, http.StatusOK, []channel.Device{})
		return
	}
	jsonResp(w, http.StatusOK, h.opts.Devices.List(r.URL.Query().Get("kind")))
}

// registerDevice handles POST /api/v1/devices.
func (h *Handler) registerDevice(w http.ResponseWriter, r *http.Request) {
	if h.opts.Devices == nil {
		jsonErr(w, http.StatusServiceUnavailable, "device directory not configured")
		return
	}
	var req DeviceRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	dev, err := h.opts.Devices.Register(req.Kind, req.Address, req.Label)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, channel.ErrUnknownKind) || req.Address == "" {
			code = http.StatusBadRequest
		}
		jsonErr(w, code, err.Error())
		return
	}
	jsonResp(w, http.StatusCreated, dev)
}

// unregisterDevice handles DELETE /api/v1/devices/{token}; token is a device
// address or ID.
func (h *Handler) unregisterDevice(w http.ResponseWriter, r *http.Request) {
	if h.opts.Devices == nil {
		jsonErr(w, http.StatusNotFound, "device not found")
		return
	}
	ok, err := h.opts.Devices.Unregister(r.PathValue("token"))
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		jsonErr(w, http.StatusNotFound, "device not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- helpers ----------------------------------------------------------------

// guard enforces the configured auth mode. apikey compares the key header,
// bearer the Authorization token. Other modes, or an unset secret, pass
// through.
func (h *Handler) guard(next http.HandlerFunc) http.Handler {
	auth := h.opts.Auth
	var header, want string
	switch auth.Mode {
	case "apikey":
		header, want = auth.EffectiveHeader(), auth.Key()
	case "bearer":
		header = "Authorization"
		if tok := auth.Token(); tok != "" {
			want = "Bearer " + tok
		}
	}
	if want == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(header)
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			jsonErr(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	})
}

func nonNil(alerts []alert.Alert) []alert.Alert {
	if alerts == nil {
		return []alert.Alert{}
	}
	return alerts
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
