package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/drivewatch/drivewatch/internal/alert"
	"github.com/drivewatch/drivewatch/internal/api"
	"github.com/drivewatch/drivewatch/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSetupLogging(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "", "warn", "error"} {
		if err := setupLogging(lvl); err != nil {
			t.Errorf("setupLogging(%q): %v", lvl, err)
		}
	}
	if err := setupLogging("loud"); err == nil {
		t.Error("setupLogging(loud): expected error")
	}
}

func TestConfigInitValidateShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drivewatch.yaml")

	out, err := execute(t, "--config", path, "config", "init")
	if err != nil {
		t.Fatalf("init: %v (%s)", err, out)
	}
	if _, err := config.Load(path); err != nil {
		t.Fatalf("written config does not load: %v", err)
	}

	if _, err := execute(t, "--config", path, "config", "init"); err == nil {
		t.Error("init over existing file without --force: expected error")
	}
	if _, err := execute(t, "--config", path, "config", "init", "--force"); err != nil {
		t.Errorf("init --force: %v", err)
	}

	out, err = execute(t, "--config", path, "config", "validate")
	if err != nil || !strings.Contains(out, "ok") {
		t.Errorf("validate: err %v out %q", err, out)
	}

	out, err = execute(t, "--config", path, "config", "show")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	cfg, err := config.Parse([]byte(out))
	if err != nil {
		t.Fatalf("show output does not parse: %v", err)
	}
	if cfg.Thresholds != alert.DefaultThresholds {
		t.Errorf("show thresholds: got %+v", cfg.Thresholds)
	}
}

func TestConfigValidate_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drivewatch.yaml")
	bad := "thresholds:\n  high: 0.2\n  medium: 0.4\n  low: 0.7\n"
	if err := os.WriteFile(path, []byte(bad), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "--config", path, "config", "validate"); err == nil {
		t.Error("validate: expected error for inverted thresholds")
	}
}

func TestDevicesCommands(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "drivewatch.yaml")
	cfg := config.Default()
	cfg.DevicesFile = filepath.Join(dir, "devices.yaml")
	if err := config.Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "--config", path, "devices", "register", "sms", "+15550100", "--label", "driver")
	if err != nil || !strings.Contains(out, "registered sms +15550100") {
		t.Fatalf("register: err %v out %q", err, out)
	}

	out, err = execute(t, "--config", path, "devices", "list", "--kind", "sms")
	if err != nil || !strings.Contains(out, "+15550100") || !strings.Contains(out, "driver") {
		t.Fatalf("list: err %v out %q", err, out)
	}

	if _, err := execute(t, "--config", path, "devices", "register", "fax", "123"); err == nil {
		t.Error("register fax: expected error")
	}

	if _, err := execute(t, "--config", path, "devices", "unregister", "+15550100"); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if _, err := execute(t, "--config", path, "devices", "unregister", "+15550100"); err == nil {
		t.Error("second unregister: expected error")
	}
	out, _ = execute(t, "--config", path, "devices", "list")
	if !strings.Contains(out, "no devices") {
		t.Errorf("list after unregister: %q", out)
	}
}

// fakeServer serves canned API responses and records the requests it saw.
func fakeServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var seen []string
	until := time.Date(2026, 1, 1, 13, 0, 0, 0, time.UTC)
	alerts := []alert.Alert{{
		Component: "engine", Probability: 0.82, Level: alert.High, Priority: 5,
		Timestamp: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), SnoozedUntil: &until,
	}}

	mux := http.NewServeMux()
	write := func(w http.ResponseWriter, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v) //nolint:errcheck
	}
	mux.HandleFunc("GET /api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		write(w, api.HealthResponse{Status: "running", DispatchRunning: true, Channels: []string{"push", "sms"}})
	})
	mux.HandleFunc("GET /api/v1/alerts", func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("x-api-key"))
		write(w, api.AlertsResponse{Alerts: alerts})
	})
	mux.HandleFunc("GET /api/v1/alerts/history", func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.URL.RawQuery)
		write(w, api.HistoryResponse{Window: "24h0m0s", Alerts: alerts})
	})
	mux.HandleFunc("POST /api/v1/alerts/{component}/snooze", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("component") != "engine" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"no current alert for component"}`)) //nolint:errcheck
			return
		}
		seen = append(seen, r.URL.RawQuery)
		write(w, api.SnoozeResponse{Component: "engine", SnoozedUntil: until.Format(time.RFC3339)})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestStatus(t *testing.T) {
	srv, seen := fakeServer(t)
	out, err := execute(t, "--server", srv.URL, "--api-key", "k1", "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"monitor running", "push,sms", "engine", "high", "0.82"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
	if len(*seen) != 1 || (*seen)[0] != "k1" {
		t.Errorf("api key header: got %v", *seen)
	}
}

func TestSnooze(t *testing.T) {
	srv, seen := fakeServer(t)
	out, err := execute(t, "--server", srv.URL, "snooze", "engine", "--for", "30m")
	if err != nil {
		t.Fatalf("snooze: %v", err)
	}
	if !strings.Contains(out, "engine snoozed until 2026-01-01T13:00:00Z") {
		t.Errorf("output: %q", out)
	}
	if len(*seen) != 1 || (*seen)[0] != "for=30m0s" {
		t.Errorf("query: got %v", *seen)
	}
}

func TestSnooze_NotFound(t *testing.T) {
	srv, _ := fakeServer(t)
	_, err := execute(t, "--server", srv.URL, "snooze", "brakes")
	if err == nil || !strings.Contains(err.Error(), "no current alert") {
		t.Errorf("err: got %v", err)
	}
}

func TestHistory(t *testing.T) {
	srv, seen := fakeServer(t)
	out, err := execute(t, "--server", srv.URL, "history", "--window", "24h")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "window 24h0m0s") || !strings.Contains(out, "engine") {
		t.Errorf("output: %q", out)
	}
	if len(*seen) != 1 || (*seen)[0] != "window=24h0m0s" {
		t.Errorf("query: got %v", *seen)
	}
}

func TestPrintAlerts_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := printAlerts(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "no alerts" {
		t.Errorf("got %q", buf.String())
	}
}
