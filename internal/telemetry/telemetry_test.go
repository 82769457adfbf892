package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/drivewatch/drivewatch/internal/config"
	"github.com/drivewatch/drivewatch/internal/predict"
)

const sensorMetrics = `
# HELP vehicle_sensor_value Latest sensor reading.
# TYPE vehicle_sensor_value gauge
vehicle_sensor_value{component="engine",sensor="temperature"} 92.5
vehicle_sensor_value{component="engine",sensor="rpm"} 2600
vehicle_sensor_value{component="battery",sensor="voltage"} 12.4
vehicle_sensor_value{sensor="orphan"} 1
# HELP gateway_uptime_seconds Uptime.
# TYPE gateway_uptime_seconds counter
gateway_uptime_seconds 3600
`

func TestPrometheus_Read(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(sensorMetrics))
	}))
	defer srv.Close()

	src := NewPrometheus(srv.URL, config.AuthConfig{Mode: "none"}, time.Second)
	frame, err := src.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if got := frame["engine"]["temperature"]; got != 92.5 {
		t.Errorf("engine.temperature = %v, want 92.5", got)
	}
	if got := frame["engine"]["rpm"]; got != 2600 {
		t.Errorf("engine.rpm = %v, want 2600", got)
	}
	if got := frame["battery"]["voltage"]; got != 12.4 {
		t.Errorf("battery.voltage = %v, want 12.4", got)
	}
	if len(frame) != 2 {
		t.Errorf("components: got %d, want 2 (unlabelled samples ignored)", len(frame))
	}
}

func TestPrometheus_MetricAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("gateway_uptime_seconds 1\n"))
	}))
	defer srv.Close()

	frame, err := NewPrometheus(srv.URL, config.AuthConfig{}, time.Second).Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(frame) != 0 {
		t.Errorf("frame: got %v, want empty", frame)
	}
}

func TestPrometheus_Auth(t *testing.T) {
	tests := []struct {
		name  string
		auth  config.AuthConfig
		check func(r *http.Request) bool
	}{
		{"apikey", config.AuthConfig{Mode: "apikey", Header: "X-Api-Key", KeyEnv: "TEST_TELEMETRY_KEY"},
			func(r *http.Request) bool { return r.Header.Get("X-Api-Key") == "secret" }},
		{"bearer", config.AuthConfig{Mode: "bearer", TokenEnv: "TEST_TELEMETRY_KEY"},
			func(r *http.Request) bool { return r.Header.Get("Authorization") == "Bearer secret" }},
		{"basic", config.AuthConfig{Mode: "basic", Username: "car", PasswordEnv: "TEST_TELEMETRY_KEY"},
			func(r *http.Request) bool { u, p, ok := r.BasicAuth(); return ok && u == "car" && p == "secret" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("TEST_TELEMETRY_KEY", "secret")
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if !tc.check(r) {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
				_, _ = w.Write([]byte(sensorMetrics))
			}))
			defer srv.Close()

			if _, err := NewPrometheus(srv.URL, tc.auth, time.Second).Read(context.Background()); err != nil {
				t.Errorf("Read: %v", err)
			}
		})
	}
}

func TestPrometheus_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := NewPrometheus(srv.URL, config.AuthConfig{}, time.Second).Read(context.Background()); err == nil {
		t.Error("non-200: expected error")
	}
	if _, err := NewPrometheus("http://127.0.0.1:1", config.AuthConfig{}, time.Second).Read(context.Background()); err == nil {
		t.Error("unreachable: expected error")
	}
}

func TestSimulated_Shape(t *testing.T) {
	src := NewSimulated(0.4, 42)
	frame, err := src.Read(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	profiles := predict.Profiles()
	if len(frame) != len(profiles) {
		t.Fatalf("components: got %d, want %d", len(frame), len(profiles))
	}
	for component, sensors := range profiles {
		for sensor := range sensors {
			if _, ok := frame[component][sensor]; !ok {
				t.Errorf("missing %s.%s", component, sensor)
			}
		}
	}
}

func TestSimulated_SeedDeterministic(t *testing.T) {
	a, _ := NewSimulated(0.4, 7).Read(context.Background())
	b, _ := NewSimulated(0.4, 7).Read(context.Background())
	if a["engine"]["rpm"] != b["engine"]["rpm"] {
		t.Error("same seed should produce the same frame")
	}
}

func TestSimulated_FailureRaisesRisk(t *testing.T) {
	reg := predict.DefaultRegistry()
	mean := func(fp float64) float64 {
		src := NewSimulated(fp, 99)
		var sum float64
		const n = 200
		for i := 0; i < n; i++ {
			frame, _ := src.Read(context.Background())
			p, err := reg.Predict("engine", frame["engine"])
			if err != nil {
				t.Fatal(err)
			}
			sum += p
		}
		return sum / n
	}
	healthy, failing := mean(0), mean(0.6)
	if healthy >= 0.2 {
		t.Errorf("mean engine risk with no failures = %.3f, want < 0.2", healthy)
	}
	if failing <= healthy {
		t.Errorf("failure injection did not raise risk: %.3f <= %.3f", failing, healthy)
	}
}

func TestSimulated_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewSimulated(0.4, 1).Read(ctx); err == nil {
		t.Error("expected context error")
	}
}

func TestNew(t *testing.T) {
	cfg := config.Default().Telemetry
	src, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := src.(*Simulated); !ok {
		t.Errorf("default source: got %T", src)
	}
	cfg.Source = config.SourcePrometheus
	cfg.Endpoint = "http://gw/metrics"
	if src, _ = New(cfg); src == nil {
		t.Fatal("prometheus source: nil")
	}
	if _, ok := src.(*Prometheus); !ok {
		t.Errorf("prometheus source: got %T", src)
	}
	cfg.Source = "canbus"
	if _, err := New(cfg); err == nil {
		t.Error("unknown source: expected error")
	}
}
