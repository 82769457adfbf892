package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/drivewatch/drivewatch/internal/config"
)

// SensorMetric is the gauge scraped by Prometheus. Each sample carries the
// component and sensor as labels:
//
//	vehicle_sensor_value{component="engine",sensor="rpm"} 2512
const SensorMetric = "vehicle_sensor_value"

const defaultScrapeTimeout = 10 * time.Second

// Prometheus reads telemetry from a Prometheus text exposition endpoint,
// typically a vehicle gateway's /metrics.
type Prometheus struct {
	endpoint string
	client   *http.Client
}

// NewPrometheus creates a scraping Source for endpoint.
func NewPrometheus(endpoint string, auth config.AuthConfig, timeout time.Duration) *Prometheus {
	if timeout <= 0 {
		timeout = defaultScrapeTimeout
	}
	return &Prometheus{
		endpoint: endpoint,
		client: &http.Client{
			Transport: &authRoundTripper{base: http.DefaultTransport, auth: auth},
			Timeout:   timeout,
		},
	}
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.EffectiveHeader(), t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.Password())
	}
	return t.base.RoundTrip(req)
}

// Read implements Source. Samples missing either label are ignored.
func (p *Prometheus) Read(ctx context.Context) (Frame, error) {
	mfs, err := fetchMetrics(ctx, p.client, p.endpoint)
	if err != nil {
		slog.Warn("telemetry: prometheus fetch failed", "endpoint", p.endpoint, "err", err)
		return nil, fmt.Errorf("telemetry: scrape %s: %w", p.endpoint, err)
	}
	return frameFromFamily(mfs[SensorMetric]), nil
}

// fetchMetrics performs an HTTP GET to url and returns parsed metric families.
func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a Prometheus text exposition from r. A partial result
// with a parse warning is still returned.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

func frameFromFamily(mf *dto.MetricFamily) Frame {
	frame := make(Frame)
	if mf == nil {
		return frame
	}
	for _, m := range mf.GetMetric() {
		var component, sensor string
		for _, lp := range m.GetLabel() {
			switch lp.GetName() {
			case "component":
				component = lp.GetValue()
			case "sensor":
				sensor = lp.GetValue()
			}
		}
		if component == "" || sensor == "" {
			continue
		}
		v, ok := sampleValue(m)
		if !ok {
			continue
		}
		if frame[component] == nil {
			frame[component] = make(map[string]float64)
		}
		frame[component][sensor] = v
	}
	return frame
}

func sampleValue(m *dto.Metric) (float64, bool) {
	switch {
	case m.Gauge != nil:
		return m.Gauge.GetValue(), true
	case m.Untyped != nil:
		return m.Untyped.GetValue(), true
	case m.Counter != nil:
		return m.Counter.GetValue(), true
	default:
		return 0, false
	}
}
