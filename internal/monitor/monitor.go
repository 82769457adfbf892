package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drivewatch/drivewatch/internal/alert"
	"github.com/drivewatch/drivewatch/internal/config"
	"github.com/drivewatch/drivewatch/internal/notify"
	"github.com/drivewatch/drivewatch/internal/predict"
	"github.com/drivewatch/drivewatch/internal/state"
	"github.com/drivewatch/drivewatch/internal/telemetry"
)

// Loop names.
const (
	LoopEvaluation = "evaluation"
	LoopDispatch   = "dispatch"
)

// Options configures a Monitor.
type Options struct {
	Config     *config.Config
	Source     telemetry.Source
	Predictors *predict.Registry
	Channels   []notify.Channel

	// Registerer receives the monitor metrics. Nil uses a private registry.
	Registerer prometheus.Registerer

	// Now defaults to time.Now.
	Now func() time.Time
}

// Monitor owns the alert state, the notification gate and the two loops:
// evaluation (telemetry → predictors → classified alerts → state) and
// dispatch (ranked current alerts → gate → channels).
//
// Monitor is safe for concurrent use.
type Monitor struct {
	source     telemetry.Source
	predictors *predict.Registry
	store      *state.Store
	notifier   *notify.Notifier
	metrics    *Metrics
	now        func() time.Time

	eval     *Periodic
	dispatch *Periodic

	mu      sync.RWMutex
	cfg     *config.Config
	baseCtx context.Context
	warned  map[string]bool
}

// New creates a stopped Monitor.
func New(opts Options) (*Monitor, error) {
	if opts.Config == nil {
		return nil, errors.New("monitor: config is required")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Source == nil {
		return nil, errors.New("monitor: telemetry source is required")
	}
	if opts.Predictors == nil {
		opts.Predictors = predict.DefaultRegistry()
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.NewRegistry()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	cfg := opts.Config.Clone()
	m := &Monitor{
		source:     opts.Source,
		predictors: opts.Predictors,
		store:      state.New(opts.Now),
		notifier: &notify.Notifier{
			Gate:       notify.NewGate(cfg.Notifications),
			Dispatcher: notify.NewDispatcher(opts.Channels...),
		},
		metrics: NewMetrics(opts.Registerer),
		now:     opts.Now,
		cfg:     cfg,
		warned:  make(map[string]bool),
	}
	m.eval = NewPeriodic(LoopEvaluation, cfg.Monitor.EvaluationInterval, m.Evaluate, m.metrics.observeCycle)
	m.dispatch = NewPeriodic(LoopDispatch, cfg.Monitor.DispatchInterval, m.Dispatch, m.metrics.observeCycle)
	return m, nil
}

// Start launches the evaluation loop and, when mobile alerts are enabled,
// the dispatch loop. It returns false if the monitor is already running.
func (m *Monitor) Start(ctx context.Context) bool {
	m.mu.Lock()
	m.baseCtx = ctx
	enabled := m.cfg.Notifications.EnableMobileAlerts
	m.mu.Unlock()

	if !m.eval.Start(ctx) {
		return false
	}
	if enabled {
		m.dispatch.Start(ctx)
	} else {
		slog.Info("monitor: mobile alerts disabled, dispatch loop not started")
	}
	return true
}

// Stop stops both loops, waiting for in-flight cycles to finish.
func (m *Monitor) Stop() {
	m.eval.Stop()
	m.dispatch.Stop()
}

// Running reports whether the evaluation loop is running.
func (m *Monitor) Running() bool { return m.eval.Running() }

// DispatchRunning reports whether the dispatch loop is running.
func (m *Monitor) DispatchRunning() bool { return m.dispatch.Running() }

// Evaluate runs one evaluation cycle: read telemetry, predict and classify
// every component, and apply the results to the state store in one step.
func (m *Monitor) Evaluate(ctx context.Context) error {
	frame, err := m.source.Read(ctx)
	if err != nil {
		return fmt.Errorf("monitor: read telemetry: %w", err)
	}

	cfg := m.Config()
	now := m.now()
	results := make(map[string]*alert.Alert, len(frame))
	for component, features := range frame {
		p, err := m.predictors.Predict(component, features)
		if errors.Is(err, predict.ErrNoPredictor) {
			m.warnOnce(component)
			continue
		}
		if err != nil {
			m.metrics.PredictErrors.WithLabelValues(component).Inc()
			slog.Error("monitor: prediction failed", "component", component, "err", err)
			// No alert for this component this cycle.
			results[component] = nil
			continue
		}

		a, ok := alert.New(component, p, cfg.PriorityFor(component), cfg.Thresholds, now)
		if !ok {
			results[component] = nil
			continue
		}
		results[component] = &a
		m.metrics.AlertsGenerated.WithLabelValues(component, a.Level.String()).Inc()
		slog.Debug("monitor: alert generated",
			"component", component,
			"level", a.Level,
			"probability", fmt.Sprintf("%.2f", p),
		)
	}
	m.store.ApplyCycle(results)

	current := m.store.Current()
	m.metrics.setActive(current)
	if cfg.Notifications.DisplayAlerts {
		display(current)
	}
	return nil
}

// Dispatch runs one dispatch cycle over the ranked current alerts.
func (m *Monitor) Dispatch(ctx context.Context) error {
	if !m.Config().Notifications.EnableMobileAlerts {
		return nil
	}
	out := m.notifier.Process(ctx, m.store.Current(), m.now())
	m.metrics.observeOutcomes(out)
	return nil
}

// Current returns the current alerts in ranked order.
func (m *Monitor) Current() []alert.Alert { return m.store.Current() }

// History returns alerts recorded within window. window <= 0 uses the
// configured history window.
func (m *Monitor) History(window time.Duration) []alert.Alert {
	if window <= 0 {
		window = m.Config().Monitor.HistoryWindow
	}
	return m.store.History(window)
}

// Snooze suppresses notifications for component's current alert for d.
// d <= 0 uses the configured snooze duration. It returns false when the
// component has no current alert.
func (m *Monitor) Snooze(component string, d time.Duration) (time.Time, bool) {
	if d <= 0 {
		d = m.Config().Notifications.SnoozeDuration
	}
	until, ok := m.store.Snooze(component, d)
	if ok {
		slog.Info("monitor: alert snoozed", "component", component, "until", until)
	}
	return until, ok
}

// Records returns the last notification per component.
func (m *Monitor) Records() map[string]notify.Record { return m.notifier.Gate.Records() }

// Channels returns the enabled channel names in dispatch order.
func (m *Monitor) Channels() []string { return m.notifier.Dispatcher.Channels() }

// Config returns a copy of the active configuration.
func (m *Monitor) Config() *config.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.Clone()
}

// UpdateConfig validates cfg and swaps it in. Thresholds, priorities and
// notification policy apply from the next cycle; loop intervals apply after
// the current cycle; toggling mobile alerts starts or stops the dispatch
// loop. Channel settings are read only at startup.
func (m *Monitor) UpdateConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	next := cfg.Clone()

	m.mu.Lock()
	m.cfg = next
	ctx := m.baseCtx
	m.mu.Unlock()

	m.notifier.Gate.SetPolicy(next.Notifications)
	m.eval.SetInterval(next.Monitor.EvaluationInterval)
	m.dispatch.SetInterval(next.Monitor.DispatchInterval)

	if m.eval.Running() && ctx != nil {
		switch {
		case next.Notifications.EnableMobileAlerts && !m.dispatch.Running():
			m.dispatch.Start(ctx)
		case !next.Notifications.EnableMobileAlerts && m.dispatch.Running():
			m.dispatch.Stop()
		}
	}
	slog.Info("monitor: config updated")
	return nil
}

func (m *Monitor) warnOnce(component string) {
	m.mu.Lock()
	seen := m.warned[component]
	m.warned[component] = true
	m.mu.Unlock()
	if !seen {
		slog.Warn("monitor: no predictor for component, skipping", "component", component)
	}
}

// display logs the ranked alert list shown on the driver display.
func display(current []alert.Alert) {
	if len(current) == 0 {
		slog.Info("monitor: display", "alerts", 0)
		return
	}
	for i, a := range current {
		slog.Info("monitor: display",
			"rank", i+1,
			"component", a.Component,
			"level", a.Level,
			"priority", a.Priority,
			"snoozed", a.SnoozedUntil != nil,
			"message", a.Message,
		)
	}
}
