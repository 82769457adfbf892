package notify

import (
	"testing"
	"time"

	"github.com/drivewatch/drivewatch/internal/alert"
	"github.com/drivewatch/drivewatch/internal/config"
)

// noon is outside the default 22→7 quiet hours.
var noon = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func policy() config.NotificationConfig {
	p := config.Default().Notifications
	p.QuietHours.Location = "UTC"
	return p
}

func mkAlert(component string, level alert.Level) alert.Alert {
	p := map[alert.Level]float64{alert.High: 0.9, alert.Medium: 0.5, alert.Low: 0.3}[level]
	a, _ := alert.New(component, p, 5, alert.DefaultThresholds, noon)
	return a
}

func TestInQuietHours(t *testing.T) {
	wrap := config.QuietHours{Start: 22, End: 7}
	day := config.QuietHours{Start: 9, End: 17}
	empty := config.QuietHours{Start: 5, End: 5}

	tests := []struct {
		name string
		q    config.QuietHours
		hour int
		want bool
	}{
		{"wrap 23", wrap, 23, true},
		{"wrap 3", wrap, 3, true},
		{"wrap 10", wrap, 10, false},
		{"wrap start inclusive", wrap, 22, true},
		{"wrap end exclusive", wrap, 7, false},
		{"wrap midnight", wrap, 0, true},
		{"day inside", day, 12, true},
		{"day before", day, 8, false},
		{"day end exclusive", day, 17, false},
		{"empty window", empty, 5, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			now := time.Date(2026, 3, 1, tc.hour, 30, 0, 0, time.UTC)
			if got := InQuietHours(tc.q, now); got != tc.want {
				t.Errorf("InQuietHours(%d:30): got %v, want %v", tc.hour, got, tc.want)
			}
		})
	}
}

func TestShouldNotify_Bootstrap(t *testing.T) {
	g := NewGate(policy())
	d := g.ShouldNotify(mkAlert("engine", alert.Low), noon)
	if !d.Admit || d.Reason != ReasonBootstrap {
		t.Errorf("got %+v, want admitted bootstrap", d)
	}
}

func TestShouldNotify_MediumCooldown(t *testing.T) {
	g := NewGate(policy())
	a := mkAlert("brakes", alert.Medium)
	g.RecordSent("brakes", a, noon)

	if d := g.ShouldNotify(a, noon.Add(60*time.Minute)); d.Admit || d.Reason != ReasonCooldown {
		t.Errorf("+60m: got %+v, want suppressed by cooldown", d)
	}
	if d := g.ShouldNotify(a, noon.Add(121*time.Minute)); !d.Admit || d.Reason != ReasonCooldownElapsed {
		t.Errorf("+121m: got %+v, want admitted", d)
	}
	// The boundary itself is admitted.
	if d := g.ShouldNotify(a, noon.Add(120*time.Minute)); !d.Admit {
		t.Errorf("+120m: got %+v, want admitted", d)
	}
}

func TestShouldNotify_Escalation(t *testing.T) {
	g := NewGate(policy())
	g.RecordSent("engine", mkAlert("engine", alert.Low), noon)

	d := g.ShouldNotify(mkAlert("engine", alert.High), noon)
	if !d.Admit || d.Reason != ReasonEscalation {
		t.Errorf("got %+v, want admitted escalation", d)
	}
}

func TestShouldNotify_DowngradeUsesNewLevelCooldown(t *testing.T) {
	g := NewGate(policy())
	g.RecordSent("engine", mkAlert("engine", alert.High), noon)

	low := mkAlert("engine", alert.Low)
	// High cooldown (30m) has passed but the Low cooldown (360m) has not.
	if d := g.ShouldNotify(low, noon.Add(45*time.Minute)); d.Admit {
		t.Errorf("+45m: got %+v, want suppressed", d)
	}
	if d := g.ShouldNotify(low, noon.Add(6*time.Hour)); !d.Admit {
		t.Errorf("+6h: got %+v, want admitted", d)
	}
}

func TestShouldNotify_QuietHours(t *testing.T) {
	night := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)

	t.Run("medium suppressed even without record", func(t *testing.T) {
		g := NewGate(policy())
		d := g.ShouldNotify(mkAlert("brakes", alert.Medium), night)
		if d.Admit || d.Reason != ReasonQuietHours {
			t.Errorf("got %+v, want suppressed by quiet hours", d)
		}
	})

	t.Run("high overrides", func(t *testing.T) {
		g := NewGate(policy())
		d := g.ShouldNotify(mkAlert("brakes", alert.High), night)
		if !d.Admit {
			t.Errorf("got %+v, want admitted", d)
		}
	})

	t.Run("high without override", func(t *testing.T) {
		p := policy()
		p.QuietHours.OverrideForHigh = false
		g := NewGate(p)
		if d := g.ShouldNotify(mkAlert("brakes", alert.High), night); d.Admit {
			t.Errorf("got %+v, want suppressed", d)
		}
	})

	t.Run("high override still subject to cooldown", func(t *testing.T) {
		g := NewGate(policy())
		a := mkAlert("brakes", alert.High)
		g.RecordSent("brakes", a, night.Add(-10*time.Minute))
		if d := g.ShouldNotify(a, night); d.Admit || d.Reason != ReasonCooldown {
			t.Errorf("got %+v, want cooldown", d)
		}
	})

	t.Run("not respected", func(t *testing.T) {
		p := policy()
		p.QuietHours.Respect = false
		g := NewGate(p)
		if d := g.ShouldNotify(mkAlert("brakes", alert.Low), night); !d.Admit {
			t.Errorf("got %+v, want admitted", d)
		}
	})

	t.Run("evaluated in configured zone", func(t *testing.T) {
		p := policy()
		p.QuietHours.Location = "Asia/Tokyo" // UTC+9, no DST
		g := NewGate(p)
		// 14:00 UTC is 23:00 in Tokyo.
		at := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
		if d := g.ShouldNotify(mkAlert("brakes", alert.Low), at); d.Reason != ReasonQuietHours {
			t.Errorf("got %+v, want quiet hours", d)
		}
	})
}

func TestShouldNotify_Snoozed(t *testing.T) {
	g := NewGate(policy())
	a := mkAlert("engine", alert.High)
	until := noon.Add(time.Hour)
	a.SnoozedUntil = &until

	if d := g.ShouldNotify(a, noon); d.Admit || d.Reason != ReasonSnoozed {
		t.Errorf("got %+v, want snoozed", d)
	}
	if d := g.ShouldNotify(a, until); !d.Admit {
		t.Errorf("after snooze expiry: got %+v, want admitted", d)
	}
}

func TestRecordSent_Overwrites(t *testing.T) {
	g := NewGate(policy())
	g.RecordSent("engine", mkAlert("engine", alert.Low), noon)
	h := mkAlert("engine", alert.High)
	g.RecordSent("engine", h, noon.Add(time.Minute))

	r, ok := g.Record("engine")
	if !ok {
		t.Fatal("Record: missing")
	}
	if r.Level != alert.High || !r.SentAt.Equal(noon.Add(time.Minute)) || r.Message != h.Message {
		t.Errorf("Record: got %+v", r)
	}
	if n := len(g.Records()); n != 1 {
		t.Errorf("Records: got %d, want 1", n)
	}
}

func TestSetPolicy_KeepsRecords(t *testing.T) {
	g := NewGate(policy())
	a := mkAlert("engine", alert.Medium)
	g.RecordSent("engine", a, noon)

	p := policy()
	p.Cooldowns.Medium = 10 * time.Minute
	g.SetPolicy(p)

	if _, ok := g.Record("engine"); !ok {
		t.Fatal("SetPolicy dropped records")
	}
	if d := g.ShouldNotify(a, noon.Add(11*time.Minute)); !d.Admit {
		t.Errorf("new cooldown not applied: %+v", d)
	}
}
