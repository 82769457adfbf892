package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/drivewatch/drivewatch/internal/alert"
)

type fakeChannel struct {
	name string
	err  error
	log  *callLog
}

type callLog struct {
	mu    sync.Mutex
	calls []string
	title string
}

func (l *callLog) add(name, title string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, name)
	l.title = title
}

func (c *fakeChannel) Name() string { return c.name }

func (c *fakeChannel) Send(_ context.Context, title, _ string, _ alert.Alert) error {
	c.log.add(c.name, title)
	return c.err
}

func TestDispatch_FixedOrder(t *testing.T) {
	log := &callLog{}
	d := NewDispatcher(
		&fakeChannel{name: ChannelEmail, log: log},
		&fakeChannel{name: ChannelPush, log: log},
		&fakeChannel{name: ChannelSMS, log: log},
	)

	res, err := d.Dispatch(context.Background(), mkAlert("engine", alert.High))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	want := []string{ChannelPush, ChannelSMS, ChannelEmail}
	for i, name := range want {
		if log.calls[i] != name {
			t.Errorf("call %d: got %s, want %s", i, log.calls[i], name)
		}
	}
	if len(res.Delivered) != 3 {
		t.Errorf("Delivered: got %v", res.Delivered)
	}
	if log.title != "URGENT: Engine Issue Detected" {
		t.Errorf("title: got %q", log.title)
	}
}

func TestDispatch_AnySuccess(t *testing.T) {
	log := &callLog{}
	boom := errors.New("gateway down")
	d := NewDispatcher(
		&fakeChannel{name: ChannelPush, err: boom, log: log},
		&fakeChannel{name: ChannelSMS, log: log},
		&fakeChannel{name: ChannelEmail, err: boom, log: log},
	)

	res, err := d.Dispatch(context.Background(), mkAlert("engine", alert.Medium))
	if err != nil {
		t.Fatalf("one success should be enough, got %v", err)
	}
	if len(log.calls) != 3 {
		t.Errorf("a failing channel must not block the rest: calls %v", log.calls)
	}
	if len(res.Delivered) != 1 || res.Delivered[0] != ChannelSMS {
		t.Errorf("Delivered: got %v", res.Delivered)
	}
	if !errors.Is(res.Failed[ChannelPush], boom) || !errors.Is(res.Failed[ChannelEmail], boom) {
		t.Errorf("Failed: got %v", res.Failed)
	}
}

func TestDispatch_AllFail(t *testing.T) {
	log := &callLog{}
	d := NewDispatcher(
		&fakeChannel{name: ChannelPush, err: errors.New("a"), log: log},
		&fakeChannel{name: ChannelSMS, err: errors.New("b"), log: log},
	)
	_, err := d.Dispatch(context.Background(), mkAlert("engine", alert.Low))
	if !errors.Is(err, ErrAllChannelsFailed) {
		t.Errorf("got %v, want ErrAllChannelsFailed", err)
	}
}

func TestDispatch_NoChannels(t *testing.T) {
	_, err := NewDispatcher().Dispatch(context.Background(), mkAlert("engine", alert.Low))
	if !errors.Is(err, ErrNoChannels) {
		t.Errorf("got %v, want ErrNoChannels", err)
	}
}

func TestDispatcher_UnknownChannelsLast(t *testing.T) {
	log := &callLog{}
	d := NewDispatcher(
		&fakeChannel{name: "pager", log: log},
		&fakeChannel{name: ChannelEmail, log: log},
	)
	got := d.Channels()
	if len(got) != 2 || got[0] != ChannelEmail || got[1] != "pager" {
		t.Errorf("Channels: got %v", got)
	}
}

func TestNotifier_Process(t *testing.T) {
	log := &callLog{}
	n := &Notifier{
		Gate:       NewGate(policy()),
		Dispatcher: NewDispatcher(&fakeChannel{name: ChannelPush, log: log}),
	}
	engine := mkAlert("engine", alert.High)
	brakes := mkAlert("brakes", alert.Medium)

	out := n.Process(context.Background(), []alert.Alert{engine, brakes}, noon)
	if len(out) != 2 || !out[0].Sent() || !out[1].Sent() {
		t.Fatalf("first cycle: got %+v", out)
	}
	if r, ok := n.Gate.Record("engine"); !ok || !r.SentAt.Equal(noon) {
		t.Errorf("engine record: %+v %v", r, ok)
	}

	// Same alerts a minute later are inside their cooldowns.
	out = n.Process(context.Background(), []alert.Alert{engine, brakes}, noon.Add(time.Minute))
	for _, o := range out {
		if o.Sent() || o.Decision.Reason != ReasonCooldown {
			t.Errorf("second cycle %s: got %+v", o.Alert.Component, o.Decision)
		}
	}
	if len(log.calls) != 2 {
		t.Errorf("channel calls: got %d, want 2", len(log.calls))
	}
}

func TestNotifier_NoChannelsLeavesRecordsUntouched(t *testing.T) {
	n := &Notifier{Gate: NewGate(policy()), Dispatcher: NewDispatcher()}
	out := n.Process(context.Background(), []alert.Alert{mkAlert("engine", alert.High)}, noon)

	if len(out) != 1 {
		t.Fatalf("alert should still be processed, got %d outcomes", len(out))
	}
	if !errors.Is(out[0].Err, ErrNoChannels) {
		t.Errorf("Err: got %v", out[0].Err)
	}
	if _, ok := n.Gate.Record("engine"); ok {
		t.Error("no record may be written when nothing was sent")
	}
}

func TestNotifier_FailureLeavesRecordsUntouched(t *testing.T) {
	log := &callLog{}
	n := &Notifier{
		Gate:       NewGate(policy()),
		Dispatcher: NewDispatcher(&fakeChannel{name: ChannelSMS, err: errors.New("x"), log: log}),
	}
	n.Process(context.Background(), []alert.Alert{mkAlert("engine", alert.High)}, noon)
	if _, ok := n.Gate.Record("engine"); ok {
		t.Error("failed send must not be recorded")
	}
}

func TestNotifier_HandlesEveryRankedAlert(t *testing.T) {
	log := &callLog{}
	n := &Notifier{
		Gate:       NewGate(policy()),
		Dispatcher: NewDispatcher(&fakeChannel{name: ChannelPush, log: log}),
	}
	alerts := []alert.Alert{mkAlert("engine", alert.High), mkAlert("battery", alert.High)}
	out := n.Process(context.Background(), alerts, noon)
	if len(out) != 2 {
		t.Fatalf("outcomes: got %d, want 2", len(out))
	}
	for _, c := range []string{"engine", "battery"} {
		if _, ok := n.Gate.Record(c); !ok {
			t.Errorf("%s: expected a record", c)
		}
	}
	if len(log.calls) != 2 {
		t.Errorf("sends: got %v, want 2", log.calls)
	}
}
