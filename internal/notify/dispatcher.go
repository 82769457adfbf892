package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/drivewatch/drivewatch/internal/alert"
)

// Channel names, in dispatch order.
const (
	ChannelPush  = "push"
	ChannelSMS   = "sms"
	ChannelEmail = "email"
)

var channelOrder = map[string]int{ChannelPush: 0, ChannelSMS: 1, ChannelEmail: 2}

var (
	// ErrNoChannels is returned by Dispatch when no channel is enabled.
	ErrNoChannels = errors.New("notify: no channels enabled")

	// ErrAllChannelsFailed is returned by Dispatch when every enabled channel
	// failed to send.
	ErrAllChannelsFailed = errors.New("notify: all channels failed")
)

// Channel delivers one notification.
type Channel interface {
	Name() string
	Send(ctx context.Context, title, body string, a alert.Alert) error
}

// Result lists per-channel outcomes of one dispatch, in dispatch order.
type Result struct {
	Delivered []string
	Failed    map[string]error
}

// Dispatcher fans an alert out to its channels in the order push, sms,
// email. Channels with other names are tried last in the order given.
type Dispatcher struct {
	channels []Channel
}

// NewDispatcher creates a Dispatcher over the enabled channels.
func NewDispatcher(channels ...Channel) *Dispatcher {
	ordered := append([]Channel(nil), channels...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return rank(ordered[i].Name()) < rank(ordered[j].Name())
	})
	return &Dispatcher{channels: ordered}
}

func rank(name string) int {
	if r, ok := channelOrder[name]; ok {
		return r
	}
	return len(channelOrder)
}

// Channels returns the channel names in dispatch order.
func (d *Dispatcher) Channels() []string {
	out := make([]string, len(d.channels))
	for i, c := range d.channels {
		out[i] = c.Name()
	}
	return out
}

// Dispatch sends a to every channel. A failing channel never stops the rest.
// The dispatch succeeds if at least one channel delivered; otherwise it
// returns ErrAllChannelsFailed, or ErrNoChannels when there is nothing to try.
func (d *Dispatcher) Dispatch(ctx context.Context, a alert.Alert) (Result, error) {
	res := Result{Failed: make(map[string]error)}
	if len(d.channels) == 0 {
		return res, ErrNoChannels
	}

	title := alert.Title(a)
	for _, ch := range d.channels {
		if err := ch.Send(ctx, title, a.Message, a); err != nil {
			res.Failed[ch.Name()] = err
			slog.Error("notify: channel send failed",
				"channel", ch.Name(),
				"component", a.Component,
				"err", err,
			)
			continue
		}
		res.Delivered = append(res.Delivered, ch.Name())
		slog.Debug("notify: channel delivered", "channel", ch.Name(), "component", a.Component)
	}

	if len(res.Delivered) == 0 {
		return res, fmt.Errorf("%w: %s", ErrAllChannelsFailed, a.Component)
	}
	return res, nil
}

// Outcome describes what happened to one alert during Process.
type Outcome struct {
	Alert    alert.Alert
	Decision Decision
	Result   Result
	Err      error
}

// Sent reports whether the alert was delivered on at least one channel.
func (o Outcome) Sent() bool { return o.Decision.Admit && o.Err == nil }

// Notifier runs alerts through a Gate and a Dispatcher.
type Notifier struct {
	Gate       *Gate
	Dispatcher *Dispatcher
}

// Process handles alerts in the given order, which callers pass already
// ranked. Admitted alerts are dispatched and, on success, recorded at now.
// Every alert is handled; a cycle is not cut short part way through.
func (n *Notifier) Process(ctx context.Context, alerts []alert.Alert, now time.Time) []Outcome {
	out := make([]Outcome, 0, len(alerts))
	for _, a := range alerts {
		o := Outcome{Alert: a, Decision: n.Gate.ShouldNotify(a, now)}
		if o.Decision.Admit {
			o.Result, o.Err = n.Dispatcher.Dispatch(ctx, a)
			if o.Err == nil {
				n.Gate.RecordSent(a.Component, a, now)
				slog.Info("notify: alert sent",
					"component", a.Component,
					"level", a.Level,
					"reason", o.Decision.Reason,
					"channels", o.Result.Delivered,
				)
			}
		} else {
			slog.Debug("notify: alert suppressed",
				"component", a.Component,
				"level", a.Level,
				"reason", o.Decision.Reason,
			)
		}
		out = append(out, o)
	}
	return out
}
