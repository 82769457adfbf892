package channel

import (
	"errors"
	"io"
	"log/slog"

	"github.com/drivewatch/drivewatch/internal/config"
	"github.com/drivewatch/drivewatch/internal/notify"
)

// Set is the enabled channels built from configuration plus the resources
// they hold open.
type Set struct {
	Channels []notify.Channel
	closers  []io.Closer
}

// Close releases network connections held by the channels.
func (s *Set) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Build constructs every enabled channel in cfg. A channel that cannot be
// built is left out and its error is returned alongside the rest.
func Build(cfg config.ChannelsConfig, devices *Directory) (*Set, error) {
	set := &Set{}
	var errs []error

	if cfg.Push.Enabled {
		pub, err := ConnectNATS(cfg.Push.NATSURL, cfg.Push.Timeout)
		if err != nil {
			errs = append(errs, err)
		} else {
			set.closers = append(set.closers, pub)
			set.add(&Push{Publisher: pub, Subject: cfg.Push.Subject, Devices: devices}, cfg.Breaker)
		}
	}
	if cfg.SMS.Enabled {
		set.add(NewSMS(cfg.SMS.Endpoint, cfg.SMS.APIKey(), cfg.SMS.FromNumber,
			cfg.SMS.RatePerMinute, cfg.SMS.Timeout, devices), cfg.Breaker)
	}
	if cfg.Email.Enabled {
		set.add(NewEmail(cfg.Email.SMTPAddr, cfg.Email.Username, cfg.Email.Password(),
			cfg.Email.FromAddress, cfg.Email.Timeout, devices, nil), cfg.Breaker)
	}

	names := make([]string, len(set.Channels))
	for i, c := range set.Channels {
		names[i] = c.Name()
	}
	slog.Info("channel: built", "channels", names)
	return set, errors.Join(errs...)
}

func (s *Set) add(ch notify.Channel, b config.BreakerConfig) {
	if b.MaxFailures > 0 {
		ch = WithBreaker(ch, b.MaxFailures, b.OpenTimeout)
	}
	s.Channels = append(s.Channels, ch)
}
