package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/drivewatch/drivewatch/internal/alert"
	"github.com/drivewatch/drivewatch/internal/notify"
)

// SMS posts one JSON message per registered phone number to an HTTP gateway.
type SMS struct {
	Endpoint   string
	APIKey     string
	FromNumber string
	Devices    *Directory

	client  *http.Client
	limiter *rate.Limiter
}

// NewSMS creates an SMS channel. ratePerMinute <= 0 disables rate limiting.
func NewSMS(endpoint, apiKey, from string, ratePerMinute int, timeout time.Duration, devices *Directory) *SMS {
	s := &SMS{
		Endpoint:   endpoint,
		APIKey:     apiKey,
		FromNumber: from,
		Devices:    devices,
		client:     &http.Client{Timeout: timeout},
	}
	if ratePerMinute > 0 {
		s.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(ratePerMinute)), ratePerMinute)
	}
	return s
}

type smsRequest struct {
	From string `json:"from,omitempty"`
	To   string `json:"to"`
	Text string `json:"text"`
}

// Name implements notify.Channel.
func (s *SMS) Name() string { return notify.ChannelSMS }

// Send implements notify.Channel. It fails if any recipient could not be
// reached.
func (s *SMS) Send(ctx context.Context, title, body string, _ alert.Alert) error {
	numbers := s.Devices.Addresses(KindSMS)
	if len(numbers) == 0 {
		return ErrNoRecipients
	}
	var errs []error
	for _, to := range numbers {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("channel: sms rate limit: %w", err)
			}
		}
		if err := s.post(ctx, smsRequest{From: s.FromNumber, To: to, Text: title + "\n" + body}); err != nil {
			errs = append(errs, fmt.Errorf("sms to %s: %w", to, err))
		}
	}
	return errors.Join(errs...)
}

func (s *SMS) post(ctx context.Context, msg smsRequest) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("gateway returned HTTP %d", resp.StatusCode)
	}
	return nil
}
