package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/drivewatch/drivewatch/internal/alert"
	"github.com/drivewatch/drivewatch/internal/notify"
)

// ErrNoRecipients is returned by a channel with no registered devices.
var ErrNoRecipients = errors.New("channel: no registered recipients")

// Publisher is the subset of *nats.Conn used by Push.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes on a NATS connection and flushes after each
// message so a send only succeeds once the server has the message.
type NATSPublisher struct {
	Conn    *nats.Conn
	Timeout time.Duration
}

// ConnectNATS dials url. timeout bounds both the dial and each flush.
func ConnectNATS(url string, timeout time.Duration) (*NATSPublisher, error) {
	if timeout <= 0 {
		timeout = nats.DefaultTimeout
	}
	conn, err := nats.Connect(url, nats.Name("drivewatch"), nats.Timeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("channel: nats connect: %w", err)
	}
	return &NATSPublisher{Conn: conn, Timeout: timeout}, nil
}

// Publish sends data and waits for the server to acknowledge the flush.
func (p *NATSPublisher) Publish(subject string, data []byte) error {
	if err := p.Conn.Publish(subject, data); err != nil {
		return err
	}
	return p.Conn.FlushTimeout(p.Timeout)
}

// Close drains and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.Conn == nil {
		return nil
	}
	err := p.Conn.Drain()
	p.Conn.Close()
	return err
}

// PushMessage is the payload published for the mobile push relay.
type PushMessage struct {
	Tokens []string    `json:"tokens"`
	Title  string      `json:"title"`
	Body   string      `json:"body"`
	Alert  alert.Alert `json:"alert"`
}

// Push publishes notifications for every registered push token in one
// message on Subject.
type Push struct {
	Publisher Publisher
	Subject   string
	Devices   *Directory
}

// Name implements notify.Channel.
func (p *Push) Name() string { return notify.ChannelPush }

// Send implements notify.Channel.
func (p *Push) Send(ctx context.Context, title, body string, a alert.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tokens := p.Devices.Addresses(KindPush)
	if len(tokens) == 0 {
		return ErrNoRecipients
	}
	data, err := json.Marshal(PushMessage{Tokens: tokens, Title: title, Body: body, Alert: a})
	if err != nil {
		return fmt.Errorf("channel: push encode: %w", err)
	}
	if err := p.Publisher.Publish(p.Subject, data); err != nil {
		return fmt.Errorf("channel: push publish: %w", err)
	}
	return nil
}
