package channel

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/drivewatch/drivewatch/internal/alert"
	"github.com/drivewatch/drivewatch/internal/notify"
)

const defaultEmailTimeout = 10 * time.Second

// SubmitFunc submits one message to an SMTP relay. It must return once ctx
// is done.
type SubmitFunc func(ctx context.Context, addr string, a sasl.Client, from string, to []string, r io.Reader) error

// Email sends one message to all registered addresses through an SMTP relay.
type Email struct {
	Addr     string
	Username string
	Password string
	From     string
	Devices  *Directory

	// Timeout bounds a whole send: dial, STARTTLS, auth and submission.
	Timeout time.Duration

	submit SubmitFunc
	now    func() time.Time
}

// NewEmail creates an Email channel. A nil submit dials the relay with
// STARTTLS. timeout <= 0 uses 10s.
func NewEmail(addr, username, password, from string, timeout time.Duration, devices *Directory, submit SubmitFunc) *Email {
	if timeout <= 0 {
		timeout = defaultEmailTimeout
	}
	e := &Email{
		Addr:     addr,
		Username: username,
		Password: password,
		From:     from,
		Devices:  devices,
		Timeout:  timeout,
		submit:   submit,
		now:      time.Now,
	}
	if e.submit == nil {
		e.submit = e.sendMail
	}
	return e
}

// Name implements notify.Channel.
func (e *Email) Name() string { return notify.ChannelEmail }

// Send implements notify.Channel.
func (e *Email) Send(ctx context.Context, title, body string, a alert.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to := e.Devices.Addresses(KindEmail)
	if len(to) == 0 {
		return ErrNoRecipients
	}

	var auth sasl.Client
	if e.Username != "" {
		auth = sasl.NewPlainClient("", e.Username, e.Password)
	}
	msg := e.compose(to, title, body, a)

	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()
	if err := e.submit(ctx, e.Addr, auth, e.From, to, strings.NewReader(msg)); err != nil {
		return fmt.Errorf("channel: smtp send: %w", err)
	}
	return nil
}

// sendMail is smtp.SendMail with every network step bounded by ctx.
func (e *Email) sendMail(ctx context.Context, addr string, auth sasl.Client, from string, to []string, r io.Reader) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { raw.Close() })
	defer stop()

	deadline, _ := ctx.Deadline()
	conn := deadlineConn{Conn: raw, limit: deadline}
	conn.SetDeadline(deadline) //nolint:errcheck

	c, err := smtp.NewClientStartTLS(conn, &tls.Config{ServerName: host})
	if err != nil {
		raw.Close()
		return ctxErr(ctx, err)
	}
	defer c.Close()
	c.CommandTimeout = e.Timeout
	c.SubmissionTimeout = e.Timeout

	if auth != nil {
		if ok, _ := c.Extension("AUTH"); !ok {
			return errors.New("smtp: server doesn't support AUTH")
		}
		if err := c.Auth(auth); err != nil {
			return ctxErr(ctx, err)
		}
	}
	if err := c.SendMail(from, to, r); err != nil {
		return ctxErr(ctx, err)
	}
	return ctxErr(ctx, c.Quit())
}

// ctxErr reports the context error when ctx ended the exchange.
func ctxErr(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	return err
}

// deadlineConn caps every deadline the SMTP client sets at limit, so no
// single command can outlive the send.
type deadlineConn struct {
	net.Conn
	limit time.Time
}

func (c deadlineConn) clamp(t time.Time) time.Time {
	if c.limit.IsZero() {
		return t
	}
	if t.IsZero() || t.After(c.limit) {
		return c.limit
	}
	return t
}

func (c deadlineConn) SetDeadline(t time.Time) error      { return c.Conn.SetDeadline(c.clamp(t)) }
func (c deadlineConn) SetReadDeadline(t time.Time) error  { return c.Conn.SetReadDeadline(c.clamp(t)) }
func (c deadlineConn) SetWriteDeadline(t time.Time) error { return c.Conn.SetWriteDeadline(c.clamp(t)) }

func (e *Email) compose(to []string, title, body string, a alert.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", title)
	fmt.Fprintf(&b, "Date: %s\r\n", e.now().Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: <%s@drivewatch>\r\n", a.ID)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return b.String()
}
