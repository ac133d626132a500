// Package notify tells the operator about bookable finds and hand-offs.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/jordan-wright/email"
	"go.uber.org/zap"
)

type Message struct {
	Location string
	Subject  string
	Body     string
}

type Notifier interface {
	Notify(ctx context.Context, m Message) error
}

// Log writes messages to the run log.
type Log struct {
	Logger *zap.Logger
}

func (l Log) Notify(_ context.Context, m Message) error {
	l.Logger.Info(m.Body, zap.String("location", m.Location), zap.String("subject", m.Subject))
	return nil
}

type SMTPConfig struct {
	Server   string
	Port     int
	From     string
	Password string
	To       []string
	// Timeout bounds one delivery. Zero means 30 seconds.
	Timeout time.Duration
}

// Email sends messages over SMTP. Servers that do not offer AUTH are retried
// without credentials. A delivery that outlives ctx or the timeout is
// abandoned so a stalled server never holds up the caller.
type Email struct {
	cfg  SMTPConfig
	send func(m *email.Email, addr string, a smtp.Auth) error
}

func NewEmail(cfg SMTPConfig) *Email {
	return &Email{cfg: cfg, send: (*email.Email).Send}
}

func (e *Email) Notify(ctx context.Context, m Message) error {
	mail := email.NewEmail()
	mail.From = fmt.Sprintf("recsched <%s>", e.cfg.From)
	mail.To = e.cfg.To
	mail.Subject = m.Subject
	mail.Text = []byte(m.Body + "\n")

	timeout := e.cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- e.deliver(mail) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send email: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send email: %w", ctx.Err())
	}
}

func (e *Email) deliver(mail *email.Email) error {
	addr := fmt.Sprintf("%s:%d", e.cfg.Server, e.cfg.Port)
	err := e.send(mail, addr, smtp.PlainAuth("", e.cfg.From, e.cfg.Password, e.cfg.Server))
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = e.send(mail, addr, nil)
	}
	return err
}

// Multi fans a message out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
