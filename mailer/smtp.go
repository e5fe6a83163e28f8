package mailer

import (
	"context"
	"errors"

	"gopkg.in/gomail.v2"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (m *SMTPMailer) build(msg Message) (*gomail.Message, error) {
	if msg.To == "" {
		return nil, errors.New("missing recipient")
	}

	gm := gomail.NewMessage()
	gm.SetHeader("From", m.from)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	if msg.TextBody != "" {
		gm.SetBody("text/plain", msg.TextBody)
		gm.AddAlternative("text/html", msg.HTMLBody)
	} else {
		gm.SetBody("text/html", msg.HTMLBody)
	}
	return gm, nil
}

// Send dials the SMTP server and delivers msg. gomail has no context
// support, so the send runs in its own goroutine and Send returns early
// when ctx is done.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	gm, err := m.build(msg)
	if err != nil {
		return &DeliveryError{Transport: "smtp", Err: err}
	}

	done := make(chan error, 1)
	go func() {
		done <- m.dialer.DialAndSend(gm)
	}()

	select {
	case err := <-done:
		if err != nil {
			return &DeliveryError{Transport: "smtp", Retryable: true, Err: err}
		}
		return nil
	case <-ctx.Done():
		return &DeliveryError{Transport: "smtp", Retryable: true, Err: ctx.Err()}
	}
}
