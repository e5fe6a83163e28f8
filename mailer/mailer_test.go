package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMailer struct {
	SendFunc func(ctx context.Context, msg Message) error
	sent     []Message
}

func (f *fakeMailer) Send(ctx context.Context, msg Message) error {
	if f.SendFunc != nil {
		if err := f.SendFunc(ctx, msg); err != nil {
			return err
		}
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeChannel struct {
	declared   []string
	published  []amqp.Publishing
	publishErr error
	closed     bool
}

func (f *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	f.declared = append(f.declared, name)
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, _ string, _, _ bool, msg amqp.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func TestResetLink(t *testing.T) {
	assert.Equal(t, "https://campus.example/reset-password/abc123",
		ResetLink("https://campus.example/", "abc123"))
}

func TestPasswordResetMessage(t *testing.T) {
	link := ResetLink("https://campus.example", "deadbeef")
	msg := PasswordResetMessage("alice@example.com", "Alice <Admin>", link, time.Hour)

	assert.Equal(t, "alice@example.com", msg.To)
	assert.Contains(t, msg.TextBody, link)
	assert.Contains(t, msg.TextBody, "60 minutes")
	assert.Contains(t, msg.HTMLBody, "Alice &lt;Admin&gt;")
	assert.Contains(t, msg.HTMLBody, "/reset-password/deadbeef")
}

func TestDeliveryError(t *testing.T) {
	cause := errors.New("connection refused")
	err := error(&DeliveryError{Transport: "smtp", Retryable: true, Err: cause})

	var de *DeliveryError
	require.True(t, errors.As(err, &de))
	assert.True(t, de.Retryable)
	assert.ErrorIs(t, err, cause)
	assert.True(t, strings.HasPrefix(err.Error(), "smtp delivery failed"))
}

func TestSMTPMailer_RejectsMissingRecipient(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "localhost", Port: 25, From: "no-reply@campus.example"})

	err := m.Send(context.Background(), Message{Subject: "x"})

	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.False(t, de.Retryable)
}

func TestSMTPMailer_AcceptsSenderAsRecipient(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "localhost", Port: 25, From: "admin@campusmart.edu"})

	gm, err := m.build(Message{To: "admin@campusmart.edu", Subject: "Reset", TextBody: "link", HTMLBody: "<p>link</p>"})
	require.NoError(t, err)
	assert.Equal(t, []string{"admin@campusmart.edu"}, gm.GetHeader("To"))
	assert.Equal(t, []string{"admin@campusmart.edu"}, gm.GetHeader("From"))
}

func TestQueueMailer_Send(t *testing.T) {
	ch := &fakeChannel{}
	q := NewQueueMailer("amqp://test", "mail.outbound")
	q.dial = func(string) (publishChannel, io.Closer, error) { return ch, nopCloser{}, nil }

	msg := Message{To: "alice@example.com", Subject: "hi", HTMLBody: "<p>hi</p>"}
	require.NoError(t, q.Send(context.Background(), msg))
	require.NoError(t, q.Send(context.Background(), msg))

	assert.Equal(t, []string{"mail.outbound"}, ch.declared)
	require.Len(t, ch.published, 2)
	assert.Equal(t, amqp.Persistent, ch.published[0].DeliveryMode)

	var got Message
	require.NoError(t, json.Unmarshal(ch.published[0].Body, &got))
	assert.Equal(t, msg, got)
}

func TestQueueMailer_PublishFailureReconnects(t *testing.T) {
	broken := &fakeChannel{publishErr: errors.New("channel closed")}
	healthy := &fakeChannel{}
	dials := 0

	q := NewQueueMailer("amqp://test", "mail.outbound")
	q.dial = func(string) (publishChannel, io.Closer, error) {
		dials++
		if dials == 1 {
			return broken, nopCloser{}, nil
		}
		return healthy, nopCloser{}, nil
	}

	err := q.Send(context.Background(), Message{To: "a@b.c"})
	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.True(t, de.Retryable)
	assert.True(t, broken.closed)

	require.NoError(t, q.Send(context.Background(), Message{To: "a@b.c"}))
	assert.Len(t, healthy.published, 1)
	assert.Equal(t, 2, dials)
}

func TestQueueMailer_DialFailure(t *testing.T) {
	q := NewQueueMailer("amqp://test", "mail.outbound")
	q.dial = func(string) (publishChannel, io.Closer, error) { return nil, nil, errors.New("refused") }

	err := q.Send(context.Background(), Message{To: "a@b.c"})
	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "queue", de.Transport)
}

func TestConsumer_Handle(t *testing.T) {
	msg := Message{To: "alice@example.com", Subject: "Reset", HTMLBody: "<p>x</p>"}
	body, err := json.Marshal(msg)
	require.NoError(t, err)

	tests := []struct {
		name        string
		body        []byte
		sendErr     error
		wantErr     bool
		wantRequeue bool
	}{
		{name: "delivered", body: body},
		{name: "bad payload", body: []byte("{"), wantErr: true},
		{
			name:        "retryable failure",
			body:        body,
			sendErr:     &DeliveryError{Transport: "smtp", Retryable: true, Err: errors.New("timeout")},
			wantErr:     true,
			wantRequeue: true,
		},
		{
			name:    "permanent failure",
			body:    body,
			sendErr: &DeliveryError{Transport: "smtp", Err: errors.New("bad address")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fm := &fakeMailer{SendFunc: func(context.Context, Message) error { return tt.sendErr }}
			c := NewConsumer("amqp://test", "mail.outbound", fm)

			requeue, err := c.handle(context.Background(), tt.body)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				require.Len(t, fm.sent, 1)
				assert.Equal(t, msg, fm.sent[0])
			}
			assert.Equal(t, tt.wantRequeue, requeue)
		})
	}
}

func TestLogMailer(t *testing.T) {
	assert.NoError(t, NewLogMailer().Send(context.Background(), Message{To: "a@b.c"}))
}
