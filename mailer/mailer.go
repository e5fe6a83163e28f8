// Package mailer delivers outbound email through interchangeable transports.
package mailer

import (
	"context"
	"fmt"
)

type Message struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTMLBody string `json:"htmlBody"`
	TextBody string `json:"textBody,omitempty"`
}

// Mailer sends a single message. Transport failures are returned as
// *DeliveryError.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// DeliveryError reports a failed hand-off to the mail transport. Retryable
// is set when the same message may succeed later, e.g. on timeouts or
// connection failures.
type DeliveryError struct {
	Transport string
	Retryable bool
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery failed: %v", e.Transport, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
