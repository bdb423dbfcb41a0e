// Package mailer abstracts the outbound email provider. The pipeline
// treats it as an opaque send capability: delivery guarantees stop at
// the provider's acknowledgement.
package mailer

import "context"

// Message is one outbound email.
type Message struct {
	To      []string `json:"to"`
	CC      []string `json:"cc,omitempty"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

// Result maps the provider's acknowledgement.
type Result struct {
	ProviderID string `json:"messageId"`
}

// Mailer sends a message. Errors are classified by the implementation:
// a domain.TransportError with Retryable=true means the dispatcher may
// retry with backoff; everything else is terminal.
type Mailer interface {
	Send(ctx context.Context, msg *Message) (*Result, error)
}
