// Package resendmail delivers mail through the Resend HTTP API.
package resendmail

import (
	"context"
	"errors"
	"fmt"

	"github.com/resend/resend-go/v3"
)

const defaultFrom = "accessgate <no-reply@accessgate.local>"

type Mailer struct {
	client *resend.Client
	from   string
}

func New(apiKey, from string) (*Mailer, error) {
	if apiKey == "" {
		return nil, errors.New("resend api key is missing")
	}
	if from == "" {
		from = defaultFrom
	}
	return &Mailer{
		client: resend.NewClient(apiKey),
		from:   from,
	}, nil
}

func (m *Mailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := m.client.Emails.Send(request(m.from, to, subject, htmlBody))
	if err != nil {
		return fmt.Errorf("failed to send email via resend: %w", err)
	}
	return nil
}

func request(from, to, subject, htmlBody string) *resend.SendEmailRequest {
	return &resend.SendEmailRequest{
		From:    from,
		To:      []string{to},
		Subject: subject,
		Html:    htmlBody,
	}
}
