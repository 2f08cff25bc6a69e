// Package logmail is a development Mailer that writes each message to the
// log instead of sending it.
package logmail

import (
	"context"

	"github.com/MrEthical07/accessgate/internal/mask"
	"github.com/rs/zerolog"
)

type Mailer struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) *Mailer {
	return &Mailer{log: log.With().Str("component", "logmail").Logger()}
}

// Send logs the recipient masked. The body is logged verbatim at debug level
// so codes are visible in local runs only.
func (m *Mailer) Send(_ context.Context, to, subject, htmlBody string) error {
	m.log.Info().Str("to", mask.Email(to)).Str("subject", subject).Msg("mail not sent (log mailer)")
	m.log.Debug().Str("to", mask.Email(to)).Str("body", htmlBody).Msg("mail body")
	return nil
}
