// Package smtpmail delivers mail over a pooled SMTP connection.
package smtpmail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/smtp"
	"time"

	"github.com/knadh/smtppool"
)

type Config struct {
	Host               string
	Port               int
	Username           string
	Password           string
	From               string
	MaxConns           int
	SendTimeout        time.Duration
	SSL                bool
	InsecureSkipVerify bool
}

func (c Config) Validate() error {
	if c.Host == "" || c.Port <= 0 {
		return errors.New("smtp host and port are required")
	}
	if c.From == "" {
		return errors.New("smtp from address is required")
	}
	return nil
}

// Mailer sends through a smtppool.Pool. It is safe for concurrent use.
type Mailer struct {
	pool *smtppool.Pool
	from string
}

func New(cfg Config) (*Mailer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 4
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}

	var auth smtp.Auth
	if cfg.Username != "" || cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	pool, err := smtppool.New(smtppool.Opt{
		Host:            cfg.Host,
		Port:            cfg.Port,
		MaxConns:        cfg.MaxConns,
		IdleTimeout:     cfg.SendTimeout,
		PoolWaitTimeout: cfg.SendTimeout,
		SSL:             cfg.SSL,
		Auth:            auth,
		TLSConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			ServerName:         cfg.Host,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("smtp pool: %w", err)
	}
	return &Mailer{pool: pool, from: cfg.From}, nil
}

// Send blocks until the pool accepted the message. The pool applies its own
// wait timeout; ctx is only checked before handing off.
func (m *Mailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := m.pool.Send(smtppool.Email{
		From:    m.from,
		To:      []string{to},
		Subject: subject,
		HTML:    []byte(htmlBody),
	})
	if err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (m *Mailer) Close() {
	m.pool.Close()
}
