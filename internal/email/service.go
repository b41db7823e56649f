package email

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"

	"github.com/staffdeck/realtime-api/internal/config"
)

// Service delivers notifications over SMTP when the user has no live
// connection to push to.
type Service interface {
	SendNotification(ctx context.Context, to, subject, body string) error
}

type service struct {
	dialer *gomail.Dialer
	from   string
	logger *zerolog.Logger
}

func NewService(cfg config.SMTPConfig, logger *zerolog.Logger) Service {
	if !cfg.Enabled {
		return &nopService{logger: logger}
	}
	return &service{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
		from:   cfg.From,
		logger: logger,
	}
}

func (s *service) SendNotification(ctx context.Context, to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// nopService stands in when SMTP is disabled so callers never need a
// nil check.
type nopService struct {
	logger *zerolog.Logger
}

func (s *nopService) SendNotification(_ context.Context, to, subject, _ string) error {
	s.logger.Debug().Str("to", to).Str("subject", subject).Msg("smtp disabled, skipping email")
	return nil
}
