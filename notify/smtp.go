package notify

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"

	"github.com/mmdatafocus/billing_backend/utils"
	"github.com/sirupsen/logrus"
)

type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
}

// SMTPSender delivers email messages through an SMTP relay.
type SMTPSender struct {
	cfg    SMTPConfig
	auth   smtp.Auth
	addr   string
	logger *logrus.Logger
	clock  utils.Clock

	// replaced in tests
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender falls back to a LoggingSender when no host is configured.
func NewSMTPSender(cfg SMTPConfig, logger *logrus.Logger) Dispatcher {
	if cfg.Host == "" {
		if logger != nil {
			logger.Warn("SMTP host not configured, using logging sender")
		}
		return NewLoggingSender(logger)
	}
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPSender{
		cfg:      cfg,
		auth:     auth,
		addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		logger:   logger,
		clock:    utils.SystemClock{},
		sendMail: smtp.SendMail,
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if msg.Channel != "" && msg.Channel != ChannelEmail {
		return &utils.DispatchError{To: msg.To, Err: fmt.Errorf("smtp cannot deliver to channel %q", msg.Channel)}
	}
	if len(msg.To) == 0 {
		return &utils.DispatchError{Err: errors.New("no recipients")}
	}
	if err := ctx.Err(); err != nil {
		return &utils.DispatchError{To: msg.To, Err: err}
	}
	raw, err := msg.Raw(s.cfg.FromAddress, s.clock.Now())
	if err != nil {
		return &utils.DispatchError{To: msg.To, Err: err}
	}
	if err := s.sendMail(s.addr, s.auth, s.cfg.FromAddress, msg.To, raw); err != nil {
		return &utils.DispatchError{To: msg.To, Err: fmt.Errorf("smtp error: %w", err)}
	}
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{
			"field":      "SMTPSender",
			"to":         msg.To,
			"invoice_id": msg.InvoiceId,
		}).Info("email sent: " + msg.Subject)
	}
	return nil
}
