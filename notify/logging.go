package notify

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LoggingSender only logs. Used when no transport is configured.
type LoggingSender struct {
	logger *logrus.Logger
}

func NewLoggingSender(logger *logrus.Logger) *LoggingSender {
	return &LoggingSender{logger: logger}
}

func (s *LoggingSender) Send(ctx context.Context, msg Message) error {
	if s.logger == nil {
		return nil
	}
	names := make([]string, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		names = append(names, a.Filename)
	}
	s.logger.WithFields(logrus.Fields{
		"field":       "LoggingSender",
		"channel":     msg.Channel,
		"to":          msg.To,
		"subject":     msg.Subject,
		"attachments": names,
		"invoice_id":  msg.InvoiceId,
		"template_id": msg.TemplateId,
	}).Info(msg.Body)
	return nil
}
