// delivery-worker consumes invoice delivery tasks queued by the API when
// DISPATCH_MODE=asynq and sends them over SMTP. Without SMTP_HOST the
// messages are only logged.
package main

import (
	"github.com/hibiken/asynq"
	"github.com/mmdatafocus/billing_backend/app"
	"github.com/mmdatafocus/billing_backend/config"
	"github.com/mmdatafocus/billing_backend/notify"
	"github.com/sirupsen/logrus"
)

func main() {
	settings := config.LoadSettings()
	logger := config.GetLogger()

	sender := notify.NewSMTPSender(app.SMTPConfig(settings), logger)
	processor := notify.NewDeliveryProcessor(sender, logger)

	mux := asynq.NewServeMux()
	processor.Register(mux)

	srv := notify.NewDeliveryServer(config.AsynqRedisOpt(), settings.DeliveryConcurrency, logger)
	logger.WithFields(logrus.Fields{
		"field":       "delivery-worker",
		"concurrency": settings.DeliveryConcurrency,
		"smtp_host":   settings.SmtpHost,
	}).Info("delivery worker starting")
	// Run blocks until SIGTERM or SIGINT and then drains in-flight tasks.
	if err := srv.Run(mux); err != nil {
		logger.WithFields(logrus.Fields{"field": "delivery-worker"}).Fatal(err.Error())
	}
}
