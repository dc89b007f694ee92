package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/billing_backend/app"
	"github.com/mmdatafocus/billing_backend/config"
	"github.com/mmdatafocus/billing_backend/handlers"
	"github.com/sirupsen/logrus"
)

const (
	connectTimeout  = 2 * time.Minute
	shutdownTimeout = 30 * time.Second
)

func main() {
	settings := config.LoadSettings()
	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	connectCtx, cancelConnect := context.WithTimeout(sigCtx, connectTimeout)
	a, err := app.Build(connectCtx, settings, logger)
	cancelConnect()
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "startup"}).Fatal(err.Error())
	}
	defer a.Close()

	if settings.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(handlers.CorrelationId())
	r.Use(handlers.CORS(settings))
	if settings.RateLimitEnabled {
		r.Use(handlers.NewRateLimiter(a.Redis, settings.RateLimitMaxRequests, settings.RateLimitWindow).RateLimitMiddleware)
	}
	r.Use(handlers.ErrorLogger(logger))
	r.Use(gin.Recovery())
	handlers.NewHandler(a.Services, a.Engine, a.Statements, logger).Register(r)
	r.NoRoute(handlers.NotFound)

	srv := &http.Server{
		Addr:    ":" + settings.Port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	engineCtx, cancelEngine := context.WithCancel(context.Background())
	defer cancelEngine()
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		if err := a.Engine.Run(engineCtx); err != nil {
			logger.WithFields(logrus.Fields{"field": "scheduler"}).Error("recurring engine stopped: " + err.Error())
		}
	}()

	logger.WithFields(logrus.Fields{
		"port":          settings.Port,
		"store":         settings.StoreBackend,
		"dispatch_mode": settings.DispatchMode,
	}).Info("billing backend listening")
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop the engine first so no new invoices are generated while draining.
	cancelEngine()
	<-engineDone
	a.Engine.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}
}
