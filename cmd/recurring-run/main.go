// recurring-run evaluates every recurring template once and prints the run
// report. It is meant for a Cloud Scheduler job when the API runs with the
// engine loop disabled, or for operators catching up after an outage.
//
// Usage (from backend directory):
//   STORE_BACKEND=mysql DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/recurring-run
//
// Set RECURRING_CATCH_UP_MISSED=true to generate invoices for missed runs
// instead of skipping them.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mmdatafocus/billing_backend/app"
	"github.com/mmdatafocus/billing_backend/config"
	"github.com/mmdatafocus/billing_backend/utils"
)

func main() {
	settings := config.LoadSettings()
	logger := config.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if settings.StoreBackend == config.StoreBackendMemory {
		fmt.Fprintln(os.Stderr, "STORE_BACKEND=memory has no templates to run. Set STORE_BACKEND=mysql or redis.")
		os.Exit(2)
	}

	a, err := app.Build(ctx, settings, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx = utils.SetTriggerSourceInContext(ctx, "cli")
	report, err := a.Engine.Tick(ctx)
	// Deliveries run in the background; let them finish before exiting.
	a.Engine.Wait()
	if err != nil {
		fmt.Fprintf(os.Stderr, "recurring run failed: %v\n", err)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(out))
	if report.Failed > 0 {
		os.Exit(3)
	}
}
