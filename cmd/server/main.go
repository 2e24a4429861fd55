package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"droidfleet/backend/global"
	"droidfleet/backend/initialize"
	"droidfleet/backend/server"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	app, err := initialize.Build(*configPath)
	if err != nil {
		global.Logger.Fatal().Err(err).Msg("startup failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go runSweeps(ctx, app)

	srv := server.NewHTTPServer(app.Cfg.HTTP.Host, app.Cfg.HTTP.Port, app.Router)
	go func() {
		global.Logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil {
			global.Logger.Error().Err(err).Msg("http server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	global.Logger.Info().Msg("shutdown complete")
}

// runSweeps triggers the scheduled and recurring dispatch passes.
// Multiple instances may run this concurrently; the per-task dispatch
// lock keeps them from double-dispatching.
func runSweeps(ctx context.Context, app *initialize.App) {
	ticker := time.NewTicker(app.Cfg.Sweep.Interval)
	defer ticker.Stop()
	global.Logger.Info().Dur("interval", app.Cfg.Sweep.Interval).Msg("sweep loop started")
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n, err := app.Scheduler.ExecuteScheduledTasks(ctx, now); err != nil {
				global.Logger.Error().Err(err).Msg("scheduled sweep failed")
			} else if n > 0 {
				global.Logger.Info().Int("dispatched", n).Msg("scheduled sweep")
			}
			if n, err := app.Scheduler.ExecuteRecurringTasks(ctx, now); err != nil {
				global.Logger.Error().Err(err).Msg("recurring sweep failed")
			} else if n > 0 {
				global.Logger.Info().Int("dispatched", n).Msg("recurring sweep")
			}
		}
	}
}
