package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"reminder-engine/internal/clock"
	"reminder-engine/internal/config"
	"reminder-engine/internal/logging"
	"reminder-engine/internal/sender"
	"reminder-engine/internal/store"
	"reminder-engine/internal/telemetry"
	"reminder-engine/internal/wake"
	workerproc "reminder-engine/internal/worker"
)

func main() {
	once := flag.Bool("once", false, "run a single dispatch cycle and exit (for external schedulers)")
	flag.Parse()

	cfg := config.Load()
	log := logging.New("worker", cfg.Env)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := store.NewPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		log.Fatal().Err(err).Msg("migrations")
	}

	senders := sender.Build(cfg, log)
	dispatcher := workerproc.New(cfg, st, senders, clock.System(), workerproc.OwnerToken("worker"), log)

	if *once {
		// Discrete run for externally scheduled invocations. Exit status
		// reflects infrastructure failure only; per-reminder failures are
		// recorded in their rows.
		stats, err := dispatcher.RunCycle(ctx)
		if err != nil {
			log.Error().Err(err).Msg("dispatch cycle aborted")
			os.Exit(1)
		}
		log.Info().
			Int("claimed", stats.Claimed).
			Int("sent", stats.Sent).
			Int("retried", stats.Retried).
			Int("failed", stats.Failed).
			Int("skipped", stats.Skipped).
			Msg("dispatch cycle complete")
		return
	}

	bus := wake.New(cfg, log)
	defer bus.Close()

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			log.Warn().Err(err).Msg("metrics server stopped")
		}
	}()

	log.Info().
		Dur("poll_interval", cfg.PollInterval).
		Dur("claim_timeout", cfg.ClaimTimeout).
		Int("max_attempts", cfg.MaxAttempts).
		Msg("worker started")
	if err := dispatcher.Run(ctx, bus.Subscribe(ctx)); err != nil {
		log.Info().Err(err).Msg("worker stopped")
	}
}
