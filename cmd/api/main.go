package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	api "reminder-engine/internal/api"
	"reminder-engine/internal/clock"
	"reminder-engine/internal/config"
	"reminder-engine/internal/logging"
	"reminder-engine/internal/policy"
	"reminder-engine/internal/provision"
	"reminder-engine/internal/sender"
	"reminder-engine/internal/store"
	"reminder-engine/internal/wake"
	"reminder-engine/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logging.New("api", cfg.Env)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt)
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

	clk := clock.System()
	global := policy.Global{
		DefaultRemindersEnabled: cfg.DefaultRemindersEnabled,
		DefaultLeadMinutes:      cfg.DefaultLeadMinutes,
	}
	prov := provision.New(st, global, clk, log)
	senders := sender.Build(cfg, log)
	bus := wake.New(cfg, log)
	defer bus.Close()

	disp := worker.New(cfg, st, senders, clk, worker.OwnerToken("api"), log)

	server := api.New(cfg, st, prov, disp, bus, clk, log)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	log.Info().Str("port", cfg.HTTPPort).Msg("api listening")
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
}
