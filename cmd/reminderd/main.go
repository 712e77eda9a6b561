// Command reminderd runs the reminder scheduling engine, either as a
// self-driven polling loop or as an HTTP server accepting externally
// triggered callbacks, following cmd/bot/main.go's bootstrap shape:
// structured logging, config load, store open, signal-based graceful
// shutdown, and separate health/metrics servers.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"reminderd/internal/config"
	"reminderd/internal/dispatch"
	"reminderd/internal/engine"
	"reminderd/internal/metrics"
	"reminderd/internal/reminder"
	"reminderd/internal/store"
	"reminderd/internal/webhook"
)

func main() {
	cleanupOnce := flag.Bool("cleanup-once", false, "run a single cleanup sweep and exit")
	envFile := flag.String("env-file", ".env", "path to an optional .env file")
	yamlFile := flag.String("signing-keys-file", "", "path to an optional YAML file overriding webhook signing keys")
	flag.Parse()

	log := newLogger()

	cfg, err := config.Load(*envFile, *yamlFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open reminder store")
	}
	defer st.Close()

	clock := clockwork.NewRealClock()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	senders := map[reminder.ContactMode]dispatch.Sender{}
	if cfg.SMTPHost != "" {
		senders[reminder.ModeEmail] = dispatch.NewEmailSender(dispatch.EmailConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}, 5, 10)
	}
	dispatcher := dispatch.New(senders, log).WithMetrics(m)

	eng := &engine.Engine{
		Store:          st,
		Clock:          clock,
		Dispatcher:     dispatcher,
		Metrics:        m,
		Log:            log,
		TickInterval:   cfg.TickInterval,
		StaleThreshold: cfg.StaleThreshold,
	}

	if *cleanupOnce {
		result, err := eng.Cleanup(context.Background())
		if err != nil {
			log.Fatal().Err(err).Msg("cleanup sweep failed")
		}
		log.Info().Int("checked", result.Checked).Int("deactivated", result.Deactivated).Msg("cleanup sweep complete")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var loop *engine.Loop
	if cfg.UsePolling {
		loop = engine.NewLoop(eng)
		loop.Start(ctx)
		log.Info().Dur("tick_interval", cfg.TickInterval).Msg("scheduling loop started")
	} else {
		// Publishing one-shot/cron callbacks to the external scheduler
		// happens from the CRUD boundary when a reminder is created or
		// updated, which is out of scope for this binary; reminderd in
		// event mode only receives the resulting webhook callbacks.
		handler := &webhook.Handler{
			Engine: eng,
			Store:  st,
			Clock:  clock,
			Verifier: webhook.SignatureVerifier{
				Current: cfg.WebhookSigningKeyCurrent,
				Next:    cfg.WebhookSigningKeyNext,
			},
			Log: log,
		}
		mux := http.NewServeMux()
		handler.Routes(mux)

		srv := &http.Server{Addr: ":" + strconv.Itoa(cfg.HealthPort+1), Handler: mux}
		go func() {
			log.Info().Str("addr", srv.Addr).Msg("webhook server starting")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("webhook server failed")
			}
		}()
		defer srv.Shutdown(context.Background())
	}

	healthSrv := startHealthServer(cfg, st, loop, log)
	metricsSrv := startMetricsServer(cfg, reg, log)

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	if loop != nil {
		loop.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	healthSrv.Shutdown(shutdownCtx)
	metricsSrv.Shutdown(shutdownCtx)
}

func newLogger() zerolog.Logger {
	if isTTY(os.Stdout) {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func isTTY(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

func startHealthServer(cfg *config.Config, st store.Store, loop *engine.Loop, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := st.FindAll(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if loop != nil && loop.ConsecutiveErrors() >= 5 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: ":" + strconv.Itoa(cfg.HealthPort), Handler: mux}
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("health server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health server failed")
		}
	}()
	return srv
}

func startMetricsServer(cfg *config.Config, reg *prometheus.Registry, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: ":" + strconv.Itoa(cfg.MetricsPort), Handler: mux}
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("metrics server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
	return srv
}
