package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Latasoft/CitySoccer-sub001/internal/api"
	"github.com/Latasoft/CitySoccer-sub001/internal/audit"
	"github.com/Latasoft/CitySoccer-sub001/internal/availability"
	"github.com/Latasoft/CitySoccer-sub001/internal/config"
	"github.com/Latasoft/CitySoccer-sub001/internal/database"
	"github.com/Latasoft/CitySoccer-sub001/internal/events"
	"github.com/Latasoft/CitySoccer-sub001/internal/gateway"
	"github.com/Latasoft/CitySoccer-sub001/internal/metrics"
	"github.com/Latasoft/CitySoccer-sub001/internal/notify"
	"github.com/Latasoft/CitySoccer-sub001/internal/reconciler"
	"github.com/Latasoft/CitySoccer-sub001/internal/service"
)

func main() {
	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CITYSOCCER_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	guard := availability.NewGuard(db, &logger)
	if rdb != nil && cfg.CacheTTL() > 0 {
		guard.UseRedisCache(rdb, cfg.CacheTTL())
	}

	bus := events.NewBus()

	if cfg.AMQP.URL != "" {
		publisher, err := notify.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			logger.Fatal().Err(err).Msg("amqp connect error")
		}
		defer publisher.Close()
		bridge := func(e events.Event) error {
			return publisher.Publish(context.Background(), e.Type, e.Payload)
		}
		bus.Subscribe(events.TypePaymentConfirmed, bridge)
		bus.Subscribe(events.TypeRefundRequired, bridge)
		bus.Subscribe(events.TypeVerdictConflict, bridge)
	}

	var alerter notify.Alerter
	if cfg.Telegram.BotToken != "" && len(cfg.Telegram.OperatorChats) > 0 {
		tg, err := notify.NewTelegramAlerter(cfg.Telegram.BotToken, cfg.Telegram.OperatorChats, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram alerter error")
		}
		alerter = tg
	}

	notifier := notify.New(db, bus, alerter, &logger)

	gw := gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.SecretKey, cfg.Gateway.ReturnURL, cfg.GatewayTimeout())
	rec := reconciler.New(db, db, db, notifier, guard, &logger)
	payments := service.NewPaymentService(guard, db, db, gw, &logger)
	exporter := audit.NewExporter(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := service.NewSweeper(db, cfg.IntentTTL(), cfg.SweepInterval(), &logger)
	go sweeper.Start(ctx)

	if cfg.Backup.Enabled {
		if cfg.Backup.StoragePath == "" {
			cfg.Backup.StoragePath = "data/backups"
		}
		backup := database.NewBackupService(db, cfg.Backup.StoragePath, cfg.BackupInterval(), cfg.Backup.RetentionDays, &logger)
		go backup.Start(ctx)
	}

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	srv := api.NewHTTPServer(api.Options{
		Port:        cfg.Server.Port,
		APIKey:      cfg.Server.APIKey,
		CreateRate:  cfg.Server.CreateRate,
		CreateBurst: cfg.Server.CreateBurst,
		Hours: availability.Hours{
			Opening:     cfg.Booking.OpeningTime,
			Closing:     cfg.Booking.ClosingTime,
			SlotMinutes: cfg.Booking.SlotMinutes,
		},
	}, payments, rec, guard, exporter, db, &logger)

	logger.Info().Msg("reservation engine started")
	if err := srv.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("http server error")
	}
}

func startHealthServer(ctx context.Context, port int, db *database.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
