package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"example.com/emailevents/internal/alerting"
	"example.com/emailevents/internal/config"
	"example.com/emailevents/internal/domain"
	"example.com/emailevents/internal/ingest"
	"example.com/emailevents/internal/logger"
	"example.com/emailevents/internal/metrics"
	"example.com/emailevents/internal/normalize"
	"example.com/emailevents/internal/notify"
	"example.com/emailevents/internal/storage"
	"example.com/emailevents/internal/storage/memory"
	spg "example.com/emailevents/internal/storage/postgres"
	transport "example.com/emailevents/internal/transport/http"
)

const memoryStoreURL = "memory://"

func main() {
	cfg, cfgErr := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync(log)

	if cfgErr != nil {
		log.Fatal("failed to load config", zap.Error(cfgErr))
	}
	log.Info("config loaded",
		zap.String("store", config.MaskURL(cfg.StoreURL)),
		zap.String("port", cfg.Port),
		zap.Int("webhook_credentials", len(cfg.WebhookCredentials)),
		zap.Bool("cron_secret", cfg.CronSecret != ""),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open event store", zap.Error(err))
	}
	defer closeStore()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
	}
	collector := metrics.NewCollector(redisCmdable(rdb), log)
	collector.SetReportInterval(cfg.MetricsReportInterval)
	collector.Start(ctx)
	defer collector.Stop()

	tasks := ingest.NewTasks(cfg.TaskQueueSize, cfg.TaskWorkers, cfg.TaskTimeout, collector, log)
	tasks.Start(ctx)
	log.Info("background tasks started",
		zap.Int("queue", cfg.TaskQueueSize),
		zap.Int("workers", cfg.TaskWorkers),
		zap.Duration("timeout", cfg.TaskTimeout),
	)

	pipeline := ingest.NewPipeline(store, normalize.New(domain.ProviderPlunk, nil), tasks, collector, log)

	notifiers, closeNotifiers := buildNotifiers(cfg, log)
	defer closeNotifiers()
	dispatcher := notify.NewDispatcher(log, notifiers...)

	engine, err := alerting.NewEngine(store, alerting.DefaultRules(), cfg.AlertMinSample, log)
	if err != nil {
		log.Fatal("failed to build alert engine", zap.Error(err))
	}
	for _, r := range engine.Rules() {
		log.Info("alert rule loaded",
			zap.String("rule", r.Name),
			zap.String("metric", string(r.Metric)),
			zap.Float64("threshold", r.Threshold),
			zap.Int("window_minutes", r.WindowMinutes),
		)
	}
	scheduler := alerting.NewScheduler(engine, dispatcher, cfg.AlertCheckInterval, collector, log)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	deps := &transport.ServerDeps{
		Cfg:      cfg,
		Pipeline: pipeline,
		Store:    store,
		Alerts:   scheduler,
		Metrics:  collector,
		Log:      log,
		Now:      func() time.Time { return time.Now().UTC() },
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           deps.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server starting", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("error during server shutdown", zap.Error(err))
	}

	// in-flight handlers are done, so no new tasks can arrive
	tasks.Close()
	log.Info("server stopped")
}

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (storage.EventStore, func(), error) {
	if cfg.StoreURL == memoryStoreURL {
		log.Warn("using in-memory event store; events are lost on restart")
		return memory.New(log), func() {}, nil
	}

	if cfg.MigrateOnStart {
		if err := spg.RunMigrations(cfg.StoreURL, cfg.StoreServiceKey, log); err != nil {
			return nil, nil, err
		}
	}

	db, err := spg.Shared(ctx, cfg.StoreURL, cfg.StoreServiceKey)
	if err != nil {
		return nil, nil, err
	}
	log.Info("database pool ready")
	return spg.NewStore(db, log), db.Close, nil
}

func buildNotifiers(cfg config.Config, log *zap.Logger) ([]notify.Notifier, func()) {
	var out []notify.Notifier
	var closers []func() error

	if len(cfg.KafkaBrokers) > 0 {
		k, err := notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaAlertTopic, log)
		if err != nil {
			log.Warn("kafka alert notifier disabled", zap.Error(err))
		} else {
			out = append(out, k)
			closers = append(closers, k.Close)
			log.Info("kafka alert notifier enabled",
				zap.Strings("brokers", cfg.KafkaBrokers),
				zap.String("topic", cfg.KafkaAlertTopic),
			)
		}
	}

	if cfg.ResendAPIKey != "" {
		e, err := notify.NewEmailNotifier(cfg.ResendAPIKey, cfg.AlertEmailFrom, cfg.AlertEmailTo, log)
		if err != nil {
			log.Warn("email alert notifier disabled", zap.Error(err))
		} else {
			out = append(out, e)
			log.Info("email alert notifier enabled", zap.Strings("to", cfg.AlertEmailTo))
		}
	}

	return out, func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Warn("error closing notifier", zap.Error(err))
			}
		}
	}
}

// redisCmdable avoids handing the collector a typed nil client.
func redisCmdable(c *redis.Client) redis.Cmdable {
	if c == nil {
		return nil
	}
	return c
}
