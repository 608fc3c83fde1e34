package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"recall/internal/api"
	"recall/internal/cache"
	"recall/internal/config"
	"recall/internal/database"
	"recall/internal/email"
	"recall/internal/events"
	"recall/internal/metrics"
	"recall/internal/push"
	"recall/internal/scheduler"
	"recall/shared/audit"
	"recall/shared/reminders"
)

type job struct {
	name string
	spec string
	fn   scheduler.JobFunc
}

func main() {
	configPath := flag.String("config", os.Getenv("RECALL_CONFIG_PATH"), "path to config.yaml")
	runOnce := flag.String("run", "", "run one job and exit: due, digest, export or backup")
	flag.Parse()

	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.App.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}
	profiles := cache.NewProfileCache(db, rdb, cfg.CacheTTL(), logger)

	var promReg prometheus.Registerer
	if cfg.Monitoring.PrometheusEnabled {
		promReg = prometheus.DefaultRegisterer
		metrics.Register()
	}
	engineMetrics := reminders.NewMetrics("recall", promReg)

	var pushSender reminders.PushSender
	if cfg.PushConfigured() {
		s, err := push.NewSender(push.Config{
			VAPIDPublicKey:  cfg.Push.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.Push.VAPIDPrivateKey,
			Subscriber:      cfg.Push.Subscriber,
			TTL:             time.Duration(cfg.Push.TTLSeconds) * time.Second,
			Urgency:         cfg.Push.Urgency,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("create push sender")
		}
		pushSender = s
	} else {
		logger.Warn().Msg("push keys not configured; push channel disabled")
	}

	var emailSender reminders.EmailSender
	if cfg.EmailConfigured() {
		s, err := email.NewSender(email.Config{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			FromName: cfg.Email.FromName,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("create email sender")
		}
		emailSender = s
	} else {
		logger.Warn().Msg("smtp not configured; digest emails disabled")
	}

	dispatchCfg := reminders.DispatchConfig{
		Workers: cfg.Dispatch.Workers,
		RateLimiter: reminders.RateLimiterConfig{
			Rate:  cfg.Dispatch.RatePerSecond,
			Burst: cfg.Dispatch.Burst,
		},
	}
	limiter := reminders.NewRateLimiter(dispatchCfg.RateLimiter)
	links := reminders.NewLinkBuilder(cfg.App.BaseURL)

	resolver := reminders.NewResolver(db, db, links, logger)
	dispatcher := reminders.NewDispatcher(pushSender, db, db, limiter, engineMetrics, logger)
	duePass := reminders.NewService(dispatchCfg, resolver, profiles, dispatcher, db, db, engineMetrics, logger)

	digests, err := reminders.NewDigestService(reminders.DigestConfig{
		Timezone:   cfg.App.Timezone,
		Lookahead:  cfg.DigestLookahead(),
		Lookback:   cfg.DigestLookback(),
		MaxEntries: cfg.Digest.MaxEntries,
		Subject:    cfg.Digest.Subject,
	}, profiles, db, emailSender, db, engineMetrics, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("create digest service")
	}

	auditSvc, err := audit.NewService(audit.Config{
		ExportDir:         cfg.Audit.ExportDir,
		DataRetentionDays: cfg.Audit.RetentionDays,
		Timezone:          cfg.App.Timezone,
	}, db, audit.NewExcelizeWriter, db, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("create audit service")
	}

	backups := database.NewBackupService(db, database.BackupConfig{
		Enabled:       cfg.Backup.Enabled,
		StoragePath:   cfg.Backup.Path,
		RetentionDays: cfg.Backup.RetentionDays,
	}, &logger)

	bus := events.NewEventBus(logger)
	events.SubscribeMeetingReminders(bus, reminders.NewExpander(db, nil, logger), time.Now)

	actions := reminders.NewActionHandler(db, db, cfg.Snooze(), logger)

	loc, _ := time.LoadLocation(cfg.App.Timezone)
	sched := scheduler.New(loc, 30*time.Minute, logger)
	jobs := []job{
		{"due", cfg.Schedule.Due, func(ctx context.Context) error {
			_, err := duePass.ProcessDue(ctx, time.Now())
			return err
		}},
		{"digest", cfg.Schedule.Digest, func(ctx context.Context) error {
			_, err := digests.SendDailyDigests(ctx, time.Now())
			return err
		}},
		{"backup", cfg.Schedule.Backup, backups.Run},
	}
	if cfg.Audit.Enabled {
		jobs = append(jobs, job{"export", cfg.Schedule.Export, auditSvc.RunExportAndCleanup})
	}
	for _, j := range jobs {
		if err := sched.Add(j.name, j.spec, j.fn); err != nil {
			logger.Fatal().Err(err).Str("job", j.name).Msg("schedule job")
		}
	}

	if *runOnce != "" {
		if *runOnce == "export" && !cfg.Audit.Enabled {
			if err := sched.Add("export", cfg.Schedule.Export, auditSvc.RunExportAndCleanup); err != nil {
				logger.Fatal().Err(err).Msg("schedule job")
			}
		}
		if err := sched.RunNow(*runOnce); err != nil {
			logger.Fatal().Err(err).Str("job", *runOnce).Msg("job failed")
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]api.Pinger{
		"database": api.PingFunc(db.PingContext),
	}
	if rdb != nil {
		checks["redis"] = profiles
	}

	httpServer := api.NewHTTPServer(cfg.HTTP.Port, cfg.HTTP.APIKey, api.Deps{
		Actions:  actions,
		Meetings: bus,
		Due:      duePass,
		Digest:   digests,
		Checks:   checks,
	}, logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server error")
			stop()
		}
	}()
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	logger.Info().
		Bool("push", pushSender != nil).
		Bool("email", emailSender != nil).
		Strs("jobs", sched.Jobs()).
		Msg("notifier started")
	sched.Start(ctx)
	wg.Wait()
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
