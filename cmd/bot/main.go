package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"

	"nuclight.org/referral-tg-bot/app/backup"
	"nuclight.org/referral-tg-bot/app/controller"
	"nuclight.org/referral-tg-bot/app/dispatch"
	"nuclight.org/referral-tg-bot/app/export"
	"nuclight.org/referral-tg-bot/app/ops"
	"nuclight.org/referral-tg-bot/app/render"
	"nuclight.org/referral-tg-bot/app/services"
	"nuclight.org/referral-tg-bot/app/session"
	"nuclight.org/referral-tg-bot/app/storage"
	"nuclight.org/referral-tg-bot/app/telegram"
	"nuclight.org/referral-tg-bot/pkg/logger"
	"nuclight.org/referral-tg-bot/pkg/metrics"
)

type dbOpts struct {
	Driver   string `long:"driver" env:"DRIVER" default:"sqlite3" choice:"sqlite3" choice:"postgres" description:"database driver"`
	Path     string `long:"path" env:"PATH" default:"./db/referral.sqlite" description:"path to the sqlite database file"`
	Host     string `long:"host" env:"HOST" default:"localhost" description:"postgres host"`
	Port     int    `long:"port" env:"PORT" default:"5432" description:"postgres port"`
	User     string `long:"user" env:"USER" description:"postgres user"`
	Password string `long:"password" env:"PASSWORD" description:"postgres password"`
	Name     string `long:"name" env:"NAME" default:"referral_bot" description:"postgres database name"`
	SSLMode  string `long:"sslmode" env:"SSLMODE" default:"disable" description:"postgres ssl mode"`
}

func (o dbOpts) config() storage.Config {
	return storage.Config{
		Driver:     o.Driver,
		SQLitePath: o.Path,
		Host:       o.Host,
		Port:       o.Port,
		User:       o.User,
		Password:   o.Password,
		Name:       o.Name,
		SSLMode:    o.SSLMode,
	}
}

var opts struct {
	TelegramAPIToken   string `long:"telegram-api-token" env:"API_TOKEN" required:"true" description:"telegram api token"`
	TelegramWorkersNum int    `long:"telegram-workers-num" env:"TELEGRAM_WORKERS_NUM" default:"5" description:"number of workers for telegram bot"`
	LogLevel           string `long:"log-level" env:"LOG_LEVEL" default:"info" description:"log level: debug, info, warn, error"`

	DB dbOpts `group:"database" namespace:"db" env-namespace:"DB"`

	Redis struct {
		Addr     string        `long:"addr" env:"ADDR" description:"redis address for wizard state, in-memory when empty"`
		Password string        `long:"password" env:"PASSWORD" description:"redis password"`
		DB       int           `long:"db" env:"DB" default:"0" description:"redis database"`
		TTL      time.Duration `long:"ttl" env:"TTL" default:"24h" description:"lifetime of an abandoned wizard"`
	} `group:"redis" namespace:"redis" env-namespace:"REDIS"`

	Admins            []int64       `long:"admin" env:"ADMIN_IDS" env-delim:"," description:"telegram ids of administrators"`
	RequiredReferrals int           `long:"required-referrals" env:"REQUIRED_REFERRALS" default:"3" description:"referrals required for the gift until set by an admin"`
	BroadcastPeriod   time.Duration `long:"broadcast-period" env:"BROADCAST_PERIOD" default:"1m" description:"scheduled broadcast check period"`
	AutoreplyPeriod   time.Duration `long:"autoresponder-period" env:"AUTORESPONDER_PERIOD" default:"1h" description:"autoresponder and reward check period"`
	Timezone          string        `long:"timezone" env:"TIMEZONE" default:"UTC" description:"timezone of admin-entered schedule times"`

	Backup struct {
		Spec    string `long:"spec" env:"SPEC" default:"0 2 * * *" description:"backup cron spec"`
		Dir     string `long:"dir" env:"DIR" default:"./backups" description:"backup directory"`
		PgDump  string `long:"pg-dump" env:"PG_DUMP" default:"pg_dump" description:"pg_dump binary"`
		SQLite3 string `long:"sqlite3" env:"SQLITE3" default:"sqlite3" description:"sqlite3 binary"`
	} `group:"backup" namespace:"backup" env-namespace:"BACKUP"`

	HTTPAddr         string `long:"http-addr" env:"HTTP_ADDR" description:"ops http listen address, disabled when empty"`
	MetricsNamespace string `long:"metrics-namespace" env:"METRICS_NAMESPACE" default:"referral_bot" description:"prometheus namespace"`
	SentryDSN        string `long:"sentry-dsn" env:"SENTRY_DSN" description:"sentry dsn, reporting is disabled when empty"`
}

var Revision = "dev"

func main() {
	// a missing .env is fine, the environment may be set by other means
	_ = godotenv.Load()

	_, err := flags.Parse(&opts)
	if err != nil {
		os.Exit(1)
	}

	log := logger.NewLogger(opts.LogLevel)
	log.Info("starting bot", "revision", Revision)

	if err = run(log); err != nil {
		log.Error("bot failed", "error", err)
		sentry.CaptureException(err)
		sentry.Flush(2 * time.Second)
		os.Exit(1)
	}

	os.Exit(0)
}

func run(log logger.Logger) error {
	if opts.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{Dsn: opts.SentryDSN, Release: Revision})
		if err != nil {
			return fmt.Errorf("initializing sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	loc, err := time.LoadLocation(opts.Timezone)
	if err != nil {
		return fmt.Errorf("loading timezone: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.Registry(opts.MetricsNamespace)

	db, err := storage.Open(ctx, opts.DB.config())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("closing database", "error", err)
		}
	}()

	for _, id := range opts.Admins {
		if err = db.SetAdmin(ctx, id, true); err != nil {
			return fmt.Errorf("promoting admin %d: %w", id, err)
		}
	}

	sessions, closeSessions, err := newSessionStore(ctx, log)
	if err != nil {
		return err
	}
	defer closeSessions()

	bot := &telegram.Client{
		Log:        log.With("component", "telegram"),
		APIToken:   opts.TelegramAPIToken,
		WorkersNum: opts.TelegramWorkersNum,
		Metrics:    m,
	}
	if err = bot.Connect(); err != nil {
		return fmt.Errorf("connecting to telegram: %w", err)
	}

	renderer := &render.Renderer{
		Log:             log.With("component", "render"),
		BotUsername:     bot.Username(),
		DefaultRequired: opts.RequiredReferrals,
		Config:          db,
		LeadMagnets:     db,
	}

	delivery := &services.DeliverySrv{
		Log:       log.With("component", "delivery"),
		Messenger: bot,
		Renderer:  renderer,
		Logs:      db,
		Metrics:   m,
	}

	rewards := &services.RewardSrv{
		Log:       log.With("component", "rewards"),
		Store:     db,
		Threshold: renderer,
		Sender:    delivery,
		Metrics:   m,
	}

	broadcasts := &services.BroadcastSrv{
		Log:    log.With("component", "broadcasts"),
		Store:  db,
		Sender: delivery,
	}

	bot.Handler = &controller.Handler{
		Log:       log.With("component", "controller"),
		Store:     db,
		Sessions:  sessions,
		Messenger: bot,
		Sender:    delivery,
		Onboarding: &services.OnboardingSrv{
			Log:       log.With("component", "onboarding"),
			Store:     db,
			Messenger: bot,
			Admins:    opts.Admins,
		},
		Rewards:    rewards,
		Broadcasts: broadcasts,
		Exporter:   &export.Exporter{Log: log.With("component", "export"), Store: db},
		Links:      renderer,
		Location:   loc,
	}

	if err = bot.Start(ctx); err != nil {
		return fmt.Errorf("starting bot: %w", err)
	}

	var wg sync.WaitGroup

	loops := []*dispatch.Loop{
		{
			Log:     log.With("component", "dispatch"),
			Name:    "broadcasts",
			Period:  opts.BroadcastPeriod,
			Metrics: m,
			Pass: &dispatch.BroadcastPass{
				Log:         log.With("component", "broadcasts"),
				Store:       db,
				Broadcaster: broadcasts,
			},
		},
		{
			Log:     log.With("component", "dispatch"),
			Name:    "autoresponders",
			Period:  opts.AutoreplyPeriod,
			Metrics: m,
			Pass: &dispatch.AutoresponderPass{
				Log:     log.With("component", "autoresponders"),
				Store:   db,
				Sender:  delivery,
				Rewards: rewards,
			},
		},
	}
	for _, l := range loops {
		l := l
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Run(ctx)
		}()
	}

	scheduler := &backup.Scheduler{
		Log: log.With("component", "backup"),
		Dumper: &backup.Runner{
			Log: log.With("component", "backup"),
			DB:  opts.DB.config(),
			Dir: opts.Backup.Dir,
			Tools: backup.Tools{
				PgDump:  opts.Backup.PgDump,
				SQLite3: opts.Backup.SQLite3,
			},
		},
		Spec:     opts.Backup.Spec,
		Location: loc,
		Metrics:  m,
	}
	if err = scheduler.Start(ctx); err != nil {
		return fmt.Errorf("starting backup scheduler: %w", err)
	}

	if opts.HTTPAddr != "" {
		srv := ops.NewServer(opts.HTTPAddr, log, db)
		go func() {
			if err := srv.Start(); err != nil {
				log.Error("serving ops http", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error("shutting down ops http", "error", err)
			}
		}()
	}

	<-ctx.Done()
	log.Info("stopping bot")

	bot.Wait()
	wg.Wait()

	return nil
}

// newSessionStore picks redis when an address is configured and process
// memory otherwise.
func newSessionStore(ctx context.Context, log logger.Logger) (session.Store, func(), error) {
	if opts.Redis.Addr == "" {
		log.Info("keeping wizard state in memory")
		return session.NewMemoryStore(), func() {}, nil
	}

	rs := session.NewRedisStore(session.RedisConfig{
		Addr:     opts.Redis.Addr,
		Password: opts.Redis.Password,
		DB:       opts.Redis.DB,
		TTL:      opts.Redis.TTL,
	})
	if err := rs.Ping(ctx); err != nil {
		_ = rs.Close()
		return nil, nil, fmt.Errorf("connecting to redis: %w", err)
	}

	log.Info("keeping wizard state in redis", "addr", opts.Redis.Addr)

	return rs, func() {
		if err := rs.Close(); err != nil {
			log.Error("closing redis", "error", err)
		}
	}, nil
}
