package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"

	"nuclight.org/referral-tg-bot/app/backup"
	"nuclight.org/referral-tg-bot/app/storage"
	"nuclight.org/referral-tg-bot/pkg/logger"
)

var opts struct {
	DBDriver   string `long:"db-driver" env:"DB_DRIVER" default:"sqlite3" choice:"sqlite3" choice:"postgres" description:"database driver"`
	DBPath     string `long:"db-path" env:"DB_PATH" default:"./db/referral.sqlite" description:"path to the sqlite database file"`
	DBHost     string `long:"db-host" env:"DB_HOST" default:"localhost" description:"postgres host"`
	DBPort     int    `long:"db-port" env:"DB_PORT" default:"5432" description:"postgres port"`
	DBUser     string `long:"db-user" env:"DB_USER" description:"postgres user"`
	DBPassword string `long:"db-password" env:"DB_PASSWORD" description:"postgres password"`
	DBName     string `long:"db-name" env:"DB_NAME" default:"referral_bot" description:"postgres database name"`

	Dir     string `long:"dir" env:"BACKUP_DIR" default:"./backups" description:"backup directory"`
	Restore string `short:"r" long:"restore" description:"restore this dump instead of creating one"`

	PgDump  string `long:"pg-dump" env:"BACKUP_PG_DUMP" default:"pg_dump" description:"pg_dump binary"`
	Psql    string `long:"psql" env:"BACKUP_PSQL" default:"psql" description:"psql binary"`
	SQLite3 string `long:"sqlite3" env:"BACKUP_SQLITE3" default:"sqlite3" description:"sqlite3 binary"`
}

func main() {
	_ = godotenv.Load()

	_, err := flags.Parse(&opts)
	if err != nil {
		os.Exit(1)
	}

	log := logger.NewLogger("info")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runner := &backup.Runner{
		Log: log,
		DB: storage.Config{
			Driver:     opts.DBDriver,
			SQLitePath: opts.DBPath,
			Host:       opts.DBHost,
			Port:       opts.DBPort,
			User:       opts.DBUser,
			Password:   opts.DBPassword,
			Name:       opts.DBName,
		},
		Dir: opts.Dir,
		Tools: backup.Tools{
			PgDump:  opts.PgDump,
			Psql:    opts.Psql,
			SQLite3: opts.SQLite3,
		},
	}

	if opts.Restore != "" {
		log.Info("restoring backup", "name", opts.Restore)
		if err = runner.Restore(ctx, opts.Restore); err != nil {
			log.Error("restoring backup", "error", err)
			os.Exit(1)
		}
		return
	}

	log.Info("creating backup", "dir", opts.Dir)
	if _, err = runner.Run(ctx); err != nil {
		log.Error("creating backup", "error", err)
		os.Exit(1)
	}
}
