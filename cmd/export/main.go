package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"

	"nuclight.org/referral-tg-bot/app/export"
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
	DBSSLMode  string `long:"db-sslmode" env:"DB_SSLMODE" default:"disable" description:"postgres ssl mode"`

	Output string `short:"o" long:"output" default:"subscribers.xlsx" description:"output workbook path"`
}

func main() {
	_ = godotenv.Load()

	_, err := flags.Parse(&opts)
	if err != nil {
		os.Exit(1)
	}

	log := logger.NewLogger("info")
	log.Info("starting export")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := storage.Open(ctx, storage.Config{
		Driver:     opts.DBDriver,
		SQLitePath: opts.DBPath,
		Host:       opts.DBHost,
		Port:       opts.DBPort,
		User:       opts.DBUser,
		Password:   opts.DBPassword,
		Name:       opts.DBName,
		SSLMode:    opts.DBSSLMode,
	})
	if err != nil {
		log.Error("opening database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("closing database", "error", err)
		}
	}()

	x := &export.Exporter{Log: log, Store: db}
	if err = x.WriteFile(ctx, opts.Output); err != nil {
		log.Error("exporting subscribers", "error", err)
		os.Exit(1)
	}
}
