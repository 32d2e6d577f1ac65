// Package backup dumps the database with the engine's own tools and restores
// such dumps.
package backup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"nuclight.org/referral-tg-bot/app/storage"
	"nuclight.org/referral-tg-bot/pkg/logger"
)

const fileLayout = "20060102150405"

// Tools are the paths of the external dump utilities.
type Tools struct {
	PgDump  string
	Psql    string
	SQLite3 string
}

func (t Tools) withDefaults() Tools {
	if t.PgDump == "" {
		t.PgDump = "pg_dump"
	}
	if t.Psql == "" {
		t.Psql = "psql"
	}
	if t.SQLite3 == "" {
		t.SQLite3 = "sqlite3"
	}
	return t
}

// Runner writes backup_YYYYMMDDHHMMSS.sql dumps into Dir.
type Runner struct {
	Log   logger.Logger
	DB    storage.Config
	Dir   string
	Tools Tools

	// Command builds the external process, exec.CommandContext when nil
	Command func(ctx context.Context, name string, args ...string) *exec.Cmd

	Now func() time.Time
}

// Run dumps the database and returns the path of the dump.
func (r *Runner) Run(ctx context.Context) (string, error) {
	if err := os.MkdirAll(r.Dir, 0o750); err != nil {
		return "", fmt.Errorf("creating backup dir: %w", err)
	}

	path := filepath.Join(r.Dir, "backup_"+r.now().Format(fileLayout)+".sql")
	tools := r.Tools.withDefaults()

	var err error
	switch r.DB.Driver {
	case storage.DriverPostgres:
		err = r.run(ctx, nil, nil, tools.PgDump, append(r.pgArgs(), "-f", path, r.DB.Name)...)
	case storage.DriverSQLite:
		err = r.withFile(path, os.Create, func(f *os.File) error {
			return r.run(ctx, nil, f, tools.SQLite3, r.DB.SQLitePath, ".dump")
		})
	default:
		err = fmt.Errorf("unknown database driver %q", r.DB.Driver)
	}
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("dumping database: %w", err)
	}

	r.Log.Info("backup created", "path", path)

	return path, nil
}

// Restore replays a dump. A relative name is looked up in Dir.
func (r *Runner) Restore(ctx context.Context, name string) error {
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.Dir, name)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("opening dump: %w", err)
	}

	tools := r.Tools.withDefaults()

	var err error
	switch r.DB.Driver {
	case storage.DriverPostgres:
		err = r.run(ctx, nil, nil, tools.Psql, append(r.pgArgs(), "-d", r.DB.Name, "-f", path)...)
	case storage.DriverSQLite:
		err = r.withFile(path, os.Open, func(f *os.File) error {
			return r.run(ctx, f, nil, tools.SQLite3, r.DB.SQLitePath)
		})
	default:
		err = fmt.Errorf("unknown database driver %q", r.DB.Driver)
	}
	if err != nil {
		return fmt.Errorf("restoring database: %w", err)
	}

	r.Log.Info("backup restored", "path", path)

	return nil
}

func (r *Runner) pgArgs() []string {
	return []string{"-h", r.DB.Host, "-p", strconv.Itoa(r.DB.Port), "-U", r.DB.User}
}

func (r *Runner) run(ctx context.Context, stdin io.Reader, stdout io.Writer, name string, args ...string) error {
	command := r.Command
	if command == nil {
		command = exec.CommandContext
	}

	cmd := command(ctx, name, args...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	if r.DB.Driver == storage.DriverPostgres {
		cmd.Env = append(cmd.Environ(), "PGPASSWORD="+r.DB.Password)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("running %s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func (r *Runner) withFile(path string, open func(string) (*os.File, error), fn func(*os.File) error) error {
	f, err := open(path)
	if err != nil {
		return err
	}
	if err = fn(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
