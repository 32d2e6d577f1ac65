package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"nuclight.org/referral-tg-bot/app/storage"
	"nuclight.org/referral-tg-bot/pkg/logger"
	"nuclight.org/referral-tg-bot/pkg/metrics"
)

// fakeCommand re-runs the test binary as the external tool, see TestHelperProcess.
func fakeCommand(ctx context.Context, name string, args ...string) *exec.Cmd {
	cs := append([]string{"-test.run=TestHelperProcess", "--", name}, args...)
	cmd := exec.CommandContext(ctx, os.Args[0], cs...)
	cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1")
	return cmd
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	args = args[1:]

	switch filepath.Base(args[0]) {
	case "pg_dump":
		if os.Getenv("PGPASSWORD") != "secret" {
			fmt.Fprintln(os.Stderr, "password authentication failed")
			os.Exit(1)
		}
		i := slices.Index(args, "-f")
		if err := os.WriteFile(args[i+1], []byte("-- pg dump\n"), 0o600); err != nil {
			os.Exit(2)
		}
	case "sqlite3":
		if len(args) > 2 && args[2] == ".dump" {
			fmt.Print("-- sqlite dump of " + args[1] + "\n")
		}
	case "broken":
		fmt.Fprintln(os.Stderr, "no such tool")
		os.Exit(127)
	}
	os.Exit(0)
}

func newRunner(t *testing.T, db storage.Config) *Runner {
	return &Runner{
		Log:     logger.Discard(),
		DB:      db,
		Dir:     filepath.Join(t.TempDir(), "backups"),
		Command: fakeCommand,
		Now:     func() time.Time { return time.Date(2024, 5, 1, 2, 0, 0, 0, time.UTC) },
	}
}

func TestRunSQLite(t *testing.T) {
	r := newRunner(t, storage.Config{Driver: storage.DriverSQLite, SQLitePath: "bot.db"})

	path, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if filepath.Base(path) != "backup_20240501020000.sql" {
		t.Fatalf("unexpected dump name %q", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading dump: %v", err)
	}
	if string(data) != "-- sqlite dump of bot.db\n" {
		t.Fatalf("unexpected dump content %q", data)
	}
}

func TestRunPostgres(t *testing.T) {
	r := newRunner(t, storage.Config{
		Driver: storage.DriverPostgres, Host: "db", Port: 5432, User: "bot", Password: "secret", Name: "bot",
	})

	path, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err = os.Stat(path); err != nil {
		t.Fatalf("dump not written: %v", err)
	}

	r.DB.Password = "wrong"
	r.Now = func() time.Time { return time.Date(2024, 5, 2, 2, 0, 0, 0, time.UTC) }

	_, err = r.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "password authentication failed") {
		t.Fatalf("expected tool stderr in error, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(r.Dir, "backup_20240502020000.sql")); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("failed dump left behind: %v", statErr)
	}
}

func TestRestoreRelativeName(t *testing.T) {
	r := newRunner(t, storage.Config{Driver: storage.DriverSQLite, SQLitePath: "bot.db"})

	path, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if err = r.Restore(context.Background(), filepath.Base(path)); err != nil {
		t.Fatalf("restore: %v", err)
	}

	if err = r.Restore(context.Background(), "backup_missing.sql"); err == nil {
		t.Fatal("expected an error for a missing dump")
	}
}

func TestRunFailingTool(t *testing.T) {
	r := newRunner(t, storage.Config{Driver: storage.DriverSQLite, SQLitePath: "bot.db"})
	r.Tools.SQLite3 = "broken"

	if _, err := r.Run(context.Background()); err == nil || !strings.Contains(err.Error(), "no such tool") {
		t.Fatalf("expected tool failure, got %v", err)
	}
}

type fakeDumper struct {
	err   error
	calls int
}

func (d *fakeDumper) Run(context.Context) (string, error) {
	d.calls++
	return "backup.sql", d.err
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := &Scheduler{Log: logger.Discard(), Dumper: &fakeDumper{}, Spec: "every day", Metrics: metrics.Registry("test")}

	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestSchedulerRunOnceSurvivesFailure(t *testing.T) {
	d := &fakeDumper{err: errors.New("disk full")}
	s := &Scheduler{Log: logger.Discard(), Dumper: d, Metrics: metrics.Registry("test")}

	s.runOnce(context.Background())
	d.err = nil
	s.runOnce(context.Background())

	if d.calls != 2 {
		t.Fatalf("dumper called %d times", d.calls)
	}
}
