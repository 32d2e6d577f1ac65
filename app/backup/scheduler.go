package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/robfig/cron/v3"

	"nuclight.org/referral-tg-bot/pkg/logger"
	"nuclight.org/referral-tg-bot/pkg/metrics"
)

// DefaultSpec runs the backup daily at 02:00.
const DefaultSpec = "0 2 * * *"

type Dumper interface {
	Run(ctx context.Context) (string, error)
}

// Scheduler triggers backups on a cron spec. A failed backup is logged and
// reported, the next run happens as scheduled.
type Scheduler struct {
	Log      logger.Logger
	Dumper   Dumper
	Spec     string
	Location *time.Location
	Metrics  *metrics.Metrics

	cron *cron.Cron
}

// Start schedules the backups and returns. Scheduling stops when ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	spec := s.Spec
	if spec == "" {
		spec = DefaultSpec
	}

	loc := s.Location
	if loc == nil {
		loc = time.Local
	}

	s.cron = cron.New(cron.WithLocation(loc))
	if _, err := s.cron.AddFunc(spec, func() { s.runOnce(ctx) }); err != nil {
		return fmt.Errorf("parsing backup schedule %q: %w", spec, err)
	}

	s.cron.Start()
	s.Log.Info("backup scheduler started", "spec", spec)

	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
		s.Log.Info("backup scheduler stopped")
	}()

	return nil
}

func (s *Scheduler) runOnce(ctx context.Context) {
	started := time.Now()

	path, err := s.Dumper.Run(ctx)
	if err != nil {
		s.Log.Error("running backup", "error", err)
		s.Metrics.Backups.WithLabelValues("failed").Inc()
		s.Metrics.Errors.WithLabelValues("backup").Inc()
		sentry.CaptureException(err)
		return
	}

	s.Metrics.Backups.WithLabelValues("ok").Inc()
	s.Log.Info("backup done", "path", path, "duration", time.Since(started))
}
