// Package dispatch runs the periodic passes that deliver scheduled broadcasts,
// autoresponders and rewards earned in the background.
package dispatch

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"nuclight.org/referral-tg-bot/pkg/logger"
	"nuclight.org/referral-tg-bot/pkg/metrics"
)

// Pass is one sweep over due work.
type Pass interface {
	Run(ctx context.Context, now time.Time) error
}

// PassFunc adapts a function to Pass.
type PassFunc func(ctx context.Context, now time.Time) error

func (f PassFunc) Run(ctx context.Context, now time.Time) error {
	return f(ctx, now)
}

// Loop runs Pass every Period until the context is cancelled. A failed pass is
// logged and reported, and the loop carries on with the next tick.
type Loop struct {
	Log     logger.Logger
	Name    string
	Period  time.Duration
	Pass    Pass
	Metrics *metrics.Metrics
	Now     func() time.Time
}

func (l *Loop) Run(ctx context.Context) {
	log := l.Log.With("loop", l.Name)
	log.Info("dispatch loop started", "period", l.Period)

	ticker := time.NewTicker(l.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("dispatch loop stopped")
			return
		case <-ticker.C:
			l.runPass(ctx, log)
		}
	}
}

func (l *Loop) runPass(ctx context.Context, log logger.Logger) {
	log = log.With("pass_id", uuid.NewString())
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error("dispatch pass panicked", "panic", r)
			l.Metrics.DispatchPasses.WithLabelValues(l.Name, "panic").Inc()
			sentry.CurrentHub().Recover(r)
		}
	}()

	err := l.Pass.Run(ctx, l.now())
	l.Metrics.DispatchLatency.WithLabelValues(l.Name).Observe(time.Since(started).Seconds())

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Error("running dispatch pass", "error", err)
		l.Metrics.DispatchPasses.WithLabelValues(l.Name, "failed").Inc()
		l.Metrics.Errors.WithLabelValues("dispatch").Inc()

		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("loop", l.Name)
			sentry.CaptureException(err)
		})
		return
	}

	l.Metrics.DispatchPasses.WithLabelValues(l.Name, "ok").Inc()
	log.Debug("dispatch pass done", "duration", time.Since(started))
}

func (l *Loop) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}
