package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nuclight.org/referral-tg-bot/app/services"
	e "nuclight.org/referral-tg-bot/pkg/entities"
	"nuclight.org/referral-tg-bot/pkg/logger"
)

type BroadcastStore interface {
	ListDueBroadcasts(ctx context.Context, now time.Time) ([]e.DueBroadcast, error)
	MarkBroadcastSent(ctx context.Context, broadcastID int64, sentAt time.Time) (bool, error)
}

type Broadcaster interface {
	SendToTag(ctx context.Context, tag, content string, media e.Media) (services.BroadcastReport, error)
}

// BroadcastPass sends every broadcast whose time has come and marks it sent.
// A broadcast is marked after its recipients were attempted, so a crash in
// between resends it on the next pass.
type BroadcastPass struct {
	Log         logger.Logger
	Store       BroadcastStore
	Broadcaster Broadcaster
}

func (p *BroadcastPass) Run(ctx context.Context, now time.Time) error {
	due, err := p.Store.ListDueBroadcasts(ctx, now)
	if err != nil {
		return fmt.Errorf("listing due broadcasts: %w", err)
	}

	var errs []error
	for _, b := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		log := p.Log.With("broadcast_id", b.ID, "tag", b.Tag)

		report, err := p.Broadcaster.SendToTag(ctx, b.Tag, b.Content, b.Media)
		if err != nil {
			// stays scheduled and is retried on the next pass
			errs = append(errs, fmt.Errorf("sending broadcast %d: %w", b.ID, err))
			continue
		}

		flipped, err := p.Store.MarkBroadcastSent(ctx, b.ID, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("marking broadcast %d sent: %w", b.ID, err))
			continue
		}
		if !flipped {
			log.Warn("broadcast already marked sent")
		}

		log.Info("broadcast sent",
			"recipients", report.Recipients, "sent", report.Sent, "failed", report.Failed)
	}

	return errors.Join(errs...)
}
