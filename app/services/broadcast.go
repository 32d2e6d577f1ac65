package services

import (
	"context"
	"errors"
	"fmt"

	e "nuclight.org/referral-tg-bot/pkg/entities"
	"nuclight.org/referral-tg-bot/pkg/logger"
)

type SubscriberStore interface {
	ListUsersByTag(ctx context.Context, tag string) ([]e.User, error)
}

// BroadcastReport summarizes one broadcast.
type BroadcastReport struct {
	Recipients int
	Sent       int
	Failed     int
}

// BroadcastSrv sends templated content to every subscriber carrying a tag.
type BroadcastSrv struct {
	Log    logger.Logger
	Store  SubscriberStore
	Sender Sender
}

// SendToTag delivers content to each subscriber of tag. A failed send is logged
// and counted; it never stops delivery to the remaining subscribers.
func (s *BroadcastSrv) SendToTag(ctx context.Context, tag, content string, media e.Media) (BroadcastReport, error) {
	users, err := s.Store.ListUsersByTag(ctx, tag)
	if err != nil {
		return BroadcastReport{}, fmt.Errorf("listing subscribers of %q: %w", tag, err)
	}

	report := BroadcastReport{Recipients: len(users)}
	for i := range users {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		err = s.Sender.Send(ctx, &users[i], Message{
			Kind:  e.MessageKindBroadcast,
			Text:  content,
			Media: media,
		})
		if err != nil {
			report.Failed++
			if !errors.Is(err, e.ErrFileTooLarge) {
				s.Log.Error("sending broadcast message", "tg_user_id", users[i].TelegramID, "tag", tag, "error", err)
			}
			continue
		}
		report.Sent++
	}

	return report, nil
}
