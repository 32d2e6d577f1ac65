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

type AutoresponderStore interface {
	ListUsers(ctx context.Context) ([]e.User, error)
	ListAutoresponders(ctx context.Context) ([]e.Autoresponder, error)
	IsAutoresponderSent(ctx context.Context, userID, autoresponderID int64) (bool, error)
	MarkAutoresponderSent(ctx context.Context, userID, autoresponderID int64, sentAt time.Time) (bool, error)
}

type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// AutoresponderPass sends each autoresponder once to every user that has not
// received the gift yet, as soon as its delay since the user joined has
// passed. The pass ends with the reward sweep.
type AutoresponderPass struct {
	Log     logger.Logger
	Store   AutoresponderStore
	Sender  services.Sender
	Rewards Sweeper
}

func (p *AutoresponderPass) Run(ctx context.Context, now time.Time) error {
	sent, err := p.sendDue(ctx, now)
	if err != nil {
		return err
	}

	granted, err := p.Rewards.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("sweeping rewards: %w", err)
	}

	if sent > 0 || granted > 0 {
		p.Log.Info("autoresponder pass done", "sent", sent, "granted", granted)
	}

	return nil
}

func (p *AutoresponderPass) sendDue(ctx context.Context, now time.Time) (int, error) {
	responders, err := p.Store.ListAutoresponders(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing autoresponders: %w", err)
	}
	if len(responders) == 0 {
		return 0, nil
	}

	users, err := p.Store.ListUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing users: %w", err)
	}

	sent := 0
	for i := range users {
		u := &users[i]
		if u.ReceivedGift {
			continue
		}

		for _, ar := range responders {
			if ctx.Err() != nil {
				return sent, ctx.Err()
			}
			if now.Before(u.JoinedAt.Add(ar.Delay)) {
				continue
			}

			ok, err := p.sendOne(ctx, u, ar, now)
			if err != nil {
				p.Log.Error("sending autoresponder",
					"tg_user_id", u.TelegramID, "autoresponder_id", ar.ID, "error", err)
				continue
			}
			if ok {
				sent++
			}
		}
	}

	return sent, nil
}

func (p *AutoresponderPass) sendOne(ctx context.Context, u *e.User, ar e.Autoresponder, now time.Time) (bool, error) {
	done, err := p.Store.IsAutoresponderSent(ctx, u.ID, ar.ID)
	if err != nil {
		return false, fmt.Errorf("checking sent log: %w", err)
	}
	if done {
		return false, nil
	}

	err = p.Sender.Send(ctx, u, services.Message{
		Kind:  e.MessageKindAutoresponder,
		Text:  ar.Content,
		Media: ar.Media,
	})
	// an oversize attachment will never fit, the user got the notice once
	if err != nil && !errors.Is(err, e.ErrFileTooLarge) {
		return false, err
	}

	if _, err = p.Store.MarkAutoresponderSent(ctx, u.ID, ar.ID, now); err != nil {
		return false, fmt.Errorf("recording sent autoresponder: %w", err)
	}

	return true, nil
}
