package services

import (
	"context"
	"errors"
	"fmt"

	e "nuclight.org/referral-tg-bot/pkg/entities"
	"nuclight.org/referral-tg-bot/pkg/logger"
	"nuclight.org/referral-tg-bot/pkg/metrics"
	"nuclight.org/referral-tg-bot/pkg/mutex"
)

type Verdict int

const (
	VerdictNeedMore Verdict = iota
	VerdictGrant
	VerdictAlreadyReceived
)

func (v Verdict) String() string {
	switch v {
	case VerdictGrant:
		return "grant"
	case VerdictAlreadyReceived:
		return "already_received"
	default:
		return "need_more"
	}
}

// Decision is the outcome of a reward evaluation.
type Decision struct {
	Verdict Verdict

	// Remaining is the number of referrals still missing, set for VerdictNeedMore
	Remaining int
}

// Decide is the single reward rule shared by the gift claim and the periodic
// sweep. A delivered gift is never granted again, even if the threshold has
// been raised since.
func Decide(referrals, required int, received bool) Decision {
	switch {
	case received:
		return Decision{Verdict: VerdictAlreadyReceived}
	case referrals >= required:
		return Decision{Verdict: VerdictGrant}
	default:
		return Decision{Verdict: VerdictNeedMore, Remaining: required - referrals}
	}
}

// ErrNoLeadMagnet is returned when an eligible user has not picked a lead magnet.
var ErrNoLeadMagnet = errors.New("lead magnet is not selected")

const (
	pathClaim = "claim"
	pathSweep = "sweep"
)

// RewardSrv evaluates and delivers the lead magnet. Evaluations for the same
// user are serialized, so the claim handler and the sweep never deliver twice.
type RewardSrv struct {
	Log       logger.Logger
	Store     RewardStore
	Threshold ThresholdReader
	Sender    Sender
	Metrics   *metrics.Metrics

	locks mutex.KeyedMutex
}

// Claim evaluates the reward for a user asking for the gift. On VerdictGrant
// the lead magnet has been sent. A user missing exactly one referral is tagged
// for targeted messaging.
func (s *RewardSrv) Claim(ctx context.Context, userID int64) (Decision, error) {
	key := lockKey(userID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	required, err := s.Threshold.RequiredReferrals(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("reading required referrals: %w", err)
	}

	u, err := s.Store.GetUserByID(ctx, userID)
	if err != nil {
		return Decision{}, fmt.Errorf("getting user: %w", err)
	}

	d := Decide(u.Referrals, required, u.ReceivedGift)
	s.Metrics.Rewards.WithLabelValues(pathClaim, d.Verdict.String()).Inc()

	switch d.Verdict {
	case VerdictNeedMore:
		if d.Remaining == 1 {
			if err = s.Store.AddUserTags(ctx, u.ID, e.TagOneRefToGift); err != nil {
				return d, fmt.Errorf("tagging user: %w", err)
			}
		}
		return d, nil
	case VerdictGrant:
		return d, s.grant(ctx, &u, required)
	default:
		return d, nil
	}
}

// Sweep grants the reward to every user that became eligible without claiming
// it. Failures for one user are logged and do not stop the sweep.
func (s *RewardSrv) Sweep(ctx context.Context) (int, error) {
	required, err := s.Threshold.RequiredReferrals(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading required referrals: %w", err)
	}

	users, err := s.Store.ListUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing users: %w", err)
	}

	granted := 0
	for _, u := range users {
		if ctx.Err() != nil {
			return granted, ctx.Err()
		}
		if Decide(u.Referrals, required, u.ReceivedGift).Verdict != VerdictGrant {
			continue
		}

		ok, err := s.sweepUser(ctx, u.ID, required)
		if err != nil {
			log := s.Log.With("tg_user_id", u.TelegramID)
			if errors.Is(err, ErrNoLeadMagnet) {
				log.Debug("eligible user has no lead magnet")
				continue
			}
			log.Error("granting reward", "error", err)
			continue
		}
		if ok {
			granted++
		}
	}

	return granted, nil
}

func (s *RewardSrv) sweepUser(ctx context.Context, userID int64, required int) (bool, error) {
	key := lockKey(userID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	// re-read under the lock, a claim may have delivered meanwhile
	u, err := s.Store.GetUserByID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("getting user: %w", err)
	}

	d := Decide(u.Referrals, required, u.ReceivedGift)
	if d.Verdict != VerdictGrant {
		return false, nil
	}

	s.Metrics.Rewards.WithLabelValues(pathSweep, d.Verdict.String()).Inc()

	if err = s.grant(ctx, &u, required); err != nil {
		return false, err
	}

	return true, nil
}

func (s *RewardSrv) grant(ctx context.Context, u *e.User, required int) error {
	if u.LeadMagnetID == nil {
		return ErrNoLeadMagnet
	}

	lm, err := s.Store.GetLeadMagnet(ctx, *u.LeadMagnetID)
	if err != nil {
		return fmt.Errorf("getting lead magnet %d: %w", *u.LeadMagnetID, err)
	}

	err = s.Sender.Send(ctx, u, Message{
		Kind:  e.MessageKindGift,
		Text:  fmt.Sprintf("Congratulations! Here is your gift: %s\n\n%s", lm.Name, lm.Description),
		Media: lm.Image(),
		Raw:   true,
	})
	if err != nil {
		return fmt.Errorf("sending lead magnet: %w", err)
	}

	flipped, err := s.Store.MarkGiftReceived(ctx, u.ID, required)
	if err != nil {
		return fmt.Errorf("marking gift received: %w", err)
	}
	if !flipped {
		s.Log.Warn("gift already marked received", "tg_user_id", u.TelegramID)
	}

	if err = s.Store.AddUserTags(ctx, u.ID, e.RewardTag(lm.ID)); err != nil {
		return fmt.Errorf("tagging rewarded user: %w", err)
	}

	s.Log.Info("lead magnet delivered", "tg_user_id", u.TelegramID, "lead_magnet_id", lm.ID)

	return nil
}

func lockKey(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}
