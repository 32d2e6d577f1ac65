package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	e "nuclight.org/referral-tg-bot/pkg/entities"
	"nuclight.org/referral-tg-bot/pkg/logger"
)

// OnboardingSrv registers subscribers on first contact and credits the inviter
// named in the start parameter.
type OnboardingSrv struct {
	Log       logger.Logger
	Store     UserStore
	Messenger Messenger

	// Admins are granted the admin flag when they register
	Admins []int64

	Now func() time.Time
}

// Register returns the subscriber for sender, creating it when missing.
// created reports whether this call created the user.
func (s *OnboardingSrv) Register(ctx context.Context, from e.Sender, startArg string) (u e.User, created bool, err error) {
	u, err = s.Store.GetUserByTelegramID(ctx, from.ID)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, e.ErrNotFound) {
		return e.User{}, false, fmt.Errorf("getting user: %w", err)
	}

	log := s.Log.With("tg_user_id", from.ID)

	inviter, err := s.findInviter(ctx, from.ID, startArg)
	if err != nil {
		return e.User{}, false, err
	}

	nu := e.NewUser{
		TelegramID: from.ID,
		Username:   from.Username,
		FirstName:  from.FirstName,
		LastName:   from.LastName,
		JoinedAt:   s.now(),
		IsAdmin:    slices.Contains(s.Admins, from.ID),
		Tags:       []string{e.TagNewbie},
	}
	if inviter != nil {
		nu.InvitedBy = &inviter.ID
	}

	u, err = s.Store.InsertUser(ctx, nu)
	if err != nil {
		return e.User{}, false, fmt.Errorf("inserting user: %w", err)
	}

	log.Info("new subscriber", "tg_user_nick", u.Username, "invited", inviter != nil)

	if inviter != nil {
		if err = s.creditInviter(ctx, inviter); err != nil {
			log.Error("crediting inviter", "tg_inviter_id", inviter.TelegramID, "error", err)
		}
	}

	s.notifyAdmins(ctx, &u)

	return u, true, nil
}

func (s *OnboardingSrv) findInviter(ctx context.Context, telegramID int64, startArg string) (*e.User, error) {
	startArg = strings.TrimSpace(startArg)
	if startArg == "" {
		return nil, nil
	}

	inviterID, err := strconv.ParseInt(startArg, 10, 64)
	if err != nil || inviterID == telegramID {
		s.Log.Warn("ignoring start parameter", "tg_user_id", telegramID, "start", startArg)
		return nil, nil
	}

	inviter, err := s.Store.GetUserByTelegramID(ctx, inviterID)
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			s.Log.Warn("inviter not found", "tg_user_id", telegramID, "tg_inviter_id", inviterID)
			return nil, nil
		}
		return nil, fmt.Errorf("getting inviter: %w", err)
	}

	return &inviter, nil
}

func (s *OnboardingSrv) creditInviter(ctx context.Context, inviter *e.User) error {
	if err := s.Store.IncrementReferrals(ctx, inviter.ID); err != nil {
		return err
	}
	return s.Store.AddUserTags(ctx, inviter.ID, e.TagActiveReferrer)
}

func (s *OnboardingSrv) notifyAdmins(ctx context.Context, u *e.User) {
	admins, err := s.Store.ListAdmins(ctx)
	if err != nil {
		s.Log.Error("listing admins", "error", err)
		return
	}

	text := fmt.Sprintf(
		"New subscriber: %s\nID: %d\nUsername: @%s\nJoined at: %s",
		u.FullName(), u.TelegramID, u.Username, u.JoinedAt.Format(time.DateTime),
	)

	for _, admin := range admins {
		if admin.TelegramID == u.TelegramID {
			continue
		}
		if err = s.Messenger.SendText(ctx, admin.TelegramID, text, nil); err != nil {
			s.Log.Error("notifying admin", "tg_admin_id", admin.TelegramID, "error", err)
		}
	}
}

func (s *OnboardingSrv) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
