// Package controller turns inbound chat updates into replies, wizard steps and
// admin actions.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"nuclight.org/referral-tg-bot/app/services"
	"nuclight.org/referral-tg-bot/app/session"
	e "nuclight.org/referral-tg-bot/pkg/entities"
	"nuclight.org/referral-tg-bot/pkg/logger"
)

type Store interface {
	GetUserByTelegramID(ctx context.Context, telegramID int64) (e.User, error)
	ListUsers(ctx context.Context) ([]e.User, error)
	ListTags(ctx context.Context) ([]string, error)
	SetUserLeadMagnet(ctx context.Context, telegramID, leadMagnetID int64) error

	GetTemplateByType(ctx context.Context, templateType string) (e.Template, error)
	ListTemplates(ctx context.Context) ([]e.Template, error)
	InsertTemplate(ctx context.Context, t e.Template) (int64, error)
	UpdateTemplate(ctx context.Context, templateID int64, content string, media e.Media) error

	InsertBroadcast(ctx context.Context, b e.Broadcast) (int64, error)

	InsertAutoresponder(ctx context.Context, ar e.Autoresponder) (int64, error)
	UpdateAutoresponder(ctx context.Context, ar e.Autoresponder) error
	DeleteAutoresponder(ctx context.Context, id int64) error
	GetAutoresponder(ctx context.Context, id int64) (e.Autoresponder, error)
	ListAutoresponders(ctx context.Context) ([]e.Autoresponder, error)

	InsertLeadMagnet(ctx context.Context, lm e.LeadMagnet) (int64, error)
	UpdateLeadMagnet(ctx context.Context, lm e.LeadMagnet) error
	DeleteLeadMagnet(ctx context.Context, id int64) error
	GetLeadMagnet(ctx context.Context, id int64) (e.LeadMagnet, error)
	ListLeadMagnets(ctx context.Context) ([]e.LeadMagnet, error)

	SetConfigValue(ctx context.Context, name, value string) error

	MarkLatestOpened(ctx context.Context, telegramID int64, at time.Time) error
	MarkLatestResponded(ctx context.Context, telegramID int64, at time.Time) error

	AddUserFile(ctx context.Context, userID, size int64, uploadedAt time.Time) error
	UserStorageSize(ctx context.Context, userID int64) (int64, error)

	Summary(ctx context.Context, from, to time.Time) (e.Summary, error)
}

// Messenger sends service replies that are neither rendered nor logged.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string, kb e.Keyboard) error
	SendDocument(ctx context.Context, chatID int64, path, caption string) error
}

type Onboarder interface {
	Register(ctx context.Context, from e.Sender, startArg string) (e.User, bool, error)
}

type RewardClaimer interface {
	Claim(ctx context.Context, userID int64) (services.Decision, error)
}

type Broadcaster interface {
	SendToTag(ctx context.Context, tag, content string, media e.Media) (services.BroadcastReport, error)
}

type Exporter interface {
	Export(ctx context.Context) (string, error)
}

// Links knows the bot identity and the referral threshold.
type Links interface {
	InviteURL(telegramID int64) string
	RequiredReferrals(ctx context.Context) (int, error)
}

// Handler processes updates. Updates of one chat must not be handled
// concurrently; the transport serializes them.
type Handler struct {
	Log        logger.Logger
	Store      Store
	Sessions   session.Store
	Messenger  Messenger
	Sender     services.Sender
	Onboarding Onboarder
	Rewards    RewardClaimer
	Broadcasts Broadcaster
	Exporter   Exporter
	Links      Links

	// Location is used to read admin-entered schedule times
	Location *time.Location

	Now func() time.Time
}

type request struct {
	upd  e.Update
	user e.User
	cb   callback
}

func (r *request) chatID() int64 {
	return r.upd.ChatID
}

func (h *Handler) HandleUpdate(ctx context.Context, upd e.Update) error {
	if upd.IsCallback() {
		if err := h.Store.MarkLatestOpened(ctx, upd.From.ID, h.now()); err != nil {
			h.Log.Warn("marking message opened", "tg_user_id", upd.From.ID, "error", err)
		}
		return h.handleCallback(ctx, upd)
	}

	if upd.Command != "" {
		return h.handleCommand(ctx, upd)
	}

	if err := h.Store.MarkLatestResponded(ctx, upd.From.ID, h.now()); err != nil {
		h.Log.Warn("marking message responded", "tg_user_id", upd.From.ID, "error", err)
	}

	return h.handleInput(ctx, upd)
}

func (h *Handler) handleCommand(ctx context.Context, upd e.Update) error {
	if upd.Command == "start" {
		return h.start(ctx, upd)
	}

	user, ok, err := h.loadUser(ctx, upd)
	if err != nil || !ok {
		return err
	}

	req := &request{upd: upd, user: user}

	switch upd.Command {
	case "help":
		text := textHelp
		if user.IsAdmin {
			text += textHelpAdmin
		}
		return h.reply(ctx, req, text)
	case "invite":
		return h.sendInviteLink(ctx, req)
	case "gift":
		return h.claimGift(ctx, req)
	case "analytics":
		if !user.IsAdmin {
			return h.reply(ctx, req, textNotAdmin)
		}
		return h.showAnalytics(ctx, req)
	case "cancel":
		return h.cancel(ctx, req)
	default:
		return h.reply(ctx, req, textUseHelp)
	}
}

func (h *Handler) handleCallback(ctx context.Context, upd e.Update) error {
	cb := decode(upd.Callback.Data)

	rt, ok := callbackRoutes[cb.key()]
	if !ok {
		h.Log.Warn("unknown callback", "data", upd.Callback.Data, "tg_user_id", upd.From.ID)
		return nil
	}

	user, ok, err := h.loadUser(ctx, upd)
	if err != nil || !ok {
		return err
	}

	req := &request{upd: upd, user: user, cb: cb}

	if rt.admin && !user.IsAdmin {
		h.Log.Warn("non-admin requested admin action", "tg_user_id", user.TelegramID, "action", cb.action)
		return h.reply(ctx, req, textNotAdmin)
	}

	return rt.fn(h, ctx, req)
}

func (h *Handler) handleInput(ctx context.Context, upd e.Update) error {
	sess, err := h.Sessions.Get(ctx, upd.ChatID)
	if err != nil {
		return fmt.Errorf("getting session: %w", err)
	}

	user, ok, err := h.loadUser(ctx, upd)
	if err != nil || !ok {
		return err
	}

	req := &request{upd: upd, user: user}

	if sess.IsIdle() {
		return h.reply(ctx, req, textUseHelp)
	}

	step, ok := wizardSteps[sess.Step]
	if !ok {
		h.Log.Error("unknown wizard step, resetting", "step", sess.Step, "tg_chat_id", upd.ChatID)
		return h.Sessions.Clear(ctx, upd.ChatID)
	}

	// wizards are admin-only
	if !user.IsAdmin {
		if err = h.Sessions.Clear(ctx, upd.ChatID); err != nil {
			return fmt.Errorf("clearing session: %w", err)
		}
		return h.reply(ctx, req, textNotAdmin)
	}

	return step(h, ctx, req, sess)
}

func (h *Handler) cancel(ctx context.Context, req *request) error {
	sess, err := h.Sessions.Get(ctx, req.chatID())
	if err != nil {
		return fmt.Errorf("getting session: %w", err)
	}
	if sess.IsIdle() {
		return h.reply(ctx, req, textNothingToCancel)
	}
	if err = h.Sessions.Clear(ctx, req.chatID()); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return h.reply(ctx, req, textCancelled)
}

// loadUser reads the sender. Unknown senders are asked to /start first and
// ok is false.
func (h *Handler) loadUser(ctx context.Context, upd e.Update) (e.User, bool, error) {
	user, err := h.Store.GetUserByTelegramID(ctx, upd.From.ID)
	if err == nil {
		return user, true, nil
	}
	if !errors.Is(err, e.ErrNotFound) {
		return e.User{}, false, fmt.Errorf("getting user: %w", err)
	}

	if err = h.Messenger.SendText(ctx, upd.ChatID, textStartFirst, nil); err != nil {
		return e.User{}, false, fmt.Errorf("replying: %w", err)
	}
	return e.User{}, false, nil
}

func (h *Handler) reply(ctx context.Context, req *request, text string, buttons ...e.Button) error {
	if err := h.Messenger.SendText(ctx, req.chatID(), text, buttons); err != nil {
		return fmt.Errorf("replying: %w", err)
	}
	return nil
}

func (h *Handler) replyf(ctx context.Context, req *request, format string, args ...any) error {
	return h.reply(ctx, req, fmt.Sprintf(format, args...))
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Handler) location() *time.Location {
	if h.Location != nil {
		return h.Location
	}
	return time.UTC
}

func isNo(text string) bool {
	return strings.EqualFold(strings.TrimSpace(text), "no")
}
