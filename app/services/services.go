// Package services holds the bot's business rules: onboarding with referral
// credit, templated delivery, and the lead magnet reward.
package services

import (
	"context"
	"time"

	e "nuclight.org/referral-tg-bot/pkg/entities"
)

// Messenger sends outbound messages through the chat platform.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string, kb e.Keyboard) error
	SendMedia(ctx context.Context, chatID int64, media e.Media, caption string, kb e.Keyboard) error
	FileSize(ctx context.Context, fileID string) (int64, error)
}

type Renderer interface {
	Render(ctx context.Context, tpl string, u *e.User) string
}

type ThresholdReader interface {
	RequiredReferrals(ctx context.Context) (int, error)
}

type MessageLogStore interface {
	LogMessage(ctx context.Context, userID int64, kind e.MessageKind, sentAt time.Time) error
}

type UserStore interface {
	GetUserByTelegramID(ctx context.Context, telegramID int64) (e.User, error)
	InsertUser(ctx context.Context, nu e.NewUser) (e.User, error)
	IncrementReferrals(ctx context.Context, userID int64) error
	AddUserTags(ctx context.Context, userID int64, tags ...string) error
	ListAdmins(ctx context.Context) ([]e.User, error)
}

type RewardStore interface {
	GetUserByID(ctx context.Context, userID int64) (e.User, error)
	ListUsers(ctx context.Context) ([]e.User, error)
	GetLeadMagnet(ctx context.Context, id int64) (e.LeadMagnet, error)
	MarkGiftReceived(ctx context.Context, userID int64, required int) (bool, error)
	AddUserTags(ctx context.Context, userID int64, tags ...string) error
}

// Sender delivers a message to a subscriber.
type Sender interface {
	Send(ctx context.Context, u *e.User, msg Message) error
}
