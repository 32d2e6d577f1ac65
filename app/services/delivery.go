package services

import (
	"context"
	"fmt"
	"time"

	e "nuclight.org/referral-tg-bot/pkg/entities"
	"nuclight.org/referral-tg-bot/pkg/logger"
	"nuclight.org/referral-tg-bot/pkg/metrics"
)

// Message is an outbound message to a subscriber.
type Message struct {
	Kind     e.MessageKind
	Text     string
	Media    e.Media
	Keyboard e.Keyboard

	// Raw skips placeholder substitution
	Raw bool
}

const fileTooLargeText = "The attached file exceeds 50 MB and cannot be sent."

// DeliverySrv renders a message for a subscriber, checks its attachment, sends
// it and records the send in the message log.
type DeliverySrv struct {
	Log       logger.Logger
	Messenger Messenger
	Renderer  Renderer
	Logs      MessageLogStore
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

func (d *DeliverySrv) Send(ctx context.Context, u *e.User, msg Message) error {
	log := d.Log.With("tg_user_id", u.TelegramID, "kind", msg.Kind)

	text := msg.Text
	if !msg.Raw {
		text = d.Renderer.Render(ctx, msg.Text, u)
	}

	var err error
	if msg.Media.IsZero() {
		err = d.Messenger.SendText(ctx, u.TelegramID, text, msg.Keyboard)
	} else {
		err = d.sendMedia(ctx, u, text, msg)
	}
	if err != nil {
		d.Metrics.OutgoingMessages.WithLabelValues(string(msg.Kind), "failed").Inc()
		return err
	}

	d.Metrics.OutgoingMessages.WithLabelValues(string(msg.Kind), "sent").Inc()

	if u.ID != 0 {
		if err = d.Logs.LogMessage(ctx, u.ID, msg.Kind, d.now()); err != nil {
			log.Error("logging sent message", "error", err)
		}
	}

	return nil
}

func (d *DeliverySrv) sendMedia(ctx context.Context, u *e.User, caption string, msg Message) error {
	size, err := d.Messenger.FileSize(ctx, msg.Media.FileID)
	if err != nil {
		return fmt.Errorf("getting file size: %w", err)
	}

	if size > e.MaxFileSize {
		d.Log.Warn("attachment too large to send", "tg_user_id", u.TelegramID, "size", size)
		if err = d.Messenger.SendText(ctx, u.TelegramID, fileTooLargeText, nil); err != nil {
			return fmt.Errorf("sending file size notice: %w", err)
		}
		return e.ErrFileTooLarge
	}

	if err = d.Messenger.SendMedia(ctx, u.TelegramID, msg.Media, caption, msg.Keyboard); err != nil {
		return fmt.Errorf("sending %s: %w", msg.Media.Kind, err)
	}

	return nil
}

func (d *DeliverySrv) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}
