package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/getsentry/sentry-go"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	e "nuclight.org/referral-tg-bot/pkg/entities"
	"nuclight.org/referral-tg-bot/pkg/logger"
	"nuclight.org/referral-tg-bot/pkg/metrics"
	"nuclight.org/referral-tg-bot/pkg/mutex"
)

// maxCallbackData is the platform limit for inline button payloads
const maxCallbackData = 64

type UpdateHandler interface {
	HandleUpdate(ctx context.Context, upd e.Update) error
}

// Client receives updates by long polling and hands them to Handler from a pool
// of workers. Updates of one chat are handled one at a time, in arrival order
// per worker. Client also sends outbound messages.
type Client struct {
	Log        logger.Logger
	APIToken   string
	WorkersNum int
	Handler    UpdateHandler
	Metrics    *metrics.Metrics

	bot   *tgbotapi.BotAPI
	wg    sync.WaitGroup
	chats mutex.KeyedMutex
}

// Connect creates the bot api and fetches the bot identity.
func (c *Client) Connect() (err error) {
	c.bot, err = tgbotapi.NewBotAPI(c.APIToken)
	if err != nil {
		return fmt.Errorf("creating bot api: %w", err)
	}

	c.Log.Info("bot api created", "username", c.bot.Self.UserName)

	return nil
}

// Username is the bot's own handle, known after Connect.
func (c *Client) Username() string {
	return c.bot.Self.UserName
}

func (c *Client) Start(ctx context.Context) error {
	if c.WorkersNum == 0 {
		return fmt.Errorf("workers number must be greater than 0")
	}
	if c.bot == nil {
		return fmt.Errorf("client is not connected")
	}

	updatesConf := tgbotapi.NewUpdate(0)
	updatesConf.Timeout = 60

	updatesChan := c.bot.GetUpdatesChan(updatesConf)

	go func() {
		<-ctx.Done()
		c.bot.StopReceivingUpdates()
	}()

	for i := 0; i < c.WorkersNum; i++ {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.handleUpdatesFromChan(ctx, updatesChan)
		}()
	}

	return nil
}

func (c *Client) Wait() {
	c.wg.Wait()
}

func (c *Client) handleUpdatesFromChan(ctx context.Context, updatesChan tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updatesChan:
			if !ok {
				return
			}
			err := c.handleUpdate(ctx, update)
			if err != nil {
				c.Log.Error("handling update", "tg_update_id", update.UpdateID, "error", err)
				c.Metrics.Errors.WithLabelValues("telegram").Inc()
				sentry.CaptureException(err)
			}
		}
	}
}

func (c *Client) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	log := c.Log.With("tg_update_id", update.UpdateID)

	defer func() {
		if err := recover(); err != nil {
			log.Error("panic", "error", err)
			sentry.CurrentHub().Recover(err)
		}
	}()

	upd, ok := convertUpdate(update)
	if !ok {
		log.Debug("skipping unsupported update")
		return nil
	}

	kind := "message"
	if upd.IsCallback() {
		kind = "callback"
		if _, err := c.bot.Request(tgbotapi.NewCallback(upd.Callback.ID, "")); err != nil {
			log.Warn("answering callback", "error", err)
		}
	}
	c.Metrics.IncomingUpdates.WithLabelValues(kind).Inc()

	log.Info(
		"new update",
		"kind", kind,
		"tg_chat_id", upd.ChatID,
		"tg_user_id", upd.From.ID,
		"tg_user_nick", upd.From.Username,
		"command", upd.Command,
	)

	key := strconv.FormatInt(upd.ChatID, 10)
	c.chats.Lock(key)
	defer c.chats.Unlock(key)

	if err := c.Handler.HandleUpdate(ctx, upd); err != nil {
		return fmt.Errorf("handling %s: %w", kind, err)
	}

	return nil
}

func convertUpdate(update tgbotapi.Update) (e.Update, bool) {
	if cq := update.CallbackQuery; cq != nil {
		if cq.From == nil {
			return e.Update{}, false
		}
		chatID := cq.From.ID
		if cq.Message != nil && cq.Message.Chat != nil {
			chatID = cq.Message.Chat.ID
		}
		return e.Update{
			ChatID:   chatID,
			From:     takeSender(cq.From),
			Callback: &e.Callback{ID: cq.ID, Data: cq.Data},
		}, true
	}

	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return e.Update{}, false
	}

	upd := e.Update{
		ChatID: msg.Chat.ID,
		From:   takeSender(msg.From),
		Text:   msg.Text,
		Media:  takeAttachment(msg),
	}
	if upd.Text == "" {
		upd.Text = msg.Caption
	}
	if msg.IsCommand() {
		upd.Command = msg.Command()
		upd.CommandArgs = msg.CommandArguments()
	}

	return upd, true
}

func takeSender(user *tgbotapi.User) e.Sender {
	return e.Sender{
		ID:        user.ID,
		Username:  user.UserName,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}
}

func takeAttachment(msg *tgbotapi.Message) *e.Attachment {
	switch {
	case len(msg.Photo) > 0:
		// sizes are ordered, the last one is the original
		p := msg.Photo[len(msg.Photo)-1]
		return &e.Attachment{Media: e.Media{Kind: e.MediaKindPhoto, FileID: p.FileID}, Size: int64(p.FileSize)}
	case msg.Video != nil:
		return &e.Attachment{Media: e.Media{Kind: e.MediaKindVideo, FileID: msg.Video.FileID}, Size: int64(msg.Video.FileSize)}
	case msg.Audio != nil:
		return &e.Attachment{Media: e.Media{Kind: e.MediaKindAudio, FileID: msg.Audio.FileID}, Size: int64(msg.Audio.FileSize)}
	case msg.Document != nil:
		return &e.Attachment{Media: e.Media{Kind: e.MediaKindDocument, FileID: msg.Document.FileID}, Size: int64(msg.Document.FileSize)}
	default:
		return nil
	}
}

func (c *Client) SendText(_ context.Context, chatID int64, text string, kb e.Keyboard) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if markup, ok := c.takeMarkup(kb); ok {
		msg.ReplyMarkup = markup
	}

	_, err := c.bot.Send(msg)
	return err
}

func (c *Client) SendMedia(_ context.Context, chatID int64, media e.Media, caption string, kb e.Keyboard) error {
	file := tgbotapi.FileID(media.FileID)
	markup, hasMarkup := c.takeMarkup(kb)

	var conf tgbotapi.Chattable
	switch media.Kind {
	case e.MediaKindPhoto:
		m := tgbotapi.NewPhoto(chatID, file)
		m.Caption = caption
		if hasMarkup {
			m.ReplyMarkup = markup
		}
		conf = m
	case e.MediaKindVideo:
		m := tgbotapi.NewVideo(chatID, file)
		m.Caption = caption
		if hasMarkup {
			m.ReplyMarkup = markup
		}
		conf = m
	case e.MediaKindAudio:
		m := tgbotapi.NewAudio(chatID, file)
		m.Caption = caption
		if hasMarkup {
			m.ReplyMarkup = markup
		}
		conf = m
	case e.MediaKindDocument:
		m := tgbotapi.NewDocument(chatID, file)
		m.Caption = caption
		if hasMarkup {
			m.ReplyMarkup = markup
		}
		conf = m
	default:
		return fmt.Errorf("unknown media kind %q", media.Kind)
	}

	_, err := c.bot.Send(conf)
	return err
}

// SendDocument uploads a local file.
func (c *Client) SendDocument(_ context.Context, chatID int64, path, caption string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(path))
	doc.Caption = caption

	_, err := c.bot.Send(doc)
	return err
}

// FileSize asks the platform for the size of a stored file. The Bot API does
// not describe files over 20 MB; those report 0 and rely on the upload check.
func (c *Client) FileSize(_ context.Context, fileID string) (int64, error) {
	file, err := c.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		if strings.Contains(err.Error(), "file is too big") {
			return 0, nil
		}
		return 0, fmt.Errorf("getting file: %w", err)
	}
	return int64(file.FileSize), nil
}

func (c *Client) takeMarkup(kb e.Keyboard) (tgbotapi.InlineKeyboardMarkup, bool) {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, b := range kb {
		if len(b.Data) > maxCallbackData {
			c.Log.Warn("skipping button with oversized callback data", "text", b.Text, "data", b.Data)
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data)))
	}
	if len(rows) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...), true
}
