package controller

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"nuclight.org/referral-tg-bot/app/session"
	e "nuclight.org/referral-tg-bot/pkg/entities"
)

const scheduleLayout = "2006-01-02 15:04"

type stepFunc func(h *Handler, ctx context.Context, req *request, sess session.Session) error

var wizardSteps = map[session.Step]stepFunc{
	session.StepEditingTemplate:             (*Handler).stepTemplateContent,
	session.StepEditingTemplateFile:         (*Handler).stepTemplateFile,
	session.StepSettingSubscribers:          (*Handler).stepThreshold,
	session.StepAddingTemplate:              (*Handler).stepTemplateType,
	session.StepAddingTemplateContent:       (*Handler).stepTemplateContent,
	session.StepAddingTemplateFile:          (*Handler).stepTemplateFile,
	session.StepSchedulingBroadcast:         (*Handler).stepScheduleTime,
	session.StepAddingAutoresponder:         (*Handler).stepAutoresponderContent,
	session.StepAddingAutoresponderDelay:    (*Handler).stepAutoresponderDelay,
	session.StepAddingAutoresponderMedia:    (*Handler).stepAutoresponderMedia,
	session.StepAddingLeadMagnetName:        (*Handler).stepLeadMagnetName,
	session.StepAddingLeadMagnetDescription: (*Handler).stepLeadMagnetDescription,
	session.StepAddingLeadMagnetImage:       (*Handler).stepLeadMagnetImage,
}

// nextStep stores the session and sends the prompt of its step.
func (h *Handler) nextStep(ctx context.Context, req *request, sess session.Session, prompt string) error {
	if err := h.Sessions.Set(ctx, req.chatID(), sess); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return h.reply(ctx, req, prompt)
}

// finish ends the wizard and confirms the result.
func (h *Handler) finish(ctx context.Context, req *request, text string) error {
	if err := h.Sessions.Clear(ctx, req.chatID()); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return h.reply(ctx, req, text)
}

// brokenSession resets a session whose draft is missing.
func (h *Handler) brokenSession(ctx context.Context, req *request, sess session.Session) error {
	h.Log.Error("session draft is missing, resetting", "step", sess.Step, "tg_chat_id", req.chatID())
	if err := h.Sessions.Clear(ctx, req.chatID()); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return h.reply(ctx, req, textError)
}

// takeText returns the trimmed answer. Empty answers are re-prompted.
func (h *Handler) takeText(ctx context.Context, req *request) (string, bool, error) {
	text := strings.TrimSpace(req.upd.Text)
	if text == "" {
		return "", false, h.reply(ctx, req, textEmptyAnswer)
	}
	return text, true, nil
}

// takeMedia reads the answer to a media prompt: an attachment, "no" for none,
// or a text taken as a photo file id. Attachments over the size limit or the
// uploader's quota are rejected with ok false and the step is repeated.
func (h *Handler) takeMedia(ctx context.Context, req *request, photoOnly bool) (media e.Media, size int64, ok bool, err error) {
	att := req.upd.Media
	if att == nil {
		text := strings.TrimSpace(req.upd.Text)
		switch {
		case text == "":
			return e.Media{}, 0, false, h.reply(ctx, req, textEmptyAnswer)
		case isNo(text):
			return e.Media{}, 0, true, nil
		default:
			return e.Media{Kind: e.MediaKindPhoto, FileID: text}, 0, true, nil
		}
	}

	if photoOnly && att.Kind != e.MediaKindPhoto {
		return e.Media{}, 0, false, h.reply(ctx, req, textSendPhoto)
	}

	used, err := h.Store.UserStorageSize(ctx, req.user.ID)
	if err != nil {
		return e.Media{}, 0, false, fmt.Errorf("getting storage size: %w", err)
	}

	if err = e.CheckUpload(att.Size, used); err != nil {
		h.Log.Warn("upload rejected", "tg_user_id", req.user.TelegramID, "size", att.Size, "used", used, "error", err)
		text := textQuotaExceeded
		if errors.Is(err, e.ErrFileTooLarge) {
			text = textFileTooLarge
		}
		return e.Media{}, 0, false, h.reply(ctx, req, text)
	}

	return att.Media, att.Size, true, nil
}

func (h *Handler) recordUpload(ctx context.Context, req *request, size int64) {
	if size <= 0 {
		return
	}
	if err := h.Store.AddUserFile(ctx, req.user.ID, size, h.now()); err != nil {
		h.Log.Error("recording upload", "tg_user_id", req.user.TelegramID, "error", err)
	}
}

func (h *Handler) askThreshold(ctx context.Context, req *request) error {
	return h.nextStep(ctx, req, session.Session{Step: session.StepSettingSubscribers}, textEnterThreshold)
}

func (h *Handler) stepThreshold(ctx context.Context, req *request, _ session.Session) error {
	n, err := strconv.Atoi(strings.TrimSpace(req.upd.Text))
	if err != nil || n <= 0 {
		return h.reply(ctx, req, textInvalidNumber)
	}

	if err = h.Store.SetConfigValue(ctx, e.ConfigRequiredReferrals, strconv.Itoa(n)); err != nil {
		return fmt.Errorf("setting required referrals: %w", err)
	}

	h.Log.Info("required referrals changed", "value", n, "tg_user_id", req.user.TelegramID)

	return h.finish(ctx, req, fmt.Sprintf(textThresholdSet, n))
}

func (h *Handler) editTemplate(ctx context.Context, req *request) error {
	templateType := req.cb.args[0]

	tpl, err := h.Store.GetTemplateByType(ctx, templateType)
	switch {
	case err == nil:
		return h.nextStep(ctx, req, session.Session{
			Step:     session.StepEditingTemplate,
			Template: &session.TemplateDraft{ID: tpl.ID, Type: tpl.Type},
		}, fmt.Sprintf(textTemplateCurrent, tpl.Content, tpl.Type))
	case errors.Is(err, e.ErrNotFound):
		return h.nextStep(ctx, req, session.Session{
			Step:     session.StepEditingTemplate,
			Template: &session.TemplateDraft{Type: templateType},
		}, fmt.Sprintf(textTemplateNew, templateType))
	default:
		return fmt.Errorf("getting template: %w", err)
	}
}

func (h *Handler) addTemplate(ctx context.Context, req *request) error {
	return h.nextStep(ctx, req, session.Session{
		Step:     session.StepAddingTemplate,
		Template: &session.TemplateDraft{},
	}, textTemplateType)
}

func (h *Handler) stepTemplateType(ctx context.Context, req *request, sess session.Session) error {
	if sess.Template == nil {
		return h.brokenSession(ctx, req, sess)
	}

	templateType, ok, err := h.takeText(ctx, req)
	if err != nil || !ok {
		return err
	}

	_, err = h.Store.GetTemplateByType(ctx, templateType)
	switch {
	case err == nil:
		return h.replyf(ctx, req, textTemplateExists, templateType)
	case !errors.Is(err, e.ErrNotFound):
		return fmt.Errorf("getting template: %w", err)
	}

	sess.Template.Type = templateType
	sess.Step = session.StepAddingTemplateContent

	return h.nextStep(ctx, req, sess, fmt.Sprintf(textTemplateContent, templateType))
}

// stepTemplateContent serves both the add and the edit template wizards.
func (h *Handler) stepTemplateContent(ctx context.Context, req *request, sess session.Session) error {
	if sess.Template == nil {
		return h.brokenSession(ctx, req, sess)
	}

	content, ok, err := h.takeText(ctx, req)
	if err != nil || !ok {
		return err
	}

	sess.Template.Content = content
	if sess.Step == session.StepEditingTemplate {
		sess.Step = session.StepEditingTemplateFile
	} else {
		sess.Step = session.StepAddingTemplateFile
	}

	return h.nextStep(ctx, req, sess, textMediaPrompt)
}

// stepTemplateFile writes content and media of a template together.
func (h *Handler) stepTemplateFile(ctx context.Context, req *request, sess session.Session) error {
	draft := sess.Template
	if draft == nil {
		return h.brokenSession(ctx, req, sess)
	}

	media, size, ok, err := h.takeMedia(ctx, req, false)
	if err != nil || !ok {
		return err
	}

	text := fmt.Sprintf(textTemplateUpdated, draft.Type)
	if draft.ID != 0 {
		err = h.Store.UpdateTemplate(ctx, draft.ID, draft.Content, media)
	} else {
		_, err = h.Store.InsertTemplate(ctx, e.Template{Type: draft.Type, Content: draft.Content, Media: media})
		if sess.Step == session.StepAddingTemplateFile {
			text = fmt.Sprintf(textTemplateAdded, draft.Type)
		}
	}
	if err != nil {
		return fmt.Errorf("saving template %q: %w", draft.Type, err)
	}

	h.recordUpload(ctx, req, size)
	h.Log.Info("template saved", "template_type", draft.Type, "tg_user_id", req.user.TelegramID)

	return h.finish(ctx, req, text)
}

func (h *Handler) askScheduleTime(ctx context.Context, req *request) error {
	tag, tpl, ok, err := h.broadcastTemplate(ctx, req)
	if err != nil || !ok {
		return err
	}

	return h.nextStep(ctx, req, session.Session{
		Step:      session.StepSchedulingBroadcast,
		Broadcast: &session.BroadcastDraft{Tag: tag, TemplateID: tpl.ID},
	}, textEnterScheduleTime)
}

func (h *Handler) stepScheduleTime(ctx context.Context, req *request, sess session.Session) error {
	draft := sess.Broadcast
	if draft == nil {
		return h.brokenSession(ctx, req, sess)
	}

	at, err := time.ParseInLocation(scheduleLayout, strings.TrimSpace(req.upd.Text), h.location())
	if err != nil {
		return h.reply(ctx, req, textInvalidTime)
	}

	id, err := h.Store.InsertBroadcast(ctx, e.Broadcast{
		TemplateID:    draft.TemplateID,
		Tag:           draft.Tag,
		ScheduledTime: at,
		Status:        e.BroadcastScheduled,
	})
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return h.finish(ctx, req, textTemplateNotFound)
		}
		return fmt.Errorf("inserting broadcast: %w", err)
	}

	h.Log.Info("broadcast scheduled", "broadcast_id", id, "tag", draft.Tag, "at", at)

	return h.finish(ctx, req, fmt.Sprintf(textBroadcastScheduled, at.Format(scheduleLayout)))
}

func (h *Handler) addAutoresponder(ctx context.Context, req *request) error {
	return h.nextStep(ctx, req, session.Session{
		Step:          session.StepAddingAutoresponder,
		Autoresponder: &session.AutoresponderDraft{},
	}, textEnterARContent)
}

func (h *Handler) editAutoresponder(ctx context.Context, req *request) error {
	id, err := req.cb.id(0)
	if err != nil {
		h.Log.Warn("bad autoresponder id", "data", req.upd.Callback.Data)
		return nil
	}

	ar, err := h.Store.GetAutoresponder(ctx, id)
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return h.reply(ctx, req, textAutoresponderMissing)
		}
		return fmt.Errorf("getting autoresponder: %w", err)
	}

	return h.nextStep(ctx, req, session.Session{
		Step:          session.StepAddingAutoresponder,
		Autoresponder: &session.AutoresponderDraft{ID: ar.ID},
	}, "Current text:\n\n"+ar.Content+"\n\n"+textEnterARContent)
}

func (h *Handler) stepAutoresponderContent(ctx context.Context, req *request, sess session.Session) error {
	if sess.Autoresponder == nil {
		return h.brokenSession(ctx, req, sess)
	}

	content, ok, err := h.takeText(ctx, req)
	if err != nil || !ok {
		return err
	}

	sess.Autoresponder.Content = content
	sess.Step = session.StepAddingAutoresponderDelay

	return h.nextStep(ctx, req, sess, textEnterARDelay)
}

func (h *Handler) stepAutoresponderDelay(ctx context.Context, req *request, sess session.Session) error {
	if sess.Autoresponder == nil {
		return h.brokenSession(ctx, req, sess)
	}

	hours, err := strconv.Atoi(strings.TrimSpace(req.upd.Text))
	if err != nil || hours < 0 {
		return h.reply(ctx, req, textInvalidDelay)
	}

	sess.Autoresponder.Delay = time.Duration(hours) * time.Hour
	sess.Step = session.StepAddingAutoresponderMedia

	return h.nextStep(ctx, req, sess, textMediaPrompt)
}

func (h *Handler) stepAutoresponderMedia(ctx context.Context, req *request, sess session.Session) error {
	draft := sess.Autoresponder
	if draft == nil {
		return h.brokenSession(ctx, req, sess)
	}

	media, size, ok, err := h.takeMedia(ctx, req, false)
	if err != nil || !ok {
		return err
	}

	ar := e.Autoresponder{
		ID:      draft.ID,
		Content: draft.Content,
		Delay:   draft.Delay,
		Media:   media,
	}

	text := textAutoresponderAdded
	if ar.ID != 0 {
		text = textAutoresponderUpdated
		err = h.Store.UpdateAutoresponder(ctx, ar)
	} else {
		ar.ID, err = h.Store.InsertAutoresponder(ctx, ar)
	}
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return h.finish(ctx, req, textAutoresponderMissing)
		}
		return fmt.Errorf("saving autoresponder: %w", err)
	}

	h.recordUpload(ctx, req, size)
	h.Log.Info("autoresponder saved", "autoresponder_id", ar.ID, "delay", ar.Delay)

	return h.finish(ctx, req, text)
}

func (h *Handler) addLeadMagnet(ctx context.Context, req *request) error {
	return h.nextStep(ctx, req, session.Session{
		Step:       session.StepAddingLeadMagnetName,
		LeadMagnet: &session.LeadMagnetDraft{},
	}, textEnterLMName)
}

func (h *Handler) editLeadMagnet(ctx context.Context, req *request) error {
	id, err := req.cb.id(0)
	if err != nil {
		h.Log.Warn("bad lead magnet id", "data", req.upd.Callback.Data)
		return nil
	}

	lm, err := h.Store.GetLeadMagnet(ctx, id)
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return h.reply(ctx, req, textLeadMagnetNotFound)
		}
		return fmt.Errorf("getting lead magnet: %w", err)
	}

	return h.nextStep(ctx, req, session.Session{
		Step:       session.StepAddingLeadMagnetName,
		LeadMagnet: &session.LeadMagnetDraft{ID: lm.ID},
	}, "Current name: "+lm.Name+"\n\n"+textEnterLMName)
}

func (h *Handler) stepLeadMagnetName(ctx context.Context, req *request, sess session.Session) error {
	if sess.LeadMagnet == nil {
		return h.brokenSession(ctx, req, sess)
	}

	name, ok, err := h.takeText(ctx, req)
	if err != nil || !ok {
		return err
	}

	sess.LeadMagnet.Name = name
	sess.Step = session.StepAddingLeadMagnetDescription

	return h.nextStep(ctx, req, sess, textEnterLMDescription)
}

func (h *Handler) stepLeadMagnetDescription(ctx context.Context, req *request, sess session.Session) error {
	if sess.LeadMagnet == nil {
		return h.brokenSession(ctx, req, sess)
	}

	description, ok, err := h.takeText(ctx, req)
	if err != nil || !ok {
		return err
	}

	sess.LeadMagnet.Description = description
	sess.Step = session.StepAddingLeadMagnetImage

	return h.nextStep(ctx, req, sess, textImagePrompt)
}

func (h *Handler) stepLeadMagnetImage(ctx context.Context, req *request, sess session.Session) error {
	draft := sess.LeadMagnet
	if draft == nil {
		return h.brokenSession(ctx, req, sess)
	}

	image, size, ok, err := h.takeMedia(ctx, req, true)
	if err != nil || !ok {
		return err
	}

	lm := e.LeadMagnet{
		ID:          draft.ID,
		Name:        draft.Name,
		Description: draft.Description,
		ImageID:     image.FileID,
	}

	text := textLeadMagnetAdded
	if lm.ID != 0 {
		text = textLeadMagnetUpdated
		err = h.Store.UpdateLeadMagnet(ctx, lm)
	} else {
		lm.ID, err = h.Store.InsertLeadMagnet(ctx, lm)
	}
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return h.finish(ctx, req, textLeadMagnetNotFound)
		}
		return fmt.Errorf("saving lead magnet: %w", err)
	}

	h.recordUpload(ctx, req, size)
	h.Log.Info("lead magnet saved", "lead_magnet_id", lm.ID, "name", lm.Name)

	return h.finish(ctx, req, text)
}
