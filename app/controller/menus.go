package controller

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"nuclight.org/referral-tg-bot/app/services"
	e "nuclight.org/referral-tg-bot/pkg/entities"
)

const (
	analyticsPeriod      = 7 * 24 * time.Hour
	maxListedSubscribers = 50
)

func (h *Handler) start(ctx context.Context, upd e.Update) error {
	user, _, err := h.Onboarding.Register(ctx, upd.From, upd.CommandArgs)
	if err != nil {
		return fmt.Errorf("registering user: %w", err)
	}

	text, media := textWelcome, e.Media{}
	tpl, err := h.Store.GetTemplateByType(ctx, e.TemplateWelcome)
	switch {
	case err == nil:
		text, media = tpl.Content, tpl.Media
	case !errors.Is(err, e.ErrNotFound):
		h.Log.Error("getting welcome template", "error", err)
	}

	kb := e.Keyboard{
		{Text: btnInviteLink, Data: encode(actInviteLink)},
		{Text: btnGetGift, Data: encode(actGetGift)},
	}
	if user.IsAdmin {
		kb = append(kb, e.Button{Text: btnAdminPanel, Data: encode(actAdminPanel)})
	}

	err = h.Sender.Send(ctx, &user, services.Message{
		Kind:     e.MessageKindWelcome,
		Text:     text,
		Media:    media,
		Keyboard: kb,
	})
	if err != nil && !errors.Is(err, e.ErrFileTooLarge) {
		return fmt.Errorf("sending welcome: %w", err)
	}

	return h.showLeadMagnets(ctx, &request{upd: upd, user: user})
}

// showLeadMagnets offers the lead magnets the user has not received yet.
func (h *Handler) showLeadMagnets(ctx context.Context, req *request) error {
	all, err := h.Store.ListLeadMagnets(ctx)
	if err != nil {
		return fmt.Errorf("listing lead magnets: %w", err)
	}
	if len(all) == 0 {
		return nil
	}

	var kb e.Keyboard
	for _, lm := range all {
		if req.user.HasTag(e.RewardTag(lm.ID)) {
			continue
		}
		kb = append(kb, e.Button{Text: lm.Name, Data: encodeID(actSelectLeadMagnet, lm.ID)})
	}

	if len(kb) == 0 {
		return h.reply(ctx, req, textAllLeadMagnetsTaken)
	}

	return h.reply(ctx, req, textChooseLeadMagnet, kb...)
}

func (h *Handler) sendInviteLink(ctx context.Context, req *request) error {
	return h.replyf(ctx, req, textInviteLink, h.Links.InviteURL(req.user.TelegramID))
}

func (h *Handler) selectLeadMagnet(ctx context.Context, req *request) error {
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

	if err = h.Store.SetUserLeadMagnet(ctx, req.user.TelegramID, lm.ID); err != nil {
		return fmt.Errorf("setting user lead magnet: %w", err)
	}

	required, err := h.Links.RequiredReferrals(ctx)
	if err != nil {
		return fmt.Errorf("reading required referrals: %w", err)
	}

	err = h.Sender.Send(ctx, &req.user, services.Message{
		Kind:  e.MessageKindService,
		Text:  fmt.Sprintf(textLeadMagnetPicked, lm.Name, required),
		Media: lm.Image(),
		Raw:   true,
	})
	if err != nil && !errors.Is(err, e.ErrFileTooLarge) {
		return fmt.Errorf("confirming lead magnet: %w", err)
	}

	return nil
}

func (h *Handler) claimGift(ctx context.Context, req *request) error {
	d, err := h.Rewards.Claim(ctx, req.user.ID)
	switch {
	case errors.Is(err, services.ErrNoLeadMagnet):
		if err = h.reply(ctx, req, textPickLeadMagnetFirst); err != nil {
			return err
		}
		return h.showLeadMagnets(ctx, req)
	case errors.Is(err, e.ErrNotFound):
		return h.reply(ctx, req, textLeadMagnetNotFound)
	case err != nil:
		return fmt.Errorf("claiming gift: %w", err)
	}

	switch d.Verdict {
	case services.VerdictNeedMore:
		return h.replyf(ctx, req, textNeedMoreReferrals, d.Remaining)
	case services.VerdictAlreadyReceived:
		return h.reply(ctx, req, textAlreadyReceivedGift)
	default:
		return nil
	}
}

func (h *Handler) showAdminPanel(ctx context.Context, req *request) error {
	return h.reply(ctx, req, textAdminPanel,
		e.Button{Text: btnSetSubscribers, Data: encode(actSetSubscribers)},
		e.Button{Text: btnMessageManager, Data: encode(actMessageManager)},
		e.Button{Text: btnSubscribers, Data: encode(actSubscribers)},
		e.Button{Text: btnInstantBroadcast, Data: encode(actInstantBroadcast)},
		e.Button{Text: btnScheduledBroadcast, Data: encode(actScheduledBroadcast)},
		e.Button{Text: btnAutoresponders, Data: encode(actAutoresponders)},
		e.Button{Text: btnLeadMagnets, Data: encode(actLeadMagnets)},
		e.Button{Text: btnAnalytics, Data: encode(actAnalytics)},
	)
}

// fixedTemplates are always listed in the message manager.
var fixedTemplates = []string{
	e.TemplateWelcome,
	e.TemplateNewbie,
	e.TemplateActiveReferral,
	e.TemplateReceivedGift,
	e.TemplateOneRefToGift,
}

func (h *Handler) showMessageManager(ctx context.Context, req *request) error {
	templates, err := h.Store.ListTemplates(ctx)
	if err != nil {
		return fmt.Errorf("listing templates: %w", err)
	}

	types := append([]string(nil), fixedTemplates...)
	for _, t := range templates {
		if !slices.Contains(types, t.Type) {
			types = append(types, t.Type)
		}
	}

	kb := make(e.Keyboard, 0, len(types)+2)
	for _, t := range types {
		kb = append(kb, e.Button{Text: t, Data: encode(actEditTemplate, t)})
	}
	kb = append(kb,
		e.Button{Text: btnAddTemplate, Data: encode(actAddTemplate)},
		e.Button{Text: btnBack, Data: encode(actAdminPanel)},
	)

	return h.reply(ctx, req, textMessageManager, kb...)
}

func (h *Handler) showSubscribers(ctx context.Context, req *request) error {
	users, err := h.Store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("listing users: %w", err)
	}
	if len(users) == 0 {
		return h.reply(ctx, req, textNoSubscribers)
	}

	listed := users
	if len(listed) > maxListedSubscribers {
		listed = listed[:maxListedSubscribers]
	}

	entries := make([]string, 0, len(listed))
	for _, u := range listed {
		entries = append(entries, fmt.Sprintf(
			"ID: %d\nUsername: %s\nName: %s\nJoined at: %s\nTags: %s",
			u.ID, u.Username, u.FullName(), u.JoinedAt.In(h.location()).Format(time.DateTime), strings.Join(u.Tags, ", "),
		))
	}

	text := fmt.Sprintf(textSubscribers, strings.Join(entries, "\n\n"))
	if rest := len(users) - len(listed); rest > 0 {
		text += fmt.Sprintf(textMoreSubscribers, rest)
	}

	if err = h.reply(ctx, req, text); err != nil {
		return err
	}

	return h.reply(ctx, req, textExportOffer, e.Button{Text: btnExport, Data: encode(actExport)})
}

func (h *Handler) exportSubscribers(ctx context.Context, req *request) error {
	path, err := h.Exporter.Export(ctx)
	if err != nil {
		return fmt.Errorf("exporting subscribers: %w", err)
	}
	defer func() {
		if err := os.Remove(path); err != nil {
			h.Log.Warn("removing export file", "path", path, "error", err)
		}
	}()

	if err = h.Messenger.SendDocument(ctx, req.chatID(), path, ""); err != nil {
		return fmt.Errorf("sending export: %w", err)
	}

	return nil
}

// chooseBroadcastTag and chooseBroadcastTemplate serve both the instant and
// the scheduled broadcast menus, keeping the action of the pressed button.
func (h *Handler) chooseBroadcastTag(ctx context.Context, req *request) error {
	tags, err := h.Store.ListTags(ctx)
	if err != nil {
		return fmt.Errorf("listing tags: %w", err)
	}
	if len(tags) == 0 {
		return h.reply(ctx, req, textNoTags)
	}

	kb := make(e.Keyboard, 0, len(tags))
	for _, tag := range tags {
		kb = append(kb, e.Button{Text: tag, Data: encode(req.cb.action, tag)})
	}

	return h.reply(ctx, req, textChooseTag, kb...)
}

func (h *Handler) chooseBroadcastTemplate(ctx context.Context, req *request) error {
	templates, err := h.Store.ListTemplates(ctx)
	if err != nil {
		return fmt.Errorf("listing templates: %w", err)
	}
	if len(templates) == 0 {
		return h.reply(ctx, req, textNoTemplates)
	}

	tag := req.cb.args[0]
	kb := make(e.Keyboard, 0, len(templates))
	for _, t := range templates {
		kb = append(kb, e.Button{
			Text: t.Type,
			Data: encode(req.cb.action, tag, strconv.FormatInt(t.ID, 10)),
		})
	}

	return h.reply(ctx, req, textChooseTemplate, kb...)
}

// broadcastTemplate resolves the tag and template chosen in the broadcast menus.
func (h *Handler) broadcastTemplate(ctx context.Context, req *request) (string, e.Template, bool, error) {
	tag := req.cb.args[0]

	id, err := req.cb.id(1)
	if err != nil {
		h.Log.Warn("bad template id", "data", req.upd.Callback.Data)
		return "", e.Template{}, false, nil
	}

	templates, err := h.Store.ListTemplates(ctx)
	if err != nil {
		return "", e.Template{}, false, fmt.Errorf("listing templates: %w", err)
	}
	for _, t := range templates {
		if t.ID == id {
			return tag, t, true, nil
		}
	}

	return "", e.Template{}, false, h.reply(ctx, req, textTemplateNotFound)
}

func (h *Handler) sendInstantBroadcast(ctx context.Context, req *request) error {
	tag, tpl, ok, err := h.broadcastTemplate(ctx, req)
	if err != nil || !ok {
		return err
	}

	report, err := h.Broadcasts.SendToTag(ctx, tag, tpl.Content, tpl.Media)
	if err != nil {
		return fmt.Errorf("sending instant broadcast: %w", err)
	}

	h.Log.Info("instant broadcast sent",
		"tag", tag, "template_id", tpl.ID, "sent", report.Sent, "failed", report.Failed)

	return h.replyf(ctx, req, textInstantDone, report.Sent, report.Failed)
}

func (h *Handler) showAutoresponderManager(ctx context.Context, req *request) error {
	return h.reply(ctx, req, textAutoresponders,
		e.Button{Text: btnAdd, Data: encode(actAddAutoresponder)},
		e.Button{Text: btnList, Data: encode(actListAutoresponders)},
		e.Button{Text: btnBack, Data: encode(actAdminPanel)},
	)
}

func (h *Handler) listAutoresponders(ctx context.Context, req *request) error {
	list, err := h.Store.ListAutoresponders(ctx)
	if err != nil {
		return fmt.Errorf("listing autoresponders: %w", err)
	}
	if len(list) == 0 {
		return h.reply(ctx, req, textNoAutoresponders)
	}

	for _, ar := range list {
		media := "-"
		if !ar.Media.IsZero() {
			media = string(ar.Media.Kind)
		}

		err = h.reply(ctx, req,
			fmt.Sprintf(textAutoresponderItem, ar.ID, ar.Content, int64(ar.Delay/time.Hour), media),
			e.Button{Text: btnEdit, Data: encodeID(actEditAutoresponder, ar.ID)},
			e.Button{Text: btnDelete, Data: encodeID(actDeleteAutoresponder, ar.ID)},
		)
		if err != nil {
			return err
		}
	}

	return nil
}

func (h *Handler) deleteAutoresponder(ctx context.Context, req *request) error {
	id, err := req.cb.id(0)
	if err != nil {
		h.Log.Warn("bad autoresponder id", "data", req.upd.Callback.Data)
		return nil
	}

	if err = h.Store.DeleteAutoresponder(ctx, id); err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return h.reply(ctx, req, textAutoresponderMissing)
		}
		return fmt.Errorf("deleting autoresponder: %w", err)
	}

	h.Log.Info("autoresponder deleted", "autoresponder_id", id, "tg_user_id", req.user.TelegramID)

	return h.reply(ctx, req, textAutoresponderDeleted)
}

func (h *Handler) showLeadMagnetManager(ctx context.Context, req *request) error {
	return h.reply(ctx, req, textLeadMagnets,
		e.Button{Text: btnAdd, Data: encode(actAddLeadMagnet)},
		e.Button{Text: btnList, Data: encode(actListLeadMagnets)},
		e.Button{Text: btnBack, Data: encode(actAdminPanel)},
	)
}

func (h *Handler) listLeadMagnets(ctx context.Context, req *request) error {
	list, err := h.Store.ListLeadMagnets(ctx)
	if err != nil {
		return fmt.Errorf("listing lead magnets: %w", err)
	}
	if len(list) == 0 {
		return h.reply(ctx, req, textNoLeadMagnets)
	}

	for _, lm := range list {
		err = h.reply(ctx, req,
			fmt.Sprintf(textLeadMagnetItem, lm.ID, lm.Name, lm.Description),
			e.Button{Text: btnEdit, Data: encodeID(actEditLeadMagnet, lm.ID)},
			e.Button{Text: btnDelete, Data: encodeID(actDeleteLeadMagnet, lm.ID)},
		)
		if err != nil {
			return err
		}
	}

	return nil
}

func (h *Handler) deleteLeadMagnet(ctx context.Context, req *request) error {
	id, err := req.cb.id(0)
	if err != nil {
		h.Log.Warn("bad lead magnet id", "data", req.upd.Callback.Data)
		return nil
	}

	if err = h.Store.DeleteLeadMagnet(ctx, id); err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return h.reply(ctx, req, textLeadMagnetNotFound)
		}
		return fmt.Errorf("deleting lead magnet: %w", err)
	}

	h.Log.Info("lead magnet deleted", "lead_magnet_id", id, "tg_user_id", req.user.TelegramID)

	return h.reply(ctx, req, textLeadMagnetDeleted)
}

func (h *Handler) showAnalytics(ctx context.Context, req *request) error {
	to := h.now()
	sum, err := h.Store.Summary(ctx, to.Add(-analyticsPeriod), to)
	if err != nil {
		return fmt.Errorf("building analytics: %w", err)
	}

	return h.reply(ctx, req, formatSummary(sum))
}

func formatSummary(sum e.Summary) string {
	var sb strings.Builder

	sb.WriteString("📊 Analytics for the last week:\n\n")
	fmt.Fprintf(&sb, "👥 New subscribers: %d\n", sum.NewSubscribers)
	fmt.Fprintf(&sb, "✉️ Sent messages: %d\n", sum.SentMessages)
	fmt.Fprintf(&sb, "🙋 Active users: %d\n", sum.ActiveUsers)
	fmt.Fprintf(&sb, "📖 Open rate: %.2f%%\n", sum.OpenRate)
	fmt.Fprintf(&sb, "💬 Response rate: %.2f%%\n", sum.ResponseRate)

	sb.WriteString("\n🎁 Lead magnet effectiveness:\n")
	for _, lm := range sum.LeadMagnets {
		fmt.Fprintf(&sb, " - %s: %d users\n", lm.Name, lm.Users)
	}

	sb.WriteString("\n👥 Invitations by subscribers:\n")
	for _, inv := range sum.Inviters {
		fmt.Fprintf(&sb, " - @%s: %d invitations\n", inv.Username, inv.Invitations)
	}

	return sb.String()
}
