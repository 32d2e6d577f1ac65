package controller

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"nuclight.org/referral-tg-bot/app/services"
	"nuclight.org/referral-tg-bot/app/session"
	e "nuclight.org/referral-tg-bot/pkg/entities"
)

const mb = int64(1 << 20)

func (f *fixture) send(t *testing.T, upd e.Update) {
	t.Helper()
	if err := f.h.HandleUpdate(context.Background(), upd); err != nil {
		t.Fatalf("handling update: %v", err)
	}
}

func (f *fixture) step(t *testing.T, chatID int64) session.Step {
	t.Helper()
	sess, err := f.h.Sessions.Get(context.Background(), chatID)
	if err != nil {
		t.Fatalf("getting session: %v", err)
	}
	return sess.Step
}

func (f *fixture) expectReply(t *testing.T, want string) {
	t.Helper()
	if got := f.msgr.last().text; got != want {
		t.Fatalf("unexpected reply %q, want %q", got, want)
	}
}

func TestCallbackCodec(t *testing.T) {
	data := encode(actScheduledBroadcast, "newbie", "7")
	if data != "scheduled_broadcast|newbie|7" {
		t.Fatalf("unexpected encoding %q", data)
	}

	cb := decode(data)
	if cb.action != actScheduledBroadcast || len(cb.args) != 2 {
		t.Fatalf("unexpected decoding %+v", cb)
	}
	if id, err := cb.id(1); err != nil || id != 7 {
		t.Fatalf("unexpected id %d, %v", id, err)
	}

	if cb := decode(actAdminPanel); len(cb.args) != 0 || cb.key() != routeKey(actAdminPanel, 0) {
		t.Fatalf("unexpected decoding of bare action %+v", cb)
	}
}

func TestCallbackRoutes(t *testing.T) {
	tests := []struct {
		data  string
		found bool
		admin bool
	}{
		{data: encode(actInviteLink), found: true},
		{data: encode(actGetGift), found: true},
		{data: encodeID(actSelectLeadMagnet, 3), found: true},
		{data: encode(actAdminPanel), found: true, admin: true},
		{data: encode(actInstantBroadcast, "newbie"), found: true, admin: true},
		{data: encode(actInstantBroadcast, "newbie", "1"), found: true, admin: true},
		{data: encodeID(actDeleteLeadMagnet, 1), found: true, admin: true},
		{data: encode(actSelectLeadMagnet), found: false},
		{data: "unknown_action", found: false},
	}

	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			rt, ok := callbackRoutes[decode(tt.data).key()]
			if ok != tt.found {
				t.Fatalf("route found = %v, want %v", ok, tt.found)
			}
			if ok && rt.admin != tt.admin {
				t.Fatalf("route admin = %v, want %v", rt.admin, tt.admin)
			}
		})
	}
}

func TestAdminActionsAreGated(t *testing.T) {
	f := newFixture()

	f.send(t, pressBy(f.user, encode(actAdminPanel)))
	f.expectReply(t, textNotAdmin)

	f.send(t, pressBy(f.user, encode(actSetSubscribers)))
	f.expectReply(t, textNotAdmin)
	if got := f.step(t, f.user.TelegramID); got != session.StepIdle {
		t.Fatalf("non-admin entered wizard step %q", got)
	}

	f.send(t, pressBy(f.admin, encode(actAdminPanel)))
	last := f.msgr.last()
	if last.text != textAdminPanel || len(last.kb) != 8 {
		t.Fatalf("unexpected admin panel %+v", last)
	}
}

func TestNonAdminSessionIsCleared(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	err := f.h.Sessions.Set(ctx, f.user.TelegramID, session.Session{Step: session.StepSettingSubscribers})
	if err != nil {
		t.Fatalf("setting session: %v", err)
	}

	f.send(t, textFrom(f.user, "10"))
	f.expectReply(t, textNotAdmin)

	if got := f.step(t, f.user.TelegramID); got != session.StepIdle {
		t.Fatalf("session not cleared: %q", got)
	}
	if _, ok := f.store.config[e.ConfigRequiredReferrals]; ok {
		t.Fatal("non-admin changed the threshold")
	}
}

func TestThresholdWizard(t *testing.T) {
	f := newFixture()

	f.send(t, pressBy(f.admin, encode(actSetSubscribers)))
	f.expectReply(t, textEnterThreshold)

	for _, bad := range []string{"abc", "0", "-2"} {
		f.send(t, textFrom(f.admin, bad))
		f.expectReply(t, textInvalidNumber)
		if got := f.step(t, f.admin.TelegramID); got != session.StepSettingSubscribers {
			t.Fatalf("step after %q = %q", bad, got)
		}
	}

	f.send(t, textFrom(f.admin, "5"))
	f.expectReply(t, fmt.Sprintf(textThresholdSet, 5))

	if got := f.store.config[e.ConfigRequiredReferrals]; got != "5" {
		t.Fatalf("threshold stored as %q", got)
	}
	if got := f.step(t, f.admin.TelegramID); got != session.StepIdle {
		t.Fatalf("wizard not finished: %q", got)
	}
}

func TestEditTemplateWritesContentAndMedia(t *testing.T) {
	f := newFixture()
	id, _ := f.store.InsertTemplate(context.Background(), e.Template{Type: e.TemplateWelcome, Content: "old"})

	f.send(t, pressBy(f.admin, encode(actEditTemplate, e.TemplateWelcome)))
	f.expectReply(t, fmt.Sprintf(textTemplateCurrent, "old", e.TemplateWelcome))

	f.send(t, textFrom(f.admin, "Hello, {first_name}!"))
	f.expectReply(t, textMediaPrompt)

	// content is not written before the media step completes
	if got := f.store.templates[e.TemplateWelcome].Content; got != "old" {
		t.Fatalf("content written early: %q", got)
	}

	photo := e.Media{Kind: e.MediaKindPhoto, FileID: "photo-1"}
	f.send(t, mediaFrom(f.admin, photo, 2*mb))
	f.expectReply(t, fmt.Sprintf(textTemplateUpdated, e.TemplateWelcome))

	tpl := f.store.templates[e.TemplateWelcome]
	if tpl.ID != id || tpl.Content != "Hello, {first_name}!" || tpl.Media != photo {
		t.Fatalf("unexpected template %+v", tpl)
	}
	if got := f.store.files[f.admin.ID]; got != 2*mb {
		t.Fatalf("upload recorded as %d bytes", got)
	}
}

func TestEditMissingTemplateCreatesIt(t *testing.T) {
	f := newFixture()

	f.send(t, pressBy(f.admin, encode(actEditTemplate, e.TemplateNewbie)))
	f.expectReply(t, fmt.Sprintf(textTemplateNew, e.TemplateNewbie))

	f.send(t, textFrom(f.admin, "Invite friends"))
	f.send(t, textFrom(f.admin, "No"))

	tpl, ok := f.store.templates[e.TemplateNewbie]
	if !ok || tpl.Content != "Invite friends" || !tpl.Media.IsZero() {
		t.Fatalf("unexpected template %+v", tpl)
	}
}

func TestAddTemplateRejectsExistingType(t *testing.T) {
	f := newFixture()
	_, _ = f.store.InsertTemplate(context.Background(), e.Template{Type: "promo", Content: "x"})

	f.send(t, pressBy(f.admin, encode(actAddTemplate)))
	f.send(t, textFrom(f.admin, "promo"))
	f.expectReply(t, fmt.Sprintf(textTemplateExists, "promo"))

	f.send(t, textFrom(f.admin, "spring_sale"))
	f.send(t, textFrom(f.admin, "Spring sale!"))
	f.send(t, textFrom(f.admin, "file-id-1"))
	f.expectReply(t, fmt.Sprintf(textTemplateAdded, "spring_sale"))

	tpl := f.store.templates["spring_sale"]
	if tpl.Content != "Spring sale!" || tpl.Media != (e.Media{Kind: e.MediaKindPhoto, FileID: "file-id-1"}) {
		t.Fatalf("unexpected template %+v", tpl)
	}
}

func TestUploadLimits(t *testing.T) {
	tests := []struct {
		name string
		used int64
		size int64
		want string
	}{
		{name: "single file too large", used: 0, size: 51 * mb, want: textFileTooLarge},
		{name: "cumulative quota exceeded", used: 480 * mb, size: 40 * mb, want: textQuotaExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.store.files[f.admin.ID] = tt.used

			f.send(t, pressBy(f.admin, encode(actAddAutoresponder)))
			f.send(t, textFrom(f.admin, "Still there?"))
			f.send(t, textFrom(f.admin, "24"))

			video := e.Media{Kind: e.MediaKindVideo, FileID: "video-1"}
			f.send(t, mediaFrom(f.admin, video, tt.size))
			f.expectReply(t, tt.want)

			if len(f.store.autoresponders) != 0 {
				t.Fatal("autoresponder written despite rejected upload")
			}
			if got := f.store.files[f.admin.ID]; got != tt.used {
				t.Fatalf("storage usage changed to %d", got)
			}
			if got := f.step(t, f.admin.TelegramID); got != session.StepAddingAutoresponderMedia {
				t.Fatalf("step after rejection = %q", got)
			}

			f.send(t, textFrom(f.admin, "no"))
			f.expectReply(t, textAutoresponderAdded)

			if len(f.store.autoresponders) != 1 {
				t.Fatalf("expected one autoresponder, got %d", len(f.store.autoresponders))
			}
			for _, ar := range f.store.autoresponders {
				if ar.Content != "Still there?" || ar.Delay != 24*time.Hour || !ar.Media.IsZero() {
					t.Fatalf("unexpected autoresponder %+v", ar)
				}
			}
		})
	}
}

func TestAutoresponderDelayValidation(t *testing.T) {
	f := newFixture()

	f.send(t, pressBy(f.admin, encode(actAddAutoresponder)))
	f.send(t, textFrom(f.admin, "Hi"))

	f.send(t, textFrom(f.admin, "soon"))
	f.expectReply(t, textInvalidDelay)
	f.send(t, textFrom(f.admin, "-1"))
	f.expectReply(t, textInvalidDelay)

	f.send(t, textFrom(f.admin, "0"))
	f.expectReply(t, textMediaPrompt)
}

func TestEditAutoresponder(t *testing.T) {
	f := newFixture()
	id, _ := f.store.InsertAutoresponder(context.Background(), e.Autoresponder{Content: "old", Delay: time.Hour})

	f.send(t, pressBy(f.admin, encodeID(actEditAutoresponder, id)))
	f.send(t, textFrom(f.admin, "new"))
	f.send(t, textFrom(f.admin, "48"))
	f.send(t, textFrom(f.admin, "no"))
	f.expectReply(t, textAutoresponderUpdated)

	ar := f.store.autoresponders[id]
	if ar.Content != "new" || ar.Delay != 48*time.Hour {
		t.Fatalf("unexpected autoresponder %+v", ar)
	}

	f.send(t, pressBy(f.admin, encodeID(actEditAutoresponder, 999)))
	f.expectReply(t, textAutoresponderMissing)
}

func TestLeadMagnetWizardAcceptsPhotoOnly(t *testing.T) {
	f := newFixture()

	f.send(t, pressBy(f.admin, encode(actAddLeadMagnet)))
	f.send(t, textFrom(f.admin, "Checklist"))
	f.send(t, textFrom(f.admin, "10 steps to launch"))
	f.expectReply(t, textImagePrompt)

	f.send(t, mediaFrom(f.admin, e.Media{Kind: e.MediaKindDocument, FileID: "doc"}, mb))
	f.expectReply(t, textSendPhoto)

	f.send(t, mediaFrom(f.admin, e.Media{Kind: e.MediaKindPhoto, FileID: "pic"}, mb))
	f.expectReply(t, textLeadMagnetAdded)

	if len(f.store.leadMagnets) != 1 {
		t.Fatalf("expected one lead magnet, got %d", len(f.store.leadMagnets))
	}
	for _, lm := range f.store.leadMagnets {
		if lm.Name != "Checklist" || lm.Description != "10 steps to launch" || lm.ImageID != "pic" {
			t.Fatalf("unexpected lead magnet %+v", lm)
		}
	}
}

func TestScheduleBroadcast(t *testing.T) {
	f := newFixture()
	f.h.Location = time.FixedZone("MSK", 3*60*60)
	id, _ := f.store.InsertTemplate(context.Background(), e.Template{Type: "promo", Content: "Sale"})

	f.send(t, pressBy(f.admin, encode(actScheduledBroadcast, e.TagNewbie, strconv.FormatInt(id, 10))))
	f.expectReply(t, textEnterScheduleTime)

	f.send(t, textFrom(f.admin, "tomorrow"))
	f.expectReply(t, textInvalidTime)

	f.send(t, textFrom(f.admin, "2024-06-01 10:30"))
	f.expectReply(t, fmt.Sprintf(textBroadcastScheduled, "2024-06-01 10:30"))

	if len(f.store.broadcasts) != 1 {
		t.Fatalf("expected one broadcast, got %d", len(f.store.broadcasts))
	}
	b := f.store.broadcasts[0]
	want := time.Date(2024, 6, 1, 7, 30, 0, 0, time.UTC)
	if !b.ScheduledTime.Equal(want) || b.Tag != e.TagNewbie || b.TemplateID != id || b.Status != e.BroadcastScheduled {
		t.Fatalf("unexpected broadcast %+v", b)
	}
}

func TestInstantBroadcast(t *testing.T) {
	f := newFixture()
	id, _ := f.store.InsertTemplate(context.Background(), e.Template{Type: "promo", Content: "Sale"})

	f.send(t, pressBy(f.admin, encode(actInstantBroadcast)))
	last := f.msgr.last()
	if last.text != textChooseTag || len(last.kb) != 1 || last.kb[0].Data != encode(actInstantBroadcast, e.TagNewbie) {
		t.Fatalf("unexpected tag menu %+v", last)
	}

	f.send(t, pressBy(f.admin, encode(actInstantBroadcast, e.TagNewbie, strconv.FormatInt(id, 10))))
	f.expectReply(t, fmt.Sprintf(textInstantDone, 2, 0))

	b := f.h.Broadcasts.(*fakeBroadcaster)
	if b.tag != e.TagNewbie || b.content != "Sale" {
		t.Fatalf("unexpected broadcast %+v", b)
	}
}

func TestCancel(t *testing.T) {
	f := newFixture()

	f.send(t, commandFrom(f.admin, "cancel"))
	f.expectReply(t, textNothingToCancel)

	f.send(t, pressBy(f.admin, encode(actAddLeadMagnet)))
	f.send(t, commandFrom(f.admin, "cancel"))
	f.expectReply(t, textCancelled)

	if got := f.step(t, f.admin.TelegramID); got != session.StepIdle {
		t.Fatalf("session not cleared: %q", got)
	}
}

func TestClaimGiftReplies(t *testing.T) {
	tests := []struct {
		name     string
		decision services.Decision
		err      error
		want     string
	}{
		{name: "need more", decision: services.Decision{Verdict: services.VerdictNeedMore, Remaining: 2}, want: fmt.Sprintf(textNeedMoreReferrals, 2)},
		{name: "already received", decision: services.Decision{Verdict: services.VerdictAlreadyReceived}, want: textAlreadyReceivedGift},
		{name: "lead magnet deleted", err: e.ErrNotFound, want: textLeadMagnetNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.h.Rewards = fakeClaimer{decision: tt.decision, err: tt.err}

			f.send(t, commandFrom(f.user, "gift"))
			f.expectReply(t, tt.want)
		})
	}
}

func TestClaimGiftWithoutLeadMagnet(t *testing.T) {
	f := newFixture()
	f.h.Rewards = fakeClaimer{err: services.ErrNoLeadMagnet}
	_, _ = f.store.InsertLeadMagnet(context.Background(), e.LeadMagnet{Name: "Guide"})

	f.send(t, pressBy(f.user, encode(actGetGift)))

	replies := f.msgr.replies
	if len(replies) != 2 || replies[0].text != textPickLeadMagnetFirst || replies[1].text != textChooseLeadMagnet {
		t.Fatalf("unexpected replies %+v", replies)
	}
}

func TestInteractionsAreRecorded(t *testing.T) {
	f := newFixture()

	f.send(t, pressBy(f.user, encode(actInviteLink)))
	f.expectReply(t, fmt.Sprintf(textInviteLink, "https://t.me/test_bot?start=2"))

	f.send(t, textFrom(f.user, "hello"))
	f.expectReply(t, textUseHelp)

	if len(f.store.opened) != 1 || f.store.opened[0] != f.user.TelegramID {
		t.Fatalf("unexpected opened marks %v", f.store.opened)
	}
	if len(f.store.responded) != 1 || f.store.responded[0] != f.user.TelegramID {
		t.Fatalf("unexpected responded marks %v", f.store.responded)
	}
}

func TestUnknownSenderIsAskedToStart(t *testing.T) {
	f := newFixture()
	stranger := e.User{TelegramID: 99}

	f.send(t, commandFrom(stranger, "invite"))
	f.expectReply(t, textStartFirst)
}

func TestHelpShowsAdminCommands(t *testing.T) {
	f := newFixture()

	f.send(t, commandFrom(f.user, "help"))
	if strings.Contains(f.msgr.last().text, "/analytics") {
		t.Fatal("admin commands shown to a regular user")
	}

	f.send(t, commandFrom(f.admin, "help"))
	if !strings.Contains(f.msgr.last().text, "/analytics") {
		t.Fatal("admin commands missing for an admin")
	}
}

func TestFormatSummary(t *testing.T) {
	got := formatSummary(e.Summary{
		NewSubscribers: 4,
		SentMessages:   10,
		ActiveUsers:    3,
		OpenRate:       62.5,
		ResponseRate:   12.5,
		LeadMagnets:    []e.LeadMagnetStat{{Name: "Guide", Users: 2}},
		Inviters:       []e.InviterStat{{Username: "alice", Invitations: 5}},
	})

	for _, want := range []string{
		"New subscribers: 4",
		"Sent messages: 10",
		"Active users: 3",
		"Open rate: 62.50%",
		"Response rate: 12.50%",
		" - Guide: 2 users",
		" - @alice: 5 invitations",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("summary misses %q:\n%s", want, got)
		}
	}
}
