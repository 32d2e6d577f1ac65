package controller

import (
	"context"
	"strconv"
	"sync"
	"time"

	"nuclight.org/referral-tg-bot/app/services"
	"nuclight.org/referral-tg-bot/app/session"
	e "nuclight.org/referral-tg-bot/pkg/entities"
	"nuclight.org/referral-tg-bot/pkg/logger"
)

type fakeStore struct {
	mu sync.Mutex

	users          map[int64]e.User
	templates      map[string]e.Template
	autoresponders map[int64]e.Autoresponder
	leadMagnets    map[int64]e.LeadMagnet
	broadcasts     []e.Broadcast
	config         map[string]string
	files          map[int64]int64
	nextID         int64

	opened    []int64
	responded []int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:          make(map[int64]e.User),
		templates:      make(map[string]e.Template),
		autoresponders: make(map[int64]e.Autoresponder),
		leadMagnets:    make(map[int64]e.LeadMagnet),
		config:         make(map[string]string),
		files:          make(map[int64]int64),
	}
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) addUser(u e.User) e.User {
	f.mu.Lock()
	defer f.mu.Unlock()

	u.ID = f.id()
	f.users[u.TelegramID] = u
	return u
}

func (f *fakeStore) GetUserByTelegramID(_ context.Context, telegramID int64) (e.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[telegramID]
	if !ok {
		return e.User{}, e.ErrNotFound
	}
	return u, nil
}

func (f *fakeStore) ListUsers(context.Context) ([]e.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	users := make([]e.User, 0, len(f.users))
	for _, u := range f.users {
		users = append(users, u)
	}
	return users, nil
}

func (f *fakeStore) ListTags(context.Context) ([]string, error) {
	return []string{e.TagNewbie}, nil
}

func (f *fakeStore) SetUserLeadMagnet(_ context.Context, telegramID, leadMagnetID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[telegramID]
	if !ok {
		return e.ErrNotFound
	}
	u.LeadMagnetID = &leadMagnetID
	f.users[telegramID] = u
	return nil
}

func (f *fakeStore) GetTemplateByType(_ context.Context, templateType string) (e.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.templates[templateType]
	if !ok {
		return e.Template{}, e.ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) ListTemplates(context.Context) ([]e.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var list []e.Template
	for _, t := range f.templates {
		list = append(list, t)
	}
	return list, nil
}

func (f *fakeStore) InsertTemplate(_ context.Context, t e.Template) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t.ID = f.id()
	f.templates[t.Type] = t
	return t.ID, nil
}

func (f *fakeStore) UpdateTemplate(_ context.Context, templateID int64, content string, media e.Media) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for k, t := range f.templates {
		if t.ID == templateID {
			t.Content, t.Media = content, media
			f.templates[k] = t
			return nil
		}
	}
	return e.ErrNotFound
}

func (f *fakeStore) InsertBroadcast(_ context.Context, b e.Broadcast) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b.ID = f.id()
	f.broadcasts = append(f.broadcasts, b)
	return b.ID, nil
}

func (f *fakeStore) InsertAutoresponder(_ context.Context, ar e.Autoresponder) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ar.ID = f.id()
	f.autoresponders[ar.ID] = ar
	return ar.ID, nil
}

func (f *fakeStore) UpdateAutoresponder(_ context.Context, ar e.Autoresponder) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.autoresponders[ar.ID]; !ok {
		return e.ErrNotFound
	}
	f.autoresponders[ar.ID] = ar
	return nil
}

func (f *fakeStore) DeleteAutoresponder(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.autoresponders[id]; !ok {
		return e.ErrNotFound
	}
	delete(f.autoresponders, id)
	return nil
}

func (f *fakeStore) GetAutoresponder(_ context.Context, id int64) (e.Autoresponder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ar, ok := f.autoresponders[id]
	if !ok {
		return e.Autoresponder{}, e.ErrNotFound
	}
	return ar, nil
}

func (f *fakeStore) ListAutoresponders(context.Context) ([]e.Autoresponder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var list []e.Autoresponder
	for _, ar := range f.autoresponders {
		list = append(list, ar)
	}
	return list, nil
}

func (f *fakeStore) InsertLeadMagnet(_ context.Context, lm e.LeadMagnet) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	lm.ID = f.id()
	f.leadMagnets[lm.ID] = lm
	return lm.ID, nil
}

func (f *fakeStore) UpdateLeadMagnet(_ context.Context, lm e.LeadMagnet) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.leadMagnets[lm.ID]; !ok {
		return e.ErrNotFound
	}
	f.leadMagnets[lm.ID] = lm
	return nil
}

func (f *fakeStore) DeleteLeadMagnet(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.leadMagnets[id]; !ok {
		return e.ErrNotFound
	}
	delete(f.leadMagnets, id)
	return nil
}

func (f *fakeStore) GetLeadMagnet(_ context.Context, id int64) (e.LeadMagnet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	lm, ok := f.leadMagnets[id]
	if !ok {
		return e.LeadMagnet{}, e.ErrNotFound
	}
	return lm, nil
}

func (f *fakeStore) ListLeadMagnets(context.Context) ([]e.LeadMagnet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var list []e.LeadMagnet
	for _, lm := range f.leadMagnets {
		list = append(list, lm)
	}
	return list, nil
}

func (f *fakeStore) SetConfigValue(_ context.Context, name, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.config[name] = value
	return nil
}

func (f *fakeStore) MarkLatestOpened(_ context.Context, telegramID int64, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.opened = append(f.opened, telegramID)
	return nil
}

func (f *fakeStore) MarkLatestResponded(_ context.Context, telegramID int64, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.responded = append(f.responded, telegramID)
	return nil
}

func (f *fakeStore) AddUserFile(_ context.Context, userID, size int64, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.files[userID] += size
	return nil
}

func (f *fakeStore) UserStorageSize(_ context.Context, userID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.files[userID], nil
}

func (f *fakeStore) Summary(context.Context, time.Time, time.Time) (e.Summary, error) {
	return e.Summary{NewSubscribers: 3, SentMessages: 7, OpenRate: 50}, nil
}

type reply struct {
	chatID int64
	text   string
	kb     e.Keyboard
}

type fakeMessenger struct {
	mu        sync.Mutex
	replies   []reply
	documents []string
}

func (m *fakeMessenger) SendText(_ context.Context, chatID int64, text string, kb e.Keyboard) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.replies = append(m.replies, reply{chatID: chatID, text: text, kb: kb})
	return nil
}

func (m *fakeMessenger) SendDocument(_ context.Context, _ int64, path, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.documents = append(m.documents, path)
	return nil
}

func (m *fakeMessenger) last() reply {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.replies) == 0 {
		return reply{}
	}
	return m.replies[len(m.replies)-1]
}

type fakeSender struct {
	sent []services.Message
}

func (s *fakeSender) Send(_ context.Context, _ *e.User, msg services.Message) error {
	s.sent = append(s.sent, msg)
	return nil
}

type fakeClaimer struct {
	decision services.Decision
	err      error
}

func (c fakeClaimer) Claim(context.Context, int64) (services.Decision, error) {
	return c.decision, c.err
}

type fakeBroadcaster struct {
	tag     string
	content string
}

func (b *fakeBroadcaster) SendToTag(_ context.Context, tag, content string, _ e.Media) (services.BroadcastReport, error) {
	b.tag, b.content = tag, content
	return services.BroadcastReport{Recipients: 2, Sent: 2}, nil
}

type fakeLinks struct{}

func (fakeLinks) InviteURL(telegramID int64) string {
	return "https://t.me/test_bot?start=" + strconv.FormatInt(telegramID, 10)
}

func (fakeLinks) RequiredReferrals(context.Context) (int, error) {
	return 3, nil
}

type fixture struct {
	h      *Handler
	store  *fakeStore
	msgr   *fakeMessenger
	sender *fakeSender
	admin  e.User
	user   e.User
}

func newFixture() *fixture {
	store := newFakeStore()
	msgr := &fakeMessenger{}
	sender := &fakeSender{}

	f := &fixture{
		store:  store,
		msgr:   msgr,
		sender: sender,
		admin:  store.addUser(e.User{TelegramID: 1, Username: "boss", IsAdmin: true}),
		user:   store.addUser(e.User{TelegramID: 2, Username: "alice"}),
	}

	f.h = &Handler{
		Log:        logger.Discard(),
		Store:      store,
		Sessions:   session.NewMemoryStore(),
		Messenger:  msgr,
		Sender:     sender,
		Rewards:    fakeClaimer{},
		Broadcasts: &fakeBroadcaster{},
		Links:      fakeLinks{},
		Now:        func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
	}

	return f
}

func textFrom(u e.User, text string) e.Update {
	return e.Update{ChatID: u.TelegramID, From: e.Sender{ID: u.TelegramID}, Text: text}
}

func mediaFrom(u e.User, media e.Media, size int64) e.Update {
	return e.Update{
		ChatID: u.TelegramID,
		From:   e.Sender{ID: u.TelegramID},
		Media:  &e.Attachment{Media: media, Size: size},
	}
}

func commandFrom(u e.User, command string) e.Update {
	return e.Update{ChatID: u.TelegramID, From: e.Sender{ID: u.TelegramID}, Command: command}
}

func pressBy(u e.User, data string) e.Update {
	return e.Update{
		ChatID:   u.TelegramID,
		From:     e.Sender{ID: u.TelegramID},
		Callback: &e.Callback{ID: "cb", Data: data},
	}
}
