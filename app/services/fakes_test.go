package services

import (
	"context"
	"slices"
	"sync"
	"time"

	e "nuclight.org/referral-tg-bot/pkg/entities"
	"nuclight.org/referral-tg-bot/pkg/logger"
	"nuclight.org/referral-tg-bot/pkg/metrics"
)

type fakeStore struct {
	mu          sync.Mutex
	nextID      int64
	users       map[int64]*e.User
	leadMagnets map[int64]e.LeadMagnet
	logs        []e.MessageKind
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:       make(map[int64]*e.User),
		leadMagnets: make(map[int64]e.LeadMagnet),
	}
}

func (f *fakeStore) add(u e.User) e.User {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	u.ID = f.nextID
	f.users[u.ID] = &u
	return u
}

func copyUser(u *e.User) e.User {
	c := *u
	c.Tags = slices.Clone(u.Tags)
	return c
}

func (f *fakeStore) GetUserByTelegramID(_ context.Context, telegramID int64) (e.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.users {
		if u.TelegramID == telegramID {
			return copyUser(u), nil
		}
	}
	return e.User{}, e.ErrNotFound
}

func (f *fakeStore) GetUserByID(_ context.Context, userID int64) (e.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[userID]
	if !ok {
		return e.User{}, e.ErrNotFound
	}
	return copyUser(u), nil
}

func (f *fakeStore) InsertUser(_ context.Context, nu e.NewUser) (e.User, error) {
	f.mu.Lock()
	f.nextID++
	u := &e.User{
		ID:         f.nextID,
		TelegramID: nu.TelegramID,
		Username:   nu.Username,
		FirstName:  nu.FirstName,
		LastName:   nu.LastName,
		JoinedAt:   nu.JoinedAt,
		IsAdmin:    nu.IsAdmin,
		InvitedBy:  nu.InvitedBy,
		Tags:       slices.Clone(nu.Tags),
	}
	f.users[u.ID] = u
	f.mu.Unlock()

	return copyUser(u), nil
}

func (f *fakeStore) IncrementReferrals(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[userID]
	if !ok {
		return e.ErrNotFound
	}
	u.Referrals++
	return nil
}

func (f *fakeStore) AddUserTags(_ context.Context, userID int64, tags ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[userID]
	if !ok {
		return e.ErrNotFound
	}
	for _, tag := range tags {
		if !u.HasTag(tag) {
			u.Tags = append(u.Tags, tag)
		}
	}
	return nil
}

func (f *fakeStore) ListAdmins(_ context.Context) ([]e.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var admins []e.User
	for _, u := range f.users {
		if u.IsAdmin {
			admins = append(admins, copyUser(u))
		}
	}
	return admins, nil
}

func (f *fakeStore) ListUsers(_ context.Context) ([]e.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	users := make([]e.User, 0, len(f.users))
	for _, u := range f.users {
		users = append(users, copyUser(u))
	}
	slices.SortFunc(users, func(a, b e.User) int { return int(a.ID - b.ID) })
	return users, nil
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

func (f *fakeStore) MarkGiftReceived(_ context.Context, userID int64, required int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[userID]
	if !ok || u.ReceivedGift || u.Referrals < required {
		return false, nil
	}
	u.ReceivedGift = true
	return true, nil
}

func (f *fakeStore) LogMessage(_ context.Context, _ int64, kind e.MessageKind, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.logs = append(f.logs, kind)
	return nil
}

type sentMessage struct {
	ChatID int64
	Text   string
	Media  e.Media
}

type fakeMessenger struct {
	mu    sync.Mutex
	sent  []sentMessage
	sizes map[string]int64
}

func (m *fakeMessenger) SendText(_ context.Context, chatID int64, text string, _ e.Keyboard) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sent = append(m.sent, sentMessage{ChatID: chatID, Text: text})
	return nil
}

func (m *fakeMessenger) SendMedia(_ context.Context, chatID int64, media e.Media, caption string, _ e.Keyboard) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sent = append(m.sent, sentMessage{ChatID: chatID, Text: caption, Media: media})
	return nil
}

func (m *fakeMessenger) FileSize(_ context.Context, fileID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.sizes[fileID], nil
}

func (m *fakeMessenger) sentTo(chatID int64) []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []sentMessage
	for _, s := range m.sent {
		if s.ChatID == chatID {
			out = append(out, s)
		}
	}
	return out
}

type threshold int

func (t threshold) RequiredReferrals(context.Context) (int, error) {
	return int(t), nil
}

type upperRenderer struct{}

func (upperRenderer) Render(_ context.Context, tpl string, u *e.User) string {
	return tpl + " for " + u.FirstName
}

func newDelivery(store *fakeStore, msgr *fakeMessenger) *DeliverySrv {
	return &DeliverySrv{
		Log:       logger.Discard(),
		Messenger: msgr,
		Renderer:  upperRenderer{},
		Logs:      store,
		Metrics:   metrics.Registry("test"),
	}
}

func (f *fakeStore) ListUsersByTag(_ context.Context, tag string) ([]e.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var users []e.User
	for _, u := range f.users {
		if u.HasTag(tag) {
			users = append(users, copyUser(u))
		}
	}
	slices.SortFunc(users, func(a, b e.User) int { return int(a.ID - b.ID) })
	return users, nil
}
