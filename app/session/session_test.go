package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func testStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	s, err := store.Get(ctx, 1)
	if err != nil {
		t.Fatalf("get empty: %v", err)
	}
	if !s.IsIdle() {
		t.Fatalf("missing session must be idle, got %+v", s)
	}

	want := Session{
		Step:          StepAddingAutoresponderDelay,
		Autoresponder: &AutoresponderDraft{ID: 4, Content: "follow up"},
	}
	if err = store.Set(ctx, 1, want); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := store.Get(ctx, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Step != want.Step || got.Autoresponder == nil || *got.Autoresponder != *want.Autoresponder {
		t.Fatalf("session: want %+v, got %+v", want, got)
	}
	if got.Template != nil || got.LeadMagnet != nil || got.Broadcast != nil {
		t.Errorf("unexpected drafts: %+v", got)
	}

	other, err := store.Get(ctx, 2)
	if err != nil {
		t.Fatalf("get other chat: %v", err)
	}
	if !other.IsIdle() {
		t.Errorf("sessions leak across chats: %+v", other)
	}

	if err = store.Clear(ctx, 1); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got, _ = store.Get(ctx, 1); !got.IsIdle() {
		t.Errorf("cleared session is not idle: %+v", got)
	}
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)

	store := NewRedisStore(RedisConfig{Addr: mr.Addr(), TTL: time.Hour})
	t.Cleanup(func() { _ = store.Close() })

	testStore(t, store)
}

func TestRedisStoreExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	store := NewRedisStore(RedisConfig{Addr: mr.Addr(), TTL: time.Minute})
	t.Cleanup(func() { _ = store.Close() })

	if err := store.Set(ctx, 7, Session{Step: StepSettingSubscribers}); err != nil {
		t.Fatalf("set: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	s, err := store.Get(ctx, 7)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !s.IsIdle() {
		t.Fatalf("expired session must be idle, got %+v", s)
	}
}
