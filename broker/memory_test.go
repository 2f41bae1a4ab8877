package broker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoryStateStore_ConsumeOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStateStore()
	st := OAuthState{State: "tok1", UserID: "user1", ExpiresAt: time.Now().Add(5 * time.Minute)}
	if err := s.Put(ctx, st); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	got, err := s.Consume(ctx, "tok1")
	if err != nil {
		t.Fatalf("first Consume error: %v", err)
	}
	if got.UserID != "user1" {
		t.Errorf("expected user1, got %s", got.UserID)
	}

	if _, err := s.Consume(ctx, "tok1"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Consume: expected ErrInvalidState, got %v", err)
	}
}

func TestMemoryStateStore_Expiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStateStore()
	st := OAuthState{State: "old", UserID: "user1", ExpiresAt: time.Now().Add(-time.Second)}
	if err := s.Put(ctx, st); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	// Expiry takes priority over presence: the row exists but is stale.
	if _, err := s.Consume(ctx, "old"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState for expired state, got %v", err)
	}
}

func TestMemoryStateStore_ConcurrentConsume(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStateStore()
	st := OAuthState{State: "race", UserID: "user1", ExpiresAt: time.Now().Add(time.Minute)}
	if err := s.Put(ctx, st); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Consume(ctx, "race"); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Errorf("expected exactly one successful consume, got %d", wins)
	}
}

func TestMemoryTokenStore_Upsert(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTokenStore()

	if _, err := s.Get(ctx, "user1", ProviderGoogle); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}

	first := Integration{
		UserID:       "user1",
		Provider:     ProviderGoogle,
		AccessToken:  "A1",
		RefreshToken: "R1",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	if err := s.Upsert(ctx, first); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}

	got, err := s.Get(ctx, "user1", ProviderGoogle)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.AccessToken != "A1" || got.RefreshToken != "R1" {
		t.Errorf("unexpected row: %+v", got)
	}
}

func TestMemoryTokenStore_PreservesRefreshToken(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTokenStore()
	if err := s.Upsert(ctx, Integration{UserID: "u", Provider: ProviderGoogle, AccessToken: "A1", RefreshToken: "R1"}); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}
	// Refresh responses routinely omit the refresh token.
	if err := s.Upsert(ctx, Integration{UserID: "u", Provider: ProviderGoogle, AccessToken: "A2"}); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}
	got, err := s.Get(ctx, "u", ProviderGoogle)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.AccessToken != "A2" {
		t.Errorf("expected access token A2, got %s", got.AccessToken)
	}
	if got.RefreshToken != "R1" {
		t.Errorf("refresh token was not preserved: %q", got.RefreshToken)
	}
}
