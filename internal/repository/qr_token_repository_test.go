package repository

import (
	"sync"
	"testing"
	"time"

	"github.com/stamp-next/internal/models"
)

func newLiveToken(nonce, liveKey string, issuedAt time.Time, ttl time.Duration) *models.QRToken {
	key := liveKey
	return &models.QRToken{
		Nonce:     nonce,
		Purpose:   "stamp",
		SubjectID: 7,
		LiveKey:   &key,
		IssuedBy:  "staff:1",
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(ttl),
	}
}

func TestQRTokenRepositoryLiveKeyIsUnique(t *testing.T) {
	db := setupRepositoryTestDB(t, "qr_token_repo_live")
	repo := NewQRTokenRepository(db)
	now := time.Now().UTC()

	if err := repo.Create(newLiveToken("nonce-a", "stamp:7", now, time.Minute)); err != nil {
		t.Fatalf("create first token failed: %v", err)
	}
	err := repo.Create(newLiveToken("nonce-b", "stamp:7", now, time.Minute))
	if err == nil || !IsUniqueViolation(err) {
		t.Fatalf("second live token should violate unique live key, got %v", err)
	}

	revoked, err := repo.RevokeLive("stamp:7", now)
	if err != nil || revoked != 1 {
		t.Fatalf("revoke live want 1 got %d err=%v", revoked, err)
	}
	if err := repo.Create(newLiveToken("nonce-b", "stamp:7", now, time.Minute)); err != nil {
		t.Fatalf("create after revoke failed: %v", err)
	}

	old, err := repo.GetByNonce("nonce-a")
	if err != nil || old == nil {
		t.Fatalf("get revoked token failed: %v", err)
	}
	if old.RevokedAt == nil || old.LiveKey != nil {
		t.Fatalf("revoked token should have revoked_at and null live_key: %+v", old)
	}
}

func TestQRTokenRepositoryMarkConsumedOnce(t *testing.T) {
	db := setupRepositoryTestDB(t, "qr_token_repo_consume")
	repo := NewQRTokenRepository(db)
	now := time.Now().UTC()
	if err := repo.Create(newLiveToken("nonce-c", "stamp:7", now, time.Minute)); err != nil {
		t.Fatalf("create token failed: %v", err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.MarkConsumed("nonce-c", time.Now().UTC())
			if err != nil {
				t.Errorf("mark consumed failed: %v", err)
				return
			}
			if ok {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if success != 1 {
		t.Fatalf("exactly one consumer should win, got %d", success)
	}

	token, _ := repo.GetByNonce("nonce-c")
	if token.ConsumedAt == nil || token.LiveKey != nil {
		t.Fatalf("consumed token should release live key: %+v", token)
	}
}

func TestQRTokenRepositoryMarkConsumedRejectsRevoked(t *testing.T) {
	db := setupRepositoryTestDB(t, "qr_token_repo_revoked")
	repo := NewQRTokenRepository(db)
	now := time.Now().UTC()
	if err := repo.Create(newLiveToken("nonce-d", "redeem:7", now, time.Minute)); err != nil {
		t.Fatalf("create token failed: %v", err)
	}
	if _, err := repo.RevokeLive("redeem:7", now); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	ok, err := repo.MarkConsumed("nonce-d", now)
	if err != nil {
		t.Fatalf("mark consumed failed: %v", err)
	}
	if ok {
		t.Fatalf("revoked token must not be consumable")
	}
}

func TestQRTokenRepositoryPurgeDead(t *testing.T) {
	db := setupRepositoryTestDB(t, "qr_token_repo_purge")
	repo := NewQRTokenRepository(db)
	now := time.Now().UTC()

	expired := newLiveToken("nonce-expired", "join:1", now.Add(-3*time.Hour), time.Minute)
	live := newLiveToken("nonce-live", "join:2", now, time.Hour)
	consumed := newLiveToken("nonce-consumed", "stamp:3", now.Add(-3*time.Hour), 48*time.Hour)
	for _, token := range []*models.QRToken{expired, live, consumed} {
		if err := repo.Create(token); err != nil {
			t.Fatalf("create token failed: %v", err)
		}
	}
	if ok, err := repo.MarkConsumed("nonce-consumed", now.Add(-2*time.Hour)); err != nil || !ok {
		t.Fatalf("consume failed: %v", err)
	}

	purged, err := repo.PurgeDead(now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("purge failed: %v", err)
	}
	if purged != 2 {
		t.Fatalf("expected 2 purged tokens got %d", purged)
	}
	remaining, _ := repo.GetByNonce("nonce-live")
	if remaining == nil {
		t.Fatalf("live token should survive purge")
	}
}
