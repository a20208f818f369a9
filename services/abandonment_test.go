package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"challenge-settlement-system/models"
)

func newTestReaper(store *memStore) *AbandonmentReaper {
	r := NewAbandonmentReaper(store, discardLogger())
	r.now = fixedClock(testNow)
	return r
}

func startedChallenge(id uint) models.Challenge {
	return models.Challenge{
		ID:         id,
		StartDate:  testNow.Add(-time.Minute),
		EndDate:    testNow.AddDate(0, 0, 7),
		EntryPoint: 100,
	}
}

func TestAbandonmentReaper_DeletesSoleHostChallenge(t *testing.T) {
	store := newMemStore()
	store.addUser(models.User{ID: 1, Point: 40, IsInChallenge: true})
	store.addChallenge(startedChallenge(1), []uint{1}, []bool{false})

	res, err := newTestReaper(store).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res != (RunResult{Candidates: 1, Applied: 1}) {
		t.Errorf("Run() = %+v, want 1 applied", res)
	}
	if _, ok := store.challenge(1); ok {
		t.Error("abandoned challenge still exists")
	}
	host := store.user(1)
	if host.IsInChallenge {
		t.Error("host still marked in challenge")
	}
	if host.Point != 40 {
		t.Errorf("host point = %d, want untouched 40", host.Point)
	}
	if n := len(store.challengersOf(1)); n != 0 {
		t.Errorf("challengers left = %d, want 0", n)
	}
}

func TestAbandonmentReaper_KeepsJoinedChallenge(t *testing.T) {
	store := newMemStore()
	store.addUser(models.User{ID: 1, IsInChallenge: true})
	store.addUser(models.User{ID: 2, IsInChallenge: true})
	store.addChallenge(startedChallenge(1), []uint{1, 2}, []bool{false, false})

	res, err := newTestReaper(store).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res != (RunResult{Candidates: 1, Skipped: 1}) {
		t.Errorf("Run() = %+v, want 1 skipped", res)
	}
	if _, ok := store.challenge(1); !ok {
		t.Error("joined challenge was deleted")
	}
	if !store.user(1).IsInChallenge {
		t.Error("host released from a live challenge")
	}
}

func TestAbandonmentReaper_IgnoresUnstartedAndDistributed(t *testing.T) {
	store := newMemStore()
	store.addUser(models.User{ID: 1, IsInChallenge: true})
	store.addUser(models.User{ID: 2, IsInChallenge: true})

	future := startedChallenge(1)
	future.StartDate = testNow.Add(time.Hour)
	store.addChallenge(future, []uint{1}, []bool{false})

	settled := startedChallenge(2)
	settled.IsDistributed = true
	store.addChallenge(settled, []uint{2}, []bool{true})

	res, err := newTestReaper(store).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Candidates != 0 {
		t.Errorf("Run() = %+v, want no candidates", res)
	}
	if _, ok := store.challenge(1); !ok {
		t.Error("unstarted challenge deleted")
	}
	if _, ok := store.challenge(2); !ok {
		t.Error("distributed challenge deleted")
	}
}

func TestAbandonmentReaper_MissingHostStillDeletes(t *testing.T) {
	store := newMemStore()
	store.addChallenge(startedChallenge(1), []uint{77}, []bool{false})

	var buf bytes.Buffer
	r := newTestReaper(store)
	r.logger = newTestLogger(&buf)

	if err := r.ReapChallenge(context.Background(), 1); err != nil {
		t.Fatalf("ReapChallenge() error = %v", err)
	}
	if _, ok := store.challenge(1); ok {
		t.Error("challenge with missing host not deleted")
	}
	if !strings.Contains(buf.String(), "host user missing while reaping") {
		t.Errorf("missing host not logged: %s", buf.String())
	}
}

func TestAbandonmentReaper_ReapChallenge_Errors(t *testing.T) {
	store := newMemStore()
	store.addChallenge(startedChallenge(1), nil, nil)

	r := newTestReaper(store)
	ctx := context.Background()

	if err := r.ReapChallenge(ctx, 1); !errors.Is(err, ErrNoChallengers) {
		t.Errorf("empty challenge: error = %v, want ErrNoChallengers", err)
	}
	if _, ok := store.challenge(1); !ok {
		t.Error("inconsistent challenge deleted")
	}
	if err := r.ReapChallenge(ctx, 9); !errors.Is(err, ErrChallengeGone) {
		t.Errorf("missing challenge: error = %v, want ErrChallengeGone", err)
	}
}

func TestAbandonmentReaper_HostUpdateFailureRollsBack(t *testing.T) {
	store := newMemStore()
	store.addUser(models.User{ID: 1, IsInChallenge: true})
	store.addChallenge(startedChallenge(1), []uint{1}, []bool{false})
	store.userUpdateErr[1] = errStoreDown

	res, err := newTestReaper(store).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Failed != 1 {
		t.Errorf("Run() = %+v, want 1 failed", res)
	}
	if _, ok := store.challenge(1); !ok {
		t.Error("challenge deleted although the host update failed")
	}
}
