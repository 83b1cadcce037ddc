package auction_test

import (
	"context"
	"testing"
	"time"

	"github.com/artexchange/auction-engine/internal/auction"
	"github.com/artexchange/auction-engine/internal/model"
)

func TestScheduler_RunOnce(t *testing.T) {
	svc, ms, _ := newTestEnv(t)
	sched := auction.NewScheduler(svc, time.Minute, 30*time.Second)

	// One ended auction with a bid and one pending purchase past its
	// deadline, so a single pass exercises both sweeps.
	ctx := context.Background()
	seedAuction(t, ms, "art1", "artist1", 50, futureEnd())
	if _, err := svc.PlaceBid(ctx, "art1", "u1", d(100)); err != nil {
		t.Fatalf("bid failed: %v", err)
	}
	endAuction(t, ms, "art1")

	if err := sched.RunOnce(ctx); err != nil {
		t.Fatalf("first pass failed: %v", err)
	}
	l, _ := ms.GetListing(ctx, "art1")
	if l.Status != model.StatusSold {
		t.Fatalf("expected SOLD after pass, got %s", l.Status)
	}

	p := purchaseFor(t, ms, "art1")
	if p == nil {
		t.Fatal("expected pending purchase")
	}
	backdateDeadline(t, ms, p.ID)

	if err := sched.RunOnce(ctx); err != nil {
		t.Fatalf("second pass failed: %v", err)
	}
	got, _ := ms.GetPurchase(ctx, p.ID)
	if got.Status != model.PurchaseExpired {
		t.Errorf("expected EXPIRED after pass, got %s", got.Status)
	}
	l, _ = ms.GetListing(ctx, "art1")
	if l.Status != model.StatusInactive {
		t.Errorf("expected listing reverted after pass, got %s", l.Status)
	}
}

func TestScheduler_StartStop(t *testing.T) {
	svc, ms, _ := newTestEnv(t)

	seedAuction(t, ms, "art1", "artist1", 50, futureEnd())
	endAuction(t, ms, "art1")

	sched := auction.NewScheduler(svc, 10*time.Millisecond, time.Millisecond)
	sched.Start()
	sched.Start() // second Start is a no-op

	deadline := time.After(2 * time.Second)
	for {
		l, _ := ms.GetListing(context.Background(), "art1")
		if l.Status == model.StatusInactive {
			break
		}
		select {
		case <-deadline:
			t.Fatal("scheduler never swept the ended auction")
		case <-time.After(5 * time.Millisecond):
		}
	}

	sched.Stop()
	sched.Stop() // second Stop is a no-op
}
