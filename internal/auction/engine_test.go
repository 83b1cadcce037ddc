package auction_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/artexchange/auction-engine/internal/auction"
	"github.com/artexchange/auction-engine/internal/model"
	"github.com/artexchange/auction-engine/internal/notify"
	"github.com/artexchange/auction-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// newTestEnv creates a test Service with an in-memory store and a
// notification recorder.
func newTestEnv(t *testing.T) (*auction.Service, *store.MemoryStore, *notify.Recorder) {
	t.Helper()
	ms := store.NewMemoryStore()
	rec := &notify.Recorder{}
	svc := auction.NewService(ms, rec, 0)
	return svc, ms, rec
}

// seedAuction creates an active auction directly in the store.
func seedAuction(t *testing.T, ms *store.MemoryStore, id, artistID string, startingBid float64, end time.Time) *model.Listing {
	t.Helper()
	now := time.Now().UTC()
	l := &model.Listing{
		ID:             id,
		Title:          "Test Artwork " + id,
		ArtistID:       artistID,
		SaleType:       model.SaleTypeAuction,
		Status:         model.StatusActive,
		StartingBid:    d(startingBid),
		AuctionEndTime: end,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := ms.CreateListing(context.Background(), l); err != nil {
		t.Fatalf("failed to seed auction: %v", err)
	}
	return l
}

// seedFixedPrice creates an active fixed-price listing.
func seedFixedPrice(t *testing.T, ms *store.MemoryStore, id, artistID string, price float64) *model.Listing {
	t.Helper()
	now := time.Now().UTC()
	l := &model.Listing{
		ID:        id,
		Title:     "Test Artwork " + id,
		ArtistID:  artistID,
		SaleType:  model.SaleTypeFixedPrice,
		Status:    model.StatusActive,
		Price:     d(price),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := ms.CreateListing(context.Background(), l); err != nil {
		t.Fatalf("failed to seed listing: %v", err)
	}
	return l
}

func seedUser(t *testing.T, ms *store.MemoryStore, id, name string) {
	t.Helper()
	if err := ms.CreateUser(context.Background(), &model.User{ID: id, Username: id, DisplayName: name}); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
}

// endAuction rewinds an auction's end time so it reads as ended without
// sleeping in tests.
func endAuction(t *testing.T, ms *store.MemoryStore, id string) {
	t.Helper()
	err := ms.MutateListing(context.Background(), id, func(l *model.Listing) (*store.ListingMutation, error) {
		updated := *l
		updated.AuctionEndTime = time.Now().UTC().Add(-time.Minute)
		return &store.ListingMutation{Listing: &updated}, nil
	})
	if err != nil {
		t.Fatalf("failed to end auction: %v", err)
	}
}

func futureEnd() time.Time {
	return time.Now().UTC().Add(time.Hour)
}

// --- Bid placement tests ---

func TestPlaceBid_FirstBid(t *testing.T) {
	svc, ms, _ := newTestEnv(t)
	seedAuction(t, ms, "art1", "artist1", 50, futureEnd())
	seedUser(t, ms, "bidder1", "Alice")

	receipt, err := svc.PlaceBid(context.Background(), "art1", "bidder1", d(100))
	if err != nil {
		t.Fatalf("PlaceBid failed: %v", err)
	}
	if receipt.BidID == "" {
		t.Error("expected non-empty bid_id")
	}
	if !receipt.NewCurrentBid.Equal(d(100)) {
		t.Errorf("expected current bid 100, got %s", receipt.NewCurrentBid)
	}
	if receipt.BidCount != 1 {
		t.Errorf("expected bid_count=1, got %d", receipt.BidCount)
	}

	l, _ := ms.GetListing(context.Background(), "art1")
	if !l.CurrentBid.Equal(d(100)) {
		t.Errorf("listing current bid should be 100, got %s", l.CurrentBid)
	}
	if l.HighestBidderID != "bidder1" {
		t.Errorf("expected highest bidder bidder1, got %s", l.HighestBidderID)
	}

	bids, _ := ms.BidsByListing(context.Background(), "art1")
	if len(bids) != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", len(bids))
	}
	if !bids[0].PreviousBid.Equal(d(50)) {
		t.Errorf("expected previous_bid=50 (starting bid), got %s", bids[0].PreviousBid)
	}
	if bids[0].BidderName != "Alice" {
		t.Errorf("expected denormalized bidder name Alice, got %s", bids[0].BidderName)
	}
}

func TestPlaceBid_MustStrictlyExceedCurrent(t *testing.T) {
	svc, ms, _ := newTestEnv(t)
	seedAuction(t, ms, "art1", "artist1", 50, futureEnd())

	if _, err := svc.PlaceBid(context.Background(), "art1", "bidder1", d(100)); err != nil {
		t.Fatalf("first bid failed: %v", err)
	}

	// A tie is not a raise.
	_, err := svc.PlaceBid(context.Background(), "art1", "bidder2", d(100))
	if !errors.Is(err, auction.ErrBidTooLow) {
		t.Errorf("expected ErrBidTooLow for tie, got %v", err)
	}
	_, err = svc.PlaceBid(context.Background(), "art1", "bidder2", d(99))
	if !errors.Is(err, auction.ErrBidTooLow) {
		t.Errorf("expected ErrBidTooLow for lower bid, got %v", err)
	}
	if _, err := svc.PlaceBid(context.Background(), "art1", "bidder2", d(100.01)); err != nil {
		t.Errorf("bid above current should succeed, got %v", err)
	}
}

func TestPlaceBid_AtOrBelowStartingBidRejected(t *testing.T) {
	svc, ms, _ := newTestEnv(t)
	seedAuction(t, ms, "art1", "artist1", 50, futureEnd())

	_, err := svc.PlaceBid(context.Background(), "art1", "bidder1", d(50))
	if !errors.Is(err, auction.ErrBidTooLow) {
		t.Errorf("expected ErrBidTooLow at starting bid, got %v", err)
	}
}

func TestPlaceBid_SelfBidRejected(t *testing.T) {
	svc, ms, _ := newTestEnv(t)
	seedAuction(t, ms, "art1", "artist1", 50, futureEnd())

	_, err := svc.PlaceBid(context.Background(), "art1", "artist1", d(100))
	if !errors.Is(err, auction.ErrSelfBid) {
		t.Errorf("expected ErrSelfBid, got %v", err)
	}
}

func TestPlaceBid_ListingNotFound(t *testing.T) {
	svc, _, _ := newTestEnv(t)

	_, err := svc.PlaceBid(context.Background(), "missing", "bidder1", d(100))
	if !errors.Is(err, auction.ErrListingNotFound) {
		t.Errorf("expected ErrListingNotFound, got %v", err)
	}
}

func TestPlaceBid_FixedPriceRejected(t *testing.T) {
	svc, ms, _ := newTestEnv(t)
	seedFixedPrice(t, ms, "art1", "artist1", 500)

	_, err := svc.PlaceBid(context.Background(), "art1", "bidder1", d(600))
	if !errors.Is(err, auction.ErrNotAuction) {
		t.Errorf("expected ErrNotAuction, got %v", err)
	}
}

func TestPlaceBid_EndedAuctionRejected(t *testing.T) {
	svc, ms, _ := newTestEnv(t)
	seedAuction(t, ms, "art1", "artist1", 50, futureEnd())
	endAuction(t, ms, "art1")

	// Status is still ACTIVE but the clock has passed the end time.
	_, err := svc.PlaceBid(context.Background(), "art1", "bidder1", d(100))
	if !errors.Is(err, auction.ErrAuctionEnded) {
		t.Errorf("expected ErrAuctionEnded, got %v", err)
	}
}

func TestPlaceBid_InactiveAuctionRejected(t *testing.T) {
	svc, ms, _ := newTestEnv(t)
	l := seedAuction(t, ms, "art1", "artist1", 50, futureEnd())

	err := ms.MutateListing(context.Background(), l.ID, func(cur *model.Listing) (*store.ListingMutation, error) {
		updated := *cur
		updated.Status = model.StatusInactive
		return &store.ListingMutation{Listing: &updated}, nil
	})
	if err != nil {
		t.Fatalf("failed to deactivate listing: %v", err)
	}

	_, err = svc.PlaceBid(context.Background(), "art1", "bidder1", d(100))
	if !errors.Is(err, auction.ErrAuctionNotActive) {
		t.Errorf("expected ErrAuctionNotActive, got %v", err)
	}
}

func TestPlaceBid_ConcurrentBidsStayConsistent(t *testing.T) {
	svc, ms, _ := newTestEnv(t)
	seedAuction(t, ms, "art1", "artist1", 50, futureEnd())

	const bidders = 20
	var wg sync.WaitGroup
	for i := 0; i < bidders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Distinct amounts; many will lose the race and be rejected
			// as too low after a concurrent raise.
			svc.PlaceBid(context.Background(), "art1", fmt.Sprintf("bidder%d", i), d(float64(100+i)))
		}(i)
	}
	wg.Wait()

	l, _ := ms.GetListing(context.Background(), "art1")
	bids, _ := ms.BidsByListing(context.Background(), "art1")

	if l.BidCount != len(bids) {
		t.Errorf("bid_count=%d but ledger has %d entries", l.BidCount, len(bids))
	}

	// The cached current bid must equal the ledger maximum, and every
	// accepted bid must have strictly exceeded the one before it.
	var max decimal.Decimal
	for _, b := range bids {
		if b.Amount.GreaterThan(max) {
			max = b.Amount
		}
		if b.Amount.LessThanOrEqual(b.PreviousBid) {
			t.Errorf("ledger entry %s did not exceed previous bid %s", b.Amount, b.PreviousBid)
		}
	}
	if !l.CurrentBid.Equal(max) {
		t.Errorf("current bid %s does not match ledger max %s", l.CurrentBid, max)
	}
}

// --- Bidder view tests ---

func TestGetBidders_SortAndStatus(t *testing.T) {
	svc, ms, _ := newTestEnv(t)
	seedAuction(t, ms, "art1", "artist1", 50, futureEnd())
	seedUser(t, ms, "u1", "Alice")
	seedUser(t, ms, "u2", "Bob")
	seedUser(t, ms, "u3", "Carol")

	ctx := context.Background()
	mustBid := func(bidder string, amount float64) {
		t.Helper()
		if _, err := svc.PlaceBid(ctx, "art1", bidder, d(amount)); err != nil {
			t.Fatalf("bid %s/%v failed: %v", bidder, amount, err)
		}
	}
	mustBid("u1", 100)
	mustBid("u2", 180)
	mustBid("u3", 250)

	views, err := svc.GetBidders(ctx, "art1", auction.SortByAmount)
	if err != nil {
		t.Fatalf("GetBidders failed: %v", err)
	}
	if len(views) != 3 {
		t.Fatalf("expected 3 bidders, got %d", len(views))
	}
	if views[0].BidderID != "u3" || !views[0].Amount.Equal(d(250)) {
		t.Errorf("expected u3/250 first by amount, got %s/%s", views[0].BidderID, views[0].Amount)
	}
	if views[0].Status != auction.BidStatusHighest {
		t.Errorf("expected top bidder HIGHEST on live auction, got %s", views[0].Status)
	}
	for _, v := range views[1:] {
		if v.Status != auction.BidStatusOutbid {
			t.Errorf("expected OUTBID for %s, got %s", v.BidderID, v.Status)
		}
	}

	// After settlement the leader becomes WINNING.
	endAuction(t, ms, "art1")
	if err := svc.Settle(ctx, "art1"); err != nil {
		t.Fatalf("Settle failed: %v", err)
	}
	views, _ = svc.GetBidders(ctx, "art1", auction.SortByAmount)
	if views[0].Status != auction.BidStatusWinning {
		t.Errorf("expected WINNING after settlement, got %s", views[0].Status)
	}
}

func TestGetBidders_WinnerTaggedDespiteStaleCache(t *testing.T) {
	svc, ms, _ := newTestEnv(t)
	seedAuction(t, ms, "art1", "artist1", 50, futureEnd())

	ctx := context.Background()
	svc.PlaceBid(ctx, "art1", "u1", d(100))
	svc.PlaceBid(ctx, "art1", "u2", d(250))

	// Desync the cached highest bidder from the ledger, as a legacy
	// partial write would. Settlement still picks u2 from the ledger.
	err := ms.MutateListing(ctx, "art1", func(l *model.Listing) (*store.ListingMutation, error) {
		updated := *l
		updated.HighestBidderID = "u1"
		return &store.ListingMutation{Listing: &updated}, nil
	})
	if err != nil {
		t.Fatalf("failed to desync cache: %v", err)
	}
	endAuction(t, ms, "art1")
	if err := svc.Settle(ctx, "art1"); err != nil {
		t.Fatalf("Settle failed: %v", err)
	}

	views, err := svc.GetBidders(ctx, "art1", auction.SortByAmount)
	if err != nil {
		t.Fatalf("GetBidders failed: %v", err)
	}
	if views[0].BidderID != "u2" || views[0].Status != auction.BidStatusWinning {
		t.Errorf("settled winner u2 should be WINNING, got %s=%s", views[0].BidderID, views[0].Status)
	}
	for _, v := range views[1:] {
		if v.Status != auction.BidStatusOutbid {
			t.Errorf("expected OUTBID for %s, got %s", v.BidderID, v.Status)
		}
	}
}

func TestGetBidders_LatestFirst(t *testing.T) {
	svc, ms, _ := newTestEnv(t)
	seedAuction(t, ms, "art1", "artist1", 50, futureEnd())

	ctx := context.Background()
	svc.PlaceBid(ctx, "art1", "u1", d(100))
	svc.PlaceBid(ctx, "art1", "u2", d(150))

	views, err := svc.GetBidders(ctx, "art1", auction.SortByLatest)
	if err != nil {
		t.Fatalf("GetBidders failed: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 bidders, got %d", len(views))
	}
	if views[0].Timestamp.Before(views[1].Timestamp) {
		t.Error("expected latest bid first")
	}
}

func TestBidHistory_NewestFirstWithListing(t *testing.T) {
	svc, ms, _ := newTestEnv(t)
	seedAuction(t, ms, "art1", "artist1", 50, futureEnd())
	seedAuction(t, ms, "art2", "artist2", 50, futureEnd())

	ctx := context.Background()
	if _, err := svc.PlaceBid(ctx, "art1", "u1", d(100)); err != nil {
		t.Fatalf("bid failed: %v", err)
	}
	if _, err := svc.PlaceBid(ctx, "art2", "u1", d(200)); err != nil {
		t.Fatalf("bid failed: %v", err)
	}

	history, err := svc.BidHistory(ctx, "u1")
	if err != nil {
		t.Fatalf("BidHistory failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 bids, got %d", len(history))
	}
	for _, h := range history {
		if h.Listing == nil {
			t.Errorf("expected listing snapshot on bid %s", h.BidID)
		}
	}
	if history[0].Timestamp.Before(history[1].Timestamp) {
		t.Error("expected newest bid first")
	}
}
