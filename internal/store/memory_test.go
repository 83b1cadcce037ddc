package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/artexchange/auction-engine/internal/model"
	"github.com/artexchange/auction-engine/internal/store"
)

func seedListing(t *testing.T, ms *store.MemoryStore, id string) {
	t.Helper()
	err := ms.CreateListing(context.Background(), &model.Listing{
		ID:          id,
		Title:       "Artwork " + id,
		ArtistID:    "artist1",
		SaleType:    model.SaleTypeAuction,
		Status:      model.StatusActive,
		StartingBid: decimal.NewFromInt(50),
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("failed to seed listing: %v", err)
	}
}

func TestMutateListing_CommitsListingAndBidsTogether(t *testing.T) {
	ms := store.NewMemoryStore()
	seedListing(t, ms, "l1")

	ctx := context.Background()
	err := ms.MutateListing(ctx, "l1", func(l *model.Listing) (*store.ListingMutation, error) {
		updated := *l
		updated.CurrentBid = decimal.NewFromInt(100)
		updated.BidCount = 1
		updated.HighestBidderID = "u1"
		return &store.ListingMutation{
			Listing: &updated,
			Bids: []*model.Bid{{
				ID: "b1", ListingID: "l1", BidderID: "u1",
				Amount: decimal.NewFromInt(100), Timestamp: time.Now().UTC(),
			}},
		}, nil
	})
	if err != nil {
		t.Fatalf("MutateListing failed: %v", err)
	}

	l, _ := ms.GetListing(ctx, "l1")
	if !l.CurrentBid.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected current bid 100, got %s", l.CurrentBid)
	}
	if l.Version != 1 {
		t.Errorf("expected version bump to 1, got %d", l.Version)
	}
	bids, _ := ms.BidsByListing(ctx, "l1")
	if len(bids) != 1 {
		t.Errorf("expected 1 ledger entry, got %d", len(bids))
	}
}

func TestMutateListing_ErrorAbortsWithoutWriting(t *testing.T) {
	ms := store.NewMemoryStore()
	seedListing(t, ms, "l1")

	ctx := context.Background()
	boom := errors.New("rejected")
	err := ms.MutateListing(ctx, "l1", func(l *model.Listing) (*store.ListingMutation, error) {
		l.Status = model.StatusSold // mutating the copy must not leak
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected mutator error surfaced, got %v", err)
	}

	l, _ := ms.GetListing(ctx, "l1")
	if l.Status != model.StatusActive {
		t.Errorf("aborted mutation leaked: status %s", l.Status)
	}
	if l.Version != 0 {
		t.Errorf("expected version unchanged, got %d", l.Version)
	}
}

func TestMutateListing_NilMutationIsReadOnly(t *testing.T) {
	ms := store.NewMemoryStore()
	seedListing(t, ms, "l1")

	ctx := context.Background()
	if err := ms.MutateListing(ctx, "l1", func(l *model.Listing) (*store.ListingMutation, error) {
		return nil, nil
	}); err != nil {
		t.Fatalf("read-only mutation failed: %v", err)
	}

	l, _ := ms.GetListing(ctx, "l1")
	if l.Version != 0 {
		t.Errorf("read-only mutation bumped version to %d", l.Version)
	}
}

func TestMutateListing_NotFound(t *testing.T) {
	ms := store.NewMemoryStore()

	err := ms.MutateListing(context.Background(), "missing", func(l *model.Listing) (*store.ListingMutation, error) {
		return nil, nil
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMutatePurchase(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	err := ms.CreatePurchase(ctx, &model.Purchase{
		ID: "p1", ArtworkID: "l1", BuyerID: "u1", SellerID: "artist1",
		Price: decimal.NewFromInt(100), Status: model.PurchasePendingPayment,
	})
	if err != nil {
		t.Fatalf("CreatePurchase failed: %v", err)
	}

	err = ms.MutatePurchase(ctx, "p1", func(p *model.Purchase) (*model.Purchase, error) {
		updated := *p
		updated.Status = model.PurchaseCompleted
		return &updated, nil
	})
	if err != nil {
		t.Fatalf("MutatePurchase failed: %v", err)
	}

	p, _ := ms.GetPurchase(ctx, "p1")
	if p.Status != model.PurchaseCompleted {
		t.Errorf("expected COMPLETED, got %s", p.Status)
	}
	if p.Version != 1 {
		t.Errorf("expected version bump, got %d", p.Version)
	}

	pending, _ := ms.PendingPurchases(ctx)
	if len(pending) != 0 {
		t.Errorf("completed purchase still listed as pending")
	}
}

func TestListListings_Filter(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	seedListing(t, ms, "l1")
	seedListing(t, ms, "l2")
	if err := ms.CreateListing(ctx, &model.Listing{
		ID: "f1", ArtistID: "artist2", SaleType: model.SaleTypeFixedPrice,
		Status: model.StatusSold, Price: decimal.NewFromInt(40),
	}); err != nil {
		t.Fatalf("CreateListing failed: %v", err)
	}

	auctions, err := ms.ListListings(ctx, store.ListingFilter{
		SaleType: model.SaleTypeAuction,
		Statuses: []string{model.StatusActive},
	})
	if err != nil {
		t.Fatalf("ListListings failed: %v", err)
	}
	if len(auctions) != 2 {
		t.Errorf("expected 2 active auctions, got %d", len(auctions))
	}

	byArtist, _ := ms.ListListings(ctx, store.ListingFilter{ArtistID: "artist2"})
	if len(byArtist) != 1 || byArtist[0].ID != "f1" {
		t.Errorf("artist filter wrong: %+v", byArtist)
	}
}
