package auction

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/artexchange/auction-engine/internal/metrics"
	"github.com/artexchange/auction-engine/internal/model"
	"github.com/artexchange/auction-engine/internal/store"
)

// BidReceipt is returned to the caller of an accepted bid.
type BidReceipt struct {
	BidID         string          `json:"bid_id"`
	NewCurrentBid decimal.Decimal `json:"new_current_bid"`
	BidCount      int             `json:"bid_count"`
}

// PlaceBid validates and places a bid. The current-bid check, the listing
// cache update, and the ledger append all run inside one store
// transaction, so two concurrent bids reading the same stale current bid
// can never both be admitted: the second commit observes the conflict,
// re-reads, and re-validates against the new amount.
//
// Preconditions, in order, each with a distinct rejection: listing exists;
// listing is an auction; auction is active and its end time has not
// passed (the status flag may lag the clock, so both are checked);
// the bidder is not the artist; the amount strictly exceeds the current
// bid (the starting bid when no bids have been placed — ties rejected).
func (s *Service) PlaceBid(ctx context.Context, listingID, bidderID string, amount decimal.Decimal) (*BidReceipt, error) {
	// Resolve the display name outside the transaction; it is a
	// denormalized cache, not a safety-critical field.
	bidderName := s.displayName(ctx, bidderID)

	var receipt BidReceipt
	err := s.store.MutateListing(ctx, listingID, func(l *model.Listing) (*store.ListingMutation, error) {
		if l.SaleType != model.SaleTypeAuction {
			return nil, ErrNotAuction
		}
		if l.Status != model.StatusActive {
			return nil, ErrAuctionNotActive
		}
		now := time.Now().UTC()
		if !l.AuctionEndTime.After(now) {
			return nil, ErrAuctionEnded
		}
		if bidderID == l.ArtistID {
			return nil, ErrSelfBid
		}
		floor := l.EffectiveBid()
		if amount.LessThanOrEqual(floor) {
			return nil, fmt.Errorf("%w: current bid is %s", ErrBidTooLow, floor)
		}

		updated := *l
		updated.CurrentBid = amount
		updated.BidCount = l.BidCount + 1
		updated.HighestBidderID = bidderID
		updated.UpdatedAt = now

		bid := &model.Bid{
			ID:          uuid.New().String(),
			ListingID:   l.ID,
			BidderID:    bidderID,
			BidderName:  bidderName,
			Amount:      amount,
			PreviousBid: floor,
			Timestamp:   now,
		}

		receipt = BidReceipt{
			BidID:         bid.ID,
			NewCurrentBid: amount,
			BidCount:      updated.BidCount,
		}
		return &store.ListingMutation{
			Listing: &updated,
			Bids:    []*model.Bid{bid},
		}, nil
	})
	if err != nil {
		metrics.BidsTotal.WithLabelValues("rejected").Inc()
		return nil, asListingErr(err)
	}

	metrics.BidsTotal.WithLabelValues("accepted").Inc()
	slog.Info("bid accepted",
		"listing", listingID,
		"bidder", bidderID,
		"amount", amount.String(),
		"bid_count", receipt.BidCount,
	)
	return &receipt, nil
}

// Bidder sort orders.
const (
	SortByAmount = "amount"
	SortByLatest = "latest"
)

// Bidder statuses.
const (
	BidStatusHighest = "HIGHEST" // leading an active auction
	BidStatusWinning = "WINNING" // won an ended auction
	BidStatusOutbid  = "OUTBID"
)

// BidderView is one row of the per-auction bidder list shown to the
// artist.
type BidderView struct {
	BidID       string          `json:"bid_id"`
	BidderID    string          `json:"bidder_id"`
	BidderName  string          `json:"bidder_name"`
	Username    string          `json:"username,omitempty"`
	Email       string          `json:"email,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	PreviousBid decimal.Decimal `json:"previous_bid"`
	Timestamp   time.Time       `json:"timestamp"`
	Status      string          `json:"status"`
}

// GetBidders returns every bidder on a listing, sorted by amount
// (highest first) or by timestamp (latest first), each tagged with
// HIGHEST/WINNING/OUTBID relative to the listing's current state.
func (s *Service) GetBidders(ctx context.Context, listingID, sortBy string) ([]BidderView, error) {
	l, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		return nil, asListingErr(err)
	}

	bids, err := s.store.BidsByListing(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("load bid ledger: %w", err)
	}

	views := make([]BidderView, 0, len(bids))
	for _, b := range bids {
		v := BidderView{
			BidID:       b.ID,
			BidderID:    b.BidderID,
			BidderName:  b.BidderName,
			Amount:      b.Amount,
			PreviousBid: b.PreviousBid,
			Timestamp:   b.Timestamp,
		}
		// Enrich with live identity details; the denormalized name is the
		// fallback when the lookup fails.
		if u, err := s.store.GetUser(ctx, b.BidderID); err == nil {
			v.Username = u.Username
			v.Email = u.Email
			v.BidderName = u.Name()
		}
		views = append(views, v)
	}

	if sortBy == SortByAmount {
		sort.SliceStable(views, func(i, j int) bool {
			return views[i].Amount.GreaterThan(views[j].Amount)
		})
	} else {
		sort.SliceStable(views, func(i, j int) bool {
			return views[i].Timestamp.After(views[j].Timestamp)
		})
	}

	// The highest amount is found by scanning, not by trusting any
	// ordering of the ledger.
	var highest decimal.Decimal
	for _, v := range views {
		if v.Amount.GreaterThan(highest) {
			highest = v.Amount
		}
	}

	// On a sold listing the settled winner is authoritative; the cached
	// highest bidder can lag the ledger and is only trusted while the
	// auction is live.
	ended := l.Status == model.StatusSold
	leaderID := l.HighestBidderID
	if ended && l.WinnerID != "" {
		leaderID = l.WinnerID
	}
	for i := range views {
		v := &views[i]
		if v.Amount.Equal(highest) && v.BidderID == leaderID {
			if ended {
				v.Status = BidStatusWinning
			} else {
				v.Status = BidStatusHighest
			}
		} else {
			v.Status = BidStatusOutbid
		}
	}

	return views, nil
}

// UserBid is one row of a bidder's own bid history, joined with a
// snapshot of the listing it was placed against.
type UserBid struct {
	BidID     string          `json:"bid_id"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
	Listing   *model.Listing  `json:"listing,omitempty"`
}

// BidHistory returns all bids placed by a user, newest first, with the
// listings they target. Bids whose listing has been removed are returned
// without one.
func (s *Service) BidHistory(ctx context.Context, bidderID string) ([]UserBid, error) {
	bids, err := s.store.BidsByBidder(ctx, bidderID)
	if err != nil {
		return nil, fmt.Errorf("load bid ledger: %w", err)
	}

	out := make([]UserBid, 0, len(bids))
	for _, b := range bids {
		ub := UserBid{
			BidID:     b.ID,
			Amount:    b.Amount,
			Timestamp: b.Timestamp,
		}
		if l, err := s.store.GetListing(ctx, b.ListingID); err == nil {
			ub.Listing = l
		}
		out = append(out, ub)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}
