package auction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/artexchange/auction-engine/internal/metrics"
	"github.com/artexchange/auction-engine/internal/model"
	"github.com/artexchange/auction-engine/internal/notify"
	"github.com/artexchange/auction-engine/internal/store"
)

// winningBid identifies the auction winner during settlement.
type winningBid struct {
	BidderID   string
	BidderName string
	Amount     decimal.Decimal
}

// Settle determines an ended auction's winner, transitions the listing
// to SOLD, creates the pending-payment purchase, and notifies both
// parties. It is idempotent and safe to call concurrently with itself:
// the winner write is guarded by a winnerId check inside the store
// transaction, so exactly one caller performs the transition and every
// other observes already-settled and returns without side effects.
func (s *Service) Settle(ctx context.Context, listingID string) error {
	l, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		return asListingErr(err)
	}

	if l.SaleType != model.SaleTypeAuction {
		return ErrNotAuction
	}
	if l.Status == model.StatusActive && l.AuctionEndTime.After(time.Now().UTC()) {
		// Live auctions settle only after their end time passes; there is
		// no early-end path.
		return ErrAuctionNotEnded
	}

	if l.WinnerID != "" {
		slog.Info("auction already settled", "listing", listingID, "winner", l.WinnerID)
		metrics.SettlementsTotal.WithLabelValues("already_settled").Inc()
		return nil
	}

	winner := s.determineWinner(ctx, l)
	now := time.Now().UTC()

	if winner == nil {
		// No bids were ever placed: the auction ends without a sale.
		err := s.store.MutateListing(ctx, listingID, func(cur *model.Listing) (*store.ListingMutation, error) {
			if cur.WinnerID != "" || cur.Status != model.StatusActive {
				return nil, nil
			}
			updated := *cur
			updated.Status = model.StatusInactive
			updated.EndedAt = now
			updated.UpdatedAt = now
			return &store.ListingMutation{Listing: &updated}, nil
		})
		if err != nil {
			metrics.SettlementsTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("end no-bid auction %s: %w", listingID, err)
		}
		slog.Info("auction ended with no bids", "listing", listingID)
		metrics.SettlementsTotal.WithLabelValues("no_bids").Inc()
		return nil
	}

	// Winner write: the single point where concurrent settlements are
	// serialized.
	var wrote bool
	err = s.store.MutateListing(ctx, listingID, func(cur *model.Listing) (*store.ListingMutation, error) {
		wrote = false
		if cur.WinnerID != "" {
			return nil, nil
		}
		updated := *cur
		updated.Status = model.StatusSold
		updated.WinnerID = winner.BidderID
		updated.WinnerName = winner.BidderName
		updated.WinningBidAmount = winner.Amount
		updated.EndedAt = now
		updated.SoldAt = now
		updated.UpdatedAt = now
		wrote = true
		return &store.ListingMutation{Listing: &updated}, nil
	})
	if err != nil {
		metrics.SettlementsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("write winner for %s: %w", listingID, err)
	}
	if !wrote {
		slog.Info("auction settled by a concurrent caller", "listing", listingID)
		metrics.SettlementsTotal.WithLabelValues("already_settled").Inc()
		return nil
	}

	slog.Info("auction settled",
		"listing", listingID,
		"winner", winner.BidderID,
		"winner_name", winner.BidderName,
		"amount", winner.Amount.String(),
	)
	metrics.SettlementsTotal.WithLabelValues("sold").Inc()

	// Purchase creation and notifications happen after the committed
	// winner write and are never rolled back into it.
	deadline := now.Add(s.paymentWindow)
	p := &model.Purchase{
		ID:              uuid.New().String(),
		ArtworkID:       listingID,
		BuyerID:         winner.BidderID,
		SellerID:        l.ArtistID,
		Price:           winner.Amount,
		Status:          model.PurchasePendingPayment,
		PaymentMethod:   "AUCTION_WIN",
		TransactionID:   fmt.Sprintf("AUCTION_%s_%d", listingID, now.UnixMilli()),
		Notes:           fmt.Sprintf("Auction win - Final bid: %s", winner.Amount),
		PaymentDeadline: deadline,
		PurchasedAt:     now,
	}
	if err := s.store.CreatePurchase(ctx, p); err != nil {
		// The settled listing keeps its winner; the missing purchase is
		// surfaced for manual reconciliation rather than re-attempted.
		slog.Error("auction settled but purchase record creation failed",
			"listing", listingID, "winner", winner.BidderID, "err", err)
	}

	hours := int(s.paymentWindow.Hours())
	s.notifyUser(ctx, winner.BidderID, listingID,
		fmt.Sprintf("Congratulations! You won the auction for %q with a bid of %s. Complete payment within %d hours to secure your purchase.",
			l.Title, winner.Amount, hours),
		notify.KindAuctionWon)
	s.notifyUser(ctx, l.ArtistID, listingID,
		fmt.Sprintf("Your auction for %q has ended. Winner: %s with a bid of %s.",
			l.Title, winner.BidderName, winner.Amount),
		notify.KindAuctionEnded)

	return nil
}

// determineWinner selects the winning bid by scanning the ledger for the
// maximum amount, never trusting insertion order, since no ordering is
// guaranteed between concurrent appends. Falls back to the listing's
// cached highest-bidder fields when the ledger yields nothing.
func (s *Service) determineWinner(ctx context.Context, l *model.Listing) *winningBid {
	bids, err := s.store.BidsByListing(ctx, l.ID)
	if err != nil {
		slog.Warn("bid ledger read failed, falling back to cached fields",
			"listing", l.ID, "err", err)
	}

	var best *winningBid
	for _, b := range bids {
		if best == nil || b.Amount.GreaterThan(best.Amount) {
			best = &winningBid{
				BidderID:   b.BidderID,
				BidderName: b.BidderName,
				Amount:     b.Amount,
			}
		}
	}
	if best != nil {
		return best
	}

	// The cached highest bidder covers ledgers left incomplete by the
	// legacy non-transactional write path.
	if l.HighestBidderID != "" {
		return &winningBid{
			BidderID:   l.HighestBidderID,
			BidderName: s.displayName(ctx, l.HighestBidderID),
			Amount:     l.EffectiveBid(),
		}
	}
	return nil
}

// SweepEndedAuctions settles every active auction whose end time has
// passed. End times are filtered in memory so malformed or missing
// values surface as warnings instead of silently dropping out of a
// store-side query. Returns how many auctions were settled this pass.
func (s *Service) SweepEndedAuctions(ctx context.Context) (int, error) {
	listings, err := s.store.ListListings(ctx, store.ListingFilter{
		SaleType: model.SaleTypeAuction,
		Statuses: []string{model.StatusActive},
	})
	if err != nil {
		return 0, fmt.Errorf("list active auctions: %w", err)
	}

	now := time.Now().UTC()
	processed := 0
	for _, l := range listings {
		if l.AuctionEndTime.IsZero() {
			slog.Warn("active auction has no end time", "listing", l.ID)
			continue
		}
		if l.AuctionEndTime.After(now) {
			continue
		}
		if l.WinnerID != "" {
			continue
		}
		if err := s.Settle(ctx, l.ID); err != nil {
			slog.Error("settlement failed", "listing", l.ID, "err", err)
			continue
		}
		processed++
	}

	if processed > 0 {
		slog.Info("ended-auction sweep complete", "checked", len(listings), "settled", processed)
	}
	return processed, nil
}

// SweepExpiredPayments expires every pending-payment purchase past its
// deadline and reverts the listing to unsold. Idempotent; the purchase
// transition is the exactly-once guard, so a listing is only reverted by
// the sweep pass that actually expired its purchase.
func (s *Service) SweepExpiredPayments(ctx context.Context) (int, error) {
	pending, err := s.store.PendingPurchases(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending purchases: %w", err)
	}

	now := time.Now().UTC()
	expired := 0
	for _, p := range pending {
		if p.PaymentExpired || p.PaymentDeadline.IsZero() || !p.PaymentDeadline.Before(now) {
			continue
		}
		if err := s.expirePurchase(ctx, p, now); err != nil {
			slog.Error("payment expiry failed", "purchase", p.ID, "err", err)
			continue
		}
		expired++
	}

	if expired > 0 {
		slog.Info("payment-expiry sweep complete", "checked", len(pending), "expired", expired)
	}
	return expired, nil
}

func (s *Service) expirePurchase(ctx context.Context, p model.Purchase, now time.Time) error {
	var expired bool
	err := s.store.MutatePurchase(ctx, p.ID, func(cur *model.Purchase) (*model.Purchase, error) {
		expired = false
		if cur.Status != model.PurchasePendingPayment || cur.PaymentExpired {
			return nil, nil
		}
		updated := *cur
		updated.Status = model.PurchaseExpired
		updated.PaymentExpired = true
		expired = true
		return &updated, nil
	})
	if err != nil {
		return fmt.Errorf("mark purchase expired: %w", err)
	}
	if !expired {
		// Lost the race to CompletePayment; nothing to revert.
		return nil
	}
	metrics.PaymentExpiriesTotal.Inc()

	slog.Info("purchase payment expired",
		"purchase", p.ID, "listing", p.ArtworkID, "buyer", p.BuyerID,
		"deadline", p.PaymentDeadline)

	// Revert the listing only while it still carries the winner this
	// purchase was created for. A relisted artwork's newer sale must not
	// be clobbered by a stale expiry.
	var reverted bool
	err = s.store.MutateListing(ctx, p.ArtworkID, func(l *model.Listing) (*store.ListingMutation, error) {
		reverted = false
		if l.WinnerID != p.BuyerID {
			return nil, nil
		}
		updated := *l
		updated.Status = model.StatusInactive
		updated.WinnerID = ""
		updated.WinnerName = ""
		updated.WinningBidAmount = decimal.Zero
		updated.SoldAt = time.Time{}
		updated.UpdatedAt = now
		reverted = true
		return &store.ListingMutation{Listing: &updated}, nil
	})
	if err != nil {
		return fmt.Errorf("revert listing %s: %w", p.ArtworkID, err)
	}
	if !reverted {
		slog.Warn("expired purchase no longer matches listing winner, leaving listing untouched",
			"purchase", p.ID, "listing", p.ArtworkID)
		return nil
	}

	s.notifyUser(ctx, p.SellerID, p.ArtworkID,
		"The auction winner did not complete payment in time. Your artwork is available to relist.",
		notify.KindPaymentExpired)
	return nil
}
