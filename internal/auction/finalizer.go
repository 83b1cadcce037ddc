package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/artexchange/auction-engine/internal/model"
	"github.com/artexchange/auction-engine/internal/notify"
	"github.com/artexchange/auction-engine/internal/store"
)

// MarkSold atomically transitions a listing from non-SOLD to SOLD at
// most once. Returns false when the listing was already sold — this is
// how direct purchase and a racing settlement cannot both win. The
// store's transaction primitive retries on conflicting concurrent
// writes until it observes either a clean write or a terminal
// already-sold state.
func (s *Service) MarkSold(ctx context.Context, listingID string) (bool, error) {
	var sold bool
	err := s.store.MutateListing(ctx, listingID, func(l *model.Listing) (*store.ListingMutation, error) {
		sold = false
		if l.Status == model.StatusSold {
			return nil, nil
		}

		now := time.Now().UTC()
		updated := *l
		updated.Status = model.StatusSold
		updated.SoldAt = now
		updated.UpdatedAt = now
		sold = true
		return &store.ListingMutation{Listing: &updated}, nil
	})
	if err != nil {
		return false, asListingErr(err)
	}
	if sold {
		slog.Info("listing marked sold", "listing", listingID)
	}
	return sold, nil
}

// PurchaseDirect executes the fixed-price checkout flow: MarkSold wins
// or loses the race atomically, and only the winner creates the
// COMPLETED purchase record.
func (s *Service) PurchaseDirect(ctx context.Context, listingID, buyerID string) (*model.Purchase, error) {
	l, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		return nil, asListingErr(err)
	}
	if l.SaleType != model.SaleTypeFixedPrice {
		return nil, ErrNotFixedPrice
	}
	if l.Status != model.StatusActive {
		if l.Status == model.StatusSold {
			return nil, ErrAlreadySold
		}
		return nil, ErrAuctionNotActive
	}

	sold, err := s.MarkSold(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if !sold {
		return nil, ErrAlreadySold
	}

	now := time.Now().UTC()
	p := &model.Purchase{
		ID:            uuid.New().String(),
		ArtworkID:     listingID,
		BuyerID:       buyerID,
		SellerID:      l.ArtistID,
		Price:         l.Price,
		Status:        model.PurchaseCompleted,
		PaymentMethod: "DIRECT",
		TransactionID: fmt.Sprintf("PURCHASE_%s_%d", listingID, now.UnixMilli()),
		PaidAt:        now,
		PurchasedAt:   now,
	}
	if err := s.store.CreatePurchase(ctx, p); err != nil {
		// The listing is committed as sold; a missing purchase record is
		// an anomaly to reconcile, not a reason to unwind the sale.
		slog.Error("listing sold but purchase record creation failed",
			"listing", listingID, "buyer", buyerID, "err", err)
		return nil, fmt.Errorf("create purchase: %w", err)
	}

	s.notifyUser(ctx, buyerID, listingID,
		"Thank you for your purchase! Your receipt and purchase details are now available.",
		notify.KindPurchase)
	s.notifyUser(ctx, l.ArtistID, listingID,
		"Your artwork has been sold. View the purchase details in your dashboard.",
		notify.KindPurchase)

	return p, nil
}

// PaymentDetails carries the buyer-supplied fields of a payment
// completion. Payment itself is client-asserted; there is no gateway.
type PaymentDetails struct {
	Method          string
	ShippingAddress string
	Notes           string
}

// CompletePayment transitions an auction-win purchase from
// PENDING_PAYMENT to COMPLETED. It races the expiry sweep: whichever
// commits first wins, and the loser observes a terminal state.
func (s *Service) CompletePayment(ctx context.Context, purchaseID, buyerID string, details PaymentDetails) (*model.Purchase, error) {
	var completed model.Purchase
	err := s.store.MutatePurchase(ctx, purchaseID, func(p *model.Purchase) (*model.Purchase, error) {
		if p.BuyerID != buyerID {
			return nil, ErrWrongBuyer
		}
		if p.Status != model.PurchasePendingPayment {
			return nil, ErrNotPending
		}
		now := time.Now().UTC()
		if !p.PaymentDeadline.IsZero() && p.PaymentDeadline.Before(now) {
			return nil, ErrDeadlinePassed
		}

		updated := *p
		updated.Status = model.PurchaseCompleted
		updated.PaymentMethod = details.Method
		updated.ShippingAddress = details.ShippingAddress
		if details.Notes != "" {
			updated.Notes = details.Notes
		}
		updated.PaymentExpired = false
		updated.PaidAt = now
		updated.TransactionID = fmt.Sprintf("PAYMENT_%s_%d", p.ID, now.UnixMilli())
		completed = updated
		return &updated, nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrPurchaseNotFound
		}
		return nil, err
	}

	s.notifyUser(ctx, completed.BuyerID, completed.ArtworkID,
		"Payment received. Thank you for your purchase!",
		notify.KindPurchase)
	s.notifyUser(ctx, completed.SellerID, completed.ArtworkID,
		"The auction winner has completed payment. View the purchase details in your dashboard.",
		notify.KindPurchase)

	slog.Info("payment completed", "purchase", purchaseID, "buyer", buyerID)
	return &completed, nil
}
