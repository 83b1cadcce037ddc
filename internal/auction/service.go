// Package auction implements the auction lifecycle: bid placement, the
// atomic sold transition, end-of-auction settlement, and payment-deadline
// expiry. All mutual exclusion is delegated to the store's optimistic
// transaction primitive — no in-process locks guard cross-request
// contention.
package auction

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/artexchange/auction-engine/internal/notify"
	"github.com/artexchange/auction-engine/internal/store"
)

// Validation rejections. Each maps to a distinct reason string for the
// caller and is never retried.
var (
	ErrListingNotFound  = errors.New("listing not found")
	ErrPurchaseNotFound = errors.New("purchase not found")
	ErrNotAuction       = errors.New("listing is not an auction")
	ErrNotFixedPrice    = errors.New("listing is not a fixed-price sale")
	ErrAuctionNotActive = errors.New("auction is not active")
	ErrAuctionEnded     = errors.New("auction has ended")
	ErrAuctionNotEnded  = errors.New("auction has not ended yet")
	ErrSelfBid          = errors.New("artists cannot bid on their own auction")
	ErrBidTooLow        = errors.New("bid must be higher than current bid")
	ErrAlreadySold      = errors.New("listing is already sold")
	ErrNotPending       = errors.New("purchase is not awaiting payment")
	ErrWrongBuyer       = errors.New("purchase belongs to a different buyer")
	ErrDeadlinePassed   = errors.New("payment deadline has passed")
)

// DefaultPaymentWindow is how long an auction winner has to pay.
const DefaultPaymentWindow = 24 * time.Hour

// Service is the auction engine. Request handlers and the scheduler both
// call into it, concurrently, for the same listings — every
// check-then-set status transition routes through store.MutateListing /
// store.MutatePurchase.
type Service struct {
	store         store.Store
	notifier      notify.Notifier
	paymentWindow time.Duration
}

// NewService creates the auction service. A nil notifier falls back to
// logging; a non-positive payment window falls back to 24h.
func NewService(st store.Store, notifier notify.Notifier, paymentWindow time.Duration) *Service {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	if paymentWindow <= 0 {
		paymentWindow = DefaultPaymentWindow
	}
	return &Service{
		store:         st,
		notifier:      notifier,
		paymentWindow: paymentWindow,
	}
}

// notifyUser delivers a notification and swallows failures: delivery is
// never allowed to affect the outcome of the operation that triggered it.
func (s *Service) notifyUser(ctx context.Context, userID, artworkID, message, kind string) {
	err := s.notifier.Notify(ctx, notify.Notification{
		UserID:    userID,
		ArtworkID: artworkID,
		Message:   message,
		Kind:      kind,
		SentAt:    time.Now().UTC(),
	})
	if err != nil {
		slog.Error("notification delivery failed",
			"user", userID,
			"artwork", artworkID,
			"kind", kind,
			"err", err,
		)
	}
}

// displayName resolves a user's display name, degrading to a placeholder
// when the identity lookup fails.
func (s *Service) displayName(ctx context.Context, userID string) string {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		slog.Warn("user lookup failed", "user", userID, "err", err)
		return "Unknown User"
	}
	return u.Name()
}

func asListingErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrListingNotFound
	}
	return err
}
