// Package store defines the persistence interface for the auction engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/artexchange/auction-engine/internal/model"
)

var (
	// ErrNotFound is returned when the requested document does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a mutation exhausts its optimistic
	// retries against concurrent writers. Callers may retry the whole
	// operation.
	ErrConflict = errors.New("write conflict")
)

// ListingMutation is the result of a ListingMutator: the listing state to
// commit plus any bid-ledger entries to append atomically with it.
type ListingMutation struct {
	Listing *model.Listing
	Bids    []*model.Bid
}

// ListingMutator inspects the current listing state and returns the
// mutation to commit, or nil for a read-only no-op. Returning an error
// aborts the transaction and surfaces the error to the caller unchanged.
type ListingMutator func(l *model.Listing) (*ListingMutation, error)

// PurchaseMutator is the purchase counterpart of ListingMutator.
// Returning nil commits nothing.
type PurchaseMutator func(p *model.Purchase) (*model.Purchase, error)

// ListingFilter narrows ListListings results. Zero fields are ignored.
type ListingFilter struct {
	SaleType string
	Statuses []string
	ArtistID string
	Limit    int
}

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer for listings.
//
// MutateListing and MutatePurchase are the transaction primitives: every
// check-then-set transition of safety-critical fields (status, winner
// fields, purchase status) must go through them. Plain writes are only
// acceptable for non-critical denormalized fields.
type Store interface {
	// --- Listings ---

	// CreateListing persists a new listing.
	CreateListing(ctx context.Context, l *model.Listing) error

	// GetListing retrieves a listing by ID.
	GetListing(ctx context.Context, id string) (*model.Listing, error)

	// ListListings returns listings matching the filter.
	ListListings(ctx context.Context, f ListingFilter) ([]model.Listing, error)

	// DeleteListing removes a listing.
	DeleteListing(ctx context.Context, id string) error

	// MutateListing runs fn against the current listing state and commits
	// the returned listing together with any appended bids in one
	// transaction, retrying on conflicting concurrent writes.
	MutateListing(ctx context.Context, id string, fn ListingMutator) error

	// --- Immutable bid ledger ---

	// AppendBid appends an immutable ledger entry outside any listing
	// transaction. Bid placement goes through MutateListing instead; this
	// exists for backfill and tooling.
	AppendBid(ctx context.Context, b *model.Bid) error

	// BidsByListing returns all ledger entries for a listing. No ordering
	// is guaranteed beyond each entry's own timestamp.
	BidsByListing(ctx context.Context, listingID string) ([]model.Bid, error)

	// BidsByBidder returns all ledger entries placed by a bidder.
	BidsByBidder(ctx context.Context, bidderID string) ([]model.Bid, error)

	// --- Purchases ---

	// CreatePurchase persists a new purchase record.
	CreatePurchase(ctx context.Context, p *model.Purchase) error

	// GetPurchase retrieves a purchase by ID.
	GetPurchase(ctx context.Context, id string) (*model.Purchase, error)

	// PendingPurchases returns all purchases in PENDING_PAYMENT.
	PendingPurchases(ctx context.Context) ([]model.Purchase, error)

	// MutatePurchase runs fn against the current purchase state and
	// commits the result, retrying on conflicting concurrent writes.
	MutatePurchase(ctx context.Context, id string, fn PurchaseMutator) error

	// --- Identity lookup ---

	// CreateUser persists a user record.
	CreateUser(ctx context.Context, u *model.User) error

	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, id string) (*model.User, error)
}
