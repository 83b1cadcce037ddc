package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/artexchange/auction-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for listings and users. Writes go to the primary store and
// invalidate the cache; reads check Redis first then fall back to the
// primary. The bid ledger and purchases pass through uncached — the
// ledger is the source of truth for settlement and must never be served
// stale, and the expiry sweep needs current purchase state.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateListing(ctx context.Context, l *model.Listing) error {
	if err := s.primary.CreateListing(ctx, l); err != nil {
		return err
	}
	s.cacheListing(ctx, l)
	return nil
}

func (s *CachedStore) DeleteListing(ctx context.Context, id string) error {
	if err := s.primary.DeleteListing(ctx, id); err != nil {
		return err
	}
	s.rdb.Del(ctx, listingKey(id))
	return nil
}

func (s *CachedStore) MutateListing(ctx context.Context, id string, fn ListingMutator) error {
	if err := s.primary.MutateListing(ctx, id, fn); err != nil {
		return err
	}
	// Invalidate; next read re-populates from the primary.
	s.rdb.Del(ctx, listingKey(id))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetListing(ctx context.Context, id string) (*model.Listing, error) {
	data, err := s.rdb.Get(ctx, listingKey(id)).Bytes()
	if err == nil {
		var l model.Listing
		if json.Unmarshal(data, &l) == nil {
			return &l, nil
		}
	}

	l, err := s.primary.GetListing(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheListing(ctx, l)
	return l, nil
}

func (s *CachedStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	data, err := s.rdb.Get(ctx, userKey(id)).Bytes()
	if err == nil {
		var u model.User
		if json.Unmarshal(data, &u) == nil {
			return &u, nil
		}
	}

	u, err := s.primary.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(u); err == nil {
		s.rdb.Set(ctx, userKey(id), data, s.ttl)
	}
	return u, nil
}

func (s *CachedStore) CreateUser(ctx context.Context, u *model.User) error {
	if err := s.primary.CreateUser(ctx, u); err != nil {
		return err
	}
	s.rdb.Del(ctx, userKey(u.ID))
	return nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListListings(ctx context.Context, f ListingFilter) ([]model.Listing, error) {
	return s.primary.ListListings(ctx, f)
}

func (s *CachedStore) AppendBid(ctx context.Context, b *model.Bid) error {
	return s.primary.AppendBid(ctx, b)
}

func (s *CachedStore) BidsByListing(ctx context.Context, listingID string) ([]model.Bid, error) {
	return s.primary.BidsByListing(ctx, listingID)
}

func (s *CachedStore) BidsByBidder(ctx context.Context, bidderID string) ([]model.Bid, error) {
	return s.primary.BidsByBidder(ctx, bidderID)
}

func (s *CachedStore) CreatePurchase(ctx context.Context, p *model.Purchase) error {
	return s.primary.CreatePurchase(ctx, p)
}

func (s *CachedStore) GetPurchase(ctx context.Context, id string) (*model.Purchase, error) {
	return s.primary.GetPurchase(ctx, id)
}

func (s *CachedStore) PendingPurchases(ctx context.Context) ([]model.Purchase, error) {
	return s.primary.PendingPurchases(ctx)
}

func (s *CachedStore) MutatePurchase(ctx context.Context, id string, fn PurchaseMutator) error {
	return s.primary.MutatePurchase(ctx, id, fn)
}

// --- Cache helpers ---

func (s *CachedStore) cacheListing(ctx context.Context, l *model.Listing) {
	if data, err := json.Marshal(l); err == nil {
		s.rdb.Set(ctx, listingKey(l.ID), data, s.ttl)
	}
}

func listingKey(id string) string { return fmt.Sprintf("listing:%s", id) }
func userKey(id string) string    { return fmt.Sprintf("user:%s", id) }
