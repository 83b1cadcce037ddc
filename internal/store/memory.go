package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/artexchange/auction-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
//
// A single mutex serializes mutations, so MutateListing/MutatePurchase
// never observe a conflict here; the optimistic-retry behavior is only
// exercised by the PostgreSQL implementation.
type MemoryStore struct {
	mu        sync.RWMutex
	listings  map[string]*model.Listing
	ledger    []model.Bid
	purchases map[string]*model.Purchase
	users     map[string]*model.User
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		listings:  make(map[string]*model.Listing),
		purchases: make(map[string]*model.Purchase),
		users:     make(map[string]*model.User),
	}
}

func (s *MemoryStore) CreateListing(_ context.Context, l *model.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.listings[l.ID]; ok {
		return fmt.Errorf("listing %s already exists", l.ID)
	}
	cp := *l
	s.listings[l.ID] = &cp
	return nil
}

func (s *MemoryStore) GetListing(_ context.Context, id string) (*model.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.listings[id]
	if !ok {
		return nil, fmt.Errorf("listing %s: %w", id, ErrNotFound)
	}
	cp := *l
	return &cp, nil
}

func (s *MemoryStore) ListListings(_ context.Context, f ListingFilter) ([]model.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Listing
	for _, l := range s.listings {
		if !matchListing(l, f) {
			continue
		}
		out = append(out, *l)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func matchListing(l *model.Listing, f ListingFilter) bool {
	if f.SaleType != "" && l.SaleType != f.SaleType {
		return false
	}
	if f.ArtistID != "" && l.ArtistID != f.ArtistID {
		return false
	}
	if len(f.Statuses) > 0 {
		ok := false
		for _, st := range f.Statuses {
			if l.Status == st {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func (s *MemoryStore) DeleteListing(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.listings[id]; !ok {
		return fmt.Errorf("listing %s: %w", id, ErrNotFound)
	}
	delete(s.listings, id)
	return nil
}

func (s *MemoryStore) MutateListing(_ context.Context, id string, fn ListingMutator) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listings[id]
	if !ok {
		return fmt.Errorf("listing %s: %w", id, ErrNotFound)
	}

	cp := *l
	mut, err := fn(&cp)
	if err != nil {
		return err
	}
	if mut == nil {
		return nil
	}

	if mut.Listing != nil {
		updated := *mut.Listing
		updated.Version = l.Version + 1
		s.listings[id] = &updated
	}
	for _, b := range mut.Bids {
		s.ledger = append(s.ledger, *b)
	}
	return nil
}

func (s *MemoryStore) AppendBid(_ context.Context, b *model.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ledger = append(s.ledger, *b)
	return nil
}

func (s *MemoryStore) BidsByListing(_ context.Context, listingID string) ([]model.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Bid
	for _, b := range s.ledger {
		if b.ListingID == listingID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *MemoryStore) BidsByBidder(_ context.Context, bidderID string) ([]model.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Bid
	for _, b := range s.ledger {
		if b.BidderID == bidderID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *MemoryStore) CreatePurchase(_ context.Context, p *model.Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.purchases[p.ID]; ok {
		return fmt.Errorf("purchase %s already exists", p.ID)
	}
	cp := *p
	s.purchases[p.ID] = &cp
	return nil
}

func (s *MemoryStore) GetPurchase(_ context.Context, id string) (*model.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.purchases[id]
	if !ok {
		return nil, fmt.Errorf("purchase %s: %w", id, ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) PendingPurchases(_ context.Context) ([]model.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Purchase
	for _, p := range s.purchases {
		if p.Status == model.PurchasePendingPayment {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *MemoryStore) MutatePurchase(_ context.Context, id string, fn PurchaseMutator) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.purchases[id]
	if !ok {
		return fmt.Errorf("purchase %s: %w", id, ErrNotFound)
	}

	cp := *p
	updated, err := fn(&cp)
	if err != nil {
		return err
	}
	if updated == nil {
		return nil
	}

	next := *updated
	next.Version = p.Version + 1
	s.purchases[id] = &next
	return nil
}

func (s *MemoryStore) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	cp := *u
	return &cp, nil
}
