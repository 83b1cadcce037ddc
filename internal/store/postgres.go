package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/artexchange/auction-engine/internal/model"
)

// maxMutateRetries bounds the optimistic retry loop on version conflicts.
const maxMutateRetries = 5

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
// Listings and purchases carry a version column; MutateListing and
// MutatePurchase commit with a compare-and-set on it and retry when a
// concurrent writer got there first.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const listingColumns = `id, title, description, image_url, artist_id, artist_name, sale_type, status,
	price::TEXT, starting_bid::TEXT, current_bid::TEXT, bid_count, highest_bidder_id,
	auction_end_time, winner_id, winner_name, winning_bid_amount::TEXT,
	ended_at, sold_at, created_at, updated_at, version`

func (s *PostgresStore) CreateListing(ctx context.Context, l *model.Listing) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO listings (id, title, description, image_url, artist_id, artist_name, sale_type, status,
		        price, starting_bid, current_bid, bid_count, highest_bidder_id,
		        auction_end_time, winner_id, winner_name, winning_bid_amount,
		        ended_at, sold_at, created_at, updated_at, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8,
		        $9::NUMERIC, $10::NUMERIC, $11::NUMERIC, $12, $13,
		        $14, $15, $16, $17::NUMERIC,
		        $18, $19, $20, $21, $22)`,
		l.ID, l.Title, l.Description, l.ImageURL, l.ArtistID, l.ArtistName, l.SaleType, l.Status,
		l.Price.String(), l.StartingBid.String(), l.CurrentBid.String(), l.BidCount, l.HighestBidderID,
		nullTime(l.AuctionEndTime), l.WinnerID, l.WinnerName, l.WinningBidAmount.String(),
		nullTime(l.EndedAt), nullTime(l.SoldAt), l.CreatedAt, l.UpdatedAt, l.Version,
	)
	return err
}

func (s *PostgresStore) GetListing(ctx context.Context, id string) (*model.Listing, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id)
	l, err := scanListing(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("listing %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get listing %s: %w", id, err)
	}
	return l, nil
}

func (s *PostgresStore) ListListings(ctx context.Context, f ListingFilter) ([]model.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE 1=1`
	var args []any

	if f.SaleType != "" {
		args = append(args, f.SaleType)
		query += fmt.Sprintf(" AND sale_type = $%d", len(args))
	}
	if len(f.Statuses) > 0 {
		args = append(args, f.Statuses)
		query += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}
	if f.ArtistID != "" {
		args = append(args, f.ArtistID)
		query += fmt.Sprintf(" AND artist_id = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []model.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, *l)
	}
	return listings, rows.Err()
}

func (s *PostgresStore) DeleteListing(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM listings WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("listing %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) MutateListing(ctx context.Context, id string, fn ListingMutator) error {
	for attempt := 0; attempt < maxMutateRetries; attempt++ {
		current, err := s.GetListing(ctx, id)
		if err != nil {
			return err
		}

		mut, err := fn(current)
		if err != nil {
			return err
		}
		if mut == nil {
			return nil
		}

		committed, err := s.commitListingMutation(ctx, current.Version, mut)
		if err != nil {
			return err
		}
		if committed {
			return nil
		}
		// Version moved under us; re-read and re-run fn.
	}
	return fmt.Errorf("mutate listing %s: %w", id, ErrConflict)
}

func (s *PostgresStore) commitListingMutation(ctx context.Context, expectedVersion int64, mut *ListingMutation) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	if mut.Listing != nil {
		l := mut.Listing
		tag, err := tx.Exec(ctx,
			`UPDATE listings
			 SET title = $2, description = $3, image_url = $4, status = $5,
			     price = $6::NUMERIC, starting_bid = $7::NUMERIC, current_bid = $8::NUMERIC,
			     bid_count = $9, highest_bidder_id = $10, auction_end_time = $11,
			     winner_id = $12, winner_name = $13, winning_bid_amount = $14::NUMERIC,
			     ended_at = $15, sold_at = $16, updated_at = $17,
			     version = version + 1
			 WHERE id = $1 AND version = $18`,
			l.ID, l.Title, l.Description, l.ImageURL, l.Status,
			l.Price.String(), l.StartingBid.String(), l.CurrentBid.String(),
			l.BidCount, l.HighestBidderID, nullTime(l.AuctionEndTime),
			l.WinnerID, l.WinnerName, l.WinningBidAmount.String(),
			nullTime(l.EndedAt), nullTime(l.SoldAt), l.UpdatedAt,
			expectedVersion,
		)
		if err != nil {
			return false, err
		}
		if tag.RowsAffected() == 0 {
			return false, nil
		}
	}

	for _, b := range mut.Bids {
		if err := insertBid(ctx, tx, b); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *PostgresStore) AppendBid(ctx context.Context, b *model.Bid) error {
	return insertBid(ctx, s.pool, b)
}

// pgxExecer is satisfied by both *pgxpool.Pool and pgx.Tx, so ledger
// appends can run standalone or inside a listing transaction.
type pgxExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertBid(ctx context.Context, db pgxExecer, b *model.Bid) error {
	_, err := db.Exec(ctx,
		`INSERT INTO bid_ledger (id, listing_id, bidder_id, bidder_name, amount, previous_bid, timestamp)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7)`,
		b.ID, b.ListingID, b.BidderID, b.BidderName,
		b.Amount.String(), b.PreviousBid.String(), b.Timestamp,
	)
	return err
}

func (s *PostgresStore) BidsByListing(ctx context.Context, listingID string) ([]model.Bid, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, listing_id, bidder_id, bidder_name, amount::TEXT, previous_bid::TEXT, timestamp
		 FROM bid_ledger WHERE listing_id = $1 ORDER BY timestamp`, listingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBids(rows)
}

func (s *PostgresStore) BidsByBidder(ctx context.Context, bidderID string) ([]model.Bid, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, listing_id, bidder_id, bidder_name, amount::TEXT, previous_bid::TEXT, timestamp
		 FROM bid_ledger WHERE bidder_id = $1 ORDER BY timestamp DESC`, bidderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBids(rows)
}

func (s *PostgresStore) CreatePurchase(ctx context.Context, p *model.Purchase) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO purchases (id, artwork_id, buyer_id, seller_id, price, status,
		        payment_method, transaction_id, shipping_address, notes,
		        payment_deadline, payment_expired, paid_at, purchased_at, version)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		p.ID, p.ArtworkID, p.BuyerID, p.SellerID, p.Price.String(), p.Status,
		p.PaymentMethod, p.TransactionID, p.ShippingAddress, p.Notes,
		nullTime(p.PaymentDeadline), p.PaymentExpired, nullTime(p.PaidAt), p.PurchasedAt, p.Version,
	)
	return err
}

const purchaseColumns = `id, artwork_id, buyer_id, seller_id, price::TEXT, status,
	payment_method, transaction_id, shipping_address, notes,
	payment_deadline, payment_expired, paid_at, purchased_at, version`

func (s *PostgresStore) GetPurchase(ctx context.Context, id string) (*model.Purchase, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id = $1`, id)
	p, err := scanPurchase(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("purchase %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get purchase %s: %w", id, err)
	}
	return p, nil
}

func (s *PostgresStore) PendingPurchases(ctx context.Context) ([]model.Purchase, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE status = $1`, model.PurchasePendingPayment)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var purchases []model.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		purchases = append(purchases, *p)
	}
	return purchases, rows.Err()
}

func (s *PostgresStore) MutatePurchase(ctx context.Context, id string, fn PurchaseMutator) error {
	for attempt := 0; attempt < maxMutateRetries; attempt++ {
		current, err := s.GetPurchase(ctx, id)
		if err != nil {
			return err
		}

		updated, err := fn(current)
		if err != nil {
			return err
		}
		if updated == nil {
			return nil
		}

		tag, err := s.pool.Exec(ctx,
			`UPDATE purchases
			 SET status = $2, payment_method = $3, transaction_id = $4,
			     shipping_address = $5, notes = $6, payment_deadline = $7,
			     payment_expired = $8, paid_at = $9, version = version + 1
			 WHERE id = $1 AND version = $10`,
			updated.ID, updated.Status, updated.PaymentMethod, updated.TransactionID,
			updated.ShippingAddress, updated.Notes, nullTime(updated.PaymentDeadline),
			updated.PaymentExpired, nullTime(updated.PaidAt),
			current.Version,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() > 0 {
			return nil
		}
	}
	return fmt.Errorf("mutate purchase %s: %w", id, ErrConflict)
}

func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, username, display_name, email)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET username = $2, display_name = $3, email = $4`,
		u.ID, u.Username, u.DisplayName, u.Email,
	)
	return err
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, display_name, email FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Username, &u.DisplayName, &u.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return &u, nil
}

// --- scanning helpers ---

func scanListing(row pgx.Row) (*model.Listing, error) {
	var l model.Listing
	var price, startingBid, currentBid, winningBid string
	var endTime, endedAt, soldAt *time.Time

	err := row.Scan(&l.ID, &l.Title, &l.Description, &l.ImageURL, &l.ArtistID, &l.ArtistName, &l.SaleType, &l.Status,
		&price, &startingBid, &currentBid, &l.BidCount, &l.HighestBidderID,
		&endTime, &l.WinnerID, &l.WinnerName, &winningBid,
		&endedAt, &soldAt, &l.CreatedAt, &l.UpdatedAt, &l.Version)
	if err != nil {
		return nil, err
	}

	l.Price, _ = decimal.NewFromString(price)
	l.StartingBid, _ = decimal.NewFromString(startingBid)
	l.CurrentBid, _ = decimal.NewFromString(currentBid)
	l.WinningBidAmount, _ = decimal.NewFromString(winningBid)
	l.AuctionEndTime = derefTime(endTime)
	l.EndedAt = derefTime(endedAt)
	l.SoldAt = derefTime(soldAt)

	return &l, nil
}

func scanBids(rows pgx.Rows) ([]model.Bid, error) {
	var bids []model.Bid
	for rows.Next() {
		var b model.Bid
		var amount, previous string
		if err := rows.Scan(&b.ID, &b.ListingID, &b.BidderID, &b.BidderName,
			&amount, &previous, &b.Timestamp); err != nil {
			return nil, err
		}
		b.Amount, _ = decimal.NewFromString(amount)
		b.PreviousBid, _ = decimal.NewFromString(previous)
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

func scanPurchase(row pgx.Row) (*model.Purchase, error) {
	var p model.Purchase
	var price string
	var deadline, paidAt *time.Time

	err := row.Scan(&p.ID, &p.ArtworkID, &p.BuyerID, &p.SellerID, &price, &p.Status,
		&p.PaymentMethod, &p.TransactionID, &p.ShippingAddress, &p.Notes,
		&deadline, &p.PaymentExpired, &paidAt, &p.PurchasedAt, &p.Version)
	if err != nil {
		return nil, err
	}

	p.Price, _ = decimal.NewFromString(price)
	p.PaymentDeadline = derefTime(deadline)
	p.PaidAt = derefTime(paidAt)

	return &p, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
