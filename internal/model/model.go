// Package model defines the core domain types shared across the auction
// engine. All monetary values use shopspring/decimal — never float64 for
// money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sale types.
const (
	SaleTypeFixedPrice = "FIXED_PRICE"
	SaleTypeAuction    = "AUCTION"
)

// Listing statuses.
const (
	StatusDraft    = "DRAFT"
	StatusActive   = "ACTIVE"
	StatusSold     = "SOLD"
	StatusInactive = "INACTIVE"
	StatusRemoved  = "REMOVED"
)

// Purchase statuses.
const (
	PurchasePendingPayment = "PENDING_PAYMENT"
	PurchaseCompleted      = "COMPLETED"
	PurchaseExpired        = "EXPIRED"
)

// Listing is a marketplace artwork record, fixed-price or auction.
// CurrentBid/BidCount/HighestBidderID are a denormalized cache of the
// bid ledger; the ledger is authoritative. Once Status is SOLD the
// winner fields are immutable except through payment-expiry reversion.
type Listing struct {
	ID          string `json:"id" db:"id"`
	Title       string `json:"title" db:"title"`
	Description string `json:"description,omitempty" db:"description"`
	ImageURL    string `json:"image_url,omitempty" db:"image_url"`
	ArtistID    string `json:"artist_id" db:"artist_id"`
	ArtistName  string `json:"artist_name,omitempty" db:"artist_name"`
	SaleType    string `json:"sale_type" db:"sale_type"` // FIXED_PRICE or AUCTION
	Status      string `json:"status" db:"status"`

	Price decimal.Decimal `json:"price" db:"price"` // fixed-price amount

	// Auction fields.
	StartingBid     decimal.Decimal `json:"starting_bid" db:"starting_bid"`
	CurrentBid      decimal.Decimal `json:"current_bid" db:"current_bid"`
	BidCount        int             `json:"bid_count" db:"bid_count"`
	HighestBidderID string          `json:"highest_bidder_id,omitempty" db:"highest_bidder_id"`
	AuctionEndTime  time.Time       `json:"auction_end_time" db:"auction_end_time"`

	// Settlement outcome.
	WinnerID         string          `json:"winner_id,omitempty" db:"winner_id"`
	WinnerName       string          `json:"winner_name,omitempty" db:"winner_name"`
	WinningBidAmount decimal.Decimal `json:"winning_bid_amount" db:"winning_bid_amount"`
	EndedAt          time.Time       `json:"ended_at" db:"ended_at"`
	SoldAt           time.Time       `json:"sold_at" db:"sold_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// Version is the optimistic-concurrency token used by the store's
	// transaction primitive. Never exposed to clients.
	Version int64 `json:"-" db:"version"`
}

// EffectiveBid is the amount a new bid must strictly exceed: the current
// bid when one exists, the starting bid otherwise.
func (l *Listing) EffectiveBid() decimal.Decimal {
	if l.CurrentBid.IsPositive() {
		return l.CurrentBid
	}
	return l.StartingBid
}

// Bid is an immutable ledger entry for a single bid against an auction
// listing. Once created, these are never modified or deleted. BidderName
// is denormalized at write time and resolvable from the user record if
// stale.
type Bid struct {
	ID          string          `json:"id" db:"id"`
	ListingID   string          `json:"listing_id" db:"listing_id"`
	BidderID    string          `json:"bidder_id" db:"bidder_id"`
	BidderName  string          `json:"bidder_name" db:"bidder_name"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	PreviousBid decimal.Decimal `json:"previous_bid" db:"previous_bid"`
	Timestamp   time.Time       `json:"timestamp" db:"timestamp"`
}

// Purchase is the settlement record linking a sold listing to its buyer.
// Auction wins start in PENDING_PAYMENT with a payment deadline; direct
// purchases are created COMPLETED. COMPLETED and EXPIRED are terminal.
type Purchase struct {
	ID              string          `json:"id" db:"id"`
	ArtworkID       string          `json:"artwork_id" db:"artwork_id"`
	BuyerID         string          `json:"buyer_id" db:"buyer_id"`
	SellerID        string          `json:"seller_id" db:"seller_id"`
	Price           decimal.Decimal `json:"price" db:"price"`
	Status          string          `json:"status" db:"status"`
	PaymentMethod   string          `json:"payment_method,omitempty" db:"payment_method"`
	TransactionID   string          `json:"transaction_id,omitempty" db:"transaction_id"`
	ShippingAddress string          `json:"shipping_address,omitempty" db:"shipping_address"`
	Notes           string          `json:"notes,omitempty" db:"notes"`
	PaymentDeadline time.Time       `json:"payment_deadline" db:"payment_deadline"`
	PaymentExpired  bool            `json:"payment_expired" db:"payment_expired"`
	PaidAt          time.Time       `json:"paid_at" db:"paid_at"`
	PurchasedAt     time.Time       `json:"purchased_at" db:"purchased_at"`

	Version int64 `json:"-" db:"version"`
}

// User is the slice of the identity record the auction engine needs for
// denormalizing bidder and winner display names.
type User struct {
	ID          string `json:"id" db:"id"`
	Username    string `json:"username" db:"username"`
	DisplayName string `json:"display_name" db:"display_name"`
	Email       string `json:"email,omitempty" db:"email"`
}

// Name returns the best display name for the user.
func (u *User) Name() string {
	if u == nil {
		return "Unknown User"
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if u.Username != "" {
		return u.Username
	}
	return "Unknown User"
}
