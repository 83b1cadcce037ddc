package auction

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/artexchange/auction-engine/internal/model"
	"github.com/artexchange/auction-engine/internal/store"
)

// --- Request/Response types ---

// CreateListingRequest is the JSON body for listing creation.
type CreateListingRequest struct {
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	ArtistID       string          `json:"artist_id"`
	ImageURL       string          `json:"image_url"`
	SaleType       string          `json:"sale_type"` // FIXED_PRICE or AUCTION
	Price          decimal.Decimal `json:"price"`
	StartingBid    decimal.Decimal `json:"starting_bid"`
	AuctionEndTime time.Time       `json:"auction_end_time"`
}

// PlaceBidRequest is the JSON body for POST /listings/{id}/bids.
type PlaceBidRequest struct {
	BidderID string          `json:"bidder_id"`
	Amount   decimal.Decimal `json:"amount"`
}

// PurchaseRequest is the JSON body for a fixed-price purchase.
type PurchaseRequest struct {
	BuyerID string `json:"buyer_id"`
}

// CompletePaymentRequest is the JSON body for paying off an auction win.
type CompletePaymentRequest struct {
	BuyerID         string `json:"buyer_id"`
	PaymentMethod   string `json:"payment_method"`
	ShippingAddress string `json:"shipping_address"`
	Notes           string `json:"notes"`
}

// SweepResponse reports what a manually triggered sweep pass did.
type SweepResponse struct {
	Settled int `json:"settled"`
	Expired int `json:"expired"`
}

// --- HTTP Handlers ---

// HandleCreateListing handles POST /api/v1/listings
func (s *Service) HandleCreateListing(w http.ResponseWriter, r *http.Request) {
	var req CreateListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Title == "" {
		writeError(w, "title is required", http.StatusBadRequest)
		return
	}
	if req.ArtistID == "" {
		writeError(w, "artist_id is required", http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	l := &model.Listing{
		ID:          uuid.New().String(),
		Title:       req.Title,
		Description: req.Description,
		ArtistID:    req.ArtistID,
		ImageURL:    req.ImageURL,
		SaleType:    req.SaleType,
		Status:      model.StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	ctx := r.Context()
	switch req.SaleType {
	case model.SaleTypeAuction:
		if !req.StartingBid.IsPositive() {
			writeError(w, "starting_bid must be positive for auctions", http.StatusBadRequest)
			return
		}
		if !req.AuctionEndTime.After(now) {
			writeError(w, "auction_end_time must be in the future", http.StatusBadRequest)
			return
		}
		l.StartingBid = req.StartingBid
		l.AuctionEndTime = req.AuctionEndTime.UTC()
	case model.SaleTypeFixedPrice:
		if !req.Price.IsPositive() {
			writeError(w, "price must be positive", http.StatusBadRequest)
			return
		}
		l.Price = req.Price
	default:
		writeError(w, "sale_type must be FIXED_PRICE or AUCTION", http.StatusBadRequest)
		return
	}

	l.ArtistName = s.displayName(ctx, req.ArtistID)

	if err := s.store.CreateListing(ctx, l); err != nil {
		writeError(w, "failed to create listing", http.StatusInternalServerError)
		return
	}

	slog.Info("listing created",
		"id", l.ID,
		"artist", l.ArtistID,
		"sale_type", l.SaleType,
		"title", l.Title,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(l)
}

// HandleGetListing handles GET /api/v1/listings/{listingID}
func (s *Service) HandleGetListing(w http.ResponseWriter, r *http.Request) {
	listingID := chi.URLParam(r, "listingID")

	l, err := s.store.GetListing(r.Context(), listingID)
	if err != nil {
		writeError(w, "listing not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(l)
}

// HandleListAuctions handles GET /api/v1/auctions
// Returns auction listings that are live or recently concluded, with the
// live ones first.
func (s *Service) HandleListAuctions(w http.ResponseWriter, r *http.Request) {
	listings, err := s.store.ListListings(r.Context(), store.ListingFilter{
		SaleType: model.SaleTypeAuction,
		Statuses: []string{model.StatusActive, model.StatusSold},
	})
	if err != nil {
		writeError(w, "failed to list auctions", http.StatusInternalServerError)
		return
	}

	ordered := make([]model.Listing, 0, len(listings))
	for _, l := range listings {
		if l.Status == model.StatusActive {
			ordered = append(ordered, l)
		}
	}
	for _, l := range listings {
		if l.Status != model.StatusActive {
			ordered = append(ordered, l)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ordered)
}

// HandlePlaceBid handles POST /api/v1/listings/{listingID}/bids
func (s *Service) HandlePlaceBid(w http.ResponseWriter, r *http.Request) {
	listingID := chi.URLParam(r, "listingID")

	var req PlaceBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.BidderID == "" {
		writeError(w, "bidder_id is required", http.StatusBadRequest)
		return
	}
	if !req.Amount.IsPositive() {
		writeError(w, "amount must be positive", http.StatusBadRequest)
		return
	}

	receipt, err := s.PlaceBid(r.Context(), listingID, req.BidderID, req.Amount)
	if err != nil {
		writeError(w, err.Error(), statusForError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(receipt)
}

// HandleListBidders handles GET /api/v1/listings/{listingID}/bidders
// Sort order comes from ?sort=amount|latest, defaulting to latest.
func (s *Service) HandleListBidders(w http.ResponseWriter, r *http.Request) {
	listingID := chi.URLParam(r, "listingID")

	sortBy := r.URL.Query().Get("sort")
	if sortBy == "" {
		sortBy = SortByLatest
	}
	if sortBy != SortByAmount && sortBy != SortByLatest {
		writeError(w, "sort must be amount or latest", http.StatusBadRequest)
		return
	}

	bidders, err := s.GetBidders(r.Context(), listingID, sortBy)
	if err != nil {
		writeError(w, err.Error(), statusForError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(bidders)
}

// HandleUserBids handles GET /api/v1/users/{userID}/bids
func (s *Service) HandleUserBids(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	bids, err := s.BidHistory(r.Context(), userID)
	if err != nil {
		writeError(w, "failed to load bid history", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(bids)
}

// HandlePurchase handles POST /api/v1/listings/{listingID}/purchase
// Fixed-price checkout; auctions settle through the sweep instead.
func (s *Service) HandlePurchase(w http.ResponseWriter, r *http.Request) {
	listingID := chi.URLParam(r, "listingID")

	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.BuyerID == "" {
		writeError(w, "buyer_id is required", http.StatusBadRequest)
		return
	}

	p, err := s.PurchaseDirect(r.Context(), listingID, req.BuyerID)
	if err != nil {
		writeError(w, err.Error(), statusForError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(p)
}

// HandleSettle handles POST /api/v1/listings/{listingID}/settle
// Manual settlement trigger for an ended auction; the scheduled sweep
// performs the same operation.
func (s *Service) HandleSettle(w http.ResponseWriter, r *http.Request) {
	listingID := chi.URLParam(r, "listingID")

	if err := s.Settle(r.Context(), listingID); err != nil {
		writeError(w, err.Error(), statusForError(err))
		return
	}

	l, err := s.store.GetListing(r.Context(), listingID)
	if err != nil {
		writeError(w, "listing not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(l)
}

// HandleGetPurchase handles GET /api/v1/purchases/{purchaseID}
func (s *Service) HandleGetPurchase(w http.ResponseWriter, r *http.Request) {
	purchaseID := chi.URLParam(r, "purchaseID")

	p, err := s.store.GetPurchase(r.Context(), purchaseID)
	if err != nil {
		writeError(w, "purchase not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(p)
}

// HandleCompletePayment handles POST /api/v1/purchases/{purchaseID}/payment
func (s *Service) HandleCompletePayment(w http.ResponseWriter, r *http.Request) {
	purchaseID := chi.URLParam(r, "purchaseID")

	var req CompletePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.BuyerID == "" {
		writeError(w, "buyer_id is required", http.StatusBadRequest)
		return
	}
	if req.PaymentMethod == "" {
		writeError(w, "payment_method is required", http.StatusBadRequest)
		return
	}
	if req.ShippingAddress == "" {
		writeError(w, "shipping_address is required", http.StatusBadRequest)
		return
	}

	p, err := s.CompletePayment(r.Context(), purchaseID, req.BuyerID, PaymentDetails{
		Method:          req.PaymentMethod,
		ShippingAddress: req.ShippingAddress,
		Notes:           req.Notes,
	})
	if err != nil {
		writeError(w, err.Error(), statusForError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(p)
}

// SweepHandler returns the POST /api/v1/admin/sweep handler, which runs
// one synchronous sweep pass and reports the counts.
func SweepHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		settled, err := svc.SweepEndedAuctions(ctx)
		if err != nil {
			writeError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		expired, err := svc.SweepExpiredPayments(ctx)
		if err != nil {
			writeError(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(SweepResponse{Settled: settled, Expired: expired})
	}
}

// statusForError maps service errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrListingNotFound), errors.Is(err, ErrPurchaseNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrWrongBuyer):
		return http.StatusForbidden
	case errors.Is(err, ErrBidTooLow),
		errors.Is(err, ErrSelfBid),
		errors.Is(err, ErrNotAuction),
		errors.Is(err, ErrNotFixedPrice):
		return http.StatusBadRequest
	case errors.Is(err, ErrAuctionNotActive),
		errors.Is(err, ErrAuctionEnded),
		errors.Is(err, ErrAuctionNotEnded),
		errors.Is(err, ErrAlreadySold),
		errors.Is(err, ErrNotPending),
		errors.Is(err, ErrDeadlinePassed),
		errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
