// Package notify delivers user-facing notifications for auction events.
// Delivery is fire-and-forget: callers log failures and never let them
// affect the outcome of the operation that triggered the notification.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Notification kinds.
const (
	KindAuctionWon     = "AUCTION_WON"
	KindAuctionEnded   = "AUCTION_ENDED"
	KindPaymentExpired = "PAYMENT_EXPIRED"
	KindPurchase       = "PURCHASE"
)

// Notification is a single message to one user about one artwork.
type Notification struct {
	UserID    string    `json:"user_id"`
	ArtworkID string    `json:"artwork_id"`
	Message   string    `json:"message"`
	Kind      string    `json:"kind"`
	SentAt    time.Time `json:"sent_at"`
}

// Notifier delivers notifications to users.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NATSNotifier publishes notifications as JSON to per-user NATS subjects
// for the messaging service to fan out.
type NATSNotifier struct {
	nc *nats.Conn
}

// NewNATSNotifier creates a notifier backed by an existing NATS connection.
func NewNATSNotifier(nc *nats.Conn) *NATSNotifier {
	return &NATSNotifier{nc: nc}
}

func (n *NATSNotifier) Notify(_ context.Context, msg Notification) error {
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	subject := fmt.Sprintf("notifications.%s", msg.UserID)
	if err := n.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// LogNotifier writes notifications to the log. Used when NATS is not
// configured.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, n Notification) error {
	slog.Info("notification",
		"user", n.UserID,
		"artwork", n.ArtworkID,
		"kind", n.Kind,
		"message", n.Message,
	)
	return nil
}

// Recorder captures notifications in memory for tests.
type Recorder struct {
	mu   sync.Mutex
	sent []Notification
	// Err, when set, is returned from every Notify call.
	Err error
}

func (r *Recorder) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, n)
	return nil
}

// Sent returns a copy of everything recorded so far.
func (r *Recorder) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.sent))
	copy(out, r.sent)
	return out
}

// ByKind returns recorded notifications of one kind.
func (r *Recorder) ByKind(kind string) []Notification {
	var out []Notification
	for _, n := range r.Sent() {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}
