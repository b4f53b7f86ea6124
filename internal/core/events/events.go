// Package events reframes the ledger's post-save signal fan-out (spec.md
// §9 "Side-effectful 'signal' fan-out in the source") as explicit events
// that external collaborators and the core's own cache maintenance
// subscribe to.
package events

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mutualcredit/ledgerd/internal/core/amount"
	"github.com/mutualcredit/ledgerd/internal/core/ledger"
)

// CreditLimitChanged is emitted whenever SetCreditLimit succeeds.
type CreditLimitChanged struct {
	Endorser  ledger.NodeID
	Recipient ledger.NodeID
	Weight    amount.Amount
	At        time.Time
}

// PaymentCommitted is emitted whenever a payment is successfully committed.
type PaymentCommitted struct {
	Payment ledger.PaymentID
	Payer   ledger.NodeID
	Recipient ledger.NodeID
	Amount  amount.Amount
	At      time.Time
}

// NodeDeleted is emitted whenever a node is deleted.
type NodeDeleted struct {
	Node ledger.NodeID
	At   time.Time
}

// Subscriber receives events. Implementations should return quickly and
// treat the context as cancellable; the bus waits for all subscribers on
// each Publish call.
type Subscriber interface {
	OnCreditLimitChanged(ctx context.Context, e CreditLimitChanged) error
	OnPaymentCommitted(ctx context.Context, e PaymentCommitted) error
	OnNodeDeleted(ctx context.Context, e NodeDeleted) error
}

// Bus fans events out to subscribers concurrently, bounded by an
// errgroup, matching the pattern used for bounded peer fan-out in the
// teacher's overlay management code.
type Bus struct {
	subscribers []Subscriber
}

// NewBus returns a Bus with the given subscribers. The core's own cache
// maintenance (graph.Cache, reputation memo invalidation) is registered
// as a Subscriber by internal/core/engine, matching spec.md §9: "The core
// itself consumes only CreditLimitChanged and PaymentCommitted."
func NewBus(subscribers ...Subscriber) *Bus {
	return &Bus{subscribers: subscribers}
}

// PublishCreditLimitChanged fans e out to every subscriber, returning the
// first error encountered (if any); other subscribers still run to
// completion.
func (b *Bus) PublishCreditLimitChanged(ctx context.Context, e CreditLimitChanged) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range b.subscribers {
		s := s
		g.Go(func() error { return s.OnCreditLimitChanged(ctx, e) })
	}
	return g.Wait()
}

// PublishPaymentCommitted fans e out to every subscriber.
func (b *Bus) PublishPaymentCommitted(ctx context.Context, e PaymentCommitted) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range b.subscribers {
		s := s
		g.Go(func() error { return s.OnPaymentCommitted(ctx, e) })
	}
	return g.Wait()
}

// PublishNodeDeleted fans e out to every subscriber.
func (b *Bus) PublishNodeDeleted(ctx context.Context, e NodeDeleted) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range b.subscribers {
		s := s
		g.Go(func() error { return s.OnNodeDeleted(ctx, e) })
	}
	return g.Wait()
}
