// Package engine is the composition root wiring the ledger store, the
// cached flow graphs, the router, the executor, reputation queries, and
// audit into the single programmatic interface spec.md §6 describes.
// It is not a network surface; application plumbing embeds it directly.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/mutualcredit/ledgerd/internal/capability"
	"github.com/mutualcredit/ledgerd/internal/core/amount"
	"github.com/mutualcredit/ledgerd/internal/core/audit"
	"github.com/mutualcredit/ledgerd/internal/core/events"
	"github.com/mutualcredit/ledgerd/internal/core/executor"
	"github.com/mutualcredit/ledgerd/internal/core/graph"
	"github.com/mutualcredit/ledgerd/internal/core/ledger"
	"github.com/mutualcredit/ledgerd/internal/core/reputation"
	"github.com/mutualcredit/ledgerd/internal/storage/relationaldb"
)

// PaymentMode selects routed (multi-hop) versus direct (administrative)
// commit for AttemptPayment.
type PaymentMode = ledger.PaymentMode

const (
	ModeRouted = ledger.ModeRouted
	ModeDirect = ledger.ModeDirect
)

// AccountView exposes an account from one node's perspective
// (spec.md §6 get_account).
type AccountView struct {
	Balance  amount.Amount
	OutLimit amount.Amount // this node's own limit: how much it may owe the partner
	InLimit  amount.Amount // the partner's limit: how much the partner may owe this node
	BalMult  ledger.BalMult
}

// EntryView is one posted ledger entry, as seen from one node's account.
type EntryView = ledger.Entry

// Engine is the external interface application plumbing embeds
// (spec.md §6). It is intentionally not exported as a concrete struct
// field set so callers only depend on the operation list.
type Engine interface {
	CreateNode(ctx context.Context) (ledger.NodeID, error)
	SetCreditLimit(ctx context.Context, endorser, recipient ledger.NodeID, weight amount.Amount) error
	DeleteNode(ctx context.Context, n ledger.NodeID) error
	AttemptPayment(ctx context.Context, payer, recipient ledger.NodeID, amt amount.Amount, memo string, mode PaymentMode, admin capability.Admin) (executor.Outcome, error)
	GetAccount(ctx context.Context, a, b ledger.NodeID) (AccountView, error)
	IterEntriesOf(ctx context.Context, a, b ledger.NodeID) ([]EntryView, error)
	MaxPayment(ctx context.Context, payer, recipient ledger.NodeID) amount.Amount
	Reputation(ctx context.Context, target, asker ledger.NodeID) amount.Amount
	AuditLedger(ctx context.Context) (audit.Report, error)
}

// engine is the concrete Engine implementation.
type engine struct {
	store      ledger.Store
	cache      *graph.Cache
	executor   *executor.Executor
	reputation *reputation.Query
	bus        *events.Bus
	log        relationaldb.Logger
}

// New wires store, cache, executor, reputation and an event bus into an
// Engine. The engine registers itself as a events.Subscriber so its own
// cache maintenance runs on every CreditLimitChanged; its
// PaymentCommitted handler does nothing, since the executor patches the
// cache itself after each commit. Lifecycle events (initial cache build, rebuilds,
// audit findings) go through a relationaldb.Logger, the same ambient
// logging seam the store backends' own manager code uses.
func New(ctx context.Context, store ledger.Store, externalSubscribers ...events.Subscriber) (Engine, error) {
	log := relationaldb.NewDefaultLogger()

	cache, err := graph.NewCache(ctx, store)
	if err != nil {
		return nil, fmt.Errorf("engine: build initial cache: %w", err)
	}
	log.Info("engine: initial flow graph cache built", "nodes", len(cache.Payment().Nodes()), "edges", len(cache.Payment().Edges()))

	repQuery, err := reputation.New(cache)
	if err != nil {
		return nil, fmt.Errorf("engine: build reputation query: %w", err)
	}

	e := &engine{store: store, cache: cache, reputation: repQuery, log: log}

	subscribers := append([]events.Subscriber{e}, externalSubscribers...)
	e.bus = events.NewBus(subscribers...)
	e.executor = executor.New(store, cache, e.bus)

	return e, nil
}

func (e *engine) CreateNode(ctx context.Context) (ledger.NodeID, error) {
	n, err := e.store.CreateNode(ctx)
	return n.ID, err
}

func (e *engine) SetCreditLimit(ctx context.Context, endorser, recipient ledger.NodeID, weight amount.Amount) error {
	if err := e.store.SetCreditLimit(ctx, endorser, recipient, weight); err != nil {
		return err
	}

	pair, err := e.store.GetAccount(ctx, endorser, recipient)
	if err != nil {
		return fmt.Errorf("engine: reload account after set_credit_limit: %w", err)
	}
	e.cache.ApplyAccountChange(pair.Account, []ledger.CreditLine{pair.Pos, pair.Neg})

	if e.bus != nil {
		return e.bus.PublishCreditLimitChanged(ctx, events.CreditLimitChanged{
			Endorser: endorser, Recipient: recipient, Weight: weight, At: time.Now(),
		})
	}
	return nil
}

func (e *engine) DeleteNode(ctx context.Context, n ledger.NodeID) error {
	if err := e.store.DeleteNode(ctx, n); err != nil {
		return err
	}
	if err := graph.Rebuild(ctx, e.store, e.cache); err != nil {
		return fmt.Errorf("engine: rebuild cache after delete_node: %w", err)
	}
	e.log.Info("engine: flow graph cache rebuilt", "trigger", "delete_node", "node", n)
	if e.bus != nil {
		return e.bus.PublishNodeDeleted(ctx, events.NodeDeleted{Node: n, At: time.Now()})
	}
	return nil
}

func (e *engine) AttemptPayment(ctx context.Context, payer, recipient ledger.NodeID, amt amount.Amount, memo string, mode PaymentMode, admin capability.Admin) (executor.Outcome, error) {
	switch mode {
	case ledger.ModeDirect:
		id, err := e.executor.CommitDirectEntry(ctx, admin, payer, recipient, amt, memo)
		if err != nil {
			return executor.Outcome{}, err
		}
		return executor.Outcome{Payment: id, Status: ledger.PaymentCompleted}, nil
	default:
		return e.executor.AttemptPayment(ctx, payer, recipient, amt, memo)
	}
}

func (e *engine) GetAccount(ctx context.Context, a, b ledger.NodeID) (AccountView, error) {
	pair, err := e.store.GetAccount(ctx, a, b)
	if err != nil {
		return AccountView{}, err
	}

	var own, partner ledger.CreditLine
	if pair.Pos.Node == a {
		own, partner = pair.Pos, pair.Neg
	} else {
		own, partner = pair.Neg, pair.Pos
	}

	return AccountView{
		Balance:  own.SignedBalance(pair.Account),
		OutLimit: own.Limit,
		InLimit:  partner.Limit,
		BalMult:  own.BalMult,
	}, nil
}

func (e *engine) IterEntriesOf(ctx context.Context, a, b ledger.NodeID) ([]EntryView, error) {
	return e.store.IterEntriesOf(ctx, a, b)
}

func (e *engine) MaxPayment(ctx context.Context, payer, recipient ledger.NodeID) amount.Amount {
	return e.reputation.MaxPayment(ctx, payer, recipient)
}

func (e *engine) Reputation(ctx context.Context, target, asker ledger.NodeID) amount.Amount {
	return e.reputation.Reputation(ctx, target, asker)
}

func (e *engine) AuditLedger(ctx context.Context) (audit.Report, error) {
	report, err := audit.Run(ctx, e.store)
	if err != nil {
		return report, err
	}
	if !report.Clean() {
		e.log.Warn("engine: audit found violations", "accounts", len(report.AccountViolations), "payments", len(report.PaymentViolations))
	}
	return report, nil
}

// OnCreditLimitChanged keeps the cached graphs fresh for events
// published by collaborators other than this engine itself (e.g. a
// direct SQL admin tool writing through the same store).
func (e *engine) OnCreditLimitChanged(ctx context.Context, ev events.CreditLimitChanged) error {
	pair, err := e.store.GetAccount(ctx, ev.Endorser, ev.Recipient)
	if err != nil {
		return err
	}
	e.cache.ApplyAccountChange(pair.Account, []ledger.CreditLine{pair.Pos, pair.Neg})
	return nil
}

// OnPaymentCommitted is a no-op for cache maintenance: the executor
// already patches the cache for every committed payment before
// publishing. It exists so engine satisfies events.Subscriber and can
// still react (e.g. metrics) without a second patch pass.
func (e *engine) OnPaymentCommitted(ctx context.Context, ev events.PaymentCommitted) error {
	return nil
}

// OnNodeDeleted is a no-op: DeleteNode already rebuilds the cache
// synchronously before publishing.
func (e *engine) OnNodeDeleted(ctx context.Context, ev events.NodeDeleted) error {
	return nil
}
