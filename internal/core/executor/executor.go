// Package executor implements the end-to-end payment attempt of
// spec.md §4.E: graph -> route -> commit, plus the administrative
// direct-entry mode.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/mutualcredit/ledgerd/internal/capability"
	"github.com/mutualcredit/ledgerd/internal/core/amount"
	"github.com/mutualcredit/ledgerd/internal/core/events"
	"github.com/mutualcredit/ledgerd/internal/core/graph"
	"github.com/mutualcredit/ledgerd/internal/core/ledger"
	"github.com/mutualcredit/ledgerd/internal/core/router"
)

// MaxCommitRetries is the default bound on LimitCollision retries before
// an attempt is declared failed (spec.md §7).
const MaxCommitRetries = 3

// Sentinel errors surfaced to callers (spec.md §7). Router-internal
// failures are translated into these at this package's boundary.
var (
	ErrNoRoute    = errors.New("executor: no route between payer and recipient")
	ErrInfeasible = errors.New("executor: insufficient aggregate capacity")
)

// Executor orchestrates payment attempts against a ledger.Store and a
// graph.Cache.
type Executor struct {
	Store      ledger.Store
	Cache      *graph.Cache
	Bus        *events.Bus // may be nil
	MaxRetries int
}

// New returns an Executor with default retry bound.
func New(store ledger.Store, cache *graph.Cache, bus *events.Bus) *Executor {
	return &Executor{Store: store, Cache: cache, Bus: bus, MaxRetries: MaxCommitRetries}
}

// Outcome is the result of AttemptPayment.
type Outcome struct {
	Payment ledger.PaymentID
	Status  ledger.PaymentStatus
	Err     error // the translated failure reason, nil on success
}

// AttemptPayment runs spec.md §4.E steps 1-9 for a routed payment.
func (ex *Executor) AttemptPayment(ctx context.Context, payer, recipient ledger.NodeID, amt amount.Amount, memo string) (Outcome, error) {
	now := time.Now()
	id, err := ex.Store.CreatePayment(ctx, ledger.Payment{
		Payer: payer, Recipient: recipient, Amount: amt, Memo: memo,
		SubmittedAt: now, Status: ledger.PaymentPending,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("executor: create payment: %w", err)
	}

	// step 1: mark attempted, pending.
	if err := ex.Store.MarkPaymentAttempted(ctx, id, ledger.PaymentPending); err != nil {
		return Outcome{}, fmt.Errorf("executor: mark attempted: %w", err)
	}

	// step 2: connected component of the cached payment graph.
	component := graph.Component(ex.Cache.Payment(), payer)

	// steps 3-4: demand + route.
	demandUnits := amt.ScaleToInt()
	result, routeErr := router.Solve(ctx, component, payer, recipient, demandUnits)
	if routeErr != nil {
		reason := translate(routeErr)
		_ = ex.Store.MarkPaymentAttempted(ctx, id, ledger.PaymentFailed)
		return Outcome{Payment: id, Status: ledger.PaymentFailed, Err: reason}, nil
	}

	// step 6: sum chunk flows sharing the same creditline.
	edgeFlows, err := ex.resolveEdgeFlows(ctx, result)
	if err != nil {
		_ = ex.Store.MarkPaymentAttempted(ctx, id, ledger.PaymentFailed)
		return Outcome{}, err
	}

	// steps 7-8: commit under the writer lock, retrying LimitCollision.
	var commitErr error
	for attempt := 0; attempt <= ex.retries(); attempt++ {
		commitErr = ex.Store.WithWriter(ctx, func(ctx context.Context) error {
			return ex.Store.CommitPayment(ctx, id, edgeFlows)
		})
		if commitErr == nil || !errors.Is(commitErr, ledger.ErrLimitCollision) {
			break
		}
	}
	if commitErr != nil {
		_ = ex.Store.MarkPaymentAttempted(ctx, id, ledger.PaymentFailed)
		return Outcome{Payment: id, Status: ledger.PaymentFailed, Err: ledger.ErrLimitCollision}, nil
	}

	if err := ex.Store.MarkPaymentAttempted(ctx, id, ledger.PaymentCompleted); err != nil {
		return Outcome{}, fmt.Errorf("executor: mark completed: %w", err)
	}

	// step 9: patch both cached graphs for every changed account.
	ex.patchChangedAccounts(ctx, edgeFlows)

	if ex.Bus != nil {
		_ = ex.Bus.PublishPaymentCommitted(ctx, events.PaymentCommitted{
			Payment: id, Payer: payer, Recipient: recipient, Amount: amt, At: time.Now(),
		})
	}

	return Outcome{Payment: id, Status: ledger.PaymentCompleted}, nil
}

func (ex *Executor) retries() int {
	if ex.MaxRetries <= 0 {
		return MaxCommitRetries
	}
	return ex.MaxRetries
}

// resolveEdgeFlows converts the router's per-edge-key flow into
// (creditline, signed amount) pairs by summing chunks of the same
// creditline (spec.md §4.E step 6), looks up each creditline's owning
// account and node to build the EdgeFlow in its own sign convention,
// then sorts the result by owning account id (tie-broken by creditline
// id) so CommitPayment always applies the same payment's edges in the
// same order (spec.md §4.E step 7: "in deterministic order by account
// id").
func (ex *Executor) resolveEdgeFlows(ctx context.Context, result *router.Result) ([]ledger.EdgeFlow, error) {
	byCreditLine := make(map[ledger.CreditLineID]int64)
	for key, flow := range result.Flow {
		if flow == 0 {
			continue
		}
		byCreditLine[key.CreditLine] += flow
	}

	clByID, err := ex.creditLineOwners(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]ledger.EdgeFlow, 0, len(byCreditLine))
	for clID, units := range byCreditLine {
		if units == 0 {
			continue
		}
		cl, ok := clByID[clID]
		if !ok {
			continue
		}
		out = append(out, ledger.EdgeFlow{
			CreditLine: clID,
			Node:       cl.Node,
			Amount:     amount.UnscaleFromInt(units),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		ai, aj := clByID[out[i].CreditLine].Account, clByID[out[j].CreditLine].Account
		if ai != aj {
			return ai < aj
		}
		return out[i].CreditLine < out[j].CreditLine
	})
	return out, nil
}

func (ex *Executor) creditLineOwners(ctx context.Context) (map[ledger.CreditLineID]ledger.CreditLine, error) {
	cls, err := ex.Store.IterAllCreditLines(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[ledger.CreditLineID]ledger.CreditLine, len(cls))
	for _, cl := range cls {
		out[cl.ID] = cl
	}
	return out, nil
}

// patchChangedAccounts re-derives and swaps in the cached-graph edges for
// every account touched by edgeFlows (spec.md §4.E step 9).
func (ex *Executor) patchChangedAccounts(ctx context.Context, edgeFlows []ledger.EdgeFlow) {
	touched := make(map[ledger.AccountID]struct{})
	for _, ef := range edgeFlows {
		cls, err := ex.Store.IterAllCreditLines(ctx)
		if err != nil {
			return
		}
		for _, cl := range cls {
			if cl.ID == ef.CreditLine {
				touched[cl.Account] = struct{}{}
			}
		}
	}
	for acctID := range touched {
		ex.patchAccount(ctx, acctID)
	}
}

func (ex *Executor) patchAccount(ctx context.Context, acctID ledger.AccountID) {
	accts, err := ex.Store.IterAllAccounts(ctx)
	if err != nil {
		return
	}
	var acct ledger.Account
	found := false
	for _, a := range accts {
		if a.ID == acctID {
			acct = a
			found = true
			break
		}
	}
	if !found {
		return
	}

	cls, err := ex.Store.IterAllCreditLines(ctx)
	if err != nil {
		return
	}
	var pair []ledger.CreditLine
	for _, cl := range cls {
		if cl.Account == acctID {
			pair = append(pair, cl)
		}
	}
	ex.Cache.ApplyAccountChange(acct, pair)
}

// translate maps router-internal failure modes to the externally
// surfaced taxonomy (spec.md §7).
func translate(err error) error {
	switch {
	case errors.Is(err, router.ErrNotConnected):
		return fmt.Errorf("%w: %v", ErrNoRoute, err)
	default:
		return fmt.Errorf("%w: %v", ErrInfeasible, err)
	}
}

// CommitDirectEntry posts a single administrative entry between payer
// and recipient, bypassing routing and the I3 limit check (spec.md §4.E
// "Alternative direct mode"), gated behind an Admin capability per §9.
func (ex *Executor) CommitDirectEntry(ctx context.Context, admin capability.Admin, payer, recipient ledger.NodeID, amt amount.Amount, memo string) (ledger.PaymentID, error) {
	if !admin.Valid() {
		return 0, fmt.Errorf("executor: direct entry requires an admin capability")
	}

	now := time.Now()
	id, err := ex.Store.CreatePayment(ctx, ledger.Payment{
		Payer: payer, Recipient: recipient, Amount: amt, Memo: memo,
		SubmittedAt: now, LastAttemptedAt: now, Status: ledger.PaymentPending,
	})
	if err != nil {
		return 0, fmt.Errorf("executor: create direct payment: %w", err)
	}

	var acct ledger.Account
	err = ex.Store.WithWriter(ctx, func(ctx context.Context) error {
		pair, err := ex.Store.GetOrCreateAccount(ctx, payer, recipient)
		if err != nil {
			return err
		}
		acct = pair.Account
		return ex.Store.CommitDirectEntry(ctx, id, payer, recipient, amt)
	})
	if err != nil {
		_ = ex.Store.MarkPaymentAttempted(ctx, id, ledger.PaymentFailed)
		return 0, fmt.Errorf("executor: commit direct entry: %w", err)
	}

	if err := ex.Store.MarkPaymentAttempted(ctx, id, ledger.PaymentCompleted); err != nil {
		return 0, err
	}
	ex.patchAccount(ctx, acct.ID)
	return id, nil
}
