// Package reputation answers "how much could target push through to
// asker if every balance were reset to zero", a proxy for how
// trusted/well-connected a node is in the credit network (spec.md
// §4.F), and the related max_payment query over live balances (§6).
package reputation

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mutualcredit/ledgerd/internal/core/amount"
	"github.com/mutualcredit/ledgerd/internal/core/graph"
	"github.com/mutualcredit/ledgerd/internal/core/ledger"
	"github.com/mutualcredit/ledgerd/internal/core/router"
)

// DefaultCacheSize bounds the memoization table; reputation queries are
// read-heavy and the working set is small relative to the node count.
const DefaultCacheSize = 4096

type memoKey struct {
	target, asker ledger.NodeID
	version       uint64
}

// Query answers reputation and max_payment questions against a
// graph.Cache, memoizing reputation results by (target, asker) keyed
// additionally on the cache's structural version so a stale entry is
// never served after a commit or limit change invalidates it.
type Query struct {
	cache *graph.Cache
	memo  *lru.Cache[memoKey, amount.Amount]
}

// New returns a Query backed by cache, with the default memo size.
func New(cache *graph.Cache) (*Query, error) {
	memo, err := lru.New[memoKey, amount.Amount](DefaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("reputation: new lru: %w", err)
	}
	return &Query{cache: cache, memo: memo}, nil
}

// Reputation returns the max-flow from target to asker on the
// balance-zeroed reputation graph, bounded to their weakly-connected
// component, memoized by (target, asker, cache version).
func (q *Query) Reputation(ctx context.Context, target, asker ledger.NodeID) amount.Amount {
	key := memoKey{target: target, asker: asker, version: q.cache.Version()}
	if v, ok := q.memo.Get(key); ok {
		return v
	}

	g := q.cache.Reputation()
	component := graph.Component(g, target)
	units := router.MaxFlow(component, target, asker)
	result := amount.UnscaleFromInt(units)

	q.memo.Add(key, result)
	return result
}

// MaxPayment returns the max-flow from payer to recipient on the live
// payment graph: the largest single payment that could currently
// succeed between them, ignoring cost (spec.md §6 "max_payment").
// Unlike Reputation this is never memoized — a live balance snapshot
// is consulted on every call to avoid serving stale capacity figures.
func (q *Query) MaxPayment(ctx context.Context, payer, recipient ledger.NodeID) amount.Amount {
	g := q.cache.Payment()
	component := graph.Component(g, payer)
	units := router.MaxFlow(component, payer, recipient)
	return amount.UnscaleFromInt(units)
}
