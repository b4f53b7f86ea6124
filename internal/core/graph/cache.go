package graph

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/mutualcredit/ledgerd/internal/core/ledger"
)

// Cache holds the two live graphs (payment, reputation) behind
// atomic.Pointer handles, matching core/tx/payment/sandbox.go's
// parent-pointer + Apply() read-copy-update discipline: readers Load() a
// snapshot and never observe a torn graph; the writer builds a patched
// copy and Store()s it.
type Cache struct {
	payment    atomic.Pointer[Graph]
	reputation atomic.Pointer[Graph]
	version    atomic.Uint64 // bumped on every structural change; reputation memo key
}

// NewCache builds both graphs from the live ledger.
func NewCache(ctx context.Context, store ledger.Store) (*Cache, error) {
	c := &Cache{}
	if err := c.rebuild(ctx, store); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache) rebuild(ctx context.Context, store ledger.Store) error {
	pg, err := BuildPayment(ctx, store)
	if err != nil {
		return fmt.Errorf("graph: build payment graph: %w", err)
	}
	rg, err := BuildReputation(ctx, store)
	if err != nil {
		return fmt.Errorf("graph: build reputation graph: %w", err)
	}
	c.payment.Store(pg)
	c.reputation.Store(rg)
	c.version.Add(1)
	return nil
}

// Payment returns a live snapshot of the payment graph.
func (c *Cache) Payment() *Graph { return c.payment.Load() }

// Reputation returns a live snapshot of the reputation graph.
func (c *Cache) Reputation() *Graph { return c.reputation.Load() }

// Version returns the current structural version, used by
// internal/core/reputation to invalidate its memo.
func (c *Cache) Version() uint64 { return c.version.Load() }

// ApplyAccountChange patches the edges of one account's two creditlines
// into both cached graphs (spec.md §4.C: on commit or on
// set_credit_limit, "the affected edges are replaced likewise").
func (c *Cache) ApplyAccountChange(acct ledger.Account, cls []ledger.CreditLine) {
	pg := PatchCreditLines(c.payment.Load(), cls, acct, false)
	rg := PatchCreditLines(c.reputation.Load(), cls, acct, true)
	c.payment.Store(pg)
	c.reputation.Store(rg)
	c.version.Add(1)
}

// Rebuild discards both cached graphs and rebuilds from the live ledger
// (the CLI's rebuild-graph-cache command).
func Rebuild(ctx context.Context, store ledger.Store, c *Cache) error {
	return c.rebuild(ctx, store)
}

// VerifyAgainstLive compares the cached payment graph's edge set against
// one freshly built from the live ledger (the CLI's verify-cached-graph
// command: "compares live-built and cached graph for equality of edge
// set (src, dest, capacity, weight, creditline_id)"). Returns true and a
// nil diff on agreement.
func VerifyAgainstLive(ctx context.Context, store ledger.Store, c *Cache) (bool, []string, error) {
	live, err := BuildPayment(ctx, store)
	if err != nil {
		return false, nil, err
	}
	cached := c.Payment()

	liveEdges := edgeSet(live)
	cachedEdges := edgeSet(cached)

	var diffs []string
	for k, e := range liveEdges {
		if other, ok := cachedEdges[k]; !ok {
			diffs = append(diffs, fmt.Sprintf("missing from cache: creditline %d chunk %d", k.CreditLine, k.ChunkIndex))
		} else if e != other {
			diffs = append(diffs, fmt.Sprintf("mismatch: creditline %d chunk %d: live=%+v cached=%+v", k.CreditLine, k.ChunkIndex, e, other))
		}
	}
	for k := range cachedEdges {
		if _, ok := liveEdges[k]; !ok {
			diffs = append(diffs, fmt.Sprintf("stale in cache: creditline %d chunk %d", k.CreditLine, k.ChunkIndex))
		}
	}
	return len(diffs) == 0, diffs, nil
}

func edgeSet(g *Graph) map[Key]Edge {
	out := make(map[Key]Edge, len(g.edges))
	for k, e := range g.edges {
		out[k] = e
	}
	return out
}
