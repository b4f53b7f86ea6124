// Package graph builds and maintains the in-memory flow graph that
// mirrors the ledger: a directed multigraph whose edges are creditline
// capacity/cost chunks, cached behind a read-copy-update handle.
package graph

import (
	"context"
	"sort"

	"github.com/mutualcredit/ledgerd/internal/core/amount"
	"github.com/mutualcredit/ledgerd/internal/core/ledger"
)

// CostScale is the integer scaling factor for edge costs (§4.C:
// "Costs are scaled to integers by ×C (C = 10^6) and rounded").
const CostScale = 1_000_000

// Edge is one capacity/cost chunk derived from a CreditLine.
type Edge struct {
	From, To   ledger.NodeID
	ChunkIndex int // 0 or 1: a creditline contributes at most two parallel edges
	Capacity   int64
	Infinite   bool
	Cost       int64
	CreditLine ledger.CreditLineID
}

// Key identifies an edge slot stably across rebuilds, used to replace
// exactly the edges belonging to one creditline on patch.
type Key struct {
	CreditLine ledger.CreditLineID
	ChunkIndex int
}

// Graph is an immutable snapshot of the flow graph. Callers obtain one
// from Cache.Payment()/Reputation() or BuildPayment/BuildReputation, and
// never mutate it in place — patches produce a new Graph (see
// PatchCreditLines).
type Graph struct {
	nodes map[ledger.NodeID]struct{}
	edges map[Key]Edge
}

func newGraph() *Graph {
	return &Graph{
		nodes: make(map[ledger.NodeID]struct{}),
		edges: make(map[Key]Edge),
	}
}

// Nodes returns every node id present in the graph.
func (g *Graph) Nodes() []ledger.NodeID {
	out := make([]ledger.NodeID, 0, len(g.nodes))
	for n := range g.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Edges returns every edge in the graph, in a stable order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreditLine != out[j].CreditLine {
			return out[i].CreditLine < out[j].CreditLine
		}
		return out[i].ChunkIndex < out[j].ChunkIndex
	})
	return out
}

// HasNode reports whether n appears in the graph.
func (g *Graph) HasNode(n ledger.NodeID) bool {
	_, ok := g.nodes[n]
	return ok
}

// clone makes a shallow copy suitable for patching (copy-on-write).
func (g *Graph) clone() *Graph {
	c := newGraph()
	for n := range g.nodes {
		c.nodes[n] = struct{}{}
	}
	for k, e := range g.edges {
		c.edges[k] = e
	}
	return c
}

// edgeChunks implements the three cases of spec.md §4.C for one
// creditline. ignoreBalance, when true, treats the account's balance as
// zero (used by the reputation graph, which zeroes balances).
func edgeChunks(cl ledger.CreditLine, acct ledger.Account, ignoreBalance bool) []Edge {
	limit := cl.Limit
	if !cl.HasLimit {
		limit = amount.Inf
	}

	signedBalance := cl.SignedBalance(acct) // b: U's signed balance, positive = V owes U
	if ignoreBalance {
		signedBalance = amount.Zero
	}

	from := cl.Node
	to := partnerNode(cl, acct)

	mk := func(idx int, capacity amount.Amount, cost int64) Edge {
		e := Edge{From: from, To: to, ChunkIndex: idx, CreditLine: cl.ID, Cost: cost}
		if capacity.IsInf() {
			e.Infinite = true
		} else {
			units := capacity.ScaleToInt()
			if units < 0 {
				units = 0
			}
			e.Capacity = units
		}
		return e
	}

	switch {
	case limit.IsInf():
		return []Edge{mk(0, amount.Inf, 0)}

	case signedBalance.GreaterThan(amount.Zero):
		// V already owes U: cash-in chunk (zero cost) then issue chunk
		// (unit cost), as two parallel edges.
		cashIn := mk(0, signedBalance, 0)
		issue := mk(1, limit, CostScale)
		return []Edge{cashIn, issue}

	default:
		// b <= 0: single chunk (b+L, 1+b/L), degenerate to (0,0) at L=0
		// per spec.md §9 Open Question #1 (the safe branch, applied
		// uniformly rather than only in one code path).
		if limit.IsZero() {
			return []Edge{mk(0, amount.Zero, 0)}
		}
		capacity := signedBalance.Add(limit)
		ratio := 1.0 + signedBalance.Float64()/limit.Float64()
		cost := int64(ratio*CostScale + 0.5)
		return []Edge{mk(0, capacity, cost)}
	}
}

func partnerNode(cl ledger.CreditLine, acct ledger.Account) ledger.NodeID {
	if cl.Node == acct.NodePos {
		return acct.NodeNeg
	}
	return acct.NodePos
}

// BuildPayment builds the full payment_graph from the live ledger.
func BuildPayment(ctx context.Context, store ledger.Store) (*Graph, error) {
	return build(ctx, store, false)
}

// BuildReputation builds the full reputation_graph (balances ignored).
func BuildReputation(ctx context.Context, store ledger.Store) (*Graph, error) {
	return build(ctx, store, true)
}

func build(ctx context.Context, store ledger.Store, ignoreBalance bool) (*Graph, error) {
	cls, err := store.IterAllCreditLines(ctx)
	if err != nil {
		return nil, err
	}
	g := newGraph()

	accounts := make(map[ledger.AccountID]ledger.Account)
	accts, err := store.IterAllAccounts(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range accts {
		accounts[a.ID] = a
	}

	for _, cl := range cls {
		acct, ok := accounts[cl.Account]
		if !ok {
			continue
		}
		g.nodes[cl.Node] = struct{}{}
		for _, e := range edgeChunks(cl, acct, ignoreBalance) {
			g.edges[Key{CreditLine: cl.ID, ChunkIndex: e.ChunkIndex}] = e
		}
	}
	return g, nil
}

// PatchCreditLines replaces the edges belonging to the given creditlines
// (both sides of one account) in g, returning a new Graph (spec.md §4.C
// "Cache": "for every account whose balance changed... the two edges of
// that account are replaced in both cached graphs").
func PatchCreditLines(g *Graph, cls []ledger.CreditLine, acct ledger.Account, ignoreBalance bool) *Graph {
	out := g.clone()
	for _, cl := range cls {
		out.nodes[cl.Node] = struct{}{}
		// clear any existing chunks for this creditline (chunk count can
		// change between 1 and 2 as balance crosses zero).
		for idx := 0; idx < 2; idx++ {
			delete(out.edges, Key{CreditLine: cl.ID, ChunkIndex: idx})
		}
		for _, e := range edgeChunks(cl, acct, ignoreBalance) {
			out.edges[Key{CreditLine: cl.ID, ChunkIndex: e.ChunkIndex}] = e
		}
	}
	return out
}

// Component returns the weakly-connected subgraph of g containing start,
// used to seed the router (§4.C "Seeding") and to bound max_payment /
// reputation queries to reachable nodes.
func Component(g *Graph, start ledger.NodeID) *Graph {
	if !g.HasNode(start) {
		return newGraph()
	}
	adj := make(map[ledger.NodeID][]ledger.NodeID)
	for _, e := range g.edges {
		adj[e.From] = append(adj[e.From], e.To)
		adj[e.To] = append(adj[e.To], e.From)
	}

	visited := map[ledger.NodeID]bool{start: true}
	queue := []ledger.NodeID{start}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, next := range adj[n] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}

	out := newGraph()
	for n := range visited {
		out.nodes[n] = struct{}{}
	}
	for k, e := range g.edges {
		if visited[e.From] && visited[e.To] {
			out.edges[k] = e
		}
	}
	return out
}
