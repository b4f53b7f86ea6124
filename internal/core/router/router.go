// Package router implements the min-cost flow solve of spec.md §4.D:
// successive shortest paths over a residual multigraph, using
// Bellman-Ford for the shortest-path step since edge weights may be
// negative (reverse residual edges). Ported line-for-line in algorithm
// from original_source/cc/payment/mincost.py, restructured into typed
// Go structs instead of a dynamically-typed multigraph library.
package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/mutualcredit/ledgerd/internal/core/graph"
	"github.com/mutualcredit/ledgerd/internal/core/ledger"
)

// Sentinel failure modes (spec.md §4.D "Failure conditions"). These are
// router-internal; the executor translates them to NoRoute/Infeasible at
// its boundary (spec.md §7).
var (
	ErrNotConnected  = errors.New("router: graph is not weakly connected")
	ErrDemandMismatch = errors.New("router: demands do not sum to zero")
	ErrUnbounded     = errors.New("router: negative-weight cycle in residual graph")
	ErrInfeasible    = errors.New("router: no feasible flow satisfies demand")
)

// infCapacity stands in for an unbounded edge capacity. Large enough that
// it never becomes the bottleneck of any real path, small enough that
// summing a handful of them never overflows int64.
const infCapacity = int64(1) << 48

// Result is the solved flow: the net integer flow assigned to each edge
// key (excluding the synthetic source/sink), and the accumulated cost.
type Result struct {
	Flow map[graph.Key]int64
	Cost int64
}

type edgeState struct {
	from, to   int // node indices, including synthetic s/t
	key        graph.Key
	synthetic  bool
	capacity   int64
	cost       int64
	flow       int64
}

// Solve finds a minimum-cost flow on g satisfying a single commodity
// demand of amount units from payer to recipient (spec.md §4.D: "non-zero
// demand only at payer = -A and recipient = +A; all others 0").
func Solve(ctx context.Context, g *graph.Graph, payer, recipient ledger.NodeID, demandAmount int64) (*Result, error) {
	if demandAmount < 0 {
		return nil, fmt.Errorf("router: demand must be non-negative")
	}
	if !g.HasNode(payer) || !g.HasNode(recipient) {
		return nil, ErrNotConnected
	}

	nodes := g.Nodes()
	index := make(map[ledger.NodeID]int, len(nodes))
	for i, n := range nodes {
		index[n] = i
	}
	sIdx := len(nodes)
	tIdx := len(nodes) + 1
	numNodes := len(nodes) + 2

	if !weaklyConnected(g, nodes, index) {
		return nil, ErrNotConnected
	}

	var edges []edgeState
	for _, e := range g.Edges() {
		cap := e.Capacity
		if e.Infinite {
			cap = infCapacity
		}
		edges = append(edges, edgeState{
			from:     index[e.From],
			to:       index[e.To],
			key:      graph.Key{CreditLine: e.CreditLine, ChunkIndex: e.ChunkIndex},
			capacity: cap,
			cost:     e.Cost,
		})
	}

	// synthesize super-source/sink per spec.md §4.D step 2.
	if demandAmount > 0 {
		edges = append(edges, edgeState{from: sIdx, to: index[payer], capacity: demandAmount, cost: 0, synthetic: true})
		edges = append(edges, edgeState{from: index[recipient], to: tIdx, capacity: demandAmount, cost: 0, synthetic: true})
	}

	sourceEdgeIdx := len(edges) - 2 // the s->payer edge, for the saturation check below

	cost, err := solveSSP(ctx, edges, numNodes, sIdx, tIdx)
	if err != nil {
		return nil, err
	}
	if demandAmount == 0 {
		return &Result{Flow: map[graph.Key]int64{}, Cost: 0}, nil
	}

	if edges[sourceEdgeIdx].flow != edges[sourceEdgeIdx].capacity {
		return nil, ErrInfeasible
	}

	out := &Result{Flow: make(map[graph.Key]int64), Cost: cost}
	for _, e := range edges {
		if e.synthetic {
			continue
		}
		if e.flow != 0 {
			out.Flow[e.key] += e.flow
		}
	}
	return out, nil
}

// pathStep is one hop of a reconstructed s->t path: which underlying
// edgeState to adjust, and in which residual direction.
type pathStep struct {
	edgeIdx  int
	reversed bool
}

// solveSSP runs the successive-shortest-path loop (spec.md §4.D steps
// 3-5) in place over edges, returning accumulated cost.
func solveSSP(ctx context.Context, edges []edgeState, numNodes, sIdx, tIdx int) (int64, error) {
	var totalCost int64
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		dist, pred, predStep, negCycle := bellmanFord(edges, numNodes, sIdx)
		if negCycle {
			return 0, ErrUnbounded
		}
		if dist[tIdx] == nil {
			break // no s->t path remains
		}

		// reconstruct path from t back to s.
		var path []pathStep
		for v := tIdx; v != sIdx; v = pred[v] {
			path = append(path, predStep[v])
		}

		bottleneck := int64(1) << 62
		for _, step := range path {
			e := edges[step.edgeIdx]
			rc := e.capacity - e.flow
			if step.reversed {
				rc = e.flow
			}
			if rc < bottleneck {
				bottleneck = rc
			}
		}
		if bottleneck <= 0 {
			break
		}

		for _, step := range path {
			e := &edges[step.edgeIdx]
			cost := e.cost
			if step.reversed {
				e.flow -= bottleneck
				cost = -cost
			} else {
				e.flow += bottleneck
			}
			totalCost += bottleneck * cost
		}
	}
	return totalCost, nil
}

// residual edges are represented implicitly: edges[i] in its forward
// sense (capacity-flow>0) or reverse sense (flow>0, cost negated) are
// both derived on the fly from the same edgeState during Bellman-Ford,
// keyed by a residualEdge view built per Bellman-Ford pass.

type residualEdge struct {
	from, to int
	cost     int64
	edgeIdx  int
	reversed bool
}

func residualEdges(edges []edgeState) []residualEdge {
	// keep only the minimum-weight parallel edge between any ordered
	// pair (spec.md §4.D "Path selection"), forward and reverse
	// considered separately since they connect different directions.
	best := make(map[[2]int]residualEdge)

	consider := func(r residualEdge) {
		k := [2]int{r.from, r.to}
		if cur, ok := best[k]; !ok || r.cost < cur.cost {
			best[k] = r
		}
	}

	for i, e := range edges {
		if e.capacity-e.flow > 0 {
			consider(residualEdge{from: e.from, to: e.to, cost: e.cost, edgeIdx: i, reversed: false})
		}
		if e.flow > 0 {
			consider(residualEdge{from: e.to, to: e.from, cost: -e.cost, edgeIdx: i, reversed: true})
		}
	}

	out := make([]residualEdge, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	return out
}

// bellmanFord computes shortest distances from s over the residual
// multigraph (spec.md §4.D step 3). Returns per-node distance (nil = not
// reached), predecessor node, the path step used to reach it, and
// whether a negative cycle was detected.
func bellmanFord(edges []edgeState, numNodes, sIdx int) (dist []*int64, pred []int, predStep []pathStep, negCycle bool) {
	res := residualEdges(edges)

	dist = make([]*int64, numNodes)
	pred = make([]int, numNodes)
	predStep = make([]pathStep, numNodes)
	zero := int64(0)
	dist[sIdx] = &zero

	for i := 0; i < numNodes-1; i++ {
		changed := false
		for _, r := range res {
			du := dist[r.from]
			if du == nil {
				continue
			}
			cand := *du + r.cost
			if dist[r.to] == nil || cand < *dist[r.to] {
				dist[r.to] = &cand
				pred[r.to] = r.from
				predStep[r.to] = pathStep{edgeIdx: r.edgeIdx, reversed: r.reversed}
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	// one extra pass: any further relaxation means a negative cycle.
	for _, r := range res {
		du := dist[r.from]
		if du == nil {
			continue
		}
		if dist[r.to] == nil || *du+r.cost < *dist[r.to] {
			return nil, nil, nil, true
		}
	}

	return dist, pred, predStep, false
}
