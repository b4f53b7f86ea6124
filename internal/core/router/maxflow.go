package router

import (
	"github.com/mutualcredit/ledgerd/internal/core/graph"
	"github.com/mutualcredit/ledgerd/internal/core/ledger"
)

// MaxFlow computes the maximum flow from src to dst over g using
// Edmonds-Karp (BFS-augmenting-path Ford-Fulkerson), ignoring cost
// entirely — used by reputation (max-flow on the balance-zeroed graph)
// and max_payment (max-flow on the live payment graph), neither of
// which asks for a cost-minimal routing, only a capacity bound
// (spec.md §4.F, §6 "max_payment").
func MaxFlow(g *graph.Graph, src, dst ledger.NodeID) int64 {
	nodes := g.Nodes()
	index := make(map[ledger.NodeID]int, len(nodes))
	for i, n := range nodes {
		index[n] = i
	}
	srcIdx, ok := index[src]
	if !ok {
		return 0
	}
	dstIdx, ok := index[dst]
	if !ok {
		return 0
	}

	type capEdge struct {
		to       int
		cap      int64
		flow     int64
		reverse  int // index of the reverse edge in adj[to]
	}
	adj := make([][]capEdge, len(nodes))

	addEdge := func(from, to int, capacity int64) {
		adj[from] = append(adj[from], capEdge{to: to, cap: capacity})
		adj[to] = append(adj[to], capEdge{to: from, cap: 0})
		fi := len(adj[from]) - 1
		ti := len(adj[to]) - 1
		adj[from][fi].reverse = ti
		adj[to][ti].reverse = fi
	}

	for _, e := range g.Edges() {
		cap := e.Capacity
		if e.Infinite {
			cap = infCapacity
		}
		if cap <= 0 {
			continue
		}
		addEdge(index[e.From], index[e.To], cap)
	}

	var total int64
	for {
		// BFS for an augmenting path.
		parent := make([]int, len(nodes))
		parentEdge := make([]int, len(nodes))
		for i := range parent {
			parent[i] = -1
		}
		parent[srcIdx] = srcIdx
		queue := []int{srcIdx}
		for len(queue) > 0 && parent[dstIdx] == -1 {
			u := queue[0]
			queue = queue[1:]
			for ei, e := range adj[u] {
				if e.cap-e.flow > 0 && parent[e.to] == -1 {
					parent[e.to] = u
					parentEdge[e.to] = ei
					queue = append(queue, e.to)
				}
			}
		}
		if parent[dstIdx] == -1 {
			break
		}

		// bottleneck along the path.
		bottleneck := int64(1) << 62
		for v := dstIdx; v != srcIdx; v = parent[v] {
			e := adj[parent[v]][parentEdge[v]]
			if rc := e.cap - e.flow; rc < bottleneck {
				bottleneck = rc
			}
		}

		for v := dstIdx; v != srcIdx; v = parent[v] {
			u := parent[v]
			ei := parentEdge[v]
			adj[u][ei].flow += bottleneck
			rev := adj[u][ei].reverse
			adj[v][rev].flow -= bottleneck
		}
		total += bottleneck
	}

	return total
}
