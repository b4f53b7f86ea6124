package router

import (
	"github.com/mutualcredit/ledgerd/internal/core/graph"
	"github.com/mutualcredit/ledgerd/internal/core/ledger"
)

// weaklyConnected checks whether every node in nodes is reachable from
// nodes[0] when edges are treated as undirected (spec.md §4.D step 1).
func weaklyConnected(g *graph.Graph, nodes []ledger.NodeID, index map[ledger.NodeID]int) bool {
	if len(nodes) == 0 {
		return true
	}
	adj := make(map[ledger.NodeID][]ledger.NodeID)
	for _, e := range g.Edges() {
		adj[e.From] = append(adj[e.From], e.To)
		adj[e.To] = append(adj[e.To], e.From)
	}

	visited := map[ledger.NodeID]bool{nodes[0]: true}
	queue := []ledger.NodeID{nodes[0]}
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

	return len(visited) == len(nodes)
}
