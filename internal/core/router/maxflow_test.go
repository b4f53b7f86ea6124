package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mutualcredit/ledgerd/internal/core/graph"
	"github.com/mutualcredit/ledgerd/internal/core/ledger/ledgertest"
)

func TestMaxFlowMultiPath(t *testing.T) {
	store := ledgertest.New()
	ctx := context.Background()
	n1, _ := store.CreateNode(ctx)
	n2, _ := store.CreateNode(ctx)
	n3, _ := store.CreateNode(ctx)
	n4, _ := store.CreateNode(ctx)
	setLimit(t, store, n2.ID, n1.ID, "4")
	setLimit(t, store, n3.ID, n1.ID, "4")
	setLimit(t, store, n4.ID, n2.ID, "4")
	setLimit(t, store, n4.ID, n3.ID, "4")

	g, err := graph.BuildPayment(ctx, store)
	require.NoError(t, err)

	require.Equal(t, int64(8_000_000), MaxFlow(g, n1.ID, n4.ID))
}

func TestMaxFlowNoPath(t *testing.T) {
	store := ledgertest.New()
	ctx := context.Background()
	n1, _ := store.CreateNode(ctx)
	n2, _ := store.CreateNode(ctx)
	g, err := graph.BuildPayment(ctx, store)
	require.NoError(t, err)

	require.Equal(t, int64(0), MaxFlow(g, n1.ID, n2.ID))
}
