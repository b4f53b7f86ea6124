package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mutualcredit/ledgerd/internal/core/amount"
	"github.com/mutualcredit/ledgerd/internal/core/ledger"
	"github.com/mutualcredit/ledgerd/internal/core/ledger/ledgertest"
)

func TestEdgeChunksInfiniteLimit(t *testing.T) {
	store := ledgertest.New()
	ctx := context.Background()
	n1, _ := store.CreateNode(ctx)
	n2, _ := store.CreateNode(ctx)
	_, err := store.GetOrCreateAccount(ctx, n1.ID, n2.ID)
	require.NoError(t, err)

	g, err := BuildPayment(ctx, store)
	require.NoError(t, err)
	for _, e := range g.Edges() {
		require.True(t, e.Infinite)
		require.Equal(t, int64(0), e.Cost)
	}
}

func TestEdgeChunksTwoSided(t *testing.T) {
	store := ledgertest.New()
	ctx := context.Background()
	n1, _ := store.CreateNode(ctx)
	n2, _ := store.CreateNode(ctx)

	five, _ := amount.Parse("5")
	require.NoError(t, store.SetCreditLimit(ctx, n1.ID, n2.ID, five))
	require.NoError(t, store.SetCreditLimit(ctx, n2.ID, n1.ID, five))

	g, err := BuildPayment(ctx, store)
	require.NoError(t, err)
	require.Len(t, g.Edges(), 2)
	for _, e := range g.Edges() {
		require.False(t, e.Infinite)
		require.Equal(t, five.ScaleToInt(), e.Capacity)
		require.Equal(t, int64(CostScale), e.Cost)
	}
}

func TestZeroLimitSafeBranch(t *testing.T) {
	store := ledgertest.New()
	ctx := context.Background()
	n1, _ := store.CreateNode(ctx)
	n2, _ := store.CreateNode(ctx)
	// endorser=n1, recipient=n2: sets n2's own creditline (the n2->n1
	// edge) limit to 0.
	require.NoError(t, store.SetCreditLimit(ctx, n1.ID, n2.ID, amount.Zero))

	g, err := BuildPayment(ctx, store)
	require.NoError(t, err)
	found := false
	for _, e := range g.Edges() {
		if e.From == n2.ID {
			found = true
			require.Equal(t, int64(0), e.Capacity)
			require.Equal(t, int64(0), e.Cost)
			require.False(t, e.Infinite)
		}
	}
	require.True(t, found)
}

func TestComponentIsolatesUnreachable(t *testing.T) {
	store := ledgertest.New()
	ctx := context.Background()
	n1, _ := store.CreateNode(ctx)
	n2, _ := store.CreateNode(ctx)
	n3, _ := store.CreateNode(ctx)
	_, _ = store.GetOrCreateAccount(ctx, n1.ID, n2.ID)
	// n3 is isolated

	g, err := BuildPayment(ctx, store)
	require.NoError(t, err)
	comp := Component(g, n1.ID)
	require.True(t, comp.HasNode(n1.ID))
	require.True(t, comp.HasNode(n2.ID))
	require.False(t, comp.HasNode(n3.ID))
}

func TestCacheApplyAccountChangeBumpsVersion(t *testing.T) {
	store := ledgertest.New()
	ctx := context.Background()
	n1, _ := store.CreateNode(ctx)
	n2, _ := store.CreateNode(ctx)
	_, _ = store.GetOrCreateAccount(ctx, n1.ID, n2.ID)

	cache, err := NewCache(ctx, store)
	require.NoError(t, err)
	v0 := cache.Version()

	five, _ := amount.Parse("5")
	require.NoError(t, store.SetCreditLimit(ctx, n1.ID, n2.ID, five))
	pair, err := store.GetAccount(ctx, n1.ID, n2.ID)
	require.NoError(t, err)
	cache.ApplyAccountChange(pair.Account, []ledger.CreditLine{pair.Pos, pair.Neg})

	require.Greater(t, cache.Version(), v0)
	ok, diffs, err := VerifyAgainstLive(ctx, store, cache)
	require.NoError(t, err)
	require.True(t, ok, diffs)
}
