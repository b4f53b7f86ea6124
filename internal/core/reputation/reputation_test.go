package reputation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mutualcredit/ledgerd/internal/core/amount"
	"github.com/mutualcredit/ledgerd/internal/core/graph"
	"github.com/mutualcredit/ledgerd/internal/core/ledger"
	"github.com/mutualcredit/ledgerd/internal/core/ledger/ledgertest"
)

func setLimit(t *testing.T, store *ledgertest.Store, a, b ledger.NodeID, v string) {
	t.Helper()
	amt, err := amount.Parse(v)
	require.NoError(t, err)
	require.NoError(t, store.SetCreditLimit(context.Background(), a, b, amt))
}

func TestReputationIgnoresBalance(t *testing.T) {
	store := ledgertest.New()
	ctx := context.Background()
	n1, _ := store.CreateNode(ctx)
	n2, _ := store.CreateNode(ctx)
	// endorser=n2, recipient=n1: sets n1's own creditline (the n1->n2
	// edge) limit to 5, bounding how much n1 may push towards n2.
	setLimit(t, store, n2.ID, n1.ID, "5")

	cache, err := graph.NewCache(ctx, store)
	require.NoError(t, err)
	q, err := New(cache)
	require.NoError(t, err)

	rep := q.Reputation(ctx, n1.ID, n2.ID)
	require.Equal(t, "5.000000", rep.String())
}

func TestReputationMemoInvalidatesOnVersionChange(t *testing.T) {
	store := ledgertest.New()
	ctx := context.Background()
	n1, _ := store.CreateNode(ctx)
	n2, _ := store.CreateNode(ctx)
	setLimit(t, store, n2.ID, n1.ID, "5")

	cache, err := graph.NewCache(ctx, store)
	require.NoError(t, err)
	q, err := New(cache)
	require.NoError(t, err)

	first := q.Reputation(ctx, n1.ID, n2.ID)
	require.Equal(t, "5.000000", first.String())

	require.NoError(t, store.SetCreditLimit(ctx, n2.ID, n1.ID, mustParse(t, "9")))
	pair, err := store.GetAccount(ctx, n1.ID, n2.ID)
	require.NoError(t, err)
	cache.ApplyAccountChange(pair.Account, []ledger.CreditLine{pair.Pos, pair.Neg})

	second := q.Reputation(ctx, n1.ID, n2.ID)
	require.Equal(t, "9.000000", second.String())
}

func TestMaxPaymentReflectsLiveBalance(t *testing.T) {
	store := ledgertest.New()
	ctx := context.Background()
	n1, _ := store.CreateNode(ctx)
	n2, _ := store.CreateNode(ctx)
	setLimit(t, store, n1.ID, n2.ID, "5")
	setLimit(t, store, n2.ID, n1.ID, "5")

	cache, err := graph.NewCache(ctx, store)
	require.NoError(t, err)
	q, err := New(cache)
	require.NoError(t, err)

	require.Equal(t, "5.000000", q.MaxPayment(ctx, n1.ID, n2.ID).String())
}

func mustParse(t *testing.T, s string) amount.Amount {
	t.Helper()
	a, err := amount.Parse(s)
	require.NoError(t, err)
	return a
}
