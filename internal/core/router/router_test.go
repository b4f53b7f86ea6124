package router

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

func TestOneHop(t *testing.T) {
	store := ledgertest.New()
	ctx := context.Background()
	n1, _ := store.CreateNode(ctx)
	n2, _ := store.CreateNode(ctx)
	setLimit(t, store, n1.ID, n2.ID, "5")
	setLimit(t, store, n2.ID, n1.ID, "5")

	g, err := graph.BuildPayment(ctx, store)
	require.NoError(t, err)

	one, _ := amount.Parse("1")
	res, err := Solve(ctx, g, n1.ID, n2.ID, one.ScaleToInt())
	require.NoError(t, err)
	require.NotEmpty(t, res.Flow)
}

func TestExactLimitThenInfeasible(t *testing.T) {
	store := ledgertest.New()
	ctx := context.Background()
	n1, _ := store.CreateNode(ctx)
	n2, _ := store.CreateNode(ctx)
	setLimit(t, store, n1.ID, n2.ID, "5")
	setLimit(t, store, n2.ID, n1.ID, "5")

	g, err := graph.BuildPayment(ctx, store)
	require.NoError(t, err)

	five, _ := amount.Parse("5")
	_, err = Solve(ctx, g, n1.ID, n2.ID, five.ScaleToInt())
	require.NoError(t, err)

	// Solve does not consume g's capacity, so the overshoot is asked for
	// in a single demand: the limit plus 0.01.
	tiny, _ := amount.Parse("0.01")
	_, err = Solve(ctx, g, n1.ID, n2.ID, five.ScaleToInt()+tiny.ScaleToInt())
	require.ErrorIs(t, err, ErrInfeasible)
}

func TestZeroLimitInfeasible(t *testing.T) {
	store := ledgertest.New()
	ctx := context.Background()
	n1, _ := store.CreateNode(ctx)
	n2, _ := store.CreateNode(ctx)
	// endorser=n2, recipient=n1: sets n1's own creditline (the n1->n2
	// edge payer n1 would route over) limit to 0.
	setLimit(t, store, n2.ID, n1.ID, "0")

	g, err := graph.BuildPayment(ctx, store)
	require.NoError(t, err)

	one, _ := amount.Parse("1")
	_, err = Solve(ctx, g, n1.ID, n2.ID, one.ScaleToInt())
	require.ErrorIs(t, err, ErrInfeasible)
}

func TestThreeHopRipple(t *testing.T) {
	store := ledgertest.New()
	ctx := context.Background()
	n1, _ := store.CreateNode(ctx)
	n2, _ := store.CreateNode(ctx)
	n3, _ := store.CreateNode(ctx)
	for _, pair := range [][2]ledger.NodeID{{n1.ID, n2.ID}, {n2.ID, n1.ID}, {n2.ID, n3.ID}, {n3.ID, n2.ID}} {
		setLimit(t, store, pair[0], pair[1], "10")
	}

	g, err := graph.BuildPayment(ctx, store)
	require.NoError(t, err)

	three, _ := amount.Parse("3")
	res, err := Solve(ctx, g, n1.ID, n3.ID, three.ScaleToInt())
	require.NoError(t, err)
	require.NotEmpty(t, res.Flow)
}

func TestMultiPathSplits(t *testing.T) {
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

	six, _ := amount.Parse("6")
	res, err := Solve(ctx, g, n1.ID, n4.ID, six.ScaleToInt())
	require.NoError(t, err)
	require.NotEmpty(t, res.Flow)
}

func TestNotConnectedWhenRecipientMissing(t *testing.T) {
	store := ledgertest.New()
	ctx := context.Background()
	n1, _ := store.CreateNode(ctx)
	n2, _ := store.CreateNode(ctx)
	g, err := graph.BuildPayment(ctx, store)
	require.NoError(t, err)

	// n2 has never appeared in any creditline; it is absent from g.
	one, _ := amount.Parse("1")
	_, err = Solve(ctx, g, n1.ID, n2.ID, one.ScaleToInt())
	require.ErrorIs(t, err, ErrNotConnected)
}
