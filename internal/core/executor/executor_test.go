package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mutualcredit/ledgerd/internal/capability"
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

func newExecutor(t *testing.T, store *ledgertest.Store) *Executor {
	t.Helper()
	ctx := context.Background()
	cache, err := graph.NewCache(ctx, store)
	require.NoError(t, err)
	return New(store, cache, nil)
}

func TestAttemptPaymentOneHop(t *testing.T) {
	store := ledgertest.New()
	ctx := context.Background()
	n1, _ := store.CreateNode(ctx)
	n2, _ := store.CreateNode(ctx)
	setLimit(t, store, n1.ID, n2.ID, "5")
	setLimit(t, store, n2.ID, n1.ID, "5")

	ex := newExecutor(t, store)
	one, _ := amount.Parse("1")
	out, err := ex.AttemptPayment(ctx, n1.ID, n2.ID, one, "coffee")
	require.NoError(t, err)
	require.Equal(t, ledger.PaymentCompleted, out.Status)

	pair, err := store.GetAccount(ctx, n1.ID, n2.ID)
	require.NoError(t, err)
	require.Equal(t, "-1.000000", pair.Account.Balance.String())
}

func TestAttemptPaymentExactLimit(t *testing.T) {
	store := ledgertest.New()
	ctx := context.Background()
	n1, _ := store.CreateNode(ctx)
	n2, _ := store.CreateNode(ctx)
	setLimit(t, store, n1.ID, n2.ID, "5")
	setLimit(t, store, n2.ID, n1.ID, "5")

	ex := newExecutor(t, store)
	five, _ := amount.Parse("5")
	out, err := ex.AttemptPayment(ctx, n1.ID, n2.ID, five, "")
	require.NoError(t, err)
	require.Equal(t, ledger.PaymentCompleted, out.Status)

	tiny, _ := amount.Parse("0.01")
	out2, err := ex.AttemptPayment(ctx, n1.ID, n2.ID, tiny, "")
	require.NoError(t, err)
	require.Equal(t, ledger.PaymentFailed, out2.Status)
	require.Error(t, out2.Err)
}

func TestAttemptPaymentZeroLimitFails(t *testing.T) {
	store := ledgertest.New()
	ctx := context.Background()
	n1, _ := store.CreateNode(ctx)
	n2, _ := store.CreateNode(ctx)
	// endorser=n2, recipient=n1: sets n1's own creditline (the edge n1
	// would pay n2 over) limit to 0.
	setLimit(t, store, n2.ID, n1.ID, "0")

	ex := newExecutor(t, store)
	one, _ := amount.Parse("1")
	out, err := ex.AttemptPayment(ctx, n1.ID, n2.ID, one, "")
	require.NoError(t, err)
	require.Equal(t, ledger.PaymentFailed, out.Status)
}

func TestAttemptPaymentThreeHopRipple(t *testing.T) {
	store := ledgertest.New()
	ctx := context.Background()
	n1, _ := store.CreateNode(ctx)
	n2, _ := store.CreateNode(ctx)
	n3, _ := store.CreateNode(ctx)
	for _, pair := range [][2]ledger.NodeID{{n1.ID, n2.ID}, {n2.ID, n1.ID}, {n2.ID, n3.ID}, {n3.ID, n2.ID}} {
		setLimit(t, store, pair[0], pair[1], "10")
	}

	ex := newExecutor(t, store)
	three, _ := amount.Parse("3")
	out, err := ex.AttemptPayment(ctx, n1.ID, n3.ID, three, "")
	require.NoError(t, err)
	require.Equal(t, ledger.PaymentCompleted, out.Status)

	p12, err := store.GetAccount(ctx, n1.ID, n2.ID)
	require.NoError(t, err)
	p23, err := store.GetAccount(ctx, n2.ID, n3.ID)
	require.NoError(t, err)
	require.False(t, p12.Account.Balance.IsZero())
	require.False(t, p23.Account.Balance.IsZero())
}

func TestAttemptPaymentMultiPathSplits(t *testing.T) {
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

	ex := newExecutor(t, store)
	six, _ := amount.Parse("6")
	out, err := ex.AttemptPayment(ctx, n1.ID, n4.ID, six, "")
	require.NoError(t, err)
	require.Equal(t, ledger.PaymentCompleted, out.Status)
}

func TestAttemptPaymentCostPreference(t *testing.T) {
	// n1<->n2 has a direct creditline; n1<->n3<->n2 is a longer, costed
	// detour. With both routes feasible, the cheaper direct hop should
	// carry the flow, leaving the detour's accounts untouched.
	store := ledgertest.New()
	ctx := context.Background()
	n1, _ := store.CreateNode(ctx)
	n2, _ := store.CreateNode(ctx)
	n3, _ := store.CreateNode(ctx)
	setLimit(t, store, n1.ID, n2.ID, "10")
	setLimit(t, store, n2.ID, n1.ID, "10")
	setLimit(t, store, n1.ID, n3.ID, "10")
	setLimit(t, store, n3.ID, n1.ID, "10")
	setLimit(t, store, n3.ID, n2.ID, "10")
	setLimit(t, store, n2.ID, n3.ID, "10")

	ex := newExecutor(t, store)
	one, _ := amount.Parse("1")
	out, err := ex.AttemptPayment(ctx, n1.ID, n2.ID, one, "")
	require.NoError(t, err)
	require.Equal(t, ledger.PaymentCompleted, out.Status)

	p13, err := store.GetAccount(ctx, n1.ID, n3.ID)
	require.NoError(t, err)
	require.True(t, p13.Account.Balance.IsZero(), "single-hop direct route should have been preferred over the detour")
}

func TestAttemptPaymentNotConnected(t *testing.T) {
	store := ledgertest.New()
	ctx := context.Background()
	n1, _ := store.CreateNode(ctx)
	n2, _ := store.CreateNode(ctx)

	ex := newExecutor(t, store)
	one, _ := amount.Parse("1")
	out, err := ex.AttemptPayment(ctx, n1.ID, n2.ID, one, "")
	require.NoError(t, err)
	require.Equal(t, ledger.PaymentFailed, out.Status)
	require.ErrorIs(t, out.Err, ErrNoRoute)
}

func TestCommitDirectEntryRequiresAdmin(t *testing.T) {
	store := ledgertest.New()
	ctx := context.Background()
	n1, _ := store.CreateNode(ctx)
	n2, _ := store.CreateNode(ctx)

	ex := newExecutor(t, store)
	amt, _ := amount.Parse("100")
	_, err := ex.CommitDirectEntry(ctx, capability.Admin{}, n1.ID, n2.ID, amt, "grant")
	require.Error(t, err)
}

func TestCommitDirectEntryBypassesLimit(t *testing.T) {
	store := ledgertest.New()
	ctx := context.Background()
	n1, _ := store.CreateNode(ctx)
	n2, _ := store.CreateNode(ctx)
	setLimit(t, store, n1.ID, n2.ID, "1")
	setLimit(t, store, n2.ID, n1.ID, "1") // n1 may owe at most 1, far below the direct entry amount

	ex := newExecutor(t, store)
	amt, _ := amount.Parse("1000")
	id, err := ex.CommitDirectEntry(ctx, capability.GrantAdmin(), n1.ID, n2.ID, amt, "correction")
	require.NoError(t, err)
	require.NotZero(t, id)

	p, err := store.GetAccount(ctx, n1.ID, n2.ID)
	require.NoError(t, err)
	require.Equal(t, "-1000.000000", p.Account.Balance.String())
}
