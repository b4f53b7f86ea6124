package ledgertest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mutualcredit/ledgerd/internal/core/amount"
	"github.com/mutualcredit/ledgerd/internal/core/ledger"
)

// RunStoreConformance exercises the parts of ledger.Store whose
// semantics must agree across backends (postgres, sqlite, kvstore, and
// this package's own in-memory double): account auto-creation, I3's
// limit check, and CommitPayment's all-or-nothing application. It is
// called from each backend's own _test.go with a freshly opened store.
func RunStoreConformance(t *testing.T, store ledger.Store) {
	t.Helper()
	ctx := context.Background()

	a, err := store.CreateNode(ctx)
	require.NoError(t, err)
	b, err := store.CreateNode(ctx)
	require.NoError(t, err)

	pair, err := store.GetOrCreateAccount(ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.Equal(t, a.ID, pair.Account.NodePos)
	require.Equal(t, b.ID, pair.Account.NodeNeg)
	require.True(t, pair.Account.Balance.IsZero())
	require.True(t, pair.Pos.Limit.IsInf())
	require.True(t, pair.Neg.Limit.IsInf())

	limit, err := amount.Parse("50")
	require.NoError(t, err)
	require.NoError(t, store.SetCreditLimit(ctx, a.ID, b.ID, limit))

	pair, err = store.GetAccount(ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.True(t, pair.Neg.HasLimit)
	require.True(t, pair.Neg.Limit.Equal(limit))

	flow, err := amount.Parse("10")
	require.NoError(t, err)
	payID, err := store.CreatePayment(ctx, ledger.Payment{Payer: b.ID, Recipient: a.ID, Amount: flow})
	require.NoError(t, err)

	edgeFlows := []ledger.EdgeFlow{
		{CreditLine: pair.Pos.ID, Node: a.ID, Amount: flow},
		{CreditLine: pair.Neg.ID, Node: b.ID, Amount: flow.Neg()},
	}
	err = store.WithWriter(ctx, func(ctx context.Context) error {
		return store.CommitPayment(ctx, payID, edgeFlows)
	})
	require.NoError(t, err)
	require.NoError(t, store.MarkPaymentAttempted(ctx, payID, ledger.PaymentCompleted))

	// each EdgeFlow moves the balance by -amount*bal_mult: -10 on the Pos
	// creditline and -(-10)*(-1) = -10 on the Neg one, -20 in all.
	afterFirst := flow.MulInt(-2)
	pair, err = store.GetAccount(ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.True(t, pair.Account.Balance.Equal(afterFirst))

	entries, err := store.IterEntriesOf(ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// a single payment can carry two EdgeFlows against the same account
	// (cl_pos and cl_neg are distinct creditlines on one Account), so one
	// CommitPayment call must accumulate both deltas rather than let the
	// second clobber the first (I2: balance == sum of its entries).
	c, err := store.CreateNode(ctx)
	require.NoError(t, err)
	d, err := store.CreateNode(ctx)
	require.NoError(t, err)

	cd, err := store.GetOrCreateAccount(ctx, c.ID, d.ID)
	require.NoError(t, err)

	posAmt, err := amount.Parse("7")
	require.NoError(t, err)
	negAmt, err := amount.Parse("4")
	require.NoError(t, err)

	payID3, err := store.CreatePayment(ctx, ledger.Payment{Payer: d.ID, Recipient: c.ID, Amount: posAmt})
	require.NoError(t, err)
	dualFlows := []ledger.EdgeFlow{
		{CreditLine: cd.Pos.ID, Node: c.ID, Amount: posAmt},
		{CreditLine: cd.Neg.ID, Node: d.ID, Amount: negAmt},
	}
	err = store.WithWriter(ctx, func(ctx context.Context) error {
		return store.CommitPayment(ctx, payID3, dualFlows)
	})
	require.NoError(t, err)
	require.NoError(t, store.MarkPaymentAttempted(ctx, payID3, ledger.PaymentCompleted))

	cd, err = store.GetAccount(ctx, c.ID, d.ID)
	require.NoError(t, err)

	cdEntries, err := store.IterEntriesOf(ctx, c.ID, d.ID)
	require.NoError(t, err)
	require.Len(t, cdEntries, 2)

	var entrySum amount.Amount
	for _, e := range cdEntries {
		entrySum = entrySum.Add(e.Amount)
	}
	require.True(t, cd.Account.Balance.Equal(entrySum))
	// the two edgeFlows must have both landed: the account's balance is
	// neither edge's delta alone, it is their sum.
	require.False(t, cd.Account.Balance.Equal(posAmt.Neg()))
	require.False(t, cd.Account.Balance.Equal(negAmt))

	overLimit, err := amount.Parse("100")
	require.NoError(t, err)
	payID2, err := store.CreatePayment(ctx, ledger.Payment{Payer: a.ID, Recipient: b.ID, Amount: overLimit})
	require.NoError(t, err)
	badFlows := []ledger.EdgeFlow{
		{CreditLine: pair.Pos.ID, Node: a.ID, Amount: overLimit.Neg()},
		{CreditLine: pair.Neg.ID, Node: b.ID, Amount: overLimit},
	}
	err = store.WithWriter(ctx, func(ctx context.Context) error {
		return store.CommitPayment(ctx, payID2, badFlows)
	})
	require.ErrorIs(t, err, ledger.ErrLimitCollision)

	// a failed CommitPayment must not have moved the balance (P2).
	pair, err = store.GetAccount(ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.True(t, pair.Account.Balance.Equal(afterFirst))

	require.NoError(t, store.DeleteNode(ctx, b.ID))
	_, err = store.GetAccount(ctx, a.ID, b.ID)
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)
}
