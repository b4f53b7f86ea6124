package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mutualcredit/ledgerd/internal/core/amount"
	"github.com/mutualcredit/ledgerd/internal/core/graph"
	"github.com/mutualcredit/ledgerd/internal/core/ledger"
	"github.com/mutualcredit/ledgerd/internal/core/ledger/ledgertest"

	"github.com/mutualcredit/ledgerd/internal/core/executor"
)

func setLimit(t *testing.T, store *ledgertest.Store, a, b ledger.NodeID, v string) {
	t.Helper()
	amt, err := amount.Parse(v)
	require.NoError(t, err)
	require.NoError(t, store.SetCreditLimit(context.Background(), a, b, amt))
}

func TestRunCleanAfterSuccessfulPayments(t *testing.T) {
	store := ledgertest.New()
	ctx := context.Background()
	n1, _ := store.CreateNode(ctx)
	n2, _ := store.CreateNode(ctx)
	n3, _ := store.CreateNode(ctx)
	for _, pair := range [][2]ledger.NodeID{{n1.ID, n2.ID}, {n2.ID, n1.ID}, {n2.ID, n3.ID}, {n3.ID, n2.ID}} {
		setLimit(t, store, pair[0], pair[1], "10")
	}

	cache, err := graph.NewCache(ctx, store)
	require.NoError(t, err)
	ex := executor.New(store, cache, nil)

	three, _ := amount.Parse("3")
	out, err := ex.AttemptPayment(ctx, n1.ID, n3.ID, three, "")
	require.NoError(t, err)
	require.Equal(t, ledger.PaymentCompleted, out.Status)

	report, err := Run(ctx, store)
	require.NoError(t, err)
	require.True(t, report.Clean(), "%+v", report)
}

// staleBalanceStore wraps a ledgertest.Store and reports a fabricated
// balance for one account, simulating the storage corruption the
// per-account check exists to catch.
type staleBalanceStore struct {
	*ledgertest.Store
	account ledger.AccountID
	stale   amount.Amount
}

func (s staleBalanceStore) IterAllAccounts(ctx context.Context) ([]ledger.Account, error) {
	accts, err := s.Store.IterAllAccounts(ctx)
	if err != nil {
		return nil, err
	}
	for i := range accts {
		if accts[i].ID == s.account {
			accts[i].Balance = s.stale
		}
	}
	return accts, nil
}

func TestRunDetectsAccountInconsistency(t *testing.T) {
	store := ledgertest.New()
	ctx := context.Background()
	n1, _ := store.CreateNode(ctx)
	n2, _ := store.CreateNode(ctx)
	pair, err := store.GetOrCreateAccount(ctx, n1.ID, n2.ID)
	require.NoError(t, err)

	corrupt := staleBalanceStore{Store: store, account: pair.Account.ID, stale: amount.FromInt(42)}
	report, err := Run(ctx, corrupt)
	require.NoError(t, err)
	require.False(t, report.Clean())
	require.Len(t, report.AccountViolations, 1)
	require.Equal(t, pair.Account.ID, report.AccountViolations[0].Account)
}
