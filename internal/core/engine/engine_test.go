package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mutualcredit/ledgerd/internal/capability"
	"github.com/mutualcredit/ledgerd/internal/core/amount"
	"github.com/mutualcredit/ledgerd/internal/core/ledger"
	"github.com/mutualcredit/ledgerd/internal/core/ledger/ledgertest"
)

func parse(t *testing.T, v string) amount.Amount {
	t.Helper()
	a, err := amount.Parse(v)
	require.NoError(t, err)
	return a
}

func TestEngineEndToEndPaymentAndViews(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New()

	e, err := New(ctx, store)
	require.NoError(t, err)

	n1, err := e.CreateNode(ctx)
	require.NoError(t, err)
	n2, err := e.CreateNode(ctx)
	require.NoError(t, err)

	require.NoError(t, e.SetCreditLimit(ctx, n2, n1, parse(t, "5")))
	require.NoError(t, e.SetCreditLimit(ctx, n1, n2, parse(t, "5")))

	out, err := e.AttemptPayment(ctx, n1, n2, parse(t, "1"), "coffee", ModeRouted, capability.Admin{})
	require.NoError(t, err)
	require.Equal(t, ledger.PaymentCompleted, out.Status)
	require.NoError(t, out.Err)

	v1, err := e.GetAccount(ctx, n1, n2)
	require.NoError(t, err)
	require.Equal(t, "-1.000000", v1.Balance.String())
	require.Equal(t, "5.000000", v1.OutLimit.String())
	require.Equal(t, "5.000000", v1.InLimit.String())

	v2, err := e.GetAccount(ctx, n2, n1)
	require.NoError(t, err)
	require.Equal(t, "1.000000", v2.Balance.String())

	entries, err := e.IterEntriesOf(ctx, n1, n2)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	report, err := e.AuditLedger(ctx)
	require.NoError(t, err)
	require.True(t, report.Clean())
}

func TestEngineDirectModeRequiresAdminCapability(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New()
	e, err := New(ctx, store)
	require.NoError(t, err)

	n1, _ := e.CreateNode(ctx)
	n2, _ := e.CreateNode(ctx)

	_, err = e.AttemptPayment(ctx, n1, n2, parse(t, "1"), "", ModeDirect, capability.Admin{})
	require.Error(t, err)

	out, err := e.AttemptPayment(ctx, n1, n2, parse(t, "1"), "", ModeDirect, capability.GrantAdmin())
	require.NoError(t, err)
	require.Equal(t, ledger.PaymentCompleted, out.Status)

	v, err := e.GetAccount(ctx, n1, n2)
	require.NoError(t, err)
	require.Equal(t, "-1.000000", v.Balance.String())
}

func TestEngineMaxPaymentAndReputation(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New()
	e, err := New(ctx, store)
	require.NoError(t, err)

	n1, _ := e.CreateNode(ctx)
	n2, _ := e.CreateNode(ctx)

	require.NoError(t, e.SetCreditLimit(ctx, n2, n1, parse(t, "5")))
	require.NoError(t, e.SetCreditLimit(ctx, n1, n2, parse(t, "5")))

	require.Equal(t, "5.000000", e.MaxPayment(ctx, n1, n2).String())
	require.Equal(t, "5.000000", e.Reputation(ctx, n1, n2).String())
}

func TestEngineDeleteNodeRebuildsCache(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New()
	e, err := New(ctx, store)
	require.NoError(t, err)

	n1, _ := e.CreateNode(ctx)
	n2, _ := e.CreateNode(ctx)
	require.NoError(t, e.SetCreditLimit(ctx, n1, n2, parse(t, "5")))

	require.NoError(t, e.DeleteNode(ctx, n2))

	out, err := e.AttemptPayment(ctx, n1, n2, parse(t, "1"), "", ModeRouted, capability.Admin{})
	require.NoError(t, err)
	require.Equal(t, ledger.PaymentFailed, out.Status)
}
