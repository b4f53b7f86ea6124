package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mutualcredit/ledgerd/internal/core/ledger/ledgertest"
)

func TestStoreConformance(t *testing.T) {
	store, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	defer store.Close()

	ledgertest.RunStoreConformance(t, store)
}
