package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mutualcredit/ledgerd/internal/core/ledger/ledgertest"
)

// TestStoreConformance requires a reachable PostgreSQL instance; set
// LEDGERD_POSTGRES_TEST_DSN to run it, otherwise it's skipped (the
// sqlite and kvstore backends carry the same conformance suite without
// an external dependency).
func TestStoreConformance(t *testing.T) {
	dsn := os.Getenv("LEDGERD_POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("LEDGERD_POSTGRES_TEST_DSN not set")
	}

	store, err := Open(context.Background(), dsn)
	require.NoError(t, err)
	defer store.Close()

	ledgertest.RunStoreConformance(t, store)
}
