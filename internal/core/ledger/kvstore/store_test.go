package kvstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mutualcredit/ledgerd/internal/core/ledger/ledgertest"
)

func TestStoreConformance(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	ledgertest.RunStoreConformance(t, store)
}

func TestLZ4CompressorRoundTrip(t *testing.T) {
	c := lz4Compressor{}
	for _, s := range []string{"", "x", "the quick brown fox jumps over the lazy dog, repeatedly, many times over"} {
		compressed, err := c.compress([]byte(s))
		require.NoError(t, err)
		plain, err := c.decompress(compressed)
		require.NoError(t, err)
		require.Equal(t, s, string(plain))
	}
}
