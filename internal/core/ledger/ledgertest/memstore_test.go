package ledgertest

import "testing"

func TestMemStoreConformance(t *testing.T) {
	RunStoreConformance(t, New())
}
