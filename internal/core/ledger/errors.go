package ledger

import "errors"

// Sentinel errors surfaced by Store implementations, matching the flat
// var-block style of the teacher's storage/relationaldb/errors.go rather
// than a single enum Result type.
var (
	// ErrNodeNotFound is returned when a NodeID has no corresponding row.
	ErrNodeNotFound = errors.New("ledger: node not found")
	// ErrAccountNotFound is returned when no bilateral account exists
	// between the requested pair of nodes.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrCreditLineNotFound is returned when a creditline lookup misses.
	ErrCreditLineNotFound = errors.New("ledger: creditline not found")
	// ErrPaymentNotFound is returned when a PaymentID has no corresponding row.
	ErrPaymentNotFound = errors.New("ledger: payment not found")
	// ErrLimitBelowBalance is returned by SetCreditLimit when the new
	// limit would violate I3 for the account's current balance.
	ErrLimitBelowBalance = errors.New("ledger: limit would be below current balance")
	// ErrLimitCollision is returned by CommitPayment when a concurrent
	// balance change causes a per-edge limit check to fail at commit.
	ErrLimitCollision = errors.New("ledger: limit collision during commit")
)
