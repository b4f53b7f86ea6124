// Package ledger holds the bilateral mutual-credit data model (Node,
// Account, CreditLine, Entry, Payment) and the Store interface that
// concrete backends (postgres, sqlite, kvstore) implement.
package ledger

import (
	"time"

	"github.com/mutualcredit/ledgerd/internal/core/amount"
)

// NodeID is the stable integer handle for a participant in the credit
// graph. Identity/profile binding is external application plumbing
// (Non-goal); the core only ever sees this alias, matching the original
// villagescc Node.alias versus the Django Profile it wraps.
type NodeID uint64

// AccountID identifies a bilateral mutual-credit relationship.
type AccountID uint64

// PaymentID identifies a requested transfer.
type PaymentID uint64

// EntryID identifies a single posted balance change.
type EntryID uint64

// CreditLineID identifies one node's view of an Account.
type CreditLineID uint64

// Node is an opaque participant identity. It owns nothing directly; it is
// referenced by creditlines and payments.
type Node struct {
	ID NodeID
}

// Account is a bilateral mutual-credit relationship between exactly two
// nodes. Balance is signed from NodePos's perspective: positive means
// NodePos is owed by NodeNeg.
type Account struct {
	ID        AccountID
	NodePos   NodeID
	NodeNeg   NodeID
	Balance   amount.Amount
	Active    bool
	CreatedAt time.Time
}

// BalMult is a creditline's sign convention relative to its account:
// +1 for the account's NodePos, -1 for NodeNeg.
type BalMult int8

const (
	BalMultPos BalMult = 1
	BalMultNeg BalMult = -1
)

// CreditLine is one node's view of an Account: its signed balance and the
// limit on how much this node may owe its partner (set by the partner as
// endorser).
type CreditLine struct {
	ID        CreditLineID
	Account   AccountID
	Node      NodeID
	BalMult   BalMult
	Limit     amount.Amount // amount.Inf means "no limit"
	HasLimit  bool          // false means Limit is meaningless (no creditline row yet beyond defaults)
}

// SignedBalance is this creditline's view of the account balance:
// account.Balance * bal_mult.
func (cl CreditLine) SignedBalance(acct Account) amount.Amount {
	return acct.Balance.MulInt(int64(cl.BalMult))
}

// Entry is a posted change to an Account, created only as part of a
// committed Payment.
type Entry struct {
	ID         EntryID
	Payment    PaymentID
	Account    AccountID
	Amount     amount.Amount
	NewBalance amount.Amount
	Date       time.Time
}

// PaymentStatus is the lifecycle state of a Payment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// PaymentMode selects routed (multi-hop, limit-checked) versus direct
// (administrative, bypasses routing and I3) commit.
type PaymentMode string

const (
	ModeRouted PaymentMode = "routed"
	ModeDirect PaymentMode = "direct"
)

// Payment is a requested transfer between two nodes.
type Payment struct {
	ID              PaymentID
	Payer           NodeID
	Recipient       NodeID
	Amount          amount.Amount
	Memo            string
	SubmittedAt     time.Time
	LastAttemptedAt time.Time
	Status          PaymentStatus
}

// EdgeFlow is the executor's per-creditline routed result: how much
// signed flow to post to one creditline's account, in the creditline's
// own sign convention (§4.E step 6).
type EdgeFlow struct {
	CreditLine CreditLineID
	Node       NodeID
	Amount     amount.Amount // positive in this node's own sign convention
}
