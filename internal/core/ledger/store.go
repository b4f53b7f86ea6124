package ledger

import (
	"context"

	"github.com/mutualcredit/ledgerd/internal/core/amount"
)

// CreditLinePair is the two CreditLines (NodePos and NodeNeg view) that
// must exist for every Account (I1).
type CreditLinePair struct {
	Account Account
	Pos     CreditLine // BalMult == BalMultPos, belongs to Account.NodePos
	Neg     CreditLine // BalMult == BalMultNeg, belongs to Account.NodeNeg
}

// Store is the ledger's persistence contract (spec.md §4.B). All mutating
// methods run under their own transaction scope; CommitPayment and
// CommitDirectEntry must also be called inside WithWriter.
type Store interface {
	// CreateNode allocates a new, empty participant.
	CreateNode(ctx context.Context) (Node, error)
	// DeleteNode removes n and all its creditlines. Payments referencing
	// n remain as historical records (spec.md §6).
	DeleteNode(ctx context.Context, n NodeID) error

	// CreateAccount creates the bilateral account between n1 and n2, n1
	// becoming NodePos, with its two CreditLines.
	CreateAccount(ctx context.Context, n1, n2 NodeID) (CreditLinePair, error)
	// GetAccount performs the unique bilateral lookup between a and b,
	// in no particular order; returns ErrAccountNotFound if absent.
	GetAccount(ctx context.Context, a, b NodeID) (CreditLinePair, error)
	// GetOrCreateAccount is GetAccount falling back to CreateAccount.
	GetOrCreateAccount(ctx context.Context, n1, n2 NodeID) (CreditLinePair, error)

	// SetCreditLimit sets the recipient-side creditline's limit to
	// weight in the endorser<->recipient account, creating the account
	// if absent. Idempotent. Returns ErrLimitBelowBalance if the new
	// limit would violate I3 for the current balance.
	SetCreditLimit(ctx context.Context, endorser, recipient NodeID, weight amount.Amount) error

	// IterCreditLinesOf returns every creditline owned by node, for
	// graph construction.
	IterCreditLinesOf(ctx context.Context, node NodeID) ([]CreditLine, error)

	// IterAllCreditLines returns every creditline in the ledger, used
	// for a full graph rebuild (graph.Rebuild).
	IterAllCreditLines(ctx context.Context) ([]CreditLine, error)

	// GetPayment fetches a payment by id.
	GetPayment(ctx context.Context, id PaymentID) (Payment, error)
	// CreatePayment inserts a new payment row in status pending.
	CreatePayment(ctx context.Context, p Payment) (PaymentID, error)
	// MarkPaymentAttempted sets last_attempted_at and status.
	MarkPaymentAttempted(ctx context.Context, id PaymentID, status PaymentStatus) error

	// CommitPayment applies edgeFlows to their accounts and appends one
	// Entry per creditline, atomically (spec.md §4.E step 7). Must be
	// called while holding WithWriter's lock. Returns ErrLimitCollision
	// if any finite-limit creditline's post-update balance would leave
	// [-limit, partner_limit].
	CommitPayment(ctx context.Context, payment PaymentID, edgeFlows []EdgeFlow) error

	// CommitDirectEntry posts a single administrative entry of amt from
	// payer's perspective against the payer<->recipient account,
	// bypassing the I3 limit check entirely (spec.md §4.E "Alternative
	// direct mode", §9). Must be called while holding WithWriter's lock.
	CommitDirectEntry(ctx context.Context, payment PaymentID, payer, recipient NodeID, amt amount.Amount) error

	// IterEntriesOf returns a's entries against partner b, newest-first;
	// it returns none if a and b share no account.
	IterEntriesOf(ctx context.Context, a, b NodeID) ([]Entry, error)

	// IterAllAccounts returns every account, for audit.
	IterAllAccounts(ctx context.Context) ([]Account, error)
	// IterCompletedPayments returns every completed payment, for audit
	// (their entries come from IterEntriesOfPayment).
	IterCompletedPayments(ctx context.Context) ([]Payment, error)
	// IterEntriesOfPayment returns every entry belonging to a payment.
	IterEntriesOfPayment(ctx context.Context, id PaymentID) ([]Entry, error)

	// WithWriter takes the store-wide exclusive writer lock for the
	// duration of fn (spec.md §4.B concurrency contract, §5). Only
	// CommitPayment and CommitDirectEntry need to run inside this; steps 1-6 and 8-9 of
	// §4.E may run outside it.
	WithWriter(ctx context.Context, fn func(ctx context.Context) error) error

	// Close releases backend resources.
	Close() error
}
