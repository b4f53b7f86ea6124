// Package audit runs offline invariant checks over a ledger.Store,
// reporting offenders without mutating anything (spec.md §4.G).
package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/mutualcredit/ledgerd/internal/core/amount"
	"github.com/mutualcredit/ledgerd/internal/core/ledger"
)

// Sentinel failure categories (spec.md §4.G).
var (
	ErrLedgerInconsistent  = errors.New("audit: account balance does not match its entries")
	ErrPaymentInconsistent = errors.New("audit: payment entries violate the round-trip invariant")
)

// AccountViolation names one account whose stored balance disagrees
// with the sum of its posted entries.
type AccountViolation struct {
	Account ledger.AccountID
	Stored  amount.Amount
	Summed  amount.Amount
}

func (v AccountViolation) Error() string {
	return fmt.Sprintf("%v: account %d stored=%s summed=%s", ErrLedgerInconsistent, v.Account, v.Stored, v.Summed)
}

// PaymentViolation names one completed payment whose entries move some
// node's balance by the wrong net amount (I4: the payer nets -amount,
// the recipient +amount, every intermediary zero). Net is that node's
// deviation from its expected net change.
type PaymentViolation struct {
	Payment ledger.PaymentID
	Net     amount.Amount
}

func (v PaymentViolation) Error() string {
	return fmt.Sprintf("%v: payment %d nets to %s, want 0", ErrPaymentInconsistent, v.Payment, v.Net)
}

// Report collects every violation found by a full audit run.
type Report struct {
	AccountViolations []AccountViolation
	PaymentViolations []PaymentViolation
}

// Clean reports whether the audit found no violations.
func (r Report) Clean() bool {
	return len(r.AccountViolations) == 0 && len(r.PaymentViolations) == 0
}

// Run performs both the per-account and per-payment checks and returns
// every offender found; it never fails fast and never mutates the
// store.
func Run(ctx context.Context, store ledger.Store) (Report, error) {
	var report Report

	accountViolations, err := checkAccounts(ctx, store)
	if err != nil {
		return Report{}, err
	}
	report.AccountViolations = accountViolations

	paymentViolations, err := checkPayments(ctx, store)
	if err != nil {
		return Report{}, err
	}
	report.PaymentViolations = paymentViolations

	return report, nil
}

// checkAccounts verifies balance == Σ entries.amount for every account
// (spec.md §4.G "per-account check").
func checkAccounts(ctx context.Context, store ledger.Store) ([]AccountViolation, error) {
	accounts, err := store.IterAllAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit: list accounts: %w", err)
	}

	var violations []AccountViolation
	for _, acct := range accounts {
		entries, err := store.IterEntriesOf(ctx, acct.NodePos, acct.NodeNeg)
		if err != nil {
			return nil, fmt.Errorf("audit: list entries for account %d: %w", acct.ID, err)
		}

		summed := amount.Zero
		for _, e := range entries {
			summed = summed.Add(e.Amount)
		}

		if !summed.Equal(acct.Balance) {
			violations = append(violations, AccountViolation{
				Account: acct.ID,
				Stored:  acct.Balance,
				Summed:  summed,
			})
		}
	}
	return violations, nil
}

// checkPayments verifies I4 for every completed payment: grouping its
// entries by node (each entry's delta is in its account's NodePos
// convention; a NodeNeg's own view negates it), the payer's net must be
// −amount, the recipient's +amount, and every intermediary's net 0
// (spec.md §4.G "per-payment check", I4).
func checkPayments(ctx context.Context, store ledger.Store) ([]PaymentViolation, error) {
	payments, err := store.IterCompletedPayments(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit: list completed payments: %w", err)
	}

	accounts, err := store.IterAllAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit: list accounts: %w", err)
	}
	accountsByID := make(map[ledger.AccountID]ledger.Account, len(accounts))
	for _, a := range accounts {
		accountsByID[a.ID] = a
	}

	var violations []PaymentViolation
	for _, p := range payments {
		entries, err := store.IterEntriesOfPayment(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("audit: list entries for payment %d: %w", p.ID, err)
		}

		byNode := make(map[ledger.NodeID]amount.Amount)
		for _, e := range entries {
			acct, ok := accountsByID[e.Account]
			if !ok {
				continue
			}
			byNode[acct.NodePos] = byNode[acct.NodePos].Add(e.Amount)
			byNode[acct.NodeNeg] = byNode[acct.NodeNeg].Sub(e.Amount)
		}

		want := func(n ledger.NodeID) amount.Amount {
			switch n {
			case p.Payer:
				return p.Amount.Neg()
			case p.Recipient:
				return p.Amount
			default:
				return amount.Zero
			}
		}

		ok := true
		var worstNet amount.Amount
		for n, got := range byNode {
			if !got.Equal(want(n)) {
				ok = false
				worstNet = got.Sub(want(n))
			}
		}
		if !ok {
			violations = append(violations, PaymentViolation{Payment: p.ID, Net: worstNet})
		}
	}
	return violations, nil
}
