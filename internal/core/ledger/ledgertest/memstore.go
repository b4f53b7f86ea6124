// Package ledgertest provides an in-memory ledger.Store test double,
// mirroring the teacher's co-located mock pattern
// (core/tx/payment/flow_test.go's mockLedgerView) rather than a generated
// mock.
package ledgertest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mutualcredit/ledgerd/internal/core/amount"
	"github.com/mutualcredit/ledgerd/internal/core/ledger"
)

// Store is a single-process, mutex-guarded implementation of
// ledger.Store backed by plain maps. It satisfies the full concurrency
// contract (single writer via WithWriter) without any external
// dependency, for use in package-level tests across graph/router/
// executor/reputation/audit.
type Store struct {
	mu sync.RWMutex
	wg sync.Mutex // the single-writer lock proper; mu guards the maps

	nextNode    ledger.NodeID
	nextAccount ledger.AccountID
	nextCL      ledger.CreditLineID
	nextEntry   ledger.EntryID
	nextPayment ledger.PaymentID

	nodes       map[ledger.NodeID]ledger.Node
	accounts    map[ledger.AccountID]ledger.Account
	creditlines map[ledger.CreditLineID]ledger.CreditLine
	// byPair indexes an AccountID by the unordered node pair.
	byPair   map[pairKey]ledger.AccountID
	entries  map[ledger.EntryID]ledger.Entry
	payments map[ledger.PaymentID]ledger.Payment
}

type pairKey struct {
	a, b ledger.NodeID
}

func makePairKey(a, b ledger.NodeID) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a, b}
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		nodes:       make(map[ledger.NodeID]ledger.Node),
		accounts:    make(map[ledger.AccountID]ledger.Account),
		creditlines: make(map[ledger.CreditLineID]ledger.CreditLine),
		byPair:      make(map[pairKey]ledger.AccountID),
		entries:     make(map[ledger.EntryID]ledger.Entry),
		payments:    make(map[ledger.PaymentID]ledger.Payment),
	}
}

func (s *Store) CreateNode(ctx context.Context) (ledger.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextNode++
	n := ledger.Node{ID: s.nextNode}
	s.nodes[n.ID] = n
	return n, nil
}

func (s *Store) DeleteNode(ctx context.Context, id ledger.NodeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nodes, id)
	for clID, cl := range s.creditlines {
		if cl.Node == id {
			delete(s.creditlines, clID)
		}
	}
	for key, acctID := range s.byPair {
		if key.a == id || key.b == id {
			delete(s.byPair, key)
			delete(s.accounts, acctID)
		}
	}
	return nil
}

func (s *Store) CreateAccount(ctx context.Context, n1, n2 ledger.NodeID) (ledger.CreditLinePair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createAccountLocked(n1, n2)
}

func (s *Store) createAccountLocked(n1, n2 ledger.NodeID) (ledger.CreditLinePair, error) {
	s.nextAccount++
	acct := ledger.Account{
		ID:        s.nextAccount,
		NodePos:   n1,
		NodeNeg:   n2,
		Balance:   amount.Zero,
		Active:    true,
		CreatedAt: time.Now(),
	}
	s.accounts[acct.ID] = acct
	s.byPair[makePairKey(n1, n2)] = acct.ID

	s.nextCL++
	pos := ledger.CreditLine{ID: s.nextCL, Account: acct.ID, Node: n1, BalMult: ledger.BalMultPos, Limit: amount.Inf, HasLimit: false}
	s.creditlines[pos.ID] = pos

	s.nextCL++
	neg := ledger.CreditLine{ID: s.nextCL, Account: acct.ID, Node: n2, BalMult: ledger.BalMultNeg, Limit: amount.Inf, HasLimit: false}
	s.creditlines[neg.ID] = neg

	return ledger.CreditLinePair{Account: acct, Pos: pos, Neg: neg}, nil
}

func (s *Store) GetAccount(ctx context.Context, a, b ledger.NodeID) (ledger.CreditLinePair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getAccountLocked(a, b)
}

func (s *Store) getAccountLocked(a, b ledger.NodeID) (ledger.CreditLinePair, error) {
	acctID, ok := s.byPair[makePairKey(a, b)]
	if !ok {
		return ledger.CreditLinePair{}, ledger.ErrAccountNotFound
	}
	acct := s.accounts[acctID]
	var pos, neg ledger.CreditLine
	for _, cl := range s.creditlines {
		if cl.Account != acctID {
			continue
		}
		if cl.BalMult == ledger.BalMultPos {
			pos = cl
		} else {
			neg = cl
		}
	}
	return ledger.CreditLinePair{Account: acct, Pos: pos, Neg: neg}, nil
}

func (s *Store) GetOrCreateAccount(ctx context.Context, n1, n2 ledger.NodeID) (ledger.CreditLinePair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pair, err := s.getAccountLocked(n1, n2)
	if err == nil {
		return pair, nil
	}
	return s.createAccountLocked(n1, n2)
}

func (s *Store) SetCreditLimit(ctx context.Context, endorser, recipient ledger.NodeID, weight amount.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair, err := s.getAccountLocked(endorser, recipient)
	if err != nil {
		pair, err = s.createAccountLocked(endorser, recipient)
		if err != nil {
			return err
		}
	}

	// the recipient-side creditline is the one whose Node == recipient.
	var target ledger.CreditLine
	if pair.Pos.Node == recipient {
		target = pair.Pos
	} else {
		target = pair.Neg
	}

	signedBalance := target.SignedBalance(pair.Account)
	if !weight.IsInf() && signedBalance.LessThan(weight.Neg()) {
		// target's signed balance below -weight violates I3 once weight
		// becomes its limit (limit bounds [-limit, partner_limit] from
		// the partner's perspective; the node's own negative bound is
		// its own limit).
		return ledger.ErrLimitBelowBalance
	}

	target.Limit = weight
	target.HasLimit = true
	s.creditlines[target.ID] = target
	return nil
}

func (s *Store) IterCreditLinesOf(ctx context.Context, node ledger.NodeID) ([]ledger.CreditLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ledger.CreditLine
	for _, cl := range s.creditlines {
		if cl.Node == node {
			out = append(out, cl)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) IterAllCreditLines(ctx context.Context) ([]ledger.CreditLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.CreditLine, 0, len(s.creditlines))
	for _, cl := range s.creditlines {
		out = append(out, cl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetPayment(ctx context.Context, id ledger.PaymentID) (ledger.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[id]
	if !ok {
		return ledger.Payment{}, ledger.ErrPaymentNotFound
	}
	return p, nil
}

func (s *Store) CreatePayment(ctx context.Context, p ledger.Payment) (ledger.PaymentID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextPayment++
	p.ID = s.nextPayment
	if p.Status == "" {
		p.Status = ledger.PaymentPending
	}
	s.payments[p.ID] = p
	return p.ID, nil
}

func (s *Store) MarkPaymentAttempted(ctx context.Context, id ledger.PaymentID, status ledger.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return ledger.ErrPaymentNotFound
	}
	p.LastAttemptedAt = time.Now()
	p.Status = status
	s.payments[id] = p
	return nil
}

// CommitPayment must be called from inside WithWriter; it does not take
// s.wg itself so callers control the critical section boundary exactly
// as spec.md §4.E step 7 / §5 require.
func (s *Store) CommitPayment(ctx context.Context, payment ledger.PaymentID, edgeFlows []ledger.EdgeFlow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// validate every flow against its creditline's limit before
	// mutating anything, so the commit is all-or-nothing (P2). Running
	// holds each touched account's balance as of the edgeFlows already
	// folded into it this commit, since a single payment can carry two
	// edgeFlows against the same account (its cl_pos and cl_neg are
	// distinct creditlines mapping to one Account) and the second must
	// see the first's effect rather than the stale pre-commit balance.
	type pending struct {
		acct   ledger.Account
		delta  amount.Amount
		newBal amount.Amount
	}
	plans := make([]pending, 0, len(edgeFlows))
	running := make(map[ledger.AccountID]ledger.Account)

	for _, ef := range edgeFlows {
		cl, ok := s.creditlines[ef.CreditLine]
		if !ok {
			return ledger.ErrCreditLineNotFound
		}
		acct, ok := running[cl.Account]
		if !ok {
			acct = s.accounts[cl.Account]
		}

		// delta to account.balance = -amount * bal_mult (preserves I4,
		// spec.md §4.E step 7).
		delta := ef.Amount.Neg().MulInt(int64(cl.BalMult))
		newBal := acct.Balance.Add(delta)

		if cl.HasLimit && !cl.Limit.IsInf() {
			signed := newBal.MulInt(int64(cl.BalMult))
			if signed.LessThan(cl.Limit.Neg()) {
				return ledger.ErrLimitCollision
			}
		}
		// also check the partner's limit bound on the opposite side.
		partner := s.partnerOf(cl)
		if partner.HasLimit && !partner.Limit.IsInf() {
			signed := newBal.MulInt(int64(cl.BalMult))
			if signed.GreaterThan(partner.Limit) {
				return ledger.ErrLimitCollision
			}
		}

		acct.Balance = newBal
		running[cl.Account] = acct
		plans = append(plans, pending{acct: acct, delta: delta, newBal: newBal})
	}

	for _, pl := range plans {
		s.accounts[pl.acct.ID] = pl.acct

		s.nextEntry++
		e := ledger.Entry{
			ID:         s.nextEntry,
			Payment:    payment,
			Account:    pl.acct.ID,
			Amount:     pl.delta,
			NewBalance: pl.newBal,
			Date:       time.Now(),
		}
		s.entries[e.ID] = e
	}
	return nil
}

// CommitDirectEntry posts amt from payer's own sign convention against
// the payer<->recipient account with no limit check, per spec.md §4.E
// "Alternative direct mode".
func (s *Store) CommitDirectEntry(ctx context.Context, payment ledger.PaymentID, payer, recipient ledger.NodeID, amt amount.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair, err := s.getAccountLocked(payer, recipient)
	if err != nil {
		pair, err = s.createAccountLocked(payer, recipient)
		if err != nil {
			return err
		}
	}

	var payerCL ledger.CreditLine
	if pair.Pos.Node == payer {
		payerCL = pair.Pos
	} else {
		payerCL = pair.Neg
	}

	delta := amt.Neg().MulInt(int64(payerCL.BalMult))
	acct := pair.Account
	acct.Balance = acct.Balance.Add(delta)
	s.accounts[acct.ID] = acct

	s.nextEntry++
	e := ledger.Entry{
		ID:         s.nextEntry,
		Payment:    payment,
		Account:    acct.ID,
		Amount:     delta,
		NewBalance: acct.Balance,
		Date:       time.Now(),
	}
	s.entries[e.ID] = e
	return nil
}

func (s *Store) partnerOf(cl ledger.CreditLine) ledger.CreditLine {
	for _, other := range s.creditlines {
		if other.Account == cl.Account && other.ID != cl.ID {
			return other
		}
	}
	return ledger.CreditLine{}
}

func (s *Store) IterEntriesOf(ctx context.Context, a, b ledger.NodeID) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acctID, ok := s.byPair[makePairKey(a, b)]
	if !ok {
		return nil, nil
	}
	var out []ledger.Entry
	for _, e := range s.entries {
		if e.Account == acctID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (s *Store) IterAllAccounts(ctx context.Context) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) IterCompletedPayments(ctx context.Context) ([]ledger.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ledger.Payment
	for _, p := range s.payments {
		if p.Status == ledger.PaymentCompleted {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) IterEntriesOfPayment(ctx context.Context, id ledger.PaymentID) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ledger.Entry
	for _, e := range s.entries {
		if e.Payment == id {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) WithWriter(ctx context.Context, fn func(ctx context.Context) error) error {
	s.wg.Lock()
	defer s.wg.Unlock()
	return fn(ctx)
}

func (s *Store) Close() error { return nil }
