// Package kvstore implements ledger.Store directly against an embedded
// cockroachdb/pebble database, for deployments that want a single
// self-contained data file with no SQL driver in the loop. Rows are
// gob-encoded and LZ4-compressed; secondary lookups (by node, by
// account, by payment) are maintained as explicit key-prefix indexes
// rather than a query planner.
package kvstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/mutualcredit/ledgerd/internal/core/amount"
	"github.com/mutualcredit/ledgerd/internal/core/ledger"
)

// Key namespaces. Every row key is prefix + big-endian uint64 id; every
// index key is prefix + the indexed id(s), with the target id as the
// trailing component so a prefix scan yields it directly.
const (
	prefixNode       = "n:"
	prefixAccount    = "a:"
	prefixCreditLine = "c:"
	prefixPayment    = "p:"
	prefixEntry      = "e:"
	prefixSeq        = "seq:"

	idxPair      = "idx_pair:"       // idx_pair:<min>:<max> -> accountID
	idxCLNode    = "idx_cl_node:"    // idx_cl_node:<nodeID>:<clID> -> (empty)
	idxEntryAcct = "idx_entry_acct:" // idx_entry_acct:<acctID>:<entryID> -> (empty)
	idxEntryPay  = "idx_entry_pay:"  // idx_entry_pay:<paymentID>:<entryID> -> (empty)
)

type nodeRecord struct{ ID uint64 }

type accountRecord struct {
	ID        uint64
	NodePos   uint64
	NodeNeg   uint64
	Balance   string
	Active    bool
	CreatedAt time.Time
}

type creditLineRecord struct {
	ID       uint64
	Account  uint64
	Node     uint64
	BalMult  int8
	Limit    string // empty means unlimited (amount.Inf)
	HasLimit bool
}

type paymentRecord struct {
	ID              uint64
	Payer           uint64
	Recipient       uint64
	Amount          string
	Memo            string
	SubmittedAt     time.Time
	LastAttemptedAt time.Time
	Status          string
}

type entryRecord struct {
	ID         uint64
	Payment    uint64
	Account    uint64
	Amount     string
	NewBalance string
	Date       time.Time
}

// Store is a pebble-backed ledger.Store.
type Store struct {
	db   *pebble.DB
	comp compressor
	mu   sync.Mutex // guards id sequences and every mutating op not already under WithWriter
}

// Open opens (creating if absent) the pebble database at dir.
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("kvstore: open %s: %w", dir, err)
	}
	return &Store{db: db, comp: lz4Compressor{}}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func key(prefix string, ids ...uint64) []byte {
	buf := make([]byte, 0, len(prefix)+8*len(ids))
	buf = append(buf, prefix...)
	for _, id := range ids {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], id)
		buf = append(buf, b[:]...)
	}
	return buf
}

func pairKey(a, b uint64) []byte {
	if a > b {
		a, b = b, a
	}
	return key(idxPair, a, b)
}

func (s *Store) putGob(batch *pebble.Batch, k []byte, v any) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return fmt.Errorf("kvstore: encode: %w", err)
	}
	compressed, err := s.comp.compress(buf.Bytes())
	if err != nil {
		return err
	}
	return batch.Set(k, compressed, nil)
}

func (s *Store) getGob(k []byte, v any) error {
	raw, closer, err := s.db.Get(k)
	if err != nil {
		if err == pebble.ErrNotFound {
			return pebble.ErrNotFound
		}
		return fmt.Errorf("kvstore: get: %w", err)
	}
	defer closer.Close()
	plain, err := s.comp.decompress(raw)
	if err != nil {
		return err
	}
	if err := gob.NewDecoder(bytes.NewReader(plain)).Decode(v); err != nil {
		return fmt.Errorf("kvstore: decode: %w", err)
	}
	return nil
}

// nextID reads-increments-writes a sequence counter within batch, which
// must be committed by the caller. Callers hold s.mu for the duration.
func (s *Store) nextID(batch *pebble.Batch, name string) (uint64, error) {
	k := key(prefixSeq + name)
	var cur uint64
	raw, closer, err := s.db.Get(k)
	if err == nil {
		cur = binary.BigEndian.Uint64(raw)
		closer.Close()
	} else if err != pebble.ErrNotFound {
		return 0, fmt.Errorf("kvstore: seq read: %w", err)
	}
	next := cur + 1
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], next)
	if err := batch.Set(k, b[:], nil); err != nil {
		return 0, err
	}
	return next, nil
}

func (s *Store) CreateNode(ctx context.Context) (ledger.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()

	id, err := s.nextID(batch, "node")
	if err != nil {
		return ledger.Node{}, err
	}
	if err := s.putGob(batch, key(prefixNode, id), nodeRecord{ID: id}); err != nil {
		return ledger.Node{}, err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return ledger.Node{}, fmt.Errorf("kvstore: CreateNode commit: %w", err)
	}
	return ledger.Node{ID: ledger.NodeID(id)}, nil
}

func (s *Store) DeleteNode(ctx context.Context, n ledger.NodeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()

	cls, err := s.iterCreditLinesOfLocked(n)
	if err != nil {
		return err
	}
	seen := map[uint64]bool{}
	for _, cl := range cls {
		if err := batch.Delete(key(prefixCreditLine, uint64(cl.ID)), nil); err != nil {
			return err
		}
		if err := batch.Delete(key(idxCLNode, uint64(n), uint64(cl.ID)), nil); err != nil {
			return err
		}
		if seen[uint64(cl.Account)] {
			continue
		}
		seen[uint64(cl.Account)] = true
		var acct accountRecord
		if err := s.getGob(key(prefixAccount, uint64(cl.Account)), &acct); err != nil {
			continue
		}
		if err := batch.Delete(key(prefixAccount, acct.ID), nil); err != nil {
			return err
		}
		if err := batch.Delete(pairKey(acct.NodePos, acct.NodeNeg), nil); err != nil {
			return err
		}
	}
	if err := batch.Delete(key(prefixNode, uint64(n)), nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

func (s *Store) CreateAccount(ctx context.Context, n1, n2 ledger.NodeID) (ledger.CreditLinePair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()

	pair, err := s.createAccountBatch(batch, n1, n2)
	if err != nil {
		return ledger.CreditLinePair{}, err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return ledger.CreditLinePair{}, fmt.Errorf("kvstore: CreateAccount commit: %w", err)
	}
	return pair, nil
}

func (s *Store) createAccountBatch(batch *pebble.Batch, n1, n2 ledger.NodeID) (ledger.CreditLinePair, error) {
	now := time.Now()
	acctID, err := s.nextID(batch, "account")
	if err != nil {
		return ledger.CreditLinePair{}, err
	}
	acct := accountRecord{ID: acctID, NodePos: uint64(n1), NodeNeg: uint64(n2), Balance: amount.Zero.String(), Active: true, CreatedAt: now}
	if err := s.putGob(batch, key(prefixAccount, acctID), acct); err != nil {
		return ledger.CreditLinePair{}, err
	}
	if err := batch.Set(pairKey(uint64(n1), uint64(n2)), key("", acctID), nil); err != nil {
		return ledger.CreditLinePair{}, err
	}

	mk := func(node ledger.NodeID, mult ledger.BalMult) (ledger.CreditLine, error) {
		clID, err := s.nextID(batch, "creditline")
		if err != nil {
			return ledger.CreditLine{}, err
		}
		rec := creditLineRecord{ID: clID, Account: acctID, Node: uint64(node), BalMult: int8(mult)}
		if err := s.putGob(batch, key(prefixCreditLine, clID), rec); err != nil {
			return ledger.CreditLine{}, err
		}
		if err := batch.Set(key(idxCLNode, uint64(node), clID), []byte{}, nil); err != nil {
			return ledger.CreditLine{}, err
		}
		return ledger.CreditLine{ID: ledger.CreditLineID(clID), Account: ledger.AccountID(acctID), Node: node, BalMult: mult, Limit: amount.Inf}, nil
	}

	pos, err := mk(n1, ledger.BalMultPos)
	if err != nil {
		return ledger.CreditLinePair{}, err
	}
	neg, err := mk(n2, ledger.BalMultNeg)
	if err != nil {
		return ledger.CreditLinePair{}, err
	}

	return ledger.CreditLinePair{
		Account: ledger.Account{ID: ledger.AccountID(acctID), NodePos: n1, NodeNeg: n2, Balance: amount.Zero, Active: true, CreatedAt: now},
		Pos:     pos,
		Neg:     neg,
	}, nil
}

func (s *Store) GetAccount(ctx context.Context, a, b ledger.NodeID) (ledger.CreditLinePair, error) {
	idBytes, closer, err := s.db.Get(pairKey(uint64(a), uint64(b)))
	if err == pebble.ErrNotFound {
		return ledger.CreditLinePair{}, ledger.ErrAccountNotFound
	}
	if err != nil {
		return ledger.CreditLinePair{}, fmt.Errorf("kvstore: GetAccount: %w", err)
	}
	acctID := binary.BigEndian.Uint64(idBytes)
	closer.Close()

	var rec accountRecord
	if err := s.getGob(key(prefixAccount, acctID), &rec); err != nil {
		return ledger.CreditLinePair{}, fmt.Errorf("kvstore: GetAccount: %w", err)
	}
	acct, err := rec.toAccount()
	if err != nil {
		return ledger.CreditLinePair{}, err
	}

	pos, neg, err := s.creditLinesOfAccount(acctID)
	if err != nil {
		return ledger.CreditLinePair{}, err
	}
	return ledger.CreditLinePair{Account: acct, Pos: pos, Neg: neg}, nil
}

func (r accountRecord) toAccount() (ledger.Account, error) {
	bal, err := amount.Parse(r.Balance)
	if err != nil {
		return ledger.Account{}, fmt.Errorf("kvstore: corrupt balance for account %d: %w", r.ID, err)
	}
	return ledger.Account{ID: ledger.AccountID(r.ID), NodePos: ledger.NodeID(r.NodePos), NodeNeg: ledger.NodeID(r.NodeNeg), Balance: bal, Active: r.Active, CreatedAt: r.CreatedAt}, nil
}

func (r creditLineRecord) toCreditLine() (ledger.CreditLine, error) {
	cl := ledger.CreditLine{ID: ledger.CreditLineID(r.ID), Account: ledger.AccountID(r.Account), Node: ledger.NodeID(r.Node), BalMult: ledger.BalMult(r.BalMult), HasLimit: r.HasLimit}
	if r.HasLimit && r.Limit != "" {
		lim, err := amount.Parse(r.Limit)
		if err != nil {
			return ledger.CreditLine{}, fmt.Errorf("kvstore: corrupt limit for creditline %d: %w", r.ID, err)
		}
		cl.Limit = lim
	} else {
		cl.Limit = amount.Inf
	}
	return cl, nil
}

func (s *Store) creditLinesOfAccount(acctID uint64) (pos, neg ledger.CreditLine, err error) {
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: key(idxCLNode), UpperBound: upperBound(key(idxCLNode))})
	if err != nil {
		return pos, neg, fmt.Errorf("kvstore: creditLinesOfAccount: %w", err)
	}
	defer it.Close()
	for it.First(); it.Valid(); it.Next() {
		clID := binary.BigEndian.Uint64(it.Key()[len(it.Key())-8:])
		var rec creditLineRecord
		if err := s.getGob(key(prefixCreditLine, clID), &rec); err != nil {
			continue
		}
		if rec.Account != acctID {
			continue
		}
		cl, err := rec.toCreditLine()
		if err != nil {
			return ledger.CreditLine{}, ledger.CreditLine{}, err
		}
		if cl.BalMult == ledger.BalMultPos {
			pos = cl
		} else {
			neg = cl
		}
	}
	return pos, neg, it.Error()
}

func upperBound(prefix []byte) []byte {
	out := make([]byte, len(prefix))
	copy(out, prefix)
	for i := len(out) - 1; i >= 0; i-- {
		out[i]++
		if out[i] != 0 {
			return out
		}
	}
	return nil // prefix was all 0xff; unbounded
}

func (s *Store) GetOrCreateAccount(ctx context.Context, n1, n2 ledger.NodeID) (ledger.CreditLinePair, error) {
	pair, err := s.GetAccount(ctx, n1, n2)
	if err == nil {
		return pair, nil
	}
	if err != ledger.ErrAccountNotFound {
		return ledger.CreditLinePair{}, err
	}
	return s.CreateAccount(ctx, n1, n2)
}

func (s *Store) SetCreditLimit(ctx context.Context, endorser, recipient ledger.NodeID, weight amount.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()

	pair, err := s.GetAccount(ctx, endorser, recipient)
	if err == ledger.ErrAccountNotFound {
		pair, err = s.createAccountBatch(batch, endorser, recipient)
	}
	if err != nil {
		return err
	}

	var target ledger.CreditLine
	if pair.Pos.Node == recipient {
		target = pair.Pos
	} else {
		target = pair.Neg
	}

	signedBalance := target.SignedBalance(pair.Account)
	if !weight.IsInf() && signedBalance.LessThan(weight.Neg()) {
		return ledger.ErrLimitBelowBalance
	}

	rec := creditLineRecord{ID: uint64(target.ID), Account: uint64(target.Account), Node: uint64(target.Node), BalMult: int8(target.BalMult), HasLimit: true}
	if !weight.IsInf() {
		rec.Limit = weight.String()
	}
	if err := s.putGob(batch, key(prefixCreditLine, uint64(target.ID)), rec); err != nil {
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("kvstore: SetCreditLimit commit: %w", err)
	}
	return nil
}

func (s *Store) IterCreditLinesOf(ctx context.Context, node ledger.NodeID) ([]ledger.CreditLine, error) {
	return s.iterCreditLinesOfLocked(node)
}

func (s *Store) iterCreditLinesOfLocked(node ledger.NodeID) ([]ledger.CreditLine, error) {
	prefix := key(idxCLNode, uint64(node))
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
	if err != nil {
		return nil, fmt.Errorf("kvstore: IterCreditLinesOf: %w", err)
	}
	defer it.Close()

	var out []ledger.CreditLine
	for it.First(); it.Valid(); it.Next() {
		clID := binary.BigEndian.Uint64(it.Key()[len(it.Key())-8:])
		var rec creditLineRecord
		if err := s.getGob(key(prefixCreditLine, clID), &rec); err != nil {
			continue
		}
		cl, err := rec.toCreditLine()
		if err != nil {
			return nil, err
		}
		out = append(out, cl)
	}
	return out, it.Error()
}

func (s *Store) IterAllCreditLines(ctx context.Context) ([]ledger.CreditLine, error) {
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: key(prefixCreditLine), UpperBound: upperBound(key(prefixCreditLine))})
	if err != nil {
		return nil, fmt.Errorf("kvstore: IterAllCreditLines: %w", err)
	}
	defer it.Close()

	var out []ledger.CreditLine
	for it.First(); it.Valid(); it.Next() {
		var rec creditLineRecord
		plain, err := s.comp.decompress(it.Value())
		if err != nil {
			return nil, err
		}
		if err := gob.NewDecoder(bytes.NewReader(plain)).Decode(&rec); err != nil {
			return nil, fmt.Errorf("kvstore: IterAllCreditLines decode: %w", err)
		}
		cl, err := rec.toCreditLine()
		if err != nil {
			return nil, err
		}
		out = append(out, cl)
	}
	return out, it.Error()
}

func (s *Store) GetPayment(ctx context.Context, id ledger.PaymentID) (ledger.Payment, error) {
	var rec paymentRecord
	if err := s.getGob(key(prefixPayment, uint64(id)), &rec); err != nil {
		if err == pebble.ErrNotFound {
			return ledger.Payment{}, ledger.ErrPaymentNotFound
		}
		return ledger.Payment{}, err
	}
	return rec.toPayment()
}

func (r paymentRecord) toPayment() (ledger.Payment, error) {
	amt, err := amount.Parse(r.Amount)
	if err != nil {
		return ledger.Payment{}, fmt.Errorf("kvstore: corrupt payment amount for payment %d: %w", r.ID, err)
	}
	return ledger.Payment{
		ID: ledger.PaymentID(r.ID), Payer: ledger.NodeID(r.Payer), Recipient: ledger.NodeID(r.Recipient),
		Amount: amt, Memo: r.Memo, SubmittedAt: r.SubmittedAt, LastAttemptedAt: r.LastAttemptedAt,
		Status: ledger.PaymentStatus(r.Status),
	}, nil
}

func (s *Store) CreatePayment(ctx context.Context, p ledger.Payment) (ledger.PaymentID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()

	id, err := s.nextID(batch, "payment")
	if err != nil {
		return 0, err
	}
	status := p.Status
	if status == "" {
		status = ledger.PaymentPending
	}
	rec := paymentRecord{ID: id, Payer: uint64(p.Payer), Recipient: uint64(p.Recipient), Amount: p.Amount.String(), Memo: p.Memo, SubmittedAt: p.SubmittedAt, Status: string(status)}
	if err := s.putGob(batch, key(prefixPayment, id), rec); err != nil {
		return 0, err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("kvstore: CreatePayment commit: %w", err)
	}
	return ledger.PaymentID(id), nil
}

func (s *Store) MarkPaymentAttempted(ctx context.Context, id ledger.PaymentID, status ledger.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec paymentRecord
	if err := s.getGob(key(prefixPayment, uint64(id)), &rec); err != nil {
		if err == pebble.ErrNotFound {
			return ledger.ErrPaymentNotFound
		}
		return err
	}
	rec.LastAttemptedAt = time.Now()
	rec.Status = string(status)

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := s.putGob(batch, key(prefixPayment, uint64(id)), rec); err != nil {
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("kvstore: MarkPaymentAttempted commit: %w", err)
	}
	return nil
}

func (s *Store) CommitPayment(ctx context.Context, payment ledger.PaymentID, edgeFlows []ledger.EdgeFlow) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	// running holds each touched account's balance as of the edgeFlows
	// already folded into it this commit, since a single payment can
	// carry two edgeFlows against the same account (its cl_pos and
	// cl_neg are distinct creditlines mapping to one Account) and the
	// second must see the first's effect rather than re-reading the
	// pre-commit record.
	type pending struct {
		acct   accountRecord
		delta  amount.Amount
		newBal amount.Amount
	}
	var plans []pending
	running := make(map[uint64]accountRecord)

	for _, ef := range edgeFlows {
		var cl creditLineRecord
		if err := s.getGob(key(prefixCreditLine, uint64(ef.CreditLine)), &cl); err != nil {
			if err == pebble.ErrNotFound {
				return ledger.ErrCreditLineNotFound
			}
			return err
		}
		acct, ok := running[cl.Account]
		if !ok {
			if err := s.getGob(key(prefixAccount, cl.Account), &acct); err != nil {
				return err
			}
		}
		partner, err := s.partnerCreditLine(cl)
		if err != nil {
			return err
		}

		bal, err := amount.Parse(acct.Balance)
		if err != nil {
			return fmt.Errorf("kvstore: corrupt balance for account %d: %w", acct.ID, err)
		}
		delta := ef.Amount.Neg().MulInt(int64(cl.BalMult))
		newBal := bal.Add(delta)

		if cl.HasLimit && cl.Limit != "" {
			lim, err := amount.Parse(cl.Limit)
			if err != nil {
				return err
			}
			if newBal.MulInt(int64(cl.BalMult)).LessThan(lim.Neg()) {
				return ledger.ErrLimitCollision
			}
		}
		if partner.HasLimit && partner.Limit != "" {
			lim, err := amount.Parse(partner.Limit)
			if err != nil {
				return err
			}
			if newBal.MulInt(int64(cl.BalMult)).GreaterThan(lim) {
				return ledger.ErrLimitCollision
			}
		}

		acct.Balance = newBal.String()
		running[cl.Account] = acct
		plans = append(plans, pending{acct: acct, delta: delta, newBal: newBal})
	}

	now := time.Now()
	for _, pl := range plans {
		if err := s.putGob(batch, key(prefixAccount, pl.acct.ID), pl.acct); err != nil {
			return err
		}
		entryID, err := s.nextID(batch, "entry")
		if err != nil {
			return err
		}
		erec := entryRecord{ID: entryID, Payment: uint64(payment), Account: pl.acct.ID, Amount: pl.delta.String(), NewBalance: pl.newBal.String(), Date: now}
		if err := s.putGob(batch, key(prefixEntry, entryID), erec); err != nil {
			return err
		}
		if err := batch.Set(key(idxEntryAcct, pl.acct.ID, entryID), []byte{}, nil); err != nil {
			return err
		}
		if err := batch.Set(key(idxEntryPay, uint64(payment), entryID), []byte{}, nil); err != nil {
			return err
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("kvstore: CommitPayment commit: %w", err)
	}
	return nil
}

func (s *Store) partnerCreditLine(cl creditLineRecord) (creditLineRecord, error) {
	pos, neg, err := s.creditLinesOfAccount(cl.Account)
	if err != nil {
		return creditLineRecord{}, err
	}
	var partnerID uint64
	if ledger.BalMult(cl.BalMult) == ledger.BalMultPos {
		partnerID = uint64(neg.ID)
	} else {
		partnerID = uint64(pos.ID)
	}
	var rec creditLineRecord
	if err := s.getGob(key(prefixCreditLine, partnerID), &rec); err != nil {
		return creditLineRecord{}, err
	}
	return rec, nil
}

func (s *Store) CommitDirectEntry(ctx context.Context, payment ledger.PaymentID, payer, recipient ledger.NodeID, amt amount.Amount) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	pair, err := s.GetAccount(ctx, payer, recipient)
	if err == ledger.ErrAccountNotFound {
		pair, err = s.createAccountBatch(batch, payer, recipient)
	}
	if err != nil {
		return err
	}

	var payerCL ledger.CreditLine
	if pair.Pos.Node == payer {
		payerCL = pair.Pos
	} else {
		payerCL = pair.Neg
	}

	delta := amt.Neg().MulInt(int64(payerCL.BalMult))
	newBal := pair.Account.Balance.Add(delta)
	now := time.Now()

	acctRec := accountRecord{ID: uint64(pair.Account.ID), NodePos: uint64(pair.Account.NodePos), NodeNeg: uint64(pair.Account.NodeNeg), Balance: newBal.String(), Active: pair.Account.Active, CreatedAt: pair.Account.CreatedAt}
	if err := s.putGob(batch, key(prefixAccount, uint64(pair.Account.ID)), acctRec); err != nil {
		return err
	}
	entryID, err := s.nextID(batch, "entry")
	if err != nil {
		return err
	}
	erec := entryRecord{ID: entryID, Payment: uint64(payment), Account: uint64(pair.Account.ID), Amount: delta.String(), NewBalance: newBal.String(), Date: now}
	if err := s.putGob(batch, key(prefixEntry, entryID), erec); err != nil {
		return err
	}
	if err := batch.Set(key(idxEntryAcct, uint64(pair.Account.ID), entryID), []byte{}, nil); err != nil {
		return err
	}
	if err := batch.Set(key(idxEntryPay, uint64(payment), entryID), []byte{}, nil); err != nil {
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("kvstore: CommitDirectEntry commit: %w", err)
	}
	return nil
}

func (s *Store) IterEntriesOf(ctx context.Context, a, b ledger.NodeID) ([]ledger.Entry, error) {
	pair, err := s.GetAccount(ctx, a, b)
	if err == ledger.ErrAccountNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.entriesByIndex(key(idxEntryAcct, uint64(pair.Account.ID)))
}

func (s *Store) IterEntriesOfPayment(ctx context.Context, id ledger.PaymentID) ([]ledger.Entry, error) {
	return s.entriesByIndex(key(idxEntryPay, uint64(id)))
}

func (s *Store) entriesByIndex(prefix []byte) ([]ledger.Entry, error) {
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
	if err != nil {
		return nil, fmt.Errorf("kvstore: entriesByIndex: %w", err)
	}
	defer it.Close()

	var out []ledger.Entry
	for it.First(); it.Valid(); it.Next() {
		entryID := binary.BigEndian.Uint64(it.Key()[len(it.Key())-8:])
		var rec entryRecord
		if err := s.getGob(key(prefixEntry, entryID), &rec); err != nil {
			continue
		}
		e, err := rec.toEntry()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	// newest first, matching the SQL backends' ORDER BY date DESC
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, it.Error()
}

func (r entryRecord) toEntry() (ledger.Entry, error) {
	amt, err := amount.Parse(r.Amount)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("kvstore: corrupt entry amount for entry %d: %w", r.ID, err)
	}
	newBal, err := amount.Parse(r.NewBalance)
	if err != nil {
		return ledger.Entry{}, err
	}
	return ledger.Entry{ID: ledger.EntryID(r.ID), Payment: ledger.PaymentID(r.Payment), Account: ledger.AccountID(r.Account), Amount: amt, NewBalance: newBal, Date: r.Date}, nil
}

func (s *Store) IterAllAccounts(ctx context.Context) ([]ledger.Account, error) {
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: key(prefixAccount), UpperBound: upperBound(key(prefixAccount))})
	if err != nil {
		return nil, fmt.Errorf("kvstore: IterAllAccounts: %w", err)
	}
	defer it.Close()

	var out []ledger.Account
	for it.First(); it.Valid(); it.Next() {
		var rec accountRecord
		plain, err := s.comp.decompress(it.Value())
		if err != nil {
			return nil, err
		}
		if err := gob.NewDecoder(bytes.NewReader(plain)).Decode(&rec); err != nil {
			return nil, fmt.Errorf("kvstore: IterAllAccounts decode: %w", err)
		}
		acct, err := rec.toAccount()
		if err != nil {
			return nil, err
		}
		out = append(out, acct)
	}
	return out, it.Error()
}

func (s *Store) IterCompletedPayments(ctx context.Context) ([]ledger.Payment, error) {
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: key(prefixPayment), UpperBound: upperBound(key(prefixPayment))})
	if err != nil {
		return nil, fmt.Errorf("kvstore: IterCompletedPayments: %w", err)
	}
	defer it.Close()

	var out []ledger.Payment
	for it.First(); it.Valid(); it.Next() {
		var rec paymentRecord
		plain, err := s.comp.decompress(it.Value())
		if err != nil {
			return nil, err
		}
		if err := gob.NewDecoder(bytes.NewReader(plain)).Decode(&rec); err != nil {
			return nil, fmt.Errorf("kvstore: IterCompletedPayments decode: %w", err)
		}
		if ledger.PaymentStatus(rec.Status) != ledger.PaymentCompleted {
			continue
		}
		p, err := rec.toPayment()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, it.Error()
}

// WithWriter serializes writers in-process (spec.md §5); pebble itself
// allows concurrent batch commits, but CommitPayment's read-then-write
// plan needs serialization against other mutators to preserve I3.
func (s *Store) WithWriter(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx)
}
