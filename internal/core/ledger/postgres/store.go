// Package postgres implements ledger.Store against a PostgreSQL database
// using database/sql and lib/pq, following the table layout of spec.md
// §6. A single in-process mutex provides the writer-serialization
// contract of spec.md §5 ("the engine assumes a single authoritative
// store"); it does not attempt cross-process distributed locking.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/mutualcredit/ledgerd/internal/core/amount"
	"github.com/mutualcredit/ledgerd/internal/core/ledger"
	"github.com/mutualcredit/ledgerd/internal/storage/relationaldb"
)

// Store is a PostgreSQL-backed ledger.Store.
type Store struct {
	db *sql.DB
	wg sync.Mutex
}

// Open connects to dsn, runs the schema migration, and returns a ready
// Store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, relationaldb.WrapError(err, "postgres.Open")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, relationaldb.NewConnectionError("postgres.Open", "ping failed", err)
	}

	pool := relationaldb.PostgresConfig()
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, relationaldb.NewSchemaError("postgres.Open", "migrate", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) CreateNode(ctx context.Context) (ledger.Node, error) {
	var id ledger.NodeID
	err := s.db.QueryRowContext(ctx, `INSERT INTO node DEFAULT VALUES RETURNING id`).Scan(&id)
	if err != nil {
		return ledger.Node{}, relationaldb.WrapError(err, "CreateNode")
	}
	return ledger.Node{ID: id}, nil
}

func (s *Store) DeleteNode(ctx context.Context, n ledger.NodeID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return relationaldb.WrapError(err, "DeleteNode")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM creditline WHERE node_id = $1`, n); err != nil {
		return relationaldb.WrapError(err, "DeleteNode:creditline")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM account WHERE node_pos = $1 OR node_neg = $1`, n); err != nil {
		return relationaldb.WrapError(err, "DeleteNode:account")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM node WHERE id = $1`, n); err != nil {
		return relationaldb.WrapError(err, "DeleteNode:node")
	}
	return tx.Commit()
}

func (s *Store) CreateAccount(ctx context.Context, n1, n2 ledger.NodeID) (ledger.CreditLinePair, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.CreditLinePair{}, relationaldb.WrapError(err, "CreateAccount")
	}
	defer tx.Rollback()

	pair, err := createAccountTx(ctx, tx, n1, n2)
	if err != nil {
		return ledger.CreditLinePair{}, err
	}
	if err := tx.Commit(); err != nil {
		return ledger.CreditLinePair{}, relationaldb.WrapError(err, "CreateAccount:commit")
	}
	return pair, nil
}

func createAccountTx(ctx context.Context, tx *sql.Tx, n1, n2 ledger.NodeID) (ledger.CreditLinePair, error) {
	var acctID ledger.AccountID
	now := time.Now()
	err := tx.QueryRowContext(ctx, `
		INSERT INTO account (node_pos, node_neg, balance, active, created_at)
		VALUES ($1, $2, $3, TRUE, $4) RETURNING id`,
		n1, n2, amount.Zero.String(), now).Scan(&acctID)
	if err != nil {
		return ledger.CreditLinePair{}, relationaldb.WrapError(err, "createAccountTx:account")
	}

	pos := ledger.CreditLine{Account: acctID, Node: n1, BalMult: ledger.BalMultPos, Limit: amount.Inf, HasLimit: false}
	neg := ledger.CreditLine{Account: acctID, Node: n2, BalMult: ledger.BalMultNeg, Limit: amount.Inf, HasLimit: false}
	for _, cl := range []*ledger.CreditLine{&pos, &neg} {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO creditline (account_id, node_id, bal_mult, limit_amount, has_limit)
			VALUES ($1, $2, $3, NULL, FALSE) RETURNING id`,
			cl.Account, cl.Node, int16(cl.BalMult)).Scan(&cl.ID)
		if err != nil {
			return ledger.CreditLinePair{}, relationaldb.WrapError(err, "createAccountTx:creditline")
		}
	}

	return ledger.CreditLinePair{
		Account: ledger.Account{ID: acctID, NodePos: n1, NodeNeg: n2, Balance: amount.Zero, Active: true, CreatedAt: now},
		Pos:     pos,
		Neg:     neg,
	}, nil
}

func (s *Store) GetAccount(ctx context.Context, a, b ledger.NodeID) (ledger.CreditLinePair, error) {
	return getAccount(ctx, s.db, a, b)
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func getAccount(ctx context.Context, q queryer, a, b ledger.NodeID) (ledger.CreditLinePair, error) {
	var acct ledger.Account
	var balStr string
	err := q.QueryRowContext(ctx, `
		SELECT id, node_pos, node_neg, balance, active, created_at
		FROM account WHERE (node_pos = $1 AND node_neg = $2) OR (node_pos = $2 AND node_neg = $1)`,
		a, b).Scan(&acct.ID, &acct.NodePos, &acct.NodeNeg, &balStr, &acct.Active, &acct.CreatedAt)
	if err == sql.ErrNoRows {
		return ledger.CreditLinePair{}, ledger.ErrAccountNotFound
	}
	if err != nil {
		return ledger.CreditLinePair{}, relationaldb.WrapError(err, "getAccount")
	}
	acct.Balance, err = amount.Parse(balStr)
	if err != nil {
		return ledger.CreditLinePair{}, fmt.Errorf("postgres: corrupt balance for account %d: %w", acct.ID, err)
	}

	pos, neg, err := creditLinesOf(ctx, q, acct.ID)
	if err != nil {
		return ledger.CreditLinePair{}, err
	}
	return ledger.CreditLinePair{Account: acct, Pos: pos, Neg: neg}, nil
}

func creditLinesOf(ctx context.Context, q queryer, acctID ledger.AccountID) (pos, neg ledger.CreditLine, err error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, account_id, node_id, bal_mult, limit_amount, has_limit
		FROM creditline WHERE account_id = $1`, acctID)
	if err != nil {
		return pos, neg, relationaldb.WrapError(err, "creditLinesOf")
	}
	defer rows.Close()

	for rows.Next() {
		var cl ledger.CreditLine
		var balMult int16
		var limitStr sql.NullString
		if err := rows.Scan(&cl.ID, &cl.Account, &cl.Node, &balMult, &limitStr, &cl.HasLimit); err != nil {
			return pos, neg, relationaldb.WrapError(err, "creditLinesOf:scan")
		}
		cl.BalMult = ledger.BalMult(balMult)
		if limitStr.Valid {
			cl.Limit, err = amount.Parse(limitStr.String)
			if err != nil {
				return pos, neg, fmt.Errorf("postgres: corrupt limit for creditline %d: %w", cl.ID, err)
			}
		} else {
			cl.Limit = amount.Inf
		}
		if cl.BalMult == ledger.BalMultPos {
			pos = cl
		} else {
			neg = cl
		}
	}
	return pos, neg, rows.Err()
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
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return relationaldb.WrapError(err, "SetCreditLimit")
	}
	defer tx.Rollback()

	pair, err := getAccount(ctx, tx, endorser, recipient)
	if err == ledger.ErrAccountNotFound {
		pair, err = createAccountTx(ctx, tx, endorser, recipient)
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

	var limitStr sql.NullString
	if !weight.IsInf() {
		limitStr = sql.NullString{String: weight.String(), Valid: true}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE creditline SET limit_amount = $1, has_limit = TRUE WHERE id = $2`,
		limitStr, target.ID); err != nil {
		return relationaldb.WrapError(err, "SetCreditLimit:update")
	}
	return tx.Commit()
}

func (s *Store) IterCreditLinesOf(ctx context.Context, node ledger.NodeID) ([]ledger.CreditLine, error) {
	return queryCreditLines(ctx, s.db, `WHERE node_id = $1 ORDER BY id`, node)
}

func (s *Store) IterAllCreditLines(ctx context.Context) ([]ledger.CreditLine, error) {
	return queryCreditLines(ctx, s.db, `ORDER BY id`)
}

func queryCreditLines(ctx context.Context, q queryer, whereOrderBy string, args ...any) ([]ledger.CreditLine, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, account_id, node_id, bal_mult, limit_amount, has_limit FROM creditline `+whereOrderBy, args...)
	if err != nil {
		return nil, relationaldb.WrapError(err, "queryCreditLines")
	}
	defer rows.Close()

	var out []ledger.CreditLine
	for rows.Next() {
		var cl ledger.CreditLine
		var balMult int16
		var limitStr sql.NullString
		if err := rows.Scan(&cl.ID, &cl.Account, &cl.Node, &balMult, &limitStr, &cl.HasLimit); err != nil {
			return nil, relationaldb.WrapError(err, "queryCreditLines:scan")
		}
		cl.BalMult = ledger.BalMult(balMult)
		if limitStr.Valid {
			cl.Limit, err = amount.Parse(limitStr.String)
			if err != nil {
				return nil, fmt.Errorf("postgres: corrupt limit for creditline %d: %w", cl.ID, err)
			}
		} else {
			cl.Limit = amount.Inf
		}
		out = append(out, cl)
	}
	return out, rows.Err()
}

func (s *Store) GetPayment(ctx context.Context, id ledger.PaymentID) (ledger.Payment, error) {
	p, err := scanPayment(s.db.QueryRowContext(ctx, `
		SELECT id, payer_node_id, recipient_node_id, amount, memo, submitted_at, last_attempted_at, status
		FROM payment WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return ledger.Payment{}, ledger.ErrPaymentNotFound
	}
	if err != nil {
		return ledger.Payment{}, relationaldb.WrapError(err, "GetPayment")
	}
	return p, nil
}

func scanPayment(row *sql.Row) (ledger.Payment, error) {
	var p ledger.Payment
	var amtStr string
	var lastAttempted sql.NullTime
	if err := row.Scan(&p.ID, &p.Payer, &p.Recipient, &amtStr, &p.Memo, &p.SubmittedAt, &lastAttempted, &p.Status); err != nil {
		return ledger.Payment{}, err
	}
	var err error
	p.Amount, err = amount.Parse(amtStr)
	if err != nil {
		return ledger.Payment{}, fmt.Errorf("postgres: corrupt payment amount for payment %d: %w", p.ID, err)
	}
	if lastAttempted.Valid {
		p.LastAttemptedAt = lastAttempted.Time
	}
	return p, nil
}

func (s *Store) CreatePayment(ctx context.Context, p ledger.Payment) (ledger.PaymentID, error) {
	if p.Status == "" {
		p.Status = ledger.PaymentPending
	}
	var id ledger.PaymentID
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO payment (payer_node_id, recipient_node_id, amount, memo, submitted_at, status)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		p.Payer, p.Recipient, p.Amount.String(), p.Memo, p.SubmittedAt, p.Status).Scan(&id)
	if err != nil {
		return 0, relationaldb.WrapError(err, "CreatePayment")
	}
	return id, nil
}

func (s *Store) MarkPaymentAttempted(ctx context.Context, id ledger.PaymentID, status ledger.PaymentStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE payment SET last_attempted_at = $1, status = $2 WHERE id = $3`,
		time.Now(), status, id)
	if err != nil {
		return relationaldb.WrapError(err, "MarkPaymentAttempted")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return relationaldb.WrapError(err, "MarkPaymentAttempted:rows")
	}
	if n == 0 {
		return ledger.ErrPaymentNotFound
	}
	return nil
}

// CommitPayment must run inside WithWriter. It re-validates every
// EdgeFlow's limit bound inside the same transaction as the posting, so
// a concurrent SetCreditLimit observed between route solving and commit
// surfaces as ErrLimitCollision rather than silently violating I3
// (spec.md §4.E step 7, §7).
func (s *Store) CommitPayment(ctx context.Context, payment ledger.PaymentID, edgeFlows []ledger.EdgeFlow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return relationaldb.WrapError(err, "CommitPayment")
	}
	defer tx.Rollback()

	// running holds each touched account's balance as of the edgeFlows
	// already folded into it this commit, since a single payment can
	// carry two edgeFlows against the same account (its cl_pos and
	// cl_neg are distinct creditlines mapping to one Account) and the
	// second must see the first's effect rather than re-reading the
	// pre-commit row.
	type pending struct {
		acct   ledger.Account
		delta  amount.Amount
		newBal amount.Amount
	}
	plans := make([]pending, 0, len(edgeFlows))
	running := make(map[ledger.AccountID]ledger.Account)

	for _, ef := range edgeFlows {
		cl, err := getCreditLine(ctx, tx, ef.CreditLine)
		if err != nil {
			return err
		}
		acct, ok := running[cl.Account]
		if !ok {
			acct, err = getAccountByID(ctx, tx, cl.Account)
			if err != nil {
				return err
			}
		}
		partner, err := partnerCreditLine(ctx, tx, cl)
		if err != nil {
			return err
		}

		delta := ef.Amount.Neg().MulInt(int64(cl.BalMult))
		newBal := acct.Balance.Add(delta)

		if cl.HasLimit && !cl.Limit.IsInf() {
			signed := newBal.MulInt(int64(cl.BalMult))
			if signed.LessThan(cl.Limit.Neg()) {
				return ledger.ErrLimitCollision
			}
		}
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

	now := time.Now()
	for _, pl := range plans {
		if _, err := tx.ExecContext(ctx, `UPDATE account SET balance = $1 WHERE id = $2`, pl.newBal.String(), pl.acct.ID); err != nil {
			return relationaldb.WrapError(err, "CommitPayment:update")
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO entry (account_id, payment_id, amount, new_balance, date)
			VALUES ($1, $2, $3, $4, $5)`,
			pl.acct.ID, payment, pl.delta.String(), pl.newBal.String(), now); err != nil {
			return relationaldb.WrapError(err, "CommitPayment:entry")
		}
	}
	return tx.Commit()
}

func (s *Store) CommitDirectEntry(ctx context.Context, payment ledger.PaymentID, payer, recipient ledger.NodeID, amt amount.Amount) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return relationaldb.WrapError(err, "CommitDirectEntry")
	}
	defer tx.Rollback()

	pair, err := getAccount(ctx, tx, payer, recipient)
	if err == ledger.ErrAccountNotFound {
		pair, err = createAccountTx(ctx, tx, payer, recipient)
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

	if _, err := tx.ExecContext(ctx, `UPDATE account SET balance = $1 WHERE id = $2`, newBal.String(), pair.Account.ID); err != nil {
		return relationaldb.WrapError(err, "CommitDirectEntry:update")
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO entry (account_id, payment_id, amount, new_balance, date)
		VALUES ($1, $2, $3, $4, $5)`,
		pair.Account.ID, payment, delta.String(), newBal.String(), now); err != nil {
		return relationaldb.WrapError(err, "CommitDirectEntry:entry")
	}
	return tx.Commit()
}

func getCreditLine(ctx context.Context, q queryer, id ledger.CreditLineID) (ledger.CreditLine, error) {
	var cl ledger.CreditLine
	var balMult int16
	var limitStr sql.NullString
	err := q.QueryRowContext(ctx, `
		SELECT id, account_id, node_id, bal_mult, limit_amount, has_limit FROM creditline WHERE id = $1`, id).
		Scan(&cl.ID, &cl.Account, &cl.Node, &balMult, &limitStr, &cl.HasLimit)
	if err == sql.ErrNoRows {
		return ledger.CreditLine{}, ledger.ErrCreditLineNotFound
	}
	if err != nil {
		return ledger.CreditLine{}, relationaldb.WrapError(err, "getCreditLine")
	}
	cl.BalMult = ledger.BalMult(balMult)
	if limitStr.Valid {
		cl.Limit, err = amount.Parse(limitStr.String)
		if err != nil {
			return ledger.CreditLine{}, err
		}
	} else {
		cl.Limit = amount.Inf
	}
	return cl, nil
}

func partnerCreditLine(ctx context.Context, q queryer, cl ledger.CreditLine) (ledger.CreditLine, error) {
	var out ledger.CreditLine
	var balMult int16
	var limitStr sql.NullString
	err := q.QueryRowContext(ctx, `
		SELECT id, account_id, node_id, bal_mult, limit_amount, has_limit
		FROM creditline WHERE account_id = $1 AND id != $2`, cl.Account, cl.ID).
		Scan(&out.ID, &out.Account, &out.Node, &balMult, &limitStr, &out.HasLimit)
	if err != nil {
		return ledger.CreditLine{}, relationaldb.WrapError(err, "partnerCreditLine")
	}
	out.BalMult = ledger.BalMult(balMult)
	if limitStr.Valid {
		out.Limit, err = amount.Parse(limitStr.String)
		if err != nil {
			return ledger.CreditLine{}, err
		}
	} else {
		out.Limit = amount.Inf
	}
	return out, nil
}

func getAccountByID(ctx context.Context, q queryer, id ledger.AccountID) (ledger.Account, error) {
	var acct ledger.Account
	var balStr string
	err := q.QueryRowContext(ctx, `
		SELECT id, node_pos, node_neg, balance, active, created_at FROM account WHERE id = $1`, id).
		Scan(&acct.ID, &acct.NodePos, &acct.NodeNeg, &balStr, &acct.Active, &acct.CreatedAt)
	if err != nil {
		return ledger.Account{}, relationaldb.WrapError(err, "getAccountByID")
	}
	acct.Balance, err = amount.Parse(balStr)
	return acct, err
}

func (s *Store) IterEntriesOf(ctx context.Context, a, b ledger.NodeID) ([]ledger.Entry, error) {
	pair, err := s.GetAccount(ctx, a, b)
	if err == ledger.ErrAccountNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, payment_id, account_id, amount, new_balance, date
		FROM entry WHERE account_id = $1 ORDER BY date DESC`, pair.Account.ID)
	if err != nil {
		return nil, relationaldb.WrapError(err, "IterEntriesOf")
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]ledger.Entry, error) {
	var out []ledger.Entry
	for rows.Next() {
		var e ledger.Entry
		var amtStr, newBalStr string
		if err := rows.Scan(&e.ID, &e.Payment, &e.Account, &amtStr, &newBalStr, &e.Date); err != nil {
			return nil, relationaldb.WrapError(err, "scanEntries")
		}
		var err error
		e.Amount, err = amount.Parse(amtStr)
		if err != nil {
			return nil, err
		}
		e.NewBalance, err = amount.Parse(newBalStr)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) IterAllAccounts(ctx context.Context) ([]ledger.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, node_pos, node_neg, balance, active, created_at FROM account ORDER BY id`)
	if err != nil {
		return nil, relationaldb.WrapError(err, "IterAllAccounts")
	}
	defer rows.Close()

	var out []ledger.Account
	for rows.Next() {
		var a ledger.Account
		var balStr string
		if err := rows.Scan(&a.ID, &a.NodePos, &a.NodeNeg, &balStr, &a.Active, &a.CreatedAt); err != nil {
			return nil, relationaldb.WrapError(err, "IterAllAccounts:scan")
		}
		a.Balance, err = amount.Parse(balStr)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) IterCompletedPayments(ctx context.Context) ([]ledger.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, payer_node_id, recipient_node_id, amount, memo, submitted_at, last_attempted_at, status
		FROM payment WHERE status = $1 ORDER BY id`, ledger.PaymentCompleted)
	if err != nil {
		return nil, relationaldb.WrapError(err, "IterCompletedPayments")
	}
	defer rows.Close()

	var out []ledger.Payment
	for rows.Next() {
		var p ledger.Payment
		var amtStr string
		var lastAttempted sql.NullTime
		if err := rows.Scan(&p.ID, &p.Payer, &p.Recipient, &amtStr, &p.Memo, &p.SubmittedAt, &lastAttempted, &p.Status); err != nil {
			return nil, relationaldb.WrapError(err, "IterCompletedPayments:scan")
		}
		p.Amount, err = amount.Parse(amtStr)
		if err != nil {
			return nil, err
		}
		if lastAttempted.Valid {
			p.LastAttemptedAt = lastAttempted.Time
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) IterEntriesOfPayment(ctx context.Context, id ledger.PaymentID) ([]ledger.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, payment_id, account_id, amount, new_balance, date
		FROM entry WHERE payment_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, relationaldb.WrapError(err, "IterEntriesOfPayment")
	}
	defer rows.Close()
	return scanEntries(rows)
}

// WithWriter serializes writers in-process (spec.md §5); it does not
// take a database-level lock since this domain assumes a single
// authoritative store process per spec.md §1's Non-goals.
func (s *Store) WithWriter(ctx context.Context, fn func(ctx context.Context) error) error {
	s.wg.Lock()
	defer s.wg.Unlock()
	return fn(ctx)
}
