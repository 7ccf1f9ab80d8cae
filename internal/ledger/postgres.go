package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger persists ledger entries in PostgreSQL ensuring double-entry balance.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// EnsureAccount guarantees an account exists for the provided code.
func (l *PostgresLedger) EnsureAccount(ctx context.Context, code string) error {
	_, err := l.db.Exec(ctx, `INSERT INTO accounts (id, code) VALUES ($1, $2)
        ON CONFLICT (code) DO NOTHING`, uuid.New(), code)
	return err
}

// Balance returns the summed balance for the specified account code.
func (l *PostgresLedger) Balance(ctx context.Context, code string) (int64, error) {
	const query = `
        SELECT a.id, COALESCE(SUM(e.amount), 0)
        FROM accounts a
        LEFT JOIN entries e ON e.account_id = a.id
        WHERE a.code = $1
        GROUP BY a.id`
	var (
		id      uuid.UUID
		balance int64
	)
	if err := l.db.QueryRow(ctx, query, code).Scan(&id, &balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: %s", ErrAccountNotFound, code)
		}
		return 0, err
	}
	return balance, nil
}

// Post records a balanced multi-leg posting. Accounts are locked in code order
// so concurrent postings over the same accounts cannot deadlock.
func (l *PostgresLedger) Post(ctx context.Context, p Posting) (PostingResult, error) {
	legs, err := netByAccount(p)
	if err != nil {
		return PostingResult{}, err
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return PostingResult{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	accountIDs := make(map[string]uuid.UUID, len(legs))
	for _, leg := range legs {
		id, err := accountIDForCode(ctx, tx, leg.AccountCode)
		if err != nil {
			return PostingResult{}, err
		}
		accountIDs[leg.AccountCode] = id
	}

	const existingTxQuery = `SELECT id, status FROM transactions WHERE client_tx_id = $1 AND kind = $2`
	var (
		existingTxID   uuid.UUID
		existingStatus string
	)
	if err := tx.QueryRow(ctx, existingTxQuery, p.Reference, p.Kind).Scan(&existingTxID, &existingStatus); err == nil {
		balances, balErr := balancesFor(ctx, tx, accountIDs)
		if balErr != nil {
			return PostingResult{}, balErr
		}
		return PostingResult{TransactionID: existingTxID.String(), Reference: p.Reference, Status: existingStatus, Balances: balances}, ErrDuplicateTransaction
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return PostingResult{}, err
	}

	for _, leg := range legs {
		if leg.Amount > 0 {
			continue
		}
		balance, err := balanceForAccount(ctx, tx, accountIDs[leg.AccountCode])
		if err != nil {
			return PostingResult{}, err
		}
		if balance+leg.Amount < 0 {
			return PostingResult{}, ErrInsufficientFunds
		}
	}

	txID := uuid.New()
	if _, err := tx.Exec(ctx, `INSERT INTO transactions (id, client_tx_id, kind, status) VALUES ($1, $2, $3, $4)`, txID, p.Reference, p.Kind, StatusCompleted); err != nil {
		return PostingResult{}, err
	}
	for _, leg := range legs {
		if _, err := tx.Exec(ctx, `INSERT INTO entries (id, transaction_id, account_id, amount) VALUES ($1, $2, $3, $4)`, uuid.New(), txID, accountIDs[leg.AccountCode], leg.Amount); err != nil {
			return PostingResult{}, err
		}
	}

	balances, err := balancesFor(ctx, tx, accountIDs)
	if err != nil {
		return PostingResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return PostingResult{}, err
	}

	return PostingResult{TransactionID: txID.String(), Reference: p.Reference, Status: StatusCompleted, Balances: balances}, nil
}

// Lookup finds a posting by kind and client reference.
func (l *PostgresLedger) Lookup(ctx context.Context, kind, reference string) (PostingResult, error) {
	const query = `SELECT id, status FROM transactions WHERE client_tx_id = $1 AND kind = $2`
	var (
		id     uuid.UUID
		status string
	)
	if err := l.db.QueryRow(ctx, query, reference, kind).Scan(&id, &status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PostingResult{}, ErrTransactionNotFound
		}
		return PostingResult{}, err
	}
	return PostingResult{TransactionID: id.String(), Reference: reference, Status: status}, nil
}

func accountIDForCode(ctx context.Context, tx pgx.Tx, code string) (uuid.UUID, error) {
	const query = `SELECT id FROM accounts WHERE code = $1 FOR UPDATE`
	var id uuid.UUID
	if err := tx.QueryRow(ctx, query, code).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("%w: %s", ErrAccountNotFound, code)
		}
		return uuid.Nil, err
	}
	return id, nil
}

func balanceForAccount(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (int64, error) {
	const query = `SELECT COALESCE(SUM(amount), 0) FROM entries WHERE account_id = $1`
	var balance int64
	if err := tx.QueryRow(ctx, query, accountID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return balance, nil
}

func balancesFor(ctx context.Context, tx pgx.Tx, accountIDs map[string]uuid.UUID) (map[string]int64, error) {
	balances := make(map[string]int64, len(accountIDs))
	for code, id := range accountIDs {
		balance, err := balanceForAccount(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		balances[code] = balance
	}
	return balances, nil
}
