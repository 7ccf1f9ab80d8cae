package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresJournal stores records in the transfer_journal table.
type PostgresJournal struct {
	db *pgxpool.Pool
}

// NewPostgresJournal constructs a Postgres-backed journal.
func NewPostgresJournal(db *pgxpool.Pool) *PostgresJournal {
	return &PostgresJournal{db: db}
}

const journalColumns = `transaction_id, transfer_id, sender_id, recipient_id, amount, plan, description,
        service_type, state, reason, attempts, created_at, updated_at`

func (j *PostgresJournal) Save(ctx context.Context, rec Record) error {
	plan, err := json.Marshal(rec.Plan)
	if err != nil {
		return err
	}
	_, err = j.db.Exec(ctx, `INSERT INTO transfer_journal (`+journalColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
        ON CONFLICT (transaction_id) DO UPDATE SET
            state = EXCLUDED.state,
            reason = EXCLUDED.reason,
            attempts = EXCLUDED.attempts,
            updated_at = EXCLUDED.updated_at
        WHERE transfer_journal.state NOT IN ('SUCCEEDED', 'FAILED')`,
		rec.TransactionID, rec.TransferID, rec.SenderID, rec.RecipientID, rec.Amount, plan, rec.Description,
		rec.ServiceType, string(rec.State), rec.Reason, rec.Attempts, rec.CreatedAt, rec.UpdatedAt)
	return err
}

func (j *PostgresJournal) Get(ctx context.Context, transactionID string) (Record, error) {
	row := j.db.QueryRow(ctx, `SELECT `+journalColumns+` FROM transfer_journal WHERE transaction_id = $1`, transactionID)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrTransferNotFound
	}
	return rec, err
}

func (j *PostgresJournal) Unsettled(ctx context.Context, cutoff time.Time, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.Query(ctx, `SELECT `+journalColumns+` FROM transfer_journal
        WHERE state IN ($1, $2) AND updated_at < $3
        ORDER BY updated_at
        LIMIT $4`, string(StateSubmitting), string(StatePending), cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec   Record
		plan  []byte
		state string
	)
	if err := row.Scan(&rec.TransactionID, &rec.TransferID, &rec.SenderID, &rec.RecipientID, &rec.Amount, &plan,
		&rec.Description, &rec.ServiceType, &state, &rec.Reason, &rec.Attempts, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return Record{}, err
	}
	rec.State = State(state)
	if len(plan) > 0 {
		if err := json.Unmarshal(plan, &rec.Plan); err != nil {
			return Record{}, err
		}
	}
	return rec, nil
}

var _ Journal = (*PostgresJournal)(nil)
