package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	wd "github.com/referralpay/ledger/internal/withdrawal"

	"github.com/referralpay/ledger/internal/types/withdrawal"
)

func (s *PostgresStorage) CreateRequest(ctx context.Context, req *withdrawal.Request) error {
	q := `INSERT INTO withdrawal_requests (member_id, amount, state, wallet_address, requested_at)
          VALUES ($1,$2,$3,$4,$5) RETURNING id`
	return s.db.QueryRowContext(ctx, q,
		req.MemberID, req.Amount, req.State, req.WalletAddress, req.RequestedAt,
	).Scan(&req.ID)
}

const requestColumns = `id, member_id, amount, state, wallet_address, decision_reason, approvals, requested_at, decided_at`

func scanRequest(row interface{ Scan(...any) error }) (*withdrawal.Request, error) {
	r := &withdrawal.Request{}
	var reason sql.NullString
	var decided sql.NullTime
	if err := row.Scan(
		&r.ID, &r.MemberID, &r.Amount, &r.State, &r.WalletAddress,
		&reason, &r.Approvals, &r.RequestedAt, &decided,
	); err != nil {
		return nil, err
	}
	if reason.Valid {
		r.DecisionReason = &reason.String
	}
	if decided.Valid {
		r.DecidedAt = &decided.Time
	}
	return r, nil
}

func (s *PostgresStorage) FindRequestByID(ctx context.Context, id int64) (*withdrawal.Request, error) {
	q := `SELECT ` + requestColumns + ` FROM withdrawal_requests WHERE id=$1`
	return scanRequest(s.db.QueryRowContext(ctx, q, id))
}

func (s *PostgresStorage) ListRequests(ctx context.Context, filter withdrawal.ListFilter) ([]withdrawal.Request, error) {
	q := `SELECT ` + requestColumns + `
          FROM withdrawal_requests
          WHERE ($1 = '' OR state = $1)
            AND ($2 = '' OR CAST(id AS TEXT) LIKE '%'||$2||'%'
                 OR CAST(member_id AS TEXT) LIKE '%'||$2||'%'
                 OR wallet_address ILIKE '%'||$2||'%')
          ORDER BY requested_at DESC
          LIMIT $3 OFFSET $4`
	return s.listRequests(ctx, q, string(filter.State), filter.Search, filter.Limit, filter.Offset)
}

func (s *PostgresStorage) ListRequestsByMember(ctx context.Context, memberID int64) ([]withdrawal.Request, error) {
	q := `SELECT ` + requestColumns + `
          FROM withdrawal_requests WHERE member_id=$1 ORDER BY requested_at DESC`
	return s.listRequests(ctx, q, memberID)
}

func (s *PostgresStorage) listRequests(ctx context.Context, query string, args ...any) ([]withdrawal.Request, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []withdrawal.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// lockRequest reads the request row FOR UPDATE. Concurrent transitions on
// the same request queue on this lock and the loser sees the new state.
func lockRequest(ctx context.Context, tx *sql.Tx, id int64) (*withdrawal.Request, error) {
	q := `SELECT ` + requestColumns + ` FROM withdrawal_requests WHERE id=$1 FOR UPDATE`
	r, err := scanRequest(tx.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, wd.ErrRequestNotFound
	}
	return r, err
}

// ApproveRequest commits the state change, the debit and the
// total_withdrawal bump atomically.
func (s *PostgresStorage) ApproveRequest(ctx context.Context, id int64, key string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	req, err := lockRequest(ctx, tx, id)
	if err != nil {
		return err
	}
	if req.State != withdrawal.StatePending && req.State != withdrawal.StateRejected {
		return wd.ErrInvalidStateTransition
	}

	reason := fmt.Sprintf("withdrawal %d approved", id)
	if _, _, err := applyEntryTx(ctx, tx, req.MemberID, req.Amount.Neg(), key, reason); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE members SET total_withdrawal = total_withdrawal + $1 WHERE id=$2`,
		req.Amount, req.MemberID,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE withdrawal_requests
         SET state=$1, approvals=approvals+1, decision_reason=NULL, decided_at=$2
         WHERE id=$3`,
		withdrawal.StateApproved, time.Now().UTC(), id,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStorage) RejectRequest(ctx context.Context, id int64, reason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	req, err := lockRequest(ctx, tx, id)
	if err != nil {
		return err
	}
	if req.State != withdrawal.StatePending {
		return wd.ErrInvalidStateTransition
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE withdrawal_requests SET state=$1, decision_reason=$2, decided_at=$3 WHERE id=$4`,
		withdrawal.StateRejected, reason, time.Now().UTC(), id,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// ReverseApproval undoes a committed approval: credit back, shrink
// total_withdrawal, move to REJECTED.
func (s *PostgresStorage) ReverseApproval(ctx context.Context, id int64, key, reason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	req, err := lockRequest(ctx, tx, id)
	if err != nil {
		return err
	}
	if req.State != withdrawal.StateApproved {
		return wd.ErrInvalidStateTransition
	}

	entryReason := fmt.Sprintf("withdrawal %d approval reversed", id)
	if _, _, err := applyEntryTx(ctx, tx, req.MemberID, req.Amount, key, entryReason); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE members SET total_withdrawal = total_withdrawal - $1 WHERE id=$2`,
		req.Amount, req.MemberID,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE withdrawal_requests SET state=$1, decision_reason=$2, decided_at=$3 WHERE id=$4`,
		withdrawal.StateRejected, reason, time.Now().UTC(), id,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStorage) DeleteRequest(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM withdrawal_requests WHERE id=$1 AND state IN ($2, $3)`,
		id, withdrawal.StatePending, withdrawal.StateRejected,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return wd.ErrInvalidStateTransition
	}
	return nil
}

func (s *PostgresStorage) PurgeRejectedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM withdrawal_requests WHERE state=$1 AND decided_at < $2`,
		withdrawal.StateRejected, cutoff,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
