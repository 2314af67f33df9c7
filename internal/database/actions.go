package database

import (
	"context"
	"database/sql"
	"fmt"
)

// InsertAction records a verification action and returns its id.
func (db *DB) InsertAction(ctx context.Context, accountID string, kind ActionKind, details string, resolved bool) (int64, error) {
	query := `INSERT INTO verification_actions (account_id, kind, details, resolved)
		VALUES ($1, $2, $3, $4) RETURNING action_id`

	var id int64
	if err := db.conn.QueryRowContext(ctx, query, accountID, kind, details, resolved).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert verification action: %w", err)
	}
	return id, nil
}

// GetAction returns one action by id, or (nil, nil) when it does not exist.
func (db *DB) GetAction(ctx context.Context, actionID int64) (*VerificationAction, error) {
	query := `SELECT action_id, account_id, kind, details, resolved, created_at
		FROM verification_actions WHERE action_id = $1`

	action := &VerificationAction{}
	err := db.conn.QueryRowContext(ctx, query, actionID).Scan(
		&action.ID, &action.AccountID, &action.Kind, &action.Details,
		&action.Resolved, &action.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	return action, err
}

// ResolveAction marks an action resolved. Resolving an already-resolved
// action is a no-op.
func (db *DB) ResolveAction(ctx context.Context, actionID int64) error {
	query := `UPDATE verification_actions SET resolved = TRUE WHERE action_id = $1`
	if _, err := db.conn.ExecContext(ctx, query, actionID); err != nil {
		return fmt.Errorf("failed to resolve action: %w", err)
	}
	return nil
}

// ActionsForAccount lists actions for one account, newest first.
func (db *DB) ActionsForAccount(ctx context.Context, accountID string) ([]VerificationAction, error) {
	query := `SELECT action_id, account_id, kind, details, resolved, created_at
		FROM verification_actions WHERE account_id = $1 ORDER BY action_id DESC`

	rows, err := db.conn.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer rows.Close()

	var actions []VerificationAction
	for rows.Next() {
		var action VerificationAction
		if err := rows.Scan(&action.ID, &action.AccountID, &action.Kind,
			&action.Details, &action.Resolved, &action.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		actions = append(actions, action)
	}
	return actions, rows.Err()
}
