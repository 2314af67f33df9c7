package database

import (
	"context"
	"database/sql"
	"time"
)

func (db *DB) CreateChallenge(ctx context.Context, challenge *Challenge) error {
	query := `INSERT INTO challenges (id, action_id, account_id, salt, difficulty, memory, threads, key_len, target, created_at, expires_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := db.conn.ExecContext(ctx, query, challenge.ID, challenge.ActionID, challenge.AccountID,
		challenge.Salt, challenge.Difficulty, challenge.Memory, challenge.Threads,
		challenge.KeyLen, challenge.Target, challenge.CreatedAt, challenge.ExpiresAt)

	return err
}

func (db *DB) GetChallenge(ctx context.Context, id string) (*Challenge, error) {
	query := `SELECT id, action_id, account_id, salt, difficulty, memory, threads, key_len, target, created_at, expires_at, solved, solved_at
			  FROM challenges WHERE id = $1`

	challenge := &Challenge{}
	err := db.conn.QueryRowContext(ctx, query, id).Scan(
		&challenge.ID, &challenge.ActionID, &challenge.AccountID, &challenge.Salt,
		&challenge.Difficulty, &challenge.Memory, &challenge.Threads, &challenge.KeyLen,
		&challenge.Target, &challenge.CreatedAt, &challenge.ExpiresAt,
		&challenge.Solved, &challenge.SolvedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	return challenge, err
}

func (db *DB) MarkChallengeSolved(ctx context.Context, id string) error {
	query := `UPDATE challenges SET solved = true, solved_at = NOW() WHERE id = $1`
	_, err := db.conn.ExecContext(ctx, query, id)
	return err
}

func (db *DB) CreateSolution(ctx context.Context, solution *Solution) error {
	query := `INSERT INTO solutions (id, challenge_id, nonce, hash, created_at, valid)
			  VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := db.conn.ExecContext(ctx, query, solution.ID, solution.ChallengeID,
		solution.Nonce, solution.Hash, solution.CreatedAt, solution.Valid)

	return err
}

// CleanupExpiredChallenges drops unsolved challenges past their expiry,
// together with any recorded solution attempts against them. The bound action
// stays unresolved for staff follow-up.
func (db *DB) CleanupExpiredChallenges(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM solutions WHERE challenge_id IN (
			SELECT id FROM challenges WHERE expires_at < NOW() AND solved = false)`); err != nil {
		return err
	}
	_, err := db.conn.ExecContext(ctx, `DELETE FROM challenges WHERE expires_at < NOW() AND solved = false`)
	return err
}

func (db *DB) CleanupOldSolutions(ctx context.Context, olderThan time.Duration) error {
	query := `DELETE FROM solutions WHERE created_at < $1`
	cutoff := time.Now().Add(-olderThan)
	_, err := db.conn.ExecContext(ctx, query, cutoff)
	return err
}
