package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/paperwatch/internal/model"
)

// PostgresViewLedger stores view records in a Postgres database. The
// (owner_id, paper_id) primary key makes every insert idempotent.
type PostgresViewLedger struct {
	db *sql.DB
}

func NewPostgresViewLedger(db *sql.DB) (*PostgresViewLedger, error) {
	r := &PostgresViewLedger{db: db}
	if err := r.init(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *PostgresViewLedger) init() error {
	_, err := r.db.Exec(`
        CREATE TABLE IF NOT EXISTS paper_views (
            owner_id BIGINT NOT NULL,
            paper_id TEXT NOT NULL,
            viewed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            PRIMARY KEY (owner_id, paper_id)
        )`)
	return err
}

func (r *PostgresViewLedger) MarkViewed(ctx context.Context, ownerID int64, paperID string) (*model.ViewRecord, error) {
	row := r.db.QueryRowContext(ctx, `
        INSERT INTO paper_views (owner_id, paper_id)
        VALUES ($1,$2)
        ON CONFLICT (owner_id, paper_id) DO NOTHING
        RETURNING viewed_at`, ownerID, paperID)
	var viewedAt time.Time
	if err := row.Scan(&viewedAt); err != nil {
		if err == sql.ErrNoRows {
			// Already recorded; duplicates are a no-op.
			return nil, nil
		}
		return nil, err
	}
	return &model.ViewRecord{OwnerID: ownerID, PaperID: paperID, ViewedAt: viewedAt}, nil
}

func (r *PostgresViewLedger) MarkAllViewed(ctx context.Context, ownerID int64, paperIDs []string) (int, error) {
	if len(paperIDs) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	inserted := 0
	for _, id := range paperIDs {
		res, err := tx.ExecContext(ctx, `
            INSERT INTO paper_views (owner_id, paper_id)
            VALUES ($1,$2)
            ON CONFLICT (owner_id, paper_id) DO NOTHING`, ownerID, id)
		if err != nil {
			// The rollback undoes everything inserted so far.
			return 0, err
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

func (r *PostgresViewLedger) HasViewed(ctx context.Context, ownerID int64, paperID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM paper_views WHERE owner_id=$1 AND paper_id=$2)`,
		ownerID, paperID).Scan(&exists)
	return exists, err
}

func (r *PostgresViewLedger) ViewedIDs(ctx context.Context, ownerID int64, paperIDs []string) (map[string]struct{}, error) {
	out := map[string]struct{}{}
	if len(paperIDs) == 0 {
		return out, nil
	}
	placeholders := make([]string, len(paperIDs))
	args := make([]any, 0, len(paperIDs)+1)
	args = append(args, ownerID)
	for i, id := range paperIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT paper_id FROM paper_views WHERE owner_id=$1 AND paper_id IN (`+strings.Join(placeholders, ",")+`)`,
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

func (r *PostgresViewLedger) ViewedSince(ctx context.Context, ownerID int64, since time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT paper_id FROM paper_views WHERE owner_id=$1 AND viewed_at >= $2 ORDER BY viewed_at`,
		ownerID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PostgresViewLedger) Unmark(ctx context.Context, ownerID int64, paperID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM paper_views WHERE owner_id=$1 AND paper_id=$2`, ownerID, paperID)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (r *PostgresViewLedger) ClearAll(ctx context.Context, ownerID int64) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM paper_views WHERE owner_id=$1`, ownerID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
