package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/example/paperwatch/internal/model"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresSubscriptionRepository stores subscriptions in a Postgres database.
type PostgresSubscriptionRepository struct {
	db        *sql.DB
	maxActive int
}

func NewPostgresSubscriptionRepository(connStr string, maxActive int) (*PostgresSubscriptionRepository, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, err
	}
	r := &PostgresSubscriptionRepository{db: db, maxActive: maxActive}
	if err := r.init(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *PostgresSubscriptionRepository) init() error {
	_, err := r.db.Exec(`
        CREATE TABLE IF NOT EXISTS subscriptions (
            id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
            owner_id BIGINT NOT NULL,
            topic TEXT NOT NULL,
            categories JSONB,
            interval_hours INTEGER NOT NULL,
            active BOOLEAN NOT NULL DEFAULT TRUE,
            last_run_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            UNIQUE (owner_id, topic)
        )`)
	return err
}

// DB exposes the underlying handle so the view ledger can share the pool.
func (r *PostgresSubscriptionRepository) DB() *sql.DB {
	return r.db
}

func (r *PostgresSubscriptionRepository) Close() error {
	return r.db.Close()
}

const subscriptionColumns = `id, owner_id, topic, categories, interval_hours, active, last_run_at, created_at`

func scanSubscription(row interface{ Scan(...any) error }) (*model.Subscription, error) {
	var s model.Subscription
	var categories []byte
	var lastRun sql.NullTime
	if err := row.Scan(&s.ID, &s.OwnerID, &s.Topic, &categories, &s.IntervalHours, &s.Active, &lastRun, &s.CreatedAt); err != nil {
		return nil, err
	}
	if lastRun.Valid {
		t := lastRun.Time
		s.LastRunAt = &t
	}
	// Stored category filters have no schema-side validation; a malformed
	// blob reads as "no filter" rather than failing the row.
	if len(categories) > 0 {
		if err := json.Unmarshal(categories, &s.Categories); err != nil {
			log.Printf("subscription %d: malformed categories, ignoring: %v", s.ID, err)
			s.Categories = nil
		}
	}
	return &s, nil
}

func (r *PostgresSubscriptionRepository) Create(ctx context.Context, sub *model.Subscription) (*model.Subscription, error) {
	topic := model.NormalizeTopic(sub.Topic)
	if topic == "" {
		return nil, errors.New("repository: empty topic")
	}
	interval := sub.IntervalHours
	if interval == 0 {
		interval = model.DefaultIntervalHours
	}
	if !model.ValidIntervalHours(interval) {
		return nil, errors.New("repository: interval not allowed")
	}

	// Reactivate an existing row for the same topic instead of duplicating.
	row := r.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE owner_id=$1 AND topic=$2`,
		sub.OwnerID, topic)
	if existing, err := scanSubscription(row); err == nil {
		if !existing.Active {
			if err := r.Reactivate(ctx, existing.ID); err != nil {
				return nil, err
			}
			existing.Active = true
		}
		return existing, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	var active int
	if err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM subscriptions WHERE owner_id=$1 AND active`, sub.OwnerID).Scan(&active); err != nil {
		return nil, err
	}
	if active >= r.maxActive {
		return nil, ErrSubscriptionLimit
	}

	categories, err := json.Marshal(sub.Categories)
	if err != nil {
		return nil, err
	}
	row = r.db.QueryRowContext(ctx, `
        INSERT INTO subscriptions (owner_id, topic, categories, interval_hours, active)
        VALUES ($1,$2,$3,$4,TRUE)
        RETURNING `+subscriptionColumns,
		sub.OwnerID, topic, string(categories), interval)
	return scanSubscription(row)
}

func (r *PostgresSubscriptionRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions
        WHERE active AND (last_run_at IS NULL OR last_run_at <= $1 - interval_hours * interval '1 hour')
        ORDER BY last_run_at ASC NULLS FIRST`
	args := []any{now}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []*model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (r *PostgresSubscriptionRepository) UpdateLastRun(ctx context.Context, id int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE subscriptions SET last_run_at=$2 WHERE id=$1`, id, at)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (r *PostgresSubscriptionRepository) MarkInactive(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE subscriptions SET active=FALSE WHERE id=$1`, id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (r *PostgresSubscriptionRepository) Reactivate(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE subscriptions SET active=TRUE WHERE id=$1`, id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (r *PostgresSubscriptionRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*model.Subscription, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE owner_id=$1 ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []*model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (r *PostgresSubscriptionRepository) DeleteOwner(ctx context.Context, ownerID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE owner_id=$1`, ownerID)
	return err
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
