package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"subsync/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrAlreadyCancelled = errors.New("subscription already cancelled")
)

// DB is the sqlite-backed entry store: local subscription records, entry
// meta and reconciliation run history.
type DB struct {
	db *sql.DB
}

func NewDB(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %v", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %v", err)
	}

	return &DB{db: db}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS subscription_entries (
            entry_id INTEGER PRIMARY KEY AUTOINCREMENT,
            form_id INTEGER NOT NULL,
            feed_id INTEGER NOT NULL,
            transaction_id TEXT NOT NULL DEFAULT '',
            payment_status TEXT NOT NULL DEFAULT 'Active',
            paid_until_date TEXT NOT NULL DEFAULT '',
            customer_email TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS entry_meta (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            entry_id INTEGER NOT NULL,
            meta_key TEXT NOT NULL,
            meta_value TEXT NOT NULL,
            UNIQUE(entry_id, meta_key)
        )`,
		`CREATE TABLE IF NOT EXISTS sync_runs (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            run_id TEXT NOT NULL,
            job_id TEXT NOT NULL,
            started_at DATETIME NOT NULL,
            finished_at DATETIME NOT NULL,
            success_count INTEGER NOT NULL DEFAULT 0,
            failed_count INTEGER NOT NULL DEFAULT 0,
            skipped_count INTEGER NOT NULL DEFAULT 0,
            note TEXT
        )`,

		`CREATE INDEX IF NOT EXISTS idx_entries_payment_status ON subscription_entries(payment_status)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_form_id ON subscription_entries(form_id)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_transaction_id ON subscription_entries(transaction_id)`,
		`CREATE INDEX IF NOT EXISTS idx_meta_entry_id ON entry_meta(entry_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_runs_job_id ON sync_runs(job_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %v", query, err)
		}
	}
	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.db.ExecContext(ctx, query, args...)
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.db.QueryRowContext(ctx, query, args...)
}

// CreateEntry inserts a local subscription record and fills its entry id.
func (db *DB) CreateEntry(ctx context.Context, entry *models.SubscriptionEntry) error {
	query := `INSERT INTO subscription_entries (form_id, feed_id, transaction_id, payment_status, paid_until_date, customer_email, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	if entry.PaymentStatus == "" {
		entry.PaymentStatus = models.PaymentStatusActive
	}
	result, err := db.ExecContext(ctx, query,
		entry.FormID,
		entry.FeedID,
		entry.TransactionID,
		entry.PaymentStatus,
		entry.PaidUntilDate,
		entry.CustomerEmail,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	entry.EntryID = id
	entry.CreatedAt = now
	entry.UpdatedAt = now

	return nil
}

func (db *DB) GetEntry(ctx context.Context, entryID int64) (*models.SubscriptionEntry, error) {
	query := `SELECT entry_id, form_id, feed_id, transaction_id, payment_status, paid_until_date, customer_email, created_at, updated_at
              FROM subscription_entries WHERE entry_id = ?`
	var entry models.SubscriptionEntry
	var email sql.NullString
	err := db.QueryRowContext(ctx, query, entryID).Scan(
		&entry.EntryID, &entry.FormID, &entry.FeedID, &entry.TransactionID,
		&entry.PaymentStatus, &entry.PaidUntilDate, &email, &entry.CreatedAt, &entry.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	entry.CustomerEmail = email.String
	return &entry, nil
}

// GetActiveSubscriptionEntries returns the reconciliation batch: entries in
// Active payment status whose transaction id is non-empty, optionally
// restricted to a set of form ids.
func (db *DB) GetActiveSubscriptionEntries(ctx context.Context, formIDs []int64) ([]models.SubscriptionEntry, error) {
	query := `SELECT entry_id, form_id, feed_id, transaction_id, payment_status, paid_until_date, customer_email, created_at, updated_at
              FROM subscription_entries
              WHERE payment_status = ? AND transaction_id != ''`
	args := []any{models.PaymentStatusActive}
	if len(formIDs) > 0 {
		query += ` AND form_id IN (` + placeholders(len(formIDs)) + `)`
		for _, id := range formIDs {
			args = append(args, id)
		}
	}
	query += ` ORDER BY entry_id ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get active subscription entries: %w", err)
	}
	defer rows.Close()

	var entries []models.SubscriptionEntry
	for rows.Next() {
		var entry models.SubscriptionEntry
		var email sql.NullString
		err := rows.Scan(
			&entry.EntryID, &entry.FormID, &entry.FeedID, &entry.TransactionID,
			&entry.PaymentStatus, &entry.PaidUntilDate, &email, &entry.CreatedAt, &entry.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entry.CustomerEmail = email.String
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// UpdateEntryMeta upserts one meta value for an entry. The paid-until key is
// mirrored into the entry row so batch queries read it without a join.
func (db *DB) UpdateEntryMeta(ctx context.Context, entryID int64, key, value string) error {
	query := `INSERT INTO entry_meta (entry_id, meta_key, meta_value) VALUES (?, ?, ?)
              ON CONFLICT(entry_id, meta_key) DO UPDATE SET meta_value = excluded.meta_value`
	if _, err := db.ExecContext(ctx, query, entryID, key, value); err != nil {
		return fmt.Errorf("failed to update entry meta: %w", err)
	}

	if key == models.MetaKeyPaidUntil {
		update := `UPDATE subscription_entries SET paid_until_date = ?, updated_at = ? WHERE entry_id = ?`
		if _, err := db.ExecContext(ctx, update, value, time.Now(), entryID); err != nil {
			return fmt.Errorf("failed to mirror paid_until_date: %w", err)
		}
	}
	return nil
}

func (db *DB) GetEntryMeta(ctx context.Context, entryID int64, key string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx,
		`SELECT meta_value FROM entry_meta WHERE entry_id = ? AND meta_key = ?`,
		entryID, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get entry meta: %w", err)
	}
	return value, nil
}

// CancelSubscription marks the entry's subscription as cancelled locally.
// Cancellation is terminal; cancelling twice is an error.
func (db *DB) CancelSubscription(ctx context.Context, entry *models.SubscriptionEntry) error {
	query := `UPDATE subscription_entries SET payment_status = ?, updated_at = ?
              WHERE entry_id = ? AND payment_status != ?`
	result, err := db.ExecContext(ctx, query,
		models.PaymentStatusCancelled, time.Now(), entry.EntryID, models.PaymentStatusCancelled)
	if err != nil {
		return fmt.Errorf("failed to cancel subscription: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrAlreadyCancelled
	}

	entry.PaymentStatus = models.PaymentStatusCancelled
	return nil
}

// RecordSyncRun appends one completed tick to the run history.
func (db *DB) RecordSyncRun(ctx context.Context, run *models.SyncRun) error {
	query := `INSERT INTO sync_runs (run_id, job_id, started_at, finished_at, success_count, failed_count, skipped_count, note)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := db.ExecContext(ctx, query,
		run.RunID, run.JobID, run.StartedAt, run.FinishedAt,
		run.SuccessCount, run.FailedCount, run.SkippedCount, run.Note,
	)
	if err != nil {
		return fmt.Errorf("failed to record sync run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	run.ID = id
	return nil
}

func (db *DB) GetRecentSyncRuns(ctx context.Context, limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, run_id, job_id, started_at, finished_at, success_count, failed_count, skipped_count, note
              FROM sync_runs ORDER BY started_at DESC, id DESC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync runs: %w", err)
	}
	defer rows.Close()

	var runs []models.SyncRun
	for rows.Next() {
		var run models.SyncRun
		var note sql.NullString
		err := rows.Scan(
			&run.ID, &run.RunID, &run.JobID, &run.StartedAt, &run.FinishedAt,
			&run.SuccessCount, &run.FailedCount, &run.SkippedCount, &note,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		run.Note = note.String
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	out := "?"
	for i := 1; i < n; i++ {
		out += ", ?"
	}
	return out
}
