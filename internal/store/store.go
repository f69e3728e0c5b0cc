// Package store implements the Watch persistence contract of
// SPEC_FULL.md §4.1: insert, update, update_status, delete, load,
// load_by_name, load_all and create_tables, each committing on success
// and leaving the table untouched on failure.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/codesprinters/twillmanager/internal/models"
)

// ErrNotFound is returned by Load/LoadByName when no row matches.
var ErrNotFound = errors.New("watch not found")

// ErrDuplicateName is returned by Insert/Update when the name uniqueness
// constraint is violated.
var ErrDuplicateName = errors.New("watch name already exists")

const watchColumns = `id, name, interval, script, emails, status, time, reminder_interval, last_alert`

// CreateTables creates the watch table if it does not already exist. Idempotent.
func CreateTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS watches (
			id                SERIAL PRIMARY KEY,
			name              VARCHAR(255) UNIQUE NOT NULL,
			interval          INTEGER NOT NULL,
			script            TEXT NOT NULL DEFAULT '',
			emails            TEXT NOT NULL DEFAULT '',
			status            VARCHAR(16) NOT NULL DEFAULT 'UNKNOWN',
			time              BIGINT,
			reminder_interval INTEGER,
			last_alert        BIGINT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create watches table: %w", err)
	}
	return nil
}

// Insert persists a new watch and assigns its id.
func Insert(ctx context.Context, db *sql.DB, w *models.Watch) error {
	err := db.QueryRowContext(ctx, `
		INSERT INTO watches (name, interval, script, emails, status, time, reminder_interval, last_alert)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, w.Name, w.Interval, w.Script, w.Emails, string(w.Status), w.Time, w.ReminderInterval, w.LastAlert).Scan(&w.ID)

	if isUniqueViolation(err) {
		return ErrDuplicateName
	}
	if err != nil {
		return fmt.Errorf("failed to insert watch: %w", err)
	}
	return nil
}

// Update rewrites every definition column (name/interval/script/emails/
// reminder_interval). It is the control plane's write path and is
// disjoint, by column set, from UpdateStatus.
func Update(ctx context.Context, db *sql.DB, w *models.Watch) error {
	res, err := db.ExecContext(ctx, `
		UPDATE watches
		SET name = $1, interval = $2, script = $3, emails = $4, reminder_interval = $5
		WHERE id = $6
	`, w.Name, w.Interval, w.Script, w.Emails, w.ReminderInterval, w.ID)

	if isUniqueViolation(err) {
		return ErrDuplicateName
	}
	if err != nil {
		return fmt.Errorf("failed to update watch: %w", err)
	}
	return checkRowsAffected(res)
}

// UpdateStatus rewrites only status, time and last_alert — the worker's
// write path. It never touches name/interval/script/emails/reminder_interval,
// so a concurrent control-plane edit can never be clobbered by a worker's
// check, and vice versa.
func UpdateStatus(ctx context.Context, db *sql.DB, id int64, status models.Status, checkTime *int64, lastAlert *int64) error {
	res, err := db.ExecContext(ctx, `
		UPDATE watches SET status = $1, time = $2, last_alert = $3 WHERE id = $4
	`, string(status), checkTime, lastAlert, id)
	if err != nil {
		return fmt.Errorf("failed to update watch status: %w", err)
	}
	return checkRowsAffected(res)
}

// Delete removes the watch with the given id. Deleting an absent id is not
// an error at this layer; callers pair it with proxy removal.
func Delete(ctx context.Context, db *sql.DB, id int64) error {
	_, err := db.ExecContext(ctx, `DELETE FROM watches WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete watch: %w", err)
	}
	return nil
}

// Load returns the watch with the given id, or ErrNotFound.
func Load(ctx context.Context, db *sql.DB, id int64) (*models.Watch, error) {
	row := db.QueryRowContext(ctx, `SELECT `+watchColumns+` FROM watches WHERE id = $1`, id)
	return scanWatch(row)
}

// LoadByName returns the watch with the given name, or ErrNotFound.
func LoadByName(ctx context.Context, db *sql.DB, name string) (*models.Watch, error) {
	row := db.QueryRowContext(ctx, `SELECT `+watchColumns+` FROM watches WHERE name = $1`, name)
	return scanWatch(row)
}

// LoadAll returns every watch ordered by name ascending.
func LoadAll(ctx context.Context, db *sql.DB) ([]*models.Watch, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+watchColumns+` FROM watches ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to load watches: %w", err)
	}
	defer rows.Close()

	var watches []*models.Watch
	for rows.Next() {
		w, err := scanWatchRow(rows)
		if err != nil {
			return nil, err
		}
		watches = append(watches, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate watches: %w", err)
	}
	return watches, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanWatch(row scanner) (*models.Watch, error) {
	return scanWatchRow(row)
}

func scanWatchRow(row scanner) (*models.Watch, error) {
	w := &models.Watch{}
	var status string
	err := row.Scan(&w.ID, &w.Name, &w.Interval, &w.Script, &w.Emails, &status,
		&w.Time, &w.ReminderInterval, &w.LastAlert)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan watch row: %w", err)
	}
	w.Status = models.Status(status)
	return w, nil
}

func checkRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to confirm write: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
