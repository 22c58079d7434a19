package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/activity-registration/internal/model"
)

// dateLayout is fixed width so text ordering matches time ordering.
const dateLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore persists activities in SQLite through database/sql and the
// modernc driver. Timestamps are stored as UTC text; empty text is the zero time.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore constructs a SQLiteStore. The schema must already exist
// (see database.OpenSQLite).
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const sqliteActivityColumns = `id, name, kind, capacity, spots_left, family_limit_kind, family_limit_value,
	starts_at, registration_deadline, unregistration_deadline, created_at`

// Create inserts a new activity along with any registrations or waiting entries it carries.
func (s *SQLiteStore) Create(ctx context.Context, a *model.Activity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO activities (`+sqliteActivityColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, string(a.Kind), a.Capacity, a.SpotsLeft, string(a.FamilyLimit.Kind), a.FamilyLimit.Value,
		formatTime(a.StartsAt), formatTime(a.RegistrationDeadline), formatTime(a.UnregistrationDeadline),
		formatTime(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	if err := s.writeChildren(ctx, tx, a); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Load returns an activity with its registrations and waiting list, or model.ErrNotFound.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*model.Activity, error) {
	a, err := scanSQLiteActivity(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteActivityColumns+` FROM activities WHERE id = ?`, id,
	))
	if err != nil {
		return nil, err
	}
	if err := loadSQLiteChildren(ctx, s.db, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Update loads the activity inside a transaction, applies fn and writes the
// result back. Transactions begin IMMEDIATE (see database.OpenSQLite), so the
// write lock is held from the first read until commit; a concurrent update
// from another connection waits and then reads the committed state.
//
// An error from fn rolls back and is returned unchanged.
func (s *SQLiteStore) Update(ctx context.Context, id string, fn func(a *model.Activity) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	a, err := scanSQLiteActivity(tx.QueryRowContext(ctx,
		`SELECT `+sqliteActivityColumns+` FROM activities WHERE id = ?`, id,
	))
	if err != nil {
		return err
	}
	if err := loadSQLiteChildren(ctx, tx, a); err != nil {
		return err
	}

	if err := fn(a); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE activities SET spots_left = ? WHERE id = ?`, a.SpotsLeft, a.ID,
	); err != nil {
		return fmt.Errorf("update spots_left: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM registrations WHERE activity_id = ?`, a.ID); err != nil {
		return fmt.Errorf("clear registrations: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM waiting_list WHERE activity_id = ?`, a.ID); err != nil {
		return fmt.Errorf("clear waiting list: %w", err)
	}
	if err := s.writeChildren(ctx, tx, a); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// List returns all activities ordered by creation time descending.
func (s *SQLiteStore) List(ctx context.Context) ([]*model.Activity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteActivityColumns+` FROM activities ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	var activities []*model.Activity
	for rows.Next() {
		a, err := scanSQLiteActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	// The pool holds one connection; release it before the child queries.
	rows.Close()

	for _, a := range activities {
		if err := loadSQLiteChildren(ctx, s.db, a); err != nil {
			return nil, err
		}
	}
	return activities, nil
}

func (s *SQLiteStore) writeChildren(ctx context.Context, tx *sql.Tx, a *model.Activity) error {
	for _, r := range a.Registrations {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO registrations (id, activity_id, registrant_id, seats_held, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			r.ID, a.ID, r.RegistrantID, r.SeatsHeld, formatTime(r.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert registration: %w", err)
		}
	}
	for i, e := range a.WaitingList {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO waiting_list (activity_id, position, registrant_id, party_size, requested_at)
			 VALUES (?, ?, ?, ?, ?)`,
			a.ID, i, e.RegistrantID, e.PartySize, formatTime(e.RequestedAt),
		)
		if err != nil {
			return fmt.Errorf("insert waiting list entry: %w", err)
		}
	}
	return nil
}

// sqlQuerier is satisfied by both *sql.DB and *sql.Tx.
type sqlQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadSQLiteChildren(ctx context.Context, q sqlQuerier, a *model.Activity) error {
	rows, err := q.QueryContext(ctx,
		`SELECT id, registrant_id, seats_held, created_at
		 FROM registrations
		 WHERE activity_id = ?
		 ORDER BY created_at ASC, id ASC`,
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("list registrations: %w", err)
	}
	for rows.Next() {
		var (
			r         = model.Registration{ActivityID: a.ID}
			createdAt string
		)
		if err := rows.Scan(&r.ID, &r.RegistrantID, &r.SeatsHeld, &createdAt); err != nil {
			rows.Close()
			return fmt.Errorf("scan registration: %w", err)
		}
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			rows.Close()
			return err
		}
		a.Registrations = append(a.Registrations, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("list registrations: %w", err)
	}
	rows.Close()

	rows, err = q.QueryContext(ctx,
		`SELECT registrant_id, party_size, requested_at
		 FROM waiting_list
		 WHERE activity_id = ?
		 ORDER BY position ASC`,
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("list waiting list: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			e           model.WaitingListEntry
			requestedAt string
		)
		if err := rows.Scan(&e.RegistrantID, &e.PartySize, &requestedAt); err != nil {
			return fmt.Errorf("scan waiting list entry: %w", err)
		}
		if e.RequestedAt, err = parseTime(requestedAt); err != nil {
			return err
		}
		a.WaitingList = append(a.WaitingList, e)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("list waiting list: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteActivity(row rowScanner) (*model.Activity, error) {
	var (
		a               model.Activity
		kind, limitKind string
		startsAt        string
		regDeadline     string
		unregDl         string
		createdAt       string
	)
	err := row.Scan(
		&a.ID, &a.Name, &kind, &a.Capacity, &a.SpotsLeft, &limitKind, &a.FamilyLimit.Value,
		&startsAt, &regDeadline, &unregDl, &createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("scan activity: %w", err)
	}
	a.Kind = model.ActivityKind(kind)
	a.FamilyLimit.Kind = model.FamilyLimitKind(limitKind)
	for _, f := range []struct {
		dst *time.Time
		src string
	}{
		{&a.StartsAt, startsAt},
		{&a.RegistrationDeadline, regDeadline},
		{&a.UnregistrationDeadline, unregDl},
		{&a.CreatedAt, createdAt},
	} {
		if *f.dst, err = parseTime(f.src); err != nil {
			return nil, err
		}
	}
	return &a, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t.UTC(), nil
}
