package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/activity-registration/internal/model"
)

// PostgresStore persists activities in PostgreSQL using pgx directly (no ORM).
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const pgActivityColumns = `id, name, kind, capacity, spots_left, family_limit_kind, family_limit_value,
	starts_at, registration_deadline, unregistration_deadline, created_at`

// Create inserts a new activity along with any registrations or waiting entries it carries.
func (s *PostgresStore) Create(ctx context.Context, a *model.Activity) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// Rollback is a no-op once the transaction has committed.
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO activities (`+pgActivityColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.Name, a.Kind, a.Capacity, a.SpotsLeft, a.FamilyLimit.Kind, a.FamilyLimit.Value,
		nullTime(a.StartsAt), nullTime(a.RegistrationDeadline), nullTime(a.UnregistrationDeadline), a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	if err := writeChildren(ctx, tx, a); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Load returns an activity with its registrations and waiting list, or model.ErrNotFound.
func (s *PostgresStore) Load(ctx context.Context, id string) (*model.Activity, error) {
	a, err := scanActivity(s.db.QueryRow(ctx,
		`SELECT `+pgActivityColumns+` FROM activities WHERE id = $1`, id,
	))
	if err != nil {
		return nil, err
	}
	if err := loadChildren(ctx, s.db, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Update locks the activity row with SELECT … FOR UPDATE, loads the
// activity with its registrations and waiting list inside the same
// transaction, applies fn and writes the result back. A second transaction
// updating the same activity, from any process, blocks on the row lock until
// this one commits and then reads the committed state.
//
// An error from fn rolls back and is returned unchanged.
func (s *PostgresStore) Update(ctx context.Context, id string, fn func(a *model.Activity) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	a, err := scanActivity(tx.QueryRow(ctx,
		`SELECT `+pgActivityColumns+` FROM activities WHERE id = $1 FOR UPDATE`, id,
	))
	if err != nil {
		return err
	}
	if err := loadChildren(ctx, tx, a); err != nil {
		return err
	}

	if err := fn(a); err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`UPDATE activities SET spots_left = $2 WHERE id = $1`,
		a.ID, a.SpotsLeft,
	)
	if err != nil {
		return fmt.Errorf("update spots_left: %w", err)
	}

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM registrations WHERE activity_id = $1`, a.ID)
	batch.Queue(`DELETE FROM waiting_list WHERE activity_id = $1`, a.ID)
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("clear registrations: %w", err)
	}
	if err := writeChildren(ctx, tx, a); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// List returns all activities ordered by creation time descending.
func (s *PostgresStore) List(ctx context.Context) ([]*model.Activity, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+pgActivityColumns+` FROM activities ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	var activities []*model.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	rows.Close()

	for _, a := range activities {
		if err := loadChildren(ctx, s.db, a); err != nil {
			return nil, err
		}
	}
	return activities, nil
}

func writeChildren(ctx context.Context, tx pgx.Tx, a *model.Activity) error {
	if len(a.Registrations) == 0 && len(a.WaitingList) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range a.Registrations {
		batch.Queue(
			`INSERT INTO registrations (id, activity_id, registrant_id, seats_held, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			r.ID, a.ID, r.RegistrantID, r.SeatsHeld, r.CreatedAt,
		)
	}
	for i, e := range a.WaitingList {
		batch.Queue(
			`INSERT INTO waiting_list (activity_id, position, registrant_id, party_size, requested_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			a.ID, i, e.RegistrantID, e.PartySize, e.RequestedAt,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("write registrations: %w", err)
	}
	return nil
}

func loadChildren(ctx context.Context, q querier, a *model.Activity) error {
	rows, err := q.Query(ctx,
		`SELECT id, registrant_id, seats_held, created_at
		 FROM registrations
		 WHERE activity_id = $1
		 ORDER BY created_at ASC, id ASC`,
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("list registrations: %w", err)
	}
	regs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Registration, error) {
		r := model.Registration{ActivityID: a.ID}
		err := row.Scan(&r.ID, &r.RegistrantID, &r.SeatsHeld, &r.CreatedAt)
		r.CreatedAt = r.CreatedAt.UTC()
		return r, err
	})
	if err != nil {
		return fmt.Errorf("scan registration: %w", err)
	}
	a.Registrations = append(a.Registrations, regs...)

	wrows, err := q.Query(ctx,
		`SELECT registrant_id, party_size, requested_at
		 FROM waiting_list
		 WHERE activity_id = $1
		 ORDER BY position ASC`,
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("list waiting list: %w", err)
	}
	defer wrows.Close()
	for wrows.Next() {
		var e model.WaitingListEntry
		if err := wrows.Scan(&e.RegistrantID, &e.PartySize, &e.RequestedAt); err != nil {
			return fmt.Errorf("scan waiting list entry: %w", err)
		}
		e.RequestedAt = e.RequestedAt.UTC()
		a.WaitingList = append(a.WaitingList, e)
	}
	if err := wrows.Err(); err != nil {
		return fmt.Errorf("list waiting list: %w", err)
	}
	return nil
}

func scanActivity(row pgx.Row) (*model.Activity, error) {
	var (
		a                              model.Activity
		startsAt, regDeadline, unregDl *time.Time
	)
	err := row.Scan(
		&a.ID, &a.Name, &a.Kind, &a.Capacity, &a.SpotsLeft, &a.FamilyLimit.Kind, &a.FamilyLimit.Value,
		&startsAt, &regDeadline, &unregDl, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("scan activity: %w", err)
	}
	a.StartsAt = derefTime(startsAt)
	a.RegistrationDeadline = derefTime(regDeadline)
	a.UnregistrationDeadline = derefTime(unregDl)
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}
