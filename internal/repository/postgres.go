package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/event-checkin/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Constraint names from the migrations, used to tell unique violations apart.
const (
	constraintQRCode          = "registrations_qr_code_key"
	constraintActiveEventUser = "registrations_active_event_user"
)

const eventColumns = `id, title, description, organizer_id, capacity, registration_count,
	ticket_type, ticket_price, start_date, created_at`

const registrationColumns = `id, event_id, user_id, attendee_name, attendee_email, qr_code,
	status, checked_in, registered_at, checked_in_at`

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// querier is what pgxpool.Pool and pgx.Tx have in common.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func scanEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.OrganizerID, &e.Capacity, &e.RegistrationCount,
		&e.TicketType, &e.TicketPrice, &e.StartDate, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func scanRegistration(row pgx.Row) (*model.Registration, error) {
	var r model.Registration
	err := row.Scan(&r.ID, &r.EventID, &r.UserID, &r.AttendeeName, &r.AttendeeEmail, &r.QRCode,
		&r.Status, &r.CheckedIn, &r.RegisteredAt, &r.CheckedInAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func collectRegistrations(rows pgx.Rows) ([]model.Registration, error) {
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, *reg)
	}
	return regs, rows.Err()
}

// mapPgError turns constraint and concurrency failures into typed errors.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		switch pgErr.ConstraintName {
		case constraintQRCode:
			return model.ErrQRCodeTaken
		case constraintActiveEventUser:
			return &model.Error{Kind: model.KindDuplicateRegistration, Message: "already registered for this event", Err: err}
		}
	case "40001", "40P01":
		return &model.Error{Kind: model.KindConflict, Message: "concurrent update, retry", Err: err}
	}
	return err
}

// ─── Store ────────────────────────────────────────────────────────────────────

// InTx runs fn inside a transaction that is committed only if fn succeeds.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// Rollback is a no-op after Commit; it also runs if fn panics.
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapPgError(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// CreateEvent inserts e. registration_count always starts at zero.
func (s *PostgresStore) CreateEvent(ctx context.Context, e *model.Event) error {
	e.RegistrationCount = 0
	_, err := s.db.Exec(ctx,
		`INSERT INTO events (`+eventColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.Title, e.Description, e.OrganizerID, e.Capacity, e.RegistrationCount,
		e.TicketType, e.TicketPrice, e.StartDate, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	return getEvent(ctx, s.db, id, false)
}

// ListEvents returns all events ordered by creation time descending.
func (s *PostgresStore) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]model.RegistrationWithEvent, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE user_id = $1
		 ORDER BY registered_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations by user: %w", err)
	}
	regs, err := collectRegistrations(rows)
	if err != nil {
		return nil, err
	}
	if len(regs) == 0 {
		return nil, nil
	}

	evRows, err := s.db.Query(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ANY($1)`,
		eventIDs(regs),
	)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	defer evRows.Close()

	events := make(map[string]*model.Event)
	for evRows.Next() {
		e, err := scanEvent(evRows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events[e.ID] = e
	}
	if err := evRows.Err(); err != nil {
		return nil, err
	}
	return joinEvents(regs, events), nil
}

// ListByEvent returns all registrations for a given event.
func (s *PostgresStore) ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE event_id = $1`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return collectRegistrations(rows)
}

func (s *PostgresStore) FindForUser(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	reg, err := scanRegistration(s.db.QueryRow(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE event_id = $1 AND user_id = $2
		 ORDER BY CASE WHEN status = 'confirmed' THEN 0 ELSE 1 END, registered_at DESC
		 LIMIT 1`,
		eventID, userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &model.Error{Kind: model.KindNotFound, Message: "not registered for this event", EventID: eventID, UserID: userID}
		}
		return nil, fmt.Errorf("find registration: %w", err)
	}
	return reg, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func countByEvent(ctx context.Context, q querier, eventID string) (Counts, error) {
	var c Counts
	err := q.QueryRow(ctx,
		`SELECT
		   COALESCE(SUM(CASE WHEN status = 'confirmed' THEN 1 ELSE 0 END), 0),
		   COALESCE(SUM(CASE WHEN status = 'cancelled' THEN 1 ELSE 0 END), 0),
		   COALESCE(SUM(CASE WHEN status = 'confirmed' AND checked_in THEN 1 ELSE 0 END), 0)
		 FROM registrations
		 WHERE event_id = $1`,
		eventID,
	).Scan(&c.Confirmed, &c.Cancelled, &c.CheckedIn)
	if err != nil {
		return Counts{}, mapPgError(fmt.Errorf("count registrations: %w", err))
	}
	return c, nil
}

func getEvent(ctx context.Context, q querier, id string, lock bool) (*model.Event, error) {
	sql := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	e, err := scanEvent(q.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.EventNotFound(id)
		}
		return nil, mapPgError(fmt.Errorf("get event: %w", err))
	}
	return e, nil
}

// ─── Tx ───────────────────────────────────────────────────────────────────────

type pgTx struct {
	tx pgx.Tx
}

// LockEvent acquires a row-level lock on the event. Concurrent registrations
// for the same event queue behind it until this transaction ends, so the
// capacity read and the counter write observe one consistent snapshot.
func (t *pgTx) LockEvent(ctx context.Context, id string) (*model.Event, error) {
	return getEvent(ctx, t.tx, id, true)
}

func (t *pgTx) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	return getEvent(ctx, t.tx, id, false)
}

func (t *pgTx) LockRegistration(ctx context.Context, id string) (*model.Registration, error) {
	reg, err := scanRegistration(t.tx.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE id = $1 FOR UPDATE`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.RegistrationNotFound(id)
		}
		return nil, mapPgError(fmt.Errorf("lock registration: %w", err))
	}
	return reg, nil
}

func (t *pgTx) LockRegistrationByQRCode(ctx context.Context, qrCode string) (*model.Registration, error) {
	reg, err := scanRegistration(t.tx.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE qr_code = $1 FOR UPDATE`,
		qrCode,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &model.Error{Kind: model.KindNotFound, Message: "registration not found", QRCode: qrCode}
		}
		return nil, mapPgError(fmt.Errorf("lock registration by qr code: %w", err))
	}
	return reg, nil
}

func (t *pgTx) ActiveRegistration(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	reg, err := scanRegistration(t.tx.QueryRow(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE event_id = $1 AND user_id = $2 AND status = 'confirmed'`,
		eventID, userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &model.Error{Kind: model.KindNotFound, Message: "no active registration", EventID: eventID, UserID: userID}
		}
		return nil, fmt.Errorf("check duplicate: %w", err)
	}
	return reg, nil
}

func (t *pgTx) InsertRegistration(ctx context.Context, reg *model.Registration) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO registrations (`+registrationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		reg.ID, reg.EventID, reg.UserID, reg.AttendeeName, reg.AttendeeEmail, reg.QRCode,
		reg.Status, reg.CheckedIn, reg.RegisteredAt, reg.CheckedInAt,
	)
	if err != nil {
		if mapped := mapPgError(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

func (t *pgTx) SetStatus(ctx context.Context, id string, status model.RegistrationStatus) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE registrations SET status = $2 WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return mapPgError(fmt.Errorf("update registration status: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return model.RegistrationNotFound(id)
	}
	return nil
}

func (t *pgTx) MarkCheckedIn(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE registrations
		 SET checked_in = TRUE, checked_in_at = $2
		 WHERE id = $1 AND NOT checked_in`,
		id, at,
	)
	if err != nil {
		return false, mapPgError(fmt.Errorf("mark checked in: %w", err))
	}
	return tag.RowsAffected() == 1, nil
}

// IncrementRegistrationCount is a conditional increment: even without the
// row lock taken by LockEvent it cannot push the count past capacity.
func (t *pgTx) IncrementRegistrationCount(ctx context.Context, eventID string) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE events
		 SET registration_count = registration_count + 1
		 WHERE id = $1 AND registration_count < capacity`,
		eventID,
	)
	if err != nil {
		return false, mapPgError(fmt.Errorf("increment registration_count: %w", err))
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) DecrementRegistrationCount(ctx context.Context, eventID string) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE events
		 SET registration_count = registration_count - 1
		 WHERE id = $1 AND registration_count > 0`,
		eventID,
	)
	if err != nil {
		return mapPgError(fmt.Errorf("decrement registration_count: %w", err))
	}
	return nil
}

func (t *pgTx) CountByEvent(ctx context.Context, eventID string) (Counts, error) {
	return countByEvent(ctx, t.tx, eventID)
}
