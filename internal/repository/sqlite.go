package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/event-checkin/internal/model"
	"gorm.io/gorm"
)

type eventRow struct {
	ID                string `gorm:"primaryKey"`
	Title             string `gorm:"not null"`
	Description       string
	OrganizerID       string    `gorm:"not null;index"`
	Capacity          int       `gorm:"not null"`
	RegistrationCount int       `gorm:"not null;default:0"`
	TicketType        string    `gorm:"not null;default:free"`
	TicketPrice       float64   `gorm:"not null;default:0"`
	StartDate         time.Time `gorm:"not null"`
	CreatedAt         time.Time `gorm:"index"`
}

func (eventRow) TableName() string { return "events" }

func (r eventRow) toModel() *model.Event {
	return &model.Event{
		ID:                r.ID,
		Title:             r.Title,
		Description:       r.Description,
		OrganizerID:       r.OrganizerID,
		Capacity:          r.Capacity,
		RegistrationCount: r.RegistrationCount,
		TicketType:        model.TicketType(r.TicketType),
		TicketPrice:       r.TicketPrice,
		StartDate:         r.StartDate,
		CreatedAt:         r.CreatedAt,
	}
}

type registrationRow struct {
	ID            string     `gorm:"primaryKey"`
	EventID       string     `gorm:"not null;index:idx_registrations_event;uniqueIndex:idx_registrations_active_event_user,where:status = 'confirmed'"`
	UserID        string     `gorm:"not null;index:idx_registrations_user_registered;uniqueIndex:idx_registrations_active_event_user,where:status = 'confirmed'"`
	AttendeeName  string     `gorm:"not null"`
	AttendeeEmail string     `gorm:"not null"`
	QRCode        string     `gorm:"column:qr_code;not null;uniqueIndex:idx_registrations_qr_code"`
	Status        string     `gorm:"not null"`
	CheckedIn     bool       `gorm:"not null;default:false"`
	RegisteredAt  time.Time  `gorm:"not null;index:idx_registrations_user_registered"`
	CheckedInAt   *time.Time
}

func (registrationRow) TableName() string { return "registrations" }

func (r registrationRow) toModel() *model.Registration {
	return &model.Registration{
		ID:            r.ID,
		EventID:       r.EventID,
		UserID:        r.UserID,
		AttendeeName:  r.AttendeeName,
		AttendeeEmail: r.AttendeeEmail,
		QRCode:        r.QRCode,
		Status:        model.RegistrationStatus(r.Status),
		CheckedIn:     r.CheckedIn,
		RegisteredAt:  r.RegisteredAt,
		CheckedInAt:   r.CheckedInAt,
	}
}

func toRegistrationRow(r *model.Registration) registrationRow {
	return registrationRow{
		ID:            r.ID,
		EventID:       r.EventID,
		UserID:        r.UserID,
		AttendeeName:  r.AttendeeName,
		AttendeeEmail: r.AttendeeEmail,
		QRCode:        r.QRCode,
		Status:        string(r.Status),
		CheckedIn:     r.CheckedIn,
		RegisteredAt:  r.RegisteredAt,
		CheckedInAt:   r.CheckedInAt,
	}
}

// SQLiteStore implements Store on gorm. It expects a database handle limited
// to one open connection, which serializes transactions: that is what makes
// the capacity check and increment atomic here, since SQLite has no row locks.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore migrates the schema and returns the store.
func NewSQLiteStore(db *gorm.DB) (*SQLiteStore, error) {
	if err := db.AutoMigrate(&eventRow{}, &registrationRow{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

func (s *SQLiteStore) CreateEvent(ctx context.Context, e *model.Event) error {
	e.RegistrationCount = 0
	row := eventRow{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		OrganizerID: e.OrganizerID,
		Capacity:    e.Capacity,
		TicketType:  string(e.TicketType),
		TicketPrice: e.TicketPrice,
		StartDate:   e.StartDate,
		CreatedAt:   e.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	return gormEvent(s.db.WithContext(ctx), id)
}

func (s *SQLiteStore) ListEvents(ctx context.Context) ([]model.Event, error) {
	var rows []eventRow
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	events := make([]model.Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, *r.toModel())
	}
	return events, nil
}

func (s *SQLiteStore) ListByUser(ctx context.Context, userID string) ([]model.RegistrationWithEvent, error) {
	var rows []registrationRow
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("registered_at DESC").Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list registrations by user: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	regs := registrationsFromRows(rows)

	var evRows []eventRow
	if err := s.db.WithContext(ctx).Where("id IN ?", eventIDs(regs)).Find(&evRows).Error; err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	events := make(map[string]*model.Event, len(evRows))
	for _, r := range evRows {
		events[r.ID] = r.toModel()
	}
	return joinEvents(regs, events), nil
}

func (s *SQLiteStore) ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	var rows []registrationRow
	if err := s.db.WithContext(ctx).Where("event_id = ?", eventID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return registrationsFromRows(rows), nil
}

func (s *SQLiteStore) FindForUser(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	var row registrationRow
	err := s.db.WithContext(ctx).
		Where("event_id = ? AND user_id = ?", eventID, userID).
		Order("CASE WHEN status = 'confirmed' THEN 0 ELSE 1 END").
		Order("registered_at DESC").
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &model.Error{Kind: model.KindNotFound, Message: "not registered for this event", EventID: eventID, UserID: userID}
		}
		return nil, fmt.Errorf("find registration: %w", err)
	}
	return row.toModel(), nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func registrationsFromRows(rows []registrationRow) []model.Registration {
	regs := make([]model.Registration, 0, len(rows))
	for _, r := range rows {
		regs = append(regs, *r.toModel())
	}
	return regs
}

func gormEvent(db *gorm.DB, id string) (*model.Event, error) {
	var row eventRow
	if err := db.Where("id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.EventNotFound(id)
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return row.toModel(), nil
}

// gormTx runs on the transaction handle. With the connection serialized
// there is nothing to lock, so Lock* are plain reads.
type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) LockEvent(ctx context.Context, id string) (*model.Event, error) {
	return gormEvent(t.db.WithContext(ctx), id)
}

func (t *gormTx) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	return gormEvent(t.db.WithContext(ctx), id)
}

func (t *gormTx) LockRegistration(ctx context.Context, id string) (*model.Registration, error) {
	var row registrationRow
	if err := t.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.RegistrationNotFound(id)
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return row.toModel(), nil
}

func (t *gormTx) LockRegistrationByQRCode(ctx context.Context, qrCode string) (*model.Registration, error) {
	var row registrationRow
	if err := t.db.WithContext(ctx).Where("qr_code = ?", qrCode).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &model.Error{Kind: model.KindNotFound, Message: "registration not found", QRCode: qrCode}
		}
		return nil, fmt.Errorf("get registration by qr code: %w", err)
	}
	return row.toModel(), nil
}

func (t *gormTx) ActiveRegistration(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	var row registrationRow
	err := t.db.WithContext(ctx).
		Where("event_id = ? AND user_id = ? AND status = ?", eventID, userID, model.StatusConfirmed).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &model.Error{Kind: model.KindNotFound, Message: "no active registration", EventID: eventID, UserID: userID}
		}
		return nil, fmt.Errorf("check duplicate: %w", err)
	}
	return row.toModel(), nil
}

func (t *gormTx) InsertRegistration(ctx context.Context, reg *model.Registration) error {
	row := toRegistrationRow(reg)
	err := t.db.WithContext(ctx).Create(&row).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("insert registration: %w", err)
	}
	// Two unique indexes can fire; look at which one.
	var n int64
	if cerr := t.db.WithContext(ctx).Model(&registrationRow{}).Where("qr_code = ?", reg.QRCode).Count(&n).Error; cerr != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	if n > 0 {
		return model.ErrQRCodeTaken
	}
	return model.AlreadyRegistered(reg.EventID, reg.UserID)
}

func (t *gormTx) SetStatus(ctx context.Context, id string, status model.RegistrationStatus) error {
	res := t.db.WithContext(ctx).Model(&registrationRow{}).Where("id = ?", id).Update("status", string(status))
	if res.Error != nil {
		return fmt.Errorf("update registration status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.RegistrationNotFound(id)
	}
	return nil
}

func (t *gormTx) MarkCheckedIn(ctx context.Context, id string, at time.Time) (bool, error) {
	res := t.db.WithContext(ctx).Model(&registrationRow{}).
		Where("id = ? AND checked_in = ?", id, false).
		Updates(map[string]any{"checked_in": true, "checked_in_at": at})
	if res.Error != nil {
		return false, fmt.Errorf("mark checked in: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (t *gormTx) IncrementRegistrationCount(ctx context.Context, eventID string) (bool, error) {
	res := t.db.WithContext(ctx).Model(&eventRow{}).
		Where("id = ? AND registration_count < capacity", eventID).
		UpdateColumn("registration_count", gorm.Expr("registration_count + 1"))
	if res.Error != nil {
		return false, fmt.Errorf("increment registration_count: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (t *gormTx) DecrementRegistrationCount(ctx context.Context, eventID string) error {
	res := t.db.WithContext(ctx).Model(&eventRow{}).
		Where("id = ? AND registration_count > 0", eventID).
		UpdateColumn("registration_count", gorm.Expr("registration_count - 1"))
	if res.Error != nil {
		return fmt.Errorf("decrement registration_count: %w", res.Error)
	}
	return nil
}

func (t *gormTx) CountByEvent(ctx context.Context, eventID string) (Counts, error) {
	var c Counts
	err := t.db.WithContext(ctx).Raw(
		`SELECT
		   COALESCE(SUM(CASE WHEN status = 'confirmed' THEN 1 ELSE 0 END), 0) AS confirmed,
		   COALESCE(SUM(CASE WHEN status = 'cancelled' THEN 1 ELSE 0 END), 0) AS cancelled,
		   COALESCE(SUM(CASE WHEN status = 'confirmed' AND checked_in THEN 1 ELSE 0 END), 0) AS checked_in
		 FROM registrations
		 WHERE event_id = ?`,
		eventID,
	).Row().Scan(&c.Confirmed, &c.Cancelled, &c.CheckedIn)
	if err != nil {
		return Counts{}, fmt.Errorf("count registrations: %w", err)
	}
	return c, nil
}
