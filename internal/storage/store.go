package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/gpib-control/gpib-control-server/internal/models"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrInvalidData  = errors.New("invalid data")
)

// Store defines the storage interface
type Store interface {
	// Transaction support
	BeginTx(ctx context.Context) (Store, error)
	Commit() error
	Rollback() error

	// Instrument methods
	CreateInstrument(ctx context.Context, inst *models.Instrument) error
	GetInstrument(ctx context.Context, id int64) (*models.Instrument, error)
	UpdateInstrument(ctx context.Context, inst *models.Instrument) error
	DeleteInstrument(ctx context.Context, id int64) error
	ListInstruments(ctx context.Context, limit, offset int) ([]*models.Instrument, int64, error)
	ListAutoConnectInstruments(ctx context.Context) ([]*models.Instrument, error)

	// Measurement methods
	SaveMeasurement(ctx context.Context, m *models.Measurement) error
	ListMeasurements(ctx context.Context, instrumentID int64, limit, offset int) ([]*models.Measurement, int64, error)
	DeleteMeasurements(ctx context.Context, instrumentID int64) error

	// Event log methods
	CreateEventLog(ctx context.Context, event *models.EventLog) error
	ListEventLogs(ctx context.Context, filters EventLogFilters, limit, offset int) ([]*models.EventLog, int64, error)

	// User methods
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	TouchUserLogin(ctx context.Context, id uuid.UUID, at time.Time) error

	// Ping checks the database connection
	Ping(ctx context.Context) error

	// Close the store
	Close() error
}

// EventLogFilters represents filters for event logs
type EventLogFilters struct {
	InstrumentID *int64
	Type         *models.EventType
	Level        *models.EventLevel
	StartTime    *time.Time
	EndTime      *time.Time
}
