package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpib-control/gpib-control-server/internal/models"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStoreFromDB(db), mock
}

var instrumentRowColumns = []string{
	"id", "created_at", "updated_at", "name", "type", "gpib_address", "description",
	"auto_connect", "measurement_type", "range", "resolution",
}

func TestCreateInstrumentAssignsIDAndDefaults(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO instruments").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "Bench DMM", "34465A", "GPIB0::22::INSTR",
			nil, true, "DC_VOLTAGE", "AUTO", "6.5").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	inst := &models.Instrument{
		Name:        "Bench DMM",
		Type:        "34465A",
		GPIBAddress: "GPIB0::22::INSTR",
		AutoConnect: true,
	}
	require.NoError(t, store.CreateInstrument(context.Background(), inst))

	assert.Equal(t, int64(7), inst.ID)
	assert.Equal(t, models.MeasurementDCVoltage, inst.MeasurementType)
	assert.Equal(t, "AUTO", inst.Range)
	assert.Equal(t, "6.5", inst.Resolution)
	assert.False(t, inst.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetInstrument(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	desc := "rack 2"

	mock.ExpectQuery("FROM instruments").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(instrumentRowColumns).
			AddRow(int64(3), now, now, "DMM", "34401A", "GPIB0::5::INSTR", desc, false, "RESISTANCE", "100", "5.5"))

	inst, err := store.GetInstrument(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), inst.ID)
	assert.Equal(t, "34401A", inst.Type)
	require.NotNil(t, inst.Description)
	assert.Equal(t, "rack 2", *inst.Description)
	assert.Equal(t, models.MeasurementResistance, inst.MeasurementType)
	assert.Equal(t, "100", inst.Range)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetInstrumentNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM instruments").
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows(instrumentRowColumns))

	_, err := store.GetInstrument(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateInstrumentNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE instruments SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateInstrument(context.Background(), &models.Instrument{ID: 9, Name: "gone"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteInstrumentInTransaction(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM measurements").WithArgs(int64(2)).WillReturnResult(sqlmock.NewResult(0, 12))
	mock.ExpectExec("DELETE FROM instruments").WithArgs(int64(2)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.DeleteMeasurements(ctx, 2))
	require.NoError(t, tx.DeleteInstrument(ctx, 2))
	require.NoError(t, tx.Commit())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListInstruments(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM instruments")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))
	mock.ExpectQuery("ORDER BY id").
		WithArgs(10, 0).
		WillReturnRows(sqlmock.NewRows(instrumentRowColumns).
			AddRow(int64(1), now, now, "A", "34401A", "GPIB0::1::INSTR", nil, false, "DC_VOLTAGE", "AUTO", "6.5").
			AddRow(int64(2), now, now, "B", "34465A", "GPIB0::2::INSTR", nil, true, "PERIOD", "AUTO", "7.5"))

	instruments, total, err := store.ListInstruments(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, instruments, 2)
	assert.Nil(t, instruments[0].Description)
	assert.True(t, instruments[1].AutoConnect)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveMeasurementAssignsID(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO measurements").
		WithArgs(sqlmock.AnyArg(), int64(7), 1.23456789, "Ω", sqlmock.AnyArg(), "RESISTANCE", "AUTO", "6.5", "Keysight 34465A").
		WillReturnResult(sqlmock.NewResult(0, 1))

	m := &models.Measurement{
		Value:           1.23456789,
		Unit:            "Ω",
		Timestamp:       time.Now().UTC(),
		InstrumentID:    7,
		MeasurementType: models.MeasurementResistance,
		Range:           "AUTO",
		Resolution:      "6.5",
		InstrumentType:  "Keysight 34465A",
	}
	require.NoError(t, store.SaveMeasurement(context.Background(), m))
	require.NotNil(t, m.ID)
	assert.NotEqual(t, uuid.Nil, *m.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListEventLogsBuildsFilters(t *testing.T) {
	store, mock := newMockStore(t)
	instrumentID := int64(3)
	eventType := models.EventTypeConnect

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM event_logs WHERE 1=1 AND instrument_id = $1 AND type = $2")).
		WithArgs(int64(3), "CONNECT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC LIMIT $3 OFFSET $4")).
		WithArgs(int64(3), "CONNECT", 20, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "instrument_id", "type", "level", "code", "description", "details"}).
			AddRow(uuid.New().String(), time.Now(), int64(3), "CONNECT", "INFO", "connected", "Instrument connected", []byte(`{"model":"HP34401A"}`)))

	events, total, err := store.ListEventLogs(context.Background(), EventLogFilters{
		InstrumentID: &instrumentID,
		Type:         &eventType,
	}, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventTypeConnect, events[0].Type)
	require.NotNil(t, events[0].InstrumentID)
	assert.Equal(t, int64(3), *events[0].InstrumentID)
	assert.Equal(t, "HP34401A", events[0].Details["model"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO users").
		WillReturnError(errors.New(`pq: duplicate key value violates unique constraint "users_email_key"`))

	err := store.CreateUser(context.Background(), &models.User{Email: "admin@lab.local", PasswordHash: "x"})
	assert.ErrorIs(t, err, ErrDuplicateKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateRunsEveryStatement(t *testing.T) {
	store, mock := newMockStore(t)

	for range schema {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, store.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
