package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/gpib-control/gpib-control-server/internal/models"
)

// SaveMeasurement stores a copy of a reading. The measurement is given an id
// if it has none.
func (s *PostgresStore) SaveMeasurement(ctx context.Context, m *models.Measurement) error {
	if m.ID == nil {
		id := uuid.New()
		m.ID = &id
	}

	query := `
        INSERT INTO measurements (
            id, instrument_id, value, unit, taken_at, measurement_type,
            range, resolution, instrument_type
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.getDB().ExecContext(ctx, query,
		m.ID, m.InstrumentID, m.Value, m.Unit, m.Timestamp, m.MeasurementType,
		m.Range, m.Resolution, m.InstrumentType,
	)

	return err
}

// ListMeasurements lists stored readings of an instrument, newest first
func (s *PostgresStore) ListMeasurements(ctx context.Context, instrumentID int64, limit, offset int) ([]*models.Measurement, int64, error) {
	var count int64
	err := s.getDB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM measurements WHERE instrument_id = $1", instrumentID,
	).Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	query := `
        SELECT id, instrument_id, value, unit, taken_at, measurement_type,
               range, resolution, instrument_type
        FROM measurements
        WHERE instrument_id = $1
        ORDER BY taken_at DESC
        LIMIT $2 OFFSET $3`

	rows, err := s.getDB().QueryContext(ctx, query, instrumentID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	measurements := make([]*models.Measurement, 0)
	for rows.Next() {
		m := &models.Measurement{}
		err := rows.Scan(
			&m.ID, &m.InstrumentID, &m.Value, &m.Unit, &m.Timestamp,
			&m.MeasurementType, &m.Range, &m.Resolution, &m.InstrumentType,
		)
		if err != nil {
			return nil, 0, err
		}
		measurements = append(measurements, m)
	}

	return measurements, count, rows.Err()
}

// DeleteMeasurements removes every stored reading of an instrument
func (s *PostgresStore) DeleteMeasurements(ctx context.Context, instrumentID int64) error {
	_, err := s.getDB().ExecContext(ctx, "DELETE FROM measurements WHERE instrument_id = $1", instrumentID)
	return err
}
