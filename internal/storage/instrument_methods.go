package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/gpib-control/gpib-control-server/internal/models"
)

// ========== Instrument Methods ==========

const instrumentColumns = `id, created_at, updated_at, name, type, gpib_address, description,
               auto_connect, measurement_type, range, resolution`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInstrument(row rowScanner) (*models.Instrument, error) {
	inst := &models.Instrument{}
	err := row.Scan(
		&inst.ID, &inst.CreatedAt, &inst.UpdatedAt, &inst.Name, &inst.Type,
		&inst.GPIBAddress, &inst.Description, &inst.AutoConnect,
		&inst.MeasurementType, &inst.Range, &inst.Resolution,
	)
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// CreateInstrument creates a new instrument and assigns its id
func (s *PostgresStore) CreateInstrument(ctx context.Context, inst *models.Instrument) error {
	inst.ApplyDefaults()

	now := time.Now().UTC()
	inst.CreatedAt = now
	inst.UpdatedAt = now

	query := `
        INSERT INTO instruments (
            created_at, updated_at, name, type, gpib_address, description,
            auto_connect, measurement_type, range, resolution
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING id`

	err := s.getDB().QueryRowContext(ctx, query,
		inst.CreatedAt, inst.UpdatedAt, inst.Name, inst.Type, inst.GPIBAddress,
		inst.Description, inst.AutoConnect, inst.MeasurementType, inst.Range,
		inst.Resolution,
	).Scan(&inst.ID)

	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicateKey
		}
		return err
	}

	return nil
}

// GetInstrument gets an instrument by id
func (s *PostgresStore) GetInstrument(ctx context.Context, id int64) (*models.Instrument, error) {
	query := `
        SELECT ` + instrumentColumns + `
        FROM instruments
        WHERE id = $1`

	inst, err := scanInstrument(s.getDB().QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return inst, nil
}

// UpdateInstrument updates an instrument
func (s *PostgresStore) UpdateInstrument(ctx context.Context, inst *models.Instrument) error {
	inst.UpdatedAt = time.Now().UTC()

	query := `
        UPDATE instruments SET
            updated_at = $2, name = $3, type = $4, gpib_address = $5,
            description = $6, auto_connect = $7, measurement_type = $8,
            range = $9, resolution = $10
        WHERE id = $1`

	return s.execAffecting(ctx, query,
		inst.ID, inst.UpdatedAt, inst.Name, inst.Type, inst.GPIBAddress,
		inst.Description, inst.AutoConnect, inst.MeasurementType, inst.Range,
		inst.Resolution,
	)
}

// DeleteInstrument deletes an instrument
func (s *PostgresStore) DeleteInstrument(ctx context.Context, id int64) error {
	return s.execAffecting(ctx, "DELETE FROM instruments WHERE id = $1", id)
}

// ListInstruments lists instruments ordered by id
func (s *PostgresStore) ListInstruments(ctx context.Context, limit, offset int) ([]*models.Instrument, int64, error) {
	var count int64
	if err := s.getDB().QueryRowContext(ctx, "SELECT COUNT(*) FROM instruments").Scan(&count); err != nil {
		return nil, 0, err
	}

	query := `
        SELECT ` + instrumentColumns + `
        FROM instruments
        ORDER BY id
        LIMIT $1 OFFSET $2`

	instruments, err := s.queryInstruments(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	return instruments, count, nil
}

// ListAutoConnectInstruments lists instruments flagged for connection at startup
func (s *PostgresStore) ListAutoConnectInstruments(ctx context.Context) ([]*models.Instrument, error) {
	query := `
        SELECT ` + instrumentColumns + `
        FROM instruments
        WHERE auto_connect = true
        ORDER BY id`

	return s.queryInstruments(ctx, query)
}

func (s *PostgresStore) queryInstruments(ctx context.Context, query string, args ...interface{}) ([]*models.Instrument, error) {
	rows, err := s.getDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	instruments := make([]*models.Instrument, 0)
	for rows.Next() {
		inst, err := scanInstrument(rows)
		if err != nil {
			return nil, err
		}
		instruments = append(instruments, inst)
	}

	return instruments, rows.Err()
}
