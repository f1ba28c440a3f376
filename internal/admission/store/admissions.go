package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"admission-workers/internal/common/errors"
	"admission-workers/internal/models"
)

// AdmissionRepository stores finalized admission records. Records are never updated or deleted.
type AdmissionRepository struct {
	db *sql.DB
}

func NewAdmissionRepository(db *sql.DB) *AdmissionRepository {
	return &AdmissionRepository{db: db}
}

// Find returns the admission record for the application, if any.
func (r *AdmissionRepository) Find(ctx context.Context, applicationID string) (*models.AdmissionRecord, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, application_id, sections, payment_id, created_at
		FROM admission_records WHERE application_id = $1`,
		applicationID,
	)

	var (
		rec      models.AdmissionRecord
		sections []byte
	)
	err := row.Scan(&rec.ID, &rec.ApplicationID, &sections, &rec.PaymentID, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.NewQueryExecutionFailedError("get admission", err)
	}
	if err := json.Unmarshal(sections, &rec.Sections); err != nil {
		return nil, false, errors.NewQueryExecutionFailedError("get admission", fmt.Errorf("decode sections: %w", err))
	}
	return &rec, true, nil
}

// InsertIfAbsent writes the record unless one already exists for the application id. The
// primary key makes this the single serialization point for concurrent finalize calls.
func (r *AdmissionRepository) InsertIfAbsent(ctx context.Context, rec *models.AdmissionRecord) (bool, error) {
	sections, err := json.Marshal(rec.Sections)
	if err != nil {
		return false, errors.NewDatabaseInsertFailedError("admission_record", err)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO admission_records (application_id, id, sections, payment_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (application_id) DO NOTHING`,
		rec.ApplicationID, rec.ID, sections, rec.PaymentID, rec.CreatedAt,
	)
	if err != nil {
		return false, errors.NewDatabaseInsertFailedError("admission_record", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.NewDatabaseInsertFailedError("admission_record", err)
	}
	return n == 1, nil
}
