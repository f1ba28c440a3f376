package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"admission-workers/internal/common/database"
	"admission-workers/internal/common/errors"
	"admission-workers/internal/models"

	"github.com/lib/pq"
)

const draftColumns = `application_id, sections, completed_steps, created_at, updated_at`

// DraftRepository stores one mutable draft per application id.
type DraftRepository struct {
	db    *sql.DB
	cache *DraftCache
	now   func() time.Time
}

func NewDraftRepository(db *sql.DB, cache *DraftCache) *DraftRepository {
	return &DraftRepository{
		db:    db,
		cache: cache,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts an empty draft. It fails with DRAFT_ALREADY_EXISTS when a draft or an
// admission record already exists for the id.
func (r *DraftRepository) Create(ctx context.Context, applicationID string) (*models.ApplicationDraft, error) {
	now := r.now()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO application_drafts (application_id, sections, completed_steps, created_at, updated_at)
		SELECT $1, '{}'::jsonb, '{}'::text[], $2, $2
		WHERE NOT EXISTS (SELECT 1 FROM admission_records WHERE application_id = $1)`,
		applicationID, now,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, errors.NewDraftAlreadyExistsError(applicationID)
		}
		return nil, errors.NewDatabaseInsertFailedError("application_draft", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("create draft", err)
	}
	if n == 0 {
		// an admission record already exists for this id
		return nil, errors.NewDraftAlreadyExistsError(applicationID)
	}

	draft := models.NewApplicationDraft(applicationID, now)
	r.cache.Set(ctx, draft)
	return draft, nil
}

// Get returns the draft, serving from the cache when possible.
func (r *DraftRepository) Get(ctx context.Context, applicationID string) (*models.ApplicationDraft, error) {
	if draft, ok := r.cache.Get(ctx, applicationID); ok {
		return draft, nil
	}

	draft, err := r.Load(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	r.cache.Set(ctx, draft)
	return draft, nil
}

// Load reads the draft from Postgres, bypassing the cache.
func (r *DraftRepository) Load(ctx context.Context, applicationID string) (*models.ApplicationDraft, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+draftColumns+` FROM application_drafts WHERE application_id = $1`,
		applicationID,
	)
	draft, err := scanDraft(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewDraftNotFoundError(applicationID)
	}
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("get draft", err)
	}
	return draft, nil
}

// Delete removes the draft. Deleting an absent draft is not an error; the bool reports
// whether a row was removed.
func (r *DraftRepository) Delete(ctx context.Context, applicationID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM application_drafts WHERE application_id = $1`, applicationID)
	if err != nil {
		return false, errors.NewQueryExecutionFailedError("delete draft", err)
	}
	r.cache.Evict(ctx, applicationID)

	n, err := res.RowsAffected()
	if err != nil {
		// The statement succeeded, so the draft is gone either way; only the count is unknown.
		return false, nil
	}
	return n > 0, nil
}

// WriteSection replaces one section wholesale and records it in completed_steps, in a single
// statement so concurrent writers never lose the completed flag.
func (r *DraftRepository) WriteSection(ctx context.Context, applicationID string, section models.Section, payload json.RawMessage) (*models.ApplicationDraft, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE application_drafts
		SET sections = jsonb_set(sections, ARRAY[$2::text], $3::jsonb, true),
		    completed_steps = CASE
		        WHEN $2::text = ANY(completed_steps) THEN completed_steps
		        ELSE array_append(completed_steps, $2::text)
		    END,
		    updated_at = $4
		WHERE application_id = $1
		RETURNING `+draftColumns,
		applicationID, string(section), string(payload), r.now(),
	)

	draft, err := scanDraft(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewDraftNotFoundError(applicationID)
	}
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("write section", err)
	}

	r.cache.Set(ctx, draft)
	return draft, nil
}

// DeleteCreatedBefore bulk deletes every draft created before cutoff, regardless of progress,
// and returns the deleted ids.
func (r *DraftRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`DELETE FROM application_drafts WHERE created_at < $1 RETURNING application_id`, cutoff)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("reap drafts", err)
	}
	ids, err := scanIDs(rows)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("reap drafts", err)
	}

	r.cache.Evict(ctx, ids...)
	return ids, nil
}

// FindWithAdmission lists ids that have both a draft and an admission record.
func (r *DraftRepository) FindWithAdmission(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT d.application_id
		FROM application_drafts d
		JOIN admission_records a ON a.application_id = d.application_id
		ORDER BY d.application_id`)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("find stale drafts", err)
	}
	ids, err := scanIDs(rows)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("find stale drafts", err)
	}
	return ids, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDraft(row rowScanner) (*models.ApplicationDraft, error) {
	var (
		draft    models.ApplicationDraft
		sections []byte
		steps    pq.StringArray
	)
	if err := row.Scan(&draft.ApplicationID, &sections, &steps, &draft.CreatedAt, &draft.UpdatedAt); err != nil {
		return nil, err
	}

	draft.Sections = map[string]json.RawMessage{}
	if len(sections) > 0 {
		if err := json.Unmarshal(sections, &draft.Sections); err != nil {
			return nil, fmt.Errorf("decode sections: %w", err)
		}
	}
	draft.CompletedSteps = []string(steps)
	if draft.CompletedSteps == nil {
		draft.CompletedSteps = []string{}
	}
	return &draft, nil
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
