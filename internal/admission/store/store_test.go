package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	commonerrors "admission-workers/internal/common/errors"
	"admission-workers/internal/common/logger"
	"admission-workers/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

var fixedNow = time.Date(2024, 9, 1, 10, 0, 0, 0, time.UTC)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()}), mr
}

func newDraftRepo(db *sql.DB, cache *DraftCache) *DraftRepository {
	repo := NewDraftRepository(db, cache)
	repo.now = func() time.Time { return fixedNow }
	return repo
}

func draftRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"application_id", "sections", "completed_steps", "created_at", "updated_at"})
}

// ==========================
// Draft Repository Tests
// ==========================

func TestDraftRepository_Create(t *testing.T) {
	db, mock := setupMockDB(t)
	client, mr := setupRedis(t)
	repo := newDraftRepo(db, NewDraftCache(client, time.Minute, logger.NewNoOpLogger()))

	mock.ExpectExec(`INSERT INTO application_drafts`).
		WithArgs("APP-1", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	draft, err := repo.Create(context.Background(), "APP-1")

	require.NoError(t, err)
	assert.Equal(t, "APP-1", draft.ApplicationID)
	assert.Empty(t, draft.Sections)
	assert.Empty(t, draft.CompletedSteps)
	assert.Equal(t, fixedNow, draft.CreatedAt)
	assert.NotEmpty(t, mr.HGet("admission:draft:APP-1", fieldData))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDraftRepository_Create_Conflicts(t *testing.T) {
	tests := []struct {
		name   string
		expect func(sqlmock.Sqlmock)
	}{
		{
			name: "draft already exists",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectExec(`INSERT INTO application_drafts`).
					WithArgs("APP-1", fixedNow).
					WillReturnError(&pq.Error{Code: "23505"})
			},
		},
		{
			name: "admission already exists",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectExec(`INSERT INTO application_drafts`).
					WithArgs("APP-1", fixedNow).
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := setupMockDB(t)
			repo := newDraftRepo(db, nil)
			tt.expect(mock)

			draft, err := repo.Create(context.Background(), "APP-1")

			assert.Nil(t, draft)
			assert.True(t, commonerrors.HasCode(err, commonerrors.ErrCodeDraftAlreadyExists))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestDraftRepository_Create_DatabaseError(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := newDraftRepo(db, nil)

	mock.ExpectExec(`INSERT INTO application_drafts`).WillReturnError(errors.New("connection reset"))

	_, err := repo.Create(context.Background(), "APP-1")

	stdErr := commonerrors.AsStandard(err)
	assert.Equal(t, commonerrors.ErrCodeDatabaseInsertFailed, stdErr.Code)
	assert.True(t, stdErr.Retryable)
}

func TestDraftRepository_Get_CacheMissThenHit(t *testing.T) {
	db, mock := setupMockDB(t)
	client, _ := setupRedis(t)
	repo := newDraftRepo(db, NewDraftCache(client, time.Minute, logger.NewNoOpLogger()))

	mock.ExpectQuery(`SELECT application_id, sections, completed_steps, created_at, updated_at FROM application_drafts`).
		WithArgs("APP-1").
		WillReturnRows(draftRows().AddRow("APP-1", []byte(`{"personal":{"name":"Ana"}}`), "{personal}", fixedNow, fixedNow))

	first, err := repo.Get(context.Background(), "APP-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Ana"}`, string(first.Sections["personal"]))
	assert.Equal(t, []string{"personal"}, first.CompletedSteps)

	// second read is served from redis; sqlmock would fail on an unexpected query
	second, err := repo.Get(context.Background(), "APP-1")
	require.NoError(t, err)
	assert.Equal(t, first.ApplicationID, second.ApplicationID)
	assert.JSONEq(t, string(first.Sections["personal"]), string(second.Sections["personal"]))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDraftRepository_Get_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := newDraftRepo(db, nil)

	mock.ExpectQuery(`SELECT .+ FROM application_drafts`).
		WithArgs("APP-404").
		WillReturnError(sql.ErrNoRows)

	draft, err := repo.Get(context.Background(), "APP-404")

	assert.Nil(t, draft)
	assert.True(t, commonerrors.HasCode(err, commonerrors.ErrCodeDraftNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDraftRepository_WriteSection(t *testing.T) {
	db, mock := setupMockDB(t)
	client, mr := setupRedis(t)
	repo := newDraftRepo(db, NewDraftCache(client, time.Minute, logger.NewNoOpLogger()))

	payload := json.RawMessage(`{"agreed":true}`)
	mock.ExpectQuery(`UPDATE application_drafts`).
		WithArgs("APP-1", "declaration", `{"agreed":true}`, fixedNow).
		WillReturnRows(draftRows().AddRow("APP-1", []byte(`{"declaration":{"agreed":true}}`),
			"{personal,declaration}", fixedNow.Add(-time.Hour), fixedNow))

	draft, err := repo.WriteSection(context.Background(), "APP-1", models.SectionDeclaration, payload)

	require.NoError(t, err)
	assert.Equal(t, []string{"personal", "declaration"}, draft.CompletedSteps)
	assert.Equal(t, fixedNow, draft.UpdatedAt)

	assert.Contains(t, mr.HGet("admission:draft:APP-1", fieldData), "declaration")
	assert.Equal(t, strconv.FormatInt(fixedNow.UnixMicro(), 10), mr.HGet("admission:draft:APP-1", fieldVer))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDraftRepository_WriteSection_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := newDraftRepo(db, nil)

	mock.ExpectQuery(`UPDATE application_drafts`).WillReturnRows(draftRows())

	_, err := repo.WriteSection(context.Background(), "APP-404", models.SectionPersonal, json.RawMessage(`{}`))

	assert.True(t, commonerrors.HasCode(err, commonerrors.ErrCodeDraftNotFound))
}

func TestDraftRepository_Delete_IsIdempotent(t *testing.T) {
	db, mock := setupMockDB(t)
	client, mr := setupRedis(t)
	repo := newDraftRepo(db, NewDraftCache(client, time.Minute, logger.NewNoOpLogger()))
	mr.HSet("admission:draft:APP-1", fieldData, `{}`)

	mock.ExpectExec(`DELETE FROM application_drafts WHERE application_id`).
		WithArgs("APP-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM application_drafts WHERE application_id`).
		WithArgs("APP-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := repo.Delete(context.Background(), "APP-1")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Empty(t, mr.HGet("admission:draft:APP-1", fieldData))
	assert.Equal(t, "1", mr.HGet("admission:draft:APP-1", fieldTomb))

	deleted, err = repo.Delete(context.Background(), "APP-1")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDraftRepository_GetRacingDelete(t *testing.T) {
	db, mock := setupMockDB(t)
	client, _ := setupRedis(t)
	repo := newDraftRepo(db, NewDraftCache(client, time.Minute, logger.NewNoOpLogger()))
	ctx := context.Background()

	// the reader's SELECT sees the row but returns only after the delete has committed
	mock.MatchExpectationsInOrder(false)
	mock.ExpectQuery(`SELECT .+ FROM application_drafts`).
		WithArgs("APP-1").
		WillDelayFor(200 * time.Millisecond).
		WillReturnRows(draftRows().AddRow("APP-1", []byte(`{"personal":{"name":"Ana"}}`), "{personal}", fixedNow, fixedNow))
	mock.ExpectExec(`DELETE FROM application_drafts WHERE application_id`).
		WithArgs("APP-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	readerDone := make(chan error, 1)
	go func() {
		_, err := repo.Get(ctx, "APP-1")
		readerDone <- err
	}()

	time.Sleep(50 * time.Millisecond)
	deleted, err := repo.Delete(ctx, "APP-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	require.NoError(t, <-readerDone, "the in-flight read still returns what it saw")

	// the stale snapshot must not be served from the cache
	mock.ExpectQuery(`SELECT .+ FROM application_drafts`).
		WithArgs("APP-1").
		WillReturnError(sql.ErrNoRows)

	_, err = repo.Get(ctx, "APP-1")
	assert.True(t, commonerrors.HasCode(err, commonerrors.ErrCodeDraftNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDraftRepository_Delete_RowsAffectedUnknown(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := newDraftRepo(db, nil)

	mock.ExpectExec(`DELETE FROM application_drafts WHERE application_id`).
		WithArgs("APP-1").
		WillReturnResult(sqlmock.NewErrorResult(errors.New("driver does not report row counts")))

	deleted, err := repo.Delete(context.Background(), "APP-1")

	assert.NoError(t, err, "the delete itself succeeded")
	assert.False(t, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDraftRepository_DeleteCreatedBefore(t *testing.T) {
	db, mock := setupMockDB(t)
	client, mr := setupRedis(t)
	repo := newDraftRepo(db, NewDraftCache(client, time.Minute, logger.NewNoOpLogger()))
	mr.HSet("admission:draft:OLD-1", fieldData, `{}`)
	mr.HSet("admission:draft:FRESH", fieldData, `{}`)

	cutoff := fixedNow.Add(-24 * time.Hour)
	mock.ExpectQuery(`DELETE FROM application_drafts WHERE created_at < \$1 RETURNING application_id`).
		WithArgs(cutoff).
		WillReturnRows(sqlmock.NewRows([]string{"application_id"}).AddRow("OLD-1").AddRow("OLD-2"))

	ids, err := repo.DeleteCreatedBefore(context.Background(), cutoff)

	require.NoError(t, err)
	assert.Equal(t, []string{"OLD-1", "OLD-2"}, ids)
	assert.Empty(t, mr.HGet("admission:draft:OLD-1", fieldData))
	assert.Equal(t, "1", mr.HGet("admission:draft:OLD-2", fieldTomb))
	assert.Equal(t, `{}`, mr.HGet("admission:draft:FRESH", fieldData))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDraftRepository_FindWithAdmission(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := newDraftRepo(db, nil)

	mock.ExpectQuery(`JOIN admission_records`).
		WillReturnRows(sqlmock.NewRows([]string{"application_id"}).AddRow("APP-9"))

	ids, err := repo.FindWithAdmission(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"APP-9"}, ids)
}

// ==========================
// Draft Cache Tests
// ==========================

func TestDraftCache_DisabledIsNil(t *testing.T) {
	client, _ := setupRedis(t)
	assert.Nil(t, NewDraftCache(client, 0, logger.NewNoOpLogger()))
	assert.Nil(t, NewDraftCache(nil, time.Minute, logger.NewNoOpLogger()))

	var cache *DraftCache
	_, ok := cache.Get(context.Background(), "APP-1")
	assert.False(t, ok)
	assert.NotPanics(t, func() {
		cache.Set(context.Background(), models.NewApplicationDraft("APP-1", fixedNow))
		cache.Evict(context.Background(), "APP-1")
	})
}

func TestDraftCache_SetUsesTTL(t *testing.T) {
	client, mr := setupRedis(t)
	cache := NewDraftCache(client, 10*time.Minute, logger.NewNoOpLogger())

	cache.Set(context.Background(), models.NewApplicationDraft("APP-1", fixedNow))

	assert.Equal(t, 10*time.Minute, mr.TTL("admission:draft:APP-1"))
	got, ok := cache.Get(context.Background(), "APP-1")
	require.True(t, ok)
	assert.Equal(t, "APP-1", got.ApplicationID)
}

func TestDraftCache_ReadErrorIsMiss(t *testing.T) {
	client, redisMock := redismock.NewClientMock()
	cache := NewDraftCache(client, time.Minute, logger.NewNoOpLogger())

	redisMock.ExpectHGet("admission:draft:APP-1", "data").SetErr(errors.New("i/o timeout"))

	_, ok := cache.Get(context.Background(), "APP-1")
	assert.False(t, ok)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestDraftCache_OlderSnapshotDoesNotOverwriteNewer(t *testing.T) {
	client, _ := setupRedis(t)
	cache := NewDraftCache(client, time.Minute, logger.NewNoOpLogger())
	ctx := context.Background()

	newer := models.NewApplicationDraft("APP-1", fixedNow)
	newer.UpdatedAt = fixedNow.Add(time.Second)
	newer.Sections["personal"] = json.RawMessage(`{"name":"Ana Lima"}`)
	cache.Set(ctx, newer)

	older := models.NewApplicationDraft("APP-1", fixedNow)
	older.Sections["personal"] = json.RawMessage(`{"name":"Ana"}`)
	cache.Set(ctx, older)

	got, ok := cache.Get(ctx, "APP-1")
	require.True(t, ok)
	assert.JSONEq(t, `{"name":"Ana Lima"}`, string(got.Sections["personal"]))
}

func TestDraftCache_EvictedDraftIsNotRecached(t *testing.T) {
	client, mr := setupRedis(t)
	cache := NewDraftCache(client, time.Minute, logger.NewNoOpLogger())
	ctx := context.Background()

	snapshot := models.NewApplicationDraft("APP-1", fixedNow)
	cache.Set(ctx, snapshot)
	cache.Evict(ctx, "APP-1")

	// a reader that loaded the row before the delete finishes its write-back late
	cache.Set(ctx, snapshot)

	_, ok := cache.Get(ctx, "APP-1")
	assert.False(t, ok)
	assert.Equal(t, time.Minute, mr.TTL("admission:draft:APP-1"), "tombstone expires with the cache ttl")

	mr.FastForward(time.Minute + time.Second)
	cache.Set(ctx, snapshot)
	_, ok = cache.Get(ctx, "APP-1")
	assert.True(t, ok, "caching resumes once the tombstone expires")
}

func TestDraftCache_CorruptEntryIsMiss(t *testing.T) {
	client, mr := setupRedis(t)
	cache := NewDraftCache(client, time.Minute, logger.NewNoOpLogger())
	mr.HSet("admission:draft:APP-1", fieldData, `not json`)

	_, ok := cache.Get(context.Background(), "APP-1")
	assert.False(t, ok)
}

// ==========================
// Payment Ledger Tests
// ==========================

func paymentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "application_id", "method", "amount", "amount_minor", "currency",
		"gateway_reference", "status", "message", "created_at"})
}

func TestPaymentLedger_Insert(t *testing.T) {
	db, mock := setupMockDB(t)
	ledger := NewPaymentLedger(db)

	attempt := &models.PaymentAttempt{
		ID: "8f14e45f-ceea-4e2b-9d7a-1f2e3d4c5b6a", ApplicationID: "APP-3", Method: "card",
		Amount: 50, AmountMinor: 5000, Currency: "USD", GatewayReference: "pi_3",
		Status: models.PaymentStatusPending, Message: "Payment is processing", CreatedAt: fixedNow,
	}
	mock.ExpectExec(`INSERT INTO payment_attempts`).
		WithArgs(attempt.ID, "APP-3", "card", 50.0, int64(5000), "USD", "pi_3", "PENDING", "Payment is processing", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, ledger.Insert(context.Background(), attempt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentLedger_Get(t *testing.T) {
	db, mock := setupMockDB(t)
	ledger := NewPaymentLedger(db)

	mock.ExpectQuery(`FROM payment_attempts WHERE id = \$1 AND application_id = \$2`).
		WithArgs("pay-1", "APP-1").
		WillReturnRows(paymentRows().AddRow("pay-1", "APP-1", "card", "50.00", 5000, "USD", "pi_1", "COMPLETED", "", fixedNow))

	p, err := ledger.Get(context.Background(), "APP-1", "pay-1")

	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, p.Status)
	assert.Equal(t, 50.0, p.Amount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentLedger_Latest_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	ledger := NewPaymentLedger(db)

	mock.ExpectQuery(`ORDER BY created_at DESC`).
		WithArgs("APP-1").
		WillReturnRows(paymentRows())

	_, err := ledger.Latest(context.Background(), "APP-1")

	assert.True(t, commonerrors.HasCode(err, commonerrors.ErrCodePaymentNotFound))
}

// ==========================
// Admission Repository Tests
// ==========================

func TestAdmissionRepository_InsertIfAbsent(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"inserted", 1, true},
		{"conflict", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := setupMockDB(t)
			repo := NewAdmissionRepository(db)

			rec := &models.AdmissionRecord{
				ID: "adm-1", ApplicationID: "APP-1", PaymentID: "pay-1", CreatedAt: fixedNow,
				Sections: map[string]json.RawMessage{"personal": json.RawMessage(`{"name":"Ana"}`)},
			}
			mock.ExpectExec(`ON CONFLICT \(application_id\) DO NOTHING`).
				WithArgs("APP-1", "adm-1", []byte(`{"personal":{"name":"Ana"}}`), "pay-1", fixedNow).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			inserted, err := repo.InsertIfAbsent(context.Background(), rec)

			require.NoError(t, err)
			assert.Equal(t, tt.want, inserted)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAdmissionRepository_Find(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewAdmissionRepository(db)

	cols := []string{"id", "application_id", "sections", "payment_id", "created_at"}
	mock.ExpectQuery(`FROM admission_records WHERE application_id`).
		WithArgs("APP-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("adm-1", "APP-1", []byte(`{"personal":{"name":"Ana"}}`), "pay-1", fixedNow))
	mock.ExpectQuery(`FROM admission_records WHERE application_id`).
		WithArgs("APP-2").
		WillReturnRows(sqlmock.NewRows(cols))

	rec, found, err := repo.Find(context.Background(), "APP-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "pay-1", rec.PaymentID)
	assert.JSONEq(t, `{"name":"Ana"}`, string(rec.Sections["personal"]))

	rec, found, err = repo.Find(context.Background(), "APP-2")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS application_drafts`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}
