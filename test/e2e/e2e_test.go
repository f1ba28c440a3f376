// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"admission-workers/internal/admission"
	"admission-workers/internal/admission/admissiontest"
	"admission-workers/internal/admission/store"
	"admission-workers/internal/common/config"
	"admission-workers/internal/common/database"
	"admission-workers/internal/common/errors"
	"admission-workers/internal/common/logger"
	"admission-workers/internal/models"
)

// The suite runs against the Postgres (and Redis, when configured) named by configs/config.yaml.
// Set ADMISSION_E2E=1 to enable it.

var (
	cfg    *config.Config
	pg     *database.PostgresClient
	rdb    *database.RedisClient
	zapLog *zap.Logger
)

func TestMain(m *testing.M) {
	if os.Getenv("ADMISSION_E2E") != "1" {
		fmt.Println("ADMISSION_E2E not set, skipping e2e suite")
		os.Exit(0)
	}

	var err error
	cfg, err = config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	pg, err = database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		panic(fmt.Sprintf("failed to connect to Postgres: %v", err))
	}
	if err := store.Migrate(context.Background(), pg.DB); err != nil {
		panic(fmt.Sprintf("failed to migrate: %v", err))
	}

	if cfg.Database.Redis.Address != "" {
		if rdb, err = database.NewRedis(cfg.Database.Redis); err != nil {
			rdb = nil
		}
	}

	zapLog, _ = zap.NewProduction()

	code := m.Run()

	if rdb != nil {
		_ = rdb.Close()
	}
	_ = pg.Close()
	os.Exit(code)
}

type env struct {
	gw       *admissiontest.StubGateway
	notifier *admissiontest.RecordingNotifier
	pipeline *admission.Pipeline
	drafts   *store.DraftRepository
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log := logger.NewZapAdapter(zapLog)

	var cache *store.DraftCache
	if rdb != nil {
		cache = store.NewDraftCache(rdb.Client, time.Minute, log)
	}

	e := &env{
		gw:       admissiontest.NewStubGateway("succeeded"),
		notifier: &admissiontest.RecordingNotifier{},
		drafts:   store.NewDraftRepository(pg.DB, cache),
	}
	e.pipeline = admission.NewPipeline(admission.Options{
		Drafts:        e.drafts,
		Ledger:        store.NewPaymentLedger(pg.DB),
		Admissions:    store.NewAdmissionRepository(pg.DB),
		Gateway:       e.gw,
		Notifier:      e.notifier,
		FallbackToken: "pm_card_visa",
		Logger:        log,
	})
	return e
}

func newApplicationID(t *testing.T) string {
	t.Helper()
	id := "E2E-" + uuid.NewString()
	t.Cleanup(func() { cleanup(pg.DB, id) })
	return id
}

func cleanup(db *sql.DB, applicationID string) {
	ctx := context.Background()
	for _, table := range []string{"admission_records", "payment_attempts", "application_drafts"} {
		_, _ = db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE application_id = $1", table), applicationID)
	}
}

func card(amount float64) *models.PaymentDetails {
	return &models.PaymentDetails{Method: "credit_card", Amount: amount, Currency: "USD"}
}

func TestFullE2E(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := newApplicationID(t)

	_, err := e.pipeline.StartApplication(ctx, id)
	require.NoError(t, err)

	_, err = e.pipeline.StartApplication(ctx, id)
	assert.True(t, errors.HasCode(err, errors.ErrCodeDraftAlreadyExists))

	_, err = e.pipeline.WriteSection(ctx, id, "personal", json.RawMessage(`{"name":"Ana","email":"ana@example.com"}`))
	require.NoError(t, err)
	_, err = e.pipeline.WriteSection(ctx, id, "choiceOfStudy", json.RawMessage(`[{"program":"CS"}]`))
	require.NoError(t, err)
	draft, err := e.pipeline.WriteSection(ctx, id, "personal", json.RawMessage(`{"name":"Ana Lima"}`))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"personal", "choiceOfStudy"}, draft.CompletedSteps)
	assert.JSONEq(t, `{"name":"Ana Lima"}`, string(draft.Sections["personal"]))

	_, err = e.pipeline.WriteSection(ctx, id, "hobbies", json.RawMessage(`{}`))
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidSection))

	res, err := e.pipeline.Finalize(ctx, admission.FinalizeRequest{ApplicationID: id, PaymentDetails: card(19.99)})
	require.NoError(t, err)
	assert.False(t, res.AlreadyFinalized)
	assert.Equal(t, admission.PathPayThenFinalize, res.Path)
	assert.JSONEq(t, `{"name":"Ana Lima"}`, string(res.Admission.Sections["personal"]))
	assert.Equal(t, int64(1999), e.gw.Requests()[0].AmountMinor)

	_, err = e.pipeline.GetApplication(ctx, id)
	assert.True(t, errors.HasCode(err, errors.ErrCodeDraftNotFound))

	again, err := e.pipeline.Finalize(ctx, admission.FinalizeRequest{ApplicationID: id})
	require.NoError(t, err)
	assert.True(t, again.AlreadyFinalized)
	assert.Equal(t, res.Admission.ID, again.Admission.ID)
	assert.Len(t, e.gw.Requests(), 1)
	assert.Equal(t, 1, e.notifier.Count())
}

func TestAlreadyPaidFinalize(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := newApplicationID(t)

	_, err := e.pipeline.StartApplication(ctx, id)
	require.NoError(t, err)

	e.gw.Status = "requires_payment_method"
	failed, err := e.pipeline.ProcessPayment(ctx, id, card(50))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, failed.Status)

	_, err = e.pipeline.Finalize(ctx, admission.FinalizeRequest{ApplicationID: id})
	assert.True(t, errors.HasCode(err, errors.ErrCodePaymentNotCompleted))

	e.gw.Status = "succeeded"
	paid, err := e.pipeline.ProcessPayment(ctx, id, card(50))
	require.NoError(t, err)

	res, err := e.pipeline.Finalize(ctx, admission.FinalizeRequest{ApplicationID: id, PaymentID: paid.PaymentID})
	require.NoError(t, err)
	assert.Equal(t, admission.PathAlreadyPaid, res.Path)
	assert.Equal(t, paid.PaymentID, res.Admission.PaymentID)
}

func TestConcurrentFinalizeCreatesOneAdmission(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := newApplicationID(t)

	_, err := e.pipeline.StartApplication(ctx, id)
	require.NoError(t, err)
	paid, err := e.pipeline.ProcessPayment(ctx, id, card(50))
	require.NoError(t, err)

	const workers = 6
	var wg sync.WaitGroup
	ids := make([]string, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := e.pipeline.Finalize(ctx, admission.FinalizeRequest{ApplicationID: id, PaymentID: paid.PaymentID})
			errs[i] = err
			if err == nil {
				ids[i] = res.Admission.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}

	var count int
	require.NoError(t, pg.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM admission_records WHERE application_id = $1", id).Scan(&count))
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, e.notifier.Count())
}

func TestReaperRemovesOnlyExpiredDrafts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	stale := newApplicationID(t)
	fresh := newApplicationID(t)

	_, err := e.pipeline.StartApplication(ctx, stale)
	require.NoError(t, err)
	_, err = e.pipeline.StartApplication(ctx, fresh)
	require.NoError(t, err)

	_, err = pg.DB.ExecContext(ctx,
		"UPDATE application_drafts SET created_at = NOW() - INTERVAL '25 hours' WHERE application_id = $1", stale)
	require.NoError(t, err)

	res, err := e.pipeline.Reaper.Reap(ctx)
	require.NoError(t, err)
	assert.Contains(t, res.Deleted, stale)
	assert.NotContains(t, res.Deleted, fresh)

	_, err = e.drafts.Load(ctx, fresh)
	assert.NoError(t, err)
}
