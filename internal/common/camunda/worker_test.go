package camunda

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "admission-workers/internal/common/errors"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/stretchr/testify/assert"
)

type recorder struct {
	processed []string
	durations int
}

func (r *recorder) RecordJobProcessed(_ context.Context, taskType, status string) {
	r.processed = append(r.processed, taskType+":"+status)
}

func (r *recorder) RecordJobDuration(_ context.Context, _ string, _ time.Duration, _ string) {
	r.durations++
}

func TestInstrument_CallsHandlerAndRecords(t *testing.T) {
	rec := &recorder{}
	called := false
	wrapped := Instrument("admission-test", func(client worker.JobClient, job entities.Job) {
		called = true
		assert.Equal(t, int64(42), job.Key)
	}, rec)

	wrapped(nil, entities.Job{ActivatedJob: &pb.ActivatedJob{Key: 42}})

	assert.True(t, called)
	assert.Equal(t, []string{"admission-test:handled"}, rec.processed)
	assert.Equal(t, 1, rec.durations)
}

func TestInstrument_NilRecorder(t *testing.T) {
	wrapped := Instrument("admission-test", func(worker.JobClient, entities.Job) {}, nil)
	assert.NotPanics(t, func() {
		wrapped(nil, entities.Job{ActivatedJob: &pb.ActivatedJob{Key: 1}})
	})
}

func TestIsRetryableZeebeError(t *testing.T) {
	tests := []struct {
		err  string
		want bool
	}{
		{"rpc error: code = Unavailable desc = connection refused", true},
		{"context deadline exceeded", true},
		{"rpc error: code = PermissionDenied", false},
		{"invalid gateway address", false},
	}
	for _, tt := range tests {
		t.Run(tt.err, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableZeebeError(errors.New(tt.err)))
		})
	}
}

func TestBackoff_CapsAtMaxDelay(t *testing.T) {
	rc := &RetryConfig{BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Second, backoff(rc, 0))
	assert.Equal(t, 4*time.Second, backoff(rc, 2))
	assert.Equal(t, 5*time.Second, backoff(rc, 3))
	assert.Equal(t, 5*time.Second, backoff(rc, 30))
}

func TestDecodeVariables(t *testing.T) {
	var v struct {
		ApplicationID string `json:"applicationId"`
	}
	job := entities.Job{ActivatedJob: &pb.ActivatedJob{Variables: `{"applicationId":"APP-1"}`}}
	assert.NoError(t, DecodeVariables(job, &v))
	assert.Equal(t, "APP-1", v.ApplicationID)

	bad := entities.Job{ActivatedJob: &pb.ActivatedJob{Variables: `{"applicationId":`}}
	err := DecodeVariables(bad, &v)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))
}
