package writesection

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"admission-workers/internal/admission"
	"admission-workers/internal/admission/admissiontest"
	"admission-workers/internal/common/camunda"
	"admission-workers/internal/common/errors"
	"admission-workers/internal/common/logger"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createMockJob(variables string) entities.Job {
	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:                1,
		Type:               TaskType,
		ProcessInstanceKey: 10,
		Retries:            3,
		Variables:          variables,
	}}
}

func newHandler(t *testing.T) (*Handler, *admission.Pipeline) {
	mem := admissiontest.NewMemory()
	pipeline := admission.NewPipeline(admission.Options{
		Drafts:     mem.Drafts(),
		Ledger:     mem.Ledger(),
		Admissions: mem.Admissions(),
		Gateway:    admissiontest.NewStubGateway("succeeded"),
		Logger:     logger.NewTestLogger(t),
	})
	return NewHandler(&Config{Timeout: time.Second}, pipeline, logger.NewTestLogger(t)), pipeline
}

func TestHandler_Execute_FromJobVariables(t *testing.T) {
	h, pipeline := newHandler(t)
	ctx := context.Background()
	_, err := pipeline.StartApplication(ctx, "APP-1")
	require.NoError(t, err)

	var input Input
	job := createMockJob(`{"applicationId":"APP-1","sectionName":"personal","payload":{"name":"Ana"}}`)
	require.NoError(t, camunda.DecodeVariables(job, &input))

	out, err := h.Execute(ctx, &input)
	require.NoError(t, err)
	assert.Equal(t, []string{"personal"}, out.CompletedSteps)

	draft, err := pipeline.GetApplication(ctx, "APP-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Ana"}`, string(draft.Sections["personal"]))
}

func TestHandler_Execute_Errors(t *testing.T) {
	h, pipeline := newHandler(t)
	ctx := context.Background()
	_, err := pipeline.StartApplication(ctx, "APP-1")
	require.NoError(t, err)

	tests := []struct {
		name  string
		input Input
		code  errors.ErrorCode
	}{
		{"unknown section", Input{ApplicationID: "APP-1", SectionName: "hobbies", Payload: json.RawMessage(`{}`)}, errors.ErrCodeInvalidSection},
		{"wrong payload type", Input{ApplicationID: "APP-1", SectionName: "documents", Payload: json.RawMessage(`{}`)}, errors.ErrCodeInvalidSectionPayload},
		{"missing payload", Input{ApplicationID: "APP-1", SectionName: "personal"}, errors.ErrCodeInvalidSectionPayload},
		{"missing draft", Input{ApplicationID: "APP-2", SectionName: "personal", Payload: json.RawMessage(`{}`)}, errors.ErrCodeDraftNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Execute(ctx, &tt.input)
			assert.True(t, errors.HasCode(err, tt.code), "got %v", err)
		})
	}
}
