package camunda

import (
	"context"
	"encoding/json"
	"fmt"

	"admission-workers/internal/common/errors"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// DecodeVariables unmarshals the job variables into v. Malformed variables are an input error,
// never retried.
func DecodeVariables(job entities.Job, v interface{}) error {
	if err := json.Unmarshal([]byte(job.GetVariables()), v); err != nil {
		return errors.NewInvalidInputError(fmt.Sprintf("parse job variables: %v", err))
	}
	return nil
}

// CompleteJob completes the job with output as its variables.
func CompleteJob(ctx context.Context, client worker.JobClient, job entities.Job, output interface{}) error {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.GetKey()).
		VariablesFromObject(output)
	if err != nil {
		return fmt.Errorf("create complete job command: %w", err)
	}
	if _, err := cmd.Send(ctx); err != nil {
		return fmt.Errorf("send complete job command: %w", err)
	}
	return nil
}
