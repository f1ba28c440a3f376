// internal/workers/admission/get-application/models.go
package getapplication

import "admission-workers/internal/models"

type Input struct {
	ApplicationID string `json:"applicationId"`
}

type Output struct {
	ApplicationID  string                   `json:"applicationId"`
	CompletedSteps []string                 `json:"completedSteps"`
	Draft          *models.ApplicationDraft `json:"draft"`
}
