// internal/workers/admission/write-section/models.go
package writesection

import "encoding/json"

type Input struct {
	ApplicationID string          `json:"applicationId"`
	SectionName   string          `json:"sectionName"`
	Payload       json.RawMessage `json:"payload"`
}

type Output struct {
	ApplicationID  string   `json:"applicationId"`
	SectionName    string   `json:"sectionName"`
	CompletedSteps []string `json:"completedSteps"`
}
