// internal/models/application.go
package models

import (
	"encoding/json"
	"time"
)

// Section names a wholesale-writable part of an application draft.
type Section string

const (
	SectionPersonal         Section = "personal"
	SectionChoiceOfStudy    Section = "choiceOfStudy"
	SectionEducation        Section = "education"
	SectionAchievements     Section = "achievements"
	SectionOtherInformation Section = "otherInformation"
	SectionDocuments        Section = "documents"
	SectionDeclaration      Section = "declaration"
)

// AllSections lists the recognised sections in form order.
var AllSections = []Section{
	SectionPersonal,
	SectionChoiceOfStudy,
	SectionEducation,
	SectionAchievements,
	SectionOtherInformation,
	SectionDocuments,
	SectionDeclaration,
}

// ParseSection returns the section for name and whether it is recognised.
func ParseSection(name string) (Section, bool) {
	for _, s := range AllSections {
		if string(s) == name {
			return s, true
		}
	}
	return "", false
}

// ApplicationDraft is the mutable in-progress application, one per ApplicationID.
type ApplicationDraft struct {
	ApplicationID  string                     `json:"applicationId"`
	Sections       map[string]json.RawMessage `json:"sections"`
	CompletedSteps []string                   `json:"completedSteps"`
	CreatedAt      time.Time                  `json:"createdAt"`
	UpdatedAt      time.Time                  `json:"updatedAt"`
}

// NewApplicationDraft returns an empty draft stamped with now.
func NewApplicationDraft(applicationID string, now time.Time) *ApplicationDraft {
	return &ApplicationDraft{
		ApplicationID:  applicationID,
		Sections:       map[string]json.RawMessage{},
		CompletedSteps: []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// HasCompleted reports whether the section has been written at least once.
func (d *ApplicationDraft) HasCompleted(section Section) bool {
	for _, s := range d.CompletedSteps {
		if s == string(section) {
			return true
		}
	}
	return false
}
