// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"admission-workers/internal/models"
)

// LoadRegistry reads a registry file. Every section it names must be a recognised section;
// recognised sections missing from the file keep their default schema.
func LoadRegistry(path string) (*SectionRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg SectionRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse section registry %s: %w", path, err)
	}

	for _, s := range reg.Sections {
		if _, ok := models.ParseSection(s.Name); !ok {
			return nil, fmt.Errorf("section registry %s: unknown section %q", path, s.Name)
		}
	}

	defaults := DefaultRegistry()
	for _, d := range defaults.Sections {
		if _, ok := reg.Lookup(d.Name); !ok {
			reg.Sections = append(reg.Sections, d)
		}
	}
	return &reg, nil
}

// DefaultRegistry pins only the top-level JSON type of each section payload.
func DefaultRegistry() *SectionRegistry {
	object := func() map[string]interface{} { return map[string]interface{}{"type": "object"} }
	array := func() map[string]interface{} { return map[string]interface{}{"type": "array"} }

	return &SectionRegistry{
		Version: "1.0.0",
		Sections: []Section{
			{Name: string(models.SectionPersonal), DisplayName: "Personal Details", Schema: object()},
			{Name: string(models.SectionChoiceOfStudy), DisplayName: "Choice of Study", Schema: array()},
			{Name: string(models.SectionEducation), DisplayName: "Education", Schema: object()},
			{Name: string(models.SectionAchievements), DisplayName: "Achievements", Schema: object()},
			{Name: string(models.SectionOtherInformation), DisplayName: "Other Information", Schema: object()},
			{Name: string(models.SectionDocuments), DisplayName: "Documents", Schema: array()},
			{Name: string(models.SectionDeclaration), DisplayName: "Declaration", Schema: object()},
		},
	}
}

// Lookup returns the section entry by name.
func (r *SectionRegistry) Lookup(name string) (Section, bool) {
	for _, s := range r.Sections {
		if s.Name == name {
			return s, true
		}
	}
	return Section{}, false
}

// SaveRegistry writes reg as indented JSON, creating the parent directory if needed.
func SaveRegistry(reg *SectionRegistry, path string) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}
