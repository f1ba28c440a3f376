// pkg/registry/schema.go
package registry

// SectionRegistry lists the recognised application sections and the JSON schema each
// section payload must satisfy.
type SectionRegistry struct {
	Version     string    `json:"version"`
	LastUpdated string    `json:"lastUpdated"`
	Sections    []Section `json:"sections"`
}

type Section struct {
	Name        string                 `json:"name"`
	DisplayName string                 `json:"displayName"`
	Description string                 `json:"description,omitempty"`
	Schema      map[string]interface{} `json:"schema"`
}
