package registry

import (
	"os"
	"path/filepath"
	"testing"

	"admission-workers/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry_CoversAllSections(t *testing.T) {
	reg := DefaultRegistry()
	for _, s := range models.AllSections {
		entry, ok := reg.Lookup(string(s))
		assert.True(t, ok, "missing %s", s)
		assert.NotEmpty(t, entry.Schema["type"])
	}

	choice, _ := reg.Lookup("choiceOfStudy")
	assert.Equal(t, "array", choice.Schema["type"])
}

func TestLoadRegistry_MergesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sections.json")
	content := `{
		"version": "2.0.0",
		"sections": [
			{"name": "personal", "displayName": "Personal", "schema": {"type": "object", "required": ["name"]}}
		]
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", reg.Version)
	assert.Len(t, reg.Sections, len(models.AllSections))

	personal, ok := reg.Lookup("personal")
	require.True(t, ok)
	assert.Equal(t, []interface{}{"name"}, personal.Schema["required"])
}

func TestLoadRegistry_RejectsUnknownSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sections.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"sections":[{"name":"hobbies","schema":{}}]}`), 0o600))

	_, err := LoadRegistry(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "hobbies")
}

func TestSaveRegistry_RoundTripsThroughLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sections.json")
	reg := DefaultRegistry()
	reg.Sections[0].Description = "who the applicant is"

	require.NoError(t, SaveRegistry(reg, path))

	loaded, err := LoadRegistry(path)
	require.NoError(t, err)
	personal, ok := loaded.Lookup("personal")
	require.True(t, ok)
	assert.Equal(t, "who the applicant is", personal.Description)
}
