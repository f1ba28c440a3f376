// cmd/tools/registry-updater/main.go
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"admission-workers/internal/common/validation"
	"admission-workers/internal/models"
	"admission-workers/pkg/registry"
)

var registryPath string

func main() {
	initCmd := flag.NewFlagSet("init", flag.ExitOnError)
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)

	for _, fs := range []*flag.FlagSet{initCmd, updateCmd, validateCmd} {
		fs.StringVar(&registryPath, "path", "configs/section-registry.json", "Path to registry file")
	}

	force := initCmd.Bool("force", false, "Overwrite an existing registry file")

	// Update command flags
	name := updateCmd.String("section", "", "Section name (e.g., personal)")
	field := updateCmd.String("field", "", "Field to update (displayName, description, schema)")
	value := updateCmd.String("value", "", "New value; for schema, a JSON document or @file")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		initCmd.Parse(os.Args[2:])
		if err := initRegistry(*force); err != nil {
			fmt.Printf("Error writing registry: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote default registry to %s\n", registryPath)

	case "update":
		updateCmd.Parse(os.Args[2:])
		if *name == "" || *field == "" || *value == "" {
			fmt.Println("Error: section, field, and value are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		if err := updateSection(*name, *field, *value); err != nil {
			fmt.Printf("Error updating section: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated section %s, field %s\n", *name, *field)

	case "validate":
		validateCmd.Parse(os.Args[2:])
		if err := validateRegistry(); err != nil {
			fmt.Printf("Registry validation failed: %v\n", err)
			os.Exit(1)
		}

	case "help":
		fallthrough
	default:
		help()
	}
}

func initRegistry(force bool) error {
	if _, err := os.Stat(registryPath); err == nil && !force {
		return fmt.Errorf("%s already exists (use -force)", registryPath)
	}
	reg := registry.DefaultRegistry()
	reg.LastUpdated = time.Now().Format(time.RFC3339)
	return registry.SaveRegistry(reg, registryPath)
}

func updateSection(name, field, value string) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	idx := -1
	for i := range reg.Sections {
		if reg.Sections[i].Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("section %s not found", name)
	}

	switch field {
	case "displayName":
		reg.Sections[idx].DisplayName = value
	case "description":
		reg.Sections[idx].Description = value
	case "schema":
		schema, err := readSchema(value)
		if err != nil {
			return err
		}
		if err := validation.CompileSchema(schema); err != nil {
			return err
		}
		reg.Sections[idx].Schema = schema
	default:
		return fmt.Errorf("unknown field: %s", field)
	}

	reg.LastUpdated = time.Now().Format(time.RFC3339)
	return registry.SaveRegistry(reg, registryPath)
}

func readSchema(value string) (map[string]interface{}, error) {
	data := []byte(value)
	if len(value) > 1 && value[0] == '@' {
		var err error
		if data, err = os.ReadFile(value[1:]); err != nil {
			return nil, fmt.Errorf("failed to read schema file: %w", err)
		}
	}
	var schema map[string]interface{}
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("schema is not a JSON object: %w", err)
	}
	return schema, nil
}

func validateRegistry() error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	seen := make(map[string]bool)
	for _, s := range reg.Sections {
		if seen[s.Name] {
			return fmt.Errorf("duplicate section: %s", s.Name)
		}
		seen[s.Name] = true

		if s.DisplayName == "" {
			return fmt.Errorf("section %s missing required field: displayName", s.Name)
		}
		if err := validation.CompileSchema(s.Schema); err != nil {
			return fmt.Errorf("section %s: %w", s.Name, err)
		}
	}
	for _, s := range models.AllSections {
		if !seen[string(s)] {
			return fmt.Errorf("section %s missing", s)
		}
	}

	fmt.Printf("Registry validation passed. Found %d sections.\n", len(reg.Sections))
	return nil
}

func help() {
	fmt.Print(`
Usage: registry-updater <command> [flags]

Commands:
  init      Write the default section registry
  update    Update a section's display name, description or schema
  validate  Check every section is present and every schema compiles
  help      Show this help message

Examples:
  registry-updater init -path configs/section-registry.json
  registry-updater update -section personal -field schema -value @schemas/personal.json
  registry-updater validate -path configs/section-registry.json

Use 'registry-updater <command> -h' for more information about a command.
` + "\n")
}
