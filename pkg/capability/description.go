package capability

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ausweis-dev/ausweis/pkg/api"
)

// Description is the machine-readable API description a registry is built
// from. It is externally supplied: the orchestration core only consumes
// it and never defines the platform's wire protocol.
type Description struct {
	// Platform is an informational label for the described platform.
	Platform string `yaml:"platform"`

	Capabilities []CapabilityDescription `yaml:"capabilities"`
}

// CapabilityDescription is one capability entry in the API description.
type CapabilityDescription struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	SideEffect  api.SideEffect `yaml:"side_effect"`
	HTTP        HTTPBinding    `yaml:"http"`
	Parameters  []Parameter    `yaml:"parameters"`
}

// ParseDescription parses a YAML API description.
func ParseDescription(data []byte) (*Description, error) {
	var desc Description
	if err := yaml.Unmarshal(data, &desc); err != nil {
		return nil, api.NewSchemaError("", "parsing API description: "+err.Error())
	}
	return &desc, nil
}

// LoadDescription reads and parses an API description file.
func LoadDescription(path string) (*Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading API description %s: %w", path, err)
	}
	return ParseDescription(data)
}

// validate checks description-level constraints that don't involve
// schema compilation.
func (c *CapabilityDescription) validate() *api.Error {
	if c.Name == "" {
		return api.NewSchemaError("", "capability with empty name")
	}
	switch c.SideEffect {
	case api.SideEffectReadOnly, api.SideEffectMutating, api.SideEffectCredential:
	case "":
		return api.NewSchemaError(c.Name, "missing side_effect class")
	default:
		return api.NewSchemaError(c.Name, fmt.Sprintf("unknown side_effect class %q", c.SideEffect))
	}
	if c.HTTP.Method == "" || c.HTTP.Path == "" {
		return api.NewSchemaError(c.Name, "missing http binding")
	}
	return nil
}
