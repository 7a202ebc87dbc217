package capability

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/ausweis-dev/ausweis/pkg/api"
)

// Parameter describes one named argument of a capability. Parameters are
// ordered as declared in the API description.
type Parameter struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Required    bool   `json:"required" yaml:"required"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// HTTPBinding describes how a capability maps onto the identity
// platform's admin API. Path may contain {param} placeholders that are
// filled from the bound arguments.
type HTTPBinding struct {
	Method string `json:"method" yaml:"method"`
	Path   string `json:"path" yaml:"path"`
}

// Descriptor is an immutable description of a single remote capability:
// unique name, ordered parameter schema, side-effect class, and the
// binding used to invoke it.
type Descriptor struct {
	Name        string
	Description string
	SideEffect  api.SideEffect
	Parameters  []Parameter
	HTTP        HTTPBinding

	// MCPTool is set instead of HTTP when the capability is discovered
	// from an MCP server; it names the remote tool to call.
	MCPTool string

	schemaJSON json.RawMessage
	schema     *jsonschema.Schema
}

// SchemaJSON returns the compiled parameter schema as JSON, suitable for
// handing to the reasoning collaborator as a tool definition.
func (d *Descriptor) SchemaJSON() json.RawMessage {
	return d.schemaJSON
}

// ValidateArguments checks bound arguments against the parameter schema.
// Returns a validation error naming the capability; nil arguments are
// treated as an empty object so capabilities without required parameters
// accept an omitted argument block.
func (d *Descriptor) ValidateArguments(args json.RawMessage) *api.Error {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	// jsonschema.UnmarshalJSON for correct number handling (json.Number).
	value, err := jsonschema.UnmarshalJSON(bytes.NewReader(args))
	if err != nil {
		return api.NewValidationError(d.Name, "arguments are not valid JSON: "+err.Error())
	}

	if err := d.schema.Validate(value); err != nil {
		return api.NewValidationError(d.Name, "arguments do not satisfy parameter schema: "+err.Error())
	}
	return nil
}

// EqualSchema reports whether two descriptors are equal by name and
// parameter schema. Used to verify rebuild idempotence.
func (d *Descriptor) EqualSchema(other *Descriptor) bool {
	if other == nil {
		return false
	}
	return d.Name == other.Name && bytes.Equal(d.schemaJSON, other.schemaJSON)
}

// buildParameterSchema constructs and compiles the JSON Schema for a
// capability's parameters. The schema is a closed object: properties per
// parameter, required listing the mandatory ones.
func buildParameterSchema(name string, params []Parameter) (json.RawMessage, *jsonschema.Schema, *api.Error) {
	properties := make(map[string]any, len(params))
	var required []string

	seen := make(map[string]bool, len(params))
	for _, p := range params {
		if p.Name == "" {
			return nil, nil, api.NewSchemaError(name, "parameter with empty name")
		}
		if seen[p.Name] {
			return nil, nil, api.NewSchemaError(name+"."+p.Name, "duplicate parameter name")
		}
		seen[p.Name] = true

		typ, ok := schemaType(p.Type)
		if !ok {
			return nil, nil, api.NewSchemaError(name+"."+p.Name, "unresolvable parameter type "+p.Type)
		}

		prop := map[string]any{"type": typ}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		properties[p.Name] = prop

		if p.Required {
			required = append(required, p.Name)
		}
	}

	doc := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		doc["required"] = required
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, nil, api.NewSchemaError(name, "marshaling parameter schema: "+err.Error())
	}

	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, nil, api.NewSchemaError(name, "parsing parameter schema: "+err.Error())
	}

	compiler := jsonschema.NewCompiler()
	resource := name + ".schema.json"
	if err := compiler.AddResource(resource, parsed); err != nil {
		return nil, nil, api.NewSchemaError(name, "adding schema resource: "+err.Error())
	}
	schema, err := compiler.Compile(resource)
	if err != nil {
		return nil, nil, api.NewSchemaError(name, "compiling parameter schema: "+err.Error())
	}

	return raw, schema, nil
}

// schemaType maps a description parameter type to a JSON Schema type.
func schemaType(t string) (string, bool) {
	switch strings.ToLower(t) {
	case "string", "str":
		return "string", true
	case "integer", "int":
		return "integer", true
	case "number", "float":
		return "number", true
	case "boolean", "bool":
		return "boolean", true
	case "array", "list":
		return "array", true
	case "object", "dict", "map":
		return "object", true
	}
	return "", false
}
