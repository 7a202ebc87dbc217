package capability

import (
	"bytes"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/ausweis-dev/ausweis/pkg/api"
)

// NewMCPDescriptor builds a descriptor for a capability discovered from
// an MCP server. The input schema is taken as-is from the tool definition
// and compiled; unlike description-built descriptors there is no HTTP
// binding, the MCPTool field names the remote tool instead.
func NewMCPDescriptor(name, description string, se api.SideEffect, schemaJSON json.RawMessage) (*Descriptor, error) {
	if name == "" {
		return nil, api.NewSchemaError("", "capability with empty name")
	}
	switch se {
	case api.SideEffectReadOnly, api.SideEffectMutating, api.SideEffectCredential:
	default:
		return nil, api.NewSchemaError(name, "missing side_effect class")
	}

	if len(schemaJSON) == 0 {
		// Tools without an input schema accept an empty argument object.
		schemaJSON = json.RawMessage(`{"type":"object","additionalProperties":false}`)
	}

	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, api.NewSchemaError(name, "parsing tool input schema: "+err.Error())
	}

	compiler := jsonschema.NewCompiler()
	resource := name + ".schema.json"
	if err := compiler.AddResource(resource, parsed); err != nil {
		return nil, api.NewSchemaError(name, "adding schema resource: "+err.Error())
	}
	schema, err := compiler.Compile(resource)
	if err != nil {
		return nil, api.NewSchemaError(name, "compiling tool input schema: "+err.Error())
	}

	return &Descriptor{
		Name:        name,
		Description: description,
		SideEffect:  se,
		MCPTool:     name,
		schemaJSON:  schemaJSON,
		schema:      schema,
	}, nil
}
