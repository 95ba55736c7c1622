package registry

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidateArgs checks args against the tool's input schema. Tools without a
// schema accept anything. Arguments are round-tripped through JSON so the
// validator sees pure JSON types regardless of how the map was built.
func ValidateArgs(tool *Tool, args map[string]any) error {
	if tool.InputSchema == nil {
		return nil
	}

	schemaBytes, err := json.Marshal(tool.InputSchema)
	if err != nil {
		return &InvalidArgumentsError{ToolID: tool.ID, Err: fmt.Errorf("invalid input schema: %w", err)}
	}
	var schemaObj any
	if err := json.Unmarshal(schemaBytes, &schemaObj); err != nil {
		return &InvalidArgumentsError{ToolID: tool.ID, Err: fmt.Errorf("invalid input schema: %w", err)}
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", schemaObj); err != nil {
		return &InvalidArgumentsError{ToolID: tool.ID, Err: fmt.Errorf("schema compile: %w", err)}
	}
	sch, err := c.Compile("schema.json")
	if err != nil {
		return &InvalidArgumentsError{ToolID: tool.ID, Err: fmt.Errorf("schema compile: %w", err)}
	}

	argBytes, err := json.Marshal(args)
	if err != nil {
		return &InvalidArgumentsError{ToolID: tool.ID, Err: fmt.Errorf("arguments not encodable: %w", err)}
	}
	var decoded any
	if err := json.Unmarshal(argBytes, &decoded); err != nil {
		return &InvalidArgumentsError{ToolID: tool.ID, Err: fmt.Errorf("arguments not decodable: %w", err)}
	}

	if err := sch.Validate(decoded); err != nil {
		return &InvalidArgumentsError{ToolID: tool.ID, Err: err}
	}
	return nil
}
