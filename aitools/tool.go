package aitools

import "context"

// Tool defines the interface for agent tools
type Tool interface {
	// ToolName returns the name of the tool
	ToolName() string

	// ToolDescription returns a description of what the tool does
	ToolDescription() string

	// ToolPayloadSchema returns the JSON schema for the tool's input parameters
	ToolPayloadSchema() Schema

	// Call executes the tool with the given JSON parameters and returns a
	// stringified response. A returned error marks the invocation as failed;
	// the executor converts it into an error-tagged result.
	Call(ctx context.Context, params string) (string, error)
}
