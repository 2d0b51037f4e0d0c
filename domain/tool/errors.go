package tool

import "errors"

// Domain errors for the tool system.
var (
	// ErrEmptyName indicates a tool was created with an empty name.
	ErrEmptyName = errors.New("tool name cannot be empty")

	// ErrNoHandler indicates a tool was created without a handler.
	ErrNoHandler = errors.New("tool has no handler")

	// ErrUnknownTool indicates the requested tool is not registered.
	// Fatal to the step that requires the tool, never to the session.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrDuplicateTool indicates a tool with the same name already exists.
	ErrDuplicateTool = errors.New("duplicate tool")

	// ErrInvalidInput indicates the input failed schema validation.
	ErrInvalidInput = errors.New("invalid tool input")

	// ErrInvalidOutput indicates the output failed schema validation.
	ErrInvalidOutput = errors.New("invalid tool output")
)
