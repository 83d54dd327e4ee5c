package errors

import (
	"errors"
	"fmt"
)

// Standard application errors
var (
	ErrEmptyInput      = errors.New("input is empty or contains only whitespace")
	ErrInvalidJSON     = errors.New("invalid JSON format")
	ErrMultipleJSON    = errors.New("multiple JSON values found at the root, only one is allowed")
	ErrFileNotFound    = errors.New("file not found")
	ErrFileEmpty       = errors.New("file is empty")
	ErrNoInput         = errors.New("no input provided: please specify a file with -i, an endpoint with -e, or pipe JSON data to stdin")
	ErrInvalidFilePath = errors.New("invalid file path")
	ErrEmptyTable      = errors.New("no results returned, cannot create table")
	ErrLoopMisaligned  = errors.New("loop placeholders selected value lists of different lengths")
	ErrNoInvoker       = errors.New("no API invoker configured: set a base URL to loop over endpoints")
	ErrUndocumented    = errors.New("endpoint has no documented response schema")
	ErrUnknownFormat   = errors.New("unknown output format")
)

// ErrorType categorizes errors
type ErrorType string

const (
	ErrorTypeInput     ErrorType = "input"
	ErrorTypeParsing   ErrorType = "parsing"
	ErrorTypeMapping   ErrorType = "mapping"
	ErrorTypeSelection ErrorType = "selection"
	ErrorTypeLoop      ErrorType = "loop"
	ErrorTypeRender    ErrorType = "render"
	ErrorTypeCatalog   ErrorType = "catalog"
	ErrorTypeRequest   ErrorType = "request"
	ErrorTypeConfig    ErrorType = "config"
	ErrorTypeOutput    ErrorType = "output"
	ErrorTypeUnknown   ErrorType = "unknown"
)

// AppError is an application-specific error with context
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for comparison
func (e *AppError) Is(target error) bool {
	// Check if target is also an *AppError and if the types match
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

func newError(t ErrorType, message string, err error) *AppError {
	return &AppError{
		Type:    t,
		Message: message,
		Err:     err,
	}
}

// NewInputError creates a new error related to input processing
func NewInputError(message string, err error) *AppError {
	return newError(ErrorTypeInput, message, err)
}

// NewParsingError creates a new error related to JSON parsing
func NewParsingError(message string, err error) *AppError {
	return newError(ErrorTypeParsing, message, err)
}

// NewMappingError creates a new error raised while building a metadata map
func NewMappingError(message string, err error) *AppError {
	return newError(ErrorTypeMapping, message, err)
}

// NewSelectionError creates a new error raised by select, filter or context
func NewSelectionError(message string, err error) *AppError {
	return newError(ErrorTypeSelection, message, err)
}

// NewLoopError creates a new error raised while looping over an endpoint
func NewLoopError(message string, err error) *AppError {
	return newError(ErrorTypeLoop, message, err)
}

// NewRenderError creates a new error raised by the table, list or pretty renderers
func NewRenderError(message string, err error) *AppError {
	return newError(ErrorTypeRender, message, err)
}

// NewCatalogError creates a new error related to API documentation
func NewCatalogError(message string, err error) *AppError {
	return newError(ErrorTypeCatalog, message, err)
}

// NewRequestError creates a new error raised while calling the API
func NewRequestError(message string, err error) *AppError {
	return newError(ErrorTypeRequest, message, err)
}

// NewConfigError creates a new error related to configuration files
func NewConfigError(message string, err error) *AppError {
	return newError(ErrorTypeConfig, message, err)
}

// NewOutputError creates a new error related to output processing
func NewOutputError(message string, err error) *AppError {
	return newError(ErrorTypeOutput, message, err)
}

// UserFriendlyError returns a user-friendly error message
func UserFriendlyError(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		switch appErr.Type {
		case ErrorTypeInput:
			return fmt.Sprintf("Input error: %s", appErr.Message)
		case ErrorTypeParsing:
			return fmt.Sprintf("JSON parsing error: %s", appErr.Message)
		case ErrorTypeMapping:
			return fmt.Sprintf("Mapping error: %s", appErr.Message)
		case ErrorTypeSelection:
			return fmt.Sprintf("Selection error: %s", appErr.Message)
		case ErrorTypeLoop:
			return fmt.Sprintf("Loop error: %s", appErr.Message)
		case ErrorTypeRender:
			return fmt.Sprintf("Render error: %s", appErr.Message)
		case ErrorTypeCatalog:
			return fmt.Sprintf("Documentation error: %s", appErr.Message)
		case ErrorTypeRequest:
			return fmt.Sprintf("Request error: %s", appErr.Message)
		case ErrorTypeConfig:
			return fmt.Sprintf("Configuration error: %s", appErr.Message)
		case ErrorTypeOutput:
			return fmt.Sprintf("Output error: %s", appErr.Message)
		default:
			return fmt.Sprintf("Error: %s", appErr.Message)
		}
	}

	// Handle standard errors
	if errors.Is(err, ErrEmptyInput) {
		return "Error: The input is empty. Please provide valid JSON data."
	}
	if errors.Is(err, ErrInvalidJSON) {
		return "Error: The input contains invalid JSON. Please check your JSON syntax."
	}
	if errors.Is(err, ErrMultipleJSON) {
		return "Error: Multiple JSON values found. Please provide a single JSON object or array."
	}
	if errors.Is(err, ErrFileNotFound) {
		return "Error: The specified file could not be found. Please check the file path."
	}
	if errors.Is(err, ErrFileEmpty) {
		return "Error: The specified file is empty. Please provide a file with valid JSON content."
	}
	if errors.Is(err, ErrNoInput) {
		return "Error: No input provided. Please specify a file with -i, an endpoint with -e, or pipe JSON data to stdin."
	}
	if errors.Is(err, ErrInvalidFilePath) {
		return "Error: Invalid file path. Please provide a valid file path."
	}
	if errors.Is(err, ErrEmptyTable) {
		return "Error: No results returned, cannot create table."
	}

	// Generic error message for unknown errors
	return fmt.Sprintf("Error: %v", err)
}
