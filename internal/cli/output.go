package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/recipients/internal/address"
	"github.com/roach88/recipients/internal/config"
	"github.com/roach88/recipients/internal/engine"
	"github.com/roach88/recipients/internal/store"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation failed (unknown recipient, invariant violation, failed scenarios)
	ExitCommandError = 2 // Command error (bad flags, invalid identifiers, unreadable config)
)

// Error codes reported in JSON output.
const (
	CodeInvalidInput = "E_INVALID_INPUT"
	CodeNotFound     = "E_NOT_FOUND"
	CodeInvariant    = "E_INVARIANT"
	CodeConfig       = "E_CONFIG"
	CodeStorage      = "E_STORAGE"
	CodeTestFailed   = "E_TEST_FAILED"
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// classifyError maps a domain error to a JSON error code and exit code.
func classifyError(err error) (string, int) {
	var (
		invariant *engine.InvariantError
		loadErr   *config.LoadError
	)
	switch {
	case errors.As(err, &loadErr), errors.Is(err, engine.ErrSelfUnknown):
		return CodeConfig, ExitCommandError
	case errors.As(err, &invariant) &&
		(invariant.Code == engine.ErrCodeInvalidHandle || invariant.Code == engine.ErrCodeInvalidTrust):
		return CodeInvalidInput, ExitCommandError
	case errors.As(err, &invariant):
		return CodeInvariant, ExitFailure
	case errors.Is(err, address.ErrNoIdentifier),
		errors.Is(err, address.ErrInvalidNumber),
		errors.Is(err, address.ErrInvalidUsername),
		errors.Is(err, address.ErrInvalidServiceID):
		return CodeInvalidInput, ExitCommandError
	case errors.Is(err, store.ErrNotFound):
		return CodeNotFound, ExitFailure
	default:
		return CodeStorage, ExitFailure
	}
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // one of the Code* constants
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
// Text output prints data with fmt, so views implement fmt.Stringer.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err and returns the ExitError the command should return.
// JSON output always carries the error; text output leaves printing to main.
func (f *OutputFormatter) Fail(message string, err error) error {
	code, exit := classifyError(err)
	if f.Format == "json" {
		_ = f.Error(code, fmt.Sprintf("%s: %v", message, err), nil)
	}
	return WrapExitError(exit, message, err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
