// Package errs defines the error taxonomy shared across the diff
// engine's layers, per the error-handling design: configuration errors
// and schema errors surface before any differences are yielded,
// per-segment adapter errors become worker exceptions re-raised through
// the merged result stream, and EmptyTableError is raised lazily so
// that a non-empty first side can still be diffed when only the second
// side is empty.
package errs

import "fmt"

// ConfigurationError signals invalid bisection parameters, incompatible
// update-column settings, or inverted bounds.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string { return "configuration error: " + e.Msg }

func NewConfigurationError(format string, args ...any) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// SchemaError signals a missing column, incompatible type families
// between sides, or an unsupported key type (no successor).
type SchemaError struct {
	Msg string
}

func (e *SchemaError) Error() string { return "schema error: " + e.Msg }

func NewSchemaError(format string, args ...any) error {
	return &SchemaError{Msg: fmt.Sprintf(format, args...)}
}

// EmptyTableError signals that a side has zero rows under its filter
// and empty tables are not permitted.
type EmptyTableError struct {
	TablePath string
}

func (e *EmptyTableError) Error() string {
	return fmt.Sprintf("table %s is empty; use AllowEmptyTables to disable this protection", e.TablePath)
}

func NewEmptyTableError(tablePath string) error {
	return &EmptyTableError{TablePath: tablePath}
}

// KeyParseError signals that the adapter returned a value not
// convertible to the declared key type.
type KeyParseError struct {
	Msg string
	Err error
}

func (e *KeyParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("key parse error: %s: %v", e.Msg, e.Err)
	}
	return "key parse error: " + e.Msg
}

func (e *KeyParseError) Unwrap() error { return e.Err }

func NewKeyParseError(err error, format string, args ...any) error {
	return &KeyParseError{Msg: fmt.Sprintf(format, args...), Err: err}
}

// AdapterError wraps an error propagated from a database query; it is
// non-retryable at this layer.
type AdapterError struct {
	Op  string
	Err error
}

func (e *AdapterError) Error() string { return fmt.Sprintf("adapter error during %s: %v", e.Op, e.Err) }
func (e *AdapterError) Unwrap() error { return e.Err }

func NewAdapterError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &AdapterError{Op: op, Err: err}
}
