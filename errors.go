package aggrepo

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the failure classes of the engine.
var (
	// ErrConfiguration is returned for invalid table mappings: a blank table name,
	// a schema on a dialect without schema support, or a missing key.
	ErrConfiguration = errors.New("aggrepo: invalid configuration")

	// ErrUnsupportedShape is returned when a statement cannot be generated for
	// an otherwise valid mapping, e.g. INSERT with several identity columns.
	ErrUnsupportedShape = errors.New("aggrepo: unsupported statement shape")

	// ErrInvariant is returned for programmer errors detected while flattening
	// a type, such as duplicate column names or value-object cycles.
	ErrInvariant = errors.New("aggrepo: invariant violation")

	// ErrNotFound is returned when a requested aggregate does not exist.
	ErrNotFound = errors.New("aggrepo: aggregate not found")
)

// ConfigurationError describes an invalid table mapping.
type ConfigurationError struct {
	Table   string // Table or type name
	Field   string // Offending configuration field or property (if applicable)
	Message string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("aggrepo: configuration error")
	if e.Table != "" {
		b.WriteString(" on ")
		b.WriteString(e.Table)
	}
	if e.Field != "" {
		b.WriteString(" field ")
		b.WriteString(e.Field)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// Is reports whether the target matches ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(table, field, message string) *ConfigurationError {
	return &ConfigurationError{Table: table, Field: field, Message: message}
}

// IsConfigurationError reports whether the error is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var e *ConfigurationError
	return errors.As(err, &e)
}

// UnsupportedShapeError describes a statement that cannot be generated.
type UnsupportedShapeError struct {
	Table   string
	Op      string // "INSERT", "UPDATE", ...
	Message string
}

// Error implements the error interface.
func (e *UnsupportedShapeError) Error() string {
	return fmt.Sprintf("aggrepo: cannot generate %s query for table %s: %s", e.Op, e.Table, e.Message)
}

// Is reports whether the target matches ErrUnsupportedShape.
func (e *UnsupportedShapeError) Is(target error) bool {
	return target == ErrUnsupportedShape
}

// NewUnsupportedShapeError creates a new UnsupportedShapeError.
func NewUnsupportedShapeError(table, op, message string) *UnsupportedShapeError {
	return &UnsupportedShapeError{Table: table, Op: op, Message: message}
}

// IsUnsupportedShapeError reports whether the error is an UnsupportedShapeError.
func IsUnsupportedShapeError(err error) bool {
	var e *UnsupportedShapeError
	return errors.As(err, &e)
}

// InvariantError describes a programmer error in a mapped type.
type InvariantError struct {
	Type     string
	Property string
	Message  string
}

// Error implements the error interface.
func (e *InvariantError) Error() string {
	if e.Property != "" {
		return fmt.Sprintf("aggrepo: invariant violated on %s.%s: %s", e.Type, e.Property, e.Message)
	}
	return fmt.Sprintf("aggrepo: invariant violated on %s: %s", e.Type, e.Message)
}

// Is reports whether the target matches ErrInvariant.
func (e *InvariantError) Is(target error) bool {
	return target == ErrInvariant
}

// NewInvariantError creates a new InvariantError.
func NewInvariantError(typeName, property, message string) *InvariantError {
	return &InvariantError{Type: typeName, Property: property, Message: message}
}

// IsInvariantError reports whether the error is an InvariantError.
func IsInvariantError(err error) bool {
	var e *InvariantError
	return errors.As(err, &e)
}

// NotFoundError represents an error when an aggregate is not found.
type NotFoundError struct {
	table string
	id    any // Optional: the key that was searched for
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.id != nil {
		return fmt.Sprintf("aggrepo: %s not found (id=%v)", e.table, e.id)
	}
	return fmt.Sprintf("aggrepo: %s not found", e.table)
}

// Is reports whether the target error matches ErrNotFound.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Table returns the table name.
func (e *NotFoundError) Table() string {
	return e.table
}

// ID returns the key that was searched for, if available.
func (e *NotFoundError) ID() any {
	return e.id
}

// NewNotFoundError returns a new NotFoundError for the given table.
func NewNotFoundError(table string, id any) *NotFoundError {
	return &NotFoundError{table: table, id: id}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// ConstraintError represents a database constraint violation error.
type ConstraintError struct {
	msg  string
	wrap error
}

// Error returns the error string.
func (e ConstraintError) Error() string {
	return fmt.Sprintf("aggrepo: constraint failed: %s", e.msg)
}

// Unwrap returns the underlying error.
func (e ConstraintError) Unwrap() error {
	return e.wrap
}

// NewConstraintError returns a new ConstraintError with the given message.
func NewConstraintError(msg string, wrap error) error {
	return ConstraintError{msg: msg, wrap: wrap}
}

// IsConstraintError returns true if the error is a ConstraintError.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e ConstraintError
	return errors.As(err, &e)
}

// QueryError wraps a read error with additional context.
type QueryError struct {
	Table string
	Op    string // "get", "get all"
	Err   error
}

// Error returns the error string.
func (e *QueryError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("aggrepo: querying %s (%s): %v", e.Table, e.Op, e.Err)
	}
	return fmt.Sprintf("aggrepo: querying %s: %v", e.Table, e.Err)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// NewQueryError returns a new QueryError.
func NewQueryError(table, op string, err error) *QueryError {
	return &QueryError{Table: table, Op: op, Err: err}
}

// MutationError wraps a write error with additional context.
type MutationError struct {
	Table string
	Op    string // "insert", "update", "delete", "upsert"
	Err   error
}

// Error returns the error string.
func (e *MutationError) Error() string {
	return fmt.Sprintf("aggrepo: %s %s: %v", e.Op, e.Table, e.Err)
}

// Unwrap returns the underlying error.
func (e *MutationError) Unwrap() error {
	return e.Err
}

// NewMutationError returns a new MutationError.
func NewMutationError(table, op string, err error) *MutationError {
	return &MutationError{Table: table, Op: op, Err: err}
}

// IsMutationError returns true if the error is a MutationError.
func IsMutationError(err error) bool {
	if err == nil {
		return false
	}
	var e *MutationError
	return errors.As(err, &e)
}
