// Package builderr defines the error kinds surfaced by the entity builder.
// Callers classify failures with errors.Is against the exported sentinels;
// construction helpers attach context while keeping the kind matchable.
package builderr

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument marks malformed caller input: non-numeric or empty
	// ids, malformed fetch trees, non-positive batch sizes.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrSchema marks missing metadata: unknown entities, relations,
	// foreign keys, or id-property mappings.
	ErrSchema = errors.New("schema error")

	// ErrUnsupportedComposite marks composite primary or foreign keys.
	ErrUnsupportedComposite = errors.New("composite keys are not supported")

	// ErrNotFound marks a referenced entity row that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDatabase marks failures bubbled up from the driver, and the
	// generated-function-name-too-long condition in development.
	ErrDatabase = errors.New("database error")

	// ErrImplementation marks broken internal invariants. Seeing one is a bug.
	ErrImplementation = errors.New("implementation error")
)

// InvalidArgument wraps a formatted message with ErrInvalidArgument.
func InvalidArgument(format string, args ...any) error {
	return kind(ErrInvalidArgument, format, args...)
}

// Schema wraps a formatted message with ErrSchema.
func Schema(format string, args ...any) error {
	return kind(ErrSchema, format, args...)
}

// UnsupportedComposite wraps a formatted message with ErrUnsupportedComposite.
func UnsupportedComposite(format string, args ...any) error {
	return kind(ErrUnsupportedComposite, format, args...)
}

// NotFound wraps a formatted message with ErrNotFound.
func NotFound(format string, args ...any) error {
	return kind(ErrNotFound, format, args...)
}

// Database wraps a driver error with ErrDatabase, keeping the cause chained.
func Database(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrDatabase, context, err)
}

// Implementation wraps a formatted message with ErrImplementation.
func Implementation(format string, args ...any) error {
	return kind(ErrImplementation, format, args...)
}

func kind(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
