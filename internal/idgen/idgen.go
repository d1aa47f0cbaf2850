// Package idgen generates the identifiers webwatch hands out at runtime
// (history row IDs) and formats epoch-millisecond suffixes. Watch
// IDs themselves are not generated here — per spec they are either
// operator-supplied or derived deterministically from the watch URL (see
// internal/config).
package idgen

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings:
// time-sortable and globally unique, so run history sorts correctly by ID
// alone even without consulting the timestamp column.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()

// New produces an ID using the Default generator.
func New() string {
	return Default()
}

// Parse validates a UUID string and returns it or an error.
func Parse(s string) (string, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid UUID: %w", err)
	}
	return u.String(), nil
}

// EpochSuffix returns at's epoch milliseconds as a string, the ${epochMs}
// part of the error-screenshot filename convention
// error-${watchId}-${epochMs}.png (state.ScreenshotPath formats that name
// itself).
func EpochSuffix(at time.Time) string {
	return fmt.Sprintf("%d", at.UnixMilli())
}
