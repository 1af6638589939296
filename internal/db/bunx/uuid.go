package bunx

import "github.com/google/uuid"

// NewUUIDv7 generates a time-ordered UUIDv7 string for primary keys.
// It works the same on PostgreSQL and SQLite since no database default is involved.
func NewUUIDv7() string {
	return uuid.Must(uuid.NewV7()).String()
}
