package cli

import "github.com/google/uuid"

// TraceIDGenerator hands out the id that correlates one command's log
// lines with its JSON response.
type TraceIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-ordered UUIDv7 trace ids.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7 string.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
