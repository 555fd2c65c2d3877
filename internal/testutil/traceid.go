package testutil

// FixedTraceID hands out the same trace id every time, so command output
// that embeds a trace id can be compared byte for byte.
//
// Thread-safety: FixedTraceID is stateless and safe for concurrent use.
type FixedTraceID struct {
	id string
}

// NewFixedTraceID creates a generator for id. An empty id becomes
// "test-trace-default".
func NewFixedTraceID(id string) *FixedTraceID {
	if id == "" {
		id = "test-trace-default"
	}
	return &FixedTraceID{id: id}
}

// Generate returns the fixed id.
func (g *FixedTraceID) Generate() string {
	return g.id
}
