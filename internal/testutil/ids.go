package testutil

// FixedIDs generates the same task identifier every time.
//
// This enables deterministic verification logs and golden snapshot
// comparison. The same transcript scenario with FixedIDs produces
// byte-identical output.
//
// Thread-safety: FixedIDs is stateless and safe for concurrent use.
type FixedIDs struct {
	id string
}

// NewFixedIDs creates a fixed identifier generator.
//
// If id is empty, Generate() returns "test-task".
func NewFixedIDs(id string) *FixedIDs {
	if id == "" {
		id = "test-task"
	}
	return &FixedIDs{id: id}
}

// Generate returns the fixed identifier.
//
// Implements verify.IDGenerator.
func (g *FixedIDs) Generate() string {
	return g.id
}
