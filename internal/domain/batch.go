package domain

// SourceFailure records a collector that failed or could not be resolved.
type SourceFailure struct {
	Source string
	Err    error
}

// Batch is the combined output of several collectors. Failures never discard the items
// other sources produced.
type Batch struct {
	Items     []Item
	PerSource map[string]int
	Failures  []SourceFailure
}
