package adapter

import "github.com/JakeFAU/board-collector/internal/collector"

// Result is the outcome of extracting one list row.
type Result struct {
	Item   collector.Item
	Reason string
	ok     bool
}

// OK wraps a successfully extracted item.
func OK(item collector.Item) Result {
	return Result{Item: item, ok: true}
}

// Skip marks a row that could not be extracted.
func Skip(reason string) Result {
	return Result{Reason: reason}
}

// Skipped reports whether the row was skipped.
func (r Result) Skipped() bool {
	return !r.ok
}
