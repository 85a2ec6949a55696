package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/board-collector/internal/fetcher"
)

// ErrDisabled is returned by Noop.
var ErrDisabled = errors.New("headless fetcher not enabled")

// Noop stands in for the headless fetcher when rendering is disabled, so
// adapters configured with render: true fail their fetches loudly.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch always returns ErrDisabled.
func (Noop) Fetch(context.Context, fetcher.Request) (fetcher.Response, error) {
	return fetcher.Response{}, ErrDisabled
}
