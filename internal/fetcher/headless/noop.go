package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/icon-harvester/internal/icons"
)

// ErrDisabled is returned by Noop.
var ErrDisabled = errors.New("headless fetcher not configured")

// Noop stands in when headless rendering is disabled.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch always fails with ErrDisabled.
func (Noop) Fetch(_ context.Context, _ icons.FetchRequest) (icons.FetchResponse, error) {
	return icons.FetchResponse{}, ErrDisabled
}
