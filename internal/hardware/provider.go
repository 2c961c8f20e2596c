package hardware

import (
	"context"

	"codeberg.org/mutker/deckfanctl/internal/errors"
)

// Providers combines several providers into one topology.
type Providers []Provider

func (p Providers) Name() string {
	return "combined"
}

// Hardware concatenates the roots of every provider. The first provider
// failure fails the whole topology.
func (p Providers) Hardware(ctx context.Context) ([]Node, error) {
	var roots []Node
	for _, provider := range p {
		nodes, err := provider.Hardware(ctx)
		if err != nil {
			return nil, errors.New().Wrap(ErrTopologyFailed, err).WithMessage("provider " + provider.Name())
		}
		roots = append(roots, nodes...)
	}

	return roots, nil
}

// Close closes every provider and returns the first error.
func (p Providers) Close() error {
	var first error
	for _, provider := range p {
		if err := provider.Close(); err != nil && first == nil {
			first = err
		}
	}

	return first
}
