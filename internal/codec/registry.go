package codec

import (
	"context"
	"fmt"

	"github.com/aliskhannn/filebatch/internal/model"
)

// Registry maps each operation to its codec. The mapping is closed: it is
// populated once at construction and never mutated afterwards, so output
// format dispatch stays a fixed enumeration rather than open string lookup.
type Registry struct {
	codecs map[model.Operation]Codec
}

// warmUpper is implemented by codecs with expensive one-time setup.
type warmUpper interface {
	WarmUp(ctx context.Context) error
}

// NewRegistry builds a registry from a fixed operation→codec mapping.
func NewRegistry(codecs map[model.Operation]Codec) *Registry {
	m := make(map[model.Operation]Codec, len(codecs))
	for op, c := range codecs {
		m[op] = c
	}
	return &Registry{codecs: m}
}

// Lookup returns the codec registered for op.
func (r *Registry) Lookup(op model.Operation) (Codec, error) {
	c, ok := r.codecs[op]
	if !ok {
		return nil, fmt.Errorf("no codec registered for operation %q", op)
	}
	return c, nil
}

// WarmUp performs one-time setup for every codec that requires it.
// It is called from the worker pool's lazy initialization.
func (r *Registry) WarmUp(ctx context.Context) error {
	for op, c := range r.codecs {
		w, ok := c.(warmUpper)
		if !ok {
			continue
		}
		if err := w.WarmUp(ctx); err != nil {
			return fmt.Errorf("warm up %s codec: %w", op, err)
		}
	}
	return nil
}
