package transform

import (
	"fmt"

	"github.com/vjranagit/tsengine/pkg/types"
)

// Name identifies a transformation selectable through Dispatch
type Name string

const (
	ResampleNearest Name = "resample_nearest"
	Quadrants       Name = "quadrants"
)

// Result is a derived series plus its provenance mapping.
// Provenance[i] lists the ids of the source samples that produced Series.Samples[i].
type Result struct {
	Series     types.Series
	Provenance [][]string
}

// Transformer derives a new series from source series and request parameters.
// Implementations validate their own cardinality and mode preconditions.
type Transformer interface {
	Name() Name
	Transform(sources []types.Series, params types.Properties) (*Result, error)
}

// Names returns every name Dispatch accepts
func Names() []Name {
	return []Name{ResampleNearest, Quadrants}
}

// Lookup returns the transformer registered under name
func Lookup(name Name) (Transformer, error) {
	switch name {
	case ResampleNearest:
		return resample{}, nil
	case Quadrants:
		return quadrants{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupported, name)
}

// Dispatch runs the transformation called name over sources
func Dispatch(name Name, sources []types.Series, params types.Properties) (*Result, error) {
	t, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return t.Transform(sources, params)
}
