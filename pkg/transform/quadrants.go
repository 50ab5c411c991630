package transform

import "github.com/vjranagit/tsengine/pkg/types"

// quadrantOrder maps (x non-negative, y non-negative) to quadrants 1..4
var quadrantOrder = [4][2]bool{
	{true, true},
	{false, true},
	{false, false},
	{true, false},
}

// quadrants classifies (x, y) pairs taken from two series at equal timestamps.
// Series 0 drives the scan and supplies x; series 1 supplies y. X samples with
// no exactly matching Y sample are dropped. Output samples carry the X stamp;
// interval sources keep their interval and series type.
//
// Values are compared as floats against the origin without truncation, so
// x = -0.5 is negative for origin 0.
//
// Parameters: origin_x and origin_y (default 0).
type quadrants struct{}

func (quadrants) Name() Name { return Quadrants }

func (quadrants) Transform(sources []types.Series, params types.Properties) (*Result, error) {
	if len(sources) != 2 {
		return nil, preconditionf("quadrants needs exactly 2 series, got %d", len(sources))
	}
	if err := sameMode(sources); err != nil {
		return nil, err
	}

	originX, _, err := intParameter(params, ParamOriginX, 0)
	if err != nil {
		return nil, err
	}
	originY, _, err := intParameter(params, ParamOriginY, 0)
	if err != nil {
		return nil, err
	}

	outType := types.TypeTimestamp
	if sources[0].Mode() == types.ModeInterval {
		outType = sources[0].Type
	}

	result := &Result{
		Series: types.Series{
			Type:       outType,
			Samples:    []types.Sample{},
			Properties: outputProperties(params, Quadrants),
		},
		Provenance: [][]string{},
	}

	ys := newCursor(sources[1].Samples)
	for i, x := range sources[0].Samples {
		y, ok := ys.match(x.Time)
		if !ok {
			continue
		}
		xv, err := x.Value.Float()
		if err != nil {
			return nil, malformedf("series 0 sample %d: %v", i, err)
		}
		yv, err := y.Value.Float()
		if err != nil {
			return nil, malformedf("series 1 sample %d: %v", ys.pos, err)
		}

		q := quadrant(xv >= float64(originX), yv >= float64(originY))
		result.Series.Samples = append(result.Series.Samples, types.Sample{
			Time:  x.Time,
			Value: types.Int(int64(q)),
		})
		result.Provenance = append(result.Provenance, []string{x.ID, y.ID})
	}

	return result, nil
}

func quadrant(xNonNegative, yNonNegative bool) int {
	key := [2]bool{xNonNegative, yNonNegative}
	for i, q := range quadrantOrder {
		if q == key {
			return i + 1
		}
	}
	return 0
}
