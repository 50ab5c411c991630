package transform

import (
	"math"

	"github.com/vjranagit/tsengine/pkg/types"
)

// resample builds a regularly spaced point series from one source by picking,
// for every output timestamp, the nearest source sample.
//
// Parameters: period (required, > 0), start_timestamp (default 0) and
// end_timestamp (exclusive, default: end of the last sample + period).
type resample struct{}

func (resample) Name() Name { return ResampleNearest }

func (resample) Transform(sources []types.Series, params types.Properties) (*Result, error) {
	if len(sources) != 1 {
		return nil, preconditionf("resample needs exactly 1 series, got %d", len(sources))
	}

	period, ok, err := intParameter(params, ParamPeriod, 0)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, preconditionf("%s parameter is required", ParamPeriod)
	}
	if period <= 0 {
		return nil, malformedf("%s must be positive, got %d", ParamPeriod, period)
	}
	start, _, err := intParameter(params, ParamStartTimestamp, 0)
	if err != nil {
		return nil, err
	}
	end, hasEnd, err := intParameter(params, ParamEndTimestamp, 0)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Series: types.Series{
			Type:       types.TypeTimestamp,
			Samples:    []types.Sample{},
			Properties: outputProperties(params, ResampleNearest),
		},
		Provenance: [][]string{},
	}

	samples := sources[0].Samples
	if len(samples) == 0 {
		return result, nil
	}
	if !hasEnd {
		last := samples[len(samples)-1].Time.End()
		if last > math.MaxInt64-period {
			return nil, malformedf("default %s overflows: last sample ends at %d, %s is %d",
				ParamEndTimestamp, last, ParamPeriod, period)
		}
		end = last + period
	}

	c := newCursor(samples)
	for t := start; t < end; t += period {
		chosen := nearest(c, t)
		value, err := samples[chosen].Value.Int64()
		if err != nil {
			return nil, malformedf("sample %d: %v", chosen, err)
		}
		result.Series.Samples = append(result.Series.Samples, types.Sample{
			Time:  types.At(t),
			Value: types.Int(value),
		})
		result.Provenance = append(result.Provenance, []string{samples[chosen].ID})
		if t > math.MaxInt64-period {
			break
		}
	}

	return result, nil
}

// nearest returns the index of the sample closest to t. The candidate is the
// first sample beginning at or after t; the preceding sample wins when its end
// is at least as close. With no candidate left, the last sample is used.
func nearest(c *cursor, t int64) int {
	c.seek(t)
	if c.exhausted() {
		return len(c.samples) - 1
	}
	i := c.pos
	if i > 0 {
		before := c.samples[i-1].Time.End()
		after := c.samples[i].Time.Begin()
		if abs(t-before) <= abs(after-t) {
			return i - 1
		}
	}
	return i
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
