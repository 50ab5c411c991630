package transform

import "github.com/vjranagit/tsengine/pkg/types"

// Multidimensional aligns one or more series on timestamps present in all of
// them. Series 0 drives the scan; each other series keeps its own cursor. A row
// is emitted only when every series has a sample with exactly the driver's
// timestamp, and holds the values in source order.
func Multidimensional(sources []types.Series) (*types.MultiSeries, error) {
	if len(sources) == 0 {
		return nil, preconditionf("multidimensional alignment needs at least 1 series")
	}
	if err := sameMode(sources); err != nil {
		return nil, err
	}

	out := &types.MultiSeries{
		Type:      sources[0].Type,
		SourceIDs: make([]string, len(sources)),
		Samples:   []types.MultiSample{},
	}
	for i, s := range sources {
		out.SourceIDs[i] = s.ID
	}

	others := make([]*cursor, 0, len(sources)-1)
	for _, s := range sources[1:] {
		others = append(others, newCursor(s.Samples))
	}

	for _, driver := range sources[0].Samples {
		values := make([]types.Value, 1, len(sources))
		values[0] = driver.Value

		matched := true
		for _, c := range others {
			sample, ok := c.match(driver.Time)
			if !ok {
				matched = false
				break
			}
			values = append(values, sample.Value)
		}
		if matched {
			out.Samples = append(out.Samples, types.MultiSample{Time: driver.Time, Values: values})
		}
	}

	return out, nil
}
