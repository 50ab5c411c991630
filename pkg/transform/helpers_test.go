package transform

import (
	"fmt"

	"github.com/vjranagit/tsengine/pkg/types"
)

// points builds a point series from (timestamp, value) pairs; sample ids are "<id>/<index>"
func points(id string, pairs ...int64) types.Series {
	s := types.Series{ID: id, Type: types.TypeTimestamp}
	for i := 0; i+1 < len(pairs); i += 2 {
		s.Samples = append(s.Samples, types.Sample{
			ID:    fmt.Sprintf("%s/%d", id, i/2),
			Time:  types.At(pairs[i]),
			Value: types.Int(pairs[i+1]),
		})
	}
	return s
}

// intervals builds an epoch series from (start, end, value) triples
func intervals(id string, triples ...int64) types.Series {
	s := types.Series{ID: id, Type: types.TypeEpoch}
	for i := 0; i+2 < len(triples); i += 3 {
		s.Samples = append(s.Samples, types.Sample{
			ID:    fmt.Sprintf("%s/%d", id, i/3),
			Time:  types.Between(triples[i], triples[i+1]),
			Value: types.Int(triples[i+2]),
		})
	}
	return s
}

func params(kv ...any) types.Properties {
	var out types.Properties
	for i := 0; i+1 < len(kv); i += 2 {
		var v types.Value
		switch val := kv[i+1].(type) {
		case int:
			v = types.Int(int64(val))
		case string:
			v = types.Text(val)
		case float64:
			v = types.Number(val)
		}
		out = append(out, types.Property{Key: kv[i].(string), Value: v})
	}
	return out
}

type row struct {
	at    int64
	value int64
}

func rows(s types.Series) []row {
	out := make([]row, len(s.Samples))
	for i, sample := range s.Samples {
		v, _ := sample.Value.Int64()
		out[i] = row{at: sample.Time.Begin(), value: v}
	}
	return out
}

// idsOf collects every sample id of the given series
func idsOf(series ...types.Series) map[string]bool {
	ids := make(map[string]bool)
	for _, s := range series {
		for _, sample := range s.Samples {
			ids[sample.ID] = true
		}
	}
	return ids
}
