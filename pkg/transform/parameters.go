package transform

import (
	"math"
	"strconv"
	"strings"

	"github.com/vjranagit/tsengine/pkg/types"
)

// Parameter keys understood by the transformations
const (
	ParamPeriod             = "period"
	ParamStartTimestamp     = "start_timestamp"
	ParamEndTimestamp       = "end_timestamp"
	ParamOriginX            = "origin_x"
	ParamOriginY            = "origin_y"
	ParamTransformationName = "transformation_name"
)

// intParameter reads key as an integer. It returns def and false when the key
// is absent; a present value that is not an integer is a malformed parameter.
func intParameter(params types.Properties, key string, def int64) (int64, bool, error) {
	v, ok := params.Lookup(key)
	if !ok {
		return def, false, nil
	}
	if !v.IsNumeric() {
		i, err := strconv.ParseInt(strings.TrimSpace(v.String()), 10, 64)
		if err != nil {
			return 0, true, malformedf("%s: %q is not an integer", key, v.String())
		}
		return i, true, nil
	}
	f, _ := v.Float()
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, true, malformedf("%s: %v is not an integer", key, f)
	}
	return int64(f), true, nil
}

// outputProperties copies the request parameters and appends the transformation marker
func outputProperties(params types.Properties, name Name) types.Properties {
	return params.With(ParamTransformationName, types.Text(string(name)))
}

func sameMode(sources []types.Series) error {
	for i := 1; i < len(sources); i++ {
		if sources[i].Mode() != sources[0].Mode() {
			return preconditionf("series %d is %s-stamped but series 0 is %s-stamped",
				i, sources[i].Mode(), sources[0].Mode())
		}
	}
	return nil
}
