package types

// Property is one key/value pair attached to a series or a transformation request
type Property struct {
	Key   string `json:"key"`
	Value Value  `json:"value"`
}

// Properties is an unordered key/value list with unique keys
type Properties []Property

// Lookup returns the value of the first property named key.
// It never fails: a missing key reports false.
func (p Properties) Lookup(key string) (Value, bool) {
	for _, prop := range p {
		if prop.Key == key {
			return prop.Value, true
		}
	}
	return Value{}, false
}

// With returns a copy of p with one more property appended; p is left untouched
func (p Properties) With(key string, value Value) Properties {
	out := make(Properties, 0, len(p)+1)
	out = append(out, p...)
	return append(out, Property{Key: key, Value: value})
}

// Labels renders the properties as a string map, as used by the series index
func (p Properties) Labels() map[string]string {
	if len(p) == 0 {
		return nil
	}
	labels := make(map[string]string, len(p))
	for _, prop := range p {
		if _, seen := labels[prop.Key]; !seen {
			labels[prop.Key] = prop.Value.String()
		}
	}
	return labels
}
