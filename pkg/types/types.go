package types

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Mode is the timestamp representation shared by every sample of a series
type Mode int

const (
	// ModePoint samples carry a single instant in milliseconds
	ModePoint Mode = iota + 1
	// ModeInterval samples carry a start/end range in milliseconds
	ModeInterval
)

func (m Mode) String() string {
	switch m {
	case ModePoint:
		return "point"
	case ModeInterval:
		return "interval"
	default:
		return "unknown"
	}
}

// SeriesType is the kind of signal a series records
type SeriesType string

const (
	TypeTimestamp         SeriesType = "Timestamp"
	TypeEpoch             SeriesType = "Epoch"
	TypeIrregularlySpaced SeriesType = "Irregularly spaced"
	TypeRegularlySpaced   SeriesType = "Regularly spaced"
)

// Mode returns the timestamp mode implied by the series type.
// Only Timestamp series are point-stamped; every other type spans intervals.
func (t SeriesType) Mode() Mode {
	if t == TypeTimestamp {
		return ModePoint
	}
	return ModeInterval
}

// Valid reports whether t is one of the known series types
func (t SeriesType) Valid() bool {
	switch t {
	case TypeTimestamp, TypeEpoch, TypeIrregularlySpaced, TypeRegularlySpaced:
		return true
	}
	return false
}

// Timestamp is either a point in time or an interval, in milliseconds.
// Build one with At or Between; the zero value has no mode.
type Timestamp struct {
	mode  Mode
	start int64
	end   int64
}

// At returns a point timestamp
func At(ms int64) Timestamp {
	return Timestamp{mode: ModePoint, start: ms, end: ms}
}

// Between returns an interval timestamp
func Between(start, end int64) Timestamp {
	return Timestamp{mode: ModeInterval, start: start, end: end}
}

// Mode returns the representation of t
func (t Timestamp) Mode() Mode { return t.mode }

// IsZero reports whether t was never set
func (t Timestamp) IsZero() bool { return t.mode == 0 }

// Begin returns the timestamp used for ordering and alignment:
// the point itself or the interval start.
func (t Timestamp) Begin() int64 { return t.start }

// End returns the point itself or the interval end
func (t Timestamp) End() int64 { return t.end }

// Equal reports whether both timestamps have the same representation.
// A point never equals an interval, even a zero-length one.
func (t Timestamp) Equal(o Timestamp) bool {
	return t.mode == o.mode && t.start == o.start && t.end == o.end
}

func (t Timestamp) String() string {
	if t.mode == ModeInterval {
		return fmt.Sprintf("[%d,%d]", t.start, t.end)
	}
	return strconv.FormatInt(t.start, 10)
}

// stampJSON is the wire shape of a timestamp, flattened into samples
type stampJSON struct {
	Timestamp      *int64 `json:"timestamp,omitempty"`
	StartTimestamp *int64 `json:"start_timestamp,omitempty"`
	EndTimestamp   *int64 `json:"end_timestamp,omitempty"`
}

func (t Timestamp) toJSON() stampJSON {
	switch t.mode {
	case ModePoint:
		ts := t.start
		return stampJSON{Timestamp: &ts}
	case ModeInterval:
		start, end := t.start, t.end
		return stampJSON{StartTimestamp: &start, EndTimestamp: &end}
	}
	return stampJSON{}
}

func (s stampJSON) toTimestamp() (Timestamp, error) {
	switch {
	case s.Timestamp != nil && s.StartTimestamp == nil && s.EndTimestamp == nil:
		return At(*s.Timestamp), nil
	case s.Timestamp == nil && s.StartTimestamp != nil && s.EndTimestamp != nil:
		return Between(*s.StartTimestamp, *s.EndTimestamp), nil
	case s.Timestamp == nil && s.StartTimestamp == nil && s.EndTimestamp == nil:
		return Timestamp{}, fmt.Errorf("timestamp or start_timestamp/end_timestamp is required")
	}
	return Timestamp{}, fmt.Errorf("timestamp must be either a point or a start_timestamp/end_timestamp pair")
}

// Value is a signal value: a number or a piece of text
type Value struct {
	text    string
	number  float64
	numeric bool
}

// Number returns a numeric value
func Number(f float64) Value {
	return Value{number: f, numeric: true}
}

// Int returns a numeric value holding an integer
func Int(i int64) Value {
	return Number(float64(i))
}

// Text returns a textual value
func Text(s string) Value {
	return Value{text: s}
}

// IsNumeric reports whether v was built as a number
func (v Value) IsNumeric() bool { return v.numeric }

// Float returns v as a float64, parsing textual values
func (v Value) Float() (float64, error) {
	if v.numeric {
		return v.number, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v.text), 64)
	if err != nil {
		return 0, fmt.Errorf("value %q is not numeric", v.text)
	}
	return f, nil
}

// Int64 returns v as an integer, truncating toward zero
func (v Value) Int64() (int64, error) {
	if !v.numeric {
		if i, err := strconv.ParseInt(strings.TrimSpace(v.text), 10, 64); err == nil {
			return i, nil
		}
	}
	f, err := v.Float()
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("value %v is not a finite number", f)
	}
	return int64(f), nil
}

// Equal reports whether both values have the same kind and content
func (v Value) Equal(o Value) bool {
	if v.numeric != o.numeric {
		return false
	}
	if v.numeric {
		return v.number == o.number
	}
	return v.text == o.text
}

func (v Value) String() string {
	if v.numeric {
		return strconv.FormatFloat(v.number, 'f', -1, 64)
	}
	return v.text
}

// MarshalJSON encodes numbers as JSON numbers and text as JSON strings
func (v Value) MarshalJSON() ([]byte, error) {
	if v.numeric {
		return json.Marshal(v.number)
	}
	return json.Marshal(v.text)
}

// UnmarshalJSON accepts a JSON number or string
func (v *Value) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*v = Number(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("value must be a number or a string: %s", data)
	}
	*v = Text(s)
	return nil
}

// Sample represents a single signal value with its timestamp
type Sample struct {
	// ID is an opaque identity used for provenance only
	ID    string
	Time  Timestamp
	Value Value
}

type sampleJSON struct {
	ID string `json:"id,omitempty"`
	stampJSON
	Value Value `json:"value"`
}

// MarshalJSON flattens the timestamp fields into the sample object
func (s Sample) MarshalJSON() ([]byte, error) {
	return json.Marshal(sampleJSON{ID: s.ID, stampJSON: s.Time.toJSON(), Value: s.Value})
}

// UnmarshalJSON reads either timestamp or start_timestamp/end_timestamp
func (s *Sample) UnmarshalJSON(data []byte) error {
	var raw sampleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ts, err := raw.stampJSON.toTimestamp()
	if err != nil {
		return err
	}
	*s = Sample{ID: raw.ID, Time: ts, Value: raw.Value}
	return nil
}

// Series represents a complete signal sequence
type Series struct {
	ID         string     `json:"id,omitempty"`
	Type       SeriesType `json:"type"`
	Samples    []Sample   `json:"signal_values"`
	Properties Properties `json:"additional_properties,omitempty"`
}

// Mode returns the timestamp mode every sample of the series must use
func (s Series) Mode() Mode {
	return s.Type.Mode()
}

// Validate checks that the type is known and that every sample uses the series mode
func (s Series) Validate() error {
	if !s.Type.Valid() {
		return fmt.Errorf("unknown series type %q", s.Type)
	}
	mode := s.Mode()
	for i, sample := range s.Samples {
		if sample.Time.Mode() != mode {
			return fmt.Errorf("sample %d: %s timestamp in %s series", i, sample.Time.Mode(), mode)
		}
		if sample.Time.Begin() > sample.Time.End() {
			return fmt.Errorf("sample %d: start_timestamp %d after end_timestamp %d",
				i, sample.Time.Begin(), sample.Time.End())
		}
	}
	return nil
}

// SortSamples orders samples by begin timestamp, keeping the order of ties
func (s *Series) SortSamples() {
	sort.SliceStable(s.Samples, func(i, j int) bool {
		return s.Samples[i].Time.Begin() < s.Samples[j].Time.Begin()
	})
}

// MultiSample is one aligned row: a shared timestamp and one value per source series
type MultiSample struct {
	Time   Timestamp
	Values []Value
}

type multiSampleJSON struct {
	stampJSON
	Values []Value `json:"values"`
}

// MarshalJSON flattens the timestamp fields into the row object
func (m MultiSample) MarshalJSON() ([]byte, error) {
	return json.Marshal(multiSampleJSON{stampJSON: m.Time.toJSON(), Values: m.Values})
}

// UnmarshalJSON reads a row written by MarshalJSON
func (m *MultiSample) UnmarshalJSON(data []byte) error {
	var raw multiSampleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ts, err := raw.stampJSON.toTimestamp()
	if err != nil {
		return err
	}
	*m = MultiSample{Time: ts, Values: raw.Values}
	return nil
}

// MultiSeries holds rows aligned across several series
type MultiSeries struct {
	Type      SeriesType    `json:"type"`
	SourceIDs []string      `json:"time_series_ids,omitempty"`
	Samples   []MultiSample `json:"signal_values"`
}
