package transform

import "github.com/vjranagit/tsengine/pkg/types"

// cursor is a forward-only position in one series. It is never rewound within
// a transformation call, so aligning n driver samples against m samples costs
// O(n+m) no matter how many lookups are made.
type cursor struct {
	samples []types.Sample
	pos     int
}

func newCursor(samples []types.Sample) *cursor {
	return &cursor{samples: samples}
}

// seek advances to the first sample whose begin timestamp is >= begin.
// Targets must be non-decreasing across calls.
func (c *cursor) seek(begin int64) {
	for c.pos < len(c.samples) && c.samples[c.pos].Time.Begin() < begin {
		c.pos++
	}
}

// exhausted reports whether every sample begins before the last seek target
func (c *cursor) exhausted() bool {
	return c.pos >= len(c.samples)
}

// match seeks to ts and returns the sample there when its timestamp has exactly
// the same representation as ts
func (c *cursor) match(ts types.Timestamp) (types.Sample, bool) {
	c.seek(ts.Begin())
	if c.exhausted() {
		return types.Sample{}, false
	}
	candidate := c.samples[c.pos]
	if !candidate.Time.Equal(ts) {
		return types.Sample{}, false
	}
	return candidate, true
}
