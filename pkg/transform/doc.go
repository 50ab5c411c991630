// Package transform derives new signal series from stored ones.
//
// Three transformations are provided:
//
//   - resample_nearest: one source, regularly spaced point output, nearest-neighbour lookup
//   - quadrants: two sources, categorical output classifying (x, y) pairs against an origin
//   - Multidimensional: one or more sources, rows of values at timestamps present in all of them
//
// The first two are selected by name through Dispatch and return a Result that maps every
// output sample back to the identities of the source samples that produced it. The
// multidimensional alignment has its own entry point because its output is a row of values
// rather than a derived series.
//
// Every function here is pure: sources are read, never modified, and nothing is retained
// between calls. Sources must be sorted by begin timestamp; that ordering is not re-checked.
// All alignment goes through a forward-only cursor (align.go), so the cost of a call is
// linear in the total number of samples involved.
package transform
