package storage

import (
	"sort"
	"time"

	"github.com/vjranagit/tsengine/pkg/types"
)

// SeriesInfo describes a stored series without its samples
type SeriesInfo struct {
	ID         string           `json:"id"`
	Type       types.SeriesType `json:"type"`
	Count      int              `json:"count"`
	MinTime    int64            `json:"min_time"`
	MaxTime    int64            `json:"max_time"`
	Properties types.Properties `json:"additional_properties,omitempty"`
	// ExpiresAt is the Unix time in seconds when retention removes the series; 0 keeps it forever
	ExpiresAt uint64 `json:"expires_at,omitempty"`
}

// expired matches Badger's rule: an entry is gone once its expiry is not in the future
func (info *SeriesInfo) expired(now time.Time) bool {
	return info.ExpiresAt != 0 && info.ExpiresAt <= uint64(now.Unix())
}

// Index keeps series metadata per dataset plus an inverted property index.
// It is not safe for concurrent use; the owning storage serialises access.
type Index struct {
	// dataset -> series id -> metadata
	series map[string]map[string]*SeriesInfo
	// Inverted index: dataset -> property key -> property value -> sorted series IDs
	labelIndex map[string]map[string]map[string][]string
}

// NewIndex creates a new index
func NewIndex() *Index {
	return &Index{
		series:     make(map[string]map[string]*SeriesInfo),
		labelIndex: make(map[string]map[string]map[string][]string),
	}
}

// infoFor summarises a series for the index
func infoFor(series *types.Series) SeriesInfo {
	info := SeriesInfo{
		ID:         series.ID,
		Type:       series.Type,
		Count:      len(series.Samples),
		Properties: series.Properties,
	}
	for i, sample := range series.Samples {
		if i == 0 || sample.Time.Begin() < info.MinTime {
			info.MinTime = sample.Time.Begin()
		}
		if i == 0 || sample.Time.End() > info.MaxTime {
			info.MaxTime = sample.Time.End()
		}
	}
	return info
}

// AddSeries indexes a series, replacing any previous entry with the same id
func (idx *Index) AddSeries(datasetID string, info SeriesInfo) {
	idx.RemoveSeries(datasetID, info.ID)

	if idx.series[datasetID] == nil {
		idx.series[datasetID] = make(map[string]*SeriesInfo)
	}
	stored := info
	idx.series[datasetID][info.ID] = &stored

	labels := idx.labelIndex[datasetID]
	if labels == nil {
		labels = make(map[string]map[string][]string)
		idx.labelIndex[datasetID] = labels
	}
	for name, value := range info.Properties.Labels() {
		if labels[name] == nil {
			labels[name] = make(map[string][]string)
		}
		labels[name][value] = insertSorted(labels[name][value], info.ID)
	}
}

// RemoveSeries drops a series from the index; it reports whether it was present
func (idx *Index) RemoveSeries(datasetID, id string) bool {
	meta, ok := idx.series[datasetID][id]
	if !ok {
		return false
	}
	delete(idx.series[datasetID], id)

	labels := idx.labelIndex[datasetID]
	for name, value := range meta.Properties.Labels() {
		ids := removeSorted(labels[name][value], id)
		if len(ids) == 0 {
			delete(labels[name], value)
			if len(labels[name]) == 0 {
				delete(labels, name)
			}
			continue
		}
		labels[name][value] = ids
	}
	return true
}

// GetSeries retrieves series metadata by ID
func (idx *Index) GetSeries(datasetID, id string) (*SeriesInfo, bool) {
	meta, ok := idx.series[datasetID][id]
	return meta, ok
}

// FindSeries finds series of a dataset whose properties match every selector.
// Results are sorted by id.
func (idx *Index) FindSeries(datasetID string, selectors map[string]string) []string {
	if len(selectors) == 0 {
		result := make([]string, 0, len(idx.series[datasetID]))
		for id := range idx.series[datasetID] {
			result = append(result, id)
		}
		sort.Strings(result)
		return result
	}

	var result []string
	first := true

	for name, value := range selectors {
		ids, ok := idx.labelIndex[datasetID][name][value]
		if !ok {
			return nil
		}

		if first {
			result = append([]string(nil), ids...)
			first = false
		} else {
			result = intersect(result, ids)
		}

		if len(result) == 0 {
			return nil
		}
	}

	return result
}

// SeriesCount returns the number of indexed series across all datasets
func (idx *Index) SeriesCount() int {
	n := 0
	for _, byID := range idx.series {
		n += len(byID)
	}
	return n
}

// RemoveExpired drops every series whose retention has run out and returns how many went
func (idx *Index) RemoveExpired(now time.Time) int {
	var gone [][2]string
	for datasetID, byID := range idx.series {
		for id, meta := range byID {
			if meta.expired(now) {
				gone = append(gone, [2]string{datasetID, id})
			}
		}
	}
	for _, key := range gone {
		idx.RemoveSeries(key[0], key[1])
	}
	return len(gone)
}

// Clear clears the index
func (idx *Index) Clear() {
	idx.series = make(map[string]map[string]*SeriesInfo)
	idx.labelIndex = make(map[string]map[string]map[string][]string)
}

// intersect finds common elements in two sorted slices
func intersect(a, b []string) []string {
	result := make([]string, 0)
	i, j := 0, 0

	for i < len(a) && j < len(b) {
		if a[i] < b[j] {
			i++
		} else if a[i] > b[j] {
			j++
		} else {
			result = append(result, a[i])
			i++
			j++
		}
	}

	return result
}

func insertSorted(ids []string, id string) []string {
	i := sort.SearchStrings(ids, id)
	if i < len(ids) && ids[i] == id {
		return ids
	}
	ids = append(ids, "")
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	return ids
}

func removeSorted(ids []string, id string) []string {
	i := sort.SearchStrings(ids, id)
	if i == len(ids) || ids[i] != id {
		return ids
	}
	return append(ids[:i], ids[i+1:]...)
}
