package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/vjranagit/tsengine/pkg/metrics"
	"github.com/vjranagit/tsengine/pkg/storage"
	"github.com/vjranagit/tsengine/pkg/transform"
	"github.com/vjranagit/tsengine/pkg/types"
)

// ErrInvalidInput reports a request the service refuses before touching the engine
var ErrInvalidInput = errors.New("invalid input")

// ValueRange bounds sample values on reads; nil bounds are open. Both bounds
// are inclusive and non-numeric values fall outside any bounded range.
type ValueRange struct {
	Min *float64
	Max *float64
}

func (r ValueRange) bounded() bool {
	return r.Min != nil || r.Max != nil
}

func (r ValueRange) contains(v types.Value) bool {
	f, err := v.Float()
	if err != nil {
		return false
	}
	if r.Min != nil && f < *r.Min {
		return false
	}
	if r.Max != nil && f > *r.Max {
		return false
	}
	return true
}

// TransformationRequest names a transformation, its ordered source series and
// its parameters
type TransformationRequest struct {
	Name       transform.Name   `json:"name"`
	SourceIDs  []string         `json:"source_time_series_ids"`
	Properties types.Properties `json:"additional_properties,omitempty"`
}

// TimeSeriesService loads series from storage, runs transformations over them
// and persists derived series with their provenance.
type TimeSeriesService struct {
	logger *slog.Logger
	store  storage.Storage
	now    func() time.Time
}

// NewTimeSeriesService constructs the service facade.
func NewTimeSeriesService(logger *slog.Logger, store storage.Storage) *TimeSeriesService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TimeSeriesService{
		logger: logger,
		store:  store,
		now:    time.Now,
	}
}

// Create validates and stores a new series. Ids are assigned by storage.
func (s *TimeSeriesService) Create(ctx context.Context, datasetID string, series *types.Series) (*types.Series, error) {
	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	series.ID = ""
	for i := range series.Samples {
		series.Samples[i].ID = ""
	}

	if err := s.store.SaveSeries(ctx, datasetID, series); err != nil {
		return nil, fmt.Errorf("create series: %w", err)
	}

	s.logger.Debug("series created",
		slog.String("dataset", datasetID),
		slog.String("series_id", series.ID),
		slog.Int("samples", len(series.Samples)))
	return series, nil
}

// Get loads a series, keeping only samples inside r when r is bounded
func (s *TimeSeriesService) Get(ctx context.Context, datasetID, id string, r ValueRange) (*types.Series, error) {
	series, err := s.store.GetSeries(ctx, datasetID, id)
	if err != nil {
		return nil, err
	}
	if !r.bounded() {
		return series, nil
	}

	kept := series.Samples[:0]
	for _, sample := range series.Samples {
		if r.contains(sample.Value) {
			kept = append(kept, sample)
		}
	}
	series.Samples = kept
	return series, nil
}

// List summarises the series of a dataset matching every property selector
func (s *TimeSeriesService) List(ctx context.Context, datasetID string, selectors map[string]string) ([]storage.SeriesInfo, error) {
	return s.store.ListSeries(ctx, datasetID, selectors)
}

// Delete removes a series and its provenance
func (s *TimeSeriesService) Delete(ctx context.Context, datasetID, id string) error {
	if err := s.store.DeleteSeries(ctx, datasetID, id); err != nil {
		return err
	}
	s.logger.Debug("series deleted", slog.String("dataset", datasetID), slog.String("series_id", id))
	return nil
}

// Provenance returns the source sample ids behind each sample of a derived series
func (s *TimeSeriesService) Provenance(ctx context.Context, datasetID, id string) ([]storage.Link, error) {
	return s.store.GetProvenance(ctx, datasetID, id)
}

// Transform runs req over its source series and stores the derived series
// followed by one provenance link per derived sample.
func (s *TimeSeriesService) Transform(ctx context.Context, datasetID string, req TransformationRequest) (*types.Series, error) {
	start := s.now()

	derived, err := s.transform(ctx, datasetID, req)
	duration := s.now().Sub(start)

	if err != nil {
		outcome := metrics.OutcomeError
		if isClientError(err) {
			outcome = metrics.OutcomeRejected
		}
		metrics.ObserveTransformation(string(req.Name), duration, outcome, 0)
		s.logger.Warn("transformation failed",
			slog.String("dataset", datasetID),
			slog.String("transformation", string(req.Name)),
			slog.Any("sources", req.SourceIDs),
			slog.String("outcome", outcome),
			slog.Any("error", err))
		return nil, err
	}

	metrics.ObserveTransformation(string(req.Name), duration, metrics.OutcomeSuccess, len(derived.Samples))
	s.logger.Info("transformation completed",
		slog.String("dataset", datasetID),
		slog.String("transformation", string(req.Name)),
		slog.String("series_id", derived.ID),
		slog.Int("samples", len(derived.Samples)),
		slog.Duration("duration", duration))
	return derived, nil
}

func (s *TimeSeriesService) transform(ctx context.Context, datasetID string, req TransformationRequest) (*types.Series, error) {
	if !slices.Contains(transform.Names(), req.Name) {
		return nil, fmt.Errorf("%w: %q", transform.ErrUnsupported, req.Name)
	}

	sources, err := s.load(ctx, datasetID, req.SourceIDs)
	if err != nil {
		return nil, err
	}

	result, err := transform.Dispatch(req.Name, sources, req.Properties)
	if err != nil {
		return nil, err
	}

	derived := &result.Series
	if err := s.store.SaveSeries(ctx, datasetID, derived); err != nil {
		return nil, fmt.Errorf("save derived series: %w", err)
	}

	links := make([]storage.Link, len(derived.Samples))
	for i, sample := range derived.Samples {
		links[i] = storage.Link{SampleID: sample.ID, SourceIDs: result.Provenance[i]}
	}
	if err := s.store.SaveProvenance(ctx, datasetID, derived.ID, links); err != nil {
		// A derived series is never left behind without its provenance
		if derr := s.store.DeleteSeries(ctx, datasetID, derived.ID); derr != nil {
			s.logger.Error("failed to remove derived series",
				slog.String("dataset", datasetID),
				slog.String("series_id", derived.ID),
				slog.Any("error", derr))
		}
		return nil, fmt.Errorf("save provenance: %w", err)
	}

	return derived, nil
}

// Multidimensional aligns the listed series on their shared timestamps
func (s *TimeSeriesService) Multidimensional(ctx context.Context, datasetID string, ids []string) (*types.MultiSeries, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: at least one series id is required", ErrInvalidInput)
	}
	for i, id := range ids {
		if id == "" {
			return nil, fmt.Errorf("%w: series id %d is empty", ErrInvalidInput, i)
		}
	}

	sources, err := s.load(ctx, datasetID, ids)
	if err != nil {
		return nil, err
	}
	return transform.Multidimensional(sources)
}

// load reads series in the given order; the engine relies on it
func (s *TimeSeriesService) load(ctx context.Context, datasetID string, ids []string) ([]types.Series, error) {
	sources := make([]types.Series, 0, len(ids))
	for _, id := range ids {
		series, err := s.store.GetSeries(ctx, datasetID, id)
		if err != nil {
			return nil, fmt.Errorf("load source series: %w", err)
		}
		sources = append(sources, *series)
	}
	return sources, nil
}

// isClientError reports errors caused by the request rather than the service
func isClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, storage.ErrNotFound) ||
		errors.Is(err, transform.ErrPrecondition) ||
		errors.Is(err, transform.ErrMalformedParameter) ||
		errors.Is(err, transform.ErrUnsupported)
}
