package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vjranagit/tsengine/pkg/storage"
	"github.com/vjranagit/tsengine/pkg/transform"
	"github.com/vjranagit/tsengine/pkg/types"
)

const dataset = "experiment-7"

func newService(t *testing.T) (*TimeSeriesService, storage.Storage) {
	t.Helper()
	store, err := storage.NewStorage(&storage.Config{InMemory: true, CompressionLevel: 1})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewTimeSeriesService(nil, store), store
}

func pointSeries(values map[int64]float64, order ...int64) *types.Series {
	s := &types.Series{Type: types.TypeTimestamp}
	for _, at := range order {
		s.Samples = append(s.Samples, types.Sample{Time: types.At(at), Value: types.Number(values[at])})
	}
	return s
}

func create(t *testing.T, svc *TimeSeriesService, s *types.Series) string {
	t.Helper()
	created, err := svc.Create(context.Background(), dataset, s)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	return created.ID
}

func float(f float64) *float64 { return &f }

func TestCreateAndGet(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	in := pointSeries(map[int64]float64{10: 1, 20: 2, 30: 3}, 30, 10, 20)
	in.ID = "client-chosen"
	in.Samples[0].ID = "ignored"
	id := create(t, svc, in)
	assert.NotEqual(t, "client-chosen", id)

	got, err := svc.Get(ctx, dataset, id, ValueRange{})
	require.NoError(t, err)
	require.Len(t, got.Samples, 3)
	assert.Equal(t, int64(10), got.Samples[0].Time.Begin())
	assert.Equal(t, id+"/0", got.Samples[0].ID)
}

func TestCreateRejectsInvalidSeries(t *testing.T) {
	svc, _ := newService(t)

	mixed := &types.Series{
		Type: types.TypeTimestamp,
		Samples: []types.Sample{
			{Time: types.At(1), Value: types.Int(1)},
			{Time: types.Between(2, 3), Value: types.Int(2)},
		},
	}
	_, err := svc.Create(context.Background(), dataset, mixed)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestGetValueRange(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	s := pointSeries(map[int64]float64{1: -5, 2: 0, 3: 5, 4: 10}, 1, 2, 3, 4)
	s.Samples = append(s.Samples, types.Sample{Time: types.At(5), Value: types.Text("n/a")})
	id := create(t, svc, s)

	tests := []struct {
		name string
		r    ValueRange
		want []int64
	}{
		{"unbounded keeps text", ValueRange{}, []int64{1, 2, 3, 4, 5}},
		{"min inclusive", ValueRange{Min: float(0)}, []int64{2, 3, 4}},
		{"max inclusive", ValueRange{Max: float(5)}, []int64{1, 2, 3}},
		{"both", ValueRange{Min: float(0), Max: float(5)}, []int64{2, 3}},
		{"empty window", ValueRange{Min: float(6), Max: float(9)}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Get(ctx, dataset, id, tt.r)
			require.NoError(t, err)
			var at []int64
			for _, sample := range got.Samples {
				at = append(at, sample.Time.Begin())
			}
			assert.Equal(t, tt.want, at)
		})
	}
}

func TestTransformQuadrantsPersistsProvenance(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	x := create(t, svc, pointSeries(map[int64]float64{100: 1, 200: -1, 300: -2, 400: 3}, 100, 200, 300, 400))
	y := create(t, svc, pointSeries(map[int64]float64{100: 1, 200: 2, 400: -3}, 100, 200, 400))

	derived, err := svc.Transform(ctx, dataset, TransformationRequest{
		Name:      transform.Quadrants,
		SourceIDs: []string{x, y},
	})
	require.NoError(t, err)
	require.Len(t, derived.Samples, 3)

	var quadrants []int64
	for _, sample := range derived.Samples {
		q, err := sample.Value.Int64()
		require.NoError(t, err)
		quadrants = append(quadrants, q)
	}
	assert.Equal(t, []int64{1, 2, 4}, quadrants)

	name, ok := derived.Properties.Lookup(transform.ParamTransformationName)
	require.True(t, ok)
	assert.Equal(t, "quadrants", name.String())

	links, err := svc.Provenance(ctx, dataset, derived.ID)
	require.NoError(t, err)
	require.Len(t, links, 3)
	assert.Equal(t, derived.Samples[0].ID, links[0].SampleID)
	assert.Equal(t, []string{x + "/0", y + "/0"}, links[0].SourceIDs)
	assert.Equal(t, []string{x + "/3", y + "/2"}, links[2].SourceIDs)

	found, err := svc.List(ctx, dataset, map[string]string{transform.ParamTransformationName: "quadrants"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, derived.ID, found[0].ID)
}

func TestTransformResample(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	src := create(t, svc, pointSeries(map[int64]float64{0: 1, 10: 2, 20: 3}, 0, 10, 20))

	derived, err := svc.Transform(ctx, dataset, TransformationRequest{
		Name:      transform.ResampleNearest,
		SourceIDs: []string{src},
		Properties: types.Properties{
			{Key: transform.ParamPeriod, Value: types.Int(5)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, types.TypeTimestamp, derived.Type)
	assert.Len(t, derived.Samples, 5)

	stored, err := svc.Get(ctx, dataset, derived.ID, ValueRange{})
	require.NoError(t, err)
	assert.Len(t, stored.Samples, 5)
}

func TestTransformErrors(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	src := create(t, svc, pointSeries(map[int64]float64{0: 1}, 0))

	tests := []struct {
		name string
		req  TransformationRequest
		want error
	}{
		{"unknown name", TransformationRequest{Name: "fourier", SourceIDs: []string{src}}, transform.ErrUnsupported},
		{"unknown name before load", TransformationRequest{Name: "fourier", SourceIDs: []string{"nope"}}, transform.ErrUnsupported},
		{"missing source", TransformationRequest{Name: transform.Quadrants, SourceIDs: []string{src, "nope"}}, storage.ErrNotFound},
		{"wrong arity", TransformationRequest{Name: transform.Quadrants, SourceIDs: []string{src}}, transform.ErrPrecondition},
		{"missing period", TransformationRequest{Name: transform.ResampleNearest, SourceIDs: []string{src}}, transform.ErrPrecondition},
		{"bad period", TransformationRequest{
			Name:       transform.ResampleNearest,
			SourceIDs:  []string{src},
			Properties: types.Properties{{Key: transform.ParamPeriod, Value: types.Text("often")}},
		}, transform.ErrMalformedParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Transform(ctx, dataset, tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.True(t, isClientError(err))
		})
	}

	// Nothing derived was stored
	all, err := store.ListSeries(ctx, dataset, nil)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

// failingProvenance stores series normally but refuses provenance writes
type failingProvenance struct {
	storage.Storage
}

func (failingProvenance) SaveProvenance(context.Context, string, string, []storage.Link) error {
	return errors.New("disk full")
}

func TestTransformRemovesDerivedSeriesWhenProvenanceFails(t *testing.T) {
	_, store := newService(t)
	svc := NewTimeSeriesService(nil, failingProvenance{store})
	ctx := context.Background()

	x := create(t, svc, pointSeries(map[int64]float64{1: 1, 2: -1}, 1, 2))
	y := create(t, svc, pointSeries(map[int64]float64{1: 1, 2: 1}, 1, 2))

	derived, err := svc.Transform(ctx, dataset, TransformationRequest{
		Name:      transform.Quadrants,
		SourceIDs: []string{x, y},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Nil(t, derived)
	assert.False(t, isClientError(err))

	all, err := store.ListSeries(ctx, dataset, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	found, err := store.ListSeries(ctx, dataset, map[string]string{transform.ParamTransformationName: "quadrants"})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestMultidimensional(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	a := create(t, svc, pointSeries(map[int64]float64{1: 10, 2: 20, 3: 30}, 1, 2, 3))
	b := create(t, svc, pointSeries(map[int64]float64{2: 200, 3: 300, 4: 400}, 2, 3, 4))

	out, err := svc.Multidimensional(ctx, dataset, []string{a, b})
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, out.SourceIDs)
	require.Len(t, out.Samples, 2)
	assert.True(t, out.Samples[0].Time.Equal(types.At(2)))
	assert.True(t, out.Samples[0].Values[1].Equal(types.Int(200)))

	_, err = svc.Multidimensional(ctx, dataset, []string{a, ""})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Multidimensional(ctx, dataset, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDelete(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	id := create(t, svc, pointSeries(map[int64]float64{1: 1}, 1))
	require.NoError(t, svc.Delete(ctx, dataset, id))

	_, err := svc.Get(ctx, dataset, id, ValueRange{})
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, dataset, id), storage.ErrNotFound)
}
