package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vjranagit/tsengine/pkg/metrics"
	"github.com/vjranagit/tsengine/pkg/service"
	"github.com/vjranagit/tsengine/pkg/storage"
	"github.com/vjranagit/tsengine/pkg/types"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	store, err := storage.NewStorage(&storage.Config{InMemory: true, CompressionLevel: 1})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reg := prometheus.NewRegistry()
	require.NoError(t, metrics.Register(reg))
	require.NoError(t, metrics.RegisterStorage(reg, store))

	srv := NewServer(Config{Addr: "127.0.0.1:0"}, service.NewTimeSeriesService(nil, store), reg, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func createSeries(t *testing.T, base, body string) types.Series {
	t.Helper()
	resp, data := do(t, http.MethodPost, base+"/api/v1/datasets/ds/time_series", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))

	var s types.Series
	require.NoError(t, json.Unmarshal(data, &s))
	return s
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	resp, body := do(t, http.MethodGet, ts.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"healthy"}`, string(body))
}

func TestSeriesLifecycle(t *testing.T) {
	ts := newTestServer(t)

	created := createSeries(t, ts.URL, `{
		"type": "Timestamp",
		"signal_values": [
			{"timestamp": 20, "value": 7},
			{"timestamp": 10, "value": 3},
			{"timestamp": 30, "value": "off"}
		],
		"additional_properties": [{"key": "sensor", "value": "hr"}]
	}`)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, int64(10), created.Samples[0].Time.Begin())

	seriesURL := ts.URL + "/api/v1/datasets/ds/time_series/" + created.ID

	resp, body := do(t, http.MethodGet, seriesURL+"?signal_min_value=5", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var filtered types.Series
	require.NoError(t, json.Unmarshal(body, &filtered))
	require.Len(t, filtered.Samples, 1)
	assert.True(t, filtered.Samples[0].Value.Equal(types.Int(7)))

	resp, _ = do(t, http.MethodGet, seriesURL+"?signal_max_value=high", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, body = do(t, http.MethodGet, ts.URL+"/api/v1/datasets/ds/time_series?sensor=hr", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		TimeSeries []storage.SeriesInfo `json:"time_series"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list.TimeSeries, 1)
	assert.Equal(t, created.ID, list.TimeSeries[0].ID)

	resp, _ = do(t, http.MethodDelete, seriesURL, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, seriesURL, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateRejectsBadBodies(t *testing.T) {
	ts := newTestServer(t)
	url := ts.URL + "/api/v1/datasets/ds/time_series"

	resp, _ := do(t, http.MethodPost, url, `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, url, `{"type":"Timestamp","signal_values":[{"start_timestamp":1,"end_timestamp":2,"value":1}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestTransformation(t *testing.T) {
	ts := newTestServer(t)

	x := createSeries(t, ts.URL, `{"type":"Timestamp","signal_values":[{"timestamp":1,"value":2},{"timestamp":2,"value":-2}]}`)
	y := createSeries(t, ts.URL, `{"type":"Timestamp","signal_values":[{"timestamp":1,"value":-1},{"timestamp":2,"value":-1}]}`)

	body := `{"name":"quadrants","source_time_series_ids":["` + x.ID + `","` + y.ID + `"],
		"additional_properties":[{"key":"origin_x","value":0}]}`
	resp, data := do(t, http.MethodPost, ts.URL+"/api/v1/datasets/ds/time_series/transformation", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))

	var derived types.Series
	require.NoError(t, json.Unmarshal(data, &derived))
	require.Len(t, derived.Samples, 2)
	assert.True(t, derived.Samples[0].Value.Equal(types.Int(4)))
	assert.True(t, derived.Samples[1].Value.Equal(types.Int(3)))

	resp, data = do(t, http.MethodGet, ts.URL+"/api/v1/datasets/ds/provenance/"+derived.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var prov struct {
		Links []storage.Link `json:"links"`
	}
	require.NoError(t, json.Unmarshal(data, &prov))
	require.Len(t, prov.Links, 2)
	assert.Equal(t, []string{x.ID + "/1", y.ID + "/1"}, prov.Links[1].SourceIDs)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/v1/datasets/ds/time_series/transformation",
		`{"name":"fft","source_time_series_ids":["`+x.ID+`"]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/v1/datasets/ds/time_series/transformation",
		`{"name":"quadrants","source_time_series_ids":["`+x.ID+`","missing"]}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, data = do(t, http.MethodGet, ts.URL+"/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `tsengine_transformations_total{outcome="success",transformation="quadrants"}`)
	assert.Contains(t, string(data), "tsengine_stored_series 3")
}

func TestMultidimensionalEndpoint(t *testing.T) {
	ts := newTestServer(t)

	a := createSeries(t, ts.URL, `{"type":"Epoch","signal_values":[{"start_timestamp":0,"end_timestamp":5,"value":1},{"start_timestamp":5,"end_timestamp":10,"value":2}]}`)
	b := createSeries(t, ts.URL, `{"type":"Epoch","signal_values":[{"start_timestamp":5,"end_timestamp":10,"value":20}]}`)

	resp, data := do(t, http.MethodGet, ts.URL+"/api/v1/datasets/ds/time_series/multidimensional/"+a.ID+","+b.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))

	var out types.MultiSeries
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out.Samples, 1)
	assert.True(t, out.Samples[0].Time.Equal(types.Between(5, 10)))
	assert.Equal(t, []string{a.ID, b.ID}, out.SourceIDs)

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/v1/datasets/ds/time_series/multidimensional/"+a.ID+",", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}
