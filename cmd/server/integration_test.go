package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nicktill/tinyquery/internal/index"
	"github.com/nicktill/tinyquery/internal/ingest"
	"github.com/nicktill/tinyquery/internal/retention"
	"github.com/nicktill/tinyquery/internal/server"
	"github.com/nicktill/tinyquery/internal/storage/memstore"
)

func newTestServer() *server.Server {
	idx := index.NewIndex(index.NewPageCache())
	store := memstore.New(idx)
	ingestHandler := ingest.NewHandler(store, idx)
	return server.New(store, idx, ingestHandler, nil, nil, nil)
}

func TestE2E_IngestAndInstantQuery(t *testing.T) {
	srv := newTestServer()
	ts := httptest.NewServer(srv.Router)
	defer ts.Close()

	ingestBody, err := json.Marshal(map[string]interface{}{
		"labels": `cpu_usage{host="server1"}`,
		"t":      1_700_000_000_000,
		"v":      75.5,
	})
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/v1/ingest", "application/json", bytes.NewReader(ingestBody))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	queryURL := ts.URL + `/v1/query/instant?query=` + `cpu_usage%7Bhost%3D%22server1%22%7D` + `&time=1700000000`
	qResp, err := http.Get(queryURL)
	require.NoError(t, err)
	defer qResp.Body.Close()
	require.Equal(t, http.StatusOK, qResp.StatusCode)

	var body struct {
		Status string `json:"status"`
		Data   struct {
			ResultType string `json:"resultType"`
			Result     []struct {
				Metric map[string]string `json:"metric"`
				Value  []interface{}      `json:"value"`
			} `json:"result"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(qResp.Body).Decode(&body))
	require.Equal(t, "success", body.Status)
	require.Equal(t, "vector", body.Data.ResultType)
	require.Len(t, body.Data.Result, 1)
	require.Equal(t, "server1", body.Data.Result[0].Metric["host"])
}

func TestE2E_HealthEndpointWithoutRetention(t *testing.T) {
	srv := newTestServer()
	ts := httptest.NewServer(srv.Router)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestE2E_HealthEndpointReflectsRetentionJobStatus(t *testing.T) {
	idx := index.NewIndex(index.NewPageCache())
	store := memstore.New(idx)
	ingestHandler := ingest.NewHandler(store, idx)
	job := retention.New(store, time.Hour, time.Hour)
	srv := server.New(store, idx, ingestHandler, nil, job, nil)

	ts := httptest.NewServer(srv.Router)
	defer ts.Close()

	// The job has never completed a run, so it should report degraded.
	resp, err := http.Get(ts.URL + "/v1/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestE2E_CardinalityEndpoint(t *testing.T) {
	srv := newTestServer()
	ts := httptest.NewServer(srv.Router)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/cardinality")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
