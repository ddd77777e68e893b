package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/nicktill/tinyquery/internal/config"
	"github.com/nicktill/tinyquery/internal/eval"
	"github.com/nicktill/tinyquery/internal/httpx"
	"github.com/nicktill/tinyquery/internal/lang"
	"github.com/nicktill/tinyquery/internal/result"
)

// executeRequest is the POST /v1/query/execute body: a query string plus
// an explicit [start, end] window and step.
type executeRequest struct {
	Query string `json:"query"`
	Start int64  `json:"start"` // unix ms
	End   int64  `json:"end"`   // unix ms
	Step  int64  `json:"step"`  // ms; 0 means an instant query at Start
}

// handleQueryExecute implements POST /v1/query/execute: the range/instant
// query entry with explicit millisecond bounds.
func (s *Server) handleQueryExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.RespondError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if req.Query == "" {
		httpx.RespondError(w, http.StatusBadRequest, fmt.Errorf("query is required"))
		return
	}
	if req.End == 0 {
		req.End = time.Now().UnixMilli()
	}
	if req.Start == 0 {
		req.Start = req.End - config.QueryDefaultWindow.Milliseconds()
	}

	s.runQuery(w, r, req.Query, req.Start, req.End, req.Step)
}

// handleQueryInstant implements GET/POST /v1/query/instant, Prometheus's
// `query`/`time` instant-query parameters.
func (s *Server) handleQueryInstant(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	queryStr := q.Get("query")
	if queryStr == "" {
		httpx.RespondError(w, http.StatusBadRequest, fmt.Errorf("query parameter is required"))
		return
	}
	now := time.Now()
	t := parsePrometheusTime(q.Get("time"), now)
	ts := t.UnixMilli()

	s.runQuery(w, r, queryStr, ts, ts, 0)
}

// handleQueryRange implements GET/POST /v1/query_range, Prometheus's
// `query`/`start`/`end`/`step` range-query parameters.
func (s *Server) handleQueryRange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	queryStr := q.Get("query")
	if queryStr == "" {
		httpx.RespondError(w, http.StatusBadRequest, fmt.Errorf("query parameter is required"))
		return
	}

	now := time.Now()
	start := parsePrometheusTime(q.Get("start"), now.Add(-config.QueryDefaultWindow))
	end := parsePrometheusTime(q.Get("end"), now)
	step := parsePrometheusDuration(q.Get("step"), config.QueryDefaultStep)

	s.runQuery(w, r, queryStr, start.UnixMilli(), end.UnixMilli(), step.Milliseconds())
}

// runQuery parses and type-checks queryStr, evaluates it over
// [startMs, endMs] stepped by stepMs, and writes the downcast result
// envelope -- the shared tail of every query endpoint.
func (s *Server) runQuery(w http.ResponseWriter, r *http.Request, queryStr string, startMs, endMs, stepMs int64) {
	expr, err := lang.Parse(queryStr)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}
	if err := lang.TypeCheck(expr); err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}

	if startMs > endMs {
		httpx.RespondError(w, http.StatusBadRequest, fmt.Errorf("start must not be after end"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.QueryTimeout)
	defer cancel()

	funcs := eval.NewFuncTable()
	executor := eval.NewExecutor(s.Storage, funcs, startMs, endMs, stepMs)
	matrix, err := executor.Eval(ctx, expr)
	if err != nil {
		httpx.RespondError(w, http.StatusInternalServerError, err)
		return
	}

	instant := startMs == endMs && stepMs <= 0
	val, err := result.FromMatrix(matrix, expr.Type(), instant)
	if err != nil {
		httpx.RespondError(w, http.StatusInternalServerError, err)
		return
	}
	httpx.RespondResult(w, val)
}

// parsePrometheusTime parses a Prometheus time parameter: a Unix
// timestamp in (possibly fractional) seconds, or RFC3339.
func parsePrometheusTime(param string, defaultTime time.Time) time.Time {
	if param == "" {
		return defaultTime
	}
	if unix, err := strconv.ParseFloat(param, 64); err == nil {
		sec := int64(unix)
		nsec := int64((unix - float64(sec)) * 1e9)
		return time.Unix(sec, nsec)
	}
	if t, err := time.Parse(time.RFC3339, param); err == nil {
		return t
	}
	return defaultTime
}

// parsePrometheusDuration parses a Prometheus duration parameter (e.g.
// "15s", "1m"), falling back to defaultDuration on any parse failure.
func parsePrometheusDuration(param string, defaultDuration time.Duration) time.Duration {
	if param == "" {
		return defaultDuration
	}
	if d, err := time.ParseDuration(param); err == nil {
		return d
	}
	return defaultDuration
}
