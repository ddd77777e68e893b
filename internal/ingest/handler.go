// Package ingest implements the ingestion entry point: parsing bare
// vector-selector text into equality matchers, registering new series
// against the shared label index, and appending samples to storage. It
// also serves the label-values and cardinality endpoints.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nicktill/tinyquery/internal/config"
	"github.com/nicktill/tinyquery/internal/httpx"
	"github.com/nicktill/tinyquery/internal/index"
	"github.com/nicktill/tinyquery/internal/labels"
	"github.com/nicktill/tinyquery/internal/lang"
	"github.com/nicktill/tinyquery/internal/storage"
)

// Handler serves the ingestion and label-introspection HTTP endpoints.
type Handler struct {
	store storage.Storage
	index *index.Index
	card  *Tracker
	hub   *Hub // optional; nil disables live event publishing
}

// NewHandler builds a Handler backed by store and idx. idx must be the
// same label index store's matchers are resolved against at query time.
func NewHandler(store storage.Storage, idx *index.Index) *Handler {
	return &Handler{store: store, index: idx, card: NewTracker()}
}

// SetHub attaches a live-feed Hub; newly registered series and ingested
// sample counts are published to it.
func (h *Handler) SetHub(hub *Hub) {
	h.hub = hub
}

// ingestRequest is the POST /v1/ingest body: a bare vector-selector
// string (e.g. `up{job="x"}`) plus an explicit timestamp and value.
type ingestRequest struct {
	Labels string  `json:"labels"`
	T      int64   `json:"t"`
	V      float64 `json:"v"`
}

type ingestResponse struct {
	Status string `json:"status"`
	SID    uint64 `json:"sid"`
}

// HandleIngest implements POST /v1/ingest.
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.RespondError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.RespondError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if req.Labels == "" {
		httpx.RespondError(w, http.StatusBadRequest, fmt.Errorf("labels is required"))
		return
	}
	if req.T == 0 {
		req.T = time.Now().UnixMilli()
	}

	ls, err := parseEqualityLabels(req.Labels)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}

	isNew := !h.alreadyRegistered(ls)
	if isNew {
		name, _ := ls.Get(labels.MetricName)
		if err := h.card.CheckNew(name); err != nil {
			httpx.RespondError(w, http.StatusTooManyRequests, err)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.IngestTimeout)
	defer cancel()

	app := h.store.Appender()
	if err := app.Add(ctx, ls, req.T, req.V); err != nil {
		httpx.RespondError(w, http.StatusInternalServerError, fmt.Errorf("append sample: %w", err))
		return
	}
	if err := app.Commit(); err != nil {
		httpx.RespondError(w, http.StatusInternalServerError, fmt.Errorf("commit: %w", err))
		return
	}

	sid := h.index.AddSeries(ls)
	if isNew {
		name, _ := ls.Get(labels.MetricName)
		h.card.RecordNew(name, ls)
		if h.hub != nil {
			h.hub.PublishNewSeries(name, ls.Map())
		}
	}
	if h.hub != nil {
		h.hub.PublishSample()
	}

	httpx.RespondJSON(w, http.StatusOK, ingestResponse{Status: "success", SID: uint64(sid)})
}

// alreadyRegistered reports whether ls has already been assigned a SID,
// without registering it -- used only to decide whether a cardinality
// check is needed before the real AddSeries call.
func (h *Handler) alreadyRegistered(ls labels.Set) bool {
	_, ok := h.index.Lookup(ls)
	return ok
}

// parseEqualityLabels parses text as a bare vector selector and returns
// its matchers as a label set, rejecting anything but equality matchers:
// ingestion identifies a series, it doesn't query one.
func parseEqualityLabels(text string) (labels.Set, error) {
	expr, err := lang.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse labels: %w", err)
	}
	sel, ok := expr.(*lang.VectorSelector)
	if !ok {
		return nil, fmt.Errorf("labels must be a bare vector selector")
	}
	if len(sel.Matchers) == 0 {
		return nil, fmt.Errorf("labels selector must have at least one matcher")
	}

	out := make(labels.Set, 0, len(sel.Matchers))
	for _, m := range sel.Matchers {
		if m.Op != lang.MatchEQ {
			return nil, fmt.Errorf("ingest only accepts equality matchers, got %q on %q", m.Op, m.Name)
		}
		out = append(out, labels.Label{Name: m.Name, Value: m.Value})
	}
	return out.Sorted(), nil
}

// HandleLabelValues implements GET /v1/label_values?name=...
func (h *Handler) HandleLabelValues(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		httpx.RespondError(w, http.StatusBadRequest, fmt.Errorf("name parameter is required"))
		return
	}
	values := h.index.LabelValues(name)
	httpx.RespondJSON(w, http.StatusOK, struct {
		Status string   `json:"status"`
		Data   []string `json:"data"`
	}{Status: "success", Data: values})
}

// HandleCardinality implements GET /v1/cardinality.
func (h *Handler) HandleCardinality(w http.ResponseWriter, r *http.Request) {
	stats := h.card.Stats()
	stats.TotalSeries = h.index.SeriesCount()
	httpx.RespondJSON(w, http.StatusOK, stats)
}
