package api

import (
	"github.com/measurestack/measurestack/pkg/spc"
	"github.com/measurestack/measurestack/pkg/types"
	"github.com/measurestack/measurestack/server/internal/store"
)

// Working-set states reported by the summary endpoints.
const (
	StateOK    = "ok"
	StateEmpty = "empty"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status   string `json:"status"`
	Datasets int    `json:"datasets"`
	Records  int    `json:"records"`
	Version  uint64 `json:"version"`
}

// SummaryResponse is the payload for GET /api/v1/summary and the data of
// every websocket "summary" event. With no records it encodes as
// {"count":0,"state":"empty"}.
type SummaryResponse struct {
	*spc.Summary
	Count    int    `json:"count"`
	State    string `json:"state"`
	Datasets int    `json:"datasets,omitempty"`
}

// RecordsResponse is the payload for GET /api/v1/records and /records/tail.
type RecordsResponse struct {
	// Total is the number of records that matched before limit was applied.
	Total   int            `json:"total"`
	Records []types.Record `json:"records"`
}

// HistogramResponse is the payload for GET /api/v1/histogram.
type HistogramResponse struct {
	Bins []spc.Bin        `json:"bins"`
	Spec types.SpecLimits `json:"spec"`
}

// UploadResponse is the payload for POST /api/v1/datasets.
type UploadResponse struct {
	Datasets []store.Info `json:"datasets"`
	// Skipped lists uploaded files that contained no data rows.
	Skipped []string `json:"skipped,omitempty"`
}

// Hint is one deterministic observation about the working set.
type Hint struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical".
	Level  string   `json:"level"`
	Title  string   `json:"title"`
	Detail string   `json:"detail"`
	Value  *float64 `json:"value,omitempty"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
