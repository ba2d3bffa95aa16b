package api_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/measurestack/measurestack/pkg/spc"
	"github.com/measurestack/measurestack/pkg/types"
	"github.com/measurestack/measurestack/server/internal/alerts"
	"github.com/measurestack/measurestack/server/internal/api"
	"github.com/measurestack/measurestack/server/internal/config"
	"github.com/measurestack/measurestack/server/internal/store"
)

// --- test helpers -----------------------------------------------------------

func newRepo(t *testing.T, datasets ...types.Dataset) *store.Repository {
	t.Helper()
	repo, err := store.Open(context.Background(), store.NewMemoryBackend())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	if len(datasets) > 0 {
		if err := repo.Add(context.Background(), datasets...); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	return repo
}

func dataset(id string, values ...float64) types.Dataset {
	recs := make([]types.Record, len(values))
	for i, v := range values {
		recs[i] = spc.NewRecord(fmt.Sprintf("%s-%02d", id, i), v, 10, 0)
		recs[i].Index = i
	}
	return types.Dataset{ID: id, Name: id + ".csv", Records: recs}
}

func newHandler(t *testing.T, repo *store.Repository) http.Handler {
	t.Helper()
	n := 0
	return api.New(repo, api.Options{
		Now:   func() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) },
		NewID: func() string { n++; return fmt.Sprintf("up-%d", n) },
	})
}

func do(t *testing.T, h http.Handler, method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, h, http.MethodGet, path, nil, "")
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

func alertsConfig() config.AlertsConfig {
	return config.AlertsConfig{Rules: []config.AlertRule{{Name: "oos", Condition: "out_of_spec_count > 0"}}}
}

func multipartBody(t *testing.T, files map[string]string) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := mw.CreateFormFile("file", name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(content)) //nolint:errcheck
	}
	mw.Close()
	return buf.Bytes(), mw.FormDataContentType()
}

// --- tests ------------------------------------------------------------------

func TestSummary_Empty(t *testing.T) {
	h := newHandler(t, newRepo(t))
	rr := get(t, h, "/api/v1/summary")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var got map[string]interface{}
	decode(t, rr, &got)
	if len(got) != 2 || got["count"] != float64(0) || got["state"] != "empty" {
		t.Errorf("body = %v, want {count:0 state:empty}", got)
	}
}

func TestSummary_WithData(t *testing.T) {
	h := newHandler(t, newRepo(t, dataset("a", 2, 4, 4, 4, 5, 5, 7, 9)))
	var got struct {
		Count    int     `json:"count"`
		State    string  `json:"state"`
		Mean     float64 `json:"mean"`
		StdDev   float64 `json:"std_dev"`
		Grade    string  `json:"grade"`
		Datasets int     `json:"datasets"`
	}
	decode(t, get(t, h, "/api/v1/summary"), &got)
	if got.Count != 8 || got.State != "ok" || got.Mean != 5 || got.StdDev != 2 || got.Datasets != 1 {
		t.Errorf("summary = %+v", got)
	}
	if got.Grade == "" {
		t.Error("grade missing")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newHandler(t, newRepo(t))
	for _, path := range []string{"/api/v1/health", "/api/v1/summary", "/api/v1/records",
		"/api/v1/histogram", "/api/v1/export.csv", "/api/v1/insights", "/api/v1/alerts"} {
		if rr := do(t, h, http.MethodPut, path, nil, ""); rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("PUT %s = %d, want 405", path, rr.Code)
		}
	}
	if rr := do(t, h, http.MethodPatch, "/api/v1/datasets/x", nil, ""); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("PATCH dataset = %d, want 405", rr.Code)
	}
}

func TestHealth(t *testing.T) {
	h := newHandler(t, newRepo(t, dataset("a", 1, 2), dataset("b", 3)))
	var got api.HealthResponse
	decode(t, get(t, h, "/api/v1/health"), &got)
	if got.Status != "ok" || got.Datasets != 2 || got.Records != 3 {
		t.Errorf("health = %+v", got)
	}
}

func TestRecords_Query(t *testing.T) {
	h := newHandler(t, newRepo(t, dataset("a", 5, 1, 9), dataset("b", 3)))

	tests := []struct {
		path      string
		wantTotal int
		wantVals  []float64
	}{
		{"/api/v1/records", 4, []float64{5, 1, 9, 3}},
		{"/api/v1/records?sort=value", 4, []float64{1, 3, 5, 9}},
		{"/api/v1/records?sort=value&order=desc&limit=2", 4, []float64{9, 5}},
		{"/api/v1/records?q=B-", 1, []float64{3}},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			rr := get(t, h, tc.path)
			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", rr.Code, rr.Body)
			}
			var got api.RecordsResponse
			decode(t, rr, &got)
			if got.Total != tc.wantTotal || len(got.Records) != len(tc.wantVals) {
				t.Fatalf("total=%d len=%d, want %d/%d", got.Total, len(got.Records), tc.wantTotal, len(tc.wantVals))
			}
			for i, v := range tc.wantVals {
				if got.Records[i].Value != v {
					t.Errorf("records[%d].Value = %v, want %v", i, got.Records[i].Value, v)
				}
			}
		})
	}
}

func TestRecords_BadParams(t *testing.T) {
	h := newHandler(t, newRepo(t, dataset("a", 1)))
	for _, path := range []string{
		"/api/v1/records?sort=color",
		"/api/v1/records?order=sideways",
		"/api/v1/records?limit=-1",
		"/api/v1/records/tail?n=abc",
		"/api/v1/histogram?bins=0",
		"/api/v1/histogram?bins=1000",
	} {
		if rr := get(t, h, path); rr.Code != http.StatusBadRequest {
			t.Errorf("GET %s = %d, want 400", path, rr.Code)
		}
	}
}

func TestRecordsTail(t *testing.T) {
	vals := make([]float64, 30)
	for i := range vals {
		vals[i] = float64(i % 10)
	}
	h := newHandler(t, newRepo(t, dataset("a", vals...)))

	var got api.RecordsResponse
	decode(t, get(t, h, "/api/v1/records/tail"), &got)
	if got.Total != 30 || len(got.Records) != 20 || got.Records[0].Index != 10 {
		t.Errorf("tail default: total=%d len=%d first=%d", got.Total, len(got.Records), got.Records[0].Index)
	}

	decode(t, get(t, h, "/api/v1/records/tail?n=3"), &got)
	if len(got.Records) != 3 || got.Records[2].Index != 29 {
		t.Errorf("tail n=3: %+v", got.Records)
	}
}

func TestHistogram(t *testing.T) {
	h := newHandler(t, newRepo(t, dataset("a", 1, 2, 3, 4, 5, 6, 11)))
	var got api.HistogramResponse
	decode(t, get(t, h, "/api/v1/histogram?bins=5"), &got)
	if len(got.Bins) != 5 {
		t.Fatalf("bins = %d, want 5", len(got.Bins))
	}
	total := 0
	for _, b := range got.Bins {
		total += b.Count
	}
	if total != 7 {
		t.Errorf("binned %d records, want 7", total)
	}
	if got.Spec.USL != 10 {
		t.Errorf("spec = %+v", got.Spec)
	}

	// too few records: empty list, not null
	h = newHandler(t, newRepo(t, dataset("b", 1, 2)))
	rr := get(t, h, "/api/v1/histogram")
	if !strings.Contains(rr.Body.String(), `"bins":[]`) {
		t.Errorf("body = %s, want empty bins", rr.Body)
	}
}

func TestDatasets_UploadListGetDelete(t *testing.T) {
	repo := newRepo(t)
	h := newHandler(t, repo)

	body, ct := multipartBody(t, map[string]string{
		"line1.csv": "Serial,Value,USL,LSL\nA1,5,10,0\nA2,11,10,0\n",
	})
	rr := do(t, h, http.MethodPost, "/api/v1/datasets", body, ct)
	if rr.Code != http.StatusCreated {
		t.Fatalf("upload status = %d: %s", rr.Code, rr.Body)
	}
	var up api.UploadResponse
	decode(t, rr, &up)
	if len(up.Datasets) != 1 || up.Datasets[0].ID != "up-1" || up.Datasets[0].OutOfSpec != 1 {
		t.Fatalf("upload resp = %+v", up)
	}
	if !up.Datasets[0].CreatedAt.Equal(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("CreatedAt = %v", up.Datasets[0].CreatedAt)
	}

	var list []store.Info
	decode(t, get(t, h, "/api/v1/datasets"), &list)
	if len(list) != 1 || list[0].Name != "line1.csv" {
		t.Errorf("list = %+v", list)
	}

	var ds types.Dataset
	decode(t, get(t, h, "/api/v1/datasets/up-1"), &ds)
	if len(ds.Records) != 2 || ds.Records[1].Serial != "A2" || !ds.Records[1].OutOfSpec {
		t.Errorf("dataset = %+v", ds)
	}

	if rr := get(t, h, "/api/v1/datasets/nope"); rr.Code != http.StatusNotFound {
		t.Errorf("GET unknown = %d, want 404", rr.Code)
	}
	if rr := do(t, h, http.MethodDelete, "/api/v1/datasets/up-1", nil, ""); rr.Code != http.StatusNoContent {
		t.Errorf("DELETE = %d, want 204", rr.Code)
	}
	if rr := do(t, h, http.MethodDelete, "/api/v1/datasets/up-1", nil, ""); rr.Code != http.StatusNotFound {
		t.Errorf("second DELETE = %d, want 404", rr.Code)
	}
}

func TestDatasets_UploadMultipleAndSkipEmpty(t *testing.T) {
	repo := newRepo(t)
	h := newHandler(t, repo)
	body, ct := multipartBody(t, map[string]string{
		"a.csv":     "Value,USL,LSL\n1,10,0\n",
		"b.csv":     "Value,USL,LSL\n2,10,0\n3,10,0\n",
		"empty.csv": "Value,USL,LSL\n",
	})
	rr := do(t, h, http.MethodPost, "/api/v1/datasets", body, ct)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body)
	}
	var up api.UploadResponse
	decode(t, rr, &up)
	if len(up.Datasets) != 2 || len(up.Skipped) != 1 || up.Skipped[0] != "empty.csv" {
		t.Errorf("resp = %+v", up)
	}
	if n := len(repo.WorkingSet()); n != 3 {
		t.Errorf("working set = %d, want 3", n)
	}
}

func TestDatasets_UploadRejects(t *testing.T) {
	h := newHandler(t, newRepo(t))

	body, ct := multipartBody(t, map[string]string{"old.xls": "x"})
	if rr := do(t, h, http.MethodPost, "/api/v1/datasets", body, ct); rr.Code != http.StatusUnsupportedMediaType {
		t.Errorf("xls = %d, want 415", rr.Code)
	}
	body, ct = multipartBody(t, map[string]string{"empty.csv": "Value\n"})
	if rr := do(t, h, http.MethodPost, "/api/v1/datasets", body, ct); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("no rows = %d, want 422", rr.Code)
	}
	if rr := do(t, h, http.MethodPost, "/api/v1/datasets", []byte("{}"), "application/json"); rr.Code != http.StatusBadRequest {
		t.Errorf("json body = %d, want 400", rr.Code)
	}
}

func TestDatasets_UploadTooLarge(t *testing.T) {
	h := api.New(newRepo(t), api.Options{MaxUploadBytes: 64})
	body, ct := multipartBody(t, map[string]string{"big.csv": strings.Repeat("Value\n1\n", 100)})
	if rr := do(t, h, http.MethodPost, "/api/v1/datasets", body, ct); rr.Code < 400 {
		t.Errorf("status = %d, want an error", rr.Code)
	}
}

func TestDatasets_Clear(t *testing.T) {
	repo := newRepo(t, dataset("a", 1), dataset("b", 2))
	h := newHandler(t, repo)
	if rr := do(t, h, http.MethodDelete, "/api/v1/datasets", nil, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("DELETE = %d", rr.Code)
	}
	if n := len(repo.List()); n != 0 {
		t.Errorf("datasets after clear = %d", n)
	}
}

func TestExportCSV(t *testing.T) {
	h := newHandler(t, newRepo(t, dataset("a", 1.5, 12)))
	rr := get(t, h, "/api/v1/export.csv")
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q", ct)
	}
	rows, err := csv.NewReader(rr.Body).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	want := []string{"1", "a-01", "12", "10", "0", "true"}
	for i, v := range want {
		if rows[2][i] != v {
			t.Errorf("row[2][%d] = %q, want %q", i, rows[2][i], v)
		}
	}
}

func TestInsights_Endpoint(t *testing.T) {
	h := newHandler(t, newRepo(t))
	var hints []api.Hint
	decode(t, get(t, h, "/api/v1/insights"), &hints)
	if len(hints) != 1 || hints[0].Key != "no_data" {
		t.Errorf("empty insights = %+v", hints)
	}
}

func TestAlerts_Endpoint(t *testing.T) {
	repo := newRepo(t, dataset("a", 1, 9, 12))
	eng := alerts.New(alertsConfig())
	sum, _ := repo.Summary()
	eng.Evaluate(sum)

	h := api.New(repo, api.Options{Alerts: eng})
	var got []alerts.Alert
	decode(t, get(t, h, "/api/v1/alerts"), &got)
	if len(got) != 1 || got[0].RuleName != "oos" {
		t.Errorf("alerts = %+v", got)
	}

	rr := get(t, newHandler(t, repo), "/api/v1/alerts")
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("no engine body = %s, want []", rr.Body)
	}
}

func TestLegacyData_RoundTrip(t *testing.T) {
	repo := newRepo(t, dataset("a", 1))
	h := newHandler(t, repo)

	var got []types.Dataset
	decode(t, get(t, h, "/api/data"), &got)
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("GET /api/data = %+v", got)
	}

	payload := `[{"id":"x","name":"x.csv","size":10,"created_at":"2026-01-01T00:00:00Z",
		"data":[{"index":0,"serialNumber":"S1","value":5,"usl":4,"lsl":0,"isOutOfSpec":false}]}]`
	rr := do(t, h, http.MethodPost, "/api/data", []byte(payload), "application/json")
	if rr.Code != http.StatusOK {
		t.Fatalf("POST /api/data = %d: %s", rr.Code, rr.Body)
	}
	ds, ok := repo.Get("x")
	if !ok || len(repo.List()) != 1 {
		t.Fatalf("collection not replaced: %+v", repo.List())
	}
	// 5 > usl 4: the posted flag is wrong and must be recomputed
	if !ds.Records[0].OutOfSpec {
		t.Error("legacy replace kept the posted out-of-spec flag")
	}

	invalid := []string{
		`[{"id":"d","data":[{"value":1}]},{"id":"d","data":[{"value":2}]}]`,
		`[{"id":"","data":[{"value":1}]}]`,
		`[{"id":"e","data":[]}]`,
	}
	for _, body := range invalid {
		if rr := do(t, h, http.MethodPost, "/api/data", []byte(body), "application/json"); rr.Code != http.StatusBadRequest {
			t.Errorf("POST %s = %d, want 400", body, rr.Code)
		}
	}
	if _, ok := repo.Get("x"); !ok || len(repo.List()) != 1 {
		t.Errorf("rejected posts changed the collection: %+v", repo.List())
	}

	if rr := do(t, h, http.MethodPost, "/api/data", []byte("{"), "application/json"); rr.Code != http.StatusBadRequest {
		t.Errorf("bad body = %d, want 400", rr.Code)
	}
	if rr := do(t, h, http.MethodDelete, "/api/data", nil, ""); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE /api/data = %d, want 405", rr.Code)
	}
}
