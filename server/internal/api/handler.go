package api

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/measurestack/measurestack/pkg/spc"
	"github.com/measurestack/measurestack/pkg/tabular"
	"github.com/measurestack/measurestack/pkg/types"
	"github.com/measurestack/measurestack/server/internal/alerts"
	"github.com/measurestack/measurestack/server/internal/store"
)

const (
	defaultTailN   = 20
	maxHistBins    = 200
	uploadField    = "file"
	uploadChannel  = "http"
	defaultMaxBody = 32 << 20
)

// AlertSource lists current alerts. *alerts.Engine implements it.
type AlertSource interface {
	Active() []*alerts.Alert
}

// Observer is told about uploads. The metrics collector implements it.
type Observer interface {
	Accepted(channel, sourceID string, records int)
	Rejected(channel, reason string)
}

// Options configures optional collaborators of the handler.
type Options struct {
	// MaxUploadBytes caps request bodies for uploads and the legacy sync
	// endpoint. Zero means 32 MiB.
	MaxUploadBytes int64
	Alerts         AlertSource
	Observer       Observer
	// Now and NewID are replaced in tests.
	Now   func() time.Time
	NewID func() string
}

// Handler is the HTTP handler for the /api/v1/* endpoints and the legacy
// /api/data sync endpoint.
type Handler struct {
	repo *store.Repository
	opts Options
	mux  *http.ServeMux
}

// New creates a Handler wired to repo and registers all routes.
func New(repo *store.Repository, opts Options) http.Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxBody
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	h := &Handler{repo: repo, opts: opts, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/summary", h.summary)
	h.mux.HandleFunc("/api/v1/records", h.records)
	h.mux.HandleFunc("/api/v1/records/tail", h.tail)
	h.mux.HandleFunc("/api/v1/histogram", h.histogram)
	h.mux.HandleFunc("/api/v1/datasets", h.datasets)
	h.mux.HandleFunc("/api/v1/datasets/", h.dataset) // subtree, extracts {id}
	h.mux.HandleFunc("/api/v1/export.csv", h.exportCSV)
	h.mux.HandleFunc("/api/v1/insights", h.insights)
	h.mux.HandleFunc("/api/v1/alerts", h.alerts)
	h.mux.HandleFunc("/api/data", h.legacyData)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Datasets: len(h.repo.List()),
		Records:  len(h.repo.WorkingSet()),
		Version:  h.repo.Version(),
	})
}

// summary returns GET /api/v1/summary.
func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	jsonResp(w, http.StatusOK, BuildSummary(h.repo))
}

// records returns GET /api/v1/records?q=&sort=&order=&limit=.
func (h *Handler) records(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()

	field := q.Get("sort")
	if field == "" {
		field = spc.FieldIndex
	}
	if !spc.ValidSortField(field) {
		jsonErr(w, http.StatusBadRequest, fmt.Sprintf("unknown sort field %q", field))
		return
	}
	var desc bool
	switch q.Get("order") {
	case "", "asc":
	case "desc":
		desc = true
	default:
		jsonErr(w, http.StatusBadRequest, "order must be asc or desc")
		return
	}
	limit, ok := intParam(w, q.Get("limit"), 0)
	if !ok {
		return
	}

	recs := spc.SortBy(spc.Filter(h.repo.WorkingSet(), q.Get("q")), field, desc)
	total := len(recs)
	if limit > 0 && limit < total {
		recs = recs[:limit]
	}
	jsonResp(w, http.StatusOK, RecordsResponse{Total: total, Records: recs})
}

// tail returns GET /api/v1/records/tail?n= (default 20).
func (h *Handler) tail(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	n, ok := intParam(w, r.URL.Query().Get("n"), defaultTailN)
	if !ok {
		return
	}
	ws := h.repo.WorkingSet()
	jsonResp(w, http.StatusOK, RecordsResponse{Total: len(ws), Records: spc.Tail(ws, n)})
}

// histogram returns GET /api/v1/histogram?bins= (default 15).
func (h *Handler) histogram(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	bins, ok := intParam(w, r.URL.Query().Get("bins"), spc.DefaultBins)
	if !ok {
		return
	}
	if bins < 1 || bins > maxHistBins {
		jsonErr(w, http.StatusBadRequest, fmt.Sprintf("bins must be between 1 and %d", maxHistBins))
		return
	}
	ws := h.repo.WorkingSet()
	resp := HistogramResponse{Bins: spc.Histogram(ws, bins)}
	if resp.Bins == nil {
		resp.Bins = []spc.Bin{}
	}
	if spec, err := spc.SpecFrom(ws); err == nil {
		resp.Spec = spec
	}
	jsonResp(w, http.StatusOK, resp)
}

// datasets serves GET (list), POST (multipart upload) and DELETE (clear)
// on /api/v1/datasets.
func (h *Handler) datasets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		jsonResp(w, http.StatusOK, h.repo.List())
	case http.MethodPost:
		h.upload(w, r)
	case http.MethodDelete:
		if err := h.repo.Clear(r.Context()); err != nil {
			slog.Error("api: clear datasets", "err", err)
			jsonErr(w, http.StatusInternalServerError, "storage error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// dataset serves GET and DELETE on /api/v1/datasets/{id}.
func (h *Handler) dataset(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/datasets/")
	if id == "" {
		h.datasets(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		ds, ok := h.repo.Get(id)
		if !ok {
			jsonErr(w, http.StatusNotFound, "dataset not found")
			return
		}
		jsonResp(w, http.StatusOK, ds)
	case http.MethodDelete:
		err := h.repo.Remove(r.Context(), id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			jsonErr(w, http.StatusNotFound, "dataset not found")
		case err != nil:
			slog.Error("api: remove dataset", "id", id, "err", err)
			jsonErr(w, http.StatusInternalServerError, "storage error")
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// upload handles POST /api/v1/datasets with one or more "file" parts.
// Every file becomes one dataset; files without data rows are skipped.
func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.opts.MaxUploadBytes); err != nil {
		h.reject("bad_form")
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			jsonErr(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		jsonErr(w, http.StatusBadRequest, "expected multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	files := r.MultipartForm.File[uploadField]
	if len(files) == 0 {
		h.reject("no_file")
		jsonErr(w, http.StatusBadRequest, `no "file" part in form`)
		return
	}
	for _, fh := range files {
		if !tabular.Supported(fh.Filename) {
			h.reject("unsupported")
			jsonErr(w, http.StatusUnsupportedMediaType,
				fmt.Sprintf("%s: only .csv and .xlsx files are accepted", fh.Filename))
			return
		}
	}

	var (
		batch   []types.Dataset
		skipped []string
	)
	for _, fh := range files {
		recs, err := readPart(fh)
		if errors.Is(err, tabular.ErrNoRows) {
			skipped = append(skipped, fh.Filename)
			continue
		}
		if err != nil {
			h.reject("parse")
			jsonErr(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		batch = append(batch, types.Dataset{
			ID:        h.opts.NewID(),
			Name:      fh.Filename,
			Size:      fh.Size,
			CreatedAt: h.opts.Now().UTC(),
			Records:   recs,
		})
	}
	if len(batch) == 0 {
		h.reject("no_rows")
		jsonErr(w, http.StatusUnprocessableEntity, "no data rows in uploaded files")
		return
	}

	if err := h.repo.Add(r.Context(), batch...); err != nil {
		h.reject("storage")
		slog.Error("api: store upload", "err", err)
		jsonErr(w, http.StatusInternalServerError, "storage error")
		return
	}

	resp := UploadResponse{Skipped: skipped}
	for _, ds := range batch {
		if h.opts.Observer != nil {
			h.opts.Observer.Accepted(uploadChannel, "upload", len(ds.Records))
		}
		slog.Info("api: dataset uploaded", "id", ds.ID, "name", ds.Name, "records", len(ds.Records))
	}
	byID := make(map[string]bool, len(batch))
	for _, ds := range batch {
		byID[ds.ID] = true
	}
	for _, info := range h.repo.List() {
		if byID[info.ID] {
			resp.Datasets = append(resp.Datasets, info)
		}
	}
	jsonResp(w, http.StatusCreated, resp)
}

func readPart(fh *multipart.FileHeader) ([]types.Record, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("api: open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()
	return tabular.Read(fh.Filename, f)
}

// exportCSV returns GET /api/v1/export.csv, the working set as CSV.
func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="working-set.csv"`)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"index", "serial", "value", "usl", "lsl", "out_of_spec"})
	for _, rec := range h.repo.WorkingSet() {
		_ = cw.Write([]string{
			strconv.Itoa(rec.Index),
			rec.Serial,
			strconv.FormatFloat(rec.Value, 'g', -1, 64),
			strconv.FormatFloat(rec.USL, 'g', -1, 64),
			strconv.FormatFloat(rec.LSL, 'g', -1, 64),
			strconv.FormatBool(rec.OutOfSpec),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		slog.Warn("api: export csv", "err", err)
	}
}

// insights returns GET /api/v1/insights.
func (h *Handler) insights(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	sum, err := h.repo.Summary()
	jsonResp(w, http.StatusOK, computeInsights(h.repo.WorkingSet(), sum, err))
}

// alerts returns GET /api/v1/alerts.
func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	if h.opts.Alerts == nil {
		jsonResp(w, http.StatusOK, []struct{}{})
		return
	}
	jsonResp(w, http.StatusOK, h.opts.Alerts.Active())
}

// legacyData serves GET|POST /api/data: the whole collection as a JSON
// array, read or replaced. Posted collections follow the same ID and record
// rules as uploads.
func (h *Handler) legacyData(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		jsonResp(w, http.StatusOK, h.repo.Datasets())
	case http.MethodPost:
		r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
		var all []types.Dataset
		if err := json.NewDecoder(r.Body).Decode(&all); err != nil {
			jsonErr(w, http.StatusBadRequest, "expected a JSON array of datasets: "+err.Error())
			return
		}
		if err := h.repo.Replace(r.Context(), all); err != nil {
			if errors.Is(err, store.ErrInvalidDataset) || errors.Is(err, store.ErrDuplicateID) {
				jsonErr(w, http.StatusBadRequest, err.Error())
				return
			}
			slog.Error("api: replace collection", "err", err)
			jsonErr(w, http.StatusInternalServerError, "storage error")
			return
		}
		jsonResp(w, http.StatusOK, map[string]interface{}{"success": true, "datasets": len(all)})
	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// --- helpers ----------------------------------------------------------------

func (h *Handler) reject(reason string) {
	if h.opts.Observer != nil {
		h.opts.Observer.Rejected(uploadChannel, reason)
	}
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

// intParam parses a non-negative integer query value, writing a 400 on error.
func intParam(w http.ResponseWriter, raw string, def int) (int, bool) {
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		jsonErr(w, http.StatusBadRequest, fmt.Sprintf("invalid integer %q", raw))
		return 0, false
	}
	return n, true
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
