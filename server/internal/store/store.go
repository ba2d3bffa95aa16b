package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/measurestack/measurestack/pkg/spc"
	"github.com/measurestack/measurestack/pkg/types"
)

var (
	// ErrNotFound is returned when no dataset has the requested ID.
	ErrNotFound = errors.New("store: dataset not found")
	// ErrDuplicateID is returned by Add and Replace when an ID occurs twice.
	ErrDuplicateID = errors.New("store: duplicate dataset id")
	// ErrInvalidDataset is returned by Add and Replace for a dataset without
	// ID or records.
	ErrInvalidDataset = errors.New("store: invalid dataset")
)

// Change kinds delivered to subscribers.
const (
	ChangeAdd     = "add"
	ChangeRemove  = "remove"
	ChangeReplace = "replace"
	ChangeClear   = "clear"
)

// Change describes one committed mutation.
type Change struct {
	Kind     string
	IDs      []string // affected dataset IDs; empty for clear
	Version  uint64
	Datasets int
	Records  int
	// Payload is the serialized collection after the change, as persisted.
	Payload []byte
}

// Info is a dataset without its records.
type Info struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	Records   int       `json:"records"`
	OutOfSpec int       `json:"out_of_spec"`
}

// Repository is the ordered collection of datasets the working set is
// built from. Every mutation is persisted to the Backend before it becomes
// visible; a failed save leaves the repository unchanged.
//
// The working set and its summary are recomputed on each mutation and
// served from cache.
type Repository struct {
	mu       sync.RWMutex
	datasets []types.Dataset
	working  []types.Record
	summary  spc.Summary
	sumErr   error
	version  uint64

	backend Backend

	subMu sync.RWMutex
	subs  []func(Change)
}

// Open loads the collection from backend and returns a ready Repository.
func Open(ctx context.Context, backend Backend) (*Repository, error) {
	r := &Repository{backend: backend}
	payload, err := backend.Load(ctx)
	if err != nil {
		return nil, err
	}
	var datasets []types.Dataset
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &datasets); err != nil {
			return nil, fmt.Errorf("store: decode collection: %w", err)
		}
	}
	r.commit(classify(datasets))
	slog.Info("store: collection loaded", "datasets", len(datasets), "records", len(r.working))
	return r, nil
}

// Close releases the backend.
func (r *Repository) Close() error { return r.backend.Close() }

// Subscribe registers fn to be called after every committed mutation.
// fn runs synchronously on the mutating goroutine and must not block.
func (r *Repository) Subscribe(fn func(Change)) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	r.subs = append(r.subs, fn)
}

// Add appends datasets in order. The batch is rejected as a whole if any
// dataset is invalid or reuses an ID.
func (r *Repository) Add(ctx context.Context, datasets ...types.Dataset) error {
	if len(datasets) == 0 {
		return nil
	}
	r.mu.Lock()
	seen := make(map[string]bool, len(r.datasets)+len(datasets))
	for _, ds := range r.datasets {
		seen[ds.ID] = true
	}
	if err := validate(seen, datasets); err != nil {
		r.mu.Unlock()
		return err
	}
	next := make([]types.Dataset, 0, len(r.datasets)+len(datasets))
	next = append(next, r.datasets...)
	next = append(next, classify(datasets)...)
	return r.apply(ctx, ChangeAdd, ids(datasets), next)
}

// Remove deletes the dataset with the given ID.
func (r *Repository) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	next := make([]types.Dataset, 0, len(r.datasets))
	for _, ds := range r.datasets {
		if ds.ID != id {
			next = append(next, ds)
		}
	}
	if len(next) == len(r.datasets) {
		r.mu.Unlock()
		return ErrNotFound
	}
	return r.apply(ctx, ChangeRemove, []string{id}, next)
}

// Replace swaps the whole collection for datasets. The same rules as Add
// apply within the new collection.
func (r *Repository) Replace(ctx context.Context, datasets []types.Dataset) error {
	if err := validate(make(map[string]bool, len(datasets)), datasets); err != nil {
		return err
	}
	r.mu.Lock()
	return r.apply(ctx, ChangeReplace, ids(datasets), classify(datasets))
}

// validate checks that every dataset has an ID and records, and that no ID
// is in seen or repeats within datasets. seen is updated.
func validate(seen map[string]bool, datasets []types.Dataset) error {
	for _, ds := range datasets {
		if ds.ID == "" || len(ds.Records) == 0 {
			return fmt.Errorf("%w: %q needs an id and at least one record", ErrInvalidDataset, ds.Name)
		}
		if seen[ds.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateID, ds.ID)
		}
		seen[ds.ID] = true
	}
	return nil
}

// classify returns copies of datasets whose records carry the out-of-spec
// flag derived from their own value and limits. Incoming flags are ignored.
func classify(datasets []types.Dataset) []types.Dataset {
	out := make([]types.Dataset, len(datasets))
	for i, ds := range datasets {
		recs := make([]types.Record, len(ds.Records))
		for j, rec := range ds.Records {
			rec.OutOfSpec = spc.Classify(rec.Value, rec.USL, rec.LSL)
			recs[j] = rec
		}
		ds.Records = recs
		out[i] = ds
	}
	return out
}

func ids(datasets []types.Dataset) []string {
	out := make([]string, len(datasets))
	for i, ds := range datasets {
		out[i] = ds.ID
	}
	return out
}

// Clear removes every dataset.
func (r *Repository) Clear(ctx context.Context) error {
	r.mu.Lock()
	return r.apply(ctx, ChangeClear, nil, nil)
}

// apply persists next and commits it. r.mu must be held; apply releases it.
func (r *Repository) apply(ctx context.Context, kind string, ids []string, next []types.Dataset) error {
	if next == nil {
		next = []types.Dataset{}
	}
	payload, err := json.Marshal(next)
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("store: encode collection: %w", err)
	}
	if err := r.backend.Save(ctx, payload); err != nil {
		r.mu.Unlock()
		return err
	}
	r.commit(next)
	ch := Change{
		Kind:     kind,
		IDs:      ids,
		Version:  r.version,
		Datasets: len(r.datasets),
		Records:  len(r.working),
		Payload:  payload,
	}
	r.mu.Unlock()

	slog.Debug("store: change committed", "kind", kind, "version", ch.Version,
		"datasets", ch.Datasets, "records", ch.Records)
	r.notify(ch)
	return nil
}

// commit installs datasets and refreshes the cached working set.
func (r *Repository) commit(datasets []types.Dataset) {
	r.datasets = datasets
	r.working = spc.WorkingSet(datasets)
	r.summary, r.sumErr = spc.Compute(r.working)
	r.version++
}

func (r *Repository) notify(ch Change) {
	r.subMu.RLock()
	subs := append(([]func(Change))(nil), r.subs...)
	r.subMu.RUnlock()
	for _, fn := range subs {
		fn(ch)
	}
}

// Get returns the dataset with the given ID.
func (r *Repository) Get(id string) (types.Dataset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ds := range r.datasets {
		if ds.ID == id {
			return ds, true
		}
	}
	return types.Dataset{}, false
}

// List returns dataset metadata in ingestion order.
func (r *Repository) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.infos()
}

func (r *Repository) infos() []Info {
	out := make([]Info, 0, len(r.datasets))
	for _, ds := range r.datasets {
		info := Info{
			ID:        ds.ID,
			Name:      ds.Name,
			Size:      ds.Size,
			CreatedAt: ds.CreatedAt,
			Records:   len(ds.Records),
		}
		for _, rec := range ds.Records {
			if rec.OutOfSpec {
				info.OutOfSpec++
			}
		}
		out = append(out, info)
	}
	return out
}

// Snapshot is a consistent view of the repository at one version.
type Snapshot struct {
	Version uint64
	Summary spc.Summary
	// Err is spc.ErrEmptyDataset when the working set is empty.
	Err      error
	Datasets []Info
}

// Snapshot returns the summary and dataset list under a single read lock.
func (r *Repository) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Snapshot{
		Version:  r.version,
		Summary:  r.summary,
		Err:      r.sumErr,
		Datasets: r.infos(),
	}
}

// Datasets returns a copy of the full collection.
func (r *Repository) Datasets() []types.Dataset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]types.Dataset{}, r.datasets...)
}

// WorkingSet returns a copy of the concatenated, reindexed records.
func (r *Repository) WorkingSet() []types.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]types.Record{}, r.working...)
}

// Summary returns the cached working-set summary, or spc.ErrEmptyDataset
// when there are no records.
func (r *Repository) Summary() (spc.Summary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.summary, r.sumErr
}

// Version increases by one on every committed change.
func (r *Repository) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}
