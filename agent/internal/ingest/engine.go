package ingest

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/measurestack/measurestack/agent/internal/source"
	"github.com/measurestack/measurestack/pkg/spc"
	"github.com/measurestack/measurestack/pkg/types"
)

// dedupeWindow is the number of recent digests remembered per source.
const dedupeWindow = 64

// Result is one accepted dataset plus the summary computed at ingestion.
type Result struct {
	SourceID string
	Dataset  types.Dataset
	Summary  spc.Summary
}

// Engine deduplicates batches per source and wraps them as datasets.
type Engine struct {
	mu     sync.Mutex
	states map[string]*sourceState

	now   func() time.Time
	newID func() string
}

// NewEngine returns a ready-to-use Engine.
func NewEngine() *Engine {
	return &Engine{
		states: make(map[string]*sourceState),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Process ingests b. It returns nil when the batch is a duplicate or has no
// records.
func (e *Engine) Process(b *source.Batch) *Result {
	if b == nil || len(b.Records) == 0 {
		return nil
	}

	e.mu.Lock()
	st := e.stateFor(b.SourceID)
	dup := st.seen(b.Digest)
	if !dup {
		st.remember(b.Digest)
	}
	id := e.newID()
	now := e.now().UTC()
	e.mu.Unlock()

	if dup {
		slog.Debug("ingest: duplicate batch skipped", "source", b.SourceID, "name", b.Name)
		return nil
	}

	ds := types.Dataset{
		ID:        id,
		Name:      b.Name,
		Size:      b.Size,
		CreatedAt: now,
		Records:   spc.Concat(b.Records),
	}

	// non-empty, so Compute cannot fail
	sum, _ := spc.Compute(ds.Records)
	if sum.Spec.Inverted() {
		slog.Warn("ingest: upper limit below lower limit",
			"source", b.SourceID, "name", b.Name, "usl", sum.Spec.USL, "lsl", sum.Spec.LSL)
	}
	slog.Info("ingest: dataset accepted",
		"source", b.SourceID,
		"name", b.Name,
		"id", ds.ID,
		"count", sum.Count,
		"yield_pct", sum.YieldPct,
		"cpk", sum.Cpk,
		"grade", sum.Grade,
	)

	return &Result{SourceID: b.SourceID, Dataset: ds, Summary: sum}
}

// Forget clears the dedupe history of a source so its next batch ships
// even if unchanged.
func (e *Engine) Forget(sourceID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.states, sourceID)
}

// sourceState holds recent digests, oldest first.
type sourceState struct {
	digests []string
}

func (e *Engine) stateFor(id string) *sourceState {
	if st, ok := e.states[id]; ok {
		return st
	}
	st := &sourceState{}
	e.states[id] = st
	return st
}

func (st *sourceState) seen(digest string) bool {
	if digest == "" {
		return false
	}
	for _, d := range st.digests {
		if d == digest {
			return true
		}
	}
	return false
}

func (st *sourceState) remember(digest string) {
	if digest == "" {
		return
	}
	if len(st.digests) >= dedupeWindow {
		st.digests = st.digests[1:]
	}
	st.digests = append(st.digests, digest)
}
