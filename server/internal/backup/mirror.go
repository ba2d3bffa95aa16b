package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/measurestack/measurestack/pkg/types"
	"github.com/measurestack/measurestack/server/internal/store"
)

const writeTimeout = 30 * time.Second

// Mirror writes the latest repository payload to a Store in the background.
// Payloads that arrive while a write is in flight replace each other, so
// only the newest state is uploaded. Changes are ordered by repository
// version; one that arrives after a newer version has been queued is
// dropped.
type Mirror struct {
	store Store
	key   string

	mu      sync.Mutex
	pending []byte // nil when nothing is queued
	queued  uint64 // highest version accepted by OnChange

	wake chan struct{}
	done chan struct{}
}

// NewMirror returns a Mirror writing to key in st.
func NewMirror(st Store, key string) *Mirror {
	return &Mirror{
		store: st,
		key:   key,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// OnChange queues ch.Payload for upload. It never blocks and is meant to be
// passed to store.Repository.Subscribe.
func (m *Mirror) OnChange(ch store.Change) {
	m.mu.Lock()
	if ch.Version <= m.queued {
		m.mu.Unlock()
		slog.Debug("backup: stale change skipped", "version", ch.Version, "queued", m.queued)
		return
	}
	m.queued = ch.Version
	m.pending = ch.Payload
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Mirror) take() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.pending
	m.pending = nil
	return p
}

// Run uploads queued payloads until ctx is cancelled, then flushes the last
// pending payload once before returning.
func (m *Mirror) Run(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			if p := m.take(); p != nil {
				m.write(context.Background(), p)
			}
			return
		case <-m.wake:
			if p := m.take(); p != nil {
				m.write(ctx, p)
			}
		}
	}
}

// Done is closed when Run has returned.
func (m *Mirror) Done() <-chan struct{} { return m.done }

func (m *Mirror) write(ctx context.Context, payload []byte) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := m.store.Put(ctx, m.key, payload); err != nil {
		slog.Error("backup: write failed", "driver", m.store.Driver(), "key", m.key, "err", err)
		return
	}
	slog.Debug("backup: written", "driver", m.store.Driver(), "key", m.key, "bytes", len(payload))
}

// Restore loads the backup into repo when repo is empty. It reports
// whether anything was restored; a missing backup is not an error.
func Restore(ctx context.Context, st Store, key string, repo *store.Repository) (bool, error) {
	if len(repo.List()) > 0 {
		return false, nil
	}
	b, err := st.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var datasets []types.Dataset
	if err := json.Unmarshal(b, &datasets); err != nil {
		return false, fmt.Errorf("backup: decode %s: %w", key, err)
	}
	if len(datasets) == 0 {
		return false, nil
	}
	if err := repo.Replace(ctx, datasets); err != nil {
		return false, err
	}
	slog.Info("backup: repository restored", "driver", st.Driver(), "datasets", len(datasets))
	return true, nil
}
