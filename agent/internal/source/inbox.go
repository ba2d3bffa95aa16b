package source

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/measurestack/measurestack/pkg/tabular"
)

// InboxSourceID is the SourceID stamped on batches read from the inbox.
const InboxSourceID = "inbox"

// DefaultSettle is how long a file must go without write events before the
// inbox reads it.
const DefaultSettle = time.Second

// Inbox turns sheets dropped into a directory into batches.
type Inbox struct {
	dir    string
	settle time.Duration
	now    func() time.Time
}

// NewInbox returns an Inbox over dir. The directory is created if missing.
func NewInbox(dir string) (*Inbox, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("inbox: create %s: %w", dir, err)
	}
	return &Inbox{dir: dir, settle: DefaultSettle, now: time.Now}, nil
}

// Load reads and decodes one sheet.
func (in *Inbox) Load(path string) (*Batch, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("inbox: read %s: %w", path, err)
	}
	name := filepath.Base(path)
	recs, err := tabular.Read(name, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("inbox: decode %s: %w", name, err)
	}
	return &Batch{
		SourceID:  InboxSourceID,
		Name:      name,
		Size:      int64(len(raw)),
		Digest:    Digest(raw),
		FetchedAt: in.now().UTC(),
		Records:   recs,
	}, nil
}

// Run hands every sheet already in the directory to handle, in name order,
// then watches for new or rewritten sheets until ctx is cancelled.
//
// A watched file is read once it has seen no Create or Write event for the
// settle period, so a sheet that is still being copied is not shipped in
// pieces. Files that fail to decode are logged and skipped. handle is only
// called from the Run goroutine.
func (in *Inbox) Run(ctx context.Context, handle func(*Batch)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("inbox: new watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(in.dir); err != nil {
		return fmt.Errorf("inbox: watch %s: %w", in.dir, err)
	}
	slog.Info("inbox: watching", "dir", in.dir, "settle", in.settle)

	existing, err := in.scan()
	if err != nil {
		return err
	}
	for _, path := range existing {
		in.dispatch(path, handle)
	}

	ready := make(chan string)
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !eligible(event.Name) {
				continue
			}
			path := event.Name
			if t, ok := timers[path]; ok {
				t.Reset(in.settle)
				continue
			}
			timers[path] = time.AfterFunc(in.settle, func() {
				select {
				case ready <- path:
				case <-ctx.Done():
				}
			})

		case path := <-ready:
			delete(timers, path)
			in.dispatch(path, handle)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("inbox: watcher error", "err", err)
		}
	}
}

func (in *Inbox) dispatch(path string, handle func(*Batch)) {
	b, err := in.Load(path)
	if err != nil {
		slog.Warn("inbox: skipping file", "path", path, "err", err)
		return
	}
	handle(b)
}

// scan lists eligible files already in the inbox, sorted by name.
func (in *Inbox) scan() ([]string, error) {
	entries, err := os.ReadDir(in.dir)
	if err != nil {
		return nil, fmt.Errorf("inbox: list %s: %w", in.dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !eligible(e.Name()) {
			continue
		}
		out = append(out, filepath.Join(in.dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// eligible skips hidden files and office lock files (~$book.xlsx).
func eligible(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
		return false
	}
	return tabular.Supported(name)
}
