package source

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/measurestack/measurestack/agent/internal/config"
	"github.com/measurestack/measurestack/pkg/tabular"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type httpSource struct {
	src    config.Source
	client *http.Client
	now    func() time.Time
}

func (s *httpSource) ID() string { return s.src.ID }

// Fetch downloads the configured document and decodes it.
func (s *httpSource) Fetch(ctx context.Context) (*Batch, error) {
	body, ctype, err := get(ctx, s.client, s.src.Endpoint, "text/csv, "+xlsxMIME)
	if err != nil {
		return nil, fmt.Errorf("http source %q: %w", s.src.ID, err)
	}

	name := documentName(s.src.Endpoint, ctype)
	recs, err := tabular.Read(name, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("http source %q: decode %s: %w", s.src.ID, name, err)
	}
	return &Batch{
		SourceID:  s.src.ID,
		Name:      name,
		Size:      int64(len(body)),
		Digest:    Digest(body),
		FetchedAt: s.now().UTC(),
		Records:   recs,
	}, nil
}

// documentName derives a file name for a fetched document. The URL path
// wins when it ends in a supported extension; otherwise the media type
// picks one.
func documentName(endpoint, contentType string) string {
	base := "document"
	if u, err := url.Parse(endpoint); err == nil {
		if b := path.Base(u.Path); b != "." && b != "/" {
			base = b
		}
	}
	if tabular.Supported(base) {
		return base
	}
	mt, _, _ := mime.ParseMediaType(contentType)
	switch mt {
	case "text/csv", "application/csv", "text/plain":
		return base + ".csv"
	case xlsxMIME:
		return base + ".xlsx"
	}
	return base
}
