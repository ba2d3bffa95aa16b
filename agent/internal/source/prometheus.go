package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/measurestack/measurestack/agent/internal/config"
	"github.com/measurestack/measurestack/pkg/spc"
	"github.com/measurestack/measurestack/pkg/types"
)

// promSource reads one metric family from a Prometheus text endpoint.
// Test stands that expose live readings as gauges (one series per part,
// labelled with the part serial) are read this way.
type promSource struct {
	src    config.Source
	client *http.Client
	now    func() time.Time
}

func (s *promSource) ID() string { return s.src.ID }

func (s *promSource) Fetch(ctx context.Context) (*Batch, error) {
	body, _, err := get(ctx, s.client, s.src.Endpoint, string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	if err != nil {
		return nil, fmt.Errorf("prometheus source %q: %w", s.src.ID, err)
	}
	mfs, err := parseMetrics(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("prometheus source %q: %w", s.src.ID, err)
	}
	mf := mfs[s.src.Metric]
	if mf == nil || len(mf.GetMetric()) == 0 {
		return nil, fmt.Errorf("prometheus source %q: metric %q not found", s.src.ID, s.src.Metric)
	}

	now := s.now().UTC()
	recs := make([]types.Record, 0, len(mf.GetMetric()))
	for _, m := range mf.GetMetric() {
		serial := labelValue(m, s.src.SerialLabel)
		if serial == "" {
			serial = fmt.Sprintf("%s-%d", s.src.ID, len(recs)+1)
		}
		rec := spc.NewRecord(serial, sampleValue(m), s.src.USL, s.src.LSL)
		rec.Index = len(recs)
		recs = append(recs, rec)
	}

	return &Batch{
		SourceID:  s.src.ID,
		Name:      fmt.Sprintf("%s@%s", s.src.ID, now.Format(time.RFC3339)),
		Size:      int64(len(body)),
		Digest:    Digest(body),
		FetchedAt: now,
		Records:   recs,
	}, nil
}

// parseMetrics decodes a Prometheus text exposition into metric families.
// A partial result with a non-fatal parse warning is still returned successfully.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

func sampleValue(m *dto.Metric) float64 {
	switch {
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	case m.Untyped != nil:
		return m.Untyped.GetValue()
	case m.Counter != nil:
		return m.Counter.GetValue()
	}
	return 0
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
