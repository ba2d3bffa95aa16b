// Package metrics exposes the working-set summary and ingest counters in
// the Prometheus text format on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/measurestack/measurestack/server/internal/store"
)

const namespace = "spc"

// Collector reads the repository on every scrape. It also implements the
// Observer interfaces of package receiver and package api.
type Collector struct {
	repo   *store.Repository
	firing func() int

	datasets  *prometheus.Desc
	records   *prometheus.Desc
	mean      *prometheus.Desc
	stdDev    *prometheus.Desc
	cpk       *prometheus.Desc
	yieldPct  *prometheus.Desc
	outOfSpec *prometheus.Desc
	limit     *prometheus.Desc
	version   *prometheus.Desc
	alerts    *prometheus.Desc

	ingestDatasets *prometheus.CounterVec
	ingestRecords  *prometheus.CounterVec
	ingestRejected *prometheus.CounterVec
}

// New builds a Collector over repo and registers it, together with the
// ingest counters, on reg. firing may be nil; otherwise it reports the
// number of firing alerts.
func New(reg prometheus.Registerer, repo *store.Repository, firing func() int) (*Collector, error) {
	c := &Collector{
		repo:   repo,
		firing: firing,

		datasets:  prometheus.NewDesc(namespace+"_datasets", "Datasets in the repository.", nil, nil),
		records:   prometheus.NewDesc(namespace+"_records", "Records in the working set.", nil, nil),
		mean:      prometheus.NewDesc(namespace+"_mean", "Mean of the working-set values.", nil, nil),
		stdDev:    prometheus.NewDesc(namespace+"_std_dev", "Population standard deviation of the working-set values.", nil, nil),
		cpk:       prometheus.NewDesc(namespace+"_cpk", "Process capability index, 0 when undefined.", nil, nil),
		yieldPct:  prometheus.NewDesc(namespace+"_yield_pct", "Percentage of records inside their limits.", nil, nil),
		outOfSpec: prometheus.NewDesc(namespace+"_out_of_spec", "Records outside their limits.", []string{"side"}, nil),
		limit:     prometheus.NewDesc(namespace+"_spec_limit", "Spec limits governing Cpk.", []string{"limit"}, nil),
		version:   prometheus.NewDesc(namespace+"_repository_version", "Repository change counter.", nil, nil),
		alerts:    prometheus.NewDesc(namespace+"_alerts_firing", "Alert rules currently firing.", nil, nil),
	}

	f := promauto.With(reg)
	c.ingestDatasets = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingest_datasets_total",
		Help:      "Datasets accepted, by channel and source.",
	}, []string{"channel", "source"})
	c.ingestRecords = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingest_records_total",
		Help:      "Records accepted, by channel.",
	}, []string{"channel"})
	c.ingestRejected = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingest_rejected_total",
		Help:      "Pushes and uploads rejected, by channel and reason.",
	}, []string{"channel", "reason"})

	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Accepted counts one stored dataset.
func (c *Collector) Accepted(channel, sourceID string, records int) {
	if sourceID == "" {
		sourceID = "unknown"
	}
	c.ingestDatasets.WithLabelValues(channel, sourceID).Inc()
	c.ingestRecords.WithLabelValues(channel).Add(float64(records))
}

// Rejected counts one refused push or upload.
func (c *Collector) Rejected(channel, reason string) {
	c.ingestRejected.WithLabelValues(channel, reason).Inc()
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.datasets, c.records, c.mean, c.stdDev,
		c.cpk, c.yieldPct, c.outOfSpec, c.limit, c.version, c.alerts} {
		ch <- d
	}
}

// Collect implements prometheus.Collector. Summary gauges are omitted while
// the working set is empty.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}

	gauge(c.datasets, float64(len(c.repo.List())))
	gauge(c.version, float64(c.repo.Version()))
	if c.firing != nil {
		gauge(c.alerts, float64(c.firing()))
	}

	sum, err := c.repo.Summary()
	if err != nil {
		gauge(c.records, 0)
		return
	}
	gauge(c.records, float64(sum.Count))
	gauge(c.mean, sum.Mean)
	gauge(c.stdDev, sum.StdDev)
	gauge(c.cpk, sum.Cpk)
	gauge(c.yieldPct, sum.YieldPct)
	gauge(c.outOfSpec, float64(sum.UpperExceeded), "upper")
	gauge(c.outOfSpec, float64(sum.LowerExceeded), "lower")
	gauge(c.limit, sum.Spec.USL, "usl")
	gauge(c.limit, sum.Spec.LSL, "lsl")
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
