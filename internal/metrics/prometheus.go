package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "linkmend"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	scanDuration     prom.Histogram
	scans            prom.Counter
	brokenLinks      prom.Gauge
	indexedDocuments prom.Gauge
	searches         *prom.CounterVec
	repairs          *prom.CounterVec
}

// NewPrometheusRecorder constructs the metrics and registers them on reg.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		scanDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Duration of broken-link scans",
			Buckets:   prom.DefBuckets,
		}),
		scans: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Number of broken-link scans run",
		}),
		brokenLinks: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "broken_links",
			Help:      "Broken links found by the last scan",
		}),
		indexedDocuments: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "indexed_documents",
			Help:      "Documents currently in the link index",
		}),
		searches: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "candidate_searches_total",
			Help:      "Candidate searches by selection outcome",
		}, []string{"outcome"}),
		repairs: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "repairs_total",
			Help:      "Repair attempts by result",
		}, []string{"result"}),
	}
	reg.MustRegister(pr.scanDuration, pr.scans, pr.brokenLinks, pr.indexedDocuments, pr.searches, pr.repairs)
	return pr
}

func (p *PrometheusRecorder) ObserveScan(d time.Duration, broken int) {
	if p == nil {
		return
	}
	p.scans.Inc()
	p.scanDuration.Observe(d.Seconds())
	p.brokenLinks.Set(float64(broken))
}

func (p *PrometheusRecorder) SetIndexedDocuments(n int) {
	if p == nil {
		return
	}
	p.indexedDocuments.Set(float64(n))
}

func (p *PrometheusRecorder) IncCandidateSearch(outcome SearchOutcome) {
	if p == nil {
		return
	}
	p.searches.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncRepair(result RepairResult) {
	if p == nil {
		return
	}
	p.repairs.WithLabelValues(string(result)).Inc()
}

// HTTPHandler returns an http.Handler that serves the metrics in reg.
func HTTPHandler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
