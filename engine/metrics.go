package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/treemana/quickdot/cache"
)

const namespace = "quickdot"

// fallback kinds
const (
	fallbackQuery    = "query"
	fallbackResponse = "response"
	fallbackPatch    = "patch"
)

type metrics struct {
	queries        prometheus.Counter
	hits           prometheus.Counter
	misses         prometheus.Counter
	upstreamErrors prometheus.Counter
	uncacheable    prometheus.Counter
	fallbacks      *prometheus.CounterVec
	entries        prometheus.GaugeFunc
}

func newMetrics(c *cache.Cache) *metrics {
	return &metrics{
		queries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Number of queries handled",
		}),
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Number of queries answered from the cache",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Number of cacheable queries not found in the cache",
		}),
		upstreamErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Number of failed upstream exchanges",
		}),
		uncacheable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uncacheable_responses_total",
			Help:      "Number of upstream responses that were not stored",
		}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Number of messages the fast path could not handle, by kind",
		}, []string{"kind"}),
		entries: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Number of responses in the cache",
		}, func() float64 { return float64(c.Len()) }),
	}
}

func (m *metrics) register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.queries,
		m.hits,
		m.misses,
		m.upstreamErrors,
		m.uncacheable,
		m.fallbacks,
		m.entries,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
