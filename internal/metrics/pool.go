package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/edp1096/spicebridge/pkg/mempool"
)

var (
	poolOutstandingDesc = prometheus.NewDesc(namespace+"_pool_outstanding_buffers", "Guest buffers checked out.", nil, nil)
	poolIdleDesc        = prometheus.NewDesc(namespace+"_pool_idle_buffers", "Guest buffers kept for reuse.", nil, nil)
	poolAllocsDesc      = prometheus.NewDesc(namespace+"_pool_allocs_total", "Guest malloc calls.", nil, nil)
	poolFreesDesc       = prometheus.NewDesc(namespace+"_pool_frees_total", "Guest free calls.", nil, nil)
	poolHitsDesc        = prometheus.NewDesc(namespace+"_pool_hits_total", "Acquisitions served from idle buffers.", nil, nil)
	poolMissesDesc      = prometheus.NewDesc(namespace+"_pool_misses_total", "Acquisitions that needed a fresh allocation.", nil, nil)
)

// PoolCollector reads mempool.Stats at scrape time.
type PoolCollector struct {
	source func() (mempool.Stats, bool)
}

func NewPoolCollector(source func() (mempool.Stats, bool)) *PoolCollector {
	return &PoolCollector{source: source}
}

func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- poolOutstandingDesc
	ch <- poolIdleDesc
	ch <- poolAllocsDesc
	ch <- poolFreesDesc
	ch <- poolHitsDesc
	ch <- poolMissesDesc
}

func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	s, ok := c.source()
	if !ok {
		return
	}
	ch <- prometheus.MustNewConstMetric(poolOutstandingDesc, prometheus.GaugeValue, float64(s.Outstanding))
	ch <- prometheus.MustNewConstMetric(poolIdleDesc, prometheus.GaugeValue, float64(s.Idle))
	ch <- prometheus.MustNewConstMetric(poolAllocsDesc, prometheus.CounterValue, float64(s.Allocs))
	ch <- prometheus.MustNewConstMetric(poolFreesDesc, prometheus.CounterValue, float64(s.Frees))
	ch <- prometheus.MustNewConstMetric(poolHitsDesc, prometheus.CounterValue, float64(s.Hits))
	ch <- prometheus.MustNewConstMetric(poolMissesDesc, prometheus.CounterValue, float64(s.Misses))
}
