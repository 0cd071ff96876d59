package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StatsSource is anything reporting cache statistics under a name.
type StatsSource interface {
	Name() string
	Stats() Stats
}

type collector struct {
	sources   []StatsSource
	hits      *prometheus.Desc
	misses    *prometheus.Desc
	evictions *prometheus.Desc
	size      *prometheus.Desc
}

// NewCollector returns a prometheus.Collector publishing the statistics of
// the given caches, labelled by cache name. The returned collector still
// needs to be registered with a prometheus registry.
func NewCollector(opts prometheus.Opts, sources ...StatsSource) prometheus.Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(opts.Namespace, opts.Subsystem, name),
			help,
			[]string{"cache"},
			opts.ConstLabels,
		)
	}
	return &collector{
		sources:   sources,
		hits:      desc("hits_total", "Cache lookups that found an entry."),
		misses:    desc("misses_total", "Cache lookups that found nothing."),
		evictions: desc("evictions_total", "Entries dropped to make room."),
		size:      desc("entries", "Entries currently held."),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.evictions
	ch <- c.size
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.sources {
		st := s.Stats()
		name := s.Name()
		ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(st.Hits), name)
		ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(st.Misses), name)
		ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(st.Evictions), name)
		ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(st.Size), name)
	}
}
