package store

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports pebble internals and the document count of a Store.
type Collector struct {
	st *Store

	documents *prometheus.Desc

	compactionCount *prometheus.Desc
	compactionDebt  *prometheus.Desc
	compactionBytes *prometheus.Desc

	memtableSize  *prometheus.Desc
	memtableCount *prometheus.Desc

	walFiles        *prometheus.Desc
	walSize         *prometheus.Desc
	walBytesIn      *prometheus.Desc
	walBytesWritten *prometheus.Desc
}

func desc(name, help string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName("rtcdoc", "store", name), help, nil, nil)
}

func NewCollector(st *Store) *Collector {
	return &Collector{
		st:              st,
		documents:       desc("documents", "Number of stored documents"),
		compactionCount: desc("pebble_compactions_total", "Compactions performed"),
		compactionDebt:  desc("pebble_compaction_debt_bytes", "Estimated bytes to compact to reach a stable state"),
		compactionBytes: desc("pebble_compaction_in_progress_bytes", "Bytes in compactions under way"),
		memtableSize:    desc("pebble_memtable_bytes", "Bytes allocated by memtables"),
		memtableCount:   desc("pebble_memtables", "Number of memtables"),
		walFiles:        desc("pebble_wal_files", "Live WAL files"),
		walSize:         desc("pebble_wal_bytes", "Size of live WAL data"),
		walBytesIn:      desc("pebble_wal_in_bytes_total", "Logical bytes written to the WAL"),
		walBytesWritten: desc("pebble_wal_written_bytes_total", "Physical bytes written to the WAL"),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.documents
	ch <- c.compactionCount
	ch <- c.compactionDebt
	ch <- c.compactionBytes
	ch <- c.memtableSize
	ch <- c.memtableCount
	ch <- c.walFiles
	ch <- c.walSize
	ch <- c.walBytesIn
	ch <- c.walBytesWritten
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.documents, prometheus.GaugeValue, float64(c.st.Len()))
	if c.st.closed.Load() {
		return
	}
	m := c.st.db.Metrics()
	ch <- prometheus.MustNewConstMetric(c.compactionCount, prometheus.CounterValue, float64(m.Compact.Count))
	ch <- prometheus.MustNewConstMetric(c.compactionDebt, prometheus.GaugeValue, float64(m.Compact.EstimatedDebt))
	ch <- prometheus.MustNewConstMetric(c.compactionBytes, prometheus.GaugeValue, float64(m.Compact.InProgressBytes))
	ch <- prometheus.MustNewConstMetric(c.memtableSize, prometheus.GaugeValue, float64(m.MemTable.Size))
	ch <- prometheus.MustNewConstMetric(c.memtableCount, prometheus.GaugeValue, float64(m.MemTable.Count))
	ch <- prometheus.MustNewConstMetric(c.walFiles, prometheus.GaugeValue, float64(m.WAL.Files))
	ch <- prometheus.MustNewConstMetric(c.walSize, prometheus.GaugeValue, float64(m.WAL.Size))
	ch <- prometheus.MustNewConstMetric(c.walBytesIn, prometheus.CounterValue, float64(m.WAL.BytesIn))
	ch <- prometheus.MustNewConstMetric(c.walBytesWritten, prometheus.CounterValue, float64(m.WAL.BytesWritten))
}
