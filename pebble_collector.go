package zieook

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/siemvaessen/zieook-sub000/store"
)

// PebbleCollector exports storage engine statistics for every open
// tenant database, labelled by tenant. Handles opened after
// registration are picked up automatically since the registry is asked
// at collect time.
type PebbleCollector struct {
	registry *store.Registry

	compactionCount *prometheus.Desc
	compactionDebt  *prometheus.Desc
	memtableSize    *prometheus.Desc
	memtableCount   *prometheus.Desc
	walFiles        *prometheus.Desc
	walSize         *prometheus.Desc
	walBytesWritten *prometheus.Desc
	diskUsage       *prometheus.Desc
	readAmp         *prometheus.Desc
}

func NewPebbleCollector(registry *store.Registry) *PebbleCollector {
	tenant := []string{"tenant"}
	return &PebbleCollector{
		registry: registry,

		compactionCount: prometheus.NewDesc(
			"zieook_pebble_compaction_count_total",
			"Total number of compactions performed",
			tenant, nil,
		),
		compactionDebt: prometheus.NewDesc(
			"zieook_pebble_compaction_estimated_debt_bytes",
			"Estimated number of bytes pending compaction",
			tenant, nil,
		),
		memtableSize: prometheus.NewDesc(
			"zieook_pebble_memtable_size_bytes",
			"Current size of the memtables",
			tenant, nil,
		),
		memtableCount: prometheus.NewDesc(
			"zieook_pebble_memtable_count",
			"Number of live memtables",
			tenant, nil,
		),
		walFiles: prometheus.NewDesc(
			"zieook_pebble_wal_files",
			"Number of live WAL files",
			tenant, nil,
		),
		walSize: prometheus.NewDesc(
			"zieook_pebble_wal_size_bytes",
			"Size of live WAL data in bytes",
			tenant, nil,
		),
		walBytesWritten: prometheus.NewDesc(
			"zieook_pebble_wal_bytes_written_total",
			"Total physical bytes written to the WAL",
			tenant, nil,
		),
		diskUsage: prometheus.NewDesc(
			"zieook_pebble_disk_usage_bytes",
			"Total disk space used by the database",
			tenant, nil,
		),
		readAmp: prometheus.NewDesc(
			"zieook_pebble_read_amplification",
			"Current read amplification of the LSM",
			tenant, nil,
		),
	}
}

func (pc *PebbleCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- pc.compactionCount
	ch <- pc.compactionDebt
	ch <- pc.memtableSize
	ch <- pc.memtableCount
	ch <- pc.walFiles
	ch <- pc.walSize
	ch <- pc.walBytesWritten
	ch <- pc.diskUsage
	ch <- pc.readAmp
}

func (pc *PebbleCollector) Collect(ch chan<- prometheus.Metric) {
	for _, h := range pc.registry.Handles() {
		metrics := h.Database().Metrics()
		tenant := h.Tenant()

		ch <- prometheus.MustNewConstMetric(
			pc.compactionCount, prometheus.CounterValue,
			float64(metrics.Compact.Count), tenant)
		ch <- prometheus.MustNewConstMetric(
			pc.compactionDebt, prometheus.GaugeValue,
			float64(metrics.Compact.EstimatedDebt), tenant)
		ch <- prometheus.MustNewConstMetric(
			pc.memtableSize, prometheus.GaugeValue,
			float64(metrics.MemTable.Size), tenant)
		ch <- prometheus.MustNewConstMetric(
			pc.memtableCount, prometheus.GaugeValue,
			float64(metrics.MemTable.Count), tenant)
		ch <- prometheus.MustNewConstMetric(
			pc.walFiles, prometheus.GaugeValue,
			float64(metrics.WAL.Files), tenant)
		ch <- prometheus.MustNewConstMetric(
			pc.walSize, prometheus.GaugeValue,
			float64(metrics.WAL.Size), tenant)
		ch <- prometheus.MustNewConstMetric(
			pc.walBytesWritten, prometheus.CounterValue,
			float64(metrics.WAL.BytesWritten), tenant)
		ch <- prometheus.MustNewConstMetric(
			pc.diskUsage, prometheus.GaugeValue,
			float64(metrics.DiskSpaceUsage()), tenant)

		readAmp := 0
		for _, level := range metrics.Levels {
			readAmp += int(level.Sublevels)
		}
		ch <- prometheus.MustNewConstMetric(
			pc.readAmp, prometheus.GaugeValue, float64(readAmp), tenant)
	}
}
