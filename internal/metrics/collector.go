package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// LiveStats exposes the recording session to the collector.
type LiveStats interface {
	Recording() bool
	ElapsedSeconds() int
	BufferedBytes() int
}

// BackupStats exposes the vault backup queue.
type BackupStats interface {
	QueueDepth() int
	Uploaded() int64
	Failed() int64
	Dropped() int64
}

// Collector implements prometheus.Collector to read live gauges at scrape time.
type Collector struct {
	pool   *pgxpool.Pool
	live   LiveStats
	backup BackupStats

	recording       *prometheus.Desc
	elapsed         *prometheus.Desc
	bufferedBytes   *prometheus.Desc
	backupQueue     *prometheus.Desc
	backupUploads   *prometheus.Desc
	dbTotalConns    *prometheus.Desc
	dbAcquiredConns *prometheus.Desc
	dbIdleConns     *prometheus.Desc
}

// NewCollector creates a collector that reads live state at scrape time.
// Any argument may be nil; its gauges then report 0 or are omitted.
func NewCollector(pool *pgxpool.Pool, live LiveStats, backup BackupStats) *Collector {
	return &Collector{
		pool:   pool,
		live:   live,
		backup: backup,
		recording: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "recording_active"),
			"1 while a recording session is in progress.",
			nil, nil,
		),
		elapsed: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "recording_elapsed_seconds"),
			"Elapsed time of the current recording.",
			nil, nil,
		),
		bufferedBytes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "recording_buffered_bytes"),
			"Audio bytes buffered by the current recording.",
			nil, nil,
		),
		backupQueue: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "backup", "queue_depth"),
			"Vault files waiting for S3 upload.",
			nil, nil,
		),
		backupUploads: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "backup", "uploads_total"),
			"S3 backup uploads by result.",
			[]string{"result"}, nil,
		),
		dbTotalConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "total_conns"),
			"Total database pool connections.",
			nil, nil,
		),
		dbAcquiredConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "acquired_conns"),
			"Database pool connections currently in use.",
			nil, nil,
		),
		dbIdleConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "idle_conns"),
			"Database pool idle connections.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.recording
	ch <- c.elapsed
	ch <- c.bufferedBytes
	ch <- c.backupQueue
	ch <- c.backupUploads
	ch <- c.dbTotalConns
	ch <- c.dbAcquiredConns
	ch <- c.dbIdleConns
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	var active, elapsed, buffered float64
	if c.live != nil && c.live.Recording() {
		active = 1
		elapsed = float64(c.live.ElapsedSeconds())
		buffered = float64(c.live.BufferedBytes())
	}
	ch <- prometheus.MustNewConstMetric(c.recording, prometheus.GaugeValue, active)
	ch <- prometheus.MustNewConstMetric(c.elapsed, prometheus.GaugeValue, elapsed)
	ch <- prometheus.MustNewConstMetric(c.bufferedBytes, prometheus.GaugeValue, buffered)

	if c.backup != nil {
		ch <- prometheus.MustNewConstMetric(c.backupQueue, prometheus.GaugeValue, float64(c.backup.QueueDepth()))
		ch <- prometheus.MustNewConstMetric(c.backupUploads, prometheus.CounterValue, float64(c.backup.Uploaded()), "uploaded")
		ch <- prometheus.MustNewConstMetric(c.backupUploads, prometheus.CounterValue, float64(c.backup.Failed()), "failed")
		ch <- prometheus.MustNewConstMetric(c.backupUploads, prometheus.CounterValue, float64(c.backup.Dropped()), "dropped")
	}

	// DB pool stats (postgres history only)
	if c.pool != nil {
		stat := c.pool.Stat()
		ch <- prometheus.MustNewConstMetric(c.dbTotalConns, prometheus.GaugeValue, float64(stat.TotalConns()))
		ch <- prometheus.MustNewConstMetric(c.dbAcquiredConns, prometheus.GaugeValue, float64(stat.AcquiredConns()))
		ch <- prometheus.MustNewConstMetric(c.dbIdleConns, prometheus.GaugeValue, float64(stat.IdleConns()))
	}
}
