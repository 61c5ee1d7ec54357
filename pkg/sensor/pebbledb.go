package sensor

import (
	"context"
	"time"

	"boardsync/pkg/commit"
	"boardsync/pkg/logger"
	"boardsync/pkg/store"
)

// MonitorConfig controls thresholds and intervals for the commit
// pipeline monitor.
type MonitorConfig struct {
	PollInterval time.Duration

	// queue fill ratio [0..1] thresholds
	QueueHighPct float64
	QueueLowPct  float64

	WALHighBytes uint64
	WALLowBytes  uint64

	DiskHighPct int
	DiskLowPct  int

	// hysteresis window to consider recovery
	RecoveryWindow time.Duration
}

// DefaultMonitorConfig returns sensible defaults.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		PollInterval:   500 * time.Millisecond,
		QueueHighPct:   0.9,
		QueueLowPct:    0.5,
		WALHighBytes:   1 << 30, // 1 GiB
		WALLowBytes:    700 << 20,
		DiskHighPct:    80,
		DiskLowPct:     60,
		RecoveryWindow: 5 * time.Second,
	}
}

// StartPebbleMonitor starts a background monitor that watches the commit
// queue and Pebble metrics and sheds incoming mutations when the pipeline
// is saturated. It returns a function to stop the monitor.
//
// Shedding has two levels: when the queue or WAL crosses the high
// watermark new enqueues are rejected (callers see 429) and a severity 1.0
// throttle request is emitted; shedding only clears once the system stays
// below the low watermarks for RecoveryWindow.
func StartPebbleMonitor(ctx context.Context, q *commit.Queue, s *Sensor, cfg MonitorConfig) context.CancelFunc {
	if cfg.PollInterval <= 0 {
		cfg = DefaultMonitorConfig()
	}
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(cfg.PollInterval)
		defer ticker.Stop()
		var state = "normal"
		var lastCritical time.Time
		for {
			select {
			case <-ctx.Done():
				if state != "normal" {
					commit.SetShedding(false)
				}
				return
			case <-ticker.C:
				m := store.GetPebbleMetrics()
				hw := s.Snapshot()
				diskUtil := 0
				if hw.DiskTotal > 0 {
					used := hw.DiskTotal - hw.DiskFree
					diskUtil = int((used * 100) / hw.DiskTotal)
				}
				fill := 0.0
				if q.Cap() > 0 {
					fill = float64(q.Len()) / float64(q.Cap())
				}

				if fill >= cfg.QueueHighPct || m.WALBytes >= cfg.WALHighBytes || diskUtil >= cfg.DiskHighPct {
					if state != "shedding" {
						logger.Warn("commit_monitor_shedding", "queue_fill", fill, "wal_bytes", m.WALBytes, "disk_util", diskUtil)
						commit.SetShedding(true)
						s.SendThrottle(ThrottleRequest{Source: "commit_monitor", Reason: "pipeline_saturated", Severity: 1.0})
						state = "shedding"
					}
					lastCritical = time.Now()
					continue
				}

				if state == "shedding" {
					if time.Since(lastCritical) > cfg.RecoveryWindow && fill <= cfg.QueueLowPct && m.WALBytes <= cfg.WALLowBytes && diskUtil <= cfg.DiskLowPct {
						logger.Info("commit_monitor_recovered", "queue_fill", fill)
						commit.SetShedding(false)
						s.SendThrottle(ThrottleRequest{Source: "commit_monitor", Reason: "recovered", Severity: 0})
						state = "normal"
					}
					continue
				}

				if fill >= cfg.QueueLowPct || m.WALBytes >= cfg.WALLowBytes {
					if state != "degraded" {
						logger.Warn("commit_monitor_degraded", "queue_fill", fill, "wal_bytes", m.WALBytes)
						s.SendThrottle(ThrottleRequest{Source: "commit_monitor", Reason: "queue_backlog", Severity: 0.6})
						state = "degraded"
					}
					continue
				}

				if state == "degraded" {
					state = "normal"
				}
			}
		}
	}()
	return cancel
}
