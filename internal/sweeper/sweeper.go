// Package sweeper force-releases locks whose lease expired, so a
// crashed or disconnected holder can never leave a resource locked
// forever. It complements the client's best-effort release-on-teardown,
// which cannot be relied on across process death.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"boardsync/pkg/config"
	"boardsync/pkg/lock"
	"boardsync/pkg/logger"
	"boardsync/pkg/store"
	"boardsync/pkg/telemetry"
)

// DefaultLease is used when no lease duration is configured.
const DefaultLease = 30 * time.Second

// Sweeper scans for expired lock leases on a cron schedule.
type Sweeper struct {
	Locks  *lock.Manager
	Lease  time.Duration
	DryRun bool
	now    func() time.Time
}

// New builds a Sweeper from config. The lock manager performs the
// actual force releases so eviction events flow through the same
// emit path as ordinary releases.
func New(locks *lock.Manager, cfg config.LocksConfig) *Sweeper {
	lease := cfg.Lease.Duration()
	if lease <= 0 {
		lease = DefaultLease
	}
	return &Sweeper{Locks: locks, Lease: lease, DryRun: cfg.DryRun, now: time.Now}
}

// Start launches the cron-driven sweep loop if enabled. Returns a
// cancel func; a disabled sweeper returns a no-op cancel.
func Start(ctx context.Context, locks *lock.Manager, cfg config.LocksConfig) (context.CancelFunc, error) {
	if !cfg.Enabled {
		logger.Info("lock_sweeper_disabled")
		return func() {}, nil
	}
	cronExpr := cfg.SweepCron
	if cronExpr == "" {
		// every minute
		cronExpr = "* * * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("lock_sweeper_invalid_cron", "cron", cronExpr)
		return nil, fmt.Errorf("invalid sweep cron expression: %s", cronExpr)
	}
	s := New(locks, cfg)
	ctx2, cancel := context.WithCancel(ctx)
	go s.run(ctx2, cronExpr)
	logger.Info("lock_sweeper_started", "cron", cronExpr, "lease", s.Lease.String(), "dry_run", s.DryRun)
	return cancel, nil
}

func (s *Sweeper) run(ctx context.Context, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("lock_sweeper_stopping")
			return
		default:
		}
		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("lock_sweeper_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		select {
		case <-time.After(time.Until(next)):
		case <-ctx.Done():
			logger.Info("lock_sweeper_stopping")
			return
		}
		if n, err := s.SweepOnce(); err != nil {
			logger.Error("lock_sweep_error", "error", err)
		} else if n > 0 {
			logger.Info("lock_sweep_completed", "released", n)
		}
	}
}

// SweepOnce scans all currently locked resources and force-releases
// those whose lease expired. Returns the number of locks released
// (or, in dry-run mode, the number that would have been).
func (s *Sweeper) SweepOnce() (int, error) {
	locked, err := store.ListLockedResources()
	if err != nil {
		return 0, err
	}
	cutoff := s.now().UTC().Add(-s.Lease).UnixNano()
	released := 0
	for _, r := range locked {
		if r.LockAcquiredTS > cutoff {
			continue
		}
		age := time.Duration(s.now().UTC().UnixNano() - r.LockAcquiredTS)
		if s.DryRun {
			logger.Info("lock_sweep_would_release", "resource", r.ID, "holder", r.LockHolderID, "age", age.String())
			released++
			continue
		}
		if _, err := s.Locks.ForceRelease(r.ID, "lease expired"); err != nil {
			logger.Warn("lock_sweep_release_failed", "resource", r.ID, "error", err.Error())
			continue
		}
		telemetry.LockForceReleasedTotal.Inc()
		released++
	}
	return released, nil
}
