package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"boardsync/internal/sweeper"
	"boardsync/pkg/commit"
	"boardsync/pkg/config"
	"boardsync/pkg/hub"
	"boardsync/pkg/lock"
	"boardsync/pkg/logger"
	"boardsync/pkg/progressor"
	"boardsync/pkg/sensor"
	"boardsync/pkg/state"
	"boardsync/pkg/store"
	"boardsync/pkg/telemetry"
)

// App encapsulates the server components and lifecycle.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	locks   *lock.Manager
	hub     *hub.Hub
	queue   *commit.Queue
	applier *commit.Applier
	sensor  *sensor.Sensor

	stopWorker    chan struct{}
	cancelSweep   context.CancelFunc
	cancelMonitor context.CancelFunc
	srv           *http.Server
}

// New initializes resources that do not require a running context (DB,
// runtime keys, coordination internals). It does not start the sweeper
// or the HTTP server; call Run to start those and block until shutdown.
func New(eff config.EffectiveConfigResult, version, commit_, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")

	// validate effective config early and fail fast
	if err := validateConfig(eff); err != nil {
		return nil, err
	}

	// runtime keys: backend API keys double as actor signing secrets
	runtimeCfg := &config.RuntimeConfig{BackendKeys: map[string]struct{}{}, SigningKeys: map[string]struct{}{}}
	for _, k := range eff.Config.Security.APIKeys.Backend {
		runtimeCfg.BackendKeys[k] = struct{}{}
		runtimeCfg.SigningKeys[k] = struct{}{}
	}
	config.SetRuntime(runtimeCfg)

	// canonical runtime layout under the DB path
	if err := state.EnsureStateDirs(eff.DBPath); err != nil {
		return nil, fmt.Errorf("state dirs: %w", err)
	}
	telemetry.SetTraceDir(state.PathsVar.Telemetry)

	auditDir := eff.Config.Logging.AuditDir
	if auditDir == "" {
		auditDir = state.PathsVar.Audit
	}
	if err := logger.AttachAuditFileSink(auditDir); err != nil {
		return nil, fmt.Errorf("attach audit sink: %w", err)
	}

	// open store
	if err := store.Open(state.PathsVar.Store); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", state.PathsVar.Store, err)
	}

	// run pending migrations before serving traffic
	if _, err := progressor.Run(context.Background(), version); err != nil {
		return nil, fmt.Errorf("migration: %w", err)
	}

	// coordination internals
	sendBuffer := eff.Config.Hub.SendBuffer
	if sendBuffer <= 0 {
		sendBuffer = hub.DefaultSendBuffer
	}
	h := hub.New(sendBuffer)
	locks := lock.NewManager()
	locks.Publish = h.Broadcast

	qCap := eff.Config.Commit.QueueCapacity
	if qCap <= 0 {
		qCap = 64 * 1024
	}
	q := commit.NewQueue(qCap)
	commit.SetDefaultQueue(q)
	if max := eff.Config.Commit.MaxPooledBufferBytes.Int64(); max > 0 {
		commit.SetMaxPooledBuffer(int(max))
	}

	a := &App{
		eff:       eff,
		version:   version,
		commit:    commit_,
		buildDate: buildDate,
		locks:     locks,
		hub:       h,
		queue:     q,
		applier:   &commit.Applier{Publish: h.Broadcast, Locks: locks},
	}
	return a, nil
}

// Run starts the commit worker, lock sweeper and HTTP server, and
// blocks until ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	a.stopWorker = make(chan struct{})
	go a.applier.Run(a.queue, a.stopWorker)

	a.sensor = sensor.NewSensor(5 * time.Second)
	a.sensor.Start()
	a.cancelMonitor = sensor.StartPebbleMonitor(ctx, a.queue, a.sensor, sensor.DefaultMonitorConfig())

	cancelSweep, err := sweeper.Start(ctx, a.locks, a.eff.Config.Locks)
	if err != nil {
		return err
	}
	a.cancelSweep = cancelSweep

	a.printBanner()

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		a.shutdown()
		return nil
	case err := <-errCh:
		a.shutdown()
		return err
	}
}

// shutdown drains in-flight work: HTTP stops accepting, the queue is
// closed and drained by the worker, then the sweeper stops.
func (a *App) shutdown() {
	if a.srv != nil {
		_ = a.srv.Close()
	}
	if a.queue != nil {
		a.queue.CloseAndDrain()
	}
	if a.stopWorker != nil {
		close(a.stopWorker)
		a.stopWorker = nil
	}
	if a.cancelSweep != nil {
		a.cancelSweep()
	}
	if a.cancelMonitor != nil {
		a.cancelMonitor()
	}
	if a.sensor != nil {
		a.sensor.Stop()
	}
	logger.Info("app_shutdown_complete")
}
