package app

import (
	"fmt"
	"os"

	"github.com/adhocore/gronx"

	"boardsync/pkg/config"
)

// validateConfig performs quick, fail-fast validation of the effective
// configuration before starting long-running services. Keep checks light
// and focused so callers can surface user-friendly errors.
func validateConfig(eff config.EffectiveConfigResult) error {
	// DB path must be present
	if p := eff.DBPath; p == "" {
		return fmt.Errorf("database path is empty: set --db flag, BOARDSYNC_DB_PATH env, or server.db_path in config")
	}

	// TLS cert/key presence check if one is set
	cert := eff.Config.Server.TLS.CertFile
	key := eff.Config.Server.TLS.KeyFile
	if (cert != "" && key == "") || (cert == "" && key != "") {
		return fmt.Errorf("incomplete TLS configuration: both server.tls.cert_file and server.tls.key_file must be set")
	}
	if cert != "" {
		if _, err := os.Stat(cert); err != nil {
			return fmt.Errorf("tls cert file not accessible: %w", err)
		}
		if _, err := os.Stat(key); err != nil {
			return fmt.Errorf("tls key file not accessible: %w", err)
		}
	}

	// Sweeper settings only matter when enabled
	if eff.Config.Locks.Enabled {
		if lease := eff.Config.Locks.Lease.Duration(); lease < 0 {
			return fmt.Errorf("locks.lease must not be negative")
		}
		if cron := eff.Config.Locks.SweepCron; cron != "" && !gronx.IsValid(cron) {
			return fmt.Errorf("invalid locks.sweep_cron expression: %s", cron)
		}
	}

	if eff.Config.Commit.QueueCapacity < 0 {
		return fmt.Errorf("commit.queue_capacity must not be negative")
	}
	if eff.Config.Hub.SendBuffer < 0 {
		return fmt.Errorf("hub.send_buffer must not be negative")
	}

	return nil
}
