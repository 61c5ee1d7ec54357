package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadParsesYaml(t *testing.T) {
	p := writeConfig(t, `
server:
  address: 127.0.0.1
  port: 9090
  db_path: /tmp/boards
locks:
  enabled: true
  lease: 45s
  sweep_cron: "* * * * *"
commit:
  queue_capacity: 512
  max_pooled_buffer_bytes: 128KB
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr() != "127.0.0.1:9090" {
		t.Fatalf("addr: %s", cfg.Addr())
	}
	if cfg.Server.DBPath != "/tmp/boards" {
		t.Fatalf("db path: %s", cfg.Server.DBPath)
	}
	if !cfg.Locks.Enabled || cfg.Locks.Lease.Duration() != 45*time.Second {
		t.Fatalf("locks: %+v", cfg.Locks)
	}
	if cfg.Commit.QueueCapacity != 512 {
		t.Fatalf("queue capacity: %d", cfg.Commit.QueueCapacity)
	}
	if cfg.Commit.MaxPooledBufferBytes.Int64() != 128*1000 {
		t.Fatalf("pooled buffer bytes: %d", cfg.Commit.MaxPooledBufferBytes.Int64())
	}
}

func TestExplicitFlagsWinOverFileAndEnv(t *testing.T) {
	flags := Flags{
		Addr: "127.0.0.1:7000",
		DB:   "/flags/db",
		Set:  map[string]bool{"addr": true, "db": true},
	}
	fileCfg := &Config{}
	fileCfg.Server.Address = "filehost"
	fileCfg.Server.DBPath = "/file/db"
	envCfg := &Config{}
	envCfg.Server.DBPath = "/env/db"

	res, err := LoadEffectiveConfig(flags, fileCfg, true, envCfg, EnvResult{EnvUsed: true})
	if err != nil {
		t.Fatalf("load effective: %v", err)
	}
	if res.Source != "flags" || res.Addr != "127.0.0.1:7000" || res.DBPath != "/flags/db" {
		t.Fatalf("flags should win: %+v", res)
	}
}

func TestFileWinsOverEnvWhenNoFlags(t *testing.T) {
	flags := Flags{Set: map[string]bool{}}
	fileCfg := &Config{}
	fileCfg.Server.Address = "127.0.0.1"
	fileCfg.Server.Port = 8088
	fileCfg.Server.DBPath = "/file/db"
	envCfg := &Config{}
	envCfg.Server.DBPath = "/env/db"

	res, err := LoadEffectiveConfig(flags, fileCfg, true, envCfg, EnvResult{EnvUsed: true})
	if err != nil {
		t.Fatalf("load effective: %v", err)
	}
	if res.Source != "config" || res.DBPath != "/file/db" {
		t.Fatalf("file should win: %+v", res)
	}
}

func TestEnvIsLastResort(t *testing.T) {
	flags := Flags{Set: map[string]bool{}}
	envCfg := &Config{}
	envCfg.Server.Address = "127.0.0.1"
	envCfg.Server.Port = 8099
	envCfg.Server.DBPath = "/env/db"

	res, err := LoadEffectiveConfig(flags, &Config{}, false, envCfg, EnvResult{EnvUsed: true})
	if err != nil {
		t.Fatalf("load effective: %v", err)
	}
	if res.Source != "env" || res.Addr != "127.0.0.1:8099" || res.DBPath != "/env/db" {
		t.Fatalf("env fallback: %+v", res)
	}
}

func TestExplicitConfigFlagRequiresFile(t *testing.T) {
	flags := Flags{Config: "/missing.yaml", Set: map[string]bool{"config": true}}
	if _, err := LoadEffectiveConfig(flags, &Config{}, false, &Config{}, EnvResult{}); err == nil {
		t.Fatalf("missing --config file must error")
	}
}

func TestParseConfigEnvsReadsLockOverrides(t *testing.T) {
	t.Setenv("BOARDSYNC_LOCK_LEASE", "90s")
	t.Setenv("BOARDSYNC_API_BACKEND_KEYS", "k1, k2")
	cfg, res := ParseConfigEnvs()
	if !res.EnvUsed {
		t.Fatalf("env not detected")
	}
	if !cfg.Locks.Enabled || cfg.Locks.Lease.Duration() != 90*time.Second {
		t.Fatalf("lease override: %+v", cfg.Locks)
	}
	if _, ok := res.SigningKeys["k2"]; !ok {
		t.Fatalf("backend keys must double as signing keys: %+v", res.SigningKeys)
	}
}
