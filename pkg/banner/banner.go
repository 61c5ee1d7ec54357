package banner

import (
	"fmt"

	"boardsync/pkg/config"
)

const banner = `
██████╗  ██████╗  █████╗ ██████╗ ██████╗ ███████╗██╗   ██╗███╗   ██╗ ██████╗
██╔══██╗██╔═══██╗██╔══██╗██╔══██╗██╔══██╗██╔════╝╚██╗ ██╔╝████╗  ██║██╔════╝
██████╔╝██║   ██║███████║██████╔╝██║  ██║███████╗ ╚████╔╝ ██╔██╗ ██║██║
██╔══██╗██║   ██║██╔══██║██╔══██╗██║  ██║╚════██║  ╚██╔╝  ██║╚██╗██║██║
██████╔╝╚██████╔╝██║  ██║██║  ██║██████╔╝███████║   ██║   ██║ ╚████║╚██████╗
╚═════╝  ╚═════╝ ╚═╝  ╚═╝╚═╝  ╚═╝╚═════╝ ╚══════╝   ╚═╝   ╚═╝  ╚═══╝ ╚═════╝
`

// Print prints the startup banner with explicit fields. Newer callers
// pass an effective config to PrintWithEff so runtime info is shown
// centrally.
func Print(addr, dbPath, sources, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	if sources != "" {
		fmt.Printf("Config sources: %s\n", sources)
	}
	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST /v1/boards - Create a board")
	fmt.Println("POST /v1/boards/{id}/resources - Add a shape or shared doc")
	fmt.Println("POST /v1/resources/{id}/lock - Acquire the edit lock")
	fmt.Println("GET  /v1/boards/{id}/subscribe - Websocket event feed")
}

// PrintWithEff prints the banner using an EffectiveConfigResult which
// provides richer context (config, addr, dbpath, source).
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	var addr = eff.Addr
	if addr == "" && eff.Config != nil {
		addr = eff.Config.Addr()
	}
	var dbPath = eff.DBPath
	if dbPath == "" && eff.Config != nil {
		dbPath = eff.Config.Server.DBPath
	}
	var src = eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config: %s\n", src)

	fmt.Println("\n== Examples ===================================================")
	fmt.Println("curl -X POST 'http://<host>:<port>/v1/boards' -d '{\"title\":\"retro\"}'")
	fmt.Println("curl -X POST 'http://<host>:<port>/v1/resources/<id>/lock'")
	fmt.Println("\n== Production? =================================================")
	be := 0
	fe := 0
	ak := 0
	if eff.Config != nil {
		be = len(eff.Config.Security.APIKeys.Backend)
		fe = len(eff.Config.Security.APIKeys.Frontend)
		ak = len(eff.Config.Security.APIKeys.Admin)
	}
	if be > 0 {
		fmt.Printf("- Backend API keys: OK (%d)\n", be)
	} else {
		fmt.Println("- Backend API keys: MISSING (required for backend services)")
	}
	if fe > 0 {
		fmt.Printf("- Frontend API keys: OK (%d)\n", fe)
	} else {
		fmt.Println("- Frontend API keys: MISSING (required for client access)")
	}
	if ak > 0 {
		fmt.Printf("- Admin API keys: OK (%d)\n", ak)
	} else {
		fmt.Println("- Admin API keys: MISSING (required for admin tooling)")
	}

	tlsOK := false
	if eff.Config != nil && eff.Config.Server.TLS.CertFile != "" && eff.Config.Server.TLS.KeyFile != "" {
		tlsOK = true
	}
	if tlsOK {
		fmt.Println("- TLS: configured")
	} else {
		fmt.Println("- TLS: unconfigured")
	}

	if eff.DBPath != "" {
		fmt.Printf("- DB Path: %s\n", eff.DBPath)
	} else {
		fmt.Println("- DB Path: not set (use --db or BOARDSYNC_DB_PATH)")
	}

	// Lock lease sweeper
	if eff.Config != nil && eff.Config.Locks.Enabled {
		info := ""
		if eff.Config.Locks.SweepCron != "" {
			info = "cron=" + eff.Config.Locks.SweepCron
		}
		if lease := eff.Config.Locks.Lease.Duration(); lease > 0 {
			if info != "" {
				info += " "
			}
			info += "lease=" + lease.String()
		}
		if info != "" {
			fmt.Printf("- Lock sweeper: enabled (%s)\n", info)
		} else {
			fmt.Println("- Lock sweeper: enabled")
		}
	} else {
		fmt.Println("- Lock sweeper: disabled (stale locks linger until clients release them)")
	}

	fmt.Println("\n== Logs: =================================================")
}
