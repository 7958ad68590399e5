package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"chatledger/internal/app"
	"chatledger/pkg/config"
	"chatledger/pkg/logger"
)

// Populated via -ldflags at release time.
var (
	version   = "dev"
	commit    = ""
	buildDate = ""
)

func main() {
	flagAddr, flagDB, flagCfg, setFlags := config.ParseCommandFlags()

	cfgPath := config.ResolveConfigPath(flagCfg, setFlags["config"])
	cfg, envUsed, err := config.LoadEffective(cfgPath)
	if err != nil {
		logger.Init()
		logger.Error("config_load_failed", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	// Explicit flags win over config and env.
	addr := cfg.Addr()
	if setFlags["addr"] {
		addr = flagAddr
	}
	dbPath := cfg.Storage.DBPath
	if setFlags["db"] || dbPath == "" {
		dbPath = flagDB
	}

	a, err := app.New(app.Options{
		Config:    cfg,
		Addr:      addr,
		DBPath:    dbPath,
		Sources:   configSources(cfgPath, envUsed, setFlags),
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
	})
	if err != nil {
		logger.Init()
		logger.Error("startup_failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := a.Run(ctx)
	a.Shutdown()
	if runErr != nil {
		logger.Error("server_failed", "error", runErr)
		os.Exit(1)
	}
	logger.Info("shutdown_complete")
}

func configSources(cfgPath string, envUsed bool, setFlags map[string]bool) string {
	var parts []string
	if _, err := os.Stat(cfgPath); err == nil {
		parts = append(parts, "config:"+cfgPath)
	}
	if envUsed {
		parts = append(parts, "env")
	}
	if len(setFlags) > 0 {
		parts = append(parts, "flags")
	}
	if len(parts) == 0 {
		return "defaults"
	}
	return strings.Join(parts, ", ")
}
