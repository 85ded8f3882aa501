package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"moltfarm/internal/app"
	"moltfarm/internal/shared/config"
	"moltfarm/internal/shared/logger"
	"moltfarm/internal/shared/types"
)

func main() {
	configDir := flag.String("configdir", "configs", "Path to config directory")
	wallet := flag.String("wallet", "", "Wallet address to link (defaults to [mint] wallet)")
	flag.Parse()

	iniPath := filepath.Join(*configDir, "moltfarm.ini")

	cfg := new(types.Config)
	if err := config.LoadIni(cfg, iniPath); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: Failed to load config file '%s': %v\n", iniPath, err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogConf); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	a, err := app.New(cfg, *configDir, false)
	if err != nil {
		logger.Fatal().Err(err).Msg("Startup failed.")
	}

	target := *wallet
	if target == "" {
		target = cfg.MintConf.Wallet
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Scheduler.LinkWallets(ctx, target); err != nil {
		logger.Fatal().Err(err).Msg("Wallet link run failed.")
	}
}
