package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"moltfarm/internal/app"
	"moltfarm/internal/shared/config"
	"moltfarm/internal/shared/logger"
	"moltfarm/internal/shared/types"
)

func main() {
	configDir := flag.String("configdir", "configs", "Path to config directory")
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

	reader := bufio.NewReader(os.Stdin)

	fmt.Println("Accounts:")
	for i, bot := range a.Bots {
		fmt.Printf("  [%d] %s\n", i, bot.Name)
	}

	senderStr := prompt(reader, "Sender index: ")
	senderIndex, err := strconv.Atoi(senderStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid sender index %q\n", senderStr)
		os.Exit(1)
	}

	recipient := prompt(reader, "Recipient name: ")
	ticker := prompt(reader, "Ticker: ")
	amount := prompt(reader, "Amount: ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Scheduler.Transfer(ctx, senderIndex, recipient, ticker, amount); err != nil {
		logger.Fatal().Err(err).Msg("Transfer failed.")
	}
	fmt.Println("Transfer posted.")
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}
