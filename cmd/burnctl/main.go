package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultConfig = "./burnctl.toml"
	viewingKeyEnv = "BURNLEDGER_VIEWING_KEY"
)

var errUsage = errors.New("invalid arguments")

type command struct {
	usage string
	run   func(ctx context.Context, e *env, args []string, stdout io.Writer) error
}

var commands = map[string]command{
	"keys new":        {"keys new [--force]", runKeysNew},
	"init":            {"init --registry ADDR --pools FILE [--ranks FILE] [--trait TYPE]", runInit},
	"info":            {"info", runInfo},
	"estimate":        {"estimate ITEM...", runEstimate},
	"rank":            {"rank ITEM", runRank},
	"submit":          {"submit [--submitter ADDR] [--memo TEXT] [--expect POOL=BASE[+BONUS]]... [--payload FILE] ITEM...", runSubmit},
	"deposit":         {"deposit --pool NAME --amount N [--from ADDR] [--memo TEXT]", runDeposit},
	"replace-pools":   {"replace-pools --pools FILE", runReplacePools},
	"upsert-ranks":    {"upsert-ranks --ranks FILE", runUpsertRanks},
	"withdraw":        {"withdraw [--to ADDR]", runWithdraw},
	"set-active":      {"set-active --active=true|false", runSetActive},
	"reset-clock":     {"reset-clock", runResetClock},
	"set-viewing-key": {"set-viewing-key [--key KEY]", runSetViewingKey},
	"balances":        {"balances", runBalances},
	"history":         {"history [--page N] [--size N] [--permit-name NAME]", runHistory},
	"burn-history":    {"burn-history [--page N] [--size N]", runBurnHistory},
	"revoke-permit":   {"revoke-permit --name NAME", runRevokePermit},
	"export":          {"export [--out FILE]", runExport},
}

var commandOrder = []string{
	"keys new", "init", "info", "estimate", "rank", "submit", "deposit",
	"replace-pools", "upsert-ranks", "withdraw", "set-active", "reset-clock",
	"set-viewing-key", "balances", "history", "burn-history", "revoke-permit", "export",
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("burnctl", flag.ContinueOnError)
	global.SetOutput(stderr)
	configPath := global.String("config", defaultConfig, "Path to the burnctl TOML config")
	metricsFile := global.String("metrics-textfile", "", "Write prometheus metrics to this file after the command")
	if err := global.Parse(args); err != nil {
		return 2
	}
	rest := global.Args()
	if len(rest) == 0 {
		fmt.Fprint(stderr, usage())
		return 1
	}

	name, sub := rest[0], rest[1:]
	if name == "keys" && len(sub) > 0 {
		name, sub = "keys "+sub[0], sub[1:]
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n", strings.Join(rest[:1], " "))
		fmt.Fprint(stderr, usage())
		return 1
	}

	e, err := openEnv(ctx, *configPath, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() {
		if err := e.Close(ctx); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
	}()

	if err := cmd.run(ctx, e, sub, stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(stderr, "Usage: burnctl %s\n", cmd.usage)
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if *metricsFile != "" {
		if err := prometheus.WriteToTextfile(*metricsFile, prometheus.DefaultGatherer); err != nil {
			fmt.Fprintf(stderr, "Error: write metrics: %v\n", err)
			return 1
		}
	}
	return 0
}

func usage() string {
	var b strings.Builder
	b.WriteString("Usage: burnctl [--config FILE] [--metrics-textfile FILE] <command>\n\nCommands:\n")
	for _, name := range commandOrder {
		fmt.Fprintf(&b, "  %s\n", commands[name].usage)
	}
	return b.String()
}
