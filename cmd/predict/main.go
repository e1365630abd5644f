// predict is the operator CLI for pooled binary prediction markets.
//
// Architecture:
//
//	main.go               entry point: loads config, restores state, runs one subcommand, saves the ledger
//	ledger.go             ledger persistence and replay of market batches the ledger missed
//	engine/engine.go      orchestrator: per-market slots, custody → persist → swap, risk checks, events
//	market/market.go      market aggregate: creation guards, betting, resolution, pause and side exits
//	market/pricing.go     spot prices, odds, price impact, arbitrage and expected payout
//	strategy/maker.go     market-maker liquidity unit and rebalance signal
//	settlement/claim.go   claim workflow and pending-payout projection
//	settlement/fees.go    fee collector and distribution split
//	risk/manager.go       pool-movement kill switch and global maker exposure cap
//	store/store.go        JSON file persistence for markets, collector and ledger
//	custody/ledger.go     in-process balance book that executes transfer batches
//	oracle/static.go      price readings supplied by the operator
//
// Usage:
//
//	predict [--config path] [--now unix] <command> [flags]
//
// Every command is deterministic given --now; without it the wall clock is used.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"

	"predictpool/internal/config"
	"predictpool/internal/custody"
	"predictpool/internal/engine"
	"predictpool/internal/market"
	"predictpool/internal/oracle"
	"predictpool/internal/store"
)

type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"deposit":           {"credit collateral to an account", runDeposit},
	"create-market":     {"open a new market", runCreateMarket},
	"bet":               {"stake on YES or NO", runBet},
	"resolve":           {"settle a market from a price or an oracle reading", runResolve},
	"claim":             {"pay out a winning position", runClaim},
	"init-maker":        {"attach a market maker", runInitMaker},
	"provide-liquidity": {"add maker liquidity to both pools", runProvideLiquidity},
	"consolidate":       {"sweep a resolved market's fee vault", runConsolidate},
	"pause":             {"set or clear a market's emergency pause", runPause},
	"transition":        {"move a market to disputed or cancelled", runTransition},
	"quote":             {"price a prospective bet", runQuote},
	"show":              {"print markets, positions and balances", runShow},
}

// app holds everything a subcommand needs.
type app struct {
	cfg      *config.Config
	eng      *engine.Engine
	ledger   *custody.Ledger
	oracle   *oracle.Static
	store    *store.Store
	logger   *slog.Logger
	now      int64
	decimals int32
	out      io.Writer
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if market.IsRecoverable(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(args []string) error {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("PREDICT_CONFIG"); p != "" {
		cfgPath = p
	}

	global := pflag.NewFlagSet("predict", pflag.ContinueOnError)
	global.SetInterspersed(false)
	global.StringVar(&cfgPath, "config", cfgPath, "config file")
	now := global.Int64("now", 0, "clock override in unix seconds (default: wall clock)")
	decimals := global.Int32("decimals", 6, "collateral decimals used when printing amounts")
	global.Usage = func() { usage(global) }
	if err := global.Parse(args); err != nil {
		return err
	}
	rest := global.Args()
	if len(rest) == 0 {
		usage(global)
		return errors.New("no command given")
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		usage(global)
		return fmt.Errorf("unknown command %q", rest[0])
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Logs go to stderr so command output stays parseable.
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	saved, err := st.LoadLedger()
	if err != nil {
		return err
	}
	ledger := custody.NewLedger()
	ledger.Restore(saved.Balances)
	orc := oracle.NewStatic()

	eng, err := engine.New(*cfg, st, ledger, orc, logger)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	replayed, err := recoverLedger(ctx, eng, ledger, saved.Applied, logger)
	if err != nil {
		return fmt.Errorf("recover ledger: %w", err)
	}
	if replayed > 0 {
		if err := saveLedger(st, eng, ledger); err != nil {
			return fmt.Errorf("save recovered ledger: %w", err)
		}
	}

	a := &app{
		cfg:      cfg,
		eng:      eng,
		ledger:   ledger,
		oracle:   orc,
		store:    st,
		logger:   logger,
		now:      *now,
		decimals: *decimals,
		out:      os.Stdout,
	}
	if a.now == 0 {
		a.now = time.Now().Unix()
	}

	if err := cmd.run(ctx, a, rest[1:]); err != nil {
		return fmt.Errorf("%s: %w", rest[0], err)
	}
	if err := saveLedger(st, eng, ledger); err != nil {
		logger.Error("failed to save ledger, market batches will be replayed on next start", "error", err)
		return err
	}
	return nil
}

func usage(fs *pflag.FlagSet) {
	fmt.Fprintln(os.Stderr, "usage: predict [global flags] <command> [flags]")
	fmt.Fprintln(os.Stderr, "\ncommands:")
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(os.Stderr, "  %-18s %s\n", n, commands[n].summary)
	}
	fmt.Fprintln(os.Stderr, "\nglobal flags:")
	fs.PrintDefaults()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseAddress(name, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("--%s: %q is not a hex address", name, s)
	}
	return common.HexToAddress(s), nil
}

// amount renders base units as a decimal collateral amount.
func (a *app) amount(v uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), -a.decimals).String()
}

func bps(v uint64) string {
	return decimal.New(int64(v), -2).StringFixed(2) + "%"
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newFlags(name string) *pflag.FlagSet {
	return pflag.NewFlagSet(name, pflag.ContinueOnError)
}

func required(fs *pflag.FlagSet, names ...string) error {
	var missing []string
	for _, n := range names {
		if !fs.Changed(n) {
			missing = append(missing, "--"+n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required flags: %s", strings.Join(missing, ", "))
	}
	return nil
}
