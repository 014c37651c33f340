package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	core "github.com/ligun0805/bundle-submit/internal/bundlecore"
	"github.com/ligun0805/bundle-submit/internal/chain"
	"github.com/ligun0805/bundle-submit/internal/config"
	"github.com/ligun0805/bundle-submit/internal/flashbots"
)

type appConfig struct {
	settings    config.Settings
	inputPath   string
	outPath     string
	concurrency int
	rowTimeout  time.Duration
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v, err := strconv.Atoi(getenv(key, "")); err == nil && v > 0 {
		return v
	}
	return def
}

func mustLoadConfig() appConfig {
	cfg := appConfig{settings: config.Load()}
	st := &cfg.settings
	flag.StringVar(&cfg.inputPath, "input", getenv("BATCH_INPUT", ""), "CSV with rows: to,valueWei,dataHex,gasLimit[,walletKey]")
	flag.StringVar(&cfg.outPath, "out", getenv("BATCH_OUT", "batch_results.csv"), "Output CSV")
	flag.StringVar(&st.RPCURL, "rpc", st.RPCURL, "RPC endpoint URL")
	flag.StringVar(&st.RelayURL, "relay", st.RelayURL, "Bundle relay URL")
	flag.StringVar(&st.WalletPrivateKey, "wallet-pk", st.WalletPrivateKey, "Default signer key for rows without walletKey")
	flag.IntVar(&cfg.concurrency, "concurrency", getenvInt("BATCH_CONCURRENCY", 4), "Signers processed in parallel")
	rowTimeoutSec := getenvInt("BATCH_ROW_TIMEOUT_SEC", int(st.WaitTimeout/time.Second)*st.MaxAttempts)
	flag.IntVar(&rowTimeoutSec, "row-timeout-sec", rowTimeoutSec, "Time budget for one intent")
	flag.Parse()

	if cfg.inputPath == "" {
		fmt.Fprintln(os.Stderr, "missing -input (or BATCH_INPUT) file")
		askExitAndQuit(2)
	}
	if err := st.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		askExitAndQuit(2)
	}
	if cfg.concurrency < 1 {
		cfg.concurrency = 1
	}
	cfg.rowTimeout = time.Duration(rowTimeoutSec) * time.Second
	return cfg
}

func main() {
	_ = godotenv.Load()
	cfg := mustLoadConfig()
	lvl, _ := cfg.settings.Level()
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, lvl, false)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		askExitAndQuit(1)
	}
	fmt.Println("Done. Results =>", cfg.outPath)
}

// askExitAndQuit waits for Enter before exiting when run from a console.
func askExitAndQuit(code int) {
	fmt.Fprint(os.Stderr, "Exit now? Press Enter to close...")
	_, _ = bufio.NewReader(os.Stdin).ReadBytes('\n')
	os.Exit(code)
}

func run(ctx context.Context, cfg appConfig) error {
	st := cfg.settings
	data, err := os.ReadFile(cfg.inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	rows, err := parseRows(data, st)
	if err != nil {
		return err
	}

	ec, err := chain.Dial(st.RPCURL, st.RPCTimeout)
	if err != nil {
		return err
	}
	defer ec.Close()
	cc := chain.New(ec, st.PollInterval, log.Root())

	chainID := st.ChainID
	if chainID == nil {
		if chainID, err = cc.ChainID(ctx); err != nil {
			return fmt.Errorf("chain id: %w", err)
		}
	}
	auth, ephemeral, err := core.IdentityFromHex(st.FlashbotsAuthKey)
	if err != nil {
		return fmt.Errorf("FLASHBOTS_AUTH_KEY: %w", err)
	}
	if ephemeral {
		log.Warn("Using an ephemeral relay auth key", "address", auth.Address())
	}
	relay, err := flashbots.Dial(ctx, st.RelayURL, auth, cc, flashbots.Options{Timeout: st.RPCTimeout})
	if err != nil {
		return err
	}
	defer relay.Close()

	policy := core.PriorityFeePolicy{Type: core.DynamicFeeTxType, PriorityFee: core.Gwei(st.PriorityFeeGwei)}
	if st.TxType == "legacy" {
		policy = core.PriorityFeePolicy{Type: core.LegacyTxType, LegacyGasPrice: core.Gwei(st.LegacyGasGwei)}
	}
	engine := &core.Engine{
		Chain:   cc,
		Builder: &core.Builder{ChainID: chainID, Nonces: cc},
		Scheduler: &core.Scheduler{
			Relay:             relay,
			Chain:             cc,
			ResimulateOnRetry: st.ResimulateOnRetry,
		},
	}

	results := submitAll(ctx, engine, rows, policy, st, cfg)
	return writeResults(cfg.outPath, results)
}

// submitAll runs one flow per row. Rows sharing a signer run in file order so
// their nonces do not collide; distinct signers run in parallel.
func submitAll(ctx context.Context, engine *core.Engine, rows []intentRow, policy core.PriorityFeePolicy, st config.Settings, cfg appConfig) []rowResult {
	results := make([]rowResult, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.concurrency)
	for _, group := range groupBySigner(rows) {
		group := group
		g.Go(func() error {
			for _, i := range group {
				results[i] = submitRow(gctx, engine, rows[i], policy, st, cfg.rowTimeout)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func submitRow(ctx context.Context, engine *core.Engine, row intentRow, policy core.PriorityFeePolicy, st config.Settings, timeout time.Duration) rowResult {
	out := rowResult{line: row.line, result: core.Result{Outcome: core.Unknown}}
	if row.signer != nil {
		out.from = row.signer.Address()
	}
	if row.err != nil {
		out.err = row.err
		return out
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	res, err := engine.Submit(rctx, core.Intent{
		Transactions: []core.UnsignedTransaction{row.tx},
		Signers:      []core.SigningIdentity{row.signer},
		BlocksAhead:  st.BlocksInFuture,
		Policy:       policy,
		MaxAttempts:  st.MaxAttempts,
	})
	out.result, out.err = res, err
	if err != nil {
		log.Warn("Intent failed", "line", row.line, "from", out.from, "err", err)
	} else {
		log.Info("Intent finished", "line", row.line, "from", out.from, "outcome", res.Outcome)
	}
	return out
}

func writeResults(path string, results []rowResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	w := csv.NewWriter(f)
	_ = w.Write([]string{"line", "from", "intent", "outcome", "attempts", "bundleHash", "error"})
	for _, r := range results {
		_ = w.Write(r.record())
	}
	w.Flush()
	return errors.Join(w.Error(), f.Close())
}
