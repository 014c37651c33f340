package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/joho/godotenv"

	core "github.com/ligun0805/bundle-submit/internal/bundlecore"
	"github.com/ligun0805/bundle-submit/internal/chain"
	"github.com/ligun0805/bundle-submit/internal/config"
	"github.com/ligun0805/bundle-submit/internal/flashbots"
)

const (
	exitOK       = 0
	exitFailed   = 1
	exitConfig   = 2
	exitRejected = 3
)

func main() {
	_ = godotenv.Load()
	_ = godotenv.Overload(".env.local")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		die("config: " + err.Error())
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, cfg)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, cfg config.Settings) int {
	ec, err := chain.Dial(cfg.RPCURL, cfg.RPCTimeout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfig
	}
	defer ec.Close()
	cc := chain.New(ec, cfg.PollInterval, log.Root())

	chainID := cfg.ChainID
	if chainID == nil {
		if chainID, err = cc.ChainID(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "chain id:", err)
			return exitConfig
		}
	}

	authID, ephemeral, err := core.IdentityFromHex(cfg.FlashbotsAuthKey)
	if err != nil {
		fmt.Fprintln(os.Stderr, "FLASHBOTS_AUTH_KEY:", err)
		return exitConfig
	}
	if ephemeral {
		log.Warn("No relay auth key configured, using an ephemeral reputation key", "address", authID.Address())
	}

	walletHex := cfg.WalletPrivateKey
	if walletHex == "" && stdinIsTerminal() {
		walletHex = readPassword("Wallet private key (empty for an ephemeral demo key): ")
	}
	wallet, ephemeral, err := core.IdentityFromHex(walletHex)
	if err != nil {
		fmt.Fprintln(os.Stderr, "WALLET_PRIVATE_KEY:", err)
		return exitConfig
	}
	if ephemeral {
		log.Warn("No wallet key configured, using an ephemeral unfunded key; the bundle cannot land", "address", wallet.Address())
	}

	opts := flashbots.Options{Timeout: cfg.RPCTimeout}
	if cfg.UseReplacement {
		opts.ReplacementUUID = uuid.NewString()
	}
	relay, err := flashbots.Dial(ctx, cfg.RelayURL, authID, cc, opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfig
	}
	defer relay.Close()

	printConfig(cfg, chainID, authID.Address(), wallet.Address())

	policy, err := buildPolicy(ctx, cfg, cc)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fee policy:", err)
		return exitFailed
	}
	view := &fallbackBaseFee{ChainView: cc, fallback: core.Gwei(1)}
	printNetworkState(ctx, cc, view, cfg, policy)

	engine := &core.Engine{
		Chain:   view,
		Builder: &core.Builder{ChainID: chainID, Nonces: cc},
		Scheduler: &core.Scheduler{
			Relay:             relay,
			Chain:             cc,
			ResimulateOnRetry: cfg.ResimulateOnRetry,
		},
	}

	to := wallet.Address()
	intent := core.Intent{
		Transactions: []core.UnsignedTransaction{{
			To:       &to,
			Value:    new(big.Int),
			GasLimit: cfg.GasLimit,
			ChainID:  chainID,
		}},
		Signers:     []core.SigningIdentity{wallet},
		BlocksAhead: cfg.BlocksInFuture,
		Policy:      policy,
		MaxAttempts: cfg.MaxAttempts,
	}

	flowCtx, cancel := context.WithTimeout(ctx, cfg.WaitTimeout*time.Duration(cfg.MaxAttempts))
	defer cancel()
	res, err := engine.Submit(flowCtx, intent)
	printResult(res)

	var rejected *core.SimulationRejectedError
	switch {
	case errors.As(err, &rejected):
		fmt.Println("[SIMULATION ERROR]", friendlySimErr(rejected.Reason))
		return exitRejected
	case err != nil:
		fmt.Println("[ERROR]", err)
		return exitFailed
	case res.Outcome == core.Included, res.Outcome == core.AccountNonceTooHigh:
		return exitOK
	default:
		return exitFailed
	}
}

// fallbackBaseFee substitutes a fixed base fee when the head reports none.
type fallbackBaseFee struct {
	core.ChainView
	fallback *uint256.Int
}

func (f *fallbackBaseFee) LatestBlock(ctx context.Context) (core.Block, error) {
	b, err := f.ChainView.LatestBlock(ctx)
	if err != nil {
		return b, err
	}
	if b.BaseFee == nil || b.BaseFee.IsZero() {
		log.Warn("Head has no base fee, using fallback", "block", b.Number, "baseFee", core.FmtGwei(f.fallback))
		b.BaseFee = new(uint256.Int).Set(f.fallback)
	}
	return b, nil
}

func buildPolicy(ctx context.Context, cfg config.Settings, cc *chain.Client) (core.PriorityFeePolicy, error) {
	if cfg.TxType == "legacy" {
		return core.PriorityFeePolicy{Type: core.LegacyTxType, LegacyGasPrice: core.Gwei(cfg.LegacyGasGwei)}, nil
	}
	policy := core.PriorityFeePolicy{Type: core.DynamicFeeTxType, PriorityFee: core.Gwei(cfg.PriorityFeeGwei)}
	if cfg.TipMode == "feehist" {
		tip, err := cc.SuggestPriorityFee(ctx, cfg.TipWindow, cfg.TipPercentile)
		if err != nil {
			return policy, err
		}
		// never go below the configured floor
		if tip.Gt(policy.PriorityFee) {
			policy.PriorityFee = tip
		}
	}
	return policy, nil
}

func printResult(res core.Result) {
	fmt.Println("=== RESULT ===")
	if res.IntentID != "" {
		fmt.Println("Intent            :", res.IntentID)
	}
	if res.Simulation.BundleHash != (common.Hash{}) {
		fmt.Println("Simulated hash    :", res.Simulation.BundleHash.Hex(), "| gasUsed:", res.Simulation.GasUsed)
	}
	for _, a := range res.Attempts {
		line := fmt.Sprintf("  attempt #%d target=%d at=%s outcome=%s", a.Number, a.TargetBlock, a.SubmittedAt.Format(time.RFC3339), a.Outcome)
		if a.Err != nil {
			line += " err=" + a.Err.Error()
		}
		fmt.Println(line)
	}
	fmt.Println("Outcome           :", res.Outcome)
	if res.Stats != nil {
		printStats(res.Stats)
	}
	fmt.Println("==============")
}
