package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// Settings keeps all configuration options. Keys are read in both
// UPPER_CASE and lower_case form.
type Settings struct {
	RPCURL            string
	ChainID           *big.Int // nil: ask the RPC node
	RelayURL          string
	FlashbotsAuthKey  string
	WalletPrivateKey  string
	BlocksInFuture    uint32
	MaxAttempts       int
	TxType            string // "eip1559" or "legacy"
	PriorityFeeGwei   uint64
	LegacyGasGwei     uint64
	TipMode           string // "fixed" or "feehist"
	TipWindow         int
	TipPercentile     float64
	GasLimit          uint64
	ResimulateOnRetry bool
	PollInterval      time.Duration
	WaitTimeout       time.Duration
	RPCTimeout        time.Duration
	UseReplacement    bool
	LogLevel          string
}

// Load reads settings from the environment. Unparseable values fall back to
// their defaults; Validate reports semantic problems.
func Load() Settings {
	get := func(keys []string, def string) string {
		for _, k := range keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" {
				return v
			}
		}
		return def
	}
	getInt := func(keys []string, def int) int {
		if n, err := strconv.Atoi(get(keys, "")); err == nil {
			return n
		}
		return def
	}
	getUint := func(keys []string, def uint64) uint64 {
		if n, err := strconv.ParseUint(get(keys, ""), 10, 64); err == nil {
			return n
		}
		return def
	}
	// out-of-range values come back as 0 so Validate rejects them
	getUint32 := func(keys []string, def uint32) uint32 {
		n, err := strconv.ParseUint(get(keys, ""), 10, 32)
		switch {
		case err == nil:
			return uint32(n)
		case errors.Is(err, strconv.ErrRange):
			return 0
		}
		return def
	}
	getFloat := func(keys []string, def float64) float64 {
		if n, err := strconv.ParseFloat(get(keys, ""), 64); err == nil {
			return n
		}
		return def
	}
	getBool := func(keys []string, def bool) bool {
		s := strings.ToLower(get(keys, ""))
		if s == "" {
			return def
		}
		return s == "1" || s == "true" || s == "yes" || s == "on"
	}

	st := Settings{}
	st.RPCURL = get([]string{"rpc_url", "RPC_URL"}, "https://ethereum-sepolia-rpc.publicnode.com")
	st.ChainID = parseChainID(get([]string{"chain_id", "CHAIN_ID"}, ""))
	st.RelayURL = get([]string{"relay_url", "RELAY_URL"}, "https://relay-sepolia.flashbots.net")
	st.FlashbotsAuthKey = get([]string{"flashbots_auth_key", "FLASHBOTS_AUTH_KEY"}, "")
	st.WalletPrivateKey = get([]string{"wallet_private_key", "WALLET_PRIVATE_KEY"}, "")

	st.BlocksInFuture = getUint32([]string{"blocks_in_the_future", "BLOCKS_IN_THE_FUTURE"}, 2)
	st.MaxAttempts = getInt([]string{"max_attempts", "MAX_ATTEMPTS"}, 2)
	st.TxType = strings.ToLower(get([]string{"tx_type", "TX_TYPE"}, "eip1559"))
	st.PriorityFeeGwei = getUint([]string{"priority_fee_gwei", "PRIORITY_FEE_GWEI"}, 3)
	st.LegacyGasGwei = getUint([]string{"legacy_gas_price_gwei", "LEGACY_GAS_PRICE_GWEI"}, 12)
	st.TipMode = strings.ToLower(get([]string{"tip_mode", "TIP_MODE"}, "fixed"))
	st.TipWindow = getInt([]string{"tip_window", "TIP_WINDOW"}, 20)
	st.TipPercentile = getFloat([]string{"tip_percentile", "TIP_PERCENTILE"}, 90)
	st.GasLimit = getUint([]string{"gas_limit", "GAS_LIMIT"}, 21_000)

	st.ResimulateOnRetry = getBool([]string{"resimulate_on_retry", "RESIMULATE_ON_RETRY"}, false)
	st.PollInterval = time.Duration(getInt([]string{"poll_interval_ms", "POLL_INTERVAL_MS"}, 1000)) * time.Millisecond
	st.WaitTimeout = time.Duration(getInt([]string{"wait_timeout_sec", "WAIT_TIMEOUT_SEC"}, 90)) * time.Second
	st.RPCTimeout = time.Duration(getInt([]string{"rpc_timeout_sec", "RPC_TIMEOUT_SEC"}, 30)) * time.Second
	st.UseReplacement = getBool([]string{"use_replacement_uuid", "USE_REPLACEMENT_UUID"}, false)
	st.LogLevel = strings.ToLower(get([]string{"log_level", "LOG_LEVEL"}, "info"))
	return st
}

func parseChainID(s string) *big.Int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	z, ok := new(big.Int), false
	if strings.HasPrefix(s, "0x") {
		z, ok = z.SetString(s[2:], 16)
	} else {
		z, ok = z.SetString(s, 10)
	}
	if !ok {
		return nil
	}
	return z
}

// Validate reports every invalid setting at once.
func (s Settings) Validate() error {
	var errs []error
	for _, kv := range [][2]string{{"RPC_URL", s.RPCURL}, {"RELAY_URL", s.RelayURL}} {
		if u, err := url.Parse(kv[1]); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s: not a URL: %q", kv[0], kv[1]))
		}
	}
	if s.ChainID != nil && s.ChainID.Sign() <= 0 {
		errs = append(errs, errors.New("CHAIN_ID must be positive"))
	}
	if s.BlocksInFuture == 0 {
		errs = append(errs, errors.New("BLOCKS_IN_THE_FUTURE must be between 1 and 4294967295"))
	}
	if s.MaxAttempts < 1 {
		errs = append(errs, errors.New("MAX_ATTEMPTS must be >= 1"))
	}
	if s.TxType != "eip1559" && s.TxType != "legacy" {
		errs = append(errs, fmt.Errorf("TX_TYPE: want eip1559 or legacy, got %q", s.TxType))
	}
	if s.TipMode != "fixed" && s.TipMode != "feehist" {
		errs = append(errs, fmt.Errorf("TIP_MODE: want fixed or feehist, got %q", s.TipMode))
	}
	if s.TipPercentile <= 0 || s.TipPercentile > 100 {
		errs = append(errs, fmt.Errorf("TIP_PERCENTILE out of range: %v", s.TipPercentile))
	}
	if s.GasLimit < 21_000 {
		errs = append(errs, fmt.Errorf("GAS_LIMIT below intrinsic gas: %d", s.GasLimit))
	}
	if _, err := s.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Level maps LOG_LEVEL onto a go-ethereum log level.
func (s Settings) Level() (slog.Level, error) {
	switch s.LogLevel {
	case "trace":
		return log.LevelTrace, nil
	case "debug":
		return log.LevelDebug, nil
	case "", "info":
		return log.LevelInfo, nil
	case "warn", "warning":
		return log.LevelWarn, nil
	case "error":
		return log.LevelError, nil
	case "crit":
		return log.LevelCrit, nil
	}
	return log.LevelInfo, fmt.Errorf("LOG_LEVEL: unknown level %q", s.LogLevel)
}
