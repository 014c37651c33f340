// Package flashbots is a bundle relay client speaking the Flashbots JSON-RPC
// dialect (eth_callBundle, eth_sendBundle, flashbots_get*StatsV2).
package flashbots

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/ligun0805/bundle-submit/internal/bundlecore"
)

// Options tune eth_sendBundle; zero values are omitted from the request.
type Options struct {
	ReplacementUUID string
	MinTimestamp    uint64
	MaxTimestamp    uint64
	Builders        []string
	Timeout         time.Duration
}

// Client implements bundlecore.Relay against one relay endpoint.
type Client struct {
	url     string
	rpc     *rpc.Client
	watcher bundlecore.InclusionWatcher
	opts    Options
	logger  log.Logger
}

var _ bundlecore.Relay = (*Client)(nil)

// Dial connects to relayURL. auth signs every request body; watcher resolves
// the attempt handles returned by SendRawBundle.
func Dial(ctx context.Context, relayURL string, auth Signer, watcher bundlecore.InclusionWatcher, opts Options) (*Client, error) {
	u := strings.TrimSpace(relayURL)
	if u == "" {
		return nil, errors.New("relay url is empty")
	}
	if auth == nil {
		return nil, errors.New("relay auth signer is nil")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 12 * time.Second
	}
	hc := &http.Client{
		Timeout:   opts.Timeout,
		Transport: &signingTransport{base: http.DefaultTransport, signer: auth},
	}
	rc, err := rpc.DialOptions(ctx, u, rpc.WithHTTPClient(hc))
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", u, err)
	}
	return &Client{url: u, rpc: rc, watcher: watcher, opts: opts, logger: log.New("relay", u)}, nil
}

func (c *Client) Close() { c.rpc.Close() }

func (c *Client) URL() string { return c.url }

type callBundleArgs struct {
	Txs              []string `json:"txs"`
	BlockNumber      string   `json:"blockNumber"`
	StateBlockNumber string   `json:"stateBlockNumber"`
}

type callBundleTxResult struct {
	TxHash  common.Hash `json:"txHash"`
	GasUsed uint64      `json:"gasUsed"`
	Error   string      `json:"error,omitempty"`
	Revert  string      `json:"revert,omitempty"`
}

type callBundleResult struct {
	BundleHash       common.Hash          `json:"bundleHash"`
	BundleGasPrice   string               `json:"bundleGasPrice"`
	CoinbaseDiff     string               `json:"coinbaseDiff"`
	TotalGasUsed     uint64               `json:"totalGasUsed"`
	StateBlockNumber uint64               `json:"stateBlockNumber"`
	Results          []callBundleTxResult `json:"results"`
}

// Simulate runs eth_callBundle. Relay-side errors become a Rejected outcome;
// only transport failures are returned as errors.
func (c *Client) Simulate(ctx context.Context, bundle bundlecore.SignedBundle, targetBlock uint64) (bundlecore.SimulationOutcome, error) {
	args := callBundleArgs{
		Txs:              bundle.Hex(),
		BlockNumber:      hexutil.EncodeUint64(targetBlock),
		StateBlockNumber: "latest",
	}
	var res callBundleResult
	if err := c.rpc.CallContext(ctx, &res, "eth_callBundle", args); err != nil {
		if msg, ok := relayError(err); ok {
			return bundlecore.Rejection(targetBlock, msg), nil
		}
		return bundlecore.SimulationOutcome{}, &bundlecore.TransportError{Op: "eth_callBundle", Err: err}
	}
	results := make([]bundlecore.TxSimulationResult, len(res.Results))
	for i, r := range res.Results {
		results[i] = bundlecore.TxSimulationResult{TxHash: r.TxHash, GasUsed: r.GasUsed, Error: r.Error, Revert: r.Revert}
	}
	c.logger.Debug("eth_callBundle", "target", targetBlock, "hash", res.BundleHash, "gas", res.TotalGasUsed, "gasPrice", res.BundleGasPrice, "coinbaseDiff", res.CoinbaseDiff)
	return bundlecore.Viable(targetBlock, res.TotalGasUsed, res.BundleHash, results), nil
}

type sendBundleArgs struct {
	Txs             []string `json:"txs"`
	BlockNumber     string   `json:"blockNumber"`
	MinTimestamp    uint64   `json:"minTimestamp,omitempty"`
	MaxTimestamp    uint64   `json:"maxTimestamp,omitempty"`
	ReplacementUUID string   `json:"replacementUuid,omitempty"`
	Builders        []string `json:"builders,omitempty"`
}

// SendRawBundle runs eth_sendBundle and returns a handle that resolves
// through the configured inclusion watcher.
func (c *Client) SendRawBundle(ctx context.Context, bundle bundlecore.SignedBundle, targetBlock uint64) (bundlecore.AttemptHandle, error) {
	args := sendBundleArgs{
		Txs:             bundle.Hex(),
		BlockNumber:     hexutil.EncodeUint64(targetBlock),
		MinTimestamp:    c.opts.MinTimestamp,
		MaxTimestamp:    c.opts.MaxTimestamp,
		ReplacementUUID: c.opts.ReplacementUUID,
		Builders:        c.opts.Builders,
	}
	var raw json.RawMessage
	if err := c.rpc.CallContext(ctx, &raw, "eth_sendBundle", args); err != nil {
		if msg, ok := relayError(err); ok {
			return nil, &bundlecore.SubmissionError{TargetBlock: targetBlock, Reason: msg}
		}
		return nil, &bundlecore.TransportError{Op: "eth_sendBundle", Err: err}
	}
	hash, err := parseBundleHash(raw)
	if err != nil {
		return nil, &bundlecore.SubmissionError{TargetBlock: targetBlock, Reason: err.Error()}
	}
	if c.watcher == nil {
		return nil, errors.New("relay client has no inclusion watcher")
	}
	return &attempt{hash: hash, target: targetBlock, bundle: bundle, watcher: c.watcher}, nil
}

// BundleStats runs flashbots_getBundleStatsV2.
func (c *Client) BundleStats(ctx context.Context, bundleHash common.Hash, targetBlock uint64) (bundlecore.BundleStats, error) {
	args := map[string]any{"bundleHash": bundleHash, "blockNumber": hexutil.EncodeUint64(targetBlock)}
	var raw json.RawMessage
	if err := c.rpc.CallContext(ctx, &raw, "flashbots_getBundleStatsV2", args); err != nil {
		return bundlecore.BundleStats{}, fmt.Errorf("flashbots_getBundleStatsV2: %w", err)
	}
	var st bundlecore.BundleStats
	if err := json.Unmarshal(raw, &st); err != nil {
		return bundlecore.BundleStats{}, fmt.Errorf("decode bundle stats: %w", err)
	}
	st.Raw = raw
	return st, nil
}

// UserStats runs flashbots_getUserStatsV2 for the auth signer.
func (c *Client) UserStats(ctx context.Context, blockNumber uint64) (bundlecore.UserStats, error) {
	args := map[string]any{"blockNumber": hexutil.EncodeUint64(blockNumber)}
	var raw json.RawMessage
	if err := c.rpc.CallContext(ctx, &raw, "flashbots_getUserStatsV2", args); err != nil {
		return bundlecore.UserStats{}, fmt.Errorf("flashbots_getUserStatsV2: %w", err)
	}
	var st bundlecore.UserStats
	if err := json.Unmarshal(raw, &st); err != nil {
		return bundlecore.UserStats{}, fmt.Errorf("decode user stats: %w", err)
	}
	st.Raw = raw
	return st, nil
}

// relayError extracts an application-level error message. JSON-RPC error
// objects count, including ones delivered with a non-2xx HTTP status.
func relayError(err error) (string, bool) {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.Error(), true
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) && len(httpErr.Body) > 0 {
		var body struct {
			Error *struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(httpErr.Body, &body) == nil && body.Error != nil && body.Error.Message != "" {
			return body.Error.Message, true
		}
	}
	return "", false
}

// parseBundleHash accepts {"bundleHash": "0x.."} as well as a bare hash string.
func parseBundleHash(raw json.RawMessage) (common.Hash, error) {
	var obj struct {
		BundleHash common.Hash `json:"bundleHash"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.BundleHash != (common.Hash{}) {
		return obj.BundleHash, nil
	}
	var h common.Hash
	if err := json.Unmarshal(raw, &h); err == nil && h != (common.Hash{}) {
		return h, nil
	}
	return common.Hash{}, fmt.Errorf("unexpected eth_sendBundle result %s", string(raw))
}
