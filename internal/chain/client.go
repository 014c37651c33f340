// Package chain is the read-only chain view used by the bundle engine: head
// and base fee, nonces, fee history, and post-target inclusion checks.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"

	"github.com/ligun0805/bundle-submit/internal/bundlecore"
)

// Backend is the subset of *ethclient.Client this package uses.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	FeeHistory(ctx context.Context, blockCount uint64, lastBlock *big.Int, rewardPercentiles []float64) (*ethereum.FeeHistory, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
}

var _ Backend = (*ethclient.Client)(nil)

// Client implements bundlecore.ChainView, NonceSource and InclusionWatcher.
type Client struct {
	backend      Backend
	pollInterval time.Duration
	logger       log.Logger
}

var (
	_ bundlecore.ChainView        = (*Client)(nil)
	_ bundlecore.NonceSource      = (*Client)(nil)
	_ bundlecore.InclusionWatcher = (*Client)(nil)
)

// Dial connects to rpcURL with keep-alives and a bounded request timeout.
func Dial(rpcURL string, timeout time.Duration) (*ethclient.Client, error) {
	transport := &http.Transport{
		MaxIdleConns:    100,
		IdleConnTimeout: 90 * time.Second,
	}
	rc, err := rpc.DialHTTPWithClient(rpcURL, &http.Client{Timeout: timeout, Transport: transport})
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return ethclient.NewClient(rc), nil
}

func New(backend Backend, pollInterval time.Duration, logger log.Logger) *Client {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if logger == nil {
		logger = log.Root()
	}
	return &Client{backend: backend, pollInterval: pollInterval, logger: logger}
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return c.backend.ChainID(ctx)
}

// LatestBlock returns the head number and base fee (zero before London).
func (c *Client) LatestBlock(ctx context.Context) (bundlecore.Block, error) {
	h, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return bundlecore.Block{}, fmt.Errorf("head: %w", err)
	}
	if h == nil || h.Number == nil {
		return bundlecore.Block{}, fmt.Errorf("head: empty header")
	}
	b := bundlecore.Block{Number: h.Number.Uint64(), BaseFee: new(uint256.Int)}
	if h.BaseFee != nil {
		bf, overflow := uint256.FromBig(h.BaseFee)
		if overflow {
			return bundlecore.Block{}, fmt.Errorf("head: base fee overflows 256 bits")
		}
		b.BaseFee = bf
	}
	return b, nil
}

func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return c.backend.PendingNonceAt(ctx, account)
}
