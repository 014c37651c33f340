package bundlecore

import (
	"context"
	"fmt"
	"math/big"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// NonceSource resolves the next usable nonce of an account.
type NonceSource interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// BundleEntry pairs a transaction with the identity that signs it.
type BundleEntry struct {
	Tx     UnsignedTransaction
	Signer SigningIdentity
}

// Bundle is an ordered set of entries; position is execution order in the block.
type Bundle []BundleEntry

// NewBundle zips parallel transaction and identity lists.
func NewBundle(txs []UnsignedTransaction, ids []SigningIdentity) (Bundle, error) {
	if len(txs) == 0 {
		return nil, invalidInput("empty bundle")
	}
	if len(txs) != len(ids) {
		return nil, invalidInput("%d transactions but %d identities", len(txs), len(ids))
	}
	b := make(Bundle, len(txs))
	for i := range txs {
		if ids[i] == nil {
			return nil, invalidInput("tx #%d has no signing identity", i)
		}
		b[i] = BundleEntry{Tx: txs[i], Signer: ids[i]}
	}
	return b, nil
}

// SignedTx is one signed bundle member.
type SignedTx struct {
	Raw   []byte
	Hash  common.Hash
	From  common.Address
	Nonce uint64
}

// SignedBundle is the immutable, ordered output of Builder.Build. The same
// value may be resubmitted for later target blocks while its nonces stay valid.
type SignedBundle struct {
	txs []SignedTx
}

func (b SignedBundle) Len() int { return len(b.txs) }

// Entries returns copies of the signed members in bundle order.
func (b SignedBundle) Entries() []SignedTx {
	out := make([]SignedTx, len(b.txs))
	for i, t := range b.txs {
		out[i] = SignedTx{Raw: common.CopyBytes(t.Raw), Hash: t.Hash, From: t.From, Nonce: t.Nonce}
	}
	return out
}

func (b SignedBundle) Raw() [][]byte {
	out := make([][]byte, len(b.txs))
	for i, t := range b.txs {
		out[i] = common.CopyBytes(t.Raw)
	}
	return out
}

// Hex returns the 0x-prefixed raw encodings, the form relays accept.
func (b SignedBundle) Hex() []string {
	out := make([]string, len(b.txs))
	for i, t := range b.txs {
		out[i] = hexutil.Encode(t.Raw)
	}
	return out
}

func (b SignedBundle) TxHashes() []common.Hash {
	out := make([]common.Hash, len(b.txs))
	for i, t := range b.txs {
		out[i] = t.Hash
	}
	return out
}

// Builder signs bundles for a single chain.
type Builder struct {
	ChainID *big.Int
	Nonces  NonceSource // optional; used for transactions without a nonce
}

// Build signs every entry once, in order. Any failure aborts the whole build.
func (bl *Builder) Build(ctx context.Context, txs []UnsignedTransaction, ids []SigningIdentity) (SignedBundle, error) {
	bundle, err := NewBundle(txs, ids)
	if err != nil {
		return SignedBundle{}, err
	}
	return bl.BuildBundle(ctx, bundle)
}

func (bl *Builder) BuildBundle(ctx context.Context, bundle Bundle) (SignedBundle, error) {
	if bl.ChainID == nil || bl.ChainID.Sign() <= 0 {
		return SignedBundle{}, invalidInput("builder has no chain id")
	}
	if len(bundle) == 0 {
		return SignedBundle{}, invalidInput("empty bundle")
	}
	for i, e := range bundle {
		if e.Signer == nil {
			return SignedBundle{}, invalidInput("tx #%d has no signing identity", i)
		}
		if err := e.Tx.Fees.Validate(); err != nil {
			return SignedBundle{}, fmt.Errorf("tx #%d: %w", i, err)
		}
		if e.Tx.ChainID == nil || e.Tx.ChainID.Cmp(bl.ChainID) != 0 {
			return SignedBundle{}, invalidInput("tx #%d chain id %v, want %v", i, e.Tx.ChainID, bl.ChainID)
		}
		if e.Tx.GasLimit == 0 {
			return SignedBundle{}, invalidInput("tx #%d has zero gas limit", i)
		}
	}

	nonces, err := bl.resolveNonces(ctx, bundle)
	if err != nil {
		return SignedBundle{}, err
	}

	out := make([]SignedTx, 0, len(bundle))
	for i, e := range bundle {
		tx := e.Tx.WithNonce(nonces[i]).toGeth()
		signed, err := e.Signer.SignTx(tx, bl.ChainID)
		if err != nil {
			return SignedBundle{}, &SigningError{Index: i, Err: err}
		}
		raw, err := signed.MarshalBinary()
		if err != nil {
			return SignedBundle{}, &SigningError{Index: i, Err: err}
		}
		from, err := types.Sender(types.LatestSignerForChainID(bl.ChainID), signed)
		if err != nil || from != e.Signer.Address() {
			return SignedBundle{}, &SigningError{Index: i, Err: fmt.Errorf("signature does not recover to %s", e.Signer.Address().Hex())}
		}
		out = append(out, SignedTx{Raw: raw, Hash: signed.Hash(), From: from, Nonce: nonces[i]})
	}
	return SignedBundle{txs: out}, nil
}

// resolveNonces keeps explicit nonces and, for unset ones, hands out the
// signer's pending nonce plus one per earlier unset tx of the same signer,
// skipping any nonce the same signer already claimed explicitly.
func (bl *Builder) resolveNonces(ctx context.Context, bundle Bundle) ([]uint64, error) {
	nonces := make([]uint64, len(bundle))
	claimed := make(map[common.Address]mapset.Set[uint64])
	for i, e := range bundle {
		if e.Tx.Nonce == nil {
			continue
		}
		addr := e.Signer.Address()
		if claimed[addr] == nil {
			claimed[addr] = mapset.NewThreadUnsafeSet[uint64]()
		}
		if !claimed[addr].Add(*e.Tx.Nonce) {
			return nil, invalidInput("tx #%d reuses nonce %d of %s", i, *e.Tx.Nonce, addr.Hex())
		}
	}

	next := make(map[common.Address]uint64)
	for i, e := range bundle {
		if e.Tx.Nonce != nil {
			nonces[i] = *e.Tx.Nonce
			continue
		}
		addr := e.Signer.Address()
		n, ok := next[addr]
		if !ok {
			if bl.Nonces == nil {
				return nil, invalidInput("tx #%d has no nonce and no nonce source is configured", i)
			}
			pending, err := bl.Nonces.PendingNonceAt(ctx, addr)
			if err != nil {
				return nil, &TransportError{Op: "pending nonce " + addr.Hex(), Err: err}
			}
			n = pending
		}
		for claimed[addr] != nil && claimed[addr].Contains(n) {
			n++
		}
		nonces[i] = n
		next[addr] = n + 1
	}
	return nonces, nil
}
