package bundlecore

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testChainID = big.NewInt(11155111)

func testIdentity(t *testing.T, hexKey string) *KeyIdentity {
	t.Helper()
	id, ephemeral, err := IdentityFromHex(hexKey)
	require.NoError(t, err)
	require.False(t, ephemeral)
	return id
}

const (
	aliceKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	bobKey   = "8f2a55949038a9610f50fb23b5883af3b4ecb3c3bb792cbcefbd1542c692be63"
)

type fakeNonces struct {
	pending map[common.Address]uint64
	calls   int
	err     error
}

func (f *fakeNonces) PendingNonceAt(_ context.Context, a common.Address) (uint64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.pending[a], nil
}

// brokenSigner signs nothing.
type brokenSigner struct{ addr common.Address }

func (b brokenSigner) Address() common.Address { return b.addr }
func (b brokenSigner) SignTx(*types.Transaction, *big.Int) (*types.Transaction, error) {
	return nil, errors.New("hsm offline")
}
func (b brokenSigner) SignHash([]byte) ([]byte, error) { return nil, errors.New("hsm offline") }

// impostor signs with a key that does not match the address it claims.
type impostor struct {
	*KeyIdentity
	claimed common.Address
}

func (i impostor) Address() common.Address { return i.claimed }

func transfer(t *testing.T, to common.Address, nonce *uint64) UnsignedTransaction {
	t.Helper()
	fees, err := ComputeFees(Gwei(30), 2, DefaultPolicy())
	require.NoError(t, err)
	return UnsignedTransaction{
		To:       &to,
		Value:    big.NewInt(1),
		GasLimit: 21_000,
		ChainID:  testChainID,
		Nonce:    nonce,
		Fees:     fees,
	}
}

func u64(v uint64) *uint64 { return &v }

func TestBuildIsDeterministicAndOrdered(t *testing.T) {
	alice, bob := testIdentity(t, aliceKey), testIdentity(t, bobKey)
	bl := &Builder{ChainID: testChainID}
	txs := []UnsignedTransaction{
		transfer(t, bob.Address(), u64(5)),
		transfer(t, alice.Address(), u64(9)),
	}
	ids := []SigningIdentity{alice, bob}

	first, err := bl.Build(context.Background(), txs, ids)
	require.NoError(t, err)
	second, err := bl.Build(context.Background(), txs, ids)
	require.NoError(t, err)

	require.Equal(t, 2, first.Len())
	assert.Equal(t, first.Raw(), second.Raw())
	assert.Equal(t, first.TxHashes(), second.TxHashes())

	entries := first.Entries()
	assert.Equal(t, alice.Address(), entries[0].From)
	assert.Equal(t, uint64(5), entries[0].Nonce)
	assert.Equal(t, bob.Address(), entries[1].From)
	assert.Equal(t, uint64(9), entries[1].Nonce)

	for i, raw := range first.Raw() {
		var tx types.Transaction
		require.NoError(t, tx.UnmarshalBinary(raw))
		assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
		assert.Equal(t, entries[i].Hash, tx.Hash())
		assert.Equal(t, uint64(40_968_750_000), tx.GasFeeCap().Uint64())
		assert.Equal(t, uint64(3_000_000_000), tx.GasTipCap().Uint64())
		from, err := types.Sender(types.LatestSignerForChainID(testChainID), &tx)
		require.NoError(t, err)
		assert.Equal(t, entries[i].From, from)
	}
	for _, h := range first.Hex() {
		assert.Equal(t, "0x02", h[:4])
	}
}

func TestBuildLegacyEnvelope(t *testing.T) {
	alice := testIdentity(t, aliceKey)
	fees, err := ComputeFees(Gwei(8), 1, LegacyPolicy())
	require.NoError(t, err)
	tx := transfer(t, alice.Address(), u64(0)).WithFees(fees)

	signed, err := (&Builder{ChainID: testChainID}).Build(context.Background(), []UnsignedTransaction{tx}, []SigningIdentity{alice})
	require.NoError(t, err)

	var decoded types.Transaction
	require.NoError(t, decoded.UnmarshalBinary(signed.Raw()[0]))
	assert.Equal(t, uint8(types.LegacyTxType), decoded.Type())
	assert.Zero(t, Gwei(12).ToBig().Cmp(decoded.GasPrice()))
	assert.Zero(t, testChainID.Cmp(decoded.ChainId()))
}

func TestBuildResolvesNoncesPerSigner(t *testing.T) {
	alice, bob := testIdentity(t, aliceKey), testIdentity(t, bobKey)
	nonces := &fakeNonces{pending: map[common.Address]uint64{alice.Address(): 3, bob.Address(): 40}}
	bl := &Builder{ChainID: testChainID, Nonces: nonces}

	txs := []UnsignedTransaction{
		transfer(t, bob.Address(), nil),
		transfer(t, alice.Address(), nil),
		transfer(t, bob.Address(), nil),
		transfer(t, bob.Address(), u64(100)),
	}
	ids := []SigningIdentity{alice, bob, alice, alice}

	signed, err := bl.Build(context.Background(), txs, ids)
	require.NoError(t, err)

	var got []uint64
	for _, e := range signed.Entries() {
		got = append(got, e.Nonce)
	}
	assert.Equal(t, []uint64{3, 40, 4, 100}, got)
	assert.Equal(t, 2, nonces.calls)
}

func TestBuildSkipsExplicitlyClaimedNonces(t *testing.T) {
	alice, bob := testIdentity(t, aliceKey), testIdentity(t, bobKey)
	nonces := &fakeNonces{pending: map[common.Address]uint64{alice.Address(): 7}}
	bl := &Builder{ChainID: testChainID, Nonces: nonces}

	txs := []UnsignedTransaction{
		transfer(t, bob.Address(), nil),
		transfer(t, bob.Address(), u64(7)),
		transfer(t, bob.Address(), nil),
		transfer(t, bob.Address(), u64(9)),
		transfer(t, bob.Address(), nil),
	}
	ids := []SigningIdentity{alice, alice, alice, alice, alice}

	signed, err := bl.Build(context.Background(), txs, ids)
	require.NoError(t, err)
	var got []uint64
	for _, e := range signed.Entries() {
		got = append(got, e.Nonce)
	}
	assert.Equal(t, []uint64{8, 7, 10, 9, 11}, got)

	txs = []UnsignedTransaction{transfer(t, bob.Address(), u64(3)), transfer(t, bob.Address(), u64(3))}
	_, err = bl.Build(context.Background(), txs, ids[:2])
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestBuildNonceSourceFailure(t *testing.T) {
	alice := testIdentity(t, aliceKey)
	bl := &Builder{ChainID: testChainID, Nonces: &fakeNonces{err: errors.New("connection reset")}}
	_, err := bl.Build(context.Background(), []UnsignedTransaction{transfer(t, alice.Address(), nil)}, []SigningIdentity{alice})
	assert.ErrorIs(t, err, ErrTransport)

	bl.Nonces = nil
	_, err = bl.Build(context.Background(), []UnsignedTransaction{transfer(t, alice.Address(), nil)}, []SigningIdentity{alice})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestBuildRejectsInvalidInput(t *testing.T) {
	alice := testIdentity(t, aliceKey)
	bl := &Builder{ChainID: testChainID}
	ctx := context.Background()
	ok := transfer(t, alice.Address(), u64(0))

	cases := map[string]struct {
		txs []UnsignedTransaction
		ids []SigningIdentity
	}{
		"empty":           {},
		"length mismatch": {txs: []UnsignedTransaction{ok, ok}, ids: []SigningIdentity{alice}},
		"nil identity":    {txs: []UnsignedTransaction{ok}, ids: []SigningIdentity{nil}},
		"no fees": {
			txs: []UnsignedTransaction{{To: ok.To, GasLimit: 21_000, ChainID: testChainID, Nonce: u64(0)}},
			ids: []SigningIdentity{alice},
		},
		"wrong chain": {
			txs: []UnsignedTransaction{func() UnsignedTransaction { tx := ok; tx.ChainID = big.NewInt(1); return tx }()},
			ids: []SigningIdentity{alice},
		},
		"zero gas": {
			txs: []UnsignedTransaction{func() UnsignedTransaction { tx := ok; tx.GasLimit = 0; return tx }()},
			ids: []SigningIdentity{alice},
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := bl.Build(ctx, tc.txs, tc.ids)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	_, err := (&Builder{}).Build(ctx, []UnsignedTransaction{ok}, []SigningIdentity{alice})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestBuildSigningFailureAbortsWholeBundle(t *testing.T) {
	alice := testIdentity(t, aliceKey)
	bl := &Builder{ChainID: testChainID}
	txs := []UnsignedTransaction{transfer(t, alice.Address(), u64(0)), transfer(t, alice.Address(), u64(1))}

	signed, err := bl.Build(context.Background(), txs, []SigningIdentity{alice, brokenSigner{addr: common.Address{1}}})
	require.ErrorIs(t, err, ErrSigningFailure)
	var se *SigningError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 1, se.Index)
	assert.Zero(t, signed.Len())

	other := testIdentity(t, bobKey)
	_, err = bl.Build(context.Background(), txs[:1], []SigningIdentity{impostor{KeyIdentity: other, claimed: alice.Address()}})
	assert.ErrorIs(t, err, ErrSigningFailure)
}

func TestEntriesAreCopies(t *testing.T) {
	alice := testIdentity(t, aliceKey)
	signed, err := (&Builder{ChainID: testChainID}).Build(context.Background(),
		[]UnsignedTransaction{transfer(t, alice.Address(), u64(0))}, []SigningIdentity{alice})
	require.NoError(t, err)

	raw := signed.Raw()[0]
	raw[0] = 0xff
	assert.NotEqual(t, byte(0xff), signed.Raw()[0][0])
}

func TestIdentityFromHex(t *testing.T) {
	id, ephemeral, err := IdentityFromHex("  ")
	require.NoError(t, err)
	assert.True(t, ephemeral)
	assert.NotEqual(t, common.Address{}, id.Address())

	_, _, err = IdentityFromHex("0xnothex")
	assert.Error(t, err)

	alice := testIdentity(t, aliceKey)
	digest := crypto.Keccak256([]byte("x"))
	sig, err := alice.SignHash(digest)
	require.NoError(t, err)
	pub, err := crypto.SigToPub(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, alice.Address(), crypto.PubkeyToAddress(*pub))
}
