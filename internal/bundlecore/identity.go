package bundlecore

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// SigningIdentity signs on behalf of one account without exposing its key.
type SigningIdentity interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
	SignHash(hash []byte) ([]byte, error)
}

// KeyIdentity is a SigningIdentity backed by an in-memory secp256k1 key.
type KeyIdentity struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

func NewKeyIdentity(key *ecdsa.PrivateKey) *KeyIdentity {
	return &KeyIdentity{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

// NewEphemeralIdentity generates a throwaway key. It holds no funds, so any
// transaction it signs is for demos and tests only.
func NewEphemeralIdentity() (*KeyIdentity, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return NewKeyIdentity(key), nil
}

// IdentityFromHex parses a hex private key (with or without 0x). An empty
// string yields an ephemeral identity and ephemeral=true.
func IdentityFromHex(s string) (id *KeyIdentity, ephemeral bool, err error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if h == "" {
		id, err = NewEphemeralIdentity()
		return id, true, err
	}
	key, err := crypto.HexToECDSA(h)
	if err != nil {
		return nil, false, fmt.Errorf("private key: %w", err)
	}
	return NewKeyIdentity(key), false, nil
}

func (k *KeyIdentity) Address() common.Address { return k.addr }

func (k *KeyIdentity) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if k == nil || k.key == nil {
		return nil, errors.New("identity has no key")
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), k.key)
}

func (k *KeyIdentity) SignHash(hash []byte) ([]byte, error) {
	if k == nil || k.key == nil {
		return nil, errors.New("identity has no key")
	}
	return crypto.Sign(hash, k.key)
}
