package bundlecore

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// UnsignedTransaction is one bundle member before signing. Treat it as a value:
// the With* helpers return modified copies.
type UnsignedTransaction struct {
	To       *common.Address
	Value    *big.Int
	Data     []byte
	GasLimit uint64
	ChainID  *big.Int
	Nonce    *uint64 // nil until resolved
	Fees     FeeParameters
}

// Type follows the fee parameters attached to the transaction.
func (u UnsignedTransaction) Type() TxType { return u.Fees.Type() }

func (u UnsignedTransaction) WithFees(f FeeParameters) UnsignedTransaction {
	u.Fees = f
	return u
}

func (u UnsignedTransaction) WithNonce(n uint64) UnsignedTransaction {
	u.Nonce = &n
	return u
}

// toGeth builds the go-ethereum envelope. Nonce must be set.
func (u UnsignedTransaction) toGeth() *types.Transaction {
	var to *common.Address
	if u.To != nil {
		addr := *u.To
		to = &addr
	}
	data := common.CopyBytes(u.Data)
	if u.Type() == LegacyTxType {
		return types.NewTx(&types.LegacyTx{
			Nonce:    *u.Nonce,
			GasPrice: u.Fees.MaxFeePerGas().ToBig(),
			Gas:      u.GasLimit,
			To:       to,
			Value:    cloneBig(u.Value),
			Data:     data,
		})
	}
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   cloneBig(u.ChainID),
		Nonce:     *u.Nonce,
		GasTipCap: u.Fees.PriorityFee().ToBig(),
		GasFeeCap: u.Fees.MaxFeePerGas().ToBig(),
		Gas:       u.GasLimit,
		To:        to,
		Value:     cloneBig(u.Value),
		Data:      data,
	})
}
