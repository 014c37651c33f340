package bundlecore

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Fee-market base fee moves by at most 1/8 per block.
var (
	baseFeeNum   = uint256.NewInt(9)
	baseFeeDenom = uint256.NewInt(8)
)

// TxType is the envelope type a transaction is encoded with.
type TxType uint8

const (
	LegacyTxType     TxType = 0
	DynamicFeeTxType TxType = 2
)

func (t TxType) String() string {
	switch t {
	case LegacyTxType:
		return "legacy"
	case DynamicFeeTxType:
		return "eip1559"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// PriorityFeePolicy tells ComputeFees what tip (or legacy gas price) to pay.
type PriorityFeePolicy struct {
	Type           TxType
	PriorityFee    *uint256.Int // fee-market only
	LegacyGasPrice *uint256.Int // legacy only
}

// DefaultPolicy pays a fixed 3 gwei tip on a fee-market transaction.
func DefaultPolicy() PriorityFeePolicy {
	return PriorityFeePolicy{Type: DynamicFeeTxType, PriorityFee: Gwei(3)}
}

// LegacyPolicy pays a fixed 12 gwei gas price on a legacy transaction.
func LegacyPolicy() PriorityFeePolicy {
	return PriorityFeePolicy{Type: LegacyTxType, LegacyGasPrice: Gwei(12)}
}

// FeeParameters are the fee fields one transaction carries. Only ComputeFees
// builds them; the accessors hand out copies.
type FeeParameters struct {
	txType         TxType
	baseFeeCeiling *uint256.Int
	priorityFee    *uint256.Int
	maxFeePerGas   *uint256.Int
}

func (f FeeParameters) Type() TxType                 { return f.txType }
func (f FeeParameters) BaseFeeCeiling() *uint256.Int { return cloneU256(f.baseFeeCeiling) }
func (f FeeParameters) PriorityFee() *uint256.Int    { return cloneU256(f.priorityFee) }
func (f FeeParameters) MaxFeePerGas() *uint256.Int   { return cloneU256(f.maxFeePerGas) }

// IsZero reports whether the parameters were never computed.
func (f FeeParameters) IsZero() bool { return f.maxFeePerGas == nil }

// Validate checks maxFeePerGas >= priorityFee + baseFeeCeiling.
func (f FeeParameters) Validate() error {
	if f.IsZero() || f.priorityFee == nil || f.baseFeeCeiling == nil {
		return invalidInput("fee parameters not computed")
	}
	floor, overflow := new(uint256.Int).AddOverflow(f.priorityFee, f.baseFeeCeiling)
	if overflow || f.maxFeePerGas.Lt(floor) {
		return invalidInput("maxFeePerGas %s below priority %s + ceiling %s",
			f.maxFeePerGas.Dec(), f.priorityFee.Dec(), f.baseFeeCeiling.Dec())
	}
	return nil
}

func (f FeeParameters) String() string {
	return fmt.Sprintf("%s ceiling=%s gwei tip=%s gwei maxFee=%s gwei",
		f.txType, FmtGwei(f.baseFeeCeiling), FmtGwei(f.priorityFee), FmtGwei(f.maxFeePerGas))
}

// MaxBaseFeeInFutureBlock returns an upper bound on the base fee blocksAhead
// blocks after the anchor. Every step rounds up, so the bound never undershoots.
func MaxBaseFeeInFutureBlock(baseFee *uint256.Int, blocksAhead uint32) (*uint256.Int, error) {
	if baseFee == nil {
		return nil, invalidInput("nil base fee")
	}
	c := baseFee.Clone()
	rem := new(uint256.Int)
	for i := uint32(0); i < blocksAhead; i++ {
		m, overflow := new(uint256.Int).MulOverflow(c, baseFeeNum)
		if overflow {
			return nil, invalidInput("base fee ceiling overflows 256 bits after %d blocks", i+1)
		}
		c.DivMod(m, baseFeeDenom, rem)
		if !rem.IsZero() {
			c.AddUint64(c, 1)
		}
	}
	return c, nil
}

// ComputeFees derives the fee parameters needed to stay includable blocksAhead
// blocks after the anchor block whose base fee is observedBaseFee.
func ComputeFees(observedBaseFee *uint256.Int, blocksAhead uint32, policy PriorityFeePolicy) (FeeParameters, error) {
	if blocksAhead == 0 {
		return FeeParameters{}, invalidInput("blocksAhead must be >= 1")
	}
	if observedBaseFee == nil {
		observedBaseFee = new(uint256.Int)
	}
	ceiling, err := MaxBaseFeeInFutureBlock(observedBaseFee, blocksAhead)
	if err != nil {
		return FeeParameters{}, err
	}

	switch policy.Type {
	case DynamicFeeTxType:
		if observedBaseFee.IsZero() {
			return FeeParameters{}, invalidInput("zero base fee for a fee-market transaction")
		}
		tip := cloneU256(policy.PriorityFee)
		maxFee, overflow := new(uint256.Int).AddOverflow(tip, ceiling)
		if overflow {
			return FeeParameters{}, invalidInput("maxFeePerGas overflows 256 bits")
		}
		return FeeParameters{txType: DynamicFeeTxType, baseFeeCeiling: ceiling, priorityFee: tip, maxFeePerGas: maxFee}, nil

	case LegacyTxType:
		price := cloneU256(policy.LegacyGasPrice)
		if price.Lt(ceiling) {
			price = ceiling.Clone()
		}
		tip := new(uint256.Int).Sub(price, ceiling)
		return FeeParameters{txType: LegacyTxType, baseFeeCeiling: ceiling, priorityFee: tip, maxFeePerGas: price}, nil

	default:
		return FeeParameters{}, invalidInput("unsupported tx type %s", policy.Type)
	}
}
