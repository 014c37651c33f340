package bundlecore

import (
	"math/big"

	"github.com/holiman/uint256"
)

var (
	gwei  = uint256.NewInt(1_000_000_000)
	ether = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

// Gwei converts a whole gwei amount to wei.
func Gwei(g uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(g), gwei)
}

// FmtGwei renders wei as gwei with two decimals.
func FmtGwei(x *uint256.Int) string {
	if x == nil {
		return "0"
	}
	r := new(big.Rat).SetFrac(x.ToBig(), gwei.ToBig())
	return r.FloatString(2)
}

// FmtETH renders wei as ether with six decimals.
func FmtETH(x *big.Int) string {
	if x == nil {
		return "0"
	}
	r := new(big.Rat).SetFrac(new(big.Int).Set(x), ether)
	return r.FloatString(6)
}

func cloneU256(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return x.Clone()
}

func cloneBig(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}
