package math

import (
	"math/big"
	"sync"
)

// BpsDenominator is the basis-point scale used for all fee math.
const BpsDenominator = 10_000

// MaxFeeBps caps market fees at 10%.
const MaxFeeBps = 1_000

// Int128 is a pooled big.Int for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// MultiplyInt128 performs a * b using int128 to prevent overflow
func MultiplyInt128(a, b int64) *big.Int {
	result := getInt128()
	result.Mul(big.NewInt(a), big.NewInt(b))
	return result
}

type RoundingMode int

const (
	RoundDown RoundingMode = iota // floor (default for swaps and payouts)
	RoundUp                       // ceiling (fees)
)

// DivideInt128 performs numerator / denominator with the given rounding.
// The numerator is consumed (returned to the pool).
func DivideInt128(numerator *big.Int, denominator int64, mode RoundingMode) int64 {
	denom := big.NewInt(denominator)
	quotient := getInt128()
	remainder := getInt128()

	quotient.DivMod(numerator, denom, remainder)

	result := quotient.Int64()

	if mode == RoundUp && remainder.Sign() != 0 {
		result++
	}

	putInt128(quotient)
	putInt128(remainder)
	putInt128(numerator)

	return result
}
