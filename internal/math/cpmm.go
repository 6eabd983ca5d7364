package math

import (
	"math/big"

	"PredictLedger/internal/domain"
)

// FeeCeil computes ceil(amount * feeBps / 10_000).
// Ceiling rounding: a sub-unit bet still pays at least one unit of fee,
// so fees cannot be evaded by splitting a bet into dust.
func FeeCeil(amount int64, feeBps int32) int64 {
	if amount <= 0 || feeBps <= 0 {
		return 0
	}
	num := MultiplyInt128(amount, int64(feeBps))
	return DivideInt128(num, BpsDenominator, RoundUp)
}

// SwapResult carries the post-trade pool state.
type SwapResult struct {
	NewYesReserve int64
	NewNoReserve  int64
	// SharesOut for a buy; RawRefund for a sell.
	SharesOut int64
	RawRefund int64
}

// BuyShares prices a bet of netAmount collateral against the pool.
// k = yes * no is held constant: the opposite-side reserve absorbs the
// collateral, the bought-side reserve shrinks by the shares issued
// (floor division, so k can only grow by the truncated remainder).
func BuyShares(yesReserve, noReserve int64, buyYes bool, netAmount int64) (SwapResult, error) {
	if yesReserve <= 0 || noReserve <= 0 {
		return SwapResult{}, domain.Errorf(domain.ErrInvalidLiquidity,
			"reserves %d/%d", yesReserve, noReserve)
	}
	if netAmount <= 0 {
		return SwapResult{}, domain.ErrBetTooSmall
	}

	k := MultiplyInt128(yesReserve, noReserve)

	if buyYes {
		newNo := noReserve + netAmount
		if newNo < noReserve {
			putInt128(k)
			return SwapResult{}, domain.ErrMathOverflow
		}
		newYes := DivideInt128(k, newNo, RoundDown)
		shares := yesReserve - newYes
		if shares <= 0 {
			return SwapResult{}, domain.ErrZeroShares
		}
		return SwapResult{NewYesReserve: newYes, NewNoReserve: newNo, SharesOut: shares}, nil
	}

	newYes := yesReserve + netAmount
	if newYes < yesReserve {
		putInt128(k)
		return SwapResult{}, domain.ErrMathOverflow
	}
	newNo := DivideInt128(k, newYes, RoundDown)
	shares := noReserve - newNo
	if shares <= 0 {
		return SwapResult{}, domain.ErrZeroShares
	}
	return SwapResult{NewYesReserve: newYes, NewNoReserve: newNo, SharesOut: shares}, nil
}

// SellShares is the inverse trade: sharesIn of one side return to the
// pool, the opposite reserve is recomputed from k, and its decrease is
// the raw collateral refund (before exit fee).
func SellShares(yesReserve, noReserve int64, sellYes bool, sharesIn int64) (SwapResult, error) {
	if yesReserve <= 0 || noReserve <= 0 {
		return SwapResult{}, domain.Errorf(domain.ErrInvalidLiquidity,
			"reserves %d/%d", yesReserve, noReserve)
	}
	if sharesIn <= 0 {
		return SwapResult{}, domain.ErrInsufficientShares
	}

	k := MultiplyInt128(yesReserve, noReserve)

	if sellYes {
		newYes := yesReserve + sharesIn
		if newYes < yesReserve {
			putInt128(k)
			return SwapResult{}, domain.ErrMathOverflow
		}
		newNo := DivideInt128(k, newYes, RoundDown)
		refund := noReserve - newNo
		if refund <= 0 {
			return SwapResult{}, domain.ErrZeroRefund
		}
		return SwapResult{NewYesReserve: newYes, NewNoReserve: newNo, RawRefund: refund}, nil
	}

	newNo := noReserve + sharesIn
	if newNo < noReserve {
		putInt128(k)
		return SwapResult{}, domain.ErrMathOverflow
	}
	newYes := DivideInt128(k, newNo, RoundDown)
	refund := yesReserve - newYes
	if refund <= 0 {
		return SwapResult{}, domain.ErrZeroRefund
	}
	return SwapResult{NewYesReserve: newYes, NewNoReserve: newNo, RawRefund: refund}, nil
}

// ComputePayout returns floor(shares * totalCollateral / winningSupply),
// capped at vaultBalance so the last claimant absorbs cumulative
// rounding shortfall instead of overdrawing the vault.
func ComputePayout(shares, totalCollateral, winningSupply, vaultBalance int64) (int64, error) {
	if shares <= 0 {
		return 0, domain.ErrNoPosition
	}
	if winningSupply <= 0 {
		return 0, domain.Errorf(domain.ErrZeroPayout, "winning supply is zero")
	}

	num := MultiplyInt128(shares, totalCollateral)
	payout := DivideInt128(num, winningSupply, RoundDown)

	if payout > vaultBalance {
		payout = vaultBalance
	}
	if payout <= 0 {
		return 0, domain.ErrZeroPayout
	}
	return payout, nil
}

// KProduct returns yes * no as a big.Int for invariant checks in tests
// and post-trade validation.
func KProduct(yesReserve, noReserve int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(yesReserve), big.NewInt(noReserve))
}
