package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies rejected commands. Rejections never mutate state;
// the caller decides whether a retry makes sense (Slippage: yes with a
// looser bound, Arithmetic/Integrity: no).
type ErrorKind int32

const (
	KindPolicy ErrorKind = iota
	KindSlippage
	KindArithmetic
	KindAuthorization
	KindOracle
	KindIntegrity
)

func (k ErrorKind) String() string {
	switch k {
	case KindPolicy:
		return "policy"
	case KindSlippage:
		return "slippage"
	case KindArithmetic:
		return "arithmetic"
	case KindAuthorization:
		return "authorization"
	case KindOracle:
		return "oracle"
	case KindIntegrity:
		return "integrity"
	default:
		return "unknown"
	}
}

// Error is a discriminated settlement error. Code is stable across
// releases and is what clients should match on; Kind groups codes for
// metrics and retry decisions.
type Error struct {
	Kind ErrorKind
	Code string
	msg  string
}

func (e *Error) Error() string {
	if e.msg == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Code, e.msg)
}

// Is matches on Code, so errors.Is(err, ErrBelowMinBet) works across
// wrapped instances carrying different detail messages.
func (e *Error) Is(target error) bool {
	var de *Error
	if !errors.As(target, &de) {
		return false
	}
	return e.Code == de.Code
}

func newErr(kind ErrorKind, code string) *Error {
	return &Error{Kind: kind, Code: code}
}

// Errorf attaches a detail message to a base error, preserving Code
// identity for errors.Is.
func Errorf(base *Error, format string, args ...interface{}) *Error {
	return &Error{Kind: base.Kind, Code: base.Code, msg: fmt.Sprintf(format, args...)}
}

// Policy
var (
	ErrPlatformPaused     = newErr(KindPolicy, "PlatformPaused")
	ErrMarketNotActive    = newErr(KindPolicy, "MarketNotActive")
	ErrMarketNotResolved  = newErr(KindPolicy, "MarketNotResolved")
	ErrMarketNotCloseable = newErr(KindPolicy, "MarketNotCloseable")
	ErrBettingClosed      = newErr(KindPolicy, "BettingClosed")
	ErrBelowMinBet        = newErr(KindPolicy, "BelowMinBet")
	ErrAboveMaxBet        = newErr(KindPolicy, "AboveMaxBet")
	ErrBetTooSmall        = newErr(KindPolicy, "BetTooSmall") // fee rounds net to zero
	ErrAlreadyResolved    = newErr(KindPolicy, "AlreadyResolved")
	ErrAlreadyClaimed     = newErr(KindPolicy, "AlreadyClaimed")
	ErrNoPosition         = newErr(KindPolicy, "NoPosition")
	ErrDisputeExists      = newErr(KindPolicy, "DisputeExists")
	ErrDisputeNotOpen     = newErr(KindPolicy, "DisputeNotOpen")
	ErrTitleTooLong       = newErr(KindPolicy, "TitleTooLong")
	ErrDescriptionTooLong = newErr(KindPolicy, "DescriptionTooLong")
	ErrReasonTooLong      = newErr(KindPolicy, "ReasonTooLong")
	ErrInvalidTimestamps  = newErr(KindPolicy, "InvalidTimestamps")
	ErrFeeExceedsMax      = newErr(KindPolicy, "FeeExceedsMax")
	ErrInvalidLiquidity   = newErr(KindPolicy, "InvalidLiquidity")
	ErrOutstandingShares  = newErr(KindPolicy, "OutstandingShares")
	ErrVaultNotEmpty      = newErr(KindPolicy, "VaultNotEmpty")
	ErrMarketExists       = newErr(KindPolicy, "MarketExists")
	ErrMarketNotFound     = newErr(KindPolicy, "MarketNotFound")
)

// Slippage
var ErrSlippageExceeded = newErr(KindSlippage, "SlippageExceeded")

// Arithmetic
var (
	ErrMathOverflow      = newErr(KindArithmetic, "MathOverflow")
	ErrZeroShares        = newErr(KindArithmetic, "ZeroShares")
	ErrZeroRefund        = newErr(KindArithmetic, "ZeroRefund")
	ErrZeroPayout        = newErr(KindArithmetic, "ZeroPayout")
	ErrInsufficientVault = newErr(KindArithmetic, "InsufficientVault")
)

// Authorization
var ErrUnauthorized = newErr(KindAuthorization, "Unauthorized")

// Oracle
var (
	ErrOracleMismatch    = newErr(KindOracle, "OracleMismatch")
	ErrOracleStale       = newErr(KindOracle, "OracleStale")
	ErrOracleUnsupported = newErr(KindOracle, "OracleUnsupported")
	ErrRoundIncomplete   = newErr(KindOracle, "RoundIncomplete")
	ErrInvalidOutcome    = newErr(KindOracle, "InvalidOutcome")
)

// Integrity
var (
	ErrInvalidMint        = newErr(KindIntegrity, "InvalidMint")
	ErrInsufficientShares = newErr(KindIntegrity, "InsufficientShares")
	ErrInsufficientFunds  = newErr(KindIntegrity, "InsufficientFunds")
)

// KindOf extracts the ErrorKind from any error in the chain.
// Unclassified errors report KindIntegrity so callers never treat an
// unknown failure as retryable.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindIntegrity
}

// CodeOf extracts the stable error code, or "Internal" for
// unclassified errors.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return "Internal"
}
