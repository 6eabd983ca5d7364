package state

import (
	"github.com/google/uuid"
)

// Position tracks a user's exposure in one market. Created lazily on
// first bet, retained forever for audit even after full exit.
type Position struct {
	UserID   uuid.UUID
	MarketID uuid.UUID

	YesShares int64 // never below zero
	NoShares  int64

	// Net principal at risk. Reduced on cancellation (saturating: fees
	// and price impact mean refund != original deposit, so this is an
	// accounting figure, not a funds-moving one).
	TotalDeposited int64

	// Monotone. Nonzero means the one-shot payout has been taken.
	TotalClaimed int64

	LastBetTimestamp int64

	Version int64 // Optimistic concurrency control
}

// SharesFor returns the holding on one side.
func (p *Position) SharesFor(o Outcome) int64 {
	if o == OutcomeYes {
		return p.YesShares
	}
	return p.NoShares
}

// AddShares increments one side's holding.
func (p *Position) AddShares(o Outcome, amount int64) {
	if o == OutcomeYes {
		p.YesShares += amount
	} else {
		p.NoShares += amount
	}
}

// RemoveShares decrements one side's holding. Caller must have
// validated sufficiency; this never drives a holding negative.
func (p *Position) RemoveShares(o Outcome, amount int64) bool {
	if o == OutcomeYes {
		if p.YesShares < amount {
			return false
		}
		p.YesShares -= amount
		return true
	}
	if p.NoShares < amount {
		return false
	}
	p.NoShares -= amount
	return true
}

// ReduceDeposited lowers the at-risk principal, saturating at zero.
func (p *Position) ReduceDeposited(amount int64) {
	if amount >= p.TotalDeposited {
		p.TotalDeposited = 0
		return
	}
	p.TotalDeposited -= amount
}

// HasClaimed reports whether the one-shot payout already happened.
func (p *Position) HasClaimed() bool {
	return p.TotalClaimed != 0
}

// IsFlat returns true if the position has no exposure
func (p *Position) IsFlat() bool {
	return p.YesShares == 0 && p.NoShares == 0
}

// CanonicalBytes returns deterministic serialization for hashing
func (p *Position) CanonicalBytes() []byte {
	buf := make([]byte, 0, 80)

	// user_id + market_id (16 bytes UUID binary each)
	buf = append(buf, p.UserID[:]...)
	buf = append(buf, p.MarketID[:]...)

	buf = appendInt64LE(buf, p.YesShares)
	buf = appendInt64LE(buf, p.NoShares)
	buf = appendInt64LE(buf, p.TotalDeposited)
	buf = appendInt64LE(buf, p.TotalClaimed)
	buf = appendInt64LE(buf, p.LastBetTimestamp)

	return buf
}
