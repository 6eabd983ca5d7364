package state

import (
	"github.com/google/uuid"

	"PredictLedger/internal/domain"
)

// Outcome is a resolved market result
type Outcome int32

const (
	OutcomeYes Outcome = iota
	OutcomeNo
	OutcomeInvalid
)

func (o Outcome) String() string {
	switch o {
	case OutcomeYes:
		return "Yes"
	case OutcomeNo:
		return "No"
	case OutcomeInvalid:
		return "Invalid"
	default:
		return "Unknown"
	}
}

// OracleSource selects the resolution strategy for a market
type OracleSource int32

const (
	OracleManualAdmin OracleSource = iota
	OraclePyth
	OracleSwitchboard
)

func (s OracleSource) String() string {
	switch s {
	case OracleManualAdmin:
		return "ManualAdmin"
	case OraclePyth:
		return "Pyth"
	case OracleSwitchboard:
		return "Switchboard"
	default:
		return "Unknown"
	}
}

// MarketStatus is the lifecycle state of a market
type MarketStatus int32

const (
	StatusPending MarketStatus = iota
	StatusActive
	StatusLocked
	StatusResolving
	StatusResolved
	StatusDisputed
	StatusCancelled
	StatusPaused
)

func (s MarketStatus) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusActive:
		return "Active"
	case StatusLocked:
		return "Locked"
	case StatusResolving:
		return "Resolving"
	case StatusResolved:
		return "Resolved"
	case StatusDisputed:
		return "Disputed"
	case StatusCancelled:
		return "Cancelled"
	case StatusPaused:
		return "Paused"
	default:
		return "Unknown"
	}
}

const (
	MaxTitleLen       = 128
	MaxDescriptionLen = 512
	MaxReasonLen      = 256
)

// Market is one prediction question with its CPMM pool state.
// YesReserve/NoReserve are pricing pool values, NOT outstanding share
// supply — supply lives in the ShareIssuer.
type Market struct {
	MarketID uuid.UUID
	Creator  uuid.UUID

	Title       string
	Description string
	Category    string

	Status MarketStatus

	YesReserve      int64
	NoReserve       int64
	TotalCollateral int64

	FeeBps int32

	StartTimestamp int64 // unix seconds
	LockTimestamp  int64
	EndTimestamp   int64

	OracleSource    OracleSource
	OracleFeed      string
	OracleThreshold int64

	ResolvedOutcome *Outcome
	ResolutionPrice *int64
	ResolvedAt      *int64

	MinBet int64
	MaxBet int64 // 0 = unlimited

	IsRecurring   bool
	RoundDuration *int64
	CurrentRound  int64

	// Share class identifiers (one mint per outcome side)
	YesMint uuid.UUID
	NoMint  uuid.UUID

	Version int64 // Optimistic concurrency control
}

// RecomputeStatus is the single source of truth for reactivating a
// paused market. Status has no stored previous value; it is rederived
// from resolution state and the timestamp ladder, in priority order.
// Pure function of its inputs, idempotent.
func (m *Market) RecomputeStatus(now int64) MarketStatus {
	if m.ResolvedOutcome != nil {
		return StatusResolved
	}
	if now >= m.EndTimestamp || now >= m.LockTimestamp {
		return StatusLocked
	}
	if now >= m.StartTimestamp {
		return StatusActive
	}
	return StatusPending
}

// BettingOpen reports whether bets and cancels are accepted.
func (m *Market) BettingOpen(now int64) bool {
	return m.Status == StatusActive && now < m.LockTimestamp
}

// CanPause reports whether the market may transition to Paused.
func (m *Market) CanPause() bool {
	switch m.Status {
	case StatusPending, StatusActive, StatusLocked:
		return true
	}
	return false
}

// CanResolve reports whether resolution may be attempted.
func (m *Market) CanResolve() bool {
	return m.Status == StatusActive || m.Status == StatusLocked
}

// OutcomeForMint infers the outcome side from a share mint ID.
// A mint belonging to neither class is an integrity failure caught
// before any transfer is attempted.
func (m *Market) OutcomeForMint(mint uuid.UUID) (Outcome, error) {
	switch mint {
	case m.YesMint:
		return OutcomeYes, nil
	case m.NoMint:
		return OutcomeNo, nil
	}
	return OutcomeYes, domain.Errorf(domain.ErrInvalidMint,
		"mint %s belongs to neither side of market %s", mint, m.MarketID)
}

// MintForOutcome returns the share class for a bet side.
func (m *Market) MintForOutcome(o Outcome) uuid.UUID {
	if o == OutcomeYes {
		return m.YesMint
	}
	return m.NoMint
}

// CanonicalBytes returns deterministic serialization for hashing
func (m *Market) CanonicalBytes() []byte {
	buf := make([]byte, 0, 192)

	// market_id (16 bytes UUID binary)
	buf = append(buf, m.MarketID[:]...)

	// status (1 byte)
	buf = append(buf, byte(m.Status))

	// reserves + collateral (8 bytes LE each)
	buf = appendInt64LE(buf, m.YesReserve)
	buf = appendInt64LE(buf, m.NoReserve)
	buf = appendInt64LE(buf, m.TotalCollateral)

	// fee (4 bytes LE)
	buf = append(buf,
		byte(m.FeeBps),
		byte(m.FeeBps>>8),
		byte(m.FeeBps>>16),
		byte(m.FeeBps>>24),
	)

	// timestamps
	buf = appendInt64LE(buf, m.StartTimestamp)
	buf = appendInt64LE(buf, m.LockTimestamp)
	buf = appendInt64LE(buf, m.EndTimestamp)

	// resolution (presence byte + values)
	if m.ResolvedOutcome != nil {
		buf = append(buf, 1, byte(*m.ResolvedOutcome))
	} else {
		buf = append(buf, 0)
	}
	if m.ResolutionPrice != nil {
		buf = append(buf, 1)
		buf = appendInt64LE(buf, *m.ResolutionPrice)
	} else {
		buf = append(buf, 0)
	}
	if m.ResolvedAt != nil {
		buf = append(buf, 1)
		buf = appendInt64LE(buf, *m.ResolvedAt)
	} else {
		buf = append(buf, 0)
	}

	// round counter
	buf = appendInt64LE(buf, m.CurrentRound)

	return buf
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}
