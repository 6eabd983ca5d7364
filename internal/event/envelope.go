package event

import (
	"time"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeDeposit
	EventTypeWithdrawal
	EventTypeMarketCreate
	EventTypeBetPlace
	EventTypeBetCancel
	EventTypeMarketResolve
	EventTypePayoutClaim
	EventTypeDisputeOpen
	EventTypeDisputeSettle
	EventTypeMarketPause
	EventTypeMarketUnpause
	EventTypeMarketCancel
	EventTypeMarketClose
	EventTypePlatformPause
	EventTypePlatformUnpause
	EventTypePlatformUpdate
)

// EventEnvelope wraps every applied command in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Market context (nullable for global events)
	MarketID *string

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Upstream sequence for ordering validation
	SourceSequence int64

	// JSON-encoded command payload
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all command payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// MarketID returns the market context (nil for global events)
	MarketID() *string

	// SourceSequence returns upstream ordering key
	SourceSequence() int64

	// EventTimestamp returns the versioned input timestamp
	EventTimestamp() time.Time
}

func (et EventType) String() string {
	switch et {
	case EventTypeDeposit:
		return "Deposit"
	case EventTypeWithdrawal:
		return "Withdrawal"
	case EventTypeMarketCreate:
		return "MarketCreate"
	case EventTypeBetPlace:
		return "BetPlace"
	case EventTypeBetCancel:
		return "BetCancel"
	case EventTypeMarketResolve:
		return "MarketResolve"
	case EventTypePayoutClaim:
		return "PayoutClaim"
	case EventTypeDisputeOpen:
		return "DisputeOpen"
	case EventTypeDisputeSettle:
		return "DisputeSettle"
	case EventTypeMarketPause:
		return "MarketPause"
	case EventTypeMarketUnpause:
		return "MarketUnpause"
	case EventTypeMarketCancel:
		return "MarketCancel"
	case EventTypeMarketClose:
		return "MarketClose"
	case EventTypePlatformPause:
		return "PlatformPause"
	case EventTypePlatformUnpause:
		return "PlatformUnpause"
	case EventTypePlatformUpdate:
		return "PlatformUpdate"
	default:
		return "Unknown"
	}
}
