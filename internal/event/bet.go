package event

import (
	"time"

	"github.com/google/uuid"

	"PredictLedger/internal/state"
)

// PlaceBet buys outcome shares with collateral.
// Idempotency key: command_id (UUID from the submitting client).
type PlaceBet struct {
	CommandID    uuid.UUID // Idempotency key
	UserID       uuid.UUID
	Market       uuid.UUID
	Outcome      state.Outcome // Yes or No
	Amount       int64         // gross collateral, fee included
	MinSharesOut int64         // slippage bound
	CommandSeq   int64         // Source sequence from submitter
	Timestamp    time.Time     // Versioned input timestamp (NOT wall-clock)
}

func (c *PlaceBet) IdempotencyKey() string {
	return c.CommandID.String()
}

func (c *PlaceBet) EventType() EventType {
	return EventTypeBetPlace
}

func (c *PlaceBet) MarketID() *string {
	m := c.Market.String()
	return &m
}

func (c *PlaceBet) SourceSequence() int64 {
	return c.CommandSeq
}

func (c *PlaceBet) EventTimestamp() time.Time {
	return c.Timestamp
}

// CancelBet exits a position while betting is still open. The outcome
// side is inferred from Mint, never trusted from the caller.
type CancelBet struct {
	CommandID    uuid.UUID
	UserID       uuid.UUID
	Market       uuid.UUID
	Mint         uuid.UUID // share class being burned
	SharesToBurn int64
	CommandSeq   int64
	Timestamp    time.Time
}

func (c *CancelBet) IdempotencyKey() string {
	return c.CommandID.String()
}

func (c *CancelBet) EventType() EventType {
	return EventTypeBetCancel
}

func (c *CancelBet) MarketID() *string {
	m := c.Market.String()
	return &m
}

func (c *CancelBet) SourceSequence() int64 {
	return c.CommandSeq
}

func (c *CancelBet) EventTimestamp() time.Time {
	return c.Timestamp
}

// ClaimPayout redeems a resolved position pro-rata, once.
type ClaimPayout struct {
	CommandID  uuid.UUID
	UserID     uuid.UUID
	Market     uuid.UUID
	CommandSeq int64
	Timestamp  time.Time
}

func (c *ClaimPayout) IdempotencyKey() string {
	return c.CommandID.String()
}

func (c *ClaimPayout) EventType() EventType {
	return EventTypePayoutClaim
}

func (c *ClaimPayout) MarketID() *string {
	m := c.Market.String()
	return &m
}

func (c *ClaimPayout) SourceSequence() int64 {
	return c.CommandSeq
}

func (c *ClaimPayout) EventTimestamp() time.Time {
	return c.Timestamp
}
