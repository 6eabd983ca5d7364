package event

import (
	"time"

	"github.com/google/uuid"

	"PredictLedger/internal/state"
)

// CreateMarket seeds a new market's CPMM pool.
type CreateMarket struct {
	CommandID uuid.UUID
	Creator   uuid.UUID
	Market    uuid.UUID // client-assigned so shares/accounts can be pre-derived

	Title       string
	Description string
	Category    string

	OracleSource    state.OracleSource
	OracleFeed      string
	OracleThreshold int64

	StartTimestamp int64
	LockTimestamp  int64
	EndTimestamp   int64

	MinBet int64
	MaxBet int64

	IsRecurring   bool
	RoundDuration *int64

	FeeBps           int32 // 0 = platform default
	InitialLiquidity int64

	CommandSeq int64
	Timestamp  time.Time
}

func (c *CreateMarket) IdempotencyKey() string {
	return c.CommandID.String()
}

func (c *CreateMarket) EventType() EventType {
	return EventTypeMarketCreate
}

func (c *CreateMarket) MarketID() *string {
	m := c.Market.String()
	return &m
}

func (c *CreateMarket) SourceSequence() int64 {
	return c.CommandSeq
}

func (c *CreateMarket) EventTimestamp() time.Time {
	return c.Timestamp
}

// PauseMarket freezes a market (admin only).
type PauseMarket struct {
	CommandID  uuid.UUID
	Caller     uuid.UUID
	Market     uuid.UUID
	CommandSeq int64
	Timestamp  time.Time
}

func (c *PauseMarket) IdempotencyKey() string {
	return c.CommandID.String()
}

func (c *PauseMarket) EventType() EventType {
	return EventTypeMarketPause
}

func (c *PauseMarket) MarketID() *string {
	m := c.Market.String()
	return &m
}

func (c *PauseMarket) SourceSequence() int64 {
	return c.CommandSeq
}

func (c *PauseMarket) EventTimestamp() time.Time {
	return c.Timestamp
}

// UnpauseMarket reactivates a paused market; the new status is
// recomputed from timestamps and resolution state.
type UnpauseMarket struct {
	CommandID  uuid.UUID
	Caller     uuid.UUID
	Market     uuid.UUID
	CommandSeq int64
	Timestamp  time.Time
}

func (c *UnpauseMarket) IdempotencyKey() string {
	return c.CommandID.String()
}

func (c *UnpauseMarket) EventType() EventType {
	return EventTypeMarketUnpause
}

func (c *UnpauseMarket) MarketID() *string {
	m := c.Market.String()
	return &m
}

func (c *UnpauseMarket) SourceSequence() int64 {
	return c.CommandSeq
}

func (c *UnpauseMarket) EventTimestamp() time.Time {
	return c.Timestamp
}

// CancelMarket voids an unresolved market (admin only). Positions
// settle as Invalid: claims run against combined supply.
type CancelMarket struct {
	CommandID  uuid.UUID
	Caller     uuid.UUID
	Market     uuid.UUID
	CommandSeq int64
	Timestamp  time.Time
}

func (c *CancelMarket) IdempotencyKey() string {
	return c.CommandID.String()
}

func (c *CancelMarket) EventType() EventType {
	return EventTypeMarketCancel
}

func (c *CancelMarket) MarketID() *string {
	m := c.Market.String()
	return &m
}

func (c *CancelMarket) SourceSequence() int64 {
	return c.CommandSeq
}

func (c *CancelMarket) EventTimestamp() time.Time {
	return c.Timestamp
}

// CloseMarket removes a fully settled market: zero outstanding shares,
// residual vault dust swept to the treasury.
type CloseMarket struct {
	CommandID  uuid.UUID
	Caller     uuid.UUID
	Market     uuid.UUID
	CommandSeq int64
	Timestamp  time.Time
}

func (c *CloseMarket) IdempotencyKey() string {
	return c.CommandID.String()
}

func (c *CloseMarket) EventType() EventType {
	return EventTypeMarketClose
}

func (c *CloseMarket) MarketID() *string {
	m := c.Market.String()
	return &m
}

func (c *CloseMarket) SourceSequence() int64 {
	return c.CommandSeq
}

func (c *CloseMarket) EventTimestamp() time.Time {
	return c.Timestamp
}
