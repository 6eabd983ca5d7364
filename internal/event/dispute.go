package event

import (
	"time"

	"github.com/google/uuid"

	"PredictLedger/internal/state"
)

// OpenDispute contests a resolved market, posting the platform bond.
type OpenDispute struct {
	CommandID  uuid.UUID
	Disputer   uuid.UUID
	Market     uuid.UUID
	Reason     string // <= 256 chars
	CommandSeq int64
	Timestamp  time.Time
}

func (c *OpenDispute) IdempotencyKey() string {
	return c.CommandID.String()
}

func (c *OpenDispute) EventType() EventType {
	return EventTypeDisputeOpen
}

func (c *OpenDispute) MarketID() *string {
	m := c.Market.String()
	return &m
}

func (c *OpenDispute) SourceSequence() int64 {
	return c.CommandSeq
}

func (c *OpenDispute) EventTimestamp() time.Time {
	return c.Timestamp
}

// SettleDispute finalizes a dispute (admin only). A non-nil Outcome
// upholds the dispute and overwrites the resolution; nil rejects it
// and the original outcome stands.
type SettleDispute struct {
	CommandID  uuid.UUID
	Caller     uuid.UUID
	Market     uuid.UUID
	Outcome    *state.Outcome
	CommandSeq int64
	Timestamp  time.Time
}

func (c *SettleDispute) IdempotencyKey() string {
	return c.CommandID.String()
}

func (c *SettleDispute) EventType() EventType {
	return EventTypeDisputeSettle
}

func (c *SettleDispute) MarketID() *string {
	m := c.Market.String()
	return &m
}

func (c *SettleDispute) SourceSequence() int64 {
	return c.CommandSeq
}

func (c *SettleDispute) EventTimestamp() time.Time {
	return c.Timestamp
}
