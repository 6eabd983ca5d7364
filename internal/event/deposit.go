package event

import (
	"time"

	"github.com/google/uuid"
)

// Deposit credits a user's collateral from the custody boundary.
// Custody has already settled the transfer; this records it.
type Deposit struct {
	CommandID  uuid.UUID
	UserID     uuid.UUID
	Amount     int64
	CommandSeq int64
	Timestamp  time.Time
}

func (c *Deposit) IdempotencyKey() string {
	return c.CommandID.String()
}

func (c *Deposit) EventType() EventType {
	return EventTypeDeposit
}

func (c *Deposit) MarketID() *string {
	return nil
}

func (c *Deposit) SourceSequence() int64 {
	return c.CommandSeq
}

func (c *Deposit) EventTimestamp() time.Time {
	return c.Timestamp
}
