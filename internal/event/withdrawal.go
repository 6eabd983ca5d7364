package event

import (
	"time"

	"github.com/google/uuid"
)

// Withdrawal debits a user's collateral back to the custody boundary.
// Rejected when the available balance cannot fund it.
type Withdrawal struct {
	CommandID  uuid.UUID
	UserID     uuid.UUID
	Amount     int64
	CommandSeq int64
	Timestamp  time.Time
}

func (c *Withdrawal) IdempotencyKey() string {
	return c.CommandID.String()
}

func (c *Withdrawal) EventType() EventType {
	return EventTypeWithdrawal
}

func (c *Withdrawal) MarketID() *string {
	return nil
}

func (c *Withdrawal) SourceSequence() int64 {
	return c.CommandSeq
}

func (c *Withdrawal) EventTimestamp() time.Time {
	return c.Timestamp
}
