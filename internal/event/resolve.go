package event

import (
	"time"

	"github.com/google/uuid"

	"PredictLedger/internal/state"
)

// ResolveMarket determines a market's outcome. Exactly one input set
// applies depending on the market's oracle source: Outcome for
// ManualAdmin, the feed fields for Pyth.
type ResolveMarket struct {
	CommandID uuid.UUID
	Caller    uuid.UUID
	Market    uuid.UUID

	// ManualAdmin input
	Outcome *state.Outcome

	// External feed input
	FeedID      string
	Price       int64
	PublishTime int64 // unix seconds

	CommandSeq int64
	Timestamp  time.Time
}

func (c *ResolveMarket) IdempotencyKey() string {
	return c.CommandID.String()
}

func (c *ResolveMarket) EventType() EventType {
	return EventTypeMarketResolve
}

func (c *ResolveMarket) MarketID() *string {
	m := c.Market.String()
	return &m
}

func (c *ResolveMarket) SourceSequence() int64 {
	return c.CommandSeq
}

func (c *ResolveMarket) EventTimestamp() time.Time {
	return c.Timestamp
}
