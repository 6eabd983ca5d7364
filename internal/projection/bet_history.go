package projection

import (
	"sync"

	"github.com/google/uuid"

	"PredictLedger/internal/core"
	"PredictLedger/internal/event"
	"PredictLedger/internal/ledger"
)

// BetHistoryEntry is one settlement action on a market position.
type BetHistoryEntry struct {
	Sequence  int64   `json:"sequence"`
	UserID    string  `json:"user_id"`
	MarketID  string  `json:"market_id"`
	Action    string  `json:"action"` // BetPlace, BetCancel, PayoutClaim
	Amount    int64   `json:"amount"` // collateral moved through the vault
	Fee       int64   `json:"fee"`
	YesShares *int64  `json:"yes_shares,omitempty"`
	NoShares  *int64  `json:"no_shares,omitempty"`
	Timestamp int64   `json:"timestamp"`
}

// BetHistoryProjection maintains a bounded in-memory activity feed for
// the query service. Durable history lives in the journal table.
type BetHistoryProjection struct {
	mu      sync.RWMutex
	entries []BetHistoryEntry
	maxLen  int
}

func NewBetHistoryProjection() *BetHistoryProjection {
	return &BetHistoryProjection{
		entries: make([]BetHistoryEntry, 0, 1024),
		maxLen:  100_000,
	}
}

// Record derives a feed entry from an applied event's journals.
func (p *BetHistoryProjection) Record(output core.CoreOutput) {
	env := output.Envelope
	switch env.EventType {
	case event.EventTypeBetPlace, event.EventTypeBetCancel, event.EventTypePayoutClaim:
	default:
		return
	}
	if output.Batch == nil || output.Position == nil || env.MarketID == nil {
		return
	}

	entry := BetHistoryEntry{
		Sequence:  env.Sequence,
		UserID:    output.Position.UserID.String(),
		MarketID:  *env.MarketID,
		Action:    env.EventType.String(),
		Timestamp: env.Timestamp.Unix(),
	}

	for _, j := range output.Batch.Journals {
		switch j.JournalType {
		case ledger.JournalTypeBetDeposit, ledger.JournalTypeCancelRefund, ledger.JournalTypePayout:
			entry.Amount += j.Amount
		case ledger.JournalTypeBetFee, ledger.JournalTypeCancelFee:
			entry.Fee += j.Amount
		}
	}

	yes := output.Position.YesShares
	no := output.Position.NoShares
	entry.YesShares = &yes
	entry.NoShares = &no

	p.mu.Lock()
	p.entries = append(p.entries, entry)
	if len(p.entries) > p.maxLen {
		p.entries = p.entries[len(p.entries)-p.maxLen:]
	}
	p.mu.Unlock()
}

// QueryByUser returns the most recent entries for a user, newest first.
func (p *BetHistoryProjection) QueryByUser(userID uuid.UUID, limit int) []BetHistoryEntry {
	uid := userID.String()
	result := make([]BetHistoryEntry, 0)

	p.mu.RLock()
	defer p.mu.RUnlock()
	for i := len(p.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if p.entries[i].UserID == uid {
			result = append(result, p.entries[i])
		}
	}
	return result
}

// QueryByMarket returns the most recent entries for a market, newest first.
func (p *BetHistoryProjection) QueryByMarket(marketID uuid.UUID, limit int) []BetHistoryEntry {
	mid := marketID.String()
	result := make([]BetHistoryEntry, 0)

	p.mu.RLock()
	defer p.mu.RUnlock()
	for i := len(p.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if p.entries[i].MarketID == mid {
			result = append(result, p.entries[i])
		}
	}
	return result
}
