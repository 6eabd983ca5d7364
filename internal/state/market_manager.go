package state

import (
	"sort"

	"github.com/google/uuid"
)

// MarketManager owns all in-memory market records.
// Not thread-safe — only accessed from the single-threaded core.
type MarketManager struct {
	markets map[uuid.UUID]*Market
}

func NewMarketManager() *MarketManager {
	return &MarketManager{
		markets: make(map[uuid.UUID]*Market),
	}
}

// GetMarket returns existing market or nil
func (mm *MarketManager) GetMarket(marketID uuid.UUID) *Market {
	return mm.markets[marketID]
}

// AddMarket registers a newly created market. Returns false if the ID
// is already taken.
func (mm *MarketManager) AddMarket(m *Market) bool {
	if _, exists := mm.markets[m.MarketID]; exists {
		return false
	}
	mm.markets[m.MarketID] = m
	return true
}

// RemoveMarket drops a closed market record.
func (mm *MarketManager) RemoveMarket(marketID uuid.UUID) {
	delete(mm.markets, marketID)
}

// GetAllMarkets returns all markets sorted by ID for deterministic
// iteration (state digests, snapshots).
func (mm *MarketManager) GetAllMarkets() []*Market {
	result := make([]*Market, 0, len(mm.markets))
	for _, m := range mm.markets {
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].MarketID.String() < result[j].MarketID.String()
	})
	return result
}

// SetMarket restores a market record (snapshot recovery path).
func (mm *MarketManager) SetMarket(m *Market) {
	mm.markets[m.MarketID] = m
}

// Count returns the number of live markets.
func (mm *MarketManager) Count() int {
	return len(mm.markets)
}
