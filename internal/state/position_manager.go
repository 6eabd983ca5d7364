package state

import (
	"sort"

	"github.com/google/uuid"
)

// PositionManager manages per-(market, user) position records.
// Not thread-safe — only accessed from the single-threaded core.
type PositionManager struct {
	positions map[PositionKey]*Position
}

type PositionKey struct {
	UserID   uuid.UUID
	MarketID uuid.UUID
}

func NewPositionManager() *PositionManager {
	return &PositionManager{
		positions: make(map[PositionKey]*Position),
	}
}

// GetPosition returns existing position or nil
func (pm *PositionManager) GetPosition(userID, marketID uuid.UUID) *Position {
	key := PositionKey{UserID: userID, MarketID: marketID}
	return pm.positions[key]
}

// GetOrCreatePosition returns existing or creates new empty position
func (pm *PositionManager) GetOrCreatePosition(userID, marketID uuid.UUID) *Position {
	key := PositionKey{UserID: userID, MarketID: marketID}
	pos := pm.positions[key]

	if pos == nil {
		pos = &Position{
			UserID:   userID,
			MarketID: marketID,
		}
		pm.positions[key] = pos
	}

	return pos
}

// GetMarketPositions returns all positions in a market, sorted by user
// ID for deterministic iteration.
func (pm *PositionManager) GetMarketPositions(marketID uuid.UUID) []*Position {
	result := make([]*Position, 0)
	for key, pos := range pm.positions {
		if key.MarketID == marketID {
			result = append(result, pos)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UserID.String() < result[j].UserID.String()
	})
	return result
}

// GetUserPositions returns all positions held by a user.
func (pm *PositionManager) GetUserPositions(userID uuid.UUID) []*Position {
	result := make([]*Position, 0)
	for key, pos := range pm.positions {
		if key.UserID == userID {
			result = append(result, pos)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].MarketID.String() < result[j].MarketID.String()
	})
	return result
}

// GetAllPositions returns every position, sorted for determinism.
func (pm *PositionManager) GetAllPositions() []*Position {
	result := make([]*Position, 0, len(pm.positions))
	for _, pos := range pm.positions {
		result = append(result, pos)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].MarketID != result[j].MarketID {
			return result[i].MarketID.String() < result[j].MarketID.String()
		}
		return result[i].UserID.String() < result[j].UserID.String()
	})
	return result
}

// SetPosition restores a position record (snapshot recovery path).
func (pm *PositionManager) SetPosition(pos *Position) {
	key := PositionKey{UserID: pos.UserID, MarketID: pos.MarketID}
	pm.positions[key] = pos
}

// HasOpenPositions reports whether any position in the market still
// holds shares (blocks market close).
func (pm *PositionManager) HasOpenPositions(marketID uuid.UUID) bool {
	for key, pos := range pm.positions {
		if key.MarketID == marketID && !pos.IsFlat() {
			return true
		}
	}
	return false
}
