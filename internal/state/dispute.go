package state

import (
	"sort"

	"github.com/google/uuid"
)

// DisputeStatus is the lifecycle state of a dispute
type DisputeStatus int32

const (
	DisputeOpen DisputeStatus = iota
	DisputeVotingActive
	DisputeUpheld
	DisputeRejected
)

func (s DisputeStatus) String() string {
	switch s {
	case DisputeOpen:
		return "Open"
	case DisputeVotingActive:
		return "VotingActive"
	case DisputeUpheld:
		return "Upheld"
	case DisputeRejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

// IsLive reports whether the dispute can still be settled.
func (s DisputeStatus) IsLive() bool {
	return s == DisputeOpen || s == DisputeVotingActive
}

// DisputeRecord contests a market's resolution. At most one live
// record per market.
type DisputeRecord struct {
	DisputeID  uuid.UUID
	MarketID   uuid.UUID
	Disputer   uuid.UUID
	Reason     string // <= 256 chars
	BondAmount int64
	Status     DisputeStatus

	// Reserved counters; no voting algorithm runs in this engine.
	VotesFor     int64
	VotesAgainst int64

	CreatedAt  int64
	ResolvedAt *int64
}

// CanonicalBytes returns deterministic serialization for hashing
func (d *DisputeRecord) CanonicalBytes() []byte {
	buf := make([]byte, 0, 80)

	buf = append(buf, d.DisputeID[:]...)
	buf = append(buf, d.MarketID[:]...)
	buf = append(buf, byte(d.Status))
	buf = appendInt64LE(buf, d.BondAmount)
	buf = appendInt64LE(buf, d.CreatedAt)
	if d.ResolvedAt != nil {
		buf = append(buf, 1)
		buf = appendInt64LE(buf, *d.ResolvedAt)
	} else {
		buf = append(buf, 0)
	}

	return buf
}

// DisputeManager owns dispute records, keyed by market.
// Not thread-safe — only accessed from the single-threaded core.
type DisputeManager struct {
	disputes map[uuid.UUID]*DisputeRecord // market_id -> record
}

func NewDisputeManager() *DisputeManager {
	return &DisputeManager{
		disputes: make(map[uuid.UUID]*DisputeRecord),
	}
}

// GetDispute returns the market's dispute record or nil.
func (dm *DisputeManager) GetDispute(marketID uuid.UUID) *DisputeRecord {
	return dm.disputes[marketID]
}

// HasLiveDispute reports whether an unsettled dispute exists.
func (dm *DisputeManager) HasLiveDispute(marketID uuid.UUID) bool {
	d := dm.disputes[marketID]
	return d != nil && d.Status.IsLive()
}

// AddDispute records a newly opened dispute, replacing any settled
// predecessor for the market.
func (dm *DisputeManager) AddDispute(d *DisputeRecord) {
	dm.disputes[d.MarketID] = d
}

// GetAllDisputes returns all records sorted by market ID.
func (dm *DisputeManager) GetAllDisputes() []*DisputeRecord {
	result := make([]*DisputeRecord, 0, len(dm.disputes))
	for _, d := range dm.disputes {
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].MarketID.String() < result[j].MarketID.String()
	})
	return result
}

// SetDispute restores a record (snapshot recovery path).
func (dm *DisputeManager) SetDispute(d *DisputeRecord) {
	dm.disputes[d.MarketID] = d
}
