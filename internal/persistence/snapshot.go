package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"PredictLedger/internal/core"
	"PredictLedger/internal/ledger"
	"PredictLedger/internal/state"
)

// SnapshotManager handles creating and loading state snapshots for recovery.
// Snapshots contain balances, markets, positions, disputes, share ledgers,
// platform parameters, sequence counters, and the chain tip hash.
type SnapshotManager struct {
	db *sql.DB
}

// SnapshotData is the serializable form of the core's in-memory state.
type SnapshotData struct {
	Sequence        int64                  `json:"sequence"`
	StateHash       []byte                 `json:"state_hash"`
	Balances        []BalanceSnap          `json:"balances"`
	Markets         []*state.Market        `json:"markets"`
	Positions       []*state.Position      `json:"positions"`
	Disputes        []*state.DisputeRecord `json:"disputes"`
	ShareSupplies   map[uuid.UUID]int64    `json:"share_supplies"`
	ShareHoldings   []HoldingSnap          `json:"share_holdings"`
	Platform        *state.Platform        `json:"platform"`
	SequenceState   map[string]int64       `json:"sequence_state"`   // partition -> next expected seq
	IdempotencyKeys []string               `json:"idempotency_keys"` // recent keys for LRU warming
	CreatedAt       time.Time              `json:"created_at"`
}

// BalanceSnap is a serializable account balance. AccountKey is a struct
// key in memory, so it is flattened here.
type BalanceSnap struct {
	Scope    uint8  `json:"scope"`
	EntityID string `json:"entity_id"` // UUID, zero-valued for system/external
	SubType  uint8  `json:"sub_type"`
	AssetID  uint16 `json:"asset_id"`
	Balance  int64  `json:"balance"`
}

// HoldingSnap is a serializable per-holder share balance.
type HoldingSnap struct {
	Mint   uuid.UUID `json:"mint"`
	Holder uuid.UUID `json:"holder"`
	Shares int64     `json:"shares"`
}

// FromCoreState converts the core's snapshot into the serializable form.
func FromCoreState(snap *core.SnapshotState) *SnapshotData {
	balances := make([]BalanceSnap, 0, len(snap.Balances))
	for key, balance := range snap.Balances {
		balances = append(balances, BalanceSnap{
			Scope:    uint8(key.Scope),
			EntityID: uuid.UUID(key.EntityID).String(),
			SubType:  uint8(key.SubType),
			AssetID:  uint16(key.AssetID),
			Balance:  balance,
		})
	}

	holdings := make([]HoldingSnap, 0, len(snap.ShareHoldings))
	for key, shares := range snap.ShareHoldings {
		holdings = append(holdings, HoldingSnap{
			Mint:   key.Mint,
			Holder: key.Holder,
			Shares: shares,
		})
	}

	return &SnapshotData{
		Sequence:        snap.Sequence,
		StateHash:       snap.StateHash[:],
		Balances:        balances,
		Markets:         snap.Markets,
		Positions:       snap.Positions,
		Disputes:        snap.Disputes,
		ShareSupplies:   snap.ShareSupplies,
		ShareHoldings:   holdings,
		Platform:        snap.Platform,
		SequenceState:   snap.SequenceState,
		IdempotencyKeys: snap.IdempotencyKeys,
		CreatedAt:       time.Now(),
	}
}

// ToCoreState converts a loaded snapshot back into the core's form.
func (sd *SnapshotData) ToCoreState() (*core.SnapshotState, error) {
	balances := make(map[ledger.AccountKey]int64, len(sd.Balances))
	for _, b := range sd.Balances {
		entityID, err := uuid.Parse(b.EntityID)
		if err != nil {
			return nil, fmt.Errorf("parse entity_id %q: %w", b.EntityID, err)
		}
		key := ledger.AccountKey{
			Scope:    ledger.AccountScope(b.Scope),
			EntityID: [16]byte(entityID),
			SubType:  ledger.AccountSubType(b.SubType),
			AssetID:  ledger.AssetID(b.AssetID),
		}
		balances[key] = b.Balance
	}

	holdings := make(map[state.HoldingKey]int64, len(sd.ShareHoldings))
	for _, h := range sd.ShareHoldings {
		holdings[state.HoldingKey{Mint: h.Mint, Holder: h.Holder}] = h.Shares
	}

	var stateHash [32]byte
	copy(stateHash[:], sd.StateHash)

	return &core.SnapshotState{
		Sequence:        sd.Sequence,
		StateHash:       stateHash,
		Balances:        balances,
		Markets:         sd.Markets,
		Positions:       sd.Positions,
		Disputes:        sd.Disputes,
		ShareSupplies:   sd.ShareSupplies,
		ShareHoldings:   holdings,
		Platform:        sd.Platform,
		SequenceState:   sd.SequenceState,
		IdempotencyKeys: sd.IdempotencyKeys,
	}, nil
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists a snapshot to Postgres. Snapshots are taken
// periodically and verified by replaying events from the snapshot
// sequence forward.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *SnapshotData) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	snapshotID := uuid.New()
	sizeBytes := len(data)
	formatVersion := int32(1) // v1: JSON-encoded SnapshotData

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6
	`, snapshotID, snap.Sequence, data, snap.StateHash, formatVersion, sizeBytes, snap.CreatedAt)

	return err
}

// LoadLatestSnapshot loads the most recent verified snapshot. On warm
// restart, load the latest snapshot then replay events from
// snapshot.sequence+1.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*SnapshotData, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data FROM event_log.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // No snapshot — cold start
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap SnapshotData
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// MarkVerified marks a snapshot as verified after integrity check.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.db.ExecContext(ctx, `
		UPDATE event_log.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}

// LoadEventsFrom loads events from a given sequence for replay. Used for
// warm restart (replay from snapshot) and cold restart (replay all).
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, market_id, payload,
		       state_hash, prev_hash, timestamp, source_sequence
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.MarketID,
			&e.Payload, &e.StateHash, &e.PrevHash, &e.Timestamp, &e.SourceSequence,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// GetLatestSequence returns the highest sequence in the event log.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM event_log.events
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil // Empty event log
	}
	return seq.Int64, nil
}
