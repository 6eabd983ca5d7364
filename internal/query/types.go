package query

import "github.com/google/uuid"

// BalanceResponse represents user collateral state for API queries.
type BalanceResponse struct {
	UserID  uuid.UUID `json:"user_id"`
	Asset   string    `json:"asset"`
	Balance int64     `json:"balance"`

	// Metadata
	AsOfSequence int64 `json:"as_of_sequence"` // last projected event sequence
}

// MarketResponse represents a market for API queries.
type MarketResponse struct {
	MarketID    string `json:"market_id"`
	Creator     string `json:"creator"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Status      int32  `json:"status"`

	YesReserve      int64 `json:"yes_reserve"`
	NoReserve       int64 `json:"no_reserve"`
	TotalCollateral int64 `json:"total_collateral"`
	FeeBps          int32 `json:"fee_bps"`

	// Implied probability of Yes in basis points, derived at query time
	// from the pool reserves.
	YesPriceBps int64 `json:"yes_price_bps"`

	StartTimestamp int64 `json:"start_ts"`
	LockTimestamp  int64 `json:"lock_ts"`
	EndTimestamp   int64 `json:"end_ts"`

	OracleSource    int32  `json:"oracle_source"`
	OracleFeed      string `json:"oracle_feed,omitempty"`
	OracleThreshold int64  `json:"oracle_threshold,omitempty"`

	ResolvedOutcome *int32 `json:"resolved_outcome,omitempty"`
	ResolutionPrice *int64 `json:"resolution_price,omitempty"`
	ResolvedAt      *int64 `json:"resolved_at,omitempty"`

	MinBet int64 `json:"min_bet"`
	MaxBet int64 `json:"max_bet"`

	YesMint string `json:"yes_mint"`
	NoMint  string `json:"no_mint"`
	Closed  bool   `json:"closed"`

	AsOfSequence int64 `json:"as_of_sequence"`
}

// PositionResponse represents a user's market position for API queries.
type PositionResponse struct {
	UserID         uuid.UUID `json:"user_id"`
	MarketID       string    `json:"market_id"`
	YesShares      int64     `json:"yes_shares"`
	NoShares       int64     `json:"no_shares"`
	TotalDeposited int64     `json:"total_deposited"`
	TotalClaimed   int64     `json:"total_claimed"`
	LastBetAt      int64     `json:"last_bet_at"`
	AsOfSequence   int64     `json:"as_of_sequence"`
}

// DisputeResponse represents a dispute for API queries.
type DisputeResponse struct {
	DisputeID    string `json:"dispute_id"`
	MarketID     string `json:"market_id"`
	Disputer     string `json:"disputer"`
	Reason       string `json:"reason"`
	BondAmount   int64  `json:"bond_amount"`
	Status       int32  `json:"status"`
	CreatedAt    int64  `json:"created_at"`
	ResolvedAt   *int64 `json:"resolved_at,omitempty"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// JournalHistoryEntry represents a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	AssetID       uint16 `json:"asset_id"`
	Amount        int64  `json:"amount"`
	JournalType   int32  `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy        bool              `json:"is_healthy"`
	HashChainBreaks  []int64           `json:"hash_chain_breaks,omitempty"`
	UnbalancedAssets []UnbalancedAsset `json:"unbalanced_assets,omitempty"`
}

// UnbalancedAsset represents an asset with non-zero global balance sum.
type UnbalancedAsset struct {
	AssetID   uint16 `json:"asset_id"`
	Imbalance int64  `json:"imbalance"`
}
