package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"PredictLedger/internal/ledger"
)

// QueryService provides read-only access to projection tables. All
// responses include as_of_sequence (the projection watermark) for
// freshness semantics: a reader can compare it against the sequence
// returned when their command was accepted.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// GetBalance returns a user's collateral balance.
func (qs *QueryService) GetBalance(
	ctx context.Context,
	userID uuid.UUID,
) (*BalanceResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	path := ledger.NewUserAccountKey(userID, ledger.CollateralAssetID).AccountPath()
	balance, err := qs.getProjectedBalance(ctx, path)
	if err != nil {
		return nil, err
	}

	assetName, _ := ledger.GetAssetName(ledger.CollateralAssetID)

	return &BalanceResponse{
		UserID:       userID,
		Asset:        assetName,
		Balance:      balance,
		AsOfSequence: asOfSeq,
	}, nil
}

// GetMarket returns one market by ID.
func (qs *QueryService) GetMarket(
	ctx context.Context,
	marketID uuid.UUID,
) (*MarketResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	row := qs.db.QueryRowContext(ctx, marketSelect+` WHERE market_id = $1`, marketID.String())

	m, err := scanMarket(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.AsOfSequence = asOfSeq
	return m, nil
}

// ListMarkets returns markets filtered by status and category, newest
// first by creation sequence. Closed markets are excluded unless
// includeClosed is set.
func (qs *QueryService) ListMarkets(
	ctx context.Context,
	status *int32,
	category *string,
	includeClosed bool,
	limit int,
) ([]MarketResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := marketSelect + ` WHERE TRUE`
	args := []interface{}{}
	argIdx := 1

	if !includeClosed {
		query += " AND closed = FALSE"
	}
	if status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, *status)
		argIdx++
	}
	if category != nil {
		query += fmt.Sprintf(" AND category = $%d", argIdx)
		args = append(args, *category)
		argIdx++
	}

	query += " ORDER BY start_ts DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []MarketResponse
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		m.AsOfSequence = asOfSeq
		markets = append(markets, *m)
	}

	return markets, rows.Err()
}

// GetPositions returns all open positions for a user.
func (qs *QueryService) GetPositions(
	ctx context.Context,
	userID uuid.UUID,
) ([]PositionResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT market_id, yes_shares, no_shares, total_deposited, total_claimed, last_bet_ts
		FROM projections.positions
		WHERE user_id = $1 AND (yes_shares > 0 OR no_shares > 0 OR total_claimed > 0)
		ORDER BY market_id
	`, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []PositionResponse
	for rows.Next() {
		var p PositionResponse
		p.UserID = userID
		p.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&p.MarketID, &p.YesShares, &p.NoShares,
			&p.TotalDeposited, &p.TotalClaimed, &p.LastBetAt,
		); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}

	return positions, rows.Err()
}

// GetDisputes returns disputes, optionally filtered to one market,
// newest first.
func (qs *QueryService) GetDisputes(
	ctx context.Context,
	marketID *uuid.UUID,
	limit int,
) ([]DisputeResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT dispute_id, market_id, disputer, reason, bond_amount, status, created_at, resolved_at
		FROM projections.disputes
		WHERE TRUE
	`
	args := []interface{}{}
	argIdx := 1

	if marketID != nil {
		query += fmt.Sprintf(" AND market_id = $%d", argIdx)
		args = append(args, marketID.String())
		argIdx++
	}

	query += " ORDER BY created_at DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var disputes []DisputeResponse
	for rows.Next() {
		var d DisputeResponse
		d.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&d.DisputeID, &d.MarketID, &d.Disputer, &d.Reason,
			&d.BondAmount, &d.Status, &d.CreatedAt, &d.ResolvedAt,
		); err != nil {
			return nil, err
		}
		disputes = append(disputes, d)
	}

	return disputes, rows.Err()
}

// GetJournalHistory returns journal entries touching a user's accounts,
// with cursor-based pagination.
func (qs *QueryService) GetJournalHistory(
	ctx context.Context,
	userID uuid.UUID,
	limit int,
	afterSequence *int64,
) ([]JournalHistoryEntry, error) {
	accountPrefix := fmt.Sprintf("user:%s:%%", userID)

	query := `
		SELECT journal_id, batch_id, event_ref, sequence,
		       debit_account, credit_account, asset_id, amount, journal_type, timestamp
		FROM event_log.journal
		WHERE (debit_account LIKE $1 OR credit_account LIKE $1)
	`
	args := []interface{}{accountPrefix}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.AssetID, &e.Amount,
			&e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks hash chain and global balance invariants
// against the durable log and projections.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	// Check hash chain continuity
	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence, e1.prev_hash, e2.state_hash
		FROM event_log.events e1
		LEFT JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.sequence > 0 AND e1.prev_hash != COALESCE(e2.state_hash, e1.prev_hash)
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		var prevHash, expectedHash []byte
		if err := rows.Scan(&seq, &prevHash, &expectedHash); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}

	// Global balance must sum to zero across all accounts per asset
	balanceRows, err := qs.db.QueryContext(ctx, `
		SELECT asset_id, SUM(balance) as total
		FROM projections.balances
		GROUP BY asset_id
		HAVING SUM(balance) != 0
	`)
	if err != nil {
		return nil, err
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var assetID uint16
		var total int64
		if err := balanceRows.Scan(&assetID, &total); err != nil {
			return nil, err
		}
		report.UnbalancedAssets = append(report.UnbalancedAssets, UnbalancedAsset{
			AssetID:   assetID,
			Imbalance: total,
		})
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.UnbalancedAssets) == 0
	return report, nil
}

// --- helpers ---

const marketSelect = `
	SELECT market_id, creator, title, description, category, status,
	       yes_reserve, no_reserve, total_collateral, fee_bps,
	       start_ts, lock_ts, end_ts,
	       oracle_source, oracle_feed, oracle_threshold,
	       resolved_outcome, resolution_price, resolved_at,
	       min_bet, max_bet, yes_mint, no_mint, closed
	FROM projections.markets
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMarket(row rowScanner) (*MarketResponse, error) {
	var m MarketResponse
	if err := row.Scan(
		&m.MarketID, &m.Creator, &m.Title, &m.Description, &m.Category, &m.Status,
		&m.YesReserve, &m.NoReserve, &m.TotalCollateral, &m.FeeBps,
		&m.StartTimestamp, &m.LockTimestamp, &m.EndTimestamp,
		&m.OracleSource, &m.OracleFeed, &m.OracleThreshold,
		&m.ResolvedOutcome, &m.ResolutionPrice, &m.ResolvedAt,
		&m.MinBet, &m.MaxBet, &m.YesMint, &m.NoMint, &m.Closed,
	); err != nil {
		return nil, err
	}

	// Implied Yes price: the pool quotes Yes at no/(yes+no)
	if total := m.YesReserve + m.NoReserve; total > 0 {
		m.YesPriceBps = m.NoReserve * 10_000 / total
	}

	return &m, nil
}

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

func (qs *QueryService) getProjectedBalance(ctx context.Context, accountPath string) (int64, error) {
	var balance int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(balance, 0) FROM projections.balances
		WHERE account_path = $1
	`, accountPath).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return balance, err
}
