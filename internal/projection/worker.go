package projection

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"PredictLedger/internal/core"
	"PredictLedger/internal/event"
	"PredictLedger/internal/state"
)

// ProjectionWorker updates Postgres read models from applied events.
// The projection channel is non-blocking with drop: if this worker falls
// behind, projections are rebuilt from the event log.
type ProjectionWorker struct {
	db         *sql.DB
	inputChan  <-chan core.CoreOutput
	betHistory *BetHistoryProjection
	lastSeq    int64
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan core.CoreOutput) *ProjectionWorker {
	return &ProjectionWorker{
		db:         db,
		inputChan:  inputChan,
		betHistory: NewBetHistoryProjection(),
	}
}

// BetHistory exposes the in-memory activity feed for the query service.
func (pw *ProjectionWorker) BetHistory() *BetHistoryProjection {
	return pw.betHistory
}

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			if err := pw.processOutput(ctx, output); err != nil {
				log.Printf("WARN: projection update failed at seq=%d: %v",
					output.Envelope.Sequence, err)
				// Continue — projections are eventually consistent
				// and can be rebuilt from the event log
			}

			pw.lastSeq = output.Envelope.Sequence
			pw.betHistory.Record(output)
		}
	}
}

func (pw *ProjectionWorker) processOutput(ctx context.Context, output core.CoreOutput) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	seq := output.Envelope.Sequence

	// Balance projections follow the journal entries exactly
	if output.Batch != nil {
		for _, j := range output.Batch.Journals {
			if err := pw.updateBalanceProjection(ctx, tx, seq,
				j.DebitAccount.AccountPath(), j.CreditAccount.AccountPath(),
				uint16(j.AssetID), j.Amount); err != nil {
				return fmt.Errorf("balance projection: %w", err)
			}
		}
	}

	if output.Market != nil {
		if err := pw.upsertMarket(ctx, tx, seq, output.Market); err != nil {
			return fmt.Errorf("market projection: %w", err)
		}
	} else if output.Envelope.EventType == event.EventTypeMarketClose && output.Envelope.MarketID != nil {
		// Closed markets are removed from core state; flag the row instead
		if _, err := tx.ExecContext(ctx, `
			UPDATE projections.markets SET closed = TRUE, last_sequence = $2 WHERE market_id = $1
		`, *output.Envelope.MarketID, seq); err != nil {
			return fmt.Errorf("market close projection: %w", err)
		}
	}

	if output.Position != nil {
		if err := pw.upsertPosition(ctx, tx, seq, output.Position); err != nil {
			return fmt.Errorf("position projection: %w", err)
		}
	}

	if output.Dispute != nil {
		if err := pw.upsertDispute(ctx, tx, seq, output.Dispute); err != nil {
			return fmt.Errorf("dispute projection: %w", err)
		}
	}

	// Advance the projection watermark
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, seq); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

// updateBalanceProjection mirrors the core's convention: debit increases
// the account, credit decreases it.
func (pw *ProjectionWorker) updateBalanceProjection(
	ctx context.Context, tx *sql.Tx, seq int64,
	debitPath, creditPath string, assetID uint16, amount int64,
) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.balances.balance + $3, last_sequence = $4
	`, debitPath, assetID, amount, seq); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, -$3, $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.balances.balance - $3, last_sequence = $4
	`, creditPath, assetID, amount, seq); err != nil {
		return err
	}

	return nil
}

func (pw *ProjectionWorker) upsertMarket(ctx context.Context, tx *sql.Tx, seq int64, m *state.Market) error {
	var resolvedOutcome *int32
	if m.ResolvedOutcome != nil {
		o := int32(*m.ResolvedOutcome)
		resolvedOutcome = &o
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.markets
			(market_id, creator, title, description, category, status,
			 yes_reserve, no_reserve, total_collateral, fee_bps,
			 start_ts, lock_ts, end_ts,
			 oracle_source, oracle_feed, oracle_threshold,
			 resolved_outcome, resolution_price, resolved_at,
			 min_bet, max_bet, yes_mint, no_mint, closed, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		        $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, FALSE, $24)
		ON CONFLICT (market_id) DO UPDATE SET
			status = $6, yes_reserve = $7, no_reserve = $8, total_collateral = $9,
			resolved_outcome = $17, resolution_price = $18, resolved_at = $19,
			last_sequence = $24
	`,
		m.MarketID.String(), m.Creator.String(), m.Title, m.Description, m.Category,
		int32(m.Status), m.YesReserve, m.NoReserve, m.TotalCollateral, m.FeeBps,
		m.StartTimestamp, m.LockTimestamp, m.EndTimestamp,
		int32(m.OracleSource), m.OracleFeed, m.OracleThreshold,
		resolvedOutcome, m.ResolutionPrice, m.ResolvedAt,
		m.MinBet, m.MaxBet, m.YesMint.String(), m.NoMint.String(), seq,
	)
	return err
}

func (pw *ProjectionWorker) upsertPosition(ctx context.Context, tx *sql.Tx, seq int64, p *state.Position) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.positions
			(user_id, market_id, yes_shares, no_shares,
			 total_deposited, total_claimed, last_bet_ts, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, market_id) DO UPDATE SET
			yes_shares = $3, no_shares = $4,
			total_deposited = $5, total_claimed = $6,
			last_bet_ts = $7, last_sequence = $8
	`,
		p.UserID.String(), p.MarketID.String(), p.YesShares, p.NoShares,
		p.TotalDeposited, p.TotalClaimed, p.LastBetTimestamp, seq,
	)
	return err
}

func (pw *ProjectionWorker) upsertDispute(ctx context.Context, tx *sql.Tx, seq int64, d *state.DisputeRecord) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.disputes
			(dispute_id, market_id, disputer, reason, bond_amount,
			 status, created_at, resolved_at, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (dispute_id) DO UPDATE SET
			status = $6, resolved_at = $8, last_sequence = $9
	`,
		d.DisputeID.String(), d.MarketID.String(), d.Disputer.String(),
		d.Reason, d.BondAmount, int32(d.Status), d.CreatedAt, d.ResolvedAt, seq,
	)
	return err
}

// RebuildBalances rebuilds the balance projection from the event log.
// Markets, positions, and disputes are rebuilt by core replay followed
// by normal projection flow, so only balances need the SQL fast path.
func RebuildBalances(ctx context.Context, db *sql.DB) error {
	truncateStatements := []string{
		`TRUNCATE projections.balances`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}

	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	// Debits increase account balances
	_, err := db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		SELECT
			debit_account AS account_path,
			asset_id,
			SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM event_log.journal
		GROUP BY debit_account, asset_id
		ON CONFLICT (account_path, asset_id) DO UPDATE
			SET balance = EXCLUDED.balance, last_sequence = EXCLUDED.last_sequence
	`)
	if err != nil {
		return fmt.Errorf("rebuild debit balances: %w", err)
	}

	// Credits decrease account balances
	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		SELECT
			credit_account AS account_path,
			asset_id,
			-SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM event_log.journal
		GROUP BY credit_account, asset_id
		ON CONFLICT (account_path, asset_id) DO UPDATE
			SET balance = projections.balances.balance + EXCLUDED.balance,
			    last_sequence = GREATEST(projections.balances.last_sequence, EXCLUDED.last_sequence)
	`)
	if err != nil {
		return fmt.Errorf("rebuild credit balances: %w", err)
	}

	log.Println("INFO: balance projection rebuild complete")
	return nil
}
