package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"PredictLedger/internal/event"
	"PredictLedger/internal/state"
)

// ParseRawEvent converts a RawEvent (JSON bytes + command type string) into a
// typed event.Event. The ingestion shell validates, parses, and converts raw
// commands before sending to the deterministic core.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "Deposit":
		return parseDeposit(raw.Data)
	case "Withdrawal":
		return parseWithdrawal(raw.Data)
	case "PlaceBet":
		return parsePlaceBet(raw.Data)
	case "CancelBet":
		return parseCancelBet(raw.Data)
	case "ClaimPayout":
		return parseClaimPayout(raw.Data)
	case "CreateMarket":
		return parseCreateMarket(raw.Data)
	case "ResolveMarket":
		return parseResolveMarket(raw.Data)
	case "PauseMarket":
		return parsePauseMarket(raw.Data)
	case "UnpauseMarket":
		return parseUnpauseMarket(raw.Data)
	case "CancelMarket":
		return parseCancelMarket(raw.Data)
	case "CloseMarket":
		return parseCloseMarket(raw.Data)
	case "OpenDispute":
		return parseOpenDispute(raw.Data)
	case "SettleDispute":
		return parseSettleDispute(raw.Data)
	case "PausePlatform":
		return parsePausePlatform(raw.Data)
	case "UnpausePlatform":
		return parseUnpausePlatform(raw.Data)
	case "UpdatePlatform":
		return parseUpdatePlatform(raw.Data)
	default:
		return nil, fmt.Errorf("unknown command type: %s", eventType)
	}
}

func parseOutcome(s string) (state.Outcome, error) {
	switch s {
	case "yes":
		return state.OutcomeYes, nil
	case "no":
		return state.OutcomeNo, nil
	case "invalid":
		return state.OutcomeInvalid, nil
	default:
		return state.OutcomeYes, fmt.Errorf("unknown outcome: %q", s)
	}
}

func parseOracleSource(s string) (state.OracleSource, error) {
	switch s {
	case "manual_admin":
		return state.OracleManualAdmin, nil
	case "pyth":
		return state.OraclePyth, nil
	case "switchboard":
		return state.OracleSwitchboard, nil
	default:
		return state.OracleManualAdmin, fmt.Errorf("unknown oracle source: %q", s)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match upstream producers.

type fundsJSON struct {
	CommandID   string `json:"command_id"`
	UserID      string `json:"user_id"`
	Amount      int64  `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseDeposit(data []byte) (*event.Deposit, error) {
	var j fundsJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Deposit: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	return &event.Deposit{
		CommandID:  commandID,
		UserID:     userID,
		Amount:     j.Amount,
		CommandSeq: j.Sequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseWithdrawal(data []byte) (*event.Withdrawal, error) {
	var j fundsJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Withdrawal: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	return &event.Withdrawal{
		CommandID:  commandID,
		UserID:     userID,
		Amount:     j.Amount,
		CommandSeq: j.Sequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

type placeBetJSON struct {
	CommandID    string `json:"command_id"`
	UserID       string `json:"user_id"`
	MarketID     string `json:"market_id"`
	Outcome      string `json:"outcome"` // "yes" or "no"
	Amount       int64  `json:"amount"`
	MinSharesOut int64  `json:"min_shares_out"`
	Sequence     int64  `json:"sequence"`
	TimestampUs  int64  `json:"timestamp_us"`
}

func parsePlaceBet(data []byte) (*event.PlaceBet, error) {
	var j placeBetJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PlaceBet: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	marketID, err := uuid.Parse(j.MarketID)
	if err != nil {
		return nil, fmt.Errorf("parse market_id: %w", err)
	}
	outcome, err := parseOutcome(j.Outcome)
	if err != nil {
		return nil, fmt.Errorf("parse PlaceBet: %w", err)
	}
	return &event.PlaceBet{
		CommandID:    commandID,
		UserID:       userID,
		Market:       marketID,
		Outcome:      outcome,
		Amount:       j.Amount,
		MinSharesOut: j.MinSharesOut,
		CommandSeq:   j.Sequence,
		Timestamp:    time.UnixMicro(j.TimestampUs),
	}, nil
}

type cancelBetJSON struct {
	CommandID   string `json:"command_id"`
	UserID      string `json:"user_id"`
	MarketID    string `json:"market_id"`
	Mint        string `json:"mint"`
	Shares      int64  `json:"shares"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseCancelBet(data []byte) (*event.CancelBet, error) {
	var j cancelBetJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CancelBet: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	marketID, err := uuid.Parse(j.MarketID)
	if err != nil {
		return nil, fmt.Errorf("parse market_id: %w", err)
	}
	mint, err := uuid.Parse(j.Mint)
	if err != nil {
		return nil, fmt.Errorf("parse mint: %w", err)
	}
	return &event.CancelBet{
		CommandID:    commandID,
		UserID:       userID,
		Market:       marketID,
		Mint:         mint,
		SharesToBurn: j.Shares,
		CommandSeq:   j.Sequence,
		Timestamp:    time.UnixMicro(j.TimestampUs),
	}, nil
}

type claimPayoutJSON struct {
	CommandID   string `json:"command_id"`
	UserID      string `json:"user_id"`
	MarketID    string `json:"market_id"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseClaimPayout(data []byte) (*event.ClaimPayout, error) {
	var j claimPayoutJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ClaimPayout: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	marketID, err := uuid.Parse(j.MarketID)
	if err != nil {
		return nil, fmt.Errorf("parse market_id: %w", err)
	}
	return &event.ClaimPayout{
		CommandID:  commandID,
		UserID:     userID,
		Market:     marketID,
		CommandSeq: j.Sequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

type createMarketJSON struct {
	CommandID        string `json:"command_id"`
	CreatorID        string `json:"creator_id"`
	MarketID         string `json:"market_id"`
	Title            string `json:"title"`
	Description      string `json:"description"`
	Category         string `json:"category"`
	OracleSource     string `json:"oracle_source"`
	OracleFeed       string `json:"oracle_feed,omitempty"`
	OracleThreshold  int64  `json:"oracle_threshold,omitempty"`
	StartTimestamp   int64  `json:"start_ts"`
	LockTimestamp    int64  `json:"lock_ts"`
	EndTimestamp     int64  `json:"end_ts"`
	MinBet           int64  `json:"min_bet"`
	MaxBet           int64  `json:"max_bet"`
	IsRecurring      bool   `json:"is_recurring,omitempty"`
	RoundDuration    *int64 `json:"round_duration,omitempty"`
	FeeBps           int32  `json:"fee_bps"`
	InitialLiquidity int64  `json:"initial_liquidity"`
	Sequence         int64  `json:"sequence"`
	TimestampUs      int64  `json:"timestamp_us"`
}

func parseCreateMarket(data []byte) (*event.CreateMarket, error) {
	var j createMarketJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CreateMarket: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	creatorID, err := uuid.Parse(j.CreatorID)
	if err != nil {
		return nil, fmt.Errorf("parse creator_id: %w", err)
	}
	marketID, err := uuid.Parse(j.MarketID)
	if err != nil {
		return nil, fmt.Errorf("parse market_id: %w", err)
	}
	source, err := parseOracleSource(j.OracleSource)
	if err != nil {
		return nil, fmt.Errorf("parse CreateMarket: %w", err)
	}
	return &event.CreateMarket{
		CommandID:        commandID,
		Creator:          creatorID,
		Market:           marketID,
		Title:            j.Title,
		Description:      j.Description,
		Category:         j.Category,
		OracleSource:     source,
		OracleFeed:       j.OracleFeed,
		OracleThreshold:  j.OracleThreshold,
		StartTimestamp:   j.StartTimestamp,
		LockTimestamp:    j.LockTimestamp,
		EndTimestamp:     j.EndTimestamp,
		MinBet:           j.MinBet,
		MaxBet:           j.MaxBet,
		IsRecurring:      j.IsRecurring,
		RoundDuration:    j.RoundDuration,
		FeeBps:           j.FeeBps,
		InitialLiquidity: j.InitialLiquidity,
		CommandSeq:       j.Sequence,
		Timestamp:        time.UnixMicro(j.TimestampUs),
	}, nil
}

type resolveMarketJSON struct {
	CommandID   string  `json:"command_id"`
	CallerID    string  `json:"caller_id"`
	MarketID    string  `json:"market_id"`
	Outcome     *string `json:"outcome,omitempty"` // ManualAdmin only
	FeedID      string  `json:"feed_id,omitempty"`
	Price       int64   `json:"price,omitempty"`
	PublishTime int64   `json:"publish_time,omitempty"` // unix seconds
	Sequence    int64   `json:"sequence"`
	TimestampUs int64   `json:"timestamp_us"`
}

func parseResolveMarket(data []byte) (*event.ResolveMarket, error) {
	var j resolveMarketJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ResolveMarket: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	callerID, err := uuid.Parse(j.CallerID)
	if err != nil {
		return nil, fmt.Errorf("parse caller_id: %w", err)
	}
	marketID, err := uuid.Parse(j.MarketID)
	if err != nil {
		return nil, fmt.Errorf("parse market_id: %w", err)
	}
	var outcome *state.Outcome
	if j.Outcome != nil {
		o, err := parseOutcome(*j.Outcome)
		if err != nil {
			return nil, fmt.Errorf("parse ResolveMarket: %w", err)
		}
		outcome = &o
	}
	return &event.ResolveMarket{
		CommandID:   commandID,
		Caller:      callerID,
		Market:      marketID,
		Outcome:     outcome,
		FeedID:      j.FeedID,
		Price:       j.Price,
		PublishTime: j.PublishTime,
		CommandSeq:  j.Sequence,
		Timestamp:   time.UnixMicro(j.TimestampUs),
	}, nil
}

// marketAdminJSON covers the pause/unpause/cancel/close commands, which
// share a wire shape.
type marketAdminJSON struct {
	CommandID   string `json:"command_id"`
	CallerID    string `json:"caller_id"`
	MarketID    string `json:"market_id"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func (j *marketAdminJSON) ids() (commandID, callerID, marketID uuid.UUID, err error) {
	commandID, err = uuid.Parse(j.CommandID)
	if err != nil {
		return commandID, callerID, marketID, fmt.Errorf("parse command_id: %w", err)
	}
	callerID, err = uuid.Parse(j.CallerID)
	if err != nil {
		return commandID, callerID, marketID, fmt.Errorf("parse caller_id: %w", err)
	}
	marketID, err = uuid.Parse(j.MarketID)
	if err != nil {
		return commandID, callerID, marketID, fmt.Errorf("parse market_id: %w", err)
	}
	return commandID, callerID, marketID, nil
}

func parsePauseMarket(data []byte) (*event.PauseMarket, error) {
	var j marketAdminJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PauseMarket: %w", err)
	}
	commandID, callerID, marketID, err := j.ids()
	if err != nil {
		return nil, err
	}
	return &event.PauseMarket{
		CommandID:  commandID,
		Caller:     callerID,
		Market:     marketID,
		CommandSeq: j.Sequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseUnpauseMarket(data []byte) (*event.UnpauseMarket, error) {
	var j marketAdminJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse UnpauseMarket: %w", err)
	}
	commandID, callerID, marketID, err := j.ids()
	if err != nil {
		return nil, err
	}
	return &event.UnpauseMarket{
		CommandID:  commandID,
		Caller:     callerID,
		Market:     marketID,
		CommandSeq: j.Sequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseCancelMarket(data []byte) (*event.CancelMarket, error) {
	var j marketAdminJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CancelMarket: %w", err)
	}
	commandID, callerID, marketID, err := j.ids()
	if err != nil {
		return nil, err
	}
	return &event.CancelMarket{
		CommandID:  commandID,
		Caller:     callerID,
		Market:     marketID,
		CommandSeq: j.Sequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseCloseMarket(data []byte) (*event.CloseMarket, error) {
	var j marketAdminJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CloseMarket: %w", err)
	}
	commandID, callerID, marketID, err := j.ids()
	if err != nil {
		return nil, err
	}
	return &event.CloseMarket{
		CommandID:  commandID,
		Caller:     callerID,
		Market:     marketID,
		CommandSeq: j.Sequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

type openDisputeJSON struct {
	CommandID   string `json:"command_id"`
	DisputerID  string `json:"disputer_id"`
	MarketID    string `json:"market_id"`
	Reason      string `json:"reason"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseOpenDispute(data []byte) (*event.OpenDispute, error) {
	var j openDisputeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse OpenDispute: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	disputerID, err := uuid.Parse(j.DisputerID)
	if err != nil {
		return nil, fmt.Errorf("parse disputer_id: %w", err)
	}
	marketID, err := uuid.Parse(j.MarketID)
	if err != nil {
		return nil, fmt.Errorf("parse market_id: %w", err)
	}
	return &event.OpenDispute{
		CommandID:  commandID,
		Disputer:   disputerID,
		Market:     marketID,
		Reason:     j.Reason,
		CommandSeq: j.Sequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

type settleDisputeJSON struct {
	CommandID   string  `json:"command_id"`
	CallerID    string  `json:"caller_id"`
	MarketID    string  `json:"market_id"`
	Outcome     *string `json:"outcome,omitempty"` // nil rejects the dispute
	Sequence    int64   `json:"sequence"`
	TimestampUs int64   `json:"timestamp_us"`
}

func parseSettleDispute(data []byte) (*event.SettleDispute, error) {
	var j settleDisputeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SettleDispute: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	callerID, err := uuid.Parse(j.CallerID)
	if err != nil {
		return nil, fmt.Errorf("parse caller_id: %w", err)
	}
	marketID, err := uuid.Parse(j.MarketID)
	if err != nil {
		return nil, fmt.Errorf("parse market_id: %w", err)
	}
	var outcome *state.Outcome
	if j.Outcome != nil {
		o, err := parseOutcome(*j.Outcome)
		if err != nil {
			return nil, fmt.Errorf("parse SettleDispute: %w", err)
		}
		outcome = &o
	}
	return &event.SettleDispute{
		CommandID:  commandID,
		Caller:     callerID,
		Market:     marketID,
		Outcome:    outcome,
		CommandSeq: j.Sequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

type platformControlJSON struct {
	CommandID   string `json:"command_id"`
	CallerID    string `json:"caller_id"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parsePausePlatform(data []byte) (*event.PausePlatform, error) {
	var j platformControlJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PausePlatform: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	callerID, err := uuid.Parse(j.CallerID)
	if err != nil {
		return nil, fmt.Errorf("parse caller_id: %w", err)
	}
	return &event.PausePlatform{
		CommandID:  commandID,
		Caller:     callerID,
		CommandSeq: j.Sequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseUnpausePlatform(data []byte) (*event.UnpausePlatform, error) {
	var j platformControlJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse UnpausePlatform: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	callerID, err := uuid.Parse(j.CallerID)
	if err != nil {
		return nil, fmt.Errorf("parse caller_id: %w", err)
	}
	return &event.UnpausePlatform{
		CommandID:  commandID,
		Caller:     callerID,
		CommandSeq: j.Sequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

type updatePlatformJSON struct {
	CommandID     string  `json:"command_id"`
	CallerID      string  `json:"caller_id"`
	DefaultFeeBps *int32  `json:"default_fee_bps,omitempty"`
	DisputeBond   *int64  `json:"dispute_bond,omitempty"`
	Treasury      *string `json:"treasury,omitempty"`
	Sequence      int64   `json:"sequence"`
	TimestampUs   int64   `json:"timestamp_us"`
}

func parseUpdatePlatform(data []byte) (*event.UpdatePlatform, error) {
	var j updatePlatformJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse UpdatePlatform: %w", err)
	}
	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	callerID, err := uuid.Parse(j.CallerID)
	if err != nil {
		return nil, fmt.Errorf("parse caller_id: %w", err)
	}
	var treasury *uuid.UUID
	if j.Treasury != nil {
		tr, err := uuid.Parse(*j.Treasury)
		if err != nil {
			return nil, fmt.Errorf("parse treasury: %w", err)
		}
		treasury = &tr
	}
	return &event.UpdatePlatform{
		CommandID:     commandID,
		Caller:        callerID,
		DefaultFeeBps: j.DefaultFeeBps,
		DisputeBond:   j.DisputeBond,
		Treasury:      treasury,
		CommandSeq:    j.Sequence,
		Timestamp:     time.UnixMicro(j.TimestampUs),
	}, nil
}
