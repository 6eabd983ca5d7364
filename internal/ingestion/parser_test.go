package ingestion_test

import (
	"encoding/json"
	"testing"
	"time"

	"PredictLedger/internal/event"
	"PredictLedger/internal/ingestion"
	"PredictLedger/internal/state"
)

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawEvent {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawEvent{
		Subject:   "test",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func TestParsePlaceBet(t *testing.T) {
	payload := map[string]interface{}{
		"command_id":     "550e8400-e29b-41d4-a716-446655440000",
		"user_id":        "660e8400-e29b-41d4-a716-446655440001",
		"market_id":      "770e8400-e29b-41d4-a716-446655440002",
		"outcome":        "yes",
		"amount":         int64(1_000_000),
		"min_shares_out": int64(900_000),
		"sequence":       int64(42),
		"timestamp_us":   int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "PlaceBet")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	pb, ok := evt.(*event.PlaceBet)
	if !ok {
		t.Fatalf("expected *event.PlaceBet, got %T", evt)
	}

	if pb.Market.String() != "770e8400-e29b-41d4-a716-446655440002" {
		t.Errorf("market: got %s", pb.Market)
	}
	if pb.Outcome != state.OutcomeYes {
		t.Errorf("outcome: got %v, want Yes", pb.Outcome)
	}
	if pb.Amount != 1_000_000 {
		t.Errorf("amount: got %d, want 1_000_000", pb.Amount)
	}
	if pb.MinSharesOut != 900_000 {
		t.Errorf("min_shares_out: got %d, want 900_000", pb.MinSharesOut)
	}
	if pb.CommandSeq != 42 {
		t.Errorf("sequence: got %d, want 42", pb.CommandSeq)
	}
	if pb.EventType() != event.EventTypeBetPlace {
		t.Errorf("event type: got %v, want BetPlace", pb.EventType())
	}
}

func TestParsePlaceBet_UnknownOutcome_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"command_id":   "550e8400-e29b-41d4-a716-446655440000",
		"user_id":      "660e8400-e29b-41d4-a716-446655440001",
		"market_id":    "770e8400-e29b-41d4-a716-446655440002",
		"outcome":      "maybe",
		"amount":       int64(100),
		"sequence":     int64(1),
		"timestamp_us": int64(0),
	}

	raw := rawFromJSON(t, payload)
	if _, err := ingestion.ParseRawEvent(raw, "PlaceBet"); err == nil {
		t.Fatal("expected error for unknown outcome")
	}
}

func TestParseCancelBet(t *testing.T) {
	payload := map[string]interface{}{
		"command_id":   "550e8400-e29b-41d4-a716-446655440000",
		"user_id":      "660e8400-e29b-41d4-a716-446655440001",
		"market_id":    "770e8400-e29b-41d4-a716-446655440002",
		"mint":         "880e8400-e29b-41d4-a716-446655440003",
		"shares":       int64(50_000),
		"sequence":     int64(7),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "CancelBet")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	cb, ok := evt.(*event.CancelBet)
	if !ok {
		t.Fatalf("expected *event.CancelBet, got %T", evt)
	}

	if cb.Mint.String() != "880e8400-e29b-41d4-a716-446655440003" {
		t.Errorf("mint: got %s", cb.Mint)
	}
	if cb.SharesToBurn != 50_000 {
		t.Errorf("shares: got %d, want 50_000", cb.SharesToBurn)
	}
}

func TestParseCreateMarket(t *testing.T) {
	payload := map[string]interface{}{
		"command_id":        "550e8400-e29b-41d4-a716-446655440000",
		"creator_id":        "660e8400-e29b-41d4-a716-446655440001",
		"market_id":         "770e8400-e29b-41d4-a716-446655440002",
		"title":             "BTC above 100k by year end",
		"description":       "Resolves Yes if BTC/USD closes above 100000",
		"category":          "crypto",
		"oracle_source":     "pyth",
		"oracle_feed":       "0xff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace",
		"oracle_threshold":  int64(100_000_00),
		"start_ts":          int64(1700000000),
		"lock_ts":           int64(1702000000),
		"end_ts":            int64(1704000000),
		"min_bet":           int64(1_000),
		"max_bet":           int64(10_000_000),
		"fee_bps":           int32(200),
		"initial_liquidity": int64(5_000_000),
		"sequence":          int64(1),
		"timestamp_us":      int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "CreateMarket")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	cm, ok := evt.(*event.CreateMarket)
	if !ok {
		t.Fatalf("expected *event.CreateMarket, got %T", evt)
	}

	if cm.OracleSource != state.OraclePyth {
		t.Errorf("oracle_source: got %v, want Pyth", cm.OracleSource)
	}
	if cm.OracleThreshold != 100_000_00 {
		t.Errorf("oracle_threshold: got %d, want 100_000_00", cm.OracleThreshold)
	}
	if cm.LockTimestamp != 1702000000 {
		t.Errorf("lock_ts: got %d, want 1702000000", cm.LockTimestamp)
	}
	if cm.FeeBps != 200 {
		t.Errorf("fee_bps: got %d, want 200", cm.FeeBps)
	}
	if cm.InitialLiquidity != 5_000_000 {
		t.Errorf("initial_liquidity: got %d, want 5_000_000", cm.InitialLiquidity)
	}
	if cm.RoundDuration != nil {
		t.Errorf("round_duration: got %v, want nil", *cm.RoundDuration)
	}
}

func TestParseResolveMarket_Manual(t *testing.T) {
	payload := map[string]interface{}{
		"command_id":   "550e8400-e29b-41d4-a716-446655440000",
		"caller_id":    "660e8400-e29b-41d4-a716-446655440001",
		"market_id":    "770e8400-e29b-41d4-a716-446655440002",
		"outcome":      "no",
		"sequence":     int64(3),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "ResolveMarket")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	rm, ok := evt.(*event.ResolveMarket)
	if !ok {
		t.Fatalf("expected *event.ResolveMarket, got %T", evt)
	}

	if rm.Outcome == nil || *rm.Outcome != state.OutcomeNo {
		t.Errorf("outcome: got %v, want No", rm.Outcome)
	}
	if rm.FeedID != "" {
		t.Errorf("feed_id: got %q, want empty", rm.FeedID)
	}
}

func TestParseResolveMarket_Feed(t *testing.T) {
	payload := map[string]interface{}{
		"command_id":   "550e8400-e29b-41d4-a716-446655440000",
		"caller_id":    "660e8400-e29b-41d4-a716-446655440001",
		"market_id":    "770e8400-e29b-41d4-a716-446655440002",
		"feed_id":      "0xff61491a",
		"price":        int64(105_000_00),
		"publish_time": int64(1704000010),
		"sequence":     int64(4),
		"timestamp_us": int64(1704000010000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "ResolveMarket")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	rm := evt.(*event.ResolveMarket)
	if rm.Outcome != nil {
		t.Errorf("outcome: got %v, want nil", *rm.Outcome)
	}
	if rm.Price != 105_000_00 {
		t.Errorf("price: got %d, want 105_000_00", rm.Price)
	}
	if rm.PublishTime != 1704000010 {
		t.Errorf("publish_time: got %d, want 1704000010", rm.PublishTime)
	}
}

func TestParseSettleDispute_Rejection(t *testing.T) {
	payload := map[string]interface{}{
		"command_id":   "550e8400-e29b-41d4-a716-446655440000",
		"caller_id":    "660e8400-e29b-41d4-a716-446655440001",
		"market_id":    "770e8400-e29b-41d4-a716-446655440002",
		"sequence":     int64(9),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "SettleDispute")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	sd, ok := evt.(*event.SettleDispute)
	if !ok {
		t.Fatalf("expected *event.SettleDispute, got %T", evt)
	}
	if sd.Outcome != nil {
		t.Errorf("outcome: got %v, want nil (rejection)", *sd.Outcome)
	}
}

func TestParseDeposit(t *testing.T) {
	payload := map[string]interface{}{
		"command_id":   "550e8400-e29b-41d4-a716-446655440000",
		"user_id":      "660e8400-e29b-41d4-a716-446655440001",
		"amount":       int64(2_000_000),
		"sequence":     int64(2),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "Deposit")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	d, ok := evt.(*event.Deposit)
	if !ok {
		t.Fatalf("expected *event.Deposit, got %T", evt)
	}

	if d.Amount != 2_000_000 {
		t.Errorf("amount: got %d, want 2_000_000", d.Amount)
	}
	if d.MarketID() != nil {
		t.Errorf("market_id: got %v, want nil", *d.MarketID())
	}
	if d.EventType() != event.EventTypeDeposit {
		t.Errorf("event type: got %v, want Deposit", d.EventType())
	}
}

func TestParseUpdatePlatform_PartialFields(t *testing.T) {
	bond := int64(750)
	payload := map[string]interface{}{
		"command_id":   "550e8400-e29b-41d4-a716-446655440000",
		"caller_id":    "660e8400-e29b-41d4-a716-446655440001",
		"dispute_bond": bond,
		"sequence":     int64(5),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "UpdatePlatform")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	up, ok := evt.(*event.UpdatePlatform)
	if !ok {
		t.Fatalf("expected *event.UpdatePlatform, got %T", evt)
	}
	if up.DisputeBond == nil || *up.DisputeBond != bond {
		t.Errorf("dispute_bond: got %v, want %d", up.DisputeBond, bond)
	}
	if up.DefaultFeeBps != nil {
		t.Errorf("default_fee_bps: got %v, want nil", *up.DefaultFeeBps)
	}
	if up.Treasury != nil {
		t.Errorf("treasury: got %v, want nil", *up.Treasury)
	}
}

func TestParseUnknownCommandType_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{}`)}
	_, err := ingestion.ParseRawEvent(raw, "NonExistentType")
	if err == nil {
		t.Fatal("expected error for unknown command type")
	}
}

func TestParseInvalidJSON_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{invalid json`)}
	_, err := ingestion.ParseRawEvent(raw, "PlaceBet")
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestParseInvalidUUID_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"command_id":   "not-a-uuid",
		"user_id":      "also-not-a-uuid",
		"market_id":    "still-not-a-uuid",
		"outcome":      "yes",
		"amount":       int64(1),
		"sequence":     int64(0),
		"timestamp_us": int64(0),
	}

	raw := rawFromJSON(t, payload)
	_, err := ingestion.ParseRawEvent(raw, "PlaceBet")
	if err == nil {
		t.Fatal("expected error for invalid UUID")
	}
}
