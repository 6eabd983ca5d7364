package state

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"PredictLedger/internal/domain"
)

func testMarket() *Market {
	return &Market{
		MarketID:       uuid.New(),
		Status:         StatusActive,
		YesReserve:     1000,
		NoReserve:      1000,
		StartTimestamp: 1000,
		LockTimestamp:  2000,
		EndTimestamp:   3000,
		YesMint:        uuid.New(),
		NoMint:         uuid.New(),
	}
}

func TestRecomputeStatus(t *testing.T) {
	yes := OutcomeYes

	cases := []struct {
		name     string
		now      int64
		resolved *Outcome
		want     MarketStatus
	}{
		{"before start", 500, nil, StatusPending},
		{"at start", 1000, nil, StatusActive},
		{"mid window", 1500, nil, StatusActive},
		{"at lock", 2000, nil, StatusLocked},
		{"past end", 3500, nil, StatusLocked},
		{"resolved wins over time", 500, &yes, StatusResolved},
		{"resolved after end", 3500, &yes, StatusResolved},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := testMarket()
			m.ResolvedOutcome = tc.resolved
			got := m.RecomputeStatus(tc.now)
			if got != tc.want {
				t.Fatalf("RecomputeStatus(%d) = %s, want %s", tc.now, got, tc.want)
			}
		})
	}
}

func TestRecomputeStatus_Idempotent(t *testing.T) {
	m := testMarket()
	first := m.RecomputeStatus(1500)
	m.Status = first
	second := m.RecomputeStatus(1500)
	if first != second {
		t.Fatalf("recompute not idempotent: %s then %s", first, second)
	}
}

func TestBettingOpen(t *testing.T) {
	m := testMarket()

	if !m.BettingOpen(1500) {
		t.Error("expected betting open mid window")
	}
	if m.BettingOpen(2000) {
		t.Error("expected betting closed at lock timestamp")
	}

	m.Status = StatusPaused
	if m.BettingOpen(1500) {
		t.Error("expected betting closed while paused")
	}
}

func TestOutcomeForMint(t *testing.T) {
	m := testMarket()

	if o, err := m.OutcomeForMint(m.YesMint); err != nil || o != OutcomeYes {
		t.Errorf("yes mint: outcome=%v err=%v", o, err)
	}
	if o, err := m.OutcomeForMint(m.NoMint); err != nil || o != OutcomeNo {
		t.Errorf("no mint: outcome=%v err=%v", o, err)
	}
	if _, err := m.OutcomeForMint(uuid.New()); !errors.Is(err, domain.ErrInvalidMint) {
		t.Errorf("foreign mint: expected InvalidMint, got %v", err)
	}
}

func TestPositionShares(t *testing.T) {
	p := &Position{UserID: uuid.New(), MarketID: uuid.New()}

	p.AddShares(OutcomeYes, 90)
	p.AddShares(OutcomeNo, 40)

	if p.SharesFor(OutcomeYes) != 90 || p.SharesFor(OutcomeNo) != 40 {
		t.Fatalf("holdings = %d/%d, want 90/40", p.YesShares, p.NoShares)
	}

	if p.RemoveShares(OutcomeYes, 100) {
		t.Error("removed more yes shares than held")
	}
	if !p.RemoveShares(OutcomeYes, 90) {
		t.Error("failed to remove full yes holding")
	}
	if p.YesShares != 0 {
		t.Errorf("yes shares = %d after full removal", p.YesShares)
	}
}

func TestPositionReduceDeposited_Saturates(t *testing.T) {
	p := &Position{TotalDeposited: 50}
	p.ReduceDeposited(80)
	if p.TotalDeposited != 0 {
		t.Fatalf("deposited = %d, want saturation at 0", p.TotalDeposited)
	}
}

func TestMarketCanonicalBytes_Deterministic(t *testing.T) {
	m := testMarket()
	a := m.CanonicalBytes()
	b := m.CanonicalBytes()
	if string(a) != string(b) {
		t.Fatal("canonical bytes not stable")
	}

	m.YesReserve++
	if string(m.CanonicalBytes()) == string(a) {
		t.Fatal("canonical bytes did not change with reserve")
	}
}

func TestDisputeManager(t *testing.T) {
	dm := NewDisputeManager()
	marketID := uuid.New()

	if dm.HasLiveDispute(marketID) {
		t.Fatal("fresh manager reports live dispute")
	}

	d := &DisputeRecord{
		DisputeID: uuid.New(),
		MarketID:  marketID,
		Disputer:  uuid.New(),
		Status:    DisputeOpen,
	}
	dm.AddDispute(d)

	if !dm.HasLiveDispute(marketID) {
		t.Fatal("open dispute not reported live")
	}

	d.Status = DisputeRejected
	if dm.HasLiveDispute(marketID) {
		t.Fatal("settled dispute still reported live")
	}
	if dm.GetDispute(marketID) == nil {
		t.Fatal("settled dispute record dropped")
	}
}
