package core_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"PredictLedger/internal/core"
	"PredictLedger/internal/domain"
	"PredictLedger/internal/event"
	"PredictLedger/internal/ledger"
	"PredictLedger/internal/state"
)

// --- Test helpers ---

// Market timing used throughout: created at tNow, betting window
// [tStart, tLock), oracle window from tEnd.
const (
	tStart = int64(1_000)
	tNow   = int64(1_500)
	tLock  = int64(2_000)
	tEnd   = int64(3_000)
)

// harness drives a DeterministicCore with per-partition source
// sequence bookkeeping, the way the ingestion layer would.
type harness struct {
	t         *testing.T
	c         *core.DeterministicCore
	persistCh chan core.CoreOutput
	projCh    chan core.CoreOutput
	seqs      map[string]int64
	admin     uuid.UUID
	treasury  uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	persistCh := make(chan core.CoreOutput, 1024)
	projCh := make(chan core.CoreOutput, 1024)
	admin := uuid.New()
	treasury := uuid.New()
	platform := state.NewPlatform(admin, treasury, 500, 200)
	c := core.NewDeterministicCore(0, platform, persistCh, projCh, nil, nil)
	return &harness{
		t:         t,
		c:         c,
		persistCh: persistCh,
		projCh:    projCh,
		seqs:      make(map[string]int64),
		admin:     admin,
		treasury:  treasury,
	}
}

// nextSeq hands out the next source sequence for a partition. Every
// submitted command consumes one, accepted or not, matching how the
// validator advances on validation.
func (h *harness) nextSeq(evt event.Event) int64 {
	partition := "global"
	if m := evt.MarketID(); m != nil {
		partition = *m
	}
	seq := h.seqs[partition]
	h.seqs[partition] = seq + 1
	return seq
}

func (h *harness) process(evt event.Event) error {
	return h.c.ProcessEvent(evt)
}

func (h *harness) mustProcess(evt event.Event) {
	h.t.Helper()
	if err := h.c.ProcessEvent(evt); err != nil {
		h.t.Fatalf("ProcessEvent(%s) failed: %v", evt.EventType(), err)
	}
}

func (h *harness) deposit(userID uuid.UUID, amount int64) *event.Deposit {
	evt := &event.Deposit{
		CommandID: uuid.New(),
		UserID:    userID,
		Amount:    amount,
		Timestamp: time.Unix(tNow, 0),
	}
	evt.CommandSeq = h.nextSeq(evt)
	return evt
}

func (h *harness) withdrawal(userID uuid.UUID, amount int64) *event.Withdrawal {
	evt := &event.Withdrawal{
		CommandID: uuid.New(),
		UserID:    userID,
		Amount:    amount,
		Timestamp: time.Unix(tNow, 0),
	}
	evt.CommandSeq = h.nextSeq(evt)
	return evt
}

func (h *harness) createMarket(marketID uuid.UUID, liquidity int64) *event.CreateMarket {
	evt := &event.CreateMarket{
		CommandID:        uuid.New(),
		Creator:          h.admin,
		Market:           marketID,
		Title:            "BTC above 100k by Friday",
		Description:      "Settles Yes if the reference price closes above the threshold.",
		Category:         "crypto",
		OracleSource:     state.OracleManualAdmin,
		StartTimestamp:   tStart,
		LockTimestamp:    tLock,
		EndTimestamp:     tEnd,
		MinBet:           10,
		MaxBet:           1_000_000,
		FeeBps:           200,
		InitialLiquidity: liquidity,
		Timestamp:        time.Unix(tNow, 0),
	}
	evt.CommandSeq = h.nextSeq(evt)
	return evt
}

func (h *harness) createPythMarket(marketID uuid.UUID, feedID string, threshold int64) *event.CreateMarket {
	evt := h.createMarket(marketID, 1_000)
	evt.OracleSource = state.OraclePyth
	evt.OracleFeed = feedID
	evt.OracleThreshold = threshold
	return evt
}

func (h *harness) placeBet(userID, marketID uuid.UUID, outcome state.Outcome, amount, minShares int64) *event.PlaceBet {
	evt := &event.PlaceBet{
		CommandID:    uuid.New(),
		UserID:       userID,
		Market:       marketID,
		Outcome:      outcome,
		Amount:       amount,
		MinSharesOut: minShares,
		Timestamp:    time.Unix(tNow, 0),
	}
	evt.CommandSeq = h.nextSeq(evt)
	return evt
}

func (h *harness) cancelBet(userID, marketID, mint uuid.UUID, shares int64) *event.CancelBet {
	evt := &event.CancelBet{
		CommandID:    uuid.New(),
		UserID:       userID,
		Market:       marketID,
		Mint:         mint,
		SharesToBurn: shares,
		Timestamp:    time.Unix(tNow, 0),
	}
	evt.CommandSeq = h.nextSeq(evt)
	return evt
}

func (h *harness) resolveManual(caller, marketID uuid.UUID, outcome state.Outcome, ts int64) *event.ResolveMarket {
	evt := &event.ResolveMarket{
		CommandID: uuid.New(),
		Caller:    caller,
		Market:    marketID,
		Outcome:   &outcome,
		Timestamp: time.Unix(ts, 0),
	}
	evt.CommandSeq = h.nextSeq(evt)
	return evt
}

func (h *harness) resolvePyth(caller, marketID uuid.UUID, feedID string, price, publishTime, ts int64) *event.ResolveMarket {
	evt := &event.ResolveMarket{
		CommandID:   uuid.New(),
		Caller:      caller,
		Market:      marketID,
		FeedID:      feedID,
		Price:       price,
		PublishTime: publishTime,
		Timestamp:   time.Unix(ts, 0),
	}
	evt.CommandSeq = h.nextSeq(evt)
	return evt
}

func (h *harness) claim(userID, marketID uuid.UUID, ts int64) *event.ClaimPayout {
	evt := &event.ClaimPayout{
		CommandID: uuid.New(),
		UserID:    userID,
		Market:    marketID,
		Timestamp: time.Unix(ts, 0),
	}
	evt.CommandSeq = h.nextSeq(evt)
	return evt
}

func (h *harness) openDispute(disputer, marketID uuid.UUID, reason string, ts int64) *event.OpenDispute {
	evt := &event.OpenDispute{
		CommandID: uuid.New(),
		Disputer:  disputer,
		Market:    marketID,
		Reason:    reason,
		Timestamp: time.Unix(ts, 0),
	}
	evt.CommandSeq = h.nextSeq(evt)
	return evt
}

func (h *harness) settleDispute(caller, marketID uuid.UUID, outcome *state.Outcome, ts int64) *event.SettleDispute {
	evt := &event.SettleDispute{
		CommandID: uuid.New(),
		Caller:    caller,
		Market:    marketID,
		Outcome:   outcome,
		Timestamp: time.Unix(ts, 0),
	}
	evt.CommandSeq = h.nextSeq(evt)
	return evt
}

func (h *harness) userBalance(userID uuid.UUID) int64 {
	return h.c.Balance(ledger.NewUserAccountKey(userID, ledger.CollateralAssetID))
}

func (h *harness) vaultBalance(marketID uuid.UUID) int64 {
	return h.c.Balance(ledger.NewVaultAccountKey(marketID, ledger.CollateralAssetID))
}

func (h *harness) treasuryBalance() int64 {
	return h.c.Balance(ledger.NewSystemAccountKey(ledger.SubTypeSystemTreasury, ledger.CollateralAssetID))
}

func drainOutputs(ch chan core.CoreOutput) []core.CoreOutput {
	var outputs []core.CoreOutput
	for {
		select {
		case o := <-ch:
			outputs = append(outputs, o)
		default:
			return outputs
		}
	}
}

// fundedMarket deposits for the admin user and one extra user, creates
// a ManualAdmin market with 1000/1000 reserves at 200 bps, and returns
// the market record.
func (h *harness) fundedMarket(marketID uuid.UUID, users ...uuid.UUID) *state.Market {
	h.t.Helper()
	for _, u := range users {
		h.mustProcess(h.deposit(u, 1_000))
	}
	h.mustProcess(h.createMarket(marketID, 1_000))
	m := h.c.MarketState(marketID)
	if m == nil {
		h.t.Fatal("market not registered")
	}
	return m
}

// --- Deposits and withdrawals ---

func TestDeposit_CreditsCollateral(t *testing.T) {
	h := newHarness(t)
	userID := uuid.New()

	h.mustProcess(h.deposit(userID, 1_000))

	outputs := drainOutputs(h.persistCh)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outputs))
	}
	batch := outputs[0].Batch
	if len(batch.Journals) != 1 {
		t.Fatalf("expected 1 journal, got %d", len(batch.Journals))
	}
	j := batch.Journals[0]
	if j.JournalType != ledger.JournalTypeDeposit {
		t.Errorf("expected deposit journal, got %s", j.JournalType)
	}
	if j.Amount != 1_000 {
		t.Errorf("expected amount 1000, got %d", j.Amount)
	}
	if got := h.userBalance(userID); got != 1_000 {
		t.Errorf("expected balance 1000, got %d", got)
	}
}

func TestWithdrawal_InsufficientBalance_Fails(t *testing.T) {
	h := newHarness(t)
	userID := uuid.New()

	h.mustProcess(h.deposit(userID, 100))

	err := h.process(h.withdrawal(userID, 200))
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := h.userBalance(userID); got != 100 {
		t.Errorf("balance mutated on rejected withdrawal: %d", got)
	}

	// Partial withdrawal within balance succeeds
	h.mustProcess(h.withdrawal(userID, 60))
	if got := h.userBalance(userID); got != 40 {
		t.Errorf("expected balance 40, got %d", got)
	}
}

// --- Idempotency and ordering ---

func TestDuplicateCommand_SkippedWithoutEffect(t *testing.T) {
	h := newHarness(t)
	userID := uuid.New()

	dep := h.deposit(userID, 1_000)
	h.mustProcess(dep)
	seqAfter := h.c.GetSequence()
	drainOutputs(h.persistCh)

	// Redelivery: same command ID, same source sequence
	if err := h.process(dep); err != nil {
		t.Fatalf("duplicate should be silently skipped, got %v", err)
	}
	if h.c.GetSequence() != seqAfter {
		t.Errorf("duplicate advanced sequence: %d -> %d", seqAfter, h.c.GetSequence())
	}
	if outputs := drainOutputs(h.persistCh); len(outputs) != 0 {
		t.Errorf("duplicate emitted %d outputs", len(outputs))
	}
	if got := h.userBalance(userID); got != 1_000 {
		t.Errorf("duplicate double-applied: balance %d", got)
	}
}

func TestSequenceGap_Rejected(t *testing.T) {
	h := newHarness(t)
	userID := uuid.New()

	h.mustProcess(h.deposit(userID, 1_000))

	gapped := &event.Deposit{
		CommandID:  uuid.New(),
		UserID:     userID,
		Amount:     500,
		CommandSeq: 5, // expected 1
		Timestamp:  time.Unix(tNow, 0),
	}
	if err := h.process(gapped); err == nil {
		t.Fatal("expected sequence gap error, got nil")
	}
}

// --- Market creation ---

func TestCreateMarket_RegistersActiveMarket(t *testing.T) {
	h := newHarness(t)
	marketID := uuid.New()

	h.mustProcess(h.createMarket(marketID, 1_000))

	m := h.c.MarketState(marketID)
	if m == nil {
		t.Fatal("market not registered")
	}
	if m.Status != state.StatusActive {
		t.Errorf("expected Active (created inside betting window), got %s", m.Status)
	}
	if m.YesReserve != 1_000 || m.NoReserve != 1_000 {
		t.Errorf("expected seeded reserves 1000/1000, got %d/%d", m.YesReserve, m.NoReserve)
	}
	if m.TotalCollateral != 0 {
		t.Errorf("virtual liquidity must not count as collateral, got %d", m.TotalCollateral)
	}
	if m.YesMint == m.NoMint {
		t.Error("share mints must differ")
	}

	// Mints are derived from the market ID, so a replay regenerates them
	if m.YesMint != uuid.NewSHA1(marketID, []byte("yes")) {
		t.Error("yes mint not derived from market ID")
	}

	// Creation moves no collateral
	outputs := drainOutputs(h.persistCh)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outputs))
	}
	if len(outputs[0].Batch.Journals) != 0 {
		t.Errorf("creation emitted %d journals", len(outputs[0].Batch.Journals))
	}
}

func TestCreateMarket_DuplicateID_Fails(t *testing.T) {
	h := newHarness(t)
	marketID := uuid.New()

	h.mustProcess(h.createMarket(marketID, 1_000))

	err := h.process(h.createMarket(marketID, 2_000))
	if !errors.Is(err, domain.ErrMarketExists) {
		t.Fatalf("expected ErrMarketExists, got %v", err)
	}
}

func TestCreateMarket_Guards(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name    string
		mutate  func(*event.CreateMarket)
		wantErr error
	}{
		{
			name:    "lock not after start",
			mutate:  func(e *event.CreateMarket) { e.LockTimestamp = e.StartTimestamp },
			wantErr: domain.ErrInvalidTimestamps,
		},
		{
			name:    "end not after lock",
			mutate:  func(e *event.CreateMarket) { e.EndTimestamp = e.LockTimestamp },
			wantErr: domain.ErrInvalidTimestamps,
		},
		{
			name:    "fee above cap",
			mutate:  func(e *event.CreateMarket) { e.FeeBps = 1_001 },
			wantErr: domain.ErrFeeExceedsMax,
		},
		{
			name:    "zero liquidity",
			mutate:  func(e *event.CreateMarket) { e.InitialLiquidity = 0 },
			wantErr: domain.ErrInvalidLiquidity,
		},
		{
			name: "title too long",
			mutate: func(e *event.CreateMarket) {
				e.Title = string(make([]byte, state.MaxTitleLen+1))
			},
			wantErr: domain.ErrTitleTooLong,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt := h.createMarket(uuid.New(), 1_000)
			tt.mutate(evt)
			err := h.process(evt)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

// --- Bet placement ---

// Seeded 1000/1000 at 200 bps, bet 100 on Yes: fee=ceil(100*200/10000)=2,
// net=98, new_no=1098, new_yes=floor(1e6/1098)=910, shares=90.
func TestPlaceBet_PoolPricing(t *testing.T) {
	h := newHarness(t)
	userID := uuid.New()
	marketID := uuid.New()
	h.fundedMarket(marketID, userID)
	drainOutputs(h.persistCh)

	h.mustProcess(h.placeBet(userID, marketID, state.OutcomeYes, 100, 90))

	m := h.c.MarketState(marketID)
	if m.YesReserve != 910 || m.NoReserve != 1_098 {
		t.Errorf("expected reserves 910/1098, got %d/%d", m.YesReserve, m.NoReserve)
	}
	if m.TotalCollateral != 98 {
		t.Errorf("expected total_collateral 98, got %d", m.TotalCollateral)
	}

	pos := h.c.PositionState(userID, marketID)
	if pos == nil || pos.YesShares != 90 {
		t.Fatalf("expected 90 yes shares, got %+v", pos)
	}
	if got := h.c.ShareSupply(m.YesMint); got != 90 {
		t.Errorf("expected yes supply 90, got %d", got)
	}

	// Ledger legs: net to vault, fee to treasury
	if got := h.vaultBalance(marketID); got != 98 {
		t.Errorf("expected vault 98, got %d", got)
	}
	if got := h.treasuryBalance(); got != 2 {
		t.Errorf("expected treasury 2, got %d", got)
	}
	if got := h.userBalance(userID); got != 900 {
		t.Errorf("expected user 900, got %d", got)
	}

	outputs := drainOutputs(h.persistCh)
	last := outputs[len(outputs)-1]
	if len(last.Batch.Journals) != 2 {
		t.Fatalf("expected 2 journals, got %d", len(last.Batch.Journals))
	}
}

func TestPlaceBet_SlippageExceeded(t *testing.T) {
	h := newHarness(t)
	userID := uuid.New()
	marketID := uuid.New()
	h.fundedMarket(marketID, userID)

	err := h.process(h.placeBet(userID, marketID, state.OutcomeYes, 100, 91))
	if !errors.Is(err, domain.ErrSlippageExceeded) {
		t.Fatalf("expected ErrSlippageExceeded, got %v", err)
	}

	// Nothing committed on rejection
	m := h.c.MarketState(marketID)
	if m.YesReserve != 1_000 || m.NoReserve != 1_000 {
		t.Errorf("reserves mutated: %d/%d", m.YesReserve, m.NoReserve)
	}
	if got := h.userBalance(userID); got != 1_000 {
		t.Errorf("balance mutated: %d", got)
	}
}

func TestPlaceBet_Boundaries(t *testing.T) {
	h := newHarness(t)
	userID := uuid.New()
	marketID := uuid.New()
	h.fundedMarket(marketID, userID)

	// min_bet - 1 fails, exactly min_bet succeeds
	err := h.process(h.placeBet(userID, marketID, state.OutcomeYes, 9, 0))
	if !errors.Is(err, domain.ErrBelowMinBet) {
		t.Fatalf("expected ErrBelowMinBet, got %v", err)
	}
	h.mustProcess(h.placeBet(userID, marketID, state.OutcomeYes, 10, 0))

	// bet after lock fails as closed, not as inactive
	late := h.placeBet(userID, marketID, state.OutcomeYes, 100, 0)
	late.Timestamp = time.Unix(tLock, 0)
	err = h.process(late)
	if !errors.Is(err, domain.ErrBettingClosed) {
		t.Fatalf("expected ErrBettingClosed, got %v", err)
	}
}

func TestPlaceBet_UnknownMarket(t *testing.T) {
	h := newHarness(t)
	userID := uuid.New()
	h.mustProcess(h.deposit(userID, 1_000))

	err := h.process(h.placeBet(userID, uuid.New(), state.OutcomeYes, 100, 0))
	if !errors.Is(err, domain.ErrMarketNotFound) {
		t.Fatalf("expected ErrMarketNotFound, got %v", err)
	}
}

// --- Bet cancellation ---

// After the pricing bet (reserves 910/1098, k=999180), selling 45 yes:
// new_yes=955, new_no=floor(999180/955)=1046, raw=52, fee=ceil(52*2%)=2,
// refund=50.
func TestCancelBet_PartialExit(t *testing.T) {
	h := newHarness(t)
	userID := uuid.New()
	marketID := uuid.New()
	h.fundedMarket(marketID, userID)
	h.mustProcess(h.placeBet(userID, marketID, state.OutcomeYes, 100, 0))
	drainOutputs(h.persistCh)

	m := h.c.MarketState(marketID)
	h.mustProcess(h.cancelBet(userID, marketID, m.YesMint, 45))

	if m.YesReserve != 955 || m.NoReserve != 1_046 {
		t.Errorf("expected reserves 955/1046, got %d/%d", m.YesReserve, m.NoReserve)
	}
	// total_collateral drops by the raw refund: the exit fee is paid
	// out of the vault, not on top of it
	if m.TotalCollateral != 46 {
		t.Errorf("expected total_collateral 46, got %d", m.TotalCollateral)
	}
	if got := h.vaultBalance(marketID); got != 46 {
		t.Errorf("expected vault 46, got %d", got)
	}
	if got := h.userBalance(userID); got != 950 {
		t.Errorf("expected user 950 (900 + 50 refund), got %d", got)
	}
	// entry fee 2 + exit fee 2
	if got := h.treasuryBalance(); got != 4 {
		t.Errorf("expected treasury 4, got %d", got)
	}

	pos := h.c.PositionState(userID, marketID)
	if pos.YesShares != 45 {
		t.Errorf("expected 45 shares left, got %d", pos.YesShares)
	}
	if got := h.c.ShareSupply(m.YesMint); got != 45 {
		t.Errorf("expected supply 45, got %d", got)
	}
}

// Buy-side floor rounding grants the bettor a fractional extra share,
// so a full round-trip exit can demand more than the vault holds. The
// subtraction must fail explicitly instead of wrapping.
func TestCancelBet_FullExitOverdraw_RejectedExplicitly(t *testing.T) {
	h := newHarness(t)
	userID := uuid.New()
	marketID := uuid.New()
	h.fundedMarket(marketID, userID)
	h.mustProcess(h.placeBet(userID, marketID, state.OutcomeYes, 100, 0))

	m := h.c.MarketState(marketID)
	// Selling all 90 shares computes raw refund 99 against a vault of 98
	err := h.process(h.cancelBet(userID, marketID, m.YesMint, 90))
	if !errors.Is(err, domain.ErrInsufficientVault) {
		t.Fatalf("expected ErrInsufficientVault, got %v", err)
	}

	// State untouched
	if m.YesReserve != 910 || m.NoReserve != 1_098 {
		t.Errorf("reserves mutated: %d/%d", m.YesReserve, m.NoReserve)
	}
	if pos := h.c.PositionState(userID, marketID); pos.YesShares != 90 {
		t.Errorf("position mutated: %d", pos.YesShares)
	}
}

func TestCancelBet_ForeignMint_Rejected(t *testing.T) {
	h := newHarness(t)
	userID := uuid.New()
	marketID := uuid.New()
	h.fundedMarket(marketID, userID)
	h.mustProcess(h.placeBet(userID, marketID, state.OutcomeYes, 100, 0))

	err := h.process(h.cancelBet(userID, marketID, uuid.New(), 10))
	if !errors.Is(err, domain.ErrInvalidMint) {
		t.Fatalf("expected ErrInvalidMint, got %v", err)
	}
}

// --- Resolution ---

func TestResolveManual_EarlyResolutionAllowed(t *testing.T) {
	h := newHarness(t)
	marketID := uuid.New()
	h.fundedMarket(marketID)

	// tNow is well before end_timestamp; ManualAdmin has no time guard
	h.mustProcess(h.resolveManual(h.admin, marketID, state.OutcomeYes, tNow))

	m := h.c.MarketState(marketID)
	if m.Status != state.StatusResolved {
		t.Errorf("expected Resolved, got %s", m.Status)
	}
	if m.ResolvedOutcome == nil || *m.ResolvedOutcome != state.OutcomeYes {
		t.Errorf("expected outcome Yes, got %v", m.ResolvedOutcome)
	}
	if m.ResolvedAt == nil || *m.ResolvedAt != tNow {
		t.Errorf("expected resolved_at %d, got %v", tNow, m.ResolvedAt)
	}
}

func TestResolveManual_NonAdmin_Rejected(t *testing.T) {
	h := newHarness(t)
	marketID := uuid.New()
	h.fundedMarket(marketID)

	err := h.process(h.resolveManual(uuid.New(), marketID, state.OutcomeYes, tNow))
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestResolve_Twice_Rejected(t *testing.T) {
	h := newHarness(t)
	marketID := uuid.New()
	h.fundedMarket(marketID)
	h.mustProcess(h.resolveManual(h.admin, marketID, state.OutcomeYes, tNow))

	err := h.process(h.resolveManual(h.admin, marketID, state.OutcomeNo, tNow))
	if !errors.Is(err, domain.ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}
}

func TestResolvePyth_GuardsAndThreshold(t *testing.T) {
	feedID := "0xff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace"

	t.Run("before end fails round incomplete", func(t *testing.T) {
		h := newHarness(t)
		marketID := uuid.New()
		h.mustProcess(h.createPythMarket(marketID, feedID, 100_000))
		err := h.process(h.resolvePyth(uuid.New(), marketID, feedID, 150_000, tNow, tNow))
		if !errors.Is(err, domain.ErrRoundIncomplete) {
			t.Fatalf("expected ErrRoundIncomplete, got %v", err)
		}
	})

	t.Run("mismatched feed", func(t *testing.T) {
		h := newHarness(t)
		marketID := uuid.New()
		h.mustProcess(h.createPythMarket(marketID, feedID, 100_000))
		err := h.process(h.resolvePyth(uuid.New(), marketID, "0xother", 150_000, tEnd, tEnd))
		if !errors.Is(err, domain.ErrOracleMismatch) {
			t.Fatalf("expected ErrOracleMismatch, got %v", err)
		}
	})

	t.Run("stale publish time", func(t *testing.T) {
		h := newHarness(t)
		marketID := uuid.New()
		h.mustProcess(h.createPythMarket(marketID, feedID, 100_000))
		err := h.process(h.resolvePyth(uuid.New(), marketID, feedID, 150_000, tEnd-61, tEnd))
		if !errors.Is(err, domain.ErrOracleStale) {
			t.Fatalf("expected ErrOracleStale, got %v", err)
		}
	})

	t.Run("price above threshold resolves yes", func(t *testing.T) {
		h := newHarness(t)
		marketID := uuid.New()
		h.mustProcess(h.createPythMarket(marketID, feedID, 100_000))
		h.mustProcess(h.resolvePyth(uuid.New(), marketID, feedID, 150_000, tEnd, tEnd))
		m := h.c.MarketState(marketID)
		if m.ResolvedOutcome == nil || *m.ResolvedOutcome != state.OutcomeYes {
			t.Fatalf("expected Yes, got %v", m.ResolvedOutcome)
		}
		if m.ResolutionPrice == nil || *m.ResolutionPrice != 150_000 {
			t.Errorf("expected resolution price recorded, got %v", m.ResolutionPrice)
		}
	})

	t.Run("price exactly at threshold resolves no", func(t *testing.T) {
		h := newHarness(t)
		marketID := uuid.New()
		h.mustProcess(h.createPythMarket(marketID, feedID, 100_000))
		h.mustProcess(h.resolvePyth(uuid.New(), marketID, feedID, 100_000, tEnd, tEnd))
		m := h.c.MarketState(marketID)
		if m.ResolvedOutcome == nil || *m.ResolvedOutcome != state.OutcomeNo {
			t.Fatalf("expected No, got %v", m.ResolvedOutcome)
		}
	})
}

// --- Payout claims ---

// Two bettors, Yes wins: the yes holder drains the whole pool.
// A buys Yes 100 (shares 90, pool 910/1098), B buys No 100:
// new_yes=1008, new_no=floor(999180/1008)=991, B gets 107 no shares.
// Collateral 196; A claims floor(90*196/90)=196.
func TestClaimPayout_WinnerDrainsPool(t *testing.T) {
	h := newHarness(t)
	userA := uuid.New()
	userB := uuid.New()
	marketID := uuid.New()
	h.fundedMarket(marketID, userA, userB)
	h.mustProcess(h.placeBet(userA, marketID, state.OutcomeYes, 100, 0))
	h.mustProcess(h.placeBet(userB, marketID, state.OutcomeNo, 100, 0))
	h.mustProcess(h.resolveManual(h.admin, marketID, state.OutcomeYes, tEnd))

	h.mustProcess(h.claim(userA, marketID, tEnd))

	if got := h.userBalance(userA); got != 900+196 {
		t.Errorf("expected A balance 1096, got %d", got)
	}
	if got := h.vaultBalance(marketID); got != 0 {
		t.Errorf("expected drained vault, got %d", got)
	}
	m := h.c.MarketState(marketID)
	if m.TotalCollateral != 0 {
		t.Errorf("expected total_collateral 0, got %d", m.TotalCollateral)
	}

	pos := h.c.PositionState(userA, marketID)
	if !pos.HasClaimed() || pos.TotalClaimed != 196 {
		t.Errorf("expected claim of 196 recorded, got %d", pos.TotalClaimed)
	}
	if pos.YesShares != 0 {
		t.Errorf("claim must burn shares, %d remain", pos.YesShares)
	}
}

func TestClaimPayout_LoserGetsNothing(t *testing.T) {
	h := newHarness(t)
	userA := uuid.New()
	userB := uuid.New()
	marketID := uuid.New()
	h.fundedMarket(marketID, userA, userB)
	h.mustProcess(h.placeBet(userA, marketID, state.OutcomeYes, 100, 0))
	h.mustProcess(h.placeBet(userB, marketID, state.OutcomeNo, 100, 0))
	h.mustProcess(h.resolveManual(h.admin, marketID, state.OutcomeYes, tEnd))

	err := h.process(h.claim(userB, marketID, tEnd))
	if !errors.Is(err, domain.ErrNoPosition) {
		t.Fatalf("expected ErrNoPosition for losing side, got %v", err)
	}
}

func TestClaimPayout_Twice_Rejected(t *testing.T) {
	h := newHarness(t)
	userA := uuid.New()
	marketID := uuid.New()
	h.fundedMarket(marketID, userA)
	h.mustProcess(h.placeBet(userA, marketID, state.OutcomeYes, 100, 0))
	h.mustProcess(h.resolveManual(h.admin, marketID, state.OutcomeYes, tEnd))
	h.mustProcess(h.claim(userA, marketID, tEnd))

	err := h.process(h.claim(userA, marketID, tEnd))
	if !errors.Is(err, domain.ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed, got %v", err)
	}
}

func TestClaimPayout_BeforeResolution_Rejected(t *testing.T) {
	h := newHarness(t)
	userA := uuid.New()
	marketID := uuid.New()
	h.fundedMarket(marketID, userA)
	h.mustProcess(h.placeBet(userA, marketID, state.OutcomeYes, 100, 0))

	err := h.process(h.claim(userA, marketID, tNow))
	if !errors.Is(err, domain.ErrMarketNotResolved) {
		t.Fatalf("expected ErrMarketNotResolved, got %v", err)
	}
}

// Invalid outcome settles both sides against the combined supply, and
// supply read at claim time keeps the per-share rate constant:
// A holds 90 yes, B holds 107 no, collateral 196.
// A: floor(90*196/197)=89, leaving 107 collateral and 107 supply.
// B: floor(107*107/107)=107 — pool fully distributed.
func TestClaimPayout_InvalidOutcome_Proportional(t *testing.T) {
	h := newHarness(t)
	userA := uuid.New()
	userB := uuid.New()
	marketID := uuid.New()
	h.fundedMarket(marketID, userA, userB)
	h.mustProcess(h.placeBet(userA, marketID, state.OutcomeYes, 100, 0))
	h.mustProcess(h.placeBet(userB, marketID, state.OutcomeNo, 100, 0))
	h.mustProcess(h.resolveManual(h.admin, marketID, state.OutcomeInvalid, tEnd))

	h.mustProcess(h.claim(userA, marketID, tEnd))
	if got := h.c.PositionState(userA, marketID).TotalClaimed; got != 89 {
		t.Errorf("expected A payout 89, got %d", got)
	}

	h.mustProcess(h.claim(userB, marketID, tEnd))
	if got := h.c.PositionState(userB, marketID).TotalClaimed; got != 107 {
		t.Errorf("expected B payout 107, got %d", got)
	}

	if got := h.vaultBalance(marketID); got != 0 {
		t.Errorf("expected fully distributed vault, got %d", got)
	}
}

// --- Disputes ---

func TestDispute_FullCycle(t *testing.T) {
	h := newHarness(t)
	userA := uuid.New()
	disputer := uuid.New()
	marketID := uuid.New()
	h.fundedMarket(marketID, userA, disputer)
	h.mustProcess(h.placeBet(userA, marketID, state.OutcomeYes, 100, 0))
	h.mustProcess(h.resolveManual(h.admin, marketID, state.OutcomeYes, tEnd))

	// Open: bond moves to the sink, market freezes
	h.mustProcess(h.openDispute(disputer, marketID, "settlement source disagrees", tEnd+10))
	m := h.c.MarketState(marketID)
	if m.Status != state.StatusDisputed {
		t.Fatalf("expected Disputed, got %s", m.Status)
	}
	if got := h.userBalance(disputer); got != 500 {
		t.Errorf("expected bond 500 withheld, balance %d", got)
	}
	bondSink := ledger.NewSystemAccountKey(ledger.SubTypeSystemDisputeBond, ledger.CollateralAssetID)
	if got := h.c.Balance(bondSink); got != 500 {
		t.Errorf("expected bond sink 500, got %d", got)
	}

	// Claims are frozen while disputed
	err := h.process(h.claim(userA, marketID, tEnd+20))
	if !errors.Is(err, domain.ErrMarketNotResolved) {
		t.Fatalf("expected claims frozen, got %v", err)
	}

	// Second dispute while one is live
	err = h.process(h.openDispute(disputer, marketID, "again", tEnd+30))
	if !errors.Is(err, domain.ErrDisputeExists) {
		t.Fatalf("expected ErrDisputeExists, got %v", err)
	}

	// Upheld: outcome overwritten, market returns to Resolved
	newOutcome := state.OutcomeNo
	h.mustProcess(h.settleDispute(h.admin, marketID, &newOutcome, tEnd+40))
	if m.Status != state.StatusResolved {
		t.Errorf("expected Resolved after settle, got %s", m.Status)
	}
	if m.ResolvedOutcome == nil || *m.ResolvedOutcome != state.OutcomeNo {
		t.Errorf("expected overridden outcome No, got %v", m.ResolvedOutcome)
	}

	// Settling again fails
	err = h.process(h.settleDispute(h.admin, marketID, nil, tEnd+50))
	if !errors.Is(err, domain.ErrDisputeNotOpen) {
		t.Fatalf("expected ErrDisputeNotOpen, got %v", err)
	}
}

func TestDispute_Rejected_OutcomeStands(t *testing.T) {
	h := newHarness(t)
	disputer := uuid.New()
	marketID := uuid.New()
	h.fundedMarket(marketID, disputer)
	h.mustProcess(h.resolveManual(h.admin, marketID, state.OutcomeYes, tEnd))
	h.mustProcess(h.openDispute(disputer, marketID, "disagree", tEnd+10))

	h.mustProcess(h.settleDispute(h.admin, marketID, nil, tEnd+20))

	m := h.c.MarketState(marketID)
	if m.ResolvedOutcome == nil || *m.ResolvedOutcome != state.OutcomeYes {
		t.Errorf("rejected dispute must not change the outcome, got %v", m.ResolvedOutcome)
	}
	if m.Status != state.StatusResolved {
		t.Errorf("expected Resolved, got %s", m.Status)
	}
}

func TestDispute_OnUnresolvedMarket_Rejected(t *testing.T) {
	h := newHarness(t)
	disputer := uuid.New()
	marketID := uuid.New()
	h.fundedMarket(marketID, disputer)

	err := h.process(h.openDispute(disputer, marketID, "too early", tNow))
	if !errors.Is(err, domain.ErrMarketNotResolved) {
		t.Fatalf("expected ErrMarketNotResolved, got %v", err)
	}
}

// --- Pause / unpause ---

func TestPauseUnpause_StatusRecomputed(t *testing.T) {
	h := newHarness(t)
	userID := uuid.New()
	marketID := uuid.New()
	h.fundedMarket(marketID, userID)

	pause := &event.PauseMarket{
		CommandID: uuid.New(),
		Caller:    h.admin,
		Market:    marketID,
		Timestamp: time.Unix(tNow, 0),
	}
	pause.CommandSeq = h.nextSeq(pause)
	h.mustProcess(pause)

	m := h.c.MarketState(marketID)
	if m.Status != state.StatusPaused {
		t.Fatalf("expected Paused, got %s", m.Status)
	}

	// No bets while paused
	err := h.process(h.placeBet(userID, marketID, state.OutcomeYes, 100, 0))
	if !errors.Is(err, domain.ErrMarketNotActive) {
		t.Fatalf("expected ErrMarketNotActive, got %v", err)
	}

	// Unpause after the lock time lands in Locked, not Active
	unpause := &event.UnpauseMarket{
		CommandID: uuid.New(),
		Caller:    h.admin,
		Market:    marketID,
		Timestamp: time.Unix(tLock+10, 0),
	}
	unpause.CommandSeq = h.nextSeq(unpause)
	h.mustProcess(unpause)

	if m.Status != state.StatusLocked {
		t.Errorf("expected recomputed Locked, got %s", m.Status)
	}
}

// --- Market cancellation and close ---

func TestCancelMarket_ClaimsSettleAsInvalid(t *testing.T) {
	h := newHarness(t)
	userA := uuid.New()
	marketID := uuid.New()
	h.fundedMarket(marketID, userA)
	h.mustProcess(h.placeBet(userA, marketID, state.OutcomeYes, 100, 0))

	cancel := &event.CancelMarket{
		CommandID: uuid.New(),
		Caller:    h.admin,
		Market:    marketID,
		Timestamp: time.Unix(tNow, 0),
	}
	cancel.CommandSeq = h.nextSeq(cancel)
	h.mustProcess(cancel)

	m := h.c.MarketState(marketID)
	if m.Status != state.StatusCancelled {
		t.Fatalf("expected Cancelled, got %s", m.Status)
	}

	// Sole holder against combined supply gets the whole pool back
	h.mustProcess(h.claim(userA, marketID, tNow+10))
	if got := h.c.PositionState(userA, marketID).TotalClaimed; got != 98 {
		t.Errorf("expected payout 98, got %d", got)
	}
}

func TestCloseMarket_RequiresZeroSupply(t *testing.T) {
	h := newHarness(t)
	userA := uuid.New()
	marketID := uuid.New()
	h.fundedMarket(marketID, userA)
	h.mustProcess(h.placeBet(userA, marketID, state.OutcomeYes, 100, 0))
	h.mustProcess(h.resolveManual(h.admin, marketID, state.OutcomeYes, tEnd))

	closeEvt := func(ts int64) *event.CloseMarket {
		e := &event.CloseMarket{
			CommandID: uuid.New(),
			Caller:    h.admin,
			Market:    marketID,
			Timestamp: time.Unix(ts, 0),
		}
		e.CommandSeq = h.nextSeq(e)
		return e
	}

	// Shares still outstanding
	err := h.process(closeEvt(tEnd + 10))
	if !errors.Is(err, domain.ErrOutstandingShares) {
		t.Fatalf("expected ErrOutstandingShares, got %v", err)
	}

	// Claim burns everything, then close removes the market
	h.mustProcess(h.claim(userA, marketID, tEnd+20))
	h.mustProcess(closeEvt(tEnd + 30))

	if h.c.MarketState(marketID) != nil {
		t.Error("closed market still registered")
	}
}

// --- Platform controls ---

func TestPlatformPause_BlocksBetsAndCreation(t *testing.T) {
	h := newHarness(t)
	userID := uuid.New()
	marketID := uuid.New()
	h.fundedMarket(marketID, userID)

	pp := &event.PausePlatform{CommandID: uuid.New(), Caller: h.admin, Timestamp: time.Unix(tNow, 0)}
	pp.CommandSeq = h.nextSeq(pp)
	h.mustProcess(pp)

	err := h.process(h.placeBet(userID, marketID, state.OutcomeYes, 100, 0))
	if !errors.Is(err, domain.ErrPlatformPaused) {
		t.Fatalf("expected ErrPlatformPaused for bet, got %v", err)
	}
	err = h.process(h.createMarket(uuid.New(), 1_000))
	if !errors.Is(err, domain.ErrPlatformPaused) {
		t.Fatalf("expected ErrPlatformPaused for create, got %v", err)
	}

	up := &event.UnpausePlatform{CommandID: uuid.New(), Caller: h.admin, Timestamp: time.Unix(tNow, 0)}
	up.CommandSeq = h.nextSeq(up)
	h.mustProcess(up)

	h.mustProcess(h.placeBet(userID, marketID, state.OutcomeYes, 100, 0))
}

func TestPlatformControls_NonAdmin_Rejected(t *testing.T) {
	h := newHarness(t)

	pp := &event.PausePlatform{CommandID: uuid.New(), Caller: uuid.New(), Timestamp: time.Unix(tNow, 0)}
	pp.CommandSeq = h.nextSeq(pp)
	err := h.process(pp)
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

// --- Hash chain ---

func TestHashChain_Continuity(t *testing.T) {
	h := newHarness(t)
	userID := uuid.New()
	marketID := uuid.New()
	h.fundedMarket(marketID, userID)
	h.mustProcess(h.placeBet(userID, marketID, state.OutcomeYes, 100, 0))
	h.mustProcess(h.resolveManual(h.admin, marketID, state.OutcomeYes, tEnd))
	h.mustProcess(h.claim(userID, marketID, tEnd))

	outputs := drainOutputs(h.persistCh)
	if len(outputs) < 4 {
		t.Fatalf("expected at least 4 outputs, got %d", len(outputs))
	}

	var zero [32]byte
	for i, o := range outputs {
		if o.Envelope.Sequence != int64(i) {
			t.Errorf("output %d: expected sequence %d, got %d", i, i, o.Envelope.Sequence)
		}
		if o.Envelope.StateHash == zero {
			t.Errorf("output %d: zero state hash", i)
		}
		if i > 0 && o.Envelope.PrevHash != outputs[i-1].Envelope.StateHash {
			t.Errorf("output %d: prev hash does not chain", i)
		}
	}

	if h.c.GetStateHash() != outputs[len(outputs)-1].Envelope.StateHash {
		t.Error("chain tip does not match last envelope")
	}
}

// --- Conservation ---

// Through a full bet/cancel/resolve/claim cycle every unit that left
// the custody boundary is accounted for across users, vaults, the
// treasury and the bond sink.
func TestConservation_FullCycle(t *testing.T) {
	h := newHarness(t)
	userA := uuid.New()
	userB := uuid.New()
	marketID := uuid.New()
	h.fundedMarket(marketID, userA, userB)
	h.mustProcess(h.placeBet(userA, marketID, state.OutcomeYes, 100, 0))
	h.mustProcess(h.placeBet(userB, marketID, state.OutcomeNo, 100, 0))
	h.mustProcess(h.cancelBet(userB, marketID, h.c.MarketState(marketID).NoMint, 50))
	h.mustProcess(h.resolveManual(h.admin, marketID, state.OutcomeYes, tEnd))
	h.mustProcess(h.claim(userA, marketID, tEnd))

	custody := h.c.Balance(ledger.NewExternalAccountKey(ledger.CollateralAssetID))
	total := custody +
		h.userBalance(userA) +
		h.userBalance(userB) +
		h.vaultBalance(marketID) +
		h.treasuryBalance()
	if total != 0 {
		t.Errorf("system not zero-sum: %d", total)
	}

	// Vault bookkeeping matches the market record
	m := h.c.MarketState(marketID)
	if h.vaultBalance(marketID) != m.TotalCollateral {
		t.Errorf("vault %d != total_collateral %d", h.vaultBalance(marketID), m.TotalCollateral)
	}
}

// --- Snapshot round trip ---

func TestSnapshot_RestoreRoundTrip(t *testing.T) {
	h := newHarness(t)
	userID := uuid.New()
	marketID := uuid.New()
	h.fundedMarket(marketID, userID)
	h.mustProcess(h.placeBet(userID, marketID, state.OutcomeYes, 100, 0))

	snap := h.c.CreateSnapshotState()

	// Fresh core restored from the snapshot
	h2 := newHarness(t)
	h2.c.RestoreFromSnapshot(snap)

	if h2.c.GetSequence() != h.c.GetSequence() {
		t.Errorf("sequence mismatch: %d vs %d", h2.c.GetSequence(), h.c.GetSequence())
	}
	if h2.c.GetStateHash() != h.c.GetStateHash() {
		t.Error("state hash mismatch after restore")
	}

	m := h2.c.MarketState(marketID)
	if m == nil || m.YesReserve != 910 || m.NoReserve != 1_098 {
		t.Fatalf("market not restored: %+v", m)
	}
	if got := h2.c.ShareSupply(m.YesMint); got != 90 {
		t.Errorf("share supply not restored: %d", got)
	}
	if got := h2.userBalance(userID); got != 900 {
		t.Errorf("balance not restored: %d", got)
	}

	// The restored core keeps processing from where the first stopped
	h2.seqs = h.seqs
	h2.mustProcess(h2.withdrawal(userID, 100))
	if got := h2.userBalance(userID); got != 800 {
		t.Errorf("expected 800 after withdrawal, got %d", got)
	}
}
