package ledger_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"PredictLedger/internal/domain"
	"PredictLedger/internal/ledger"
)

// ============================================================================
// Test: AccountKey
// ============================================================================

func TestAccountKey_UserPath(t *testing.T) {
	userID := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	key := ledger.NewUserAccountKey(userID, ledger.CollateralAssetID)

	path := key.AccountPath()
	expected := "user:550e8400-e29b-41d4-a716-446655440000:collateral:USDC"
	if path != expected {
		t.Errorf("got %q, want %q", path, expected)
	}
}

func TestAccountKey_VaultPath(t *testing.T) {
	marketID := uuid.MustParse("650e8400-e29b-41d4-a716-446655440000")
	key := ledger.NewVaultAccountKey(marketID, ledger.CollateralAssetID)

	path := key.AccountPath()
	expected := "market:650e8400-e29b-41d4-a716-446655440000:vault:USDC"
	if path != expected {
		t.Errorf("got %q, want %q", path, expected)
	}
}

func TestAccountKey_SystemPaths(t *testing.T) {
	treasury := ledger.NewSystemAccountKey(ledger.SubTypeSystemTreasury, ledger.CollateralAssetID)
	if treasury.AccountPath() != "system:treasury:USDC" {
		t.Errorf("got %q, want %q", treasury.AccountPath(), "system:treasury:USDC")
	}

	bond := ledger.NewSystemAccountKey(ledger.SubTypeSystemDisputeBond, ledger.CollateralAssetID)
	if bond.AccountPath() != "system:dispute_bond:USDC" {
		t.Errorf("got %q, want %q", bond.AccountPath(), "system:dispute_bond:USDC")
	}

	custody := ledger.NewExternalAccountKey(ledger.CollateralAssetID)
	if custody.AccountPath() != "external:custody:USDC" {
		t.Errorf("got %q, want %q", custody.AccountPath(), "external:custody:USDC")
	}
}

func TestGetAssetID_Unknown(t *testing.T) {
	_, ok := ledger.GetAssetID("DOGE")
	if ok {
		t.Error("DOGE should not be a known asset")
	}
}

// ============================================================================
// Test: BalanceTracker
// ============================================================================

func TestBalanceTracker_InitialBalanceZero(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	if balance := bt.GetUserBalance(uuid.New(), ledger.CollateralAssetID); balance != 0 {
		t.Errorf("initial balance should be 0, got %d", balance)
	}
}

func TestBalanceTracker_ApplyJournal(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	userID := uuid.New()

	// Simulate deposit: debit user:collateral, credit external:custody
	j := ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       uuid.New(),
		DebitAccount:  ledger.NewUserAccountKey(userID, ledger.CollateralAssetID),
		CreditAccount: ledger.NewExternalAccountKey(ledger.CollateralAssetID),
		AssetID:       ledger.CollateralAssetID,
		Amount:        1_000_000,
	}

	bt.ApplyJournal(j)

	if got := bt.GetUserBalance(userID, ledger.CollateralAssetID); got != 1_000_000 {
		t.Errorf("collateral: got %d, want 1_000_000", got)
	}
	// Zero-sum: custody went negative by the same amount.
	if got := bt.GetBalance(ledger.NewExternalAccountKey(ledger.CollateralAssetID)); got != -1_000_000 {
		t.Errorf("custody: got %d, want -1_000_000", got)
	}
}

// ============================================================================
// Test: Batch validation
// ============================================================================

func TestBatch_Validate_RejectsEmpty(t *testing.T) {
	b := &ledger.Batch{BatchID: uuid.New()}
	if err := b.Validate(); err == nil {
		t.Error("empty batch should fail validation")
	}
}

func TestBatch_Validate_RejectsNonPositiveAmount(t *testing.T) {
	batchID := uuid.New()
	b := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			DebitAccount:  ledger.NewUserAccountKey(uuid.New(), ledger.CollateralAssetID),
			CreditAccount: ledger.NewExternalAccountKey(ledger.CollateralAssetID),
			Amount:        0,
		}},
	}
	if err := b.Validate(); err == nil {
		t.Error("zero-amount journal should fail validation")
	}
}

func TestBatch_Validate_RejectsSelfTransfer(t *testing.T) {
	batchID := uuid.New()
	key := ledger.NewUserAccountKey(uuid.New(), ledger.CollateralAssetID)
	b := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			DebitAccount:  key,
			CreditAccount: key,
			Amount:        100,
		}},
	}
	if err := b.Validate(); err == nil {
		t.Error("self-transfer should fail validation")
	}
}

// ============================================================================
// Test: JournalGenerator
// ============================================================================

func fundedTracker(t *testing.T, userID uuid.UUID, amount int64) (*ledger.BalanceTracker, *ledger.JournalGenerator) {
	t.Helper()
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(1, bt)

	batch, err := jg.GenerateDeposit(userID, "dep-1", amount, 1000)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("apply deposit: %v", err)
	}
	return bt, jg
}

func TestGenerator_BetPlaced(t *testing.T) {
	userID := uuid.New()
	marketID := uuid.New()
	bt, jg := fundedTracker(t, userID, 1_000)

	batch, err := jg.GenerateBetPlaced(userID, marketID, "bet-1", 98, 2, 1500)
	if err != nil {
		t.Fatalf("bet: %v", err)
	}
	if len(batch.Journals) != 2 {
		t.Fatalf("journals = %d, want 2 (net + fee)", len(batch.Journals))
	}
	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if got := bt.GetUserBalance(userID, ledger.CollateralAssetID); got != 900 {
		t.Errorf("user balance = %d, want 900", got)
	}
	if got := bt.GetVaultBalance(marketID, ledger.CollateralAssetID); got != 98 {
		t.Errorf("vault balance = %d, want 98", got)
	}
	treasury := bt.GetBalance(ledger.NewSystemAccountKey(ledger.SubTypeSystemTreasury, ledger.CollateralAssetID))
	if treasury != 2 {
		t.Errorf("treasury = %d, want 2", treasury)
	}
}

func TestGenerator_BetPlaced_InsufficientFunds(t *testing.T) {
	userID := uuid.New()
	_, jg := fundedTracker(t, userID, 50)

	_, err := jg.GenerateBetPlaced(userID, uuid.New(), "bet-1", 98, 2, 1500)
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected InsufficientFunds, got %v", err)
	}
}

func TestGenerator_BetPlaced_ZeroFeeSingleLeg(t *testing.T) {
	userID := uuid.New()
	_, jg := fundedTracker(t, userID, 1_000)

	batch, err := jg.GenerateBetPlaced(userID, uuid.New(), "bet-1", 100, 0, 1500)
	if err != nil {
		t.Fatalf("bet: %v", err)
	}
	if len(batch.Journals) != 1 {
		t.Fatalf("journals = %d, want 1 for zero fee", len(batch.Journals))
	}
}

func TestGenerator_BetCancelled_FeePaidFromVault(t *testing.T) {
	userID := uuid.New()
	marketID := uuid.New()
	bt, jg := fundedTracker(t, userID, 1_000)

	bet, err := jg.GenerateBetPlaced(userID, marketID, "bet-1", 98, 2, 1500)
	if err != nil {
		t.Fatalf("bet: %v", err)
	}
	if err := bt.ApplyBatch(bet); err != nil {
		t.Fatalf("apply bet: %v", err)
	}

	// Raw refund 90 splits into 88 to the user and 2 exit fee; the
	// vault pays both legs.
	cancel, err := jg.GenerateBetCancelled(userID, marketID, "cancel-1", 88, 2, 1600)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := bt.ApplyBatch(cancel); err != nil {
		t.Fatalf("apply cancel: %v", err)
	}

	if got := bt.GetVaultBalance(marketID, ledger.CollateralAssetID); got != 8 {
		t.Errorf("vault = %d, want 8 (98 - 90)", got)
	}
	if got := bt.GetUserBalance(userID, ledger.CollateralAssetID); got != 988 {
		t.Errorf("user = %d, want 988", got)
	}
}

func TestGenerator_BetCancelled_VaultShortfall(t *testing.T) {
	userID := uuid.New()
	_, jg := fundedTracker(t, userID, 1_000)

	_, err := jg.GenerateBetCancelled(userID, uuid.New(), "cancel-1", 88, 2, 1600)
	if !errors.Is(err, domain.ErrInsufficientVault) {
		t.Fatalf("expected InsufficientVault, got %v", err)
	}
}

func TestGenerator_Payout(t *testing.T) {
	userID := uuid.New()
	marketID := uuid.New()
	bt, jg := fundedTracker(t, userID, 1_000)

	bet, _ := jg.GenerateBetPlaced(userID, marketID, "bet-1", 98, 2, 1500)
	if err := bt.ApplyBatch(bet); err != nil {
		t.Fatalf("apply bet: %v", err)
	}

	payout, err := jg.GeneratePayout(userID, marketID, "claim-1", 98, 3100)
	if err != nil {
		t.Fatalf("payout: %v", err)
	}
	if err := bt.ApplyBatch(payout); err != nil {
		t.Fatalf("apply payout: %v", err)
	}

	if got := bt.GetVaultBalance(marketID, ledger.CollateralAssetID); got != 0 {
		t.Errorf("vault = %d, want 0", got)
	}

	_, err = jg.GeneratePayout(userID, marketID, "claim-2", 1, 3200)
	if !errors.Is(err, domain.ErrInsufficientVault) {
		t.Fatalf("expected InsufficientVault on drained vault, got %v", err)
	}
}

func TestGenerator_DisputeBond(t *testing.T) {
	userID := uuid.New()
	bt, jg := fundedTracker(t, userID, 1_000)

	batch, err := jg.GenerateDisputeBond(userID, "dispute-1", 500, 3200)
	if err != nil {
		t.Fatalf("bond: %v", err)
	}
	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("apply: %v", err)
	}

	sink := bt.GetBalance(ledger.NewSystemAccountKey(ledger.SubTypeSystemDisputeBond, ledger.CollateralAssetID))
	if sink != 500 {
		t.Errorf("bond sink = %d, want 500", sink)
	}
}

// ============================================================================
// Test: Invariants
// ============================================================================

func TestInvariant_GlobalZeroSum(t *testing.T) {
	userID := uuid.New()
	marketID := uuid.New()
	bt, jg := fundedTracker(t, userID, 1_000)
	validator := ledger.NewInvariantValidator(bt)

	bet, _ := jg.GenerateBetPlaced(userID, marketID, "bet-1", 98, 2, 1500)
	_ = bt.ApplyBatch(bet)
	cancel, _ := jg.GenerateBetCancelled(userID, marketID, "cancel-1", 50, 1, 1600)
	_ = bt.ApplyBatch(cancel)

	if err := validator.ValidateGlobalBalance(); err != nil {
		t.Fatalf("ledger not zero-sum: %v", err)
	}
	if err := validator.ValidateVaultNonNegative(marketID, ledger.CollateralAssetID); err != nil {
		t.Fatalf("vault negative: %v", err)
	}
}

func TestInvariant_VaultMatchesCollateral(t *testing.T) {
	userID := uuid.New()
	marketID := uuid.New()
	bt, jg := fundedTracker(t, userID, 1_000)
	validator := ledger.NewInvariantValidator(bt)

	bet, _ := jg.GenerateBetPlaced(userID, marketID, "bet-1", 98, 2, 1500)
	_ = bt.ApplyBatch(bet)

	if err := validator.ValidateVaultMatchesCollateral(marketID, ledger.CollateralAssetID, 98); err != nil {
		t.Fatalf("vault reconciliation: %v", err)
	}
	if err := validator.ValidateVaultMatchesCollateral(marketID, ledger.CollateralAssetID, 99); err == nil {
		t.Fatal("expected mismatch to be reported")
	}
}
