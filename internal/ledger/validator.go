package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies batch is balanced
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateUserNonNegative checks user collateral >= 0
func (v *InvariantValidator) ValidateUserNonNegative(userID uuid.UUID, assetID AssetID) error {
	return v.tracker.ValidateNonNegative(NewUserAccountKey(userID, assetID))
}

// ValidateVaultNonNegative checks a market vault >= 0
func (v *InvariantValidator) ValidateVaultNonNegative(marketID uuid.UUID, assetID AssetID) error {
	return v.tracker.ValidateNonNegative(NewVaultAccountKey(marketID, assetID))
}

// ValidateVaultMatchesCollateral checks the vault balance equals the
// market record's total_collateral bookkeeping.
func (v *InvariantValidator) ValidateVaultMatchesCollateral(
	marketID uuid.UUID,
	assetID AssetID,
	totalCollateral int64,
) error {
	balance := v.tracker.GetVaultBalance(marketID, assetID)
	if balance != totalCollateral {
		return fmt.Errorf("vault %s holds %d but market records total_collateral %d",
			marketID, balance, totalCollateral)
	}
	return nil
}

// ValidateGlobalBalance verifies system is zero-sum
func (v *InvariantValidator) ValidateGlobalBalance() error {
	totals := v.tracker.ComputeGlobalBalance()

	for assetID, total := range totals {
		if total != 0 {
			assetName, _ := GetAssetName(assetID)
			return fmt.Errorf("global balance for %s is non-zero: %d", assetName, total)
		}
	}

	return nil
}
