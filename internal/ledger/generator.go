package ledger

import (
	"github.com/google/uuid"

	"PredictLedger/internal/domain"
)

// JournalGenerator creates balanced journal batches from commands.
// Every generator pre-checks the source account so a batch that would
// drive a user or vault balance negative is never produced.
type JournalGenerator struct {
	sequence       int64
	balanceTracker *BalanceTracker
}

func NewJournalGenerator(startSequence int64, tracker *BalanceTracker) *JournalGenerator {
	return &JournalGenerator{
		sequence:       startSequence,
		balanceTracker: tracker,
	}
}

// SetSequence restores the generator sequence (snapshot recovery path).
func (jg *JournalGenerator) SetSequence(seq int64) {
	jg.sequence = seq
}

func (jg *JournalGenerator) newBatch(eventRef string, timestamp int64, capacity int) *Batch {
	return &Batch{
		BatchID:   uuid.New(),
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, capacity),
	}
}

func (jg *JournalGenerator) appendJournal(b *Batch, debit, credit AccountKey, amount int64, jt JournalType) {
	b.Journals = append(b.Journals, Journal{
		JournalID:     uuid.New(),
		BatchID:       b.BatchID,
		EventRef:      b.EventRef,
		Sequence:      b.Sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		AssetID:       debit.AssetID,
		Amount:        amount,
		JournalType:   jt,
		Timestamp:     b.Timestamp,
	})
}

// GenerateDeposit credits a user from the custody boundary.
// Moves funds: external:custody → user:collateral
func (jg *JournalGenerator) GenerateDeposit(
	userID uuid.UUID,
	eventRef string,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	batch := jg.newBatch(eventRef, timestamp, 1)
	jg.appendJournal(batch,
		NewUserAccountKey(userID, CollateralAssetID),
		NewExternalAccountKey(CollateralAssetID),
		amount, JournalTypeDeposit)
	jg.sequence++
	return batch, nil
}

// GenerateWithdrawal debits a user back to the custody boundary.
// Moves funds: user:collateral → external:custody
func (jg *JournalGenerator) GenerateWithdrawal(
	userID uuid.UUID,
	eventRef string,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientBalance(userID, CollateralAssetID, amount); err != nil {
		return nil, domain.Errorf(domain.ErrInsufficientFunds, "withdrawal: %v", err)
	}

	batch := jg.newBatch(eventRef, timestamp, 1)
	jg.appendJournal(batch,
		NewExternalAccountKey(CollateralAssetID),
		NewUserAccountKey(userID, CollateralAssetID),
		amount, JournalTypeWithdrawal)
	jg.sequence++
	return batch, nil
}

// GenerateBetPlaced funds a bet: net into the market vault, fee to the
// treasury, both legs drawn from the user.
func (jg *JournalGenerator) GenerateBetPlaced(
	userID, marketID uuid.UUID,
	eventRef string,
	net, fee int64,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientBalance(userID, CollateralAssetID, net+fee); err != nil {
		return nil, domain.Errorf(domain.ErrInsufficientFunds, "bet: %v", err)
	}

	batch := jg.newBatch(eventRef, timestamp, 2)
	jg.appendJournal(batch,
		NewVaultAccountKey(marketID, CollateralAssetID),
		NewUserAccountKey(userID, CollateralAssetID),
		net, JournalTypeBetDeposit)
	if fee > 0 {
		jg.appendJournal(batch,
			NewSystemAccountKey(SubTypeSystemTreasury, CollateralAssetID),
			NewUserAccountKey(userID, CollateralAssetID),
			fee, JournalTypeBetFee)
	}
	jg.sequence++
	return batch, nil
}

// GenerateBetCancelled unwinds a bet: refund to the user, exit fee to
// the treasury, both legs paid out of the market vault. The vault loses
// refund+fee, which equals the raw pool refund — the exit fee is paid
// from vault funds, not charged on top.
func (jg *JournalGenerator) GenerateBetCancelled(
	userID, marketID uuid.UUID,
	eventRef string,
	refund, fee int64,
	timestamp int64,
) (*Batch, error) {
	vaultBalance := jg.balanceTracker.GetVaultBalance(marketID, CollateralAssetID)
	if vaultBalance < refund+fee {
		return nil, domain.Errorf(domain.ErrInsufficientVault,
			"cancel needs %d, vault holds %d", refund+fee, vaultBalance)
	}

	batch := jg.newBatch(eventRef, timestamp, 2)
	jg.appendJournal(batch,
		NewUserAccountKey(userID, CollateralAssetID),
		NewVaultAccountKey(marketID, CollateralAssetID),
		refund, JournalTypeCancelRefund)
	if fee > 0 {
		jg.appendJournal(batch,
			NewSystemAccountKey(SubTypeSystemTreasury, CollateralAssetID),
			NewVaultAccountKey(marketID, CollateralAssetID),
			fee, JournalTypeCancelFee)
	}
	jg.sequence++
	return batch, nil
}

// GeneratePayout pays a resolved claim from the market vault.
func (jg *JournalGenerator) GeneratePayout(
	userID, marketID uuid.UUID,
	eventRef string,
	payout int64,
	timestamp int64,
) (*Batch, error) {
	vaultBalance := jg.balanceTracker.GetVaultBalance(marketID, CollateralAssetID)
	if vaultBalance < payout {
		return nil, domain.Errorf(domain.ErrInsufficientVault,
			"payout %d exceeds vault %d", payout, vaultBalance)
	}

	batch := jg.newBatch(eventRef, timestamp, 1)
	jg.appendJournal(batch,
		NewUserAccountKey(userID, CollateralAssetID),
		NewVaultAccountKey(marketID, CollateralAssetID),
		payout, JournalTypePayout)
	jg.sequence++
	return batch, nil
}

// GenerateDisputeBond posts a dispute bond to the bond sink. The bond
// stays in the sink after settlement; disposition is a custody-layer
// policy.
func (jg *JournalGenerator) GenerateDisputeBond(
	userID uuid.UUID,
	eventRef string,
	bond int64,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientBalance(userID, CollateralAssetID, bond); err != nil {
		return nil, domain.Errorf(domain.ErrInsufficientFunds, "dispute bond: %v", err)
	}

	batch := jg.newBatch(eventRef, timestamp, 1)
	jg.appendJournal(batch,
		NewSystemAccountKey(SubTypeSystemDisputeBond, CollateralAssetID),
		NewUserAccountKey(userID, CollateralAssetID),
		bond, JournalTypeDisputeBond)
	jg.sequence++
	return batch, nil
}

// GenerateDustSweep moves residual vault collateral to the treasury
// when a market is closed.
func (jg *JournalGenerator) GenerateDustSweep(
	marketID uuid.UUID,
	eventRef string,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	vaultBalance := jg.balanceTracker.GetVaultBalance(marketID, CollateralAssetID)
	if vaultBalance < amount {
		return nil, domain.Errorf(domain.ErrInsufficientVault,
			"sweep %d exceeds vault %d", amount, vaultBalance)
	}

	batch := jg.newBatch(eventRef, timestamp, 1)
	jg.appendJournal(batch,
		NewSystemAccountKey(SubTypeSystemTreasury, CollateralAssetID),
		NewVaultAccountKey(marketID, CollateralAssetID),
		amount, JournalTypeDustSweep)
	jg.sequence++
	return batch, nil
}
