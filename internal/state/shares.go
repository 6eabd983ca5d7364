package state

import (
	"sort"

	"github.com/google/uuid"

	"PredictLedger/internal/domain"
)

// ShareIssuer mints and burns outcome share classes and tracks
// outstanding supply per class. Payout claims read supply here at
// claim time — supply shrinks as earlier claimants burn, which keeps
// the per-share payout rate constant for later claimants.
// Not thread-safe — only accessed from the single-threaded core.
type ShareIssuer struct {
	supplies map[uuid.UUID]int64 // mint -> outstanding supply
	holdings map[HoldingKey]int64
}

type HoldingKey struct {
	Mint   uuid.UUID
	Holder uuid.UUID
}

func NewShareIssuer() *ShareIssuer {
	return &ShareIssuer{
		supplies: make(map[uuid.UUID]int64),
		holdings: make(map[HoldingKey]int64),
	}
}

// Mint issues amount units of a share class to a holder.
func (si *ShareIssuer) Mint(mint, holder uuid.UUID, amount int64) error {
	if amount <= 0 {
		return domain.Errorf(domain.ErrZeroShares, "mint of %d units", amount)
	}
	si.supplies[mint] += amount
	si.holdings[HoldingKey{Mint: mint, Holder: holder}] += amount
	return nil
}

// Burn destroys amount units held by holder. Fails without mutation
// when the holding is insufficient.
func (si *ShareIssuer) Burn(mint, holder uuid.UUID, amount int64) error {
	if amount <= 0 {
		return domain.Errorf(domain.ErrZeroShares, "burn of %d units", amount)
	}
	key := HoldingKey{Mint: mint, Holder: holder}
	held := si.holdings[key]
	if held < amount {
		return domain.Errorf(domain.ErrInsufficientShares,
			"burn %d exceeds holding %d", amount, held)
	}
	si.holdings[key] = held - amount
	si.supplies[mint] -= amount
	return nil
}

// Supply returns outstanding supply for one share class.
func (si *ShareIssuer) Supply(mint uuid.UUID) int64 {
	return si.supplies[mint]
}

// Holding returns one holder's balance in a share class.
func (si *ShareIssuer) Holding(mint, holder uuid.UUID) int64 {
	return si.holdings[HoldingKey{Mint: mint, Holder: holder}]
}

// Snapshot returns deterministic copies of supplies and holdings for
// state capture.
func (si *ShareIssuer) Snapshot() (map[uuid.UUID]int64, map[HoldingKey]int64) {
	supplies := make(map[uuid.UUID]int64, len(si.supplies))
	for k, v := range si.supplies {
		supplies[k] = v
	}
	holdings := make(map[HoldingKey]int64, len(si.holdings))
	for k, v := range si.holdings {
		holdings[k] = v
	}
	return supplies, holdings
}

// Restore loads snapshot state.
func (si *ShareIssuer) Restore(supplies map[uuid.UUID]int64, holdings map[HoldingKey]int64) {
	for k, v := range supplies {
		si.supplies[k] = v
	}
	for k, v := range holdings {
		si.holdings[k] = v
	}
}

// CanonicalBytes serializes supplies in sorted mint order for state
// digests.
func (si *ShareIssuer) CanonicalBytes() []byte {
	mints := make([]uuid.UUID, 0, len(si.supplies))
	for mint := range si.supplies {
		mints = append(mints, mint)
	}
	sort.Slice(mints, func(i, j int) bool {
		return mints[i].String() < mints[j].String()
	})

	buf := make([]byte, 0, len(mints)*24)
	for _, mint := range mints {
		buf = append(buf, mint[:]...)
		buf = appendInt64LE(buf, si.supplies[mint])
	}
	return buf
}
