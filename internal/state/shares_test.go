package state

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"PredictLedger/internal/domain"
)

func TestShareIssuer_MintBurnSupply(t *testing.T) {
	si := NewShareIssuer()
	mint := uuid.New()
	alice := uuid.New()
	bob := uuid.New()

	if err := si.Mint(mint, alice, 90); err != nil {
		t.Fatalf("mint alice: %v", err)
	}
	if err := si.Mint(mint, bob, 40); err != nil {
		t.Fatalf("mint bob: %v", err)
	}

	if got := si.Supply(mint); got != 130 {
		t.Fatalf("supply = %d, want 130", got)
	}

	if err := si.Burn(mint, alice, 90); err != nil {
		t.Fatalf("burn alice: %v", err)
	}
	if got := si.Supply(mint); got != 40 {
		t.Fatalf("supply after burn = %d, want 40", got)
	}
	if got := si.Holding(mint, alice); got != 0 {
		t.Fatalf("alice holding = %d, want 0", got)
	}
}

func TestShareIssuer_BurnInsufficient(t *testing.T) {
	si := NewShareIssuer()
	mint := uuid.New()
	holder := uuid.New()

	if err := si.Mint(mint, holder, 10); err != nil {
		t.Fatalf("mint: %v", err)
	}

	err := si.Burn(mint, holder, 11)
	if !errors.Is(err, domain.ErrInsufficientShares) {
		t.Fatalf("expected InsufficientShares, got %v", err)
	}

	// Failed burn must not mutate.
	if si.Supply(mint) != 10 || si.Holding(mint, holder) != 10 {
		t.Fatalf("failed burn mutated state: supply=%d holding=%d",
			si.Supply(mint), si.Holding(mint, holder))
	}
}

func TestShareIssuer_SnapshotRestore(t *testing.T) {
	si := NewShareIssuer()
	mint := uuid.New()
	holder := uuid.New()
	_ = si.Mint(mint, holder, 55)

	supplies, holdings := si.Snapshot()

	restored := NewShareIssuer()
	restored.Restore(supplies, holdings)

	if restored.Supply(mint) != 55 || restored.Holding(mint, holder) != 55 {
		t.Fatalf("restore mismatch: supply=%d holding=%d",
			restored.Supply(mint), restored.Holding(mint, holder))
	}
	if string(restored.CanonicalBytes()) != string(si.CanonicalBytes()) {
		t.Fatal("canonical bytes differ after restore")
	}
}
