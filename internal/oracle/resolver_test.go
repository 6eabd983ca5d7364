package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PredictLedger/internal/domain"
	"PredictLedger/internal/state"
)

func pythMarket() *state.Market {
	return &state.Market{
		Status:          state.StatusLocked,
		OracleSource:    state.OraclePyth,
		OracleFeed:      "BTC/USD",
		OracleThreshold: 50_000,
		EndTimestamp:    3000,
	}
}

func TestResolve_ManualAdmin(t *testing.T) {
	m := &state.Market{
		Status:       state.StatusActive,
		OracleSource: state.OracleManualAdmin,
		EndTimestamp: 3000,
	}

	// No time guard: resolving well before end succeeds.
	outcome := state.OutcomeYes
	res, err := Resolve(m, 100, &outcome, nil)
	require.NoError(t, err)
	assert.Equal(t, state.OutcomeYes, res.Outcome)
	assert.Nil(t, res.Price)

	_, err = Resolve(m, 100, nil, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidOutcome)

	bad := state.Outcome(7)
	_, err = Resolve(m, 100, &bad, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidOutcome)
}

func TestResolve_PythThreshold(t *testing.T) {
	m := pythMarket()

	res, err := Resolve(m, 3010, nil, &PriceReport{
		FeedID: "BTC/USD", Price: 50_001, PublishTime: 3000,
	})
	require.NoError(t, err)
	assert.Equal(t, state.OutcomeYes, res.Outcome)
	require.NotNil(t, res.Price)
	assert.Equal(t, int64(50_001), *res.Price)

	// Price exactly at threshold resolves No.
	res, err = Resolve(m, 3010, nil, &PriceReport{
		FeedID: "BTC/USD", Price: 50_000, PublishTime: 3000,
	})
	require.NoError(t, err)
	assert.Equal(t, state.OutcomeNo, res.Outcome)
}

func TestResolve_PythGuards(t *testing.T) {
	m := pythMarket()

	t.Run("feed mismatch", func(t *testing.T) {
		_, err := Resolve(m, 3010, nil, &PriceReport{
			FeedID: "ETH/USD", Price: 60_000, PublishTime: 3005,
		})
		assert.ErrorIs(t, err, domain.ErrOracleMismatch)
	})

	t.Run("stale price", func(t *testing.T) {
		_, err := Resolve(m, 3100, nil, &PriceReport{
			FeedID: "BTC/USD", Price: 60_000, PublishTime: 3000,
		})
		assert.ErrorIs(t, err, domain.ErrOracleStale)
	})

	t.Run("boundary freshness accepted", func(t *testing.T) {
		_, err := Resolve(m, 3060, nil, &PriceReport{
			FeedID: "BTC/USD", Price: 60_000, PublishTime: 3000,
		})
		assert.NoError(t, err)
	})

	t.Run("before end timestamp", func(t *testing.T) {
		_, err := Resolve(m, 2990, nil, &PriceReport{
			FeedID: "BTC/USD", Price: 60_000, PublishTime: 2980,
		})
		assert.ErrorIs(t, err, domain.ErrRoundIncomplete)
	})

	t.Run("missing report", func(t *testing.T) {
		_, err := Resolve(m, 3010, nil, nil)
		assert.ErrorIs(t, err, domain.ErrOracleMismatch)
	})
}

func TestResolve_SwitchboardUnsupported(t *testing.T) {
	m := pythMarket()
	m.OracleSource = state.OracleSwitchboard

	_, err := Resolve(m, 5000, nil, &PriceReport{
		FeedID: "BTC/USD", Price: 60_000, PublishTime: 4990,
	})
	assert.ErrorIs(t, err, domain.ErrOracleUnsupported)
}
