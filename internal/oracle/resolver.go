package oracle

import (
	"PredictLedger/internal/domain"
	"PredictLedger/internal/state"
)

// MaxPriceAge is the freshness window for external feed reports.
const MaxPriceAge = 60 // seconds

// PriceReport is an external feed observation supplied alongside a
// resolve command.
type PriceReport struct {
	FeedID      string
	Price       int64
	PublishTime int64 // unix seconds
}

// Resolution is the outcome decided by a strategy.
type Resolution struct {
	Outcome Outcome
	// Price is set only for feed-based strategies.
	Price *int64
}

type Outcome = state.Outcome

// Resolve dispatches on the market's configured oracle source. The
// variant set is closed: new sources are added here as new cases,
// never by silently defaulting to an outcome.
//
// manual is the admin-supplied outcome (ManualAdmin only); report is
// the feed observation (Pyth only). now is the command's versioned
// timestamp.
func Resolve(m *state.Market, now int64, manual *state.Outcome, report *PriceReport) (Resolution, error) {
	switch m.OracleSource {
	case state.OracleManualAdmin:
		return resolveManual(manual)
	case state.OraclePyth:
		return resolvePyth(m, now, report)
	case state.OracleSwitchboard:
		return Resolution{}, domain.Errorf(domain.ErrOracleUnsupported,
			"switchboard resolution is not implemented")
	default:
		return Resolution{}, domain.Errorf(domain.ErrOracleUnsupported,
			"unknown oracle source %d", m.OracleSource)
	}
}

// resolveManual accepts the admin's outcome directly. No time guard:
// early resolution is permitted for manually adjudicated markets.
func resolveManual(manual *state.Outcome) (Resolution, error) {
	if manual == nil {
		return Resolution{}, domain.Errorf(domain.ErrInvalidOutcome,
			"manual resolution requires an outcome")
	}
	switch *manual {
	case state.OutcomeYes, state.OutcomeNo, state.OutcomeInvalid:
		return Resolution{Outcome: *manual}, nil
	}
	return Resolution{}, domain.Errorf(domain.ErrInvalidOutcome,
		"outcome %d out of range", *manual)
}

// resolvePyth validates the feed identity, freshness, and the market's
// end time, then thresholds the reported price.
func resolvePyth(m *state.Market, now int64, report *PriceReport) (Resolution, error) {
	if report == nil {
		return Resolution{}, domain.Errorf(domain.ErrOracleMismatch,
			"feed resolution requires a price report")
	}
	if report.FeedID != m.OracleFeed {
		return Resolution{}, domain.Errorf(domain.ErrOracleMismatch,
			"feed %q does not match configured %q", report.FeedID, m.OracleFeed)
	}

	age := now - report.PublishTime
	if age < 0 {
		age = -age
	}
	if age > MaxPriceAge {
		return Resolution{}, domain.Errorf(domain.ErrOracleStale,
			"price published %ds from now, limit %ds", age, MaxPriceAge)
	}

	if now < m.EndTimestamp {
		return Resolution{}, domain.Errorf(domain.ErrRoundIncomplete,
			"market ends at %d, now %d", m.EndTimestamp, now)
	}

	outcome := state.OutcomeNo
	if report.Price > m.OracleThreshold {
		outcome = state.OutcomeYes
	}
	price := report.Price
	return Resolution{Outcome: outcome, Price: &price}, nil
}
