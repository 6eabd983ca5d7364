package event

import (
	"encoding/json"
	"fmt"
)

// UnmarshalPayload decodes a stored event-log payload back into its
// typed command. Payloads are written by the core with json.Marshal on
// the same structs, so replay round-trips exactly.
func UnmarshalPayload(et EventType, data []byte) (Event, error) {
	var evt Event
	switch et {
	case EventTypeDeposit:
		evt = &Deposit{}
	case EventTypeWithdrawal:
		evt = &Withdrawal{}
	case EventTypeMarketCreate:
		evt = &CreateMarket{}
	case EventTypeBetPlace:
		evt = &PlaceBet{}
	case EventTypeBetCancel:
		evt = &CancelBet{}
	case EventTypeMarketResolve:
		evt = &ResolveMarket{}
	case EventTypePayoutClaim:
		evt = &ClaimPayout{}
	case EventTypeDisputeOpen:
		evt = &OpenDispute{}
	case EventTypeDisputeSettle:
		evt = &SettleDispute{}
	case EventTypeMarketPause:
		evt = &PauseMarket{}
	case EventTypeMarketUnpause:
		evt = &UnpauseMarket{}
	case EventTypeMarketCancel:
		evt = &CancelMarket{}
	case EventTypeMarketClose:
		evt = &CloseMarket{}
	case EventTypePlatformPause:
		evt = &PausePlatform{}
	case EventTypePlatformUnpause:
		evt = &UnpausePlatform{}
	case EventTypePlatformUpdate:
		evt = &UpdatePlatform{}
	default:
		return nil, fmt.Errorf("unknown event type: %d", et)
	}

	if err := json.Unmarshal(data, evt); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", et, err)
	}
	return evt, nil
}

// EventTypeFromString maps the stored event_type column back to the
// discriminator.
func EventTypeFromString(s string) (EventType, error) {
	for et := EventTypeDeposit; et <= EventTypePlatformUpdate; et++ {
		if et.String() == s {
			return et, nil
		}
	}
	return EventTypeUnknown, fmt.Errorf("unknown event type: %q", s)
}
