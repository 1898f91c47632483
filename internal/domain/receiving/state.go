package receiving

// SessionState is the state of an intake workflow session
type SessionState string

const (
	StateSelectingOrder     SessionState = "SELECTING_ORDER"
	StateLoadingDetail      SessionState = "LOADING_DETAIL"
	StateScanning           SessionState = "SCANNING"
	StateConfirmingQuantity SessionState = "CONFIRMING_QUANTITY"
	StateManualEntry        SessionState = "MANUAL_ENTRY"
	StateSummarizing        SessionState = "SUMMARIZING"
	StateFinalizing         SessionState = "FINALIZING"
	StateDone               SessionState = "DONE"
	StateError              SessionState = "ERROR"
)

// IsValid checks if the state is a known SessionState
func (s SessionState) IsValid() bool {
	switch s {
	case StateSelectingOrder, StateLoadingDetail, StateScanning, StateConfirmingQuantity,
		StateManualEntry, StateSummarizing, StateFinalizing, StateDone, StateError:
		return true
	}
	return false
}

// String returns the string representation of SessionState
func (s SessionState) String() string {
	return string(s)
}

// CanTransitionTo checks if the state can transition to the target state
func (s SessionState) CanTransitionTo(target SessionState) bool {
	switch s {
	case StateSelectingOrder:
		return target == StateLoadingDetail
	case StateLoadingDetail:
		return target == StateScanning || target == StateError
	case StateError:
		return target == StateSelectingOrder || target == StateLoadingDetail
	case StateScanning:
		return target == StateConfirmingQuantity || target == StateManualEntry ||
			target == StateSummarizing || target == StateSelectingOrder
	case StateConfirmingQuantity:
		return target == StateScanning || target == StateSelectingOrder
	case StateManualEntry:
		return target == StateConfirmingQuantity || target == StateScanning || target == StateSelectingOrder
	case StateSummarizing:
		return target == StateFinalizing || target == StateScanning || target == StateSelectingOrder
	case StateFinalizing:
		return target == StateDone || target == StateSummarizing
	case StateDone:
		return target == StateSelectingOrder
	}
	return false
}

// HasOrder returns true if an order detail is loaded in this state
func (s SessionState) HasOrder() bool {
	switch s {
	case StateScanning, StateConfirmingQuantity, StateManualEntry, StateSummarizing, StateFinalizing:
		return true
	}
	return false
}

// CanCancel returns true if an explicit cancel is accepted in this state
func (s SessionState) CanCancel() bool {
	return s.CanTransitionTo(StateSelectingOrder) && s != StateError && s != StateDone
}

// IsResting returns true between orders, when a session holds nothing to lose
func (s SessionState) IsResting() bool {
	return s == StateSelectingOrder || s == StateError
}
