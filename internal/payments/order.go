package payments

import (
	"encoding/json"
	"time"
)

// State is the local payment-order state machine.
type State string

const (
	StateInitiated State = "initiated"
	StatePending   State = "pending"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Valid reports whether s is a member of the state enum.
func (s State) Valid() bool {
	switch s {
	case StateInitiated, StatePending, StateCompleted, StateFailed:
		return true
	}
	return false
}

// StateFromRemote normalizes a gateway-reported order state onto the local
// enum. Unrecognized remote states map to Pending; the second return value
// is false so the caller can log them.
func StateFromRemote(remote string) (State, bool) {
	switch remote {
	case "COMPLETED":
		return StateCompleted, true
	case "FAILED":
		return StateFailed, true
	case "PENDING":
		return StatePending, true
	default:
		return StatePending, false
	}
}

// PaymentOrder is the local record of one logical payment attempt. OrderKey
// is caller-assigned and immutable; RemoteOrderID is set when the gateway
// acknowledges the order and never changes afterwards.
type PaymentOrder struct {
	OrderKey       string
	ApplicationRef string
	AmountMinor    int64
	State          State
	RemoteOrderID  string
	Snapshot       json.RawMessage
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
