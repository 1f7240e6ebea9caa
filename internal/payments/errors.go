package payments

import (
	"errors"
	"fmt"
)

// ErrOrderExists signals a create-if-absent conflict on an order key.
var ErrOrderExists = errors.New("payment order already exists")

// ErrOrderNotFound signals an unknown order key.
var ErrOrderNotFound = errors.New("payment order not found")

// DuplicateOrderError reports that an order already exists for the requested
// order key. It is a normal outcome: the existing order is carried so the
// client can reconcile instead of re-paying.
type DuplicateOrderError struct {
	Existing PaymentOrder
}

func (e *DuplicateOrderError) Error() string {
	return fmt.Sprintf("order %s already exists in state %s", e.Existing.OrderKey, e.Existing.State)
}

// AlreadyPaidError reports a completed order for the same application within
// the duplicate-payment window.
type AlreadyPaidError struct {
	Existing PaymentOrder
}

func (e *AlreadyPaidError) Error() string {
	return fmt.Sprintf("application %s already has completed order %s", e.Existing.ApplicationRef, e.Existing.OrderKey)
}

// PersistError reports a local write failure after the gateway already
// acknowledged the order. The remote order exists without a local record;
// reconciliation by order key is the recovery path.
type PersistError struct {
	OrderKey      string
	RemoteOrderID string
	Err           error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("order %s acknowledged by gateway as %s but local persist failed: %v", e.OrderKey, e.RemoteOrderID, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}
