package payments

import "context"

// CompletedNotice describes one completed payment for notification purposes.
type CompletedNotice struct {
	OrderKey       string
	ApplicationRef string
	RemoteOrderID  string
	AmountMinor    int64
}

// Notifier delivers a confirmation for a completed payment. Delivery is
// best-effort: failures are logged by the caller and never affect the
// payment state.
type Notifier interface {
	PaymentCompleted(ctx context.Context, notice CompletedNotice) error
}

// NoopNotifier is a Notifier that does nothing. Used when no mail transport
// is configured.
type NoopNotifier struct{}

func (NoopNotifier) PaymentCompleted(ctx context.Context, notice CompletedNotice) error {
	return nil
}
