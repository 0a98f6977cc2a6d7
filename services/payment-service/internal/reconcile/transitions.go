package reconcile

import "github.com/arenatime/arenatime/services/payment-service/internal/model"

// Transition decides the stored status that results from the provider
// reporting `reported` over the stored `current`, and whether a write is
// needed. Terminal statuses never move; re-applying the same status is a
// no-op, which is what makes webhook replays safe.
func Transition(current, reported string) (next string, apply bool) {
	if model.IsTerminalPaymentStatus(current) {
		return current, false
	}
	if reported == model.PaymentPending || reported == current {
		return current, false
	}
	return reported, true
}

// Outcome folds a payment status into the three fixed results the client
// pages render.
func Outcome(paymentStatus string) string {
	switch paymentStatus {
	case model.PaymentApproved:
		return "approved"
	case model.PaymentRejected, model.PaymentCancelled:
		return "failed"
	default:
		return "pending"
	}
}
