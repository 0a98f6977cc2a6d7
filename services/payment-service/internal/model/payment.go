package model

import (
	"encoding/json"
	"time"
)

// PaymentRecord statuses. pending is the only non-terminal status; the
// reconciler never moves a record out of a terminal status.
const (
	PaymentPending   = "pending"
	PaymentApproved  = "approved"
	PaymentRejected  = "rejected"
	PaymentCancelled = "cancelled"
)

const ProviderMercadoPago = "mercadopago"

// PaymentRecord is one payment attempt against an appointment. Records are
// never deleted (financial audit trail). ExternalReference is generated
// before the provider call and doubles as the provisional appointment id.
type PaymentRecord struct {
	ID                string
	AppointmentID     string // empty until the appointment is materialized
	AdminID           string
	ExternalReference string
	Provider          string
	PreferenceID      string
	ProviderPaymentID string // empty until the provider first reports it
	AmountCents       int64
	Currency          string
	Status            string
	AppointmentDraft  *AppointmentDraft
	RawPayload        json.RawMessage
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AppointmentDraft is the booking data captured at preference-creation time,
// used by the reconciler to materialize an appointment on late approval.
type AppointmentDraft struct {
	ClientName  string `json:"client_name"`
	ClientEmail string `json:"client_email,omitempty"`
	ClientPhone string `json:"client_phone,omitempty"`
	Modality    string `json:"modality"`
	StartsAt    string `json:"starts_at"` // RFC3339
}

// IsTerminalPaymentStatus reports whether a payment status can never change
// again. Approved payments are final; re-applying any status over a terminal
// one is a no-op.
func IsTerminalPaymentStatus(status string) bool {
	switch status {
	case PaymentApproved, PaymentRejected, PaymentCancelled:
		return true
	default:
		return false
	}
}
