package model

import "time"

// Appointment lifecycle statuses. An appointment created ahead of payment
// starts tentative and only the reconciler moves it to confirmed.
const (
	AppointmentTentative          = "tentative"
	AppointmentConfirmed          = "confirmed"
	AppointmentAwaitingSettlement = "awaiting_settlement"
	AppointmentCancelled          = "cancelled"
)

const (
	PaymentStatusUnpaid = "unpaid"
	PaymentStatusPaid   = "paid"
)

type Appointment struct {
	ID            string
	AdminID       string
	ClientName    string
	ClientEmail   string
	ClientPhone   string
	Modality      string
	StartsAt      time.Time
	PriceCents    int64
	Currency      string
	Status        string
	PaymentStatus string
	CancelledAt   *time.Time
	CancelReason  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
