package db

import (
	"time"

	"github.com/google/uuid"
)

const (
	PaymentStatusUnpaid = "unpaid"
	PaymentStatusPaid   = "paid"

	InvoiceStatusUnpaid = "unpaid"
	InvoiceStatusPaid   = "paid"

	SessionStatusCreated   = "created"
	SessionStatusCompleted = "completed"

	EnrollmentStatusActive    = "active"
	EnrollmentStatusWaitlist  = "waitlist"
	EnrollmentStatusCancelled = "cancelled"
)

// PaymentEntity holds a payment owed by a student. Amount is the stored
// decimal major-currency value; conversion to minor units happens once, at
// checkout creation.
type PaymentEntity struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	InvoiceID         *uuid.UUID
	Amount            float64
	Currency          *string
	Status            string
	CheckoutSessionID *string
	PaymentIntentID   *string
	PaidAt            *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CheckoutSessionEntity is the ledger row mapping a provider-issued session
// id to internal payment/invoice state. Rows are never deleted; they are the
// idempotency and audit trail for settlement.
type CheckoutSessionEntity struct {
	ID              string
	PaymentID       uuid.UUID
	InvoiceID       *uuid.UUID
	StudentID       uuid.UUID
	Status          string
	CheckoutURL     string
	PaymentIntentID *string
	CustomerID      *string
	CreatedAt       time.Time
	CompletedAt     *time.Time
}

type InvoiceEntity struct {
	ID                uuid.UUID
	Status            string
	CheckoutSessionID *string
	PaymentIntentID   *string
	PaidAt            *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type EnrollmentEntity struct {
	ID        uuid.UUID
	ClassID   uuid.UUID
	StudentID uuid.UUID
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}
