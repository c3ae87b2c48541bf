package message

import (
	"time"

	"github.com/google/uuid"
)

// EnrollmentSnapshot mirrors an enrollment record as it appears in the
// store's change feed.
type EnrollmentSnapshot struct {
	ID        uuid.UUID `json:"id"`
	ClassID   uuid.UUID `json:"classId"`
	StudentID uuid.UUID `json:"studentId"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// EnrollmentChange is one change-feed delivery: before/after snapshots of a
// single enrollment. Deliveries are at-least-once; handlers must be idempotent
// or narrowly scoped.
type EnrollmentChange struct {
	ID     uuid.UUID           `json:"id"`
	Before *EnrollmentSnapshot `json:"before"`
	After  *EnrollmentSnapshot `json:"after"`
}

// PromotionNotice is published after a waitlisted enrollment is promoted, for
// the notification subsystem.
type PromotionNotice struct {
	EnrollmentID uuid.UUID `json:"enrollmentId"`
	ClassID      uuid.UUID `json:"classId"`
	StudentID    uuid.UUID `json:"studentId"`
	PromotedAt   time.Time `json:"promotedAt"`
}
