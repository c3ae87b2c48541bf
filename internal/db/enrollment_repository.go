package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// EnrollmentRepository has a narrow write capability on enrollments: the
// waitlist-to-active transition. Everything else about enrollments is owned
// by the enrollment subsystem.
type EnrollmentRepository struct {
	pool *pgxpool.Pool
}

func NewEnrollmentRepository(pool *pgxpool.Pool) *EnrollmentRepository {
	return &EnrollmentRepository{pool: pool}
}

func (r *EnrollmentRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *EnrollmentRepository) Create(ctx context.Context, entity *EnrollmentEntity) error {
	query := `INSERT INTO enrollment (id, class_id, student_id, status, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query, entity.ID, entity.ClassID, entity.StudentID, entity.Status,
		entity.CreatedAt, entity.UpdatedAt)
	return errors.Wrap(err, "inserting enrollment")
}

func (r *EnrollmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*EnrollmentEntity, error) {
	query := `SELECT id, class_id, student_id, status, created_at, updated_at
	          FROM enrollment WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, id)

	var entity EnrollmentEntity
	err := row.Scan(&entity.ID, &entity.ClassID, &entity.StudentID, &entity.Status, &entity.CreatedAt, &entity.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

// NextWaitlistedForUpdate returns the earliest-created waitlisted enrollment
// for the class and locks it. SKIP LOCKED keeps two concurrent cancellations
// in the same class from claiming the same candidate: the second one moves on
// to the next row or finds none.
func (r *EnrollmentRepository) NextWaitlistedForUpdate(ctx context.Context, tx pgx.Tx, classID uuid.UUID) (*EnrollmentEntity, error) {
	query := `SELECT id, class_id, student_id, status, created_at, updated_at
	          FROM enrollment
	          WHERE class_id = $1 AND status = $2
	          ORDER BY created_at ASC
	          LIMIT 1
	          FOR UPDATE SKIP LOCKED`
	row := tx.QueryRow(ctx, query, classID, EnrollmentStatusWaitlist)

	var entity EnrollmentEntity
	err := row.Scan(&entity.ID, &entity.ClassID, &entity.StudentID, &entity.Status, &entity.CreatedAt, &entity.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

func (r *EnrollmentRepository) MarkActive(ctx context.Context, tx pgx.Tx, id uuid.UUID, updatedAt time.Time) error {
	query := `UPDATE enrollment SET status = $2, updated_at = $3 WHERE id = $1`
	_, err := tx.Exec(ctx, query, id, EnrollmentStatusActive, updatedAt)
	return errors.Wrap(err, "promoting enrollment")
}
