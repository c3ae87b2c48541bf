package enrollment

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"time"

	"settlement-service/internal/db"
	"settlement-service/internal/logcontext"
	"settlement-service/internal/message"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

var (
	promoterPromotedCounter = metrics.GetOrCreateCounter(`waitlist_promoter_total{result="promoted"}`)
	promoterEmptyCounter    = metrics.GetOrCreateCounter(`waitlist_promoter_total{result="empty_waitlist"}`)
	promoterSkippedCounter  = metrics.GetOrCreateCounter(`waitlist_promoter_total{result="skipped"}`)
	promoterErrorCounter    = metrics.GetOrCreateCounter(`waitlist_promoter_total{result="error"}`)

	promoterDurationHistogram = metrics.GetOrCreateHistogram(`waitlist_promoter_duration_milliseconds`)
)

type noticeWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Promoter reacts to enrollment change deliveries and promotes the earliest
// waitlisted enrollment when an active slot is vacated. The candidate query
// and the status write share one transaction with a locked row, so two
// cancellations in the same class promote two distinct entrants.
type Promoter struct {
	repo    *db.EnrollmentRepository
	notices noticeWriter
	logger  *slog.Logger
}

func NewPromoter(repo *db.EnrollmentRepository, notices noticeWriter, logger *slog.Logger) *Promoter {
	return &Promoter{repo: repo, notices: notices, logger: logger}
}

// Process handles one change delivery. Only the active-to-cancelled
// transition acts; every other transition is acknowledged untouched.
func (p *Promoter) Process(ctx context.Context, change message.EnrollmentChange) error {
	startTime := time.Now()
	ctx = logcontext.AppendCtx(ctx, slog.String("changeId", change.ID.String()))

	if !isVacatedSlot(change) {
		p.logger.DebugContext(ctx, "Enrollment change is not an active-to-cancelled transition, skipping")
		promoterSkippedCounter.Inc()
		return nil
	}

	classID := change.After.ClassID
	if classID == uuid.Nil {
		p.logger.WarnContext(ctx, "Cancelled enrollment has no class reference, skipping")
		promoterSkippedCounter.Inc()
		return nil
	}
	ctx = logcontext.AppendCtx(ctx, slog.String("classId", classID.String()))

	tx, err := p.repo.BeginTx(ctx)
	if err != nil {
		promoterErrorCounter.Inc()
		return errors.Wrap(err, "starting promotion transaction")
	}
	defer tx.Rollback(ctx)

	next, err := p.repo.NextWaitlistedForUpdate(ctx, tx, classID)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			p.logger.InfoContext(ctx, "No waitlisted enrollment for class, nothing to promote")
			promoterEmptyCounter.Inc()
			return nil
		}
		promoterErrorCounter.Inc()
		return errors.Wrap(err, "selecting next waitlisted enrollment")
	}

	promotedAt := time.Now()
	if err := p.repo.MarkActive(ctx, tx, next.ID, promotedAt); err != nil {
		promoterErrorCounter.Inc()
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		promoterErrorCounter.Inc()
		return errors.Wrap(err, "committing promotion transaction")
	}

	p.logger.InfoContext(ctx, "Promoted waitlisted enrollment",
		"enrollmentId", next.ID.String(), "studentId", next.StudentID.String())

	p.publishNotice(ctx, next, promotedAt)

	promoterPromotedCounter.Inc()
	promoterDurationHistogram.Update(float64(time.Since(startTime).Milliseconds()))

	return nil
}

// publishNotice is best effort: the promotion already committed and must not
// be failed retroactively over a notification problem.
func (p *Promoter) publishNotice(ctx context.Context, promoted *db.EnrollmentEntity, promotedAt time.Time) {
	if p.notices == nil {
		return
	}

	notice := message.PromotionNotice{
		EnrollmentID: promoted.ID,
		ClassID:      promoted.ClassID,
		StudentID:    promoted.StudentID,
		PromotedAt:   promotedAt,
	}

	noticeBytes, err := json.Marshal(notice)
	if err != nil {
		p.logger.ErrorContext(ctx, "Error marshalling promotion notice", "error", err)
		return
	}

	err = p.notices.WriteMessages(ctx, kafka.Message{
		Key:   []byte(promoted.ClassID.String()),
		Value: noticeBytes,
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "Error publishing promotion notice", "error", err)
	}
}

func isVacatedSlot(change message.EnrollmentChange) bool {
	return change.Before != nil && change.After != nil &&
		change.Before.Status == db.EnrollmentStatusActive &&
		change.After.Status == db.EnrollmentStatusCancelled
}
