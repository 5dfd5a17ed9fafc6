package payments

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aldoetobex/assignment-portal/pkg/models"
)

// Recorder persists one TopUp row per attempt around any collaborator.
// A database error is logged and never changes the charge outcome.
type Recorder struct {
	next Collaborator
	db   *gorm.DB
	log  *zap.Logger
}

func NewRecorder(next Collaborator, db *gorm.DB, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{next: next, db: db, log: log}
}

func (r *Recorder) Name() string { return r.next.Name() }

func (r *Recorder) Charge(ctx context.Context, ch Charge) (*Receipt, error) {
	row := models.TopUp{
		StudentID:   ch.Payer.ID,
		AmountMinor: int64(ch.Amount),
		Provider:    r.next.Name(),
		Status:      models.TopUpInitiated,
	}
	saved := true
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		saved = false
		r.log.Warn("top-up record create failed", zap.String("student", ch.Payer.ID), zap.Error(err))
	}

	rec, err := r.next.Charge(ctx, ch)

	if saved {
		updates := map[string]any{}
		switch {
		case err == nil:
			updates["status"] = models.TopUpPaid
			updates["reference"] = rec.Reference
		case errors.Is(err, ErrPaymentCancelled):
			updates["status"] = models.TopUpCancelled
		default:
			updates["status"] = models.TopUpFailed
			updates["message"] = err.Error()
		}
		// The charge already happened; the row must not be lost with the request.
		if uerr := r.db.WithContext(context.WithoutCancel(ctx)).Model(&models.TopUp{}).
			Where("id = ?", row.ID).Updates(updates).Error; uerr != nil {
			r.log.Warn("top-up record update failed", zap.String("id", row.ID.String()), zap.Error(uerr))
		}
	}
	return rec, err
}
