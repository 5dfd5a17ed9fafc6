package wizard

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aldoetobex/assignment-portal/pkg/models"
)

// SubmissionLog keeps an audit row per session that reached the marketplace.
type SubmissionLog interface {
	Begin(ctx context.Context, sessionID, studentID string, draft []byte) error
	Succeeded(ctx context.Context, sessionID, assignmentID string) error
	Failed(ctx context.Context, sessionID, message string) error
	// Find returns the row for sessionID, or nil when there is none.
	Find(ctx context.Context, sessionID string) (*models.Submission, error)
}

// GormLog is the postgres-backed SubmissionLog.
type GormLog struct {
	db *gorm.DB
}

func NewGormLog(db *gorm.DB) *GormLog { return &GormLog{db: db} }

func (g *GormLog) Begin(ctx context.Context, sessionID, studentID string, draft []byte) error {
	row := models.Submission{
		SessionID: sessionID,
		StudentID: studentID,
		Status:    models.SubmissionSubmitting,
		Attempts:  1,
		Draft:     datatypes.JSON(draft),
	}
	// A retry after a failure reuses the session row.
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"status":     models.SubmissionSubmitting,
			"attempts":   gorm.Expr("submissions.attempts + 1"),
			"draft":      datatypes.JSON(draft),
			"last_error": "",
		}),
	}).Create(&row).Error
}

func (g *GormLog) Succeeded(ctx context.Context, sessionID, assignmentID string) error {
	return g.db.WithContext(ctx).Model(&models.Submission{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]any{
			"status":        models.SubmissionSubmitted,
			"assignment_id": assignmentID,
			"last_error":    "",
		}).Error
}

func (g *GormLog) Failed(ctx context.Context, sessionID, message string) error {
	return g.db.WithContext(ctx).Model(&models.Submission{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]any{
			"status":     models.SubmissionFailed,
			"last_error": message,
		}).Error
}

func (g *GormLog) Find(ctx context.Context, sessionID string) (*models.Submission, error) {
	var row models.Submission
	err := g.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// NopLog is used when no database is configured.
type NopLog struct{}

func (NopLog) Begin(context.Context, string, string, []byte) error { return nil }
func (NopLog) Succeeded(context.Context, string, string) error     { return nil }
func (NopLog) Failed(context.Context, string, string) error        { return nil }
func (NopLog) Find(context.Context, string) (*models.Submission, error) {
	return nil, nil
}

// loggedSubmission wraps log writes so an audit outage never blocks a user.
type loggedSubmission struct {
	log SubmissionLog
	zl  *zap.Logger
}

func (l loggedSubmission) begin(ctx context.Context, sessionID, studentID string, draft []byte) {
	if err := l.log.Begin(ctx, sessionID, studentID, draft); err != nil {
		l.zl.Warn("submission audit begin failed", zap.String("session", sessionID), zap.Error(err))
	}
}

func (l loggedSubmission) succeeded(ctx context.Context, sessionID, assignmentID string) {
	if err := l.log.Succeeded(ctx, sessionID, assignmentID); err != nil {
		l.zl.Warn("submission audit success failed", zap.String("session", sessionID), zap.Error(err))
	}
}

func (l loggedSubmission) failed(ctx context.Context, sessionID, msg string) {
	if err := l.log.Failed(ctx, sessionID, msg); err != nil {
		l.zl.Warn("submission audit failure failed", zap.String("session", sessionID), zap.Error(err))
	}
}
