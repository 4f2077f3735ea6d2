// CodeLab snapshot engine
// Persists periodic code states, draft singletons and revision analysis

package snapshot

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"codelab/internal/apperr"
	"codelab/pkg/models"
)

// Engine persists code snapshots and serves revision analysis.
type Engine struct {
	db *gorm.DB
}

func NewEngine(db *gorm.DB) *Engine {
	return &Engine{db: db}
}

// CreateInput describes one snapshot to record.
type CreateInput struct {
	StudentID    uint
	ActivityID   uint
	LabSessionID uint
	Code         string
	Type         string // auto, submit, run, hint_request, manual

	BehavioralContext *models.BehavioralContext
}

// Create appends a non-draft snapshot: sequence numbers are monotone per
// (student, activity) and the diff is computed against the latest previous
// non-draft snapshot.
func (e *Engine) Create(in CreateInput) (*models.CodeSnapshot, error) {
	if in.Type == models.SnapshotDraft {
		return nil, apperr.Validation("drafts are saved through SaveDraft")
	}

	prev, err := e.Latest(in.StudentID, in.ActivityID)
	if err != nil && apperr.KindOf(err) != apperr.KindNotFound {
		return nil, err
	}

	snap := &models.CodeSnapshot{
		StudentID:         in.StudentID,
		ActivityID:        in.ActivityID,
		LabSessionID:      in.LabSessionID,
		Code:              in.Code,
		Type:              in.Type,
		SequenceNumber:    1,
		Metrics:           Metrics(in.Code),
		BehavioralContext: in.BehavioralContext,
	}
	if prev != nil {
		snap.SequenceNumber = prev.SequenceNumber + 1
		diff := Diff(prev.Code, in.Code)
		diff.TimeSincePrevious = time.Since(prev.CreatedAt).Seconds()
		snap.DiffFromPrevious = &diff
	}

	if err := e.db.Create(snap).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	return snap, nil
}

// Latest returns the newest non-draft snapshot for (student, activity).
func (e *Engine) Latest(studentID, activityID uint) (*models.CodeSnapshot, error) {
	var snap models.CodeSnapshot
	err := e.db.
		Where("student_id = ? AND activity_id = ? AND type <> ?", studentID, activityID, models.SnapshotDraft).
		Order("sequence_number DESC").
		First(&snap).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("snapshot")
		}
		return nil, apperr.Internal(err)
	}
	return &snap, nil
}

// History returns all non-draft snapshots for (student, activity), oldest
// first.
func (e *Engine) History(studentID, activityID uint) ([]models.CodeSnapshot, error) {
	var snaps []models.CodeSnapshot
	err := e.db.
		Where("student_id = ? AND activity_id = ? AND type <> ?", studentID, activityID, models.SnapshotDraft).
		Order("created_at ASC").
		Find(&snaps).Error
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return snaps, nil
}

// ClassifyRevisions runs the revision-pattern classifier over the full
// history for (student, activity).
func (e *Engine) ClassifyRevisions(studentID, activityID uint) (Classification, error) {
	snaps, err := e.History(studentID, activityID)
	if err != nil {
		return Classification{}, err
	}
	return Classify(snaps), nil
}

// SaveDraft upserts the draft singleton for (student, activity).
func (e *Engine) SaveDraft(studentID, activityID, labSessionID uint, code string) (*models.CodeSnapshot, error) {
	var draft models.CodeSnapshot
	err := e.db.
		Where("student_id = ? AND activity_id = ? AND type = ?", studentID, activityID, models.SnapshotDraft).
		First(&draft).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		draft = models.CodeSnapshot{
			StudentID:    studentID,
			ActivityID:   activityID,
			LabSessionID: labSessionID,
			Type:         models.SnapshotDraft,
		}
	case err != nil:
		return nil, apperr.Internal(err)
	}

	draft.Code = code
	draft.Metrics = Metrics(code)
	if err := e.db.Save(&draft).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	return &draft, nil
}

// GetDraft returns the draft singleton for (student, activity).
func (e *Engine) GetDraft(studentID, activityID uint) (*models.CodeSnapshot, error) {
	var draft models.CodeSnapshot
	err := e.db.
		Where("student_id = ? AND activity_id = ? AND type = ?", studentID, activityID, models.SnapshotDraft).
		First(&draft).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("draft")
		}
		return nil, apperr.Internal(err)
	}
	return &draft, nil
}

// ClearDraft deletes the draft singleton for (student, activity).
func (e *Engine) ClearDraft(studentID, activityID uint) error {
	err := e.db.
		Where("student_id = ? AND activity_id = ? AND type = ?", studentID, activityID, models.SnapshotDraft).
		Delete(&models.CodeSnapshot{}).Error
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}
