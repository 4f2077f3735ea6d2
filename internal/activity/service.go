package activity

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"codelab/internal/apperr"
	"codelab/internal/fabric"
	"codelab/internal/toolchain"
	"codelab/pkg/models"
)

// Emitter is the fan-out surface for activity lifecycle events.
type Emitter interface {
	EmitToLabSession(sessionID uint, event string, payload interface{})
	EmitToAllInstructors(event string, payload interface{})
}

// Service manages the coding tasks inside lab sessions.
type Service struct {
	db      *gorm.DB
	emitter Emitter
}

func NewService(db *gorm.DB, emitter Emitter) *Service {
	return &Service{db: db, emitter: emitter}
}

// TestCaseInput is one fixture supplied with a create or update.
type TestCaseInput struct {
	Input          string  `json:"input"`
	ExpectedOutput string  `json:"expectedOutput" binding:"required"`
	IsHidden       bool    `json:"isHidden"`
	Weight         float64 `json:"weight"`
	OrderIndex     int     `json:"orderIndex"`
}

// CreateInput carries the instructor-supplied activity fields.
type CreateInput struct {
	Title            string          `json:"title" binding:"required"`
	Description      string          `json:"description"`
	Language         string          `json:"language" binding:"required"`
	Difficulty       string          `json:"difficulty"`
	Type             string          `json:"type"`
	StarterCode      string          `json:"starterCode"`
	AIAssistLevel    *int            `json:"aiAssistLevel"`
	TimeLimitMinutes int             `json:"timeLimitMinutes"`
	TestCases        []TestCaseInput `json:"testCases"`
}

// Create adds an activity to a session the instructor owns. Order within the
// session is assigned as max+1.
func (s *Service) Create(sessionID, instructorID uint, in CreateInput) (*models.Activity, error) {
	session, err := s.ownedSession(sessionID, instructorID)
	if err != nil {
		return nil, err
	}
	if _, err := toolchain.Lookup(in.Language); err != nil {
		return nil, apperr.Validation("unsupported language: " + in.Language)
	}

	level := 3
	if in.AIAssistLevel != nil {
		if *in.AIAssistLevel < 0 || *in.AIAssistLevel > 5 {
			return nil, apperr.Validation("aiAssistLevel must be between 0 and 5")
		}
		level = *in.AIAssistLevel
	}
	kind := in.Type
	if kind == "" {
		kind = "practice"
	}

	var maxOrder int
	s.db.Model(&models.Activity{}).
		Where("lab_session_id = ?", sessionID).
		Select("COALESCE(MAX(order_in_session), 0)").Scan(&maxOrder)

	act := &models.Activity{
		LabSessionID:     sessionID,
		Title:            strings.TrimSpace(in.Title),
		Description:      in.Description,
		OrderInSession:   maxOrder + 1,
		Language:         in.Language,
		Difficulty:       in.Difficulty,
		Type:             kind,
		StarterCode:      in.StarterCode,
		AIAssistLevel:    level,
		TimeLimitMinutes: in.TimeLimitMinutes,
		IsActive:         true,
	}
	for i, tc := range in.TestCases {
		weight := tc.Weight
		if weight <= 0 {
			weight = 1
		}
		act.TestCases = append(act.TestCases, models.TestCase{
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			IsHidden:       tc.IsHidden,
			Weight:         weight,
			OrderIndex:     orderOrDefault(tc.OrderIndex, i),
		})
	}
	if err := s.db.Create(act).Error; err != nil {
		return nil, apperr.Internal(err)
	}

	s.emitter.EmitToLabSession(session.ID, fabric.EventActivityCreated, act)
	s.emitter.EmitToAllInstructors(fabric.EventActivityCreated, act)
	return act, nil
}

// ListForSession returns the session's activities in order. For students the
// hidden test cases are stripped.
func (s *Service) ListForSession(sessionID, callerID uint, role string) ([]models.Activity, error) {
	if role == models.RoleStudent {
		if !s.studentMayAccess(sessionID, callerID) {
			return nil, apperr.Forbidden("you are not enrolled in this lab session")
		}
	}
	var activities []models.Activity
	err := s.db.Preload("TestCases", func(db *gorm.DB) *gorm.DB {
		return db.Order("order_index ASC")
	}).
		Where("lab_session_id = ?", sessionID).
		Order("order_in_session ASC").
		Find(&activities).Error
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if role == models.RoleStudent {
		for i := range activities {
			activities[i].TestCases = visibleOnly(activities[i].TestCases)
		}
	}
	return activities, nil
}

// Get returns one activity. Students get it only while its session is active
// and they are enrolled, with hidden test cases stripped.
func (s *Service) Get(id, callerID uint, role string) (*models.Activity, error) {
	act, err := s.load(id)
	if err != nil {
		return nil, err
	}
	if role == models.RoleStudent {
		if !s.studentMayAccess(act.LabSessionID, callerID) {
			return nil, apperr.Forbidden("you are not enrolled in this lab session")
		}
		act.TestCases = visibleOnly(act.TestCases)
	}
	return act, nil
}

// UpdateInput is a partial patch; nil fields are untouched. A non-nil
// TestCases replaces the fixture set wholesale.
type UpdateInput struct {
	Title            *string          `json:"title"`
	Description      *string          `json:"description"`
	Difficulty       *string          `json:"difficulty"`
	StarterCode      *string          `json:"starterCode"`
	AIAssistLevel    *int             `json:"aiAssistLevel"`
	TimeLimitMinutes *int             `json:"timeLimitMinutes"`
	IsActive         *bool            `json:"isActive"`
	TestCases        *[]TestCaseInput `json:"testCases"`
}

func (s *Service) Update(id, instructorID uint, in UpdateInput) (*models.Activity, error) {
	act, err := s.load(id)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedSession(act.LabSessionID, instructorID); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if in.Title != nil {
		updates["title"] = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	if in.Difficulty != nil {
		updates["difficulty"] = *in.Difficulty
	}
	if in.StarterCode != nil {
		updates["starter_code"] = *in.StarterCode
	}
	if in.AIAssistLevel != nil {
		if *in.AIAssistLevel < 0 || *in.AIAssistLevel > 5 {
			return nil, apperr.Validation("aiAssistLevel must be between 0 and 5")
		}
		updates["ai_assist_level"] = *in.AIAssistLevel
	}
	if in.TimeLimitMinutes != nil {
		updates["time_limit_minutes"] = *in.TimeLimitMinutes
	}
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			if err := tx.Model(act).Updates(updates).Error; err != nil {
				return err
			}
		}
		if in.TestCases != nil {
			if err := tx.Where("activity_id = ?", act.ID).
				Delete(&models.TestCase{}).Error; err != nil {
				return err
			}
			for i, tc := range *in.TestCases {
				weight := tc.Weight
				if weight <= 0 {
					weight = 1
				}
				row := models.TestCase{
					ActivityID:     act.ID,
					Input:          tc.Input,
					ExpectedOutput: tc.ExpectedOutput,
					IsHidden:       tc.IsHidden,
					Weight:         weight,
					OrderIndex:     orderOrDefault(tc.OrderIndex, i),
				}
				if err := tx.Create(&row).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}

	fresh, err := s.load(id)
	if err != nil {
		return nil, err
	}
	s.emitter.EmitToLabSession(fresh.LabSessionID, fabric.EventActivityUpdated, fresh)
	s.emitter.EmitToAllInstructors(fabric.EventActivityUpdated, fresh)
	return fresh, nil
}

// Delete retires an activity. Submissions and snapshots keep referencing it,
// so this is a soft delete; the hard delete happens only on session cascade.
func (s *Service) Delete(id, instructorID uint) error {
	act, err := s.load(id)
	if err != nil {
		return err
	}
	if _, err := s.ownedSession(act.LabSessionID, instructorID); err != nil {
		return err
	}
	if err := s.db.Model(act).Update("is_active", false).Error; err != nil {
		return apperr.Internal(err)
	}
	s.emitter.EmitToLabSession(act.LabSessionID, fabric.EventActivityDeleted,
		map[string]interface{}{"activityId": act.ID, "sessionId": act.LabSessionID})
	s.emitter.EmitToAllInstructors(fabric.EventActivityDeleted,
		map[string]interface{}{"activityId": act.ID, "sessionId": act.LabSessionID})
	return nil
}

func (s *Service) load(id uint) (*models.Activity, error) {
	var act models.Activity
	err := s.db.Preload("TestCases", func(db *gorm.DB) *gorm.DB {
		return db.Order("order_index ASC")
	}).First(&act, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("activity")
		}
		return nil, apperr.Internal(err)
	}
	return &act, nil
}

func (s *Service) ownedSession(sessionID, instructorID uint) (*models.LabSession, error) {
	var session models.LabSession
	if err := s.db.First(&session, sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("lab session")
		}
		return nil, apperr.Internal(err)
	}
	if session.InstructorID != instructorID {
		return nil, apperr.Forbidden("you do not own this lab session")
	}
	return &session, nil
}

// studentMayAccess requires an active session and an enrollment.
func (s *Service) studentMayAccess(sessionID, studentID uint) bool {
	var session models.LabSession
	if err := s.db.First(&session, sessionID).Error; err != nil || !session.IsActive {
		return false
	}
	var n int64
	s.db.Model(&models.SessionEnrollment{}).
		Where("lab_session_id = ? AND student_id = ?", sessionID, studentID).
		Count(&n)
	return n > 0
}

func visibleOnly(cases []models.TestCase) []models.TestCase {
	out := cases[:0:0]
	for _, tc := range cases {
		if !tc.IsHidden {
			out = append(out, tc)
		}
	}
	return out
}

func orderOrDefault(order, i int) int {
	if order > 0 {
		return order
	}
	return i + 1
}
