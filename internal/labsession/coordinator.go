// CodeLab lab-session coordinator
// Session lifecycle, enrollment management and the update fan-out that keeps
// connected dashboards in sync

package labsession

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"codelab/internal/apperr"
	"codelab/internal/fabric"
	"codelab/internal/logging"
	"codelab/internal/metrics"
	"codelab/pkg/models"
)

// Emitter is the slice of the event fabric the coordinator publishes on.
// *fabric.Hub satisfies it.
type Emitter interface {
	EmitToLabSession(sessionID uint, event string, payload interface{})
	EmitToAllInstructors(event string, payload interface{})
	EmitToAllStudents(event string, payload interface{})
	EmitToUsers(userIDs []uint, event string, payload interface{})
}

// Coordinator owns session lifecycle and enrollment rules.
type Coordinator struct {
	db      *gorm.DB
	emitter Emitter
}

func NewCoordinator(db *gorm.DB, emitter Emitter) *Coordinator {
	return &Coordinator{db: db, emitter: emitter}
}

// CreateInput carries the instructor-supplied session fields.
type CreateInput struct {
	Title       string    `json:"title" binding:"required"`
	Course      string    `json:"course" binding:"required"`
	YearLevel   int       `json:"yearLevel" binding:"required,min=1,max=4"`
	Section     string    `json:"section" binding:"required"`
	ScheduledAt time.Time `json:"scheduledAt"`
	StartTime   string    `json:"startTime"`
	EndTime     string    `json:"endTime"`
	IsActive    bool      `json:"isActive"`
	StudentIDs  []uint    `json:"studentIds"`
}

// Create persists a session owned by the instructor, enrolls any listed
// students and returns the hydrated view.
func (c *Coordinator) Create(instructorID uint, in CreateInput) (*models.LabSession, error) {
	session := &models.LabSession{
		Title:        strings.TrimSpace(in.Title),
		InstructorID: instructorID,
		Course:       strings.TrimSpace(in.Course),
		YearLevel:    in.YearLevel,
		Section:      strings.TrimSpace(in.Section),
		ScheduledAt:  in.ScheduledAt,
		StartTime:    in.StartTime,
		EndTime:      in.EndTime,
		IsActive:     in.IsActive,
		Status:       models.SessionScheduled,
	}
	if session.Title == "" {
		return nil, apperr.Validation("title is required")
	}
	if in.YearLevel < 1 || in.YearLevel > 4 {
		return nil, apperr.Validation("yearLevel must be between 1 and 4")
	}
	if session.IsActive {
		session.Status = models.SessionOngoing
	}
	if err := c.db.Create(session).Error; err != nil {
		return nil, apperr.Internal(err)
	}

	var enrolled []uint
	for _, sid := range in.StudentIDs {
		if _, err := c.enroll(c.db, session, sid); err != nil {
			logging.S().Warnw("skipping student on session create",
				"sessionId", session.ID, "studentId", sid, "error", err)
			continue
		}
		enrolled = append(enrolled, sid)
	}

	hydrated, err := c.hydrate(session.ID)
	if err != nil {
		return nil, err
	}

	c.emitter.EmitToAllInstructors(fabric.EventSessionCreated, hydrated)
	if hydrated.IsActive && len(enrolled) > 0 {
		c.emitter.EmitToUsers(enrolled, fabric.EventSessionCreated, hydrated)
	}
	c.refreshActiveGauge()
	return hydrated, nil
}

// Get returns the hydrated session, role-gated: students must be enrolled in
// an active session, instructors must own it, admins see everything.
func (c *Coordinator) Get(id, callerID uint, role string) (*models.LabSession, error) {
	session, err := c.hydrate(id)
	if err != nil {
		return nil, err
	}
	switch role {
	case models.RoleAdmin:
	case models.RoleInstructor:
		if session.InstructorID != callerID {
			return nil, apperr.Forbidden("you do not own this lab session")
		}
	case models.RoleStudent:
		if !session.IsActive {
			return nil, apperr.Forbidden("this lab session is not active")
		}
		if !c.isEnrolled(id, callerID) {
			return nil, apperr.Forbidden("you are not enrolled in this lab session")
		}
	default:
		return nil, apperr.Forbidden("unknown role")
	}
	return session, nil
}

// List returns the sessions visible to the caller: owned sessions for an
// instructor, active enrolled sessions for a student, all for an admin.
func (c *Coordinator) List(callerID uint, role string) ([]models.LabSession, error) {
	var sessions []models.LabSession
	q := c.db.Preload("Instructor").
		Preload("Activities", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_in_session ASC")
		}).
		Preload("Enrollments.Student").
		Order("scheduled_at DESC")

	switch role {
	case models.RoleAdmin:
	case models.RoleInstructor:
		q = q.Where("instructor_id = ?", callerID)
	case models.RoleStudent:
		q = q.Where("is_active = ?", true).
			Where("id IN (?)", c.db.Model(&models.SessionEnrollment{}).
				Select("lab_session_id").Where("student_id = ?", callerID))
	default:
		return nil, apperr.Forbidden("unknown role")
	}
	if err := q.Find(&sessions).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	return sessions, nil
}

// UpdateInput is a partial patch; nil fields are left untouched.
type UpdateInput struct {
	Title       *string    `json:"title"`
	Course      *string    `json:"course"`
	YearLevel   *int       `json:"yearLevel"`
	Section     *string    `json:"section"`
	ScheduledAt *time.Time `json:"scheduledAt"`
	StartTime   *string    `json:"startTime"`
	EndTime     *string    `json:"endTime"`
	Status      *string    `json:"status"`
}

// Update applies the patch and fans the refreshed view out to both roles.
func (c *Coordinator) Update(id, instructorID uint, in UpdateInput) (*models.LabSession, error) {
	session, err := c.owned(id, instructorID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if in.Title != nil {
		updates["title"] = strings.TrimSpace(*in.Title)
	}
	if in.Course != nil {
		updates["course"] = strings.TrimSpace(*in.Course)
	}
	if in.YearLevel != nil {
		if *in.YearLevel < 1 || *in.YearLevel > 4 {
			return nil, apperr.Validation("yearLevel must be between 1 and 4")
		}
		updates["year_level"] = *in.YearLevel
	}
	if in.Section != nil {
		updates["section"] = strings.TrimSpace(*in.Section)
	}
	if in.ScheduledAt != nil {
		updates["scheduled_at"] = *in.ScheduledAt
	}
	if in.StartTime != nil {
		updates["start_time"] = *in.StartTime
	}
	if in.EndTime != nil {
		updates["end_time"] = *in.EndTime
	}
	if in.Status != nil {
		switch *in.Status {
		case models.SessionScheduled, models.SessionOngoing, models.SessionCompleted, models.SessionCancelled:
			updates["status"] = *in.Status
		default:
			return nil, apperr.Validation("invalid session status")
		}
	}
	if len(updates) > 0 {
		if err := c.db.Model(session).Updates(updates).Error; err != nil {
			return nil, apperr.Internal(err)
		}
	}

	hydrated, err := c.hydrate(id)
	if err != nil {
		return nil, err
	}
	c.emitter.EmitToAllStudents(fabric.EventSessionUpdated, hydrated)
	c.emitter.EmitToAllInstructors(fabric.EventSessionUpdated, hydrated)
	return hydrated, nil
}

// Activate opens the session to its enrolled students.
func (c *Coordinator) Activate(id, instructorID uint) (*models.LabSession, error) {
	return c.setActive(id, instructorID, true)
}

// Deactivate closes the session to students.
func (c *Coordinator) Deactivate(id, instructorID uint) (*models.LabSession, error) {
	return c.setActive(id, instructorID, false)
}

func (c *Coordinator) setActive(id, instructorID uint, active bool) (*models.LabSession, error) {
	session, err := c.owned(id, instructorID)
	if err != nil {
		return nil, err
	}

	status := models.SessionCompleted
	event := fabric.EventSessionDeactivated
	if active {
		status = models.SessionOngoing
		event = fabric.EventSessionActivated
	}
	updates := map[string]interface{}{"is_active": active, "status": status}
	if err := c.db.Model(session).Updates(updates).Error; err != nil {
		return nil, apperr.Internal(err)
	}

	hydrated, err := c.hydrate(id)
	if err != nil {
		return nil, err
	}
	c.emitter.EmitToLabSession(id, fabric.EventSessionUpdated, hydrated)
	c.emitter.EmitToAllStudents(event, map[string]interface{}{
		"sessionId": id,
		"title":     hydrated.Title,
		"isActive":  active,
	})
	c.refreshActiveGauge()
	return hydrated, nil
}

// Delete removes the session and everything it owns: test cases under its
// activities, the activities, the enrollments, then the session record.
func (c *Coordinator) Delete(id, instructorID uint) error {
	if _, err := c.owned(id, instructorID); err != nil {
		return err
	}

	err := c.db.Transaction(func(tx *gorm.DB) error {
		activityIDs := tx.Model(&models.Activity{}).
			Select("id").Where("lab_session_id = ?", id)
		if err := tx.Where("activity_id IN (?)", activityIDs).
			Delete(&models.TestCase{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("lab_session_id = ?", id).
			Delete(&models.Activity{}).Error; err != nil {
			return err
		}
		if err := tx.Where("lab_session_id = ?", id).
			Delete(&models.SessionEnrollment{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&models.LabSession{}, id).Error
	})
	if err != nil {
		return apperr.Internal(err)
	}

	c.emitter.EmitToAllStudents(fabric.EventSessionDeleted, map[string]interface{}{"sessionId": id})
	c.emitter.EmitToAllInstructors(fabric.EventSessionDeleted, map[string]interface{}{"sessionId": id})
	c.refreshActiveGauge()
	return nil
}

// EnrollFailure explains why one student could not be enrolled.
type EnrollFailure struct {
	StudentID uint   `json:"studentId"`
	Reason    string `json:"reason"`
}

// AddStudentsResult partitions an enrollment request into successes and
// per-student failures.
type AddStudentsResult struct {
	AddedCount int             `json:"addedCount"`
	Failures   []EnrollFailure `json:"failures"`
}

// AddStudentsInput enrolls either an explicit id list or, with BulkFilter,
// every student whose cohort matches the session's.
type AddStudentsInput struct {
	StudentIDs []uint `json:"studentIds"`
	BulkFilter bool   `json:"bulkFilter"`
}

// AddStudents enrolls students one by one, collecting failures instead of
// aborting. The updated event fires only when at least one was added.
func (c *Coordinator) AddStudents(id, instructorID uint, in AddStudentsInput) (*AddStudentsResult, error) {
	session, err := c.owned(id, instructorID)
	if err != nil {
		return nil, err
	}

	ids := in.StudentIDs
	if in.BulkFilter {
		if err := c.db.Model(&models.User{}).
			Where("role = ? AND course = ? AND year_level = ? AND section = ?",
				models.RoleStudent, session.Course, session.YearLevel, session.Section).
			Pluck("id", &ids).Error; err != nil {
			return nil, apperr.Internal(err)
		}
	}
	if len(ids) == 0 {
		return nil, apperr.Validation("no students to enroll")
	}

	result := &AddStudentsResult{Failures: []EnrollFailure{}}
	for _, sid := range ids {
		if _, err := c.enroll(c.db, session, sid); err != nil {
			result.Failures = append(result.Failures, EnrollFailure{
				StudentID: sid,
				Reason:    apperr.Message(err),
			})
			continue
		}
		result.AddedCount++
	}

	if result.AddedCount > 0 {
		hydrated, err := c.hydrate(id)
		if err != nil {
			return nil, err
		}
		c.emitter.EmitToAllStudents(fabric.EventSessionUpdated, hydrated)
		c.emitter.EmitToAllInstructors(fabric.EventSessionUpdated, hydrated)
	} else if len(result.Failures) > 0 {
		return result, apperr.Validation("no students could be enrolled")
	}
	return result, nil
}

// RemoveStudent drops one enrollment.
func (c *Coordinator) RemoveStudent(id, instructorID, studentID uint) error {
	if _, err := c.owned(id, instructorID); err != nil {
		return err
	}
	res := c.db.Where("lab_session_id = ? AND student_id = ?", id, studentID).
		Delete(&models.SessionEnrollment{})
	if res.Error != nil {
		return apperr.Internal(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("enrollment")
	}

	hydrated, err := c.hydrate(id)
	if err != nil {
		return err
	}
	c.emitter.EmitToAllStudents(fabric.EventSessionUpdated, hydrated)
	c.emitter.EmitToAllInstructors(fabric.EventSessionUpdated, hydrated)
	return nil
}

// AvailableStudents lists cohort-matching students not yet enrolled.
func (c *Coordinator) AvailableStudents(id, instructorID uint) ([]models.User, error) {
	session, err := c.owned(id, instructorID)
	if err != nil {
		return nil, err
	}
	var students []models.User
	enrolledIDs := c.db.Model(&models.SessionEnrollment{}).
		Select("student_id").Where("lab_session_id = ?", id)
	err = c.db.Where("role = ? AND course = ? AND year_level = ? AND section = ?",
		models.RoleStudent, session.Course, session.YearLevel, session.Section).
		Where("id NOT IN (?)", enrolledIDs).
		Order("name ASC").
		Find(&students).Error
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return students, nil
}

// enroll validates the student against the session cohort and inserts the
// enrollment row. The unique (session, student) index catches duplicates.
func (c *Coordinator) enroll(db *gorm.DB, session *models.LabSession, studentID uint) (*models.SessionEnrollment, error) {
	var student models.User
	if err := db.First(&student, studentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("student")
		}
		return nil, apperr.Internal(err)
	}
	if !student.IsStudent() {
		return nil, apperr.Validation("user is not a student")
	}
	if student.Course != session.Course || student.YearLevel != session.YearLevel || student.Section != session.Section {
		return nil, apperr.Validation(fmt.Sprintf(
			"student course/year/section (%s/%d/%s) does not match session (%s/%d/%s)",
			student.Course, student.YearLevel, student.Section,
			session.Course, session.YearLevel, session.Section))
	}

	enrollment := &models.SessionEnrollment{
		LabSessionID: session.ID,
		StudentID:    studentID,
	}
	if err := db.Create(enrollment).Error; err != nil {
		if isDuplicate(err) {
			return nil, apperr.Conflict("Already enrolled in this session")
		}
		return nil, apperr.Internal(err)
	}
	return enrollment, nil
}

// owned loads the session and checks instructor ownership.
func (c *Coordinator) owned(id, instructorID uint) (*models.LabSession, error) {
	var session models.LabSession
	if err := c.db.First(&session, id).Error; err != nil {
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

// hydrate loads the full session view: instructor, enrollments with student
// info, activities in order with their test cases.
func (c *Coordinator) hydrate(id uint) (*models.LabSession, error) {
	var session models.LabSession
	err := c.db.Preload("Instructor").
		Preload("Enrollments.Student").
		Preload("Activities", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_in_session ASC")
		}).
		Preload("Activities.TestCases", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_index ASC")
		}).
		First(&session, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("lab session")
		}
		return nil, apperr.Internal(err)
	}
	return &session, nil
}

func (c *Coordinator) isEnrolled(sessionID, studentID uint) bool {
	var n int64
	c.db.Model(&models.SessionEnrollment{}).
		Where("lab_session_id = ? AND student_id = ?", sessionID, studentID).
		Count(&n)
	return n > 0
}

func (c *Coordinator) refreshActiveGauge() {
	var n int64
	c.db.Model(&models.LabSession{}).Where("is_active = ?", true).Count(&n)
	metrics.Get().ActiveLabSessionsGauge.Set(float64(n))
}

// isDuplicate detects unique-index violations from both the postgres and
// sqlite drivers.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
