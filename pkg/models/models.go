// CodeLab data model
// Entities for lab sessions, activities, submissions, snapshots and monitoring

package models

import (
	"time"

	"gorm.io/gorm"
)

// User roles
const (
	RoleStudent    = "student"
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"
)

// Lab session statuses
const (
	SessionScheduled = "scheduled"
	SessionOngoing   = "ongoing"
	SessionCompleted = "completed"
	SessionCancelled = "cancelled"
)

// Submission statuses
const (
	SubmissionPassed       = "passed"
	SubmissionFailed       = "failed"
	SubmissionResubmission = "resubmission_required"
	SubmissionError        = "error"
)

// Snapshot types
const (
	SnapshotAuto        = "auto"
	SnapshotSubmit      = "submit"
	SnapshotRun         = "run"
	SnapshotHintRequest = "hint_request"
	SnapshotManual      = "manual"
	SnapshotDraft       = "draft"
)

// Monitoring event types
const (
	EventBlur         = "blur"
	EventFocus        = "focus"
	EventPaste        = "paste"
	EventBlockedPaste = "blocked_paste"
	EventIdleStart    = "idle_start"
	EventIdleEnd      = "idle_end"
	EventCodeChange   = "code_change"
)

// User is the identity record. The role discriminator selects which of the
// role-specific fields are populated: a student user carries the embedded
// student profile fields, an instructor carries EmployeeID.
type User struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Name         string `json:"name" gorm:"not null"`
	Email        string `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash string `json:"-" gorm:"not null"`
	Role         string `json:"role" gorm:"not null;index"` // student, instructor, admin

	// Student profile (role = student). StudentID is sparse-unique: NULL for
	// non-students, unique when present.
	StudentID *string `json:"studentId,omitempty" gorm:"uniqueIndex"`
	Course    string  `json:"course,omitempty"`
	YearLevel int     `json:"yearLevel,omitempty"` // 1-4
	Section   string  `json:"section,omitempty"`

	// Instructor profile (role = instructor).
	EmployeeID *string `json:"employeeId,omitempty" gorm:"uniqueIndex"`
}

// IsStudent reports whether the user carries a student profile.
func (u *User) IsStudent() bool { return u.Role == RoleStudent }

// IsInstructor reports whether the user is an instructor.
func (u *User) IsInstructor() bool { return u.Role == RoleInstructor }

// LabSession is a scheduled classroom period grouping coding activities for
// one cohort (course, year level, section).
type LabSession struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Title        string    `json:"title" gorm:"not null"`
	InstructorID uint      `json:"instructorId" gorm:"not null;index"`
	Instructor   User      `json:"instructor" gorm:"foreignKey:InstructorID"`
	Course       string    `json:"course" gorm:"not null"`
	YearLevel    int       `json:"yearLevel" gorm:"not null"`
	Section      string    `json:"section" gorm:"not null"`
	ScheduledAt  time.Time `json:"scheduledAt"`
	StartTime    string    `json:"startTime"` // wall clock, HH:MM
	EndTime      string    `json:"endTime"`

	// IsActive gates student read access. Status is informational.
	IsActive bool   `json:"isActive" gorm:"default:false;index"`
	Status   string `json:"status" gorm:"default:'scheduled'"`

	Activities  []Activity          `json:"activities,omitempty" gorm:"foreignKey:LabSessionID"`
	Enrollments []SessionEnrollment `json:"enrollments,omitempty" gorm:"foreignKey:LabSessionID"`
}

// SessionEnrollment is the membership of one student in one lab session.
type SessionEnrollment struct {
	ID           uint      `json:"id" gorm:"primarykey"`
	LabSessionID uint      `json:"labSessionId" gorm:"not null;uniqueIndex:idx_session_student"`
	StudentID    uint      `json:"studentId" gorm:"not null;uniqueIndex:idx_session_student"`
	Student      User      `json:"student" gorm:"foreignKey:StudentID"`
	EnrolledAt   time.Time `json:"enrolledAt" gorm:"autoCreateTime"`
}

// Activity is one coding task inside a lab session.
type Activity struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	LabSessionID   uint   `json:"labSessionId" gorm:"not null;index"`
	Title          string `json:"title" gorm:"not null"`
	Description    string `json:"description" gorm:"type:text"`
	OrderInSession int    `json:"orderInSession" gorm:"not null"`
	Language       string `json:"language" gorm:"not null"` // c, cpp, java, python
	Difficulty     string `json:"difficulty"`
	Type           string `json:"type" gorm:"default:'practice'"` // practice, final
	StarterCode    string `json:"starterCode" gorm:"type:text"`

	// AIAssistLevel 0 means lockdown: no hint access during the attempt.
	AIAssistLevel    int  `json:"aiAssistLevel" gorm:"default:3"` // 0-5
	TimeLimitMinutes int  `json:"timeLimitMinutes"`
	IsActive         bool `json:"isActive" gorm:"default:true"`

	TestCases []TestCase `json:"testCases,omitempty" gorm:"foreignKey:ActivityID"`
}

// TestCase is one (input, expected output) fixture for an activity.
type TestCase struct {
	ID             uint    `json:"id" gorm:"primarykey"`
	ActivityID     uint    `json:"activityId" gorm:"not null;index"`
	Input          string  `json:"input" gorm:"type:text"`
	ExpectedOutput string  `json:"expectedOutput" gorm:"type:text;not null"`
	IsHidden       bool    `json:"isHidden" gorm:"default:false"`
	Weight         float64 `json:"weight" gorm:"default:1"`
	OrderIndex     int     `json:"orderIndex"`
}

// TestResult is the per-testcase outcome embedded in a submission. The
// expected output is snapshotted at submission time so the record stays a
// faithful history even if the test case is edited later.
type TestResult struct {
	TestCaseID     uint    `json:"testCaseId"`
	Input          string  `json:"input"`
	ExpectedOutput string  `json:"expectedOutput"`
	ActualOutput   string  `json:"actualOutput"`
	Passed         bool    `json:"passed"`
	Weight         float64 `json:"weight"`
	IsHidden       bool    `json:"isHidden"`
	ErrorMessage   string  `json:"errorMessage,omitempty"`
}

// Submission is one evaluated attempt. Immutable after scoring.
type Submission struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`

	StudentID    uint   `json:"studentId" gorm:"not null;index"`
	Student      User   `json:"student" gorm:"foreignKey:StudentID"`
	ActivityID   uint   `json:"activityId" gorm:"not null;index"`
	LabSessionID uint   `json:"labSessionId" gorm:"not null;index"`
	Code         string `json:"code" gorm:"type:text;not null"`
	Language     string `json:"language" gorm:"not null"`

	TestResults   []TestResult `json:"testResults" gorm:"serializer:json"`
	Score         float64      `json:"score"`  // 0-100
	Status        string       `json:"status"` // passed, failed, resubmission_required, error
	AttemptNumber int          `json:"attemptNumber" gorm:"default:1"`
}

// SnapshotMetrics are cheap size metrics computed at snapshot time.
type SnapshotMetrics struct {
	LineCount int `json:"lineCount"`
	CharCount int `json:"charCount"`
}

// SnapshotDiff describes the line-level change from the previous snapshot.
type SnapshotDiff struct {
	LinesAdded        int     `json:"linesAdded"`
	LinesRemoved      int     `json:"linesRemoved"`
	LinesModified     int     `json:"linesModified"`
	TimeSincePrevious float64 `json:"timeSincePrevious"` // seconds
}

// BehavioralContext is optional client-reported activity since the previous
// snapshot.
type BehavioralContext struct {
	KeystrokesSinceLastSnapshot  int   `json:"keystrokesSinceLastSnapshot"`
	PasteEventsSinceLastSnapshot int   `json:"pasteEventsSinceLastSnapshot"`
	IdleTimeSinceLastSnapshot    int64 `json:"idleTimeSinceLastSnapshot"`
}

// CodeSnapshot is a persisted copy of a student's in-progress code.
// Non-draft snapshots are append-only with a monotone sequence number per
// (student, activity); the draft snapshot is a singleton upserted in place.
type CodeSnapshot struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	StudentID    uint   `json:"studentId" gorm:"not null;index:idx_snap_student_activity"`
	ActivityID   uint   `json:"activityId" gorm:"not null;index:idx_snap_student_activity"`
	LabSessionID uint   `json:"labSessionId" gorm:"index"`
	Code         string `json:"code" gorm:"type:text"`
	Type         string `json:"type" gorm:"not null;index"` // auto, submit, run, hint_request, manual, draft

	SequenceNumber    int                `json:"sequenceNumber"`
	Metrics           SnapshotMetrics    `json:"metrics" gorm:"embedded;embeddedPrefix:metric_"`
	DiffFromPrevious  *SnapshotDiff      `json:"diffFromPrevious,omitempty" gorm:"serializer:json"`
	BehavioralContext *BehavioralContext `json:"behavioralContext,omitempty" gorm:"serializer:json"`
}

// MonitoringSession is one student's active-attention window on an activity.
// At most one open session exists per (student, activity).
type MonitoringSession struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	MonitoringID string     `json:"monitoringId" gorm:"uniqueIndex;not null"`
	StudentID    uint       `json:"studentId" gorm:"not null;index:idx_mon_student_activity"`
	ActivityID   uint       `json:"activityId" gorm:"not null;index:idx_mon_student_activity"`
	LabSessionID uint       `json:"labSessionId" gorm:"not null;index"`
	StartedAt    time.Time  `json:"startedAt"`
	EndedAt      *time.Time `json:"endedAt,omitempty"`

	TabSwitchCount    int   `json:"tabSwitchCount"`
	PasteCount        int   `json:"pasteCount"`
	BlockedPasteCount int   `json:"blockedPasteCount"`
	TimeAwayMs        int64 `json:"timeAwayMs"`
	TotalIdleMs       int64 `json:"totalIdleMs"`
	TotalActiveTime   int64 `json:"totalActiveTime"` // ms, client-reported on end

	Flags []string `json:"flags" gorm:"serializer:json"`
}

// Open reports whether the monitoring window is still accepting events.
func (m *MonitoringSession) Open() bool { return m.EndedAt == nil }

// TimeAwayPercentage returns time away as a share of total active time.
func (m *MonitoringSession) TimeAwayPercentage() float64 {
	if m.TotalActiveTime <= 0 {
		return 0
	}
	return float64(m.TimeAwayMs) / float64(m.TotalActiveTime) * 100
}

// MonitoringEvent is one observed client signal, append-only.
type MonitoringEvent struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`

	MonitoringSessionID uint      `json:"monitoringSessionId" gorm:"not null;index"`
	StudentID           uint      `json:"studentId" gorm:"index"`
	ActivityID          uint      `json:"activityId" gorm:"index"`
	LabSessionID        uint      `json:"labSessionId" gorm:"index"`
	Type                string    `json:"type" gorm:"not null"`
	Timestamp           time.Time `json:"timestamp"`

	// Paste payload
	PasteSize  int  `json:"pasteSize,omitempty"`
	IsExternal bool `json:"isExternal,omitempty"`

	// Idle payload
	IdleMs int64 `json:"idleMs,omitempty"`
}
