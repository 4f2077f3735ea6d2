// CodeLab analytics
// Dashboard aggregates over users, sessions and submissions; the live view
// is cached for a few seconds since every open instructor dashboard polls it

package analytics

import (
	"context"

	"gorm.io/gorm"

	"codelab/internal/apperr"
	"codelab/internal/cache"
	"codelab/internal/fabric"
	"codelab/pkg/models"
)

const liveCacheKey = "analytics:live"

// Service computes instructor dashboard aggregates.
type Service struct {
	db    *gorm.DB
	cache *cache.LiveCache
	hub   *fabric.Hub
}

func NewService(db *gorm.DB, liveCache *cache.LiveCache, hub *fabric.Hub) *Service {
	return &Service{db: db, cache: liveCache, hub: hub}
}

// Overview is the all-time platform summary.
type Overview struct {
	TotalStudents    int64   `json:"totalStudents"`
	TotalInstructors int64   `json:"totalInstructors"`
	TotalSessions    int64   `json:"totalSessions"`
	ActiveSessions   int64   `json:"activeSessions"`
	TotalActivities  int64   `json:"totalActivities"`
	TotalSubmissions int64   `json:"totalSubmissions"`
	AverageScore     float64 `json:"averageScore"`
	PassRate         float64 `json:"passRate"`
}

func (s *Service) Overview() (*Overview, error) {
	o := &Overview{}
	s.db.Model(&models.User{}).Where("role = ?", models.RoleStudent).Count(&o.TotalStudents)
	s.db.Model(&models.User{}).Where("role = ?", models.RoleInstructor).Count(&o.TotalInstructors)
	s.db.Model(&models.LabSession{}).Count(&o.TotalSessions)
	s.db.Model(&models.LabSession{}).Where("is_active = ?", true).Count(&o.ActiveSessions)
	s.db.Model(&models.Activity{}).Count(&o.TotalActivities)
	s.db.Model(&models.Submission{}).Count(&o.TotalSubmissions)

	if o.TotalSubmissions > 0 {
		var avg *float64
		if err := s.db.Model(&models.Submission{}).
			Select("AVG(score)").Scan(&avg).Error; err != nil {
			return nil, apperr.Internal(err)
		}
		if avg != nil {
			o.AverageScore = *avg
		}
		var passed int64
		s.db.Model(&models.Submission{}).
			Where("status = ?", models.SubmissionPassed).Count(&passed)
		o.PassRate = float64(passed) / float64(o.TotalSubmissions) * 100
	}
	return o, nil
}

// LiveView is the short-lived now-on-the-platform snapshot.
type LiveView struct {
	OnlineStudents    int                    `json:"onlineStudents"`
	OnlineInstructors int                    `json:"onlineInstructors"`
	Students          []fabric.PresenceEntry `json:"students"`
	ActiveSessions    []models.LabSession    `json:"activeSessions"`
	RecentSubmissions []models.Submission    `json:"recentSubmissions"`
}

// Live returns the cached snapshot when fresh, otherwise rebuilds it.
// Presence comes straight from the hub; it is already in memory.
func (s *Service) Live(ctx context.Context) (*LiveView, error) {
	var view LiveView
	if s.cache.GetJSON(ctx, liveCacheKey, &view) {
		return &view, nil
	}

	snap := s.hub.Presence().Snapshot()
	view.OnlineStudents = snap.StudentCount
	view.OnlineInstructors = snap.InstructorCount
	view.Students = snap.Students

	if err := s.db.Preload("Instructor").
		Where("is_active = ?", true).
		Find(&view.ActiveSessions).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	if err := s.db.Preload("Student").
		Order("created_at DESC").Limit(20).
		Find(&view.RecentSubmissions).Error; err != nil {
		return nil, apperr.Internal(err)
	}

	s.cache.SetJSON(ctx, liveCacheKey, &view)
	return &view, nil
}

// StudentSummary is one row of the per-session breakdown.
type StudentSummary struct {
	StudentID      uint    `json:"studentId"`
	StudentName    string  `json:"studentName"`
	Submissions    int     `json:"submissions"`
	BestScore      float64 `json:"bestScore"`
	Passed         int     `json:"passed"`
	TabSwitchCount int     `json:"tabSwitchCount"`
	FlagCount      int     `json:"flagCount"`
	Online         bool    `json:"online"`
}

// SessionView aggregates one lab session for its instructor.
type SessionView struct {
	SessionID   uint             `json:"sessionId"`
	Title       string           `json:"title"`
	Enrolled    int              `json:"enrolled"`
	Activities  int              `json:"activities"`
	Submissions int              `json:"submissions"`
	Students    []StudentSummary `json:"students"`
}

// Session builds the per-student breakdown of one lab session. Only the
// owning instructor or an admin may see it.
func (s *Service) Session(sessionID, callerID uint, role string) (*SessionView, error) {
	var session models.LabSession
	if err := s.db.Preload("Enrollments.Student").First(&session, sessionID).Error; err != nil {
		return nil, apperr.NotFound("lab session")
	}
	if role != models.RoleAdmin && session.InstructorID != callerID {
		return nil, apperr.Forbidden("you do not own this lab session")
	}

	view := &SessionView{
		SessionID: session.ID,
		Title:     session.Title,
		Enrolled:  len(session.Enrollments),
	}
	var activities int64
	s.db.Model(&models.Activity{}).Where("lab_session_id = ?", sessionID).Count(&activities)
	view.Activities = int(activities)

	var subs []models.Submission
	if err := s.db.Where("lab_session_id = ?", sessionID).Find(&subs).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	view.Submissions = len(subs)

	byStudent := make(map[uint]*StudentSummary)
	for _, e := range session.Enrollments {
		byStudent[e.StudentID] = &StudentSummary{
			StudentID:   e.StudentID,
			StudentName: e.Student.Name,
			Online:      s.hub.UserOnline(e.StudentID),
		}
	}
	for _, sub := range subs {
		row, ok := byStudent[sub.StudentID]
		if !ok {
			continue
		}
		row.Submissions++
		if sub.Score > row.BestScore {
			row.BestScore = sub.Score
		}
		if sub.Status == models.SubmissionPassed {
			row.Passed++
		}
	}

	var monSessions []models.MonitoringSession
	if err := s.db.Where("lab_session_id = ?", sessionID).Find(&monSessions).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	for _, m := range monSessions {
		row, ok := byStudent[m.StudentID]
		if !ok {
			continue
		}
		row.TabSwitchCount += m.TabSwitchCount
		row.FlagCount += len(m.Flags)
	}

	for _, e := range session.Enrollments {
		view.Students = append(view.Students, *byStudent[e.StudentID])
	}
	return view, nil
}
