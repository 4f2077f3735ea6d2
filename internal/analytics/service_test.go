package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"codelab/internal/apperr"
	"codelab/internal/cache"
	"codelab/internal/db"
	"codelab/internal/fabric"
	"codelab/pkg/models"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	gdb := db.OpenTest(t)
	return NewService(gdb, cache.New("", time.Second), fabric.NewHub()), gdb
}

func seedPlatform(t *testing.T, gdb *gorm.DB) (instructor, student *models.User, session *models.LabSession, act *models.Activity) {
	t.Helper()
	instructor = &models.User{Name: "Ira", Email: "ira@example.edu", PasswordHash: "x", Role: models.RoleInstructor}
	require.NoError(t, gdb.Create(instructor).Error)
	student = &models.User{Name: "Ana", Email: "ana@example.edu", PasswordHash: "x",
		Role: models.RoleStudent, Course: "BSCS", YearLevel: 2, Section: "A"}
	require.NoError(t, gdb.Create(student).Error)
	session = &models.LabSession{Title: "Lab", InstructorID: instructor.ID,
		Course: "BSCS", YearLevel: 2, Section: "A", IsActive: true}
	require.NoError(t, gdb.Create(session).Error)
	require.NoError(t, gdb.Create(&models.SessionEnrollment{
		LabSessionID: session.ID, StudentID: student.ID}).Error)
	act = &models.Activity{LabSessionID: session.ID, Title: "Echo",
		Language: "python", OrderInSession: 1, IsActive: true}
	require.NoError(t, gdb.Create(act).Error)
	return instructor, student, session, act
}

func TestOverview(t *testing.T) {
	s, gdb := newTestService(t)
	_, student, session, act := seedPlatform(t, gdb)

	subs := []models.Submission{
		{StudentID: student.ID, ActivityID: act.ID, LabSessionID: session.ID,
			Code: "a", Language: "python", Score: 100, Status: models.SubmissionPassed},
		{StudentID: student.ID, ActivityID: act.ID, LabSessionID: session.ID,
			Code: "b", Language: "python", Score: 40, Status: models.SubmissionFailed},
	}
	for i := range subs {
		require.NoError(t, gdb.Create(&subs[i]).Error)
	}

	o, err := s.Overview()
	require.NoError(t, err)
	assert.EqualValues(t, 1, o.TotalStudents)
	assert.EqualValues(t, 1, o.TotalInstructors)
	assert.EqualValues(t, 1, o.TotalSessions)
	assert.EqualValues(t, 1, o.ActiveSessions)
	assert.EqualValues(t, 1, o.TotalActivities)
	assert.EqualValues(t, 2, o.TotalSubmissions)
	assert.InDelta(t, 70.0, o.AverageScore, 0.001)
	assert.InDelta(t, 50.0, o.PassRate, 0.001)
}

func TestOverviewEmptyPlatform(t *testing.T) {
	s, _ := newTestService(t)
	o, err := s.Overview()
	require.NoError(t, err)
	assert.Zero(t, o.TotalSubmissions)
	assert.Zero(t, o.AverageScore)
	assert.Zero(t, o.PassRate)
}

func TestLiveCachesBetweenCalls(t *testing.T) {
	s, gdb := newTestService(t)
	_, student, session, act := seedPlatform(t, gdb)

	view, err := s.Live(context.Background())
	require.NoError(t, err)
	assert.Len(t, view.ActiveSessions, 1)
	assert.Empty(t, view.RecentSubmissions)

	// A submission landing within the cache TTL is not visible yet.
	require.NoError(t, gdb.Create(&models.Submission{
		StudentID: student.ID, ActivityID: act.ID, LabSessionID: session.ID,
		Code: "a", Language: "python", Score: 100, Status: models.SubmissionPassed,
	}).Error)

	view, err = s.Live(context.Background())
	require.NoError(t, err)
	assert.Empty(t, view.RecentSubmissions)
}

func TestSessionBreakdown(t *testing.T) {
	s, gdb := newTestService(t)
	instructor, student, session, act := seedPlatform(t, gdb)

	subs := []models.Submission{
		{StudentID: student.ID, ActivityID: act.ID, LabSessionID: session.ID,
			Code: "a", Language: "python", Score: 60, Status: models.SubmissionFailed},
		{StudentID: student.ID, ActivityID: act.ID, LabSessionID: session.ID,
			Code: "b", Language: "python", Score: 100, Status: models.SubmissionPassed},
	}
	for i := range subs {
		require.NoError(t, gdb.Create(&subs[i]).Error)
	}
	require.NoError(t, gdb.Create(&models.MonitoringSession{
		MonitoringID: "m-1", StudentID: student.ID, ActivityID: act.ID,
		LabSessionID: session.ID, StartedAt: time.Now().UTC(),
		TabSwitchCount: 4, Flags: []string{"large_paste"},
	}).Error)

	view, err := s.Session(session.ID, instructor.ID, models.RoleInstructor)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Enrolled)
	assert.Equal(t, 1, view.Activities)
	assert.Equal(t, 2, view.Submissions)
	require.Len(t, view.Students, 1)

	row := view.Students[0]
	assert.Equal(t, "Ana", row.StudentName)
	assert.Equal(t, 2, row.Submissions)
	assert.Equal(t, 100.0, row.BestScore)
	assert.Equal(t, 1, row.Passed)
	assert.Equal(t, 4, row.TabSwitchCount)
	assert.Equal(t, 1, row.FlagCount)
	assert.False(t, row.Online)
}

func TestSessionOwnership(t *testing.T) {
	s, gdb := newTestService(t)
	_, _, session, _ := seedPlatform(t, gdb)

	other := &models.User{Name: "Olga", Email: "olga@example.edu", PasswordHash: "x", Role: models.RoleInstructor}
	require.NoError(t, gdb.Create(other).Error)

	_, err := s.Session(session.ID, other.ID, models.RoleInstructor)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = s.Session(session.ID, other.ID, models.RoleAdmin)
	assert.NoError(t, err)

	_, err = s.Session(999, other.ID, models.RoleAdmin)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
