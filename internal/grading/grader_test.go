package grading

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"codelab/internal/apperr"
	"codelab/internal/db"
	"codelab/internal/fabric"
	"codelab/internal/snapshot"
	"codelab/pkg/models"
)

type nopEmitter struct{}

func (nopEmitter) EmitToUser(uint, string, interface{}) {}

// userEmitter records which user rooms received which events.
type userEmitter struct {
	mu     sync.Mutex
	events []userEvent
}

type userEvent struct {
	userID uint
	event  string
}

func (e *userEmitter) EmitToUser(userID uint, event string, _ interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, userEvent{userID: userID, event: event})
}

func (e *userEmitter) recipients(event string) []uint {
	e.mu.Lock()
	defer e.mu.Unlock()
	var ids []uint
	for _, ev := range e.events {
		if ev.event == event {
			ids = append(ids, ev.userID)
		}
	}
	return ids
}

func newTestGrader(t *testing.T) (*Grader, *gorm.DB) {
	t.Helper()
	gdb := db.OpenTest(t)
	return NewGrader(gdb, snapshot.NewEngine(gdb), nopEmitter{}), gdb
}

// shellInterp installs a stand-in python that runs the submitted source as a
// shell script. Installed once: the resolver memoizes the lookup for the
// process lifetime.
var shellInterp struct {
	once sync.Once
	err  error
}

func useShellInterpreter(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("grading round-trip drives the child through /bin/sh")
	}
	shellInterp.once.Do(func() {
		dir, err := os.MkdirTemp("", "codelab-tool-")
		if err != nil {
			shellInterp.err = err
			return
		}
		path := filepath.Join(dir, "python")
		if err := os.WriteFile(path, []byte("#!/bin/sh\nexec sh \"$1\"\n"), 0o755); err != nil {
			shellInterp.err = err
			return
		}
		shellInterp.err = os.Setenv("PYTHON_PATH", path)
	})
	if shellInterp.err != nil {
		t.Fatal(shellInterp.err)
	}
}

func seedSubmissionFixture(t *testing.T, gdb *gorm.DB, sessionActive bool) (instructor, student *models.User, session *models.LabSession, act *models.Activity) {
	t.Helper()
	instructor = &models.User{Name: "Ira", Email: "ira@example.edu", PasswordHash: "x", Role: models.RoleInstructor}
	require.NoError(t, gdb.Create(instructor).Error)
	student = &models.User{Name: "Ana", Email: "ana@example.edu", PasswordHash: "x",
		Role: models.RoleStudent, Course: "BSCS", YearLevel: 2, Section: "A"}
	require.NoError(t, gdb.Create(student).Error)

	session = &models.LabSession{Title: "Lab", InstructorID: instructor.ID,
		Course: "BSCS", YearLevel: 2, Section: "A", IsActive: sessionActive, Status: models.SessionOngoing}
	require.NoError(t, gdb.Create(session).Error)
	require.NoError(t, gdb.Create(&models.SessionEnrollment{
		LabSessionID: session.ID, StudentID: student.ID}).Error)

	act = &models.Activity{LabSessionID: session.ID, Title: "Echo", Language: "python",
		OrderInSession: 1, IsActive: true}
	require.NoError(t, gdb.Create(act).Error)
	return instructor, student, session, act
}

func TestWeightedScore(t *testing.T) {
	tests := []struct {
		name    string
		results []models.TestResult
		want    float64
	}{
		{name: "empty", results: nil, want: 0},
		{
			name: "all passed",
			results: []models.TestResult{
				{Passed: true, Weight: 1},
				{Passed: true, Weight: 1},
			},
			want: 100,
		},
		{
			name: "weights skew the score",
			results: []models.TestResult{
				{Passed: true, Weight: 3},
				{Passed: false, Weight: 1},
			},
			want: 75,
		},
		{
			name: "none passed",
			results: []models.TestResult{
				{Passed: false, Weight: 2},
			},
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, weightedScore(tt.results), 0.001)
		})
	}
}

func TestSkeletonResultsSnapshotsFixtures(t *testing.T) {
	cases := []models.TestCase{
		{ID: 1, Input: "3", ExpectedOutput: "9", Weight: 2, IsHidden: true},
		{ID: 2, Input: "4", ExpectedOutput: "16"}, // zero weight defaults to 1
	}
	results := skeletonResults(cases)
	require.Len(t, results, 2)
	assert.Equal(t, uint(1), results[0].TestCaseID)
	assert.Equal(t, "9", results[0].ExpectedOutput)
	assert.Equal(t, 2.0, results[0].Weight)
	assert.True(t, results[0].IsHidden)
	assert.Equal(t, 1.0, results[1].Weight)
}

func TestFailAll(t *testing.T) {
	results := skeletonResults([]models.TestCase{{ID: 1}, {ID: 2}})
	results[0].Passed = true

	got := failAll(results, "compile error")
	for _, r := range got {
		assert.False(t, r.Passed)
		assert.Equal(t, "compile error", r.ErrorMessage)
	}
	assert.Zero(t, weightedScore(got))
}

func TestSubmitGating(t *testing.T) {
	g, gdb := newTestGrader(t)
	_, student, _, act := seedSubmissionFixture(t, gdb, true)

	// No test cases yet.
	_, err := g.Submit(context.Background(), student.ID, student.Name,
		SubmitInput{ActivityID: act.ID, Code: "print(1)"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	// Unknown activity.
	_, err = g.Submit(context.Background(), student.ID, student.Name,
		SubmitInput{ActivityID: 999, Code: "print(1)"})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	// Deactivated activity refuses submissions.
	require.NoError(t, gdb.Model(act).Update("is_active", false).Error)
	_, err = g.Submit(context.Background(), student.ID, student.Name,
		SubmitInput{ActivityID: act.ID, Code: "print(1)"})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestSubmitRequiresActiveSessionAndEnrollment(t *testing.T) {
	g, gdb := newTestGrader(t)
	_, student, session, act := seedSubmissionFixture(t, gdb, false)
	require.NoError(t, gdb.Create(&models.TestCase{ActivityID: act.ID, ExpectedOutput: "1"}).Error)

	_, err := g.Submit(context.Background(), student.ID, student.Name,
		SubmitInput{ActivityID: act.ID, Code: "print(1)"})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	// Active session, but a different student is not enrolled.
	require.NoError(t, gdb.Model(session).Update("is_active", true).Error)
	outsider := &models.User{Name: "Ben", Email: "ben@example.edu", PasswordHash: "x",
		Role: models.RoleStudent, Course: "BSCS", YearLevel: 2, Section: "A"}
	require.NoError(t, gdb.Create(outsider).Error)

	_, err = g.Submit(context.Background(), outsider.ID, outsider.Name,
		SubmitInput{ActivityID: act.ID, Code: "print(1)"})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestSubmitGradesAndNotifiesInstructorAndOwnerOnly(t *testing.T) {
	useShellInterpreter(t)
	gdb := db.OpenTest(t)
	em := &userEmitter{}
	g := NewGrader(gdb, snapshot.NewEngine(gdb), em)
	instructor, student, session, act := seedSubmissionFixture(t, gdb, true)
	require.NoError(t, gdb.Create(&models.TestCase{
		ActivityID: act.ID, ExpectedOutput: "ok", Weight: 1}).Error)

	// A classmate in the same session must not hear about the result.
	peer := &models.User{Name: "Ben", Email: "ben@example.edu", PasswordHash: "x",
		Role: models.RoleStudent, Course: "BSCS", YearLevel: 2, Section: "A"}
	require.NoError(t, gdb.Create(peer).Error)
	require.NoError(t, gdb.Create(&models.SessionEnrollment{
		LabSessionID: session.ID, StudentID: peer.ID}).Error)

	sub, err := g.Submit(context.Background(), student.ID, student.Name,
		SubmitInput{ActivityID: act.ID, Code: "echo ok\n"})
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionPassed, sub.Status)
	assert.Equal(t, 100.0, sub.Score)
	assert.Equal(t, 1, sub.AttemptNumber)

	created := em.recipients(fabric.EventSubmissionCreated)
	assert.ElementsMatch(t, []uint{instructor.ID, student.ID}, created)
	assert.NotContains(t, created, peer.ID)
	assert.Equal(t, []uint{student.ID}, em.recipients(fabric.EventMySubmissionResult))
}

func TestMyAndStats(t *testing.T) {
	g, gdb := newTestGrader(t)
	_, student, session, act := seedSubmissionFixture(t, gdb, true)

	seed := []models.Submission{
		{StudentID: student.ID, ActivityID: act.ID, LabSessionID: session.ID,
			Code: "a", Language: "python", Score: 100, Status: models.SubmissionPassed, AttemptNumber: 2},
		{StudentID: student.ID, ActivityID: act.ID, LabSessionID: session.ID,
			Code: "b", Language: "python", Score: 50, Status: models.SubmissionFailed, AttemptNumber: 1},
		{StudentID: student.ID, ActivityID: act.ID, LabSessionID: session.ID,
			Code: "c", Language: "python", Score: 0, Status: models.SubmissionError, AttemptNumber: 3},
	}
	for i := range seed {
		require.NoError(t, gdb.Create(&seed[i]).Error)
	}

	subs, err := g.My(student.ID)
	require.NoError(t, err)
	assert.Len(t, subs, 3)

	stats, err := g.StatsFor(student.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalSubmissions)
	assert.Equal(t, 1, stats.Passed)
	assert.Equal(t, 1, stats.Failed) // error status counts as neither
	assert.Equal(t, 100.0, stats.BestScore)
	assert.InDelta(t, 50.0, stats.AverageScore, 0.001)
}

func TestStatsForEmptyHistory(t *testing.T) {
	g, _ := newTestGrader(t)
	stats, err := g.StatsFor(42)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalSubmissions)
	assert.Zero(t, stats.AverageScore)
}

func TestForActivityOwnership(t *testing.T) {
	g, gdb := newTestGrader(t)
	instructor, student, session, act := seedSubmissionFixture(t, gdb, true)
	require.NoError(t, gdb.Create(&models.Submission{
		StudentID: student.ID, ActivityID: act.ID, LabSessionID: session.ID,
		Code: "a", Language: "python", Score: 100, Status: models.SubmissionPassed,
	}).Error)

	subs, err := g.ForActivity(act.ID, instructor.ID, models.RoleInstructor)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, student.ID, subs[0].Student.ID)

	other := &models.User{Name: "Olga", Email: "olga@example.edu", PasswordHash: "x", Role: models.RoleInstructor}
	require.NoError(t, gdb.Create(other).Error)
	_, err = g.ForActivity(act.ID, other.ID, models.RoleInstructor)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	// Admins bypass ownership.
	subs, err = g.ForActivity(act.ID, other.ID, models.RoleAdmin)
	require.NoError(t, err)
	assert.Len(t, subs, 1)

	_, err = g.ForActivity(999, instructor.ID, models.RoleInstructor)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
