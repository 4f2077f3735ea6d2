package activity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"codelab/internal/apperr"
	"codelab/internal/db"
	"codelab/pkg/models"
)

type nopEmitter struct{}

func (nopEmitter) EmitToLabSession(uint, string, interface{}) {}
func (nopEmitter) EmitToAllInstructors(string, interface{})   {}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	gdb := db.OpenTest(t)
	return NewService(gdb, nopEmitter{}), gdb
}

func seedFixture(t *testing.T, gdb *gorm.DB, active bool) (instructorID, studentID, sessionID uint) {
	t.Helper()
	instr := &models.User{Name: "Ira", Email: "ira@example.edu", PasswordHash: "x", Role: models.RoleInstructor}
	require.NoError(t, gdb.Create(instr).Error)
	student := &models.User{Name: "Ana", Email: "ana@example.edu", PasswordHash: "x",
		Role: models.RoleStudent, Course: "BSCS", YearLevel: 2, Section: "A"}
	require.NoError(t, gdb.Create(student).Error)
	session := &models.LabSession{Title: "Lab", InstructorID: instr.ID,
		Course: "BSCS", YearLevel: 2, Section: "A", IsActive: active}
	require.NoError(t, gdb.Create(session).Error)
	require.NoError(t, gdb.Create(&models.SessionEnrollment{
		LabSessionID: session.ID, StudentID: student.ID}).Error)
	return instr.ID, student.ID, session.ID
}

func TestCreateAssignsOrderAndDefaults(t *testing.T) {
	s, gdb := newTestService(t)
	instrID, _, sessionID := seedFixture(t, gdb, true)

	first, err := s.Create(sessionID, instrID, CreateInput{
		Title: "FizzBuzz", Language: "python",
		TestCases: []TestCaseInput{
			{Input: "3", ExpectedOutput: "Fizz"},
			{Input: "5", ExpectedOutput: "Buzz", Weight: 2},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, first.OrderInSession)
	assert.Equal(t, "practice", first.Type)
	assert.Equal(t, 3, first.AIAssistLevel)
	assert.True(t, first.IsActive)
	require.Len(t, first.TestCases, 2)
	assert.Equal(t, 1.0, first.TestCases[0].Weight)
	assert.Equal(t, 1, first.TestCases[0].OrderIndex)
	assert.Equal(t, 2.0, first.TestCases[1].Weight)

	second, err := s.Create(sessionID, instrID, CreateInput{Title: "Primes", Language: "c"})
	require.NoError(t, err)
	assert.Equal(t, 2, second.OrderInSession)
}

func TestCreateValidation(t *testing.T) {
	s, gdb := newTestService(t)
	instrID, _, sessionID := seedFixture(t, gdb, true)

	_, err := s.Create(sessionID, instrID, CreateInput{Title: "X", Language: "rust"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	bad := 6
	_, err = s.Create(sessionID, instrID, CreateInput{Title: "X", Language: "python", AIAssistLevel: &bad})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = s.Create(sessionID, 999, CreateInput{Title: "X", Language: "python"})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestStudentViewStripsHiddenCases(t *testing.T) {
	s, gdb := newTestService(t)
	instrID, studentID, sessionID := seedFixture(t, gdb, true)

	act, err := s.Create(sessionID, instrID, CreateInput{
		Title: "FizzBuzz", Language: "python",
		TestCases: []TestCaseInput{
			{Input: "3", ExpectedOutput: "Fizz"},
			{Input: "15", ExpectedOutput: "FizzBuzz", IsHidden: true},
		},
	})
	require.NoError(t, err)

	got, err := s.Get(act.ID, studentID, models.RoleStudent)
	require.NoError(t, err)
	require.Len(t, got.TestCases, 1)
	assert.False(t, got.TestCases[0].IsHidden)

	// Instructors see everything.
	got, err = s.Get(act.ID, instrID, models.RoleInstructor)
	require.NoError(t, err)
	assert.Len(t, got.TestCases, 2)

	list, err := s.ListForSession(sessionID, studentID, models.RoleStudent)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Len(t, list[0].TestCases, 1)
}

func TestStudentAccessRequiresActiveSession(t *testing.T) {
	s, gdb := newTestService(t)
	instrID, studentID, sessionID := seedFixture(t, gdb, false)

	act, err := s.Create(sessionID, instrID, CreateInput{Title: "X", Language: "python"})
	require.NoError(t, err)

	_, err = s.Get(act.ID, studentID, models.RoleStudent)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = s.ListForSession(sessionID, studentID, models.RoleStudent)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestUpdateReplacesTestCases(t *testing.T) {
	s, gdb := newTestService(t)
	instrID, _, sessionID := seedFixture(t, gdb, true)

	act, err := s.Create(sessionID, instrID, CreateInput{
		Title: "X", Language: "python",
		TestCases: []TestCaseInput{{Input: "1", ExpectedOutput: "1"}},
	})
	require.NoError(t, err)

	title := "Renamed"
	replacement := []TestCaseInput{
		{Input: "2", ExpectedOutput: "4"},
		{Input: "3", ExpectedOutput: "9", IsHidden: true},
	}
	got, err := s.Update(act.ID, instrID, UpdateInput{Title: &title, TestCases: &replacement})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	require.Len(t, got.TestCases, 2)
	assert.Equal(t, "4", got.TestCases[0].ExpectedOutput)

	var count int64
	gdb.Model(&models.TestCase{}).Where("activity_id = ?", act.ID).Count(&count)
	assert.EqualValues(t, 2, count)
}

func TestDeleteIsSoft(t *testing.T) {
	s, gdb := newTestService(t)
	instrID, _, sessionID := seedFixture(t, gdb, true)

	act, err := s.Create(sessionID, instrID, CreateInput{Title: "X", Language: "python"})
	require.NoError(t, err)

	require.NoError(t, s.Delete(act.ID, instrID))

	got, err := s.Get(act.ID, instrID, models.RoleInstructor)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}
