// CodeLab submission grading
// Runs a submitted program once per test case and scores it by weight

package grading

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/gorm"

	"codelab/internal/apperr"
	"codelab/internal/fabric"
	"codelab/internal/logging"
	"codelab/internal/metrics"
	"codelab/internal/sandbox"
	"codelab/internal/snapshot"
	"codelab/internal/toolchain"
	"codelab/pkg/models"
)

// perTestTimeout caps one test-case run.
const perTestTimeout = 10 * time.Second

// Emitter is the fan-out surface for submission events. Submission records
// carry scores, so they go to per-user rooms, never to the shared session
// room.
type Emitter interface {
	EmitToUser(userID uint, event string, payload interface{})
}

// Grader evaluates submissions against their activity's test cases.
type Grader struct {
	db        *gorm.DB
	snapshots *snapshot.Engine
	emitter   Emitter
}

func NewGrader(db *gorm.DB, snapshots *snapshot.Engine, emitter Emitter) *Grader {
	return &Grader{db: db, snapshots: snapshots, emitter: emitter}
}

// SubmitInput is the student's submission payload.
type SubmitInput struct {
	ActivityID uint   `json:"activityId" binding:"required"`
	Code       string `json:"code" binding:"required"`
}

// Submit grades the code against every test case of the activity, persists
// the immutable submission record and fans out the result events.
func (g *Grader) Submit(ctx context.Context, studentID uint, studentName string, in SubmitInput) (*models.Submission, error) {
	var act models.Activity
	err := g.db.Preload("TestCases", func(db *gorm.DB) *gorm.DB {
		return db.Order("order_index ASC")
	}).First(&act, in.ActivityID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("activity")
		}
		return nil, apperr.Internal(err)
	}
	if !act.IsActive {
		return nil, apperr.Forbidden("this activity is no longer accepting submissions")
	}
	session, err := g.checkEnrollment(act.LabSessionID, studentID)
	if err != nil {
		return nil, err
	}
	if len(act.TestCases) == 0 {
		return nil, apperr.Validation("activity has no test cases")
	}

	if _, err := g.snapshots.Create(snapshot.CreateInput{
		StudentID:    studentID,
		ActivityID:   act.ID,
		LabSessionID: act.LabSessionID,
		Code:         in.Code,
		Type:         models.SnapshotSubmit,
	}); err != nil {
		logging.S().Warnw("submit snapshot failed",
			"studentId", studentID, "activityId", act.ID, "error", err)
	}

	var attempts int64
	g.db.Model(&models.Submission{}).
		Where("student_id = ? AND activity_id = ?", studentID, act.ID).
		Count(&attempts)

	results, status := g.evaluate(ctx, &act, in.Code)
	score := weightedScore(results)

	sub := &models.Submission{
		StudentID:     studentID,
		ActivityID:    act.ID,
		LabSessionID:  act.LabSessionID,
		Code:          in.Code,
		Language:      act.Language,
		TestResults:   results,
		Score:         score,
		Status:        status,
		AttemptNumber: int(attempts) + 1,
	}
	if err := g.db.Create(sub).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	metrics.Get().RecordSubmission(sub.Language, sub.Status, sub.Score)

	created := map[string]interface{}{
		"sessionId":     act.LabSessionID,
		"activityId":    act.ID,
		"activityTitle": act.Title,
		"studentId":     studentID,
		"studentName":   studentName,
		"score":         sub.Score,
		"status":        sub.Status,
		"attemptNumber": sub.AttemptNumber,
		"timestamp":     time.Now().UTC(),
	}
	g.emitter.EmitToUser(session.InstructorID, fabric.EventSubmissionCreated, created)
	g.emitter.EmitToUser(studentID, fabric.EventSubmissionCreated, created)
	g.emitter.EmitToUser(studentID, fabric.EventMySubmissionResult, sub)

	// Grading counts as a completed attempt; the draft is stale now.
	if err := g.snapshots.ClearDraft(studentID, act.ID); err != nil {
		logging.S().Debugw("draft clear after submit failed",
			"studentId", studentID, "activityId", act.ID, "error", err)
	}
	return sub, nil
}

// evaluate compiles once and runs the program against each test case.
// Expected outputs are copied into the results so the record stays a faithful
// history even if the fixtures are edited later.
func (g *Grader) evaluate(ctx context.Context, act *models.Activity, code string) ([]models.TestResult, string) {
	results := skeletonResults(act.TestCases)

	lang, err := toolchain.Lookup(act.Language)
	if err != nil {
		return failAll(results, "unsupported language: "+act.Language), models.SubmissionError
	}

	workspace, err := sandbox.NewWorkspace()
	if err != nil {
		return failAll(results, "could not prepare workspace"), models.SubmissionError
	}
	defer sandbox.Cleanup(workspace)

	source := code
	if act.Language == "c" {
		source = sandbox.EnsureUnbufferedStdout(source)
	}
	srcPath := filepath.Join(workspace, lang.SourceFile)
	if err := os.WriteFile(srcPath, []byte(source), 0o644); err != nil {
		return failAll(results, "could not write source file"), models.SubmissionError
	}

	if lang.Compiled {
		compileCmd, err := lang.CompileCommand(workspace)
		if err != nil {
			return failAll(results, err.Error()), models.SubmissionError
		}
		res, err := sandbox.Compile(ctx, compileCmd)
		if err != nil {
			return failAll(results, err.Error()), models.SubmissionError
		}
		if !res.Success {
			return failAll(results, res.Stderr), models.SubmissionError
		}
	}

	runCmd := lang.RunCommand(workspace)
	allPassed := true
	for i, tc := range act.TestCases {
		stdin := tc.Input
		if stdin != "" && !strings.HasSuffix(stdin, "\n") {
			stdin += "\n"
		}
		run, err := sandbox.Capture(ctx, runCmd, workspace, stdin, perTestTimeout)
		if err != nil {
			results[i].ErrorMessage = err.Error()
			allPassed = false
			continue
		}
		results[i].ActualOutput = run.Stdout
		switch {
		case run.TimedOut:
			results[i].ErrorMessage = "time limit exceeded"
			allPassed = false
		case run.ExitCode != 0:
			results[i].ErrorMessage = strings.TrimSpace(run.Stderr)
			if results[i].ErrorMessage == "" {
				results[i].ErrorMessage = "program exited with a non-zero status"
			}
			allPassed = false
		case strings.TrimSpace(run.Stdout) == strings.TrimSpace(tc.ExpectedOutput):
			results[i].Passed = true
		default:
			allPassed = false
		}
	}

	if allPassed {
		return results, models.SubmissionPassed
	}
	if act.Type == "final" {
		return results, models.SubmissionResubmission
	}
	return results, models.SubmissionFailed
}

// My lists the student's own submissions, most recent first.
func (g *Grader) My(studentID uint) ([]models.Submission, error) {
	var subs []models.Submission
	err := g.db.Where("student_id = ?", studentID).
		Order("created_at DESC").
		Find(&subs).Error
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return subs, nil
}

// ForActivity lists submissions for one activity. Instructors must own the
// activity's session.
func (g *Grader) ForActivity(activityID, instructorID uint, role string) ([]models.Submission, error) {
	var act models.Activity
	if err := g.db.First(&act, activityID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("activity")
		}
		return nil, apperr.Internal(err)
	}
	if role != models.RoleAdmin {
		var session models.LabSession
		if err := g.db.First(&session, act.LabSessionID).Error; err != nil {
			return nil, apperr.Internal(err)
		}
		if session.InstructorID != instructorID {
			return nil, apperr.Forbidden("you do not own this lab session")
		}
	}
	var subs []models.Submission
	err := g.db.Preload("Student").
		Where("activity_id = ?", activityID).
		Order("created_at DESC").
		Find(&subs).Error
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return subs, nil
}

// Stats summarizes a student's submission history.
type Stats struct {
	TotalSubmissions int     `json:"totalSubmissions"`
	Passed           int     `json:"passed"`
	Failed           int     `json:"failed"`
	AverageScore     float64 `json:"averageScore"`
	BestScore        float64 `json:"bestScore"`
}

func (g *Grader) StatsFor(studentID uint) (*Stats, error) {
	var subs []models.Submission
	if err := g.db.Where("student_id = ?", studentID).Find(&subs).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	stats := &Stats{TotalSubmissions: len(subs)}
	var sum float64
	for _, s := range subs {
		sum += s.Score
		if s.Score > stats.BestScore {
			stats.BestScore = s.Score
		}
		switch s.Status {
		case models.SubmissionPassed:
			stats.Passed++
		case models.SubmissionFailed, models.SubmissionResubmission:
			stats.Failed++
		}
	}
	if len(subs) > 0 {
		stats.AverageScore = sum / float64(len(subs))
	}
	return stats, nil
}

func (g *Grader) checkEnrollment(sessionID, studentID uint) (*models.LabSession, error) {
	var session models.LabSession
	if err := g.db.First(&session, sessionID).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	if !session.IsActive {
		return nil, apperr.Forbidden("this lab session is not active")
	}
	var n int64
	g.db.Model(&models.SessionEnrollment{}).
		Where("lab_session_id = ? AND student_id = ?", sessionID, studentID).
		Count(&n)
	if n == 0 {
		return nil, apperr.Forbidden("you are not enrolled in this lab session")
	}
	return &session, nil
}

// skeletonResults pre-fills the per-case records with snapshotted fixtures.
func skeletonResults(cases []models.TestCase) []models.TestResult {
	results := make([]models.TestResult, len(cases))
	for i, tc := range cases {
		weight := tc.Weight
		if weight <= 0 {
			weight = 1
		}
		results[i] = models.TestResult{
			TestCaseID:     tc.ID,
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			Weight:         weight,
			IsHidden:       tc.IsHidden,
		}
	}
	return results
}

func failAll(results []models.TestResult, msg string) []models.TestResult {
	for i := range results {
		results[i].Passed = false
		results[i].ErrorMessage = msg
	}
	return results
}

// weightedScore is passed weight over total weight, as a percentage.
func weightedScore(results []models.TestResult) float64 {
	var total, passed float64
	for _, r := range results {
		total += r.Weight
		if r.Passed {
			passed += r.Weight
		}
	}
	if total == 0 {
		return 0
	}
	return passed / total * 100
}
