package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codelab/internal/apperr"
	"codelab/internal/db"
	"codelab/pkg/models"
)

func newTestEngine(t *testing.T) *Engine {
	return NewEngine(db.OpenTest(t))
}

func TestCreateSequenceIsMonotone(t *testing.T) {
	e := newTestEngine(t)

	codes := []string{"a", "a\nb", "a\nb\nc"}
	for i, code := range codes {
		snap, err := e.Create(CreateInput{
			StudentID: 1, ActivityID: 10, LabSessionID: 5,
			Code: code, Type: models.SnapshotAuto,
		})
		require.NoError(t, err)
		assert.Equal(t, i+1, snap.SequenceNumber)
	}

	// A different (student, activity) pair starts its own sequence.
	snap, err := e.Create(CreateInput{
		StudentID: 2, ActivityID: 10, Code: "x", Type: models.SnapshotAuto,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, snap.SequenceNumber)
}

func TestCreateComputesDiffFromPrevious(t *testing.T) {
	e := newTestEngine(t)

	first, err := e.Create(CreateInput{
		StudentID: 1, ActivityID: 1, Code: "a\nb", Type: models.SnapshotAuto,
	})
	require.NoError(t, err)
	assert.Nil(t, first.DiffFromPrevious)
	assert.Equal(t, 2, first.Metrics.LineCount)

	second, err := e.Create(CreateInput{
		StudentID: 1, ActivityID: 1, Code: "a\nX\nc", Type: models.SnapshotRun,
	})
	require.NoError(t, err)
	require.NotNil(t, second.DiffFromPrevious)
	assert.Equal(t, 1, second.DiffFromPrevious.LinesAdded)
	assert.Equal(t, 1, second.DiffFromPrevious.LinesModified)
	assert.Equal(t, 0, second.DiffFromPrevious.LinesRemoved)
}

func TestCreateRejectsDraftType(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Create(CreateInput{StudentID: 1, ActivityID: 1, Type: models.SnapshotDraft})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestDraftIsSingleton(t *testing.T) {
	e := newTestEngine(t)

	first, err := e.SaveDraft(1, 1, 5, "draft v1")
	require.NoError(t, err)

	second, err := e.SaveDraft(1, 1, 5, "draft v2")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "draft writes must upsert in place")

	var count int64
	e.db.Model(&models.CodeSnapshot{}).
		Where("student_id = ? AND activity_id = ? AND type = ?", 1, 1, models.SnapshotDraft).
		Count(&count)
	assert.EqualValues(t, 1, count)

	got, err := e.GetDraft(1, 1)
	require.NoError(t, err)
	assert.Equal(t, "draft v2", got.Code)
}

func TestDraftDoesNotDisturbSequence(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Create(CreateInput{StudentID: 1, ActivityID: 1, Code: "a", Type: models.SnapshotAuto})
	require.NoError(t, err)
	_, err = e.SaveDraft(1, 1, 5, "scratch")
	require.NoError(t, err)

	snap, err := e.Create(CreateInput{StudentID: 1, ActivityID: 1, Code: "a\nb", Type: models.SnapshotAuto})
	require.NoError(t, err)
	assert.Equal(t, 2, snap.SequenceNumber)

	history, err := e.History(1, 1)
	require.NoError(t, err)
	assert.Len(t, history, 2, "drafts are excluded from history")
}

func TestClearDraft(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.SaveDraft(1, 1, 5, "scratch")
	require.NoError(t, err)
	require.NoError(t, e.ClearDraft(1, 1))

	_, err = e.GetDraft(1, 1)
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	// Clearing an absent draft is not an error.
	assert.NoError(t, e.ClearDraft(1, 1))
}

func TestClassifyRevisionsOverHistory(t *testing.T) {
	e := newTestEngine(t)

	codes := []string{"a", "a\nb\nc\nd", "a\nb\nc\nd\ne\nf\ng"}
	for _, code := range codes {
		_, err := e.Create(CreateInput{StudentID: 1, ActivityID: 1, Code: code, Type: models.SnapshotAuto})
		require.NoError(t, err)
	}

	got, err := e.ClassifyRevisions(1, 1)
	require.NoError(t, err)
	assert.Equal(t, PatternIncrementalBuilder, got.Pattern)
	assert.Equal(t, 3, got.SnapshotCount)
	assert.Equal(t, 6, got.TotalLinesAdded)
}
