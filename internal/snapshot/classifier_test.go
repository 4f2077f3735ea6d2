package snapshot

import (
	"testing"
	"time"

	"codelab/pkg/models"
)

func snapAt(t time.Time, diff *models.SnapshotDiff) models.CodeSnapshot {
	return models.CodeSnapshot{CreatedAt: t, DiffFromPrevious: diff}
}

func TestClassifyInsufficientData(t *testing.T) {
	if got := Classify(nil); got.Pattern != PatternInsufficientData {
		t.Fatalf("no snapshots: got %q", got.Pattern)
	}
	one := []models.CodeSnapshot{snapAt(time.Now(), nil)}
	if got := Classify(one); got.Pattern != PatternInsufficientData {
		t.Fatalf("one snapshot: got %q", got.Pattern)
	}
}

func TestClassifyPatterns(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		diffs []models.SnapshotDiff
		want  string
	}{
		{
			name: "heavy deletion is iterative refiner",
			diffs: []models.SnapshotDiff{
				{LinesAdded: 2, LinesRemoved: 10},
				{LinesAdded: 2, LinesRemoved: 5},
			},
			want: PatternIterativeRefiner,
		},
		{
			name: "append-heavy is incremental builder",
			diffs: []models.SnapshotDiff{
				{LinesAdded: 10, LinesModified: 2},
				{LinesAdded: 8, LinesModified: 1},
			},
			want: PatternIncrementalBuilder,
		},
		{
			name: "edit-heavy is modifier",
			diffs: []models.SnapshotDiff{
				{LinesAdded: 2, LinesModified: 6},
				{LinesAdded: 1, LinesModified: 4},
			},
			want: PatternModifier,
		},
		{
			name: "even mix is balanced",
			diffs: []models.SnapshotDiff{
				{LinesAdded: 4, LinesRemoved: 3, LinesModified: 3},
				{LinesAdded: 4, LinesRemoved: 3, LinesModified: 3},
			},
			want: PatternBalanced,
		},
		{
			name: "refiner outranks modifier when both hold",
			diffs: []models.SnapshotDiff{
				{LinesAdded: 2, LinesRemoved: 10, LinesModified: 8},
			},
			want: PatternIterativeRefiner,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snaps := []models.CodeSnapshot{snapAt(base, nil)}
			for i := range tt.diffs {
				d := tt.diffs[i]
				snaps = append(snaps, snapAt(base.Add(time.Duration(i+1)*time.Minute), &d))
			}
			got := Classify(snaps)
			if got.Pattern != tt.want {
				t.Fatalf("got %q, want %q (totals %+v)", got.Pattern, tt.want, got)
			}
		})
	}
}

func TestClassifyFrequency(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	snaps := []models.CodeSnapshot{
		snapAt(base, nil),
		snapAt(base.Add(2*time.Minute), &models.SnapshotDiff{LinesAdded: 1}),
		snapAt(base.Add(4*time.Minute), &models.SnapshotDiff{LinesAdded: 1}),
	}
	got := Classify(snaps)
	if got.SnapshotCount != 3 {
		t.Fatalf("SnapshotCount = %d", got.SnapshotCount)
	}
	// 3 snapshots over 4 minutes.
	if got.RevisionFrequency != 0.75 {
		t.Fatalf("RevisionFrequency = %v, want 0.75", got.RevisionFrequency)
	}
}

func TestClassifyZeroSpan(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	snaps := []models.CodeSnapshot{
		snapAt(now, nil),
		snapAt(now, &models.SnapshotDiff{LinesAdded: 1}),
	}
	if got := Classify(snaps); got.RevisionFrequency != 0 {
		t.Fatalf("zero span must give zero frequency, got %v", got.RevisionFrequency)
	}
}
