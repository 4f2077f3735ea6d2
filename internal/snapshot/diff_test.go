package snapshot

import (
	"testing"

	"codelab/pkg/models"
)

func TestDiff(t *testing.T) {
	tests := []struct {
		name string
		old  string
		new  string
		want models.SnapshotDiff
	}{
		{
			name: "identical",
			old:  "a\nb\nc",
			new:  "a\nb\nc",
			want: models.SnapshotDiff{},
		},
		{
			name: "pure append",
			old:  "a\nb",
			new:  "a\nb\nc\nd",
			want: models.SnapshotDiff{LinesAdded: 2},
		},
		{
			name: "pure truncation",
			old:  "a\nb\nc\nd",
			new:  "a",
			want: models.SnapshotDiff{LinesRemoved: 3},
		},
		{
			name: "modified in place",
			old:  "a\nb\nc",
			new:  "a\nX\nc",
			want: models.SnapshotDiff{LinesModified: 1},
		},
		{
			name: "mixed change",
			old:  "a\nb",
			new:  "a\nX\nc",
			want: models.SnapshotDiff{LinesAdded: 1, LinesModified: 1},
		},
		{
			name: "from empty",
			old:  "",
			new:  "a\nb",
			want: models.SnapshotDiff{LinesAdded: 2},
		},
		{
			name: "to empty",
			old:  "a\nb",
			new:  "",
			want: models.SnapshotDiff{LinesRemoved: 2},
		},
		{
			name: "both empty",
			old:  "",
			new:  "",
			want: models.SnapshotDiff{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.old, tt.new)
			if got != tt.want {
				t.Fatalf("Diff(%q, %q) = %+v, want %+v", tt.old, tt.new, got, tt.want)
			}
		})
	}
}

// Identical lines at the same index must contribute nothing, regardless of
// what surrounds them.
func TestDiffIgnoresAlignedLines(t *testing.T) {
	old := "keep\nchange me\nkeep\nkeep"
	new := "keep\nchanged\nkeep\nkeep\nnew line"
	got := Diff(old, new)
	want := models.SnapshotDiff{LinesAdded: 1, LinesModified: 1}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestMetrics(t *testing.T) {
	m := Metrics("a\nbb\nccc")
	if m.LineCount != 3 {
		t.Errorf("LineCount = %d, want 3", m.LineCount)
	}
	if m.CharCount != 8 {
		t.Errorf("CharCount = %d, want 8", m.CharCount)
	}

	empty := Metrics("")
	if empty.LineCount != 0 || empty.CharCount != 0 {
		t.Errorf("empty code should have zero metrics, got %+v", empty)
	}
}
