package snapshot

import (
	"strings"

	"codelab/pkg/models"
)

// Diff computes a line-index diff between two code versions. Lines are
// compared by position only: a line present in one version but past the end
// of the other counts as added or removed, differing lines at the same index
// count as modified.
func Diff(oldCode, newCode string) models.SnapshotDiff {
	oldLines := splitLines(oldCode)
	newLines := splitLines(newCode)

	var d models.SnapshotDiff
	max := len(oldLines)
	if len(newLines) > max {
		max = len(newLines)
	}
	for i := 0; i < max; i++ {
		switch {
		case i >= len(oldLines):
			d.LinesAdded++
		case i >= len(newLines):
			d.LinesRemoved++
		case oldLines[i] != newLines[i]:
			d.LinesModified++
		}
	}
	return d
}

// Metrics computes cheap size metrics for a code version.
func Metrics(code string) models.SnapshotMetrics {
	return models.SnapshotMetrics{
		LineCount: len(splitLines(code)),
		CharCount: len(code),
	}
}

func splitLines(code string) []string {
	if code == "" {
		return nil
	}
	return strings.Split(code, "\n")
}
