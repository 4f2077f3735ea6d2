package snapshot

import (
	"codelab/pkg/models"
)

// Revision patterns describing how a student iterates on code.
const (
	PatternInsufficientData   = "insufficient_data"
	PatternIterativeRefiner   = "iterative_refiner"
	PatternIncrementalBuilder = "incremental_builder"
	PatternModifier           = "modifier"
	PatternBalanced           = "balanced"
)

// Classification is the result of the revision-pattern classifier.
type Classification struct {
	Pattern            string  `json:"pattern"`
	SnapshotCount      int     `json:"snapshotCount"`
	TotalLinesAdded    int     `json:"totalLinesAdded"`
	TotalLinesRemoved  int     `json:"totalLinesRemoved"`
	TotalLinesModified int     `json:"totalLinesModified"`
	RevisionFrequency  float64 `json:"revisionFrequency"` // snapshots per minute
}

// Classify derives a revision pattern from a student's snapshot history,
// ordered by creation time ascending.
func Classify(snapshots []models.CodeSnapshot) Classification {
	if len(snapshots) < 2 {
		return Classification{
			Pattern:       PatternInsufficientData,
			SnapshotCount: len(snapshots),
		}
	}

	var added, removed, modified int
	for _, s := range snapshots {
		if s.DiffFromPrevious == nil {
			continue
		}
		added += s.DiffFromPrevious.LinesAdded
		removed += s.DiffFromPrevious.LinesRemoved
		modified += s.DiffFromPrevious.LinesModified
	}

	spanMinutes := snapshots[len(snapshots)-1].CreatedAt.Sub(snapshots[0].CreatedAt).Minutes()
	frequency := 0.0
	if spanMinutes > 0 {
		frequency = float64(len(snapshots)) / spanMinutes
	}

	pattern := PatternBalanced
	switch {
	case float64(removed) > 1.5*float64(added):
		pattern = PatternIterativeRefiner
	case float64(added) > 2*float64(modified):
		pattern = PatternIncrementalBuilder
	case modified > added:
		pattern = PatternModifier
	}

	return Classification{
		Pattern:            pattern,
		SnapshotCount:      len(snapshots),
		TotalLinesAdded:    added,
		TotalLinesRemoved:  removed,
		TotalLinesModified: modified,
		RevisionFrequency:  frequency,
	}
}
