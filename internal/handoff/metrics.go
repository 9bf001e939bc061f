package handoff

import (
	"sort"
	"time"

	"github.com/framestack/framestack/internal/frame"
)

// KindCount is one bucket of the frame-kind histogram.
type KindCount struct {
	Kind  frame.Kind `json:"kind"`
	Count int        `json:"count"`
}

// CollaborationPattern counts handoffs between one pair of stacks.
type CollaborationPattern struct {
	SourceStack string `json:"source_stack"`
	TargetStack string `json:"target_stack"`
	Count       int    `json:"count"`
}

// Metrics is a read-only aggregation over handoff history.
type Metrics struct {
	TotalHandoffs         int                    `json:"total_handoffs"`
	CompletedHandoffs     int                    `json:"completed_handoffs"`
	AverageProcessingTime time.Duration          `json:"average_processing_time"`
	TopFrameTypes         []KindCount            `json:"top_frame_types"`
	CollaborationPatterns []CollaborationPattern `json:"collaboration_patterns"`
}

// Metrics aggregates handoff analytics over an optional time window (either
// bound may be empty). It never mutates state and degrades to zero values
// over an empty history. Partially completed handoffs count as completed:
// frames did move.
func (m *Manager) Metrics(since, until string) (*Metrics, error) {
	records, err := m.store.ListProgress(since, until)
	if err != nil {
		return nil, err
	}

	out := &Metrics{
		TopFrameTypes:         []KindCount{},
		CollaborationPatterns: []CollaborationPattern{},
	}
	out.TotalHandoffs = len(records)

	kindCounts := make(map[frame.Kind]int)
	pairCounts := make(map[[2]string]int)
	var processed time.Duration
	var processedN int

	for _, rec := range records {
		switch rec.Progress.Status {
		case frame.HandoffCompleted, frame.HandoffPartiallyCompleted:
			out.CompletedHandoffs++
		}

		if rec.Progress.Status.IsTerminal() {
			created, err1 := time.Parse(time.RFC3339, rec.Request.CreatedAt)
			settled, err2 := time.Parse(time.RFC3339, rec.Progress.UpdatedAt)
			if err1 == nil && err2 == nil && settled.After(created) {
				processed += settled.Sub(created)
				processedN++
			}
		}

		pairCounts[[2]string{rec.Request.SourceStack, rec.Request.TargetStack}]++

		for _, id := range rec.Request.FrameIDs {
			f, err := m.store.GetFrame(id)
			if err != nil {
				continue // frame archived or deleted since; skip, never fail
			}
			kindCounts[f.Kind]++
		}
	}

	if processedN > 0 {
		out.AverageProcessingTime = processed / time.Duration(processedN)
	}

	for kind, n := range kindCounts {
		out.TopFrameTypes = append(out.TopFrameTypes, KindCount{Kind: kind, Count: n})
	}
	sort.Slice(out.TopFrameTypes, func(i, j int) bool {
		a, b := out.TopFrameTypes[i], out.TopFrameTypes[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Kind < b.Kind
	})

	for pair, n := range pairCounts {
		out.CollaborationPatterns = append(out.CollaborationPatterns, CollaborationPattern{
			SourceStack: pair[0], TargetStack: pair[1], Count: n,
		})
	}
	sort.Slice(out.CollaborationPatterns, func(i, j int) bool {
		a, b := out.CollaborationPatterns[i], out.CollaborationPatterns[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.SourceStack != b.SourceStack {
			return a.SourceStack < b.SourceStack
		}
		return a.TargetStack < b.TargetStack
	})

	return out, nil
}
