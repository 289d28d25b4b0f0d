package service

import (
	"context"
	"fmt"
	"time"

	"github.com/wassup-/textpod/internal/app"
	"github.com/wassup-/textpod/internal/domain/model/note"
	"github.com/wassup-/textpod/internal/domain/repository"
)

// RecoveryService rebuilds derived state at process start: it replays the
// note store into a fresh search index and re-enqueues capture jobs that
// were left pending when the process last stopped. It runs before the
// network boundary starts accepting requests.
type RecoveryService struct {
	repo    repository.NoteRepository
	index   *SearchIndex
	capture *CaptureService
}

// NewRecoveryService creates a startup coordinator
func NewRecoveryService(repo repository.NoteRepository, index *SearchIndex, capture *CaptureService) *RecoveryService {
	return &RecoveryService{repo: repo, index: index, capture: capture}
}

// RecoveryResult summarizes what startup recovery did.
type RecoveryResult struct {
	DaysReplayed   int
	NotesIndexed   int
	JobsReenqueued int
}

// Run replays all days oldest-first, rebuilds the search index and
// re-enqueues pending captures. External capture tools are safely
// re-invocable, so a job that was mid-flight at the crash simply runs again.
func (s *RecoveryService) Run(ctx context.Context) (*RecoveryResult, error) {
	days, err := s.repo.ListDays(ctx)
	if err != nil {
		return nil, fmt.Errorf("startup recovery: %w", err)
	}

	result := &RecoveryResult{}
	var all []*note.Note
	var pending []*note.Attachment

	for _, day := range days {
		notes, err := s.repo.ReadDay(ctx, day)
		if err != nil {
			return nil, fmt.Errorf("startup recovery: replay day %s: %w", day.Format(note.DayFormat), err)
		}
		result.DaysReplayed++
		for _, n := range notes {
			all = append(all, n)
			for _, a := range n.Attachments {
				if a.Status == note.StatusPending {
					pending = append(pending, a)
				}
			}
		}
	}

	s.index.Rebuild(all)
	result.NotesIndexed = len(all)

	for _, a := range pending {
		s.capture.Requeue(a)
		result.JobsReenqueued++
	}

	if result.NotesIndexed > 0 || result.JobsReenqueued > 0 {
		app.GetLogger().Info("startup recovery completed: %d days, %d notes indexed, %d captures re-enqueued",
			result.DaysReplayed, result.NotesIndexed, result.JobsReenqueued)
	}
	return result, nil
}

// ResolveNotes loads full notes for query results, preserving order.
// Query hits are grouped by day so each day file is read once.
func ResolveNotes(ctx context.Context, repo repository.NoteRepository, ids []note.NoteID) ([]*note.Note, error) {
	byDay := make(map[string]map[int]*note.Note)

	var out []*note.Note
	for _, id := range ids {
		day, ok := byDay[id.Day]
		if !ok {
			t, err := time.Parse(note.DayFormat, id.Day)
			if err != nil {
				return nil, fmt.Errorf("resolve notes: bad day %q: %w", id.Day, err)
			}
			notes, err := repo.ReadDay(ctx, t)
			if err != nil {
				return nil, err
			}
			day = make(map[int]*note.Note, len(notes))
			for _, n := range notes {
				day[n.ID.Seq] = n
			}
			byDay[id.Day] = day
		}
		if n, ok := day[id.Seq]; ok {
			out = append(out, n)
		}
	}
	return out, nil
}
