package repository

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/wassup-/textpod/internal/app"
	"github.com/wassup-/textpod/internal/domain/model/note"
	"github.com/wassup-/textpod/internal/domain/repository"
	infrafs "github.com/wassup-/textpod/internal/infra/fs"
)

const dayFileExt = ".ndjson"

// record is the self-delimited line format of a day file. Three record
// kinds share one struct:
//   - t=note:   a new note (seq, ts, body, tags)
//   - t=attach: a pending attachment created for a note (seq, id, url, kind)
//   - t=status: an attachment status change (seq, id, status, path, error, attempt)
type record struct {
	T    string   `json:"t"`
	Seq  int      `json:"seq"`
	TS   string   `json:"ts"`
	Body string   `json:"body,omitempty"`
	Tags []string `json:"tags,omitempty"`

	ID      string `json:"id,omitempty"`
	URL     string `json:"url,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Status  string `json:"status,omitempty"`
	Path    string `json:"path,omitempty"`
	Error   string `json:"error,omitempty"`
	Attempt int    `json:"attempt,omitempty"`
}

const (
	recordNote   = "note"
	recordAttach = "attach"
	recordStatus = "status"
)

// DayLogRepository implements repository.NoteRepository over one append-only
// NDJSON file per calendar day. The day files are the single source of
// truth; note records are immutable and attachment state changes are
// expressed as appended status records folded together on read.
type DayLogRepository struct {
	fsys afero.Fs
	root string
	now  func() time.Time

	mu      sync.Mutex // guards dayMu and nextSeq
	dayMu   map[string]*sync.Mutex
	nextSeq map[string]int
}

// NewDayLogRepository creates a day-log note repository rooted at dir.
// It fails if the root cannot be created, which is the one fatal storage
// condition of the service.
func NewDayLogRepository(fsys afero.Fs, dir string) (*DayLogRepository, error) {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot open notes root %s: %w", dir, err)
	}
	return &DayLogRepository{
		fsys:    fsys,
		root:    dir,
		now:     time.Now,
		dayMu:   make(map[string]*sync.Mutex),
		nextSeq: make(map[string]int),
	}, nil
}

// SetClock overrides the wall clock. Tests use this to pin the current day.
func (r *DayLogRepository) SetClock(now func() time.Time) {
	r.now = now
}

// Append durably stores a new note under the current day
func (r *DayLogRepository) Append(ctx context.Context, body string) (*note.Note, error) {
	ts := r.now().UTC()
	day := ts.Format(note.DayFormat)

	lock := r.lockDay(day)
	lock.Lock()
	defer lock.Unlock()

	seq, err := r.nextSeqLocked(day)
	if err != nil {
		return nil, err
	}

	n := note.NewNote(note.NoteID{Day: day, Seq: seq}, ts, body)
	rec := record{
		T:    recordNote,
		Seq:  seq,
		TS:   ts.Format(time.RFC3339Nano),
		Body: body,
		Tags: n.Tags,
	}
	if err := r.appendRecord(day, rec); err != nil {
		return nil, fmt.Errorf("append note: %w", err)
	}

	r.mu.Lock()
	r.nextSeq[day] = seq + 1
	r.mu.Unlock()

	return n, nil
}

// AddAttachment records a pending attachment, deduplicating by (note, url)
func (r *DayLogRepository) AddAttachment(ctx context.Context, noteID note.NoteID, url string, kind note.CaptureKind) (*note.Attachment, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("invalid capture kind %q", kind)
	}

	lock := r.lockDay(noteID.Day)
	lock.Lock()
	defer lock.Unlock()

	n, err := r.findNoteLocked(noteID)
	if err != nil {
		return nil, err
	}
	if existing := n.AttachmentByURL(url); existing != nil {
		return existing, nil
	}

	a := note.NewAttachment(noteID, url, kind)
	rec := record{
		T:    recordAttach,
		Seq:  noteID.Seq,
		TS:   a.CreatedAt.Format(time.RFC3339Nano),
		ID:   a.ID,
		URL:  url,
		Kind: kind.String(),
	}
	if err := r.appendRecord(noteID.Day, rec); err != nil {
		return nil, fmt.Errorf("append attachment: %w", err)
	}
	return a, nil
}

// UpdateAttachment applies a status change to an existing attachment
func (r *DayLogRepository) UpdateAttachment(ctx context.Context, noteID note.NoteID, attachmentID string, upd repository.AttachmentUpdate) error {
	if !upd.Status.IsValid() {
		return fmt.Errorf("invalid attachment status %q", upd.Status)
	}

	lock := r.lockDay(noteID.Day)
	lock.Lock()
	defer lock.Unlock()

	n, err := r.findNoteLocked(noteID)
	if err != nil {
		return err
	}
	a := n.Attachment(attachmentID)
	if a == nil {
		return fmt.Errorf("attachment %s on note %s: %w", attachmentID, noteID, repository.ErrNotFound)
	}
	if !a.Status.CanTransitionTo(upd.Status) {
		return fmt.Errorf("attachment %s: invalid transition %s -> %s", attachmentID, a.Status, upd.Status)
	}

	rec := record{
		T:       recordStatus,
		Seq:     noteID.Seq,
		TS:      r.now().UTC().Format(time.RFC3339Nano),
		ID:      attachmentID,
		Status:  upd.Status.String(),
		Path:    upd.ArtifactPath,
		Error:   upd.Reason,
		Attempt: upd.Attempts,
	}
	if err := r.appendRecord(noteID.Day, rec); err != nil {
		return fmt.Errorf("append attachment status: %w", err)
	}
	return nil
}

// ReadDay returns the notes of one day in append order
func (r *DayLogRepository) ReadDay(ctx context.Context, day time.Time) ([]*note.Note, error) {
	d := day.Format(note.DayFormat)

	lock := r.lockDay(d)
	lock.Lock()
	defer lock.Unlock()

	return r.readDayLocked(d)
}

// ListDays enumerates the days that have a day file, ascending
func (r *DayLogRepository) ListDays(ctx context.Context) ([]time.Time, error) {
	entries, err := afero.ReadDir(r.fsys, r.root)
	if err != nil {
		return nil, fmt.Errorf("list notes root: %w", err)
	}

	var days []time.Time
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), dayFileExt) {
			continue
		}
		d, err := time.Parse(note.DayFormat, strings.TrimSuffix(e.Name(), dayFileExt))
		if err != nil {
			app.GetLogger().Warn("ignoring stray file in notes root: %s", e.Name())
			continue
		}
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days, nil
}

func (r *DayLogRepository) dayPath(day string) string {
	return filepath.Join(r.root, day+dayFileExt)
}

// lockDay returns the per-day mutex so status updates to past days never
// contend with appends to the current day.
func (r *DayLogRepository) lockDay(day string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.dayMu[day]
	if !ok {
		m = &sync.Mutex{}
		r.dayMu[day] = m
	}
	return m
}

// nextSeqLocked returns the sequence number for the next note of a day.
// The first call for a day scans the existing file; later calls hit a cache.
// Caller must hold the day lock.
func (r *DayLogRepository) nextSeqLocked(day string) (int, error) {
	r.mu.Lock()
	seq, ok := r.nextSeq[day]
	r.mu.Unlock()
	if ok {
		return seq, nil
	}

	records, err := r.loadRecords(day)
	if err != nil {
		return 0, err
	}
	max := 0
	for _, rec := range records {
		if rec.T == recordNote && rec.Seq > max {
			max = rec.Seq
		}
	}
	return max + 1, nil
}

// appendRecord writes one record line, flushed and fsynced before return.
// A crash mid-write leaves at most one torn tail line, which replay skips;
// the record is observable after restart only if this returned nil.
func (r *DayLogRepository) appendRecord(day string, rec record) error {
	path := r.dayPath(day)
	existed, err := afero.Exists(r.fsys, path)
	if err != nil {
		return err
	}

	tornTail := false
	if existed {
		tornTail, err = r.missingTrailingNewline(path)
		if err != nil {
			return err
		}
	}

	f, err := r.fsys.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(f)
	if tornTail {
		// Seal the torn line a crash left behind so the new record starts
		// on its own line and stays parseable.
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	if _, err := bw.Write(append(b, '\n')); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := infrafs.FsyncFile(f); err != nil {
		return err
	}
	if !existed {
		// First record of the day: persist the new directory entry too
		return infrafs.FsyncDir(r.fsys, r.root)
	}
	return nil
}

// missingTrailingNewline reports whether the file ends mid-line, the mark of
// a crash between write and flush.
func (r *DayLogRepository) missingTrailingNewline(path string) (bool, error) {
	f, err := r.fsys.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return false, err
	}
	if fi.Size() == 0 {
		return false, nil
	}
	buf := make([]byte, 1)
	if _, err := f.ReadAt(buf, fi.Size()-1); err != nil {
		return false, err
	}
	return buf[0] != '\n', nil
}

// findNoteLocked folds the note's day and returns the note, or ErrNotFound
func (r *DayLogRepository) findNoteLocked(id note.NoteID) (*note.Note, error) {
	notes, err := r.readDayLocked(id.Day)
	if err != nil {
		return nil, err
	}
	for _, n := range notes {
		if n.ID.Equals(id) {
			return n, nil
		}
	}
	return nil, fmt.Errorf("note %s: %w", id, repository.ErrNotFound)
}

func (r *DayLogRepository) readDayLocked(day string) ([]*note.Note, error) {
	records, err := r.loadRecords(day)
	if err != nil {
		return nil, err
	}

	var notes []*note.Note
	bySeq := make(map[int]*note.Note)

	for _, rec := range records {
		switch rec.T {
		case recordNote:
			ts, _ := time.Parse(time.RFC3339Nano, rec.TS)
			n := &note.Note{
				ID:        note.NoteID{Day: day, Seq: rec.Seq},
				CreatedAt: ts,
				Body:      rec.Body,
				Tags:      rec.Tags,
			}
			notes = append(notes, n)
			bySeq[rec.Seq] = n

		case recordAttach:
			n, ok := bySeq[rec.Seq]
			if !ok {
				app.GetLogger().Warn("day %s: attach record for unknown seq %d", day, rec.Seq)
				continue
			}
			ts, _ := time.Parse(time.RFC3339Nano, rec.TS)
			n.Attachments = append(n.Attachments, &note.Attachment{
				ID:        rec.ID,
				NoteID:    n.ID,
				URL:       rec.URL,
				Kind:      note.CaptureKind(rec.Kind),
				Status:    note.StatusPending,
				CreatedAt: ts,
				UpdatedAt: ts,
			})

		case recordStatus:
			n, ok := bySeq[rec.Seq]
			if !ok {
				app.GetLogger().Warn("day %s: status record for unknown seq %d", day, rec.Seq)
				continue
			}
			a := n.Attachment(rec.ID)
			if a == nil {
				app.GetLogger().Warn("day %s: status record for unknown attachment %s", day, rec.ID)
				continue
			}
			a.Status = note.CaptureStatus(rec.Status)
			a.Attempts = rec.Attempt
			a.ArtifactPath = ""
			a.LastError = ""
			switch a.Status {
			case note.StatusDone:
				a.ArtifactPath = rec.Path
			case note.StatusFailed:
				a.LastError = rec.Error
			}
			if ts, err := time.Parse(time.RFC3339Nano, rec.TS); err == nil {
				a.UpdatedAt = ts
			}
		}
	}
	return notes, nil
}

// loadRecords reads a day file line by line, skipping unparseable lines.
// A torn tail line belongs to a write that was never acknowledged.
func (r *DayLogRepository) loadRecords(day string) ([]record, error) {
	f, err := r.fsys.Open(r.dayPath(day))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open day file %s: %w", day, err)
	}
	defer f.Close()

	var records []record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			app.GetLogger().Warn("skipping corrupted line %d in day %s: %v", lineNum, day, err)
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read day file %s: %w", day, err)
	}
	return records, nil
}

var _ repository.NoteRepository = (*DayLogRepository)(nil)
