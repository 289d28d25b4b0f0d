package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"sync"
	"time"

	"github.com/wassup-/textpod/internal/app"
	"github.com/wassup-/textpod/internal/application/port/output"
	"github.com/wassup-/textpod/internal/domain/model/note"
	"github.com/wassup-/textpod/internal/domain/repository"
)

const (
	// MaxBackoff caps the exponential retry backoff
	MaxBackoff = 30 * time.Second

	// queueCapacity bounds the FIFO of waiting jobs. A full queue leaves the
	// attachment pending; startup recovery re-enqueues it on the next run.
	queueCapacity = 1024
)

// captureJob is one unit of work for the worker pool.
type captureJob struct {
	noteID       note.NoteID
	attachmentID string
	url          string
	kind         note.CaptureKind
	attempts     int // attempts already spent in earlier runs
}

// CaptureConfig holds the orchestrator's tunables.
type CaptureConfig struct {
	Workers     int           // pool size C
	MaxAttempts int           // retry ceiling per job
	BackoffBase time.Duration // base of the exponential backoff
}

// CaptureService coordinates asynchronous capture of external references:
// detection, dedup, a bounded worker pool running the external tools, and
// writing terminal outcomes back through the note repository.
type CaptureService struct {
	repo     repository.NoteRepository
	store    output.ArtifactStore
	mirror   output.ArtifactMirror // nil when mirroring is disabled
	gateways map[note.CaptureKind]output.CaptureGateway
	detector *ReferenceDetector
	cfg      CaptureConfig

	ctx    context.Context
	cancel context.CancelFunc
	queue  chan captureJob
	wg     sync.WaitGroup

	mu        sync.Mutex
	accepting bool
	inFlight  map[string]struct{} // keyed by noteID/url
}

// NewCaptureService creates a capture orchestrator. The mirror may be nil.
func NewCaptureService(
	repo repository.NoteRepository,
	store output.ArtifactStore,
	mirror output.ArtifactMirror,
	detector *ReferenceDetector,
	gateways []output.CaptureGateway,
	cfg CaptureConfig,
) *CaptureService {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}

	byKind := make(map[note.CaptureKind]output.CaptureGateway, len(gateways))
	for _, gw := range gateways {
		byKind[gw.Kind()] = gw
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &CaptureService{
		repo:     repo,
		store:    store,
		mirror:   mirror,
		gateways: byKind,
		detector: detector,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		queue:    make(chan captureJob, queueCapacity),
		inFlight: make(map[string]struct{}),
	}
}

// Start launches the worker pool.
func (s *CaptureService) Start() {
	s.mu.Lock()
	s.accepting = true
	s.mu.Unlock()

	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	app.GetLogger().Info("capture pool started: %d workers, %d max attempts", s.cfg.Workers, s.cfg.MaxAttempts)
}

// Stop shuts the pool down: no new jobs are accepted, in-flight jobs get the
// grace period to finish, then remaining subprocesses are cancelled hard.
// Jobs cut off by the hard stop leave their attachment pending for startup
// recovery, never failed.
func (s *CaptureService) Stop(grace time.Duration) {
	s.mu.Lock()
	if !s.accepting {
		s.mu.Unlock()
		return
	}
	s.accepting = false
	close(s.queue)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		app.GetLogger().Warn("capture pool grace period expired, cancelling in-flight jobs")
	}
	s.cancel()
	<-done
	app.GetLogger().Info("capture pool stopped")
}

// ScanNote detects references in a freshly appended note and enqueues a
// capture job per reference.
func (s *CaptureService) ScanNote(ctx context.Context, n *note.Note) []*note.Attachment {
	var created []*note.Attachment
	for _, ref := range s.detector.Detect(n.Body) {
		a, err := s.EnqueueCapture(ctx, n.ID, ref.URL, ref.Kind)
		if err != nil {
			app.GetLogger().Error("enqueue capture for %s (%s): %v", n.ID, ref.URL, err)
			continue
		}
		if a != nil {
			created = append(created, a)
		}
	}
	return created
}

// EnqueueCapture creates a pending attachment for the reference and queues
// the capture job. Deduplicates by (note, url): a second reference to the
// same URL within the same note yields no second job.
func (s *CaptureService) EnqueueCapture(ctx context.Context, noteID note.NoteID, url string, kind note.CaptureKind) (*note.Attachment, error) {
	a, err := s.repo.AddAttachment(ctx, noteID, url, kind)
	if err != nil {
		return nil, err
	}
	if a.Status != note.StatusPending {
		// Already captured (or terminally failed) on a previous pass
		return a, nil
	}

	s.submit(captureJob{
		noteID:       noteID,
		attachmentID: a.ID,
		url:          url,
		kind:         a.Kind,
		attempts:     a.Attempts,
	})
	return a, nil
}

// Requeue re-enqueues an existing pending attachment. Startup recovery uses
// this for jobs left pending by a previous run.
func (s *CaptureService) Requeue(a *note.Attachment) {
	if a.Status != note.StatusPending {
		return
	}
	s.submit(captureJob{
		noteID:       a.NoteID,
		attachmentID: a.ID,
		url:          a.URL,
		kind:         a.Kind,
		attempts:     a.Attempts,
	})
}

// Retry transitions a failed attachment back to pending and queues it again.
// This is the only backward transition in the attachment lifecycle.
func (s *CaptureService) Retry(ctx context.Context, noteID note.NoteID, attachmentID string) error {
	day, err := time.Parse(note.DayFormat, noteID.Day)
	if err != nil {
		return fmt.Errorf("invalid day in note id %s: %w", noteID, err)
	}
	notes, err := s.repo.ReadDay(ctx, day)
	if err != nil {
		return err
	}

	var target *note.Attachment
	for _, n := range notes {
		if n.ID.Equals(noteID) {
			target = n.Attachment(attachmentID)
			break
		}
	}
	if target == nil {
		return fmt.Errorf("attachment %s on note %s: %w", attachmentID, noteID, repository.ErrNotFound)
	}
	if target.Status != note.StatusFailed {
		return fmt.Errorf("attachment %s is %s, only failed attachments can be retried", attachmentID, target.Status)
	}

	upd := repository.AttachmentUpdate{Status: note.StatusPending, Attempts: target.Attempts}
	if err := s.repo.UpdateAttachment(ctx, noteID, attachmentID, upd); err != nil {
		return err
	}

	s.submit(captureJob{
		noteID:       noteID,
		attachmentID: attachmentID,
		url:          target.URL,
		kind:         target.Kind,
		attempts:     target.Attempts,
	})
	return nil
}

// submit queues a job FIFO. A stopped service or a full queue leaves the
// attachment pending; recovery picks it up on the next start.
func (s *CaptureService) submit(job captureJob) {
	key := job.noteID.String() + "|" + job.url

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.accepting {
		app.GetLogger().Warn("capture pool not accepting, %s stays pending", job.url)
		return
	}
	if _, dup := s.inFlight[key]; dup {
		return
	}

	select {
	case s.queue <- job:
		s.inFlight[key] = struct{}{}
	default:
		app.GetLogger().Warn("capture queue full, %s stays pending", job.url)
	}
}

func (s *CaptureService) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case job, ok := <-s.queue:
			if !ok {
				return
			}
			s.runJob(job)
			s.mu.Lock()
			delete(s.inFlight, job.noteID.String()+"|"+job.url)
			s.mu.Unlock()
		}
	}
}

// runJob executes one capture with retries and writes the terminal outcome
// back through the repository. A job interrupted by service shutdown writes
// nothing: the attachment stays pending.
func (s *CaptureService) runJob(job captureJob) {
	gw, ok := s.gateways[job.kind]
	if !ok {
		s.recordFailure(job, job.attempts, fmt.Sprintf("no capture tool for kind %s", job.kind))
		return
	}

	absPath, relPath, err := s.store.DestPath(job.kind, job.url)
	if err != nil {
		s.recordFailure(job, job.attempts, fmt.Sprintf("derive artifact path: %v", err))
		return
	}

	// Each queued run gets a full attempt budget; the counter carried on the
	// attachment stays cumulative across retries.
	attempts := job.attempts
	for try := 1; try <= s.cfg.MaxAttempts; try++ {
		attempts++

		err = gw.Capture(s.ctx, job.url, absPath)
		if err == nil {
			s.recordSuccess(job, attempts, relPath)
			return
		}
		if s.ctx.Err() != nil {
			// Shutdown, not a tool failure: stay pending for recovery
			app.GetLogger().Info("capture of %s interrupted by shutdown, stays pending", job.url)
			return
		}
		if errors.Is(err, exec.ErrNotFound) {
			s.recordFailure(job, attempts, fmt.Sprintf("capture tool missing: %v", err))
			return
		}

		app.GetLogger().Warn("capture attempt %d/%d for %s failed: %v", try, s.cfg.MaxAttempts, job.url, err)
		if try < s.cfg.MaxAttempts {
			if !s.sleepBackoff(try) {
				return // shutdown during backoff, stays pending
			}
		}
	}
	s.recordFailure(job, attempts, err.Error())
}

// sleepBackoff waits the exponential backoff for the given consecutive error
// count; returns false if shutdown happened first.
func (s *CaptureService) sleepBackoff(consecutiveErrors int) bool {
	select {
	case <-time.After(CalculateBackoff(s.cfg.BackoffBase, consecutiveErrors)):
		return true
	case <-s.ctx.Done():
		return false
	}
}

// CalculateBackoff implements exponential backoff for consecutive errors
func CalculateBackoff(base time.Duration, consecutiveErrors int) time.Duration {
	if consecutiveErrors <= 0 {
		return base
	}

	// Exponential backoff with max. The exponent is capped so the
	// multiplication cannot overflow before the comparison.
	exp := consecutiveErrors - 1
	if exp > 30 {
		exp = 30
	}
	backoff := time.Duration(math.Pow(2, float64(exp))) * base

	if backoff > MaxBackoff {
		return MaxBackoff
	}
	return backoff
}

func (s *CaptureService) recordSuccess(job captureJob, attempts int, relPath string) {
	upd := repository.AttachmentUpdate{
		Status:       note.StatusDone,
		ArtifactPath: relPath,
		Attempts:     attempts,
	}
	if err := s.repo.UpdateAttachment(context.Background(), job.noteID, job.attachmentID, upd); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Attachments are never removed, so this is a consistency bug
			app.GetLogger().Error("CONSISTENCY: attachment %s vanished before completion: %v", job.attachmentID, err)
		} else {
			app.GetLogger().Error("record capture success for %s: %v", job.url, err)
		}
		return
	}
	app.GetLogger().Info("captured %s -> %s (attempt %d)", job.url, relPath, attempts)

	s.mirrorArtifact(job, relPath)
}

func (s *CaptureService) recordFailure(job captureJob, attempts int, reason string) {
	upd := repository.AttachmentUpdate{
		Status:   note.StatusFailed,
		Reason:   reason,
		Attempts: attempts,
	}
	if err := s.repo.UpdateAttachment(context.Background(), job.noteID, job.attachmentID, upd); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			app.GetLogger().Error("CONSISTENCY: attachment %s vanished before failure record: %v", job.attachmentID, err)
		} else {
			app.GetLogger().Error("record capture failure for %s: %v", job.url, err)
		}
		return
	}
	app.GetLogger().Warn("capture of %s failed after %d attempts: %s", job.url, attempts, reason)
}

// mirrorArtifact pushes a copy of the artifact to the configured mirror.
// Best-effort: a mirror failure never fails the capture.
func (s *CaptureService) mirrorArtifact(job captureJob, relPath string) {
	if s.mirror == nil {
		return
	}

	f, err := s.store.Open(relPath)
	if err != nil {
		app.GetLogger().Warn("mirror: open artifact %s: %v", relPath, err)
		return
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		app.GetLogger().Warn("mirror: read artifact %s: %v", relPath, err)
		return
	}

	loc, err := s.mirror.Mirror(s.ctx, output.MirrorRequest{
		Key:     relPath,
		Content: content,
		Metadata: map[string]string{
			"note":   job.noteID.String(),
			"source": job.url,
		},
	})
	if err != nil {
		app.GetLogger().Warn("mirror: upload %s: %v", relPath, err)
		return
	}
	app.GetLogger().Debug("mirrored %s to %s", relPath, loc)
}
