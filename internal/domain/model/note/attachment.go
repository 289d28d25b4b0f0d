package note

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// CaptureKind classifies how a detected reference should be archived.
type CaptureKind string

const (
	// KindPageSnapshot captures a URL as one self-contained offline document.
	KindPageSnapshot CaptureKind = "page-snapshot"
	// KindMediaFile downloads a URL as a local media file.
	KindMediaFile CaptureKind = "media-file"
)

// String returns the string representation
func (k CaptureKind) String() string {
	return string(k)
}

// IsValid validates the capture kind
func (k CaptureKind) IsValid() bool {
	switch k {
	case KindPageSnapshot, KindMediaFile:
		return true
	default:
		return false
	}
}

// CaptureStatus represents the lifecycle state of an attachment capture.
type CaptureStatus string

const (
	StatusPending CaptureStatus = "pending"
	StatusDone    CaptureStatus = "done"
	StatusFailed  CaptureStatus = "failed"
)

// String returns the string representation
func (s CaptureStatus) String() string {
	return string(s)
}

// IsValid validates the status
func (s CaptureStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusDone, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status is a resting state for the
// orchestrator. done is final; failed stays terminal until an explicit retry.
func (s CaptureStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

// CanTransitionTo checks if a status transition is valid. The only backward
// transition is failed -> pending, used by manual retry and startup recovery.
func (s CaptureStatus) CanTransitionTo(next CaptureStatus) bool {
	validTransitions := map[CaptureStatus][]CaptureStatus{
		StatusPending: {StatusDone, StatusFailed},
		StatusDone:    {},
		StatusFailed:  {StatusPending},
	}

	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Attachment tracks the capture of one external reference found in a note
// body. It is created pending and only ever mutated through the note
// repository's UpdateAttachment operation.
type Attachment struct {
	ID           string        `json:"id"`
	NoteID       NoteID        `json:"note_id"`
	URL          string        `json:"url"`
	Kind         CaptureKind   `json:"kind"`
	Status       CaptureStatus `json:"status"`
	ArtifactPath string        `json:"artifact_path,omitempty"` // set only when done
	LastError    string        `json:"last_error,omitempty"`    // set only when failed
	Attempts     int           `json:"attempts"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// NewAttachment creates a pending attachment for a reference found in the
// given note.
func NewAttachment(noteID NoteID, url string, kind CaptureKind) *Attachment {
	now := time.Now().UTC()
	return &Attachment{
		ID:        GenerateAttachmentID(),
		NoteID:    noteID,
		URL:       url,
		Kind:      kind,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// GenerateAttachmentID generates a new attachment ID using ULID
// Format: ULID (e.g., 01JB6X8Y2K9FQR4T3VWHGP5M2C)
func GenerateAttachmentID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
