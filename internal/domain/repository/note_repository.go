package repository

import (
	"context"
	"errors"
	"time"

	"github.com/wassup-/textpod/internal/domain/model/note"
)

// ErrNotFound indicates a note or attachment that does not exist. Since
// attachments are never removed, hitting this from an update path points at
// a consistency bug and is logged distinctly by callers.
var ErrNotFound = errors.New("not found")

// AttachmentUpdate describes a status change for one attachment. It is the
// only way attachment fields change after creation.
type AttachmentUpdate struct {
	Status       note.CaptureStatus
	ArtifactPath string // set only when Status is done
	Reason       string // set only when Status is failed
	Attempts     int
}

// NoteRepository is the durable, append-only store of notes partitioned by
// calendar day. Implementations must make Append atomic: after a restart a
// note is either fully readable or absent, never partial.
type NoteRepository interface {
	// Append durably stores a new note body under the current day and
	// returns the created note with its assigned identity.
	Append(ctx context.Context, body string) (*note.Note, error)

	// AddAttachment records a pending attachment for a reference found in
	// the note body. Deduplicates by (note, url): adding the same URL to the
	// same note again returns the existing attachment.
	AddAttachment(ctx context.Context, noteID note.NoteID, url string, kind note.CaptureKind) (*note.Attachment, error)

	// UpdateAttachment applies a status change to an existing attachment.
	// Safe for concurrent calls from capture-job completions. Returns
	// ErrNotFound if the note or attachment does not exist.
	UpdateAttachment(ctx context.Context, noteID note.NoteID, attachmentID string, upd AttachmentUpdate) error

	// ReadDay returns the notes of one day in append order, reflecting all
	// appends and attachment updates durable before the call began.
	ReadDay(ctx context.Context, day time.Time) ([]*note.Note, error)

	// ListDays enumerates the days that have at least one note, ascending.
	ListDays(ctx context.Context) ([]time.Time, error)
}
