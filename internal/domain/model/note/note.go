package note

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// DayFormat is the calendar-day layout used for day-file names and note IDs.
const DayFormat = "2006-01-02"

// TagMarker prefixes a body token that should be treated as a tag.
const TagMarker = '#'

// NoteID identifies a note by the day it was appended and its sequence
// number within that day. Sequence numbers are 1-based, strictly increasing
// within a day, and reset at day rollover.
type NoteID struct {
	Day string `json:"day"`
	Seq int    `json:"seq"`
}

// NewNoteID creates a NoteID for the given day and sequence
func NewNoteID(day time.Time, seq int) NoteID {
	return NoteID{Day: day.Format(DayFormat), Seq: seq}
}

// ParseNoteID creates a NoteID from an existing day string and sequence
func ParseNoteID(day string, seq int) (NoteID, error) {
	if _, err := time.Parse(DayFormat, day); err != nil {
		return NoteID{}, fmt.Errorf("invalid day %q: %w", day, err)
	}
	if seq < 1 {
		return NoteID{}, errors.New("sequence must be >= 1")
	}
	return NoteID{Day: day, Seq: seq}, nil
}

// String returns the string representation (e.g., "2024-01-01/3")
func (id NoteID) String() string {
	return fmt.Sprintf("%s/%d", id.Day, id.Seq)
}

// Equals checks if two NoteIDs are equal
func (id NoteID) Equals(other NoteID) bool {
	return id.Day == other.Day && id.Seq == other.Seq
}

// Before reports whether id was appended before other (day, then sequence).
func (id NoteID) Before(other NoteID) bool {
	if id.Day != other.Day {
		return id.Day < other.Day
	}
	return id.Seq < other.Seq
}

// Note is an immutable, timestamped unit of user-authored text. Once
// appended it never changes; the only mutable state hanging off a note is
// the status of its attachments, and those change only through the
// repository's attachment update path.
type Note struct {
	ID          NoteID        `json:"id"`
	CreatedAt   time.Time     `json:"created_at"`
	Body        string        `json:"body"`
	Tags        []string      `json:"tags,omitempty"`
	Attachments []*Attachment `json:"attachments,omitempty"`
}

// NewNote creates a note for the given identity and body. Tags are derived
// from the body at creation time.
func NewNote(id NoteID, createdAt time.Time, body string) *Note {
	return &Note{
		ID:        id,
		CreatedAt: createdAt.UTC(),
		Body:      body,
		Tags:      ExtractTags(body),
	}
}

// Attachment returns the attachment with the given ID, or nil.
func (n *Note) Attachment(attachmentID string) *Attachment {
	for _, a := range n.Attachments {
		if a.ID == attachmentID {
			return a
		}
	}
	return nil
}

// AttachmentByURL returns the attachment tracking the given source URL, or nil.
func (n *Note) AttachmentByURL(url string) *Attachment {
	for _, a := range n.Attachments {
		if a.URL == url {
			return a
		}
	}
	return nil
}

// ExtractTags returns the marker-prefixed tokens of a body, lowercased,
// without the marker, in order of first appearance.
func ExtractTags(body string) []string {
	var tags []string
	seen := make(map[string]struct{})
	for _, word := range strings.Fields(body) {
		if len(word) < 2 || rune(word[0]) != TagMarker {
			continue
		}
		tag := strings.ToLower(strings.TrimFunc(word[1:], func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_'
		}))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}
