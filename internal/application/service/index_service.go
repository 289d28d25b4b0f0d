package service

import (
	"sort"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/wassup-/textpod/internal/domain/model/note"
)

// SearchIndex maps normalized tokens to the set of notes containing them.
// It is a derived, disposable cache: the day files are the source of truth
// and the whole index can be rebuilt from them at any time.
//
// Concurrency: one writer (IndexNote is serialized with note appends by the
// caller), unlimited readers. Rebuild constructs a full replacement off to
// the side and swaps it in under the write lock, so readers never observe a
// partially replaced index.
type SearchIndex struct {
	mu    sync.RWMutex
	state *indexState
}

type indexState struct {
	tokens map[string]map[note.NoteID]struct{}
	notes  map[note.NoteID]struct{}
}

func newIndexState() *indexState {
	return &indexState{
		tokens: make(map[string]map[note.NoteID]struct{}),
		notes:  make(map[note.NoteID]struct{}),
	}
}

// NewSearchIndex creates an empty search index
func NewSearchIndex() *SearchIndex {
	return &SearchIndex{state: newIndexState()}
}

// IndexNote adds a note's tokens to the index. Indexing the same note twice
// is a no-op (set semantics).
func (s *SearchIndex) IndexNote(n *note.Note) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.indexNote(n)
}

// Rebuild discards the current state and replays the given full store read.
// The old index stays queryable until the replacement is complete.
func (s *SearchIndex) Rebuild(all []*note.Note) {
	next := newIndexState()
	for _, n := range all {
		next.indexNote(n)
	}

	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
}

// Query returns the IDs of notes containing every term (exact token match,
// case-insensitive), newest first. Empty or unmatchable input yields nil.
func (s *SearchIndex) Query(terms ...string) []note.NoteID {
	var tokens []string
	for _, term := range terms {
		tokens = append(tokens, TokenizeTerm(term)...)
	}
	if len(tokens) == 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	// Intersect starting from the rarest token
	smallest := -1
	for i, tok := range tokens {
		set, ok := s.state.tokens[tok]
		if !ok {
			return nil
		}
		if smallest < 0 || len(set) < len(s.state.tokens[tokens[smallest]]) {
			smallest = i
		}
	}

	var ids []note.NoteID
	for id := range s.state.tokens[tokens[smallest]] {
		inAll := true
		for _, tok := range tokens {
			if _, ok := s.state.tokens[tok][id]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			ids = append(ids, id)
		}
	}

	sort.Slice(ids, func(i, j int) bool { return ids[j].Before(ids[i]) })
	return ids
}

// Size returns the number of indexed notes
func (s *SearchIndex) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.notes)
}

// Contains reports whether a note has been indexed
func (s *SearchIndex) Contains(id note.NoteID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.state.notes[id]
	return ok
}

func (st *indexState) indexNote(n *note.Note) {
	if _, done := st.notes[n.ID]; done {
		return
	}
	st.notes[n.ID] = struct{}{}

	for _, tok := range Tokenize(n.Body) {
		set, ok := st.tokens[tok]
		if !ok {
			set = make(map[note.NoteID]struct{})
			st.tokens[tok] = set
		}
		set[n.ID] = struct{}{}
	}
	// Tags are also reachable with the marker kept, so "#go" finds tagged
	// notes without matching the bare word.
	for _, tag := range n.Tags {
		marked := string(note.TagMarker) + tag
		set, ok := st.tokens[marked]
		if !ok {
			set = make(map[note.NoteID]struct{})
			st.tokens[marked] = set
		}
		set[n.ID] = struct{}{}
	}
}

// Tokenize splits text into normalized search tokens: NFKC-folded,
// lowercased, split on anything that is not a letter or digit. Tag markers
// are boundaries like any other punctuation; marked tag tokens are added by
// the indexer from the note's derived tags.
func Tokenize(text string) []string {
	normalized := strings.ToLower(norm.NFKC.String(text))
	return strings.FieldsFunc(normalized, isTokenBoundary)
}

// TokenizeTerm normalizes a single query term. A term starting with the tag
// marker, like "#go", becomes the marked tag token so it matches only tagged
// notes; anything else tokenizes as plain text.
func TokenizeTerm(term string) []string {
	trimmed := strings.TrimSpace(strings.ToLower(norm.NFKC.String(term)))
	if strings.HasPrefix(trimmed, string(note.TagMarker)) {
		rest := strings.FieldsFunc(trimmed[1:], isTokenBoundary)
		if len(rest) > 0 {
			return []string{string(note.TagMarker) + rest[0]}
		}
		return nil
	}
	return strings.FieldsFunc(trimmed, isTokenBoundary)
}

func isTokenBoundary(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
