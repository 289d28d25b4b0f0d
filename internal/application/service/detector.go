package service

import (
	"net/url"
	"strings"

	"github.com/wassup-/textpod/internal/domain/model/note"
	infraconfig "github.com/wassup-/textpod/internal/infra/config"
)

// Reference is one capturable external reference found in a note body.
type Reference struct {
	URL  string
	Kind note.CaptureKind
}

// ReferenceDetector scans note bodies for URL-shaped substrings and
// classifies each as a media download or a page snapshot using the capture
// rules. Malformed or ambiguous candidates are skipped, never attempted.
type ReferenceDetector struct {
	rules *infraconfig.CaptureRules
}

// NewReferenceDetector creates a detector with the given classification rules
func NewReferenceDetector(rules *infraconfig.CaptureRules) *ReferenceDetector {
	if rules == nil {
		rules = infraconfig.DefaultCaptureRules()
	}
	return &ReferenceDetector{rules: rules}
}

// Detect returns the references of a note body in order of first appearance,
// deduplicated by URL.
func (d *ReferenceDetector) Detect(body string) []Reference {
	var refs []Reference
	seen := make(map[string]struct{})

	for _, word := range strings.Fields(body) {
		candidate := trimPunctuation(word)
		if !strings.HasPrefix(candidate, "http://") && !strings.HasPrefix(candidate, "https://") {
			continue
		}

		u, err := url.Parse(candidate)
		if err != nil || u.Host == "" {
			continue
		}

		if _, dup := seen[candidate]; dup {
			continue
		}
		seen[candidate] = struct{}{}

		kind := note.KindPageSnapshot
		if d.rules.IsMediaHost(u.Host) {
			kind = note.KindMediaFile
		}
		refs = append(refs, Reference{URL: candidate, Kind: kind})
	}
	return refs
}

// trimPunctuation strips punctuation that prose tends to glue onto a URL.
func trimPunctuation(word string) string {
	return strings.TrimRight(word, ".,;:!?)\"'>]}")
}
