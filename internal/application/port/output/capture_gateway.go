package output

import (
	"context"

	"github.com/wassup-/textpod/internal/domain/model/note"
)

// CaptureGateway is the invocation contract of one external capture tool.
// The tool is handed the reference URL and a destination path; success means
// a zero exit status and a produced file at the destination. Timeouts are
// enforced by the caller through ctx, not by the tool.
type CaptureGateway interface {
	// Kind returns the capture kind this gateway produces
	Kind() note.CaptureKind

	// Capture archives url into destPath. Any non-nil error carries a
	// human-readable reason suitable for the attachment record.
	Capture(ctx context.Context, url string, destPath string) error
}
