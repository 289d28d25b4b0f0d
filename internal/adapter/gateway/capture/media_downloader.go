package capture

import (
	"context"
	"time"

	"github.com/wassup-/textpod/internal/domain/model/note"
)

// MediaDownloader invokes the external media-downloader tool (yt-dlp) to
// fetch a URL as a local media file. Media downloads get a much longer
// timeout budget than page snapshots.
type MediaDownloader struct {
	Bin     string
	Timeout time.Duration
}

// Kind returns the capture kind this gateway produces
func (r MediaDownloader) Kind() note.CaptureKind {
	return note.KindMediaFile
}

// Capture downloads url into destPath. --no-playlist keeps a playlist URL
// from fanning out into an unbounded download.
func (r MediaDownloader) Capture(ctx context.Context, url string, destPath string) error {
	return runTool(ctx, r.Timeout, r.Bin, []string{"--no-playlist", "-o", destPath, url}, destPath)
}
