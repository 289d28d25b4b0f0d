package capture

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/wassup-/textpod/internal/domain/model/note"
)

// outputTailLimit bounds how much tool output is preserved in a failure
// reason.
const outputTailLimit = 512

// PageArchiver invokes the external page-archiver tool (monolith) to capture
// a URL as one self-contained offline document.
type PageArchiver struct {
	Bin     string
	Timeout time.Duration
}

// Kind returns the capture kind this gateway produces
func (r PageArchiver) Kind() note.CaptureKind {
	return note.KindPageSnapshot
}

// Capture archives url into destPath. The timeout is enforced here, not by
// the tool; expiry kills the subprocess.
func (r PageArchiver) Capture(ctx context.Context, url string, destPath string) error {
	return runTool(ctx, r.Timeout, r.Bin, []string{url, "-o", destPath}, destPath)
}

// runTool executes one capture tool invocation under a timeout and verifies
// the artifact contract: zero exit status and a non-empty file at destPath.
func runTool(ctx context.Context, timeout time.Duration, bin string, args []string, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if cctx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return fmt.Errorf("%s timed out after %s", bin, timeout)
		}
		return fmt.Errorf("%s failed: %w (output: %s)", bin, err, outputTail(out))
	}

	info, err := os.Stat(destPath)
	if err != nil {
		return fmt.Errorf("%s exited cleanly but produced no artifact at %s", bin, destPath)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%s produced an empty artifact at %s", bin, destPath)
	}
	return nil
}

func outputTail(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) > outputTailLimit {
		s = "..." + s[len(s)-outputTailLimit:]
	}
	return s
}
