package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/wassup-/textpod/internal/domain/model/note"
)

// MockOutcome scripts what the mock does for one URL.
type MockOutcome struct {
	// FailuresBeforeSuccess makes the first N calls fail with a transient
	// error before succeeding. Negative means fail forever.
	FailuresBeforeSuccess int
	// Hang blocks until the context is cancelled, simulating a tool that
	// never finishes inside its budget.
	Hang bool
	// Err overrides the transient error returned on failure.
	Err error
}

// MockCaptureGateway is a deterministic CaptureGateway test double. Unknown
// URLs succeed on the first call.
type MockCaptureGateway struct {
	kind note.CaptureKind

	mu       sync.Mutex
	outcomes map[string]*MockOutcome
	calls    map[string]int
}

// NewMockCaptureGateway creates a mock gateway for the given kind
func NewMockCaptureGateway(kind note.CaptureKind) *MockCaptureGateway {
	return &MockCaptureGateway{
		kind:     kind,
		outcomes: make(map[string]*MockOutcome),
		calls:    make(map[string]int),
	}
}

// Script sets the outcome for one URL
func (g *MockCaptureGateway) Script(url string, outcome MockOutcome) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.outcomes[url] = &outcome
}

// Calls returns how many times a URL was attempted
func (g *MockCaptureGateway) Calls(url string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[url]
}

// Kind returns the capture kind this gateway produces
func (g *MockCaptureGateway) Kind() note.CaptureKind {
	return g.kind
}

// Capture follows the scripted outcome, writing a small artifact on success
func (g *MockCaptureGateway) Capture(ctx context.Context, url string, destPath string) error {
	g.mu.Lock()
	g.calls[url]++
	call := g.calls[url]
	outcome := g.outcomes[url]
	g.mu.Unlock()

	if outcome != nil {
		if outcome.Hang {
			<-ctx.Done()
			return ctx.Err()
		}
		if outcome.FailuresBeforeSuccess < 0 || call <= outcome.FailuresBeforeSuccess {
			if outcome.Err != nil {
				return outcome.Err
			}
			return fmt.Errorf("mock capture of %s failed (call %d)", url, call)
		}
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(destPath, []byte("captured: "+url), 0o644)
}
