package server

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain runs goleak verification for all tests in this package
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
