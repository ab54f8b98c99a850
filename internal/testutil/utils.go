package testutil

import (
	"log"
	"strings"
	"testing"
)

type testWriter struct {
	t *testing.T
}

func (tw *testWriter) Write(p []byte) (int, error) {
	tw.t.Helper()
	tw.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// TestLogger returns a logger that writes through t.Log so output is
// attributed to the running test.
func TestLogger(t *testing.T) *log.Logger {
	return log.New(&testWriter{t: t}, "", 0)
}
