package testutils

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
	Output *bytes.Buffer
}

// NewTestHelper creates a test helper whose logger writes to an in-memory buffer.
func NewTestHelper(t *testing.T) *TestHelper {
	out := &bytes.Buffer{}
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})
	return &TestHelper{
		T:      t,
		Logger: logger,
		Output: out,
	}
}

// Logs returns everything logged so far.
func (h *TestHelper) Logs() string {
	return h.Output.String()
}
