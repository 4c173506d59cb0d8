package application

import (
	"github.com/rs/zerolog"

	"github.com/agentstation/dbmerger"
	"github.com/agentstation/dbmerger/internal/cmd/output"
)

// Mock provides a mock implementation of Application for testing.
// Each method can be customized by setting the corresponding function field.
// If a function field is nil, the method returns a default/zero value.
//
// Example Usage:
//
//	mock := &application.Mock{
//	    ClientFunc: func() (dbmerger.Client, error) {
//	        return testClient, nil
//	    },
//	}
//	cmd := clusters.NewCommand(mock)
//	// ... test command
type Mock struct {
	ClientFunc       func() (dbmerger.Client, error)
	LoggerFunc       func() *zerolog.Logger
	OutputFormatFunc func() output.Format
	VersionFunc      func() string
	CommitFunc       func() string
	DateFunc         func() string
}

// Client returns a client using the mock function or nil.
func (m *Mock) Client() (dbmerger.Client, error) {
	if m.ClientFunc != nil {
		return m.ClientFunc()
	}
	return nil, nil
}

// Logger returns a logger using the mock function or a no-op logger.
func (m *Mock) Logger() *zerolog.Logger {
	if m.LoggerFunc != nil {
		return m.LoggerFunc()
	}
	logger := zerolog.Nop()
	return &logger
}

// OutputFormat returns output format using the mock function or table.
func (m *Mock) OutputFormat() output.Format {
	if m.OutputFormatFunc != nil {
		return m.OutputFormatFunc()
	}
	return output.FormatTable
}

// Version returns version using the mock function or "dev".
func (m *Mock) Version() string {
	if m.VersionFunc != nil {
		return m.VersionFunc()
	}
	return "dev"
}

// Commit returns commit using the mock function or "unknown".
func (m *Mock) Commit() string {
	if m.CommitFunc != nil {
		return m.CommitFunc()
	}
	return "unknown"
}

// Date returns date using the mock function or "unknown".
func (m *Mock) Date() string {
	if m.DateFunc != nil {
		return m.DateFunc()
	}
	return "unknown"
}

// Ensure Mock implements Application at compile time.
var _ Application = (*Mock)(nil)
