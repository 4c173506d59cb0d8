// Package alerts writes one-line status notices, such as the outcome of
// a mappings check or a cluster validation, in the selected output format.
package alerts

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/goccy/go-yaml"

	"github.com/agentstation/dbmerger/internal/cmd/emoji"
	"github.com/agentstation/dbmerger/internal/cmd/output"
)

// Level represents the severity of an alert.
type Level int

const (
	// LevelError indicates a failure.
	LevelError Level = iota
	// LevelWarning indicates a non-fatal issue.
	LevelWarning
	// LevelInfo indicates general information.
	LevelInfo
	// LevelSuccess indicates a completed operation.
	LevelSuccess
	// LevelSkipped indicates an item left alone or undone.
	LevelSkipped
)

// String returns the string representation of the alert level.
func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarning:
		return "warning"
	case LevelInfo:
		return "info"
	case LevelSuccess:
		return "success"
	case LevelSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}

// Icon returns the symbol printed before the alert message.
func (l Level) Icon() string {
	switch l {
	case LevelError:
		return emoji.Error
	case LevelWarning:
		return emoji.Warning
	case LevelInfo:
		return emoji.Info
	case LevelSuccess:
		return emoji.Success
	default:
		return emoji.Optional
	}
}

// Alert is a status notice.
type Alert struct {
	Level   Level
	Message string
	Details []string
	Err     error
}

// New creates a new alert with the given level and message.
func New(level Level, format string, args ...any) *Alert {
	return &Alert{Level: level, Message: fmt.Sprintf(format, args...)}
}

// WithError adds an underlying error to the alert.
func (a *Alert) WithError(err error) *Alert {
	a.Err = err
	return a
}

// WithDetails adds context lines to the alert.
func (a *Alert) WithDetails(details ...string) *Alert {
	a.Details = append(a.Details, details...)
	return a
}

// String returns the single-line form "icon message[: err]".
func (a *Alert) String() string {
	message := a.Level.Icon() + " " + a.Message
	if a.Err != nil {
		message += fmt.Sprintf(": %v", a.Err)
	}
	return message
}

// alertData is the structured form of an alert.
type alertData struct {
	Level   string   `json:"level" yaml:"level"`
	Message string   `json:"message" yaml:"message"`
	Details []string `json:"details,omitempty" yaml:"details,omitempty"`
	Error   string   `json:"error,omitempty" yaml:"error,omitempty"`
}

func (a *Alert) data() alertData {
	d := alertData{Level: a.Level.String(), Message: a.Message, Details: a.Details}
	if a.Err != nil {
		d.Error = a.Err.Error()
	}
	return d
}

// Write renders the alert to w: a line plus indented details for table
// formats, an object for JSON and YAML.
func Write(w io.Writer, format output.Format, a *Alert) error {
	switch format {
	case output.FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(a.data())
	case output.FormatYAML:
		data, err := yaml.Marshal(a.data())
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}

	if _, err := fmt.Fprintln(w, a.String()); err != nil {
		return err
	}
	for _, detail := range a.Details {
		if _, err := fmt.Fprintf(w, "   %s\n", detail); err != nil {
			return err
		}
	}
	return nil
}
