package merger

import (
	"github.com/agentstation/dbmerger/pkg/constants"
	"github.com/agentstation/dbmerger/pkg/errors"
)

type options struct {
	sourceField   string
	missingLabel  string
	validatedFlag string
	separator     string
	scope         Scope
	tracking      bool
}

func defaultOptions() *options {
	return &options{
		sourceField:   constants.DefaultSourceField,
		missingLabel:  constants.DefaultMissingLabel,
		validatedFlag: constants.DefaultValidatedFlag,
		separator:     constants.DefaultSeparator,
		scope:         ScopeImage,
		tracking:      true,
	}
}

// Option is a function that configures a Merger.
type Option func(*options) error

func (o *options) apply(opts ...Option) (*options, error) {
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func newOptions(opts ...Option) (*options, error) {
	return defaultOptions().apply(opts...)
}

// WithSourceField sets the image field holding the provenance label.
func WithSourceField(field string) Option {
	return func(o *options) error {
		if field == "" {
			return &errors.ValidationError{Field: "source_field", Message: "cannot be empty"}
		}
		o.sourceField = field
		return nil
	}
}

// WithMissingLabel sets the label used when an image has no provenance.
func WithMissingLabel(label string) Option {
	return func(o *options) error {
		if label == "" {
			return &errors.ValidationError{Field: "missing_label", Message: "cannot be empty"}
		}
		o.missingLabel = label
		return nil
	}
}

// WithValidatedFlag sets the image field that marks members of a validated
// cluster. An empty field disables flag-based validation so only
// Cluster.Validated counts.
func WithValidatedFlag(field string) Option {
	return func(o *options) error {
		o.validatedFlag = field
		return nil
	}
}

// WithSeparator sets the string joining formatted values.
func WithSeparator(sep string) Option {
	return func(o *options) error {
		if sep == "" {
			return &errors.ValidationError{Field: "separator", Message: "cannot be empty"}
		}
		o.separator = sep
		return nil
	}
}

// WithScope sets how values are gathered within a cluster.
func WithScope(scope Scope) Option {
	return func(o *options) error {
		if !scope.Valid() {
			return &errors.ValidationError{Field: "scope", Value: string(scope), Message: "must be image or cluster"}
		}
		o.scope = scope
		return nil
	}
}

// WithProvenance enables field-level provenance tracking.
func WithProvenance(enabled bool) Option {
	return func(o *options) error {
		o.tracking = enabled
		return nil
	}
}
