package dbmerger

import (
	"github.com/agentstation/dbmerger/pkg/constants"
	"github.com/agentstation/dbmerger/pkg/errors"
	"github.com/agentstation/dbmerger/pkg/mappings"
	"github.com/agentstation/dbmerger/pkg/merger"
)

// config holds the client configuration. Guarded by client.mu.
type config struct {
	sourceField    string
	missingLabel   string
	validatedFlag  string
	separator      string
	scope          merger.Scope
	mappings       mappings.Set
	provenancePath string
}

func defaultConfig() *config {
	return &config{
		sourceField:   constants.DefaultSourceField,
		missingLabel:  constants.DefaultMissingLabel,
		validatedFlag: constants.DefaultValidatedFlag,
		separator:     constants.DefaultSeparator,
		scope:         merger.ScopeImage,
		mappings:      mappings.Defaults(),
	}
}

// reserved lists fields a mapping may never write.
func (c *config) reserved() []string {
	out := []string{c.sourceField}
	if c.validatedFlag != "" {
		out = append(out, c.validatedFlag)
	}
	return out
}

func (c *config) validate() error {
	if c.sourceField == "" {
		return errors.NewConfigError("client", "source field cannot be empty", nil)
	}
	if c.missingLabel == "" {
		return errors.NewConfigError("client", "missing label cannot be empty", nil)
	}
	if c.separator == "" {
		return errors.NewConfigError("client", "separator cannot be empty", nil)
	}
	return c.mappings.Validate(c.reserved()...)
}

// mergerOptions converts the configuration into merger options.
func (c *config) mergerOptions() []merger.Option {
	return []merger.Option{
		merger.WithSourceField(c.sourceField),
		merger.WithMissingLabel(c.missingLabel),
		merger.WithValidatedFlag(c.validatedFlag),
		merger.WithSeparator(c.separator),
		merger.WithScope(c.scope),
	}
}

// Option is a function that configures a Client
type Option func(*config) error

func (c *client) options(opts ...Option) error {
	for _, opt := range opts {
		if err := opt(c.config); err != nil {
			return err
		}
	}
	return nil
}

// WithSourceField sets the image field holding the provenance label.
func WithSourceField(field string) Option {
	return func(c *config) error {
		c.sourceField = field
		return nil
	}
}

// WithMissingLabel sets the label used for images without provenance.
func WithMissingLabel(label string) Option {
	return func(c *config) error {
		c.missingLabel = label
		return nil
	}
}

// WithValidatedFlag sets the image field that validates a cluster when set
// on any member. An empty field disables it.
func WithValidatedFlag(field string) Option {
	return func(c *config) error {
		c.validatedFlag = field
		return nil
	}
}

// WithSeparator sets the string joining merged values.
func WithSeparator(sep string) Option {
	return func(c *config) error {
		c.separator = sep
		return nil
	}
}

// WithScope sets the default merge scope.
func WithScope(scope merger.Scope) Option {
	return func(c *config) error {
		if !scope.Valid() {
			return errors.NewValidationError("scope", string(scope), "must be image or cluster")
		}
		c.scope = scope
		return nil
	}
}

// WithMappings replaces the default field mappings.
func WithMappings(set mappings.Set) Option {
	return func(c *config) error {
		c.mappings = set.Trim()
		return nil
	}
}

// WithProvenanceFile sets where merge provenance is persisted.
// An empty path disables persistence.
func WithProvenanceFile(path string) Option {
	return func(c *config) error {
		c.provenancePath = path
		return nil
	}
}
