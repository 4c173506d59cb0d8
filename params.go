package dbmerger

import (
	"strings"

	"github.com/agentstation/dbmerger/pkg/logging"
	"github.com/agentstation/dbmerger/pkg/mappings"
)

// Params are the user-editable plugin parameters.
type Params struct {
	// SourceField is the image field holding the provenance label.
	SourceField string `json:"merge_source_field" yaml:"merge_source_field"`

	// ValidatedFlag is the image field that validates a cluster when set on a member.
	ValidatedFlag string `json:"merge_validated_flag" yaml:"merge_validated_flag"`

	// MappingsRaw is the field mapping list as a JSON array.
	MappingsRaw string `json:"merge_mappings_raw" yaml:"merge_mappings_raw"`

	// MissingLabel replaces the provenance label of images without one.
	MissingLabel string `json:"merge_source_missing_label" yaml:"merge_source_missing_label"`
}

// Params returns the current plugin parameters.
func (c *client) Params() Params {
	c.mu.RLock()
	defer c.mu.RUnlock()

	raw, err := c.config.mappings.JSON()
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to encode mappings")
	}
	return Params{
		SourceField:   c.config.sourceField,
		ValidatedFlag: c.config.validatedFlag,
		MappingsRaw:   raw,
		MissingLabel:  c.config.missingLabel,
	}
}

// UpdateParams applies new plugin parameters. Empty fields keep their
// current value. Nothing changes unless every parameter is valid.
func (c *client) UpdateParams(p Params) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := *c.config
	if v := strings.TrimSpace(p.SourceField); v != "" {
		next.sourceField = v
	}
	if v := strings.TrimSpace(p.ValidatedFlag); v != "" {
		next.validatedFlag = v
	}
	if p.MissingLabel != "" {
		next.missingLabel = p.MissingLabel
	}
	if strings.TrimSpace(p.MappingsRaw) != "" {
		set, err := mappings.ParseJSON(p.MappingsRaw)
		if err != nil {
			logging.Warn().Err(err).Msg("Invalid mapping parameter; keeping previous mappings")
			return err
		}
		next.mappings = set
	}

	if err := next.validate(); err != nil {
		logging.Warn().Err(err).Msg("Invalid parameters; keeping previous configuration")
		return err
	}
	*c.config = next
	return nil
}
