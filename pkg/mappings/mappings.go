// Package mappings holds the user-edited configuration that maps source
// metadata fields onto merged destination fields.
package mappings

import (
	"fmt"
	"slices"
	"strings"

	"github.com/agentstation/dbmerger/pkg/errors"
)

// FieldMapping merges the values of Sources, in order, into Destination.
type FieldMapping struct {
	Destination string   `json:"destination" yaml:"destination"`
	Sources     []string `json:"sources" yaml:"sources"`
}

// String renders the mapping as "destination <- a, b".
func (m FieldMapping) String() string {
	return fmt.Sprintf("%s <- %s", m.Destination, strings.Join(m.Sources, ", "))
}

// Set is an ordered list of mappings.
type Set []FieldMapping

// Defaults returns the mappings shipped with the plugin.
func Defaults() Set {
	return Set{
		{Destination: "Auteur-merged", Sources: []string{"Author", "Auteur"}},
		{Destination: "Titre-merged", Sources: []string{"Title", "Titre"}},
		{Destination: "Copyright-merged", Sources: []string{"Copyright", "Copyright (fr)"}},
	}
}

// Clone deep-copies the set.
func (s Set) Clone() Set {
	if s == nil {
		return nil
	}
	out := make(Set, len(s))
	for i, m := range s {
		out[i] = FieldMapping{Destination: m.Destination, Sources: slices.Clone(m.Sources)}
	}
	return out
}

// Destinations returns the destination fields in declaration order.
func (s Set) Destinations() []string {
	out := make([]string, len(s))
	for i, m := range s {
		out[i] = m.Destination
	}
	return out
}

// Find returns the mapping targeting destination.
func (s Set) Find(destination string) (FieldMapping, bool) {
	for _, m := range s {
		if m.Destination == destination {
			return m, true
		}
	}
	return FieldMapping{}, false
}

// Trim returns a copy with surrounding whitespace removed from every field name.
func (s Set) Trim() Set {
	out := s.Clone()
	for i := range out {
		out[i].Destination = strings.TrimSpace(out[i].Destination)
		for j := range out[i].Sources {
			out[i].Sources[j] = strings.TrimSpace(out[i].Sources[j])
		}
	}
	return out
}

// Validate checks the set before a merge is executed.
//
// Every mapping needs a destination and at least one non-empty source.
// Destinations must be unique and may not name a source field of any
// mapping or one of the reserved fields (the provenance field, typically),
// so that a merge never overwrites its own inputs.
func (s Set) Validate(reserved ...string) error {
	var errs []error

	sources := make(map[string]bool)
	for _, m := range s {
		for _, src := range m.Sources {
			sources[strings.TrimSpace(src)] = true
		}
	}

	seen := make(map[string]int, len(s))
	for i, m := range s {
		dest := strings.TrimSpace(m.Destination)
		field := fmt.Sprintf("mappings[%d]", i)

		if dest == "" {
			errs = append(errs, errors.NewValidationError(field+".destination", m.Destination, "destination is required"))
		} else {
			if first, dup := seen[dest]; dup {
				errs = append(errs, errors.NewValidationError(field+".destination", dest,
					fmt.Sprintf("duplicate destination %q (already targeted by mappings[%d])", dest, first)))
			} else {
				seen[dest] = i
			}
			if sources[dest] {
				errs = append(errs, errors.NewValidationError(field+".destination", dest,
					fmt.Sprintf("destination %q is also a source field", dest)))
			}
			if slices.Contains(reserved, dest) {
				errs = append(errs, errors.NewValidationError(field+".destination", dest,
					fmt.Sprintf("destination %q is a reserved field", dest)))
			}
		}

		if len(m.Sources) == 0 {
			errs = append(errs, errors.NewValidationError(field+".sources", nil, "at least one source is required"))
		}
		for j, src := range m.Sources {
			if strings.TrimSpace(src) == "" {
				errs = append(errs, errors.NewValidationError(fmt.Sprintf("%s.sources[%d]", field, j), src, "source field name is empty"))
			}
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.NewConfigError("mappings", describe(errs), errors.Join(errs...))
}

func describe(errs []error) string {
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}
