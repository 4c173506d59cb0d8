package merger

import (
	"strings"

	"github.com/agentstation/dbmerger/pkg/errors"
)

// Scope selects where the values of a destination field are gathered from.
type Scope string

const (
	// ScopeImage merges each image's own source fields into its destination field.
	ScopeImage Scope = "image"

	// ScopeCluster gathers the source fields of every member of a cluster,
	// in member order, and writes the joined result to every member.
	ScopeCluster Scope = "cluster"
)

// String returns the string representation of a scope.
func (s Scope) String() string {
	return string(s)
}

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	return s == ScopeImage || s == ScopeCluster
}

// ParseScope converts a string to a Scope. An empty string selects ScopeImage.
func ParseScope(s string) (Scope, error) {
	scope := Scope(strings.ToLower(strings.TrimSpace(s)))
	if scope == "" {
		return ScopeImage, nil
	}
	if !scope.Valid() {
		return "", errors.NewValidationError("scope", s, "must be image or cluster")
	}
	return scope, nil
}
