// Package metadata models host images and the metadata fields attached to them.
package metadata

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cast"
)

// Image is a host image and its metadata fields.
type Image struct {
	ID     string         `json:"id" yaml:"id"`
	Fields map[string]any `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// New creates an image with the given fields. The map is copied.
func New(id string, fields map[string]any) Image {
	img := Image{ID: id, Fields: make(map[string]any, len(fields))}
	maps.Copy(img.Fields, fields)
	return img
}

// Value returns the normalised string value of a field and whether it is
// populated. Only the empty string counts as not populated; whitespace is a value.
func (i Image) Value(field string) (string, bool) {
	raw, ok := i.Fields[field]
	if !ok {
		return "", false
	}
	s := Normalize(raw)
	if s == "" {
		return "", false
	}
	return s, true
}

// Has reports whether the field is populated.
func (i Image) Has(field string) bool {
	_, ok := i.Value(field)
	return ok
}

// Flag reports whether a field holds a truthy value ("true", "1", "yes", non-zero numbers).
func (i Image) Flag(field string) bool {
	raw, ok := i.Fields[field]
	if !ok || raw == nil {
		return false
	}
	if s, isStr := raw.(string); isStr {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "yes", "y", "on":
			return true
		}
	}
	return cast.ToBool(raw)
}

// Set writes a field value, allocating the field map if needed.
func (i *Image) Set(field string, value any) {
	if i.Fields == nil {
		i.Fields = make(map[string]any)
	}
	i.Fields[field] = value
}

// Clone returns a copy whose field map can be modified independently.
func (i Image) Clone() Image {
	return New(i.ID, i.Fields)
}

// FieldNames returns the image field names in sorted order.
func (i Image) FieldNames() []string {
	return slices.Sorted(maps.Keys(i.Fields))
}

// Normalize renders a host metadata value as a string.
// Lists are joined with ", " and empty elements are dropped.
func Normalize(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []string:
		return joinNonEmpty(val)
	case []any:
		parts := make([]string, 0, len(val))
		for _, elem := range val {
			parts = append(parts, Normalize(elem))
		}
		return joinNonEmpty(parts)
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}

func joinNonEmpty(parts []string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}
