// Package provenance resolves, formats and records where merged values came from.
package provenance

import (
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/agentstation/utc"
	"github.com/goccy/go-yaml"

	"github.com/agentstation/dbmerger/pkg/constants"
	"github.com/agentstation/dbmerger/pkg/errors"
	"github.com/agentstation/dbmerger/pkg/metadata"
)

// Label returns the image's provenance label read from field, or missing
// when the field is absent or empty. The result is never empty unless
// missing is.
func Label(img metadata.Image, field, missing string) string {
	if v, ok := img.Value(field); ok {
		return v
	}
	return missing
}

// Format renders a merged value with its provenance suffix: "value [label]".
func Format(value, label string) string {
	return value + " [" + label + "]"
}

// Provenance records one contribution to a destination field.
type Provenance struct {
	ClusterID   string   `json:"cluster_id" yaml:"cluster_id"`
	SourceImage string   `json:"source_image" yaml:"source_image"` // image the value was read from
	SourceField string   `json:"source_field" yaml:"source_field"`
	Label       string   `json:"label" yaml:"label"`
	Value       string   `json:"value" yaml:"value"`
	Timestamp   utc.Time `json:"timestamp" yaml:"timestamp"`
}

// Map holds provenance keyed by "imageID:destination".
type Map map[string][]Provenance

// Key builds the Map key for an image destination field.
func Key(imageID, destination string) string {
	return imageID + ":" + destination
}

// SplitKey reverses Key. Image IDs may not contain ':'.
func SplitKey(key string) (imageID, destination string) {
	imageID, destination, _ = strings.Cut(key, ":")
	return imageID, destination
}

// Tracker records provenance during a merge.
type Tracker interface {
	// Record replaces the provenance of an image destination field.
	Record(imageID, destination string, entries []Provenance)

	// Map returns a copy of everything recorded.
	Map() Map
}

type tracker struct {
	mu         sync.RWMutex
	provenance Map
	enabled    bool
}

// NewTracker creates a new provenance tracker. A disabled tracker records nothing.
func NewTracker(enabled bool) Tracker {
	return &tracker{
		provenance: make(Map),
		enabled:    enabled,
	}
}

func (p *tracker) Record(imageID, destination string, entries []Provenance) {
	if !p.enabled {
		return
	}
	now := utc.Now()
	stored := slices.Clone(entries)
	for i := range stored {
		if stored[i].Timestamp.IsZero() {
			stored[i].Timestamp = now
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.provenance[Key(imageID, destination)] = stored
}

func (p *tracker) Map() Map {
	if !p.enabled {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.provenance.Clone()
}

// Clone deep-copies the map.
func (m Map) Clone() Map {
	if m == nil {
		return nil
	}
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = slices.Clone(v)
	}
	return out
}

// ForImage returns the provenance of every destination field of an image.
func (m Map) ForImage(imageID string) map[string][]Provenance {
	result := make(map[string][]Provenance)
	prefix := imageID + ":"
	for key, entries := range m {
		if dest, found := strings.CutPrefix(key, prefix); found {
			result[dest] = slices.Clone(entries)
		}
	}
	return result
}

// Merge copies other into m, replacing entries with the same key.
func (m Map) Merge(other Map) {
	for k, v := range other {
		m[k] = slices.Clone(v)
	}
}

// String renders a human-readable provenance report.
func (m Map) String() string {
	var sb strings.Builder
	sb.WriteString("Provenance Report\n")
	sb.WriteString("=================\n\n")

	byImage := make(map[string][]string)
	for key := range m {
		imageID, dest := SplitKey(key)
		byImage[imageID] = append(byImage[imageID], dest)
	}
	imageIDs := make([]string, 0, len(byImage))
	for id := range byImage {
		imageIDs = append(imageIDs, id)
	}
	sort.Strings(imageIDs)

	for _, imageID := range imageIDs {
		sb.WriteString(fmt.Sprintf("image: %s\n", imageID))
		sb.WriteString(strings.Repeat("-", 40))
		sb.WriteString("\n")

		dests := byImage[imageID]
		sort.Strings(dests)
		for _, dest := range dests {
			sb.WriteString(fmt.Sprintf("  %s:\n", dest))
			for _, entry := range m[Key(imageID, dest)] {
				sb.WriteString(fmt.Sprintf("    - %s from %s.%s [%s] (cluster %s)\n",
					entry.Value, entry.SourceImage, entry.SourceField, entry.Label, entry.ClusterID))
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// File represents a provenance file stored on disk.
type File struct {
	RunID      string   `yaml:"run_id"`
	MergedAt   utc.Time `yaml:"merged_at"`
	Provenance Map      `yaml:"provenance"`
}

// Save writes a provenance file as YAML.
func Save(path string, f *File) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return errors.WrapParse("yaml", path, err)
	}
	if err := os.WriteFile(path, data, constants.FilePermissions); err != nil {
		return errors.WrapIO("write", path, err)
	}
	return nil
}

// Load reads a provenance file.
// Returns nil, nil if the file doesn't exist.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path derives from the project location
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.WrapParse("yaml", path, err)
	}
	return &f, nil
}
