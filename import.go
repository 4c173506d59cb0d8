package dbmerger

import (
	"context"

	"github.com/agentstation/dbmerger/pkg/errors"
	"github.com/agentstation/dbmerger/pkg/logging"
	"github.com/agentstation/dbmerger/pkg/metadata"
)

// ImportResult describes an import.
type ImportResult struct {
	// Imported is the number of images stored.
	Imported int

	// Labeled lists the images that received Label because they had no provenance.
	Labeled []string

	// Label is the provenance label given to Labeled images.
	Label string
}

// Import adds images to the project, ensuring each carries a provenance label.
func (c *client) Import(ctx context.Context, images metadata.Images, label string) (*ImportResult, error) {
	ctx = logging.WithOperation(ctx, "import")
	logger := logging.FromContext(ctx)

	c.mu.RLock()
	sourceField := c.config.sourceField
	if label == "" {
		label = c.config.missingLabel
	}
	c.mu.RUnlock()

	seen := make(map[string]bool, len(images))
	for i, img := range images {
		if img.ID == "" {
			return nil, errors.NewValidationError("images", i, "image without id")
		}
		if seen[img.ID] {
			return nil, errors.NewAlreadyExistsError("image", img.ID)
		}
		seen[img.ID] = true
	}

	incoming := images.Clone()
	labeled := incoming.EnsureField(sourceField, label)

	if err := c.store.PutImages(ctx, incoming); err != nil {
		return nil, errors.WrapResource("import", "images", "", err)
	}

	result := &ImportResult{Imported: len(incoming), Labeled: labeled, Label: label}
	logger.Info().
		Int("imported", result.Imported).
		Int("labeled", len(labeled)).
		Str("label", label).
		Msg("Images imported")

	c.hooks.triggerImported(result)
	return result, nil
}
