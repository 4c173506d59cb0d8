package metadata

// Images is an ordered collection of images.
type Images []Image

// Index returns the images keyed by ID. Later duplicates win.
func (imgs Images) Index() map[string]Image {
	idx := make(map[string]Image, len(imgs))
	for _, img := range imgs {
		idx[img.ID] = img
	}
	return idx
}

// IDs returns the image IDs in collection order.
func (imgs Images) IDs() []string {
	ids := make([]string, len(imgs))
	for i, img := range imgs {
		ids[i] = img.ID
	}
	return ids
}

// Clone deep-copies the collection.
func (imgs Images) Clone() Images {
	if imgs == nil {
		return nil
	}
	out := make(Images, len(imgs))
	for i, img := range imgs {
		out[i] = img.Clone()
	}
	return out
}

// EnsureField sets field to value on every image where it is not populated.
// It returns the IDs of the images that were changed.
func (imgs Images) EnsureField(field, value string) []string {
	var changed []string
	for i := range imgs {
		if imgs[i].Has(field) {
			continue
		}
		imgs[i].Set(field, value)
		changed = append(changed, imgs[i].ID)
	}
	return changed
}

// Flagged returns the IDs of the images whose field holds a truthy flag.
func (imgs Images) Flagged(field string) map[string]bool {
	out := make(map[string]bool)
	if field == "" {
		return out
	}
	for _, img := range imgs {
		if img.Flag(field) {
			out[img.ID] = true
		}
	}
	return out
}
