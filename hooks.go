package dbmerger

import (
	"sync"

	"github.com/agentstation/dbmerger/pkg/clusters"
	"github.com/agentstation/dbmerger/pkg/merger"
)

// Hook function types for client events
type (
	// MergedHook is called after a merge has been written back.
	MergedHook func(result *merger.Result)

	// ClusterValidatedHook is called after a validation decision is stored.
	ClusterValidatedHook func(cluster clusters.Cluster)

	// ImportedHook is called after images are imported.
	ImportedHook func(result *ImportResult)
)

// hooks manages event callbacks
type hooks struct {
	mu                 sync.RWMutex
	onMerged           []MergedHook
	onClusterValidated []ClusterValidatedHook
	onImported         []ImportedHook
}

// newHooks creates a new hooks instance
func newHooks() *hooks {
	return &hooks{}
}

// OnMerged registers a callback for completed merges
func (h *hooks) OnMerged(fn MergedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onMerged = append(h.onMerged, fn)
}

// OnClusterValidated registers a callback for validation decisions
func (h *hooks) OnClusterValidated(fn ClusterValidatedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onClusterValidated = append(h.onClusterValidated, fn)
}

// OnImported registers a callback for imports
func (h *hooks) OnImported(fn ImportedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onImported = append(h.onImported, fn)
}

func (h *hooks) triggerMerged(result *merger.Result) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, hook := range h.onMerged {
		hook(result)
	}
}

func (h *hooks) triggerClusterValidated(cluster clusters.Cluster) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, hook := range h.onClusterValidated {
		hook(cluster)
	}
}

func (h *hooks) triggerImported(result *ImportResult) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, hook := range h.onImported {
		hook(result)
	}
}
