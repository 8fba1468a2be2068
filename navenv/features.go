package navenv

import (
	"fmt"
	"sync"
)

// FeatureStore returns the per-view visual features of a viewpoint: one
// vector per discretized view index.
type FeatureStore interface {
	Feature(scan, viewpoint string) ([][]float32, error)
}

// MemoryFeatureStore is a FeatureStore backed by a map. It is safe for
// concurrent use.
type MemoryFeatureStore struct {
	mu       sync.RWMutex
	features map[string][][]float32
}

// NewMemoryFeatureStore returns an empty store.
func NewMemoryFeatureStore() *MemoryFeatureStore {
	return &MemoryFeatureStore{features: make(map[string][][]float32)}
}

// Put stores the feature array of viewpoint in scan.
func (m *MemoryFeatureStore) Put(scan, viewpoint string, feature [][]float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.features[scan+"_"+viewpoint] = feature
}

// Feature returns the stored array. The slice is shared with the store.
func (m *MemoryFeatureStore) Feature(scan, viewpoint string) ([][]float32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.features[scan+"_"+viewpoint]
	if !ok {
		return nil, fmt.Errorf("%w: %s in scan %s", ErrUnknownFeature, viewpoint, scan)
	}
	return f, nil
}

// ZeroFeatureStore returns all-zero features of a fixed shape for every
// viewpoint. It stands in for precomputed features in graph-only runs.
type ZeroFeatureStore struct {
	Views int
	Dim   int
}

func (z ZeroFeatureStore) Feature(scan, viewpoint string) ([][]float32, error) {
	views := z.Views
	if views <= 0 {
		views = ViewCount
	}
	buf := make([]float32, views*z.Dim)
	out := make([][]float32, views)
	for i := range out {
		out[i] = buf[i*z.Dim : (i+1)*z.Dim : (i+1)*z.Dim]
	}
	return out, nil
}
