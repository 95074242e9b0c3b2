package etl

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// ── Source ──────────────────────────────────────────────────
// A Source reads one raw dataset file into a RawTable.
// Implementations live in etl/sources/, one file per source type.

// DefaultSourceType is used when a manifest entry leaves source_type empty.
const DefaultSourceType = "csv_file"

// SourceSpec describes a source type.
type SourceSpec struct {
	Type       string   `json:"type"`
	Label      string   `json:"label"`
	Extensions []string `json:"extensions"`
}

// Source is the interface every raw dataset reader must implement.
type Source interface {
	// Spec returns metadata about this source type.
	Spec() SourceSpec

	// Read loads the whole file at path. Cells are returned as strings.
	Read(ctx context.Context, path string) (*RawTable, error)
}

// ── Source Registry ────────────────────────────────────────
// Compile-time registration via init() in each source file.

var (
	registryMu sync.RWMutex
	registry   = map[string]Source{}
)

// RegisterSource registers a source by its spec type.
func RegisterSource(s Source) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[s.Spec().Type] = s
}

// GetSource returns a registered source by type. An empty type selects
// DefaultSourceType.
func GetSource(typ string) (Source, error) {
	if typ == "" {
		typ = DefaultSourceType
	}
	registryMu.RLock()
	defer registryMu.RUnlock()
	s, ok := registry[typ]
	if !ok {
		return nil, fmt.Errorf("unknown source type: %q", typ)
	}
	return s, nil
}

// ListSources returns the specs of all registered sources, sorted by type.
func ListSources() []SourceSpec {
	registryMu.RLock()
	defer registryMu.RUnlock()
	specs := make([]SourceSpec, 0, len(registry))
	for _, s := range registry {
		specs = append(specs, s.Spec())
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Type < specs[j].Type })
	return specs
}
