package pipeline

import (
	"context"
	"fmt"
)

// SourceResolver is the external source-registry boundary: it resolves a
// source id to the display name used verbatim on ingested items. The
// pipeline never substitutes a placeholder when a name is registered;
// only an unregistered id falls back to the raw source id.
type SourceResolver interface {
	Resolve(ctx context.Context, sourceID string) (string, error)
}

// StaticSourceResolver resolves source names from a fixed map, the
// in-process stand-in for the external source registry module.
type StaticSourceResolver map[string]string

// Resolve returns the registered display name or an error for unknown ids.
func (s StaticSourceResolver) Resolve(_ context.Context, sourceID string) (string, error) {
	name, ok := s[sourceID]
	if !ok {
		return "", fmt.Errorf("source %q not registered", sourceID)
	}
	return name, nil
}
