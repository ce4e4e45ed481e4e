// Package render drives the external document-to-PDF engine. The core
// treats the engine as an opaque collaborator: filled document in, PDF out,
// deterministic for identical input bytes, failures reported as strings.
package render

import (
	"context"
	"sync"
)

// Renderer converts a filled document into a PDF inside outDir and returns
// the produced PDF path.
type Renderer interface {
	Name() string
	Render(ctx context.Context, inputPath, outDir string) (string, error)
	// Reentrant reports whether concurrent Render calls are safe. Office
	// automation engines are single-instance and must be serialized.
	Reentrant() bool
}

type serialized struct {
	mu    sync.Mutex
	inner Renderer
}

// Serialized gates a non-reentrant renderer behind a single-flight mutex so
// worker pools can share it: at most one invocation in flight at a time.
// Reentrant renderers are returned unchanged.
func Serialized(r Renderer) Renderer {
	if r.Reentrant() {
		return r
	}
	return &serialized{inner: r}
}

func (s *serialized) Name() string { return s.inner.Name() }

func (s *serialized) Reentrant() bool { return true }

func (s *serialized) Render(ctx context.Context, inputPath, outDir string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Render(ctx, inputPath, outDir)
}
