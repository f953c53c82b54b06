package embedding

import (
	"context"
	"sync"
)

// Lazy defers construction of an Embedder until first use. The underlying
// model can take hundreds of milliseconds to load, so construction happens
// exactly once behind a sync.Once: concurrent first callers serialize on the
// same initialization, and later callers reuse the cached instance or the
// cached error. All methods are safe for concurrent use, including
// Dimension and Model during a first Embed.
type Lazy struct {
	once   sync.Once
	initFn func(ctx context.Context) (Embedder, error)

	mu       sync.RWMutex
	embedder Embedder
	err      error
}

// NewLazy wraps an embedder constructor for first-use initialization.
func NewLazy(initFn func(ctx context.Context) (Embedder, error)) *Lazy {
	return &Lazy{initFn: initFn}
}

func (l *Lazy) init(ctx context.Context) (Embedder, error) {
	l.once.Do(func() {
		embedder, err := l.initFn(ctx)
		l.mu.Lock()
		l.embedder, l.err = embedder, err
		l.mu.Unlock()
	})
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.embedder, l.err
}

// loaded returns the underlying embedder, nil before initialization.
func (l *Lazy) loaded() Embedder {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.embedder
}

// Embed initializes the underlying embedder on first call, then delegates.
func (l *Lazy) Embed(ctx context.Context, text string) ([]float64, error) {
	embedder, err := l.init(ctx)
	if err != nil {
		return nil, err
	}
	return embedder.Embed(ctx, text)
}

// Dimension returns the underlying dimensionality, 0 before initialization.
func (l *Lazy) Dimension() int {
	if embedder := l.loaded(); embedder != nil {
		return embedder.Dimension()
	}
	return 0
}

// Model returns the underlying model name, or "uninitialized" before first use.
func (l *Lazy) Model() string {
	if embedder := l.loaded(); embedder != nil {
		return embedder.Model()
	}
	return "uninitialized"
}

var _ Embedder = (*Lazy)(nil)
