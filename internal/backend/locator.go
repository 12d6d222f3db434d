package backend

import (
	"context"
	"fmt"
	"os/exec"
)

// Invocation is a runnable backend entry point: the program to execute and
// any leading arguments before the backend-specific ones.
type Invocation struct {
	Program string
	Args    []string
}

// Locator provides a runnable entry point for a backend. Installation and
// caching are the locator's concern; the dispatcher itself never installs
// anything and fails fast when no entry point is available.
type Locator interface {
	Locate(ctx context.Context, b Backend) (Invocation, error)
}

// Toolchain is the standard locator: yek from PATH, repomix from the
// version-pinned install cache.
type Toolchain struct {
	repomix *RepomixCache
}

// NewToolchain builds the standard locator. The repomix cache directory is
// resolved eagerly so a misconfigured environment surfaces immediately.
func NewToolchain() (*Toolchain, error) {
	repomixCache, cacheError := NewRepomixCache()
	if cacheError != nil {
		return nil, cacheError
	}
	return &Toolchain{repomix: repomixCache}, nil
}

// Locate resolves the entry point for b.
func (t *Toolchain) Locate(ctx context.Context, b Backend) (Invocation, error) {
	switch b {
	case Yek:
		yekPath, lookupError := exec.LookPath("yek")
		if lookupError != nil {
			return Invocation{}, notFound(Yek, fmt.Errorf("yek not found on PATH: %w", lookupError))
		}
		return Invocation{Program: yekPath}, nil
	case Repomix:
		return t.repomix.Locate(ctx, Repomix)
	default:
		return Invocation{}, fmt.Errorf("unknown backend %d", b)
	}
}

var _ Locator = (*Toolchain)(nil)
