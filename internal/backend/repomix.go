package backend

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// repomixVersion pins the installed repomix release for reproducible
// behavior regardless of what is on the user's PATH.
const repomixVersion = "0.3.7"

const cachePackageJSONFormat = `{
  "name": "sif-repomix-cache",
  "version": "1.0.0",
  "dependencies": {
    "repomix": "%s"
  }
}
`

// RepomixCache installs and locates a version-pinned repomix inside the
// user cache directory, isolated from any global npm configuration. It
// implements Locator for the Repomix backend.
type RepomixCache struct {
	cacheDirectory string
	entryPath      string
}

// NewRepomixCache resolves the cache layout under the user cache directory:
// <cache>/sif/repomix/<version>/node_modules/repomix/bin/repomix.cjs.
func NewRepomixCache() (*RepomixCache, error) {
	userCacheDirectory, cacheError := os.UserCacheDir()
	if cacheError != nil {
		return nil, fmt.Errorf("resolving user cache directory: %w", cacheError)
	}
	cacheDirectory := filepath.Join(userCacheDirectory, "sif", "repomix", repomixVersion)
	return &RepomixCache{
		cacheDirectory: cacheDirectory,
		entryPath:      filepath.Join(cacheDirectory, "node_modules", "repomix", "bin", "repomix.cjs"),
	}, nil
}

// Locate returns a node invocation of the cached repomix entry point,
// installing the pinned version on first use. Every failure surfaces as a
// missing backend; the dispatcher never retries installation itself.
func (c *RepomixCache) Locate(ctx context.Context, b Backend) (Invocation, error) {
	nodePath, nodeLookupError := exec.LookPath("node")
	if nodeLookupError != nil {
		return Invocation{}, notFound(Repomix, fmt.Errorf("node not found on PATH: %w", nodeLookupError))
	}
	if _, statError := os.Stat(c.entryPath); statError != nil {
		if installError := c.install(ctx); installError != nil {
			return Invocation{}, notFound(Repomix, installError)
		}
	}
	return Invocation{Program: nodePath, Args: []string{c.entryPath}}, nil
}

func (c *RepomixCache) install(ctx context.Context) error {
	npmPath, npmLookupError := exec.LookPath("npm")
	if npmLookupError != nil {
		return fmt.Errorf("npm not found on PATH: %w", npmLookupError)
	}
	if mkdirError := os.MkdirAll(c.cacheDirectory, 0o755); mkdirError != nil {
		return fmt.Errorf("creating repomix cache directory: %w", mkdirError)
	}
	packagePath := filepath.Join(c.cacheDirectory, "package.json")
	packageContent := fmt.Sprintf(cachePackageJSONFormat, repomixVersion)
	if writeError := os.WriteFile(packagePath, []byte(packageContent), 0o644); writeError != nil {
		return fmt.Errorf("writing repomix cache package.json: %w", writeError)
	}

	installCommand := exec.CommandContext(ctx, npmPath, "install", "--no-audit", "--no-fund", "--silent")
	installCommand.Dir = c.cacheDirectory
	installOutput, installError := installCommand.CombinedOutput()
	if installError != nil {
		_ = os.RemoveAll(c.cacheDirectory)
		return fmt.Errorf("npm install failed: %v: %s", installError, installOutput)
	}

	if _, statError := os.Stat(c.entryPath); statError != nil {
		if alternative, found := c.findAlternativeEntry(); found {
			c.entryPath = alternative
			return nil
		}
		_ = os.RemoveAll(c.cacheDirectory)
		return fmt.Errorf("repomix install produced no runnable entry point under %s", c.cacheDirectory)
	}
	return nil
}

// findAlternativeEntry probes entry point layouts used by other repomix
// releases.
func (c *RepomixCache) findAlternativeEntry() (string, bool) {
	packageDirectory := filepath.Join(c.cacheDirectory, "node_modules", "repomix")
	candidates := []string{
		filepath.Join(packageDirectory, "bin", "repomix.js"),
		filepath.Join(packageDirectory, "dist", "cli.js"),
		filepath.Join(packageDirectory, "lib", "cli.js"),
		filepath.Join(packageDirectory, "index.js"),
	}
	for _, candidate := range candidates {
		if _, statError := os.Stat(candidate); statError == nil {
			return candidate, true
		}
	}
	return "", false
}

var _ Locator = (*RepomixCache)(nil)
