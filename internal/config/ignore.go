package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/arvinmi/sif/internal/tree"
	"github.com/arvinmi/sif/internal/utils"
)

// maximumFileSizeBytes caps the files admitted into the tree. Anything
// larger is almost certainly binary or generated data that would dominate
// token counting.
const maximumFileSizeBytes = 100_000_000

// skippedDirectoryNames lists build and dependency directories that contain
// thousands of generated files nobody selects by hand. Comparison is
// case-insensitive.
var skippedDirectoryNames = []string{
	"target",
	"node_modules",
	"build",
	"dist",
	".next",
	".nuxt",
	"__pycache__",
	".pytest_cache",
	".mypy_cache",
	".tox",
	"venv",
	".venv",
	"env",
	".env",
	"coverage",
	".coverage",
	"tmp",
	"temp",
	".tmp",
	"logs",
	".DS_Store",
	"Thumbs.db",
}

// LoadGitignorePatterns reads the root .gitignore and returns its patterns.
// A missing file yields no patterns and no error.
func LoadGitignorePatterns(rootDirectoryPath string) ([]string, error) {
	gitIgnoreFilePath := filepath.Join(rootDirectoryPath, utils.GitIgnoreFileName)
	fileHandle, openFileError := os.Open(gitIgnoreFilePath)
	if openFileError != nil {
		if os.IsNotExist(openFileError) {
			return nil, nil
		}
		return nil, openFileError
	}
	defer func() {
		closeError := fileHandle.Close()
		if closeError != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close %s: %v\n", gitIgnoreFilePath, closeError)
		}
	}()

	var ignorePatterns []string
	scanner := bufio.NewScanner(fileHandle)
	for scanner.Scan() {
		trimmedLine := strings.TrimSpace(scanner.Text())
		if trimmedLine == "" || strings.HasPrefix(trimmedLine, "#") {
			continue
		}
		// Negation patterns are not supported; an unignored file inside an
		// ignored directory stays hidden.
		if strings.HasPrefix(trimmedLine, "!") {
			continue
		}
		ignorePatterns = append(ignorePatterns, trimmedLine)
	}
	if scanError := scanner.Err(); scanError != nil {
		return nil, scanError
	}
	return utils.DeduplicatePatterns(ignorePatterns), nil
}

// NewIgnorePredicate builds the predicate applied while scanning the root.
// It hides the Git metadata, heavyweight generated directories, oversized
// files, and anything the root .gitignore names.
func NewIgnorePredicate(rootDirectoryPath string, gitIgnorePatterns []string) tree.IgnorePredicate {
	return func(candidatePath string, isDirectory bool) bool {
		baseName := filepath.Base(candidatePath)
		if baseName == utils.GitDirectoryName || baseName == utils.GitIgnoreFileName {
			return true
		}
		for _, skippedName := range skippedDirectoryNames {
			if strings.EqualFold(baseName, skippedName) {
				return true
			}
		}
		if !isDirectory {
			if fileInfo, statError := os.Stat(candidatePath); statError == nil && fileInfo.Size() > maximumFileSizeBytes {
				return true
			}
		}
		if len(gitIgnorePatterns) == 0 {
			return false
		}
		relativePath := utils.RelativePathOrSelf(candidatePath, rootDirectoryPath)
		return utils.MatchesIgnorePattern(relativePath, gitIgnorePatterns)
	}
}
