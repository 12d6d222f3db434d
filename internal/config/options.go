// Package config persists user preferences between sessions and builds the
// ignore predicate applied while scanning a repository.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	configDirectoryName = "sif"
	configFileName      = "config.yaml"

	defaultBackendName = "repomix"
	defaultStyleName   = "xml"
)

// Options holds the preferences that survive between sessions. Every field
// except the backend applies to repomix only.
type Options struct {
	DefaultBackend string `mapstructure:"default_backend"`
	Compress       bool   `mapstructure:"compress"`
	RemoveComments bool   `mapstructure:"remove_comments"`
	OutputFormat   string `mapstructure:"output_format"`
	IncludeTree    bool   `mapstructure:"include_tree"`
}

// DefaultOptions returns the first-run preferences.
func DefaultOptions() Options {
	return Options{
		DefaultBackend: defaultBackendName,
		OutputFormat:   defaultStyleName,
		IncludeTree:    true,
	}
}

// configFilePath resolves the preference file location under the user
// configuration directory.
func configFilePath() (string, error) {
	userConfigDirectory, resolveError := os.UserConfigDir()
	if resolveError != nil {
		return "", fmt.Errorf("resolving user configuration directory: %w", resolveError)
	}
	return filepath.Join(userConfigDirectory, configDirectoryName, configFileName), nil
}

// LoadOptions reads persisted preferences, falling back to defaults when no
// preference file exists yet. A corrupted file is an error rather than a
// silent reset so the user does not lose settings unknowingly.
func LoadOptions() (Options, error) {
	preferencePath, pathError := configFilePath()
	if pathError != nil {
		return DefaultOptions(), pathError
	}
	return loadOptionsFromPath(preferencePath)
}

func loadOptionsFromPath(preferencePath string) (Options, error) {
	if _, statError := os.Stat(preferencePath); statError != nil {
		if os.IsNotExist(statError) {
			return DefaultOptions(), nil
		}
		return DefaultOptions(), fmt.Errorf("stat preferences %s: %w", preferencePath, statError)
	}

	reader := viper.New()
	reader.SetConfigFile(preferencePath)
	if readError := reader.ReadInConfig(); readError != nil {
		return DefaultOptions(), fmt.Errorf("read preferences from %s: %w", preferencePath, readError)
	}
	options := DefaultOptions()
	if decodeError := reader.Unmarshal(&options); decodeError != nil {
		return DefaultOptions(), fmt.Errorf("decode preferences from %s: %w", preferencePath, decodeError)
	}
	return options, nil
}

// SaveOptions writes the preferences, creating the configuration directory
// on first save.
func SaveOptions(options Options) error {
	preferencePath, pathError := configFilePath()
	if pathError != nil {
		return pathError
	}
	return saveOptionsToPath(preferencePath, options)
}

func saveOptionsToPath(preferencePath string, options Options) error {
	if mkdirError := os.MkdirAll(filepath.Dir(preferencePath), 0o755); mkdirError != nil {
		return fmt.Errorf("create configuration directory: %w", mkdirError)
	}
	writer := viper.New()
	writer.Set("default_backend", options.DefaultBackend)
	writer.Set("compress", options.Compress)
	writer.Set("remove_comments", options.RemoveComments)
	writer.Set("output_format", options.OutputFormat)
	writer.Set("include_tree", options.IncludeTree)
	if writeError := writer.WriteConfigAs(preferencePath); writeError != nil {
		return fmt.Errorf("write preferences to %s: %w", preferencePath, writeError)
	}
	return nil
}
