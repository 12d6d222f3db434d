// Package cli provides the command line interface.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arvinmi/sif/internal/backend"
	"github.com/arvinmi/sif/internal/config"
	"github.com/arvinmi/sif/internal/ledger"
	"github.com/arvinmi/sif/internal/services/clipboard"
	"github.com/arvinmi/sif/internal/tokenizer"
	"github.com/arvinmi/sif/internal/tree"
	"github.com/arvinmi/sif/internal/tui"
	"github.com/arvinmi/sif/internal/utils"
)

const (
	rootUse              = "sif [path]"
	rootShortDescription = "interactively select files and serialize them for language models"
	rootLongDescription  = `sif shows an interactive tree of a repository, lets you select the exact
files to share, counts tokens as you go, and hands the selection to repomix
or yek. The serialized output is copied to the clipboard.`

	backendFlagName        = "backend"
	backendFlagDescription = "serialization backend to start with (repomix or yek)"
	modelFlagName          = "model"
	modelFlagDescription   = "tokenizer model used for token counting"
	versionFlagName        = "version"
	versionFlagDescription = "display application version"
	versionTemplate        = "sif version: %s\n"

	defaultPath               = "."
	defaultTokenizerModelName = "gpt-4o"

	resolvePathErrorFormat   = "resolving path %s: %w"
	loadPreferencesFormat    = "loading preferences: %w"
	scanRepositoryFormat     = "scanning %s: %w"
	tokenizerFallbackMessage = "tokenizer model unavailable, using fallback encoding"
)

// Execute runs the sif application.
func Execute(loggerInstance *zap.Logger) error {
	rootCommand := createRootCommand(loggerInstance)
	return rootCommand.Execute()
}

// createRootCommand builds the root Cobra command.
func createRootCommand(loggerInstance *zap.Logger) *cobra.Command {
	var showVersion bool
	var backendName string
	var modelName string

	rootCommand := &cobra.Command{
		Use:          rootUse,
		Short:        rootShortDescription,
		Long:         rootLongDescription,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		PersistentPreRun: func(command *cobra.Command, arguments []string) {
			if showVersion {
				fmt.Printf(versionTemplate, utils.GetApplicationVersion())
				os.Exit(0)
			}
		},
		RunE: func(command *cobra.Command, arguments []string) error {
			targetPath := defaultPath
			if len(arguments) == 1 {
				targetPath = arguments[0]
			}
			return runInterface(command.Context(), loggerInstance, targetPath, backendName, modelName)
		},
	}
	rootCommand.PersistentFlags().BoolVar(&showVersion, versionFlagName, false, versionFlagDescription)
	rootCommand.Flags().StringVar(&backendName, backendFlagName, "", backendFlagDescription)
	rootCommand.Flags().StringVar(&modelName, modelFlagName, defaultTokenizerModelName, modelFlagDescription)
	rootCommand.InitDefaultHelpCmd()
	rootCommand.InitDefaultCompletionCmd()
	return rootCommand
}

// runInterface assembles every collaborator and hands control to the
// terminal interface until the user quits.
func runInterface(parentContext context.Context, loggerInstance *zap.Logger, targetPath, backendName, modelName string) error {
	if parentContext == nil {
		parentContext = context.Background()
	}
	absolutePath, absolutePathError := filepath.Abs(targetPath)
	if absolutePathError != nil {
		return fmt.Errorf(resolvePathErrorFormat, targetPath, absolutePathError)
	}

	options, loadOptionsError := config.LoadOptions()
	if loadOptionsError != nil {
		return fmt.Errorf(loadPreferencesFormat, loadOptionsError)
	}
	if backendName != "" {
		if _, parseError := backend.ParseBackend(backendName); parseError != nil {
			return parseError
		}
		options.DefaultBackend = backendName
	}

	gitIgnorePatterns, gitIgnoreError := config.LoadGitignorePatterns(absolutePath)
	if gitIgnoreError != nil {
		loggerInstance.Warn("reading .gitignore failed", zap.Error(gitIgnoreError))
	}
	ignorePredicate := config.NewIgnorePredicate(absolutePath, gitIgnorePatterns)

	selectionTree, buildError := tree.Build(absolutePath, ignorePredicate)
	if buildError != nil {
		return fmt.Errorf(scanRepositoryFormat, absolutePath, buildError)
	}

	counter, effectiveModelName, counterError := tokenizer.NewCounter(modelName)
	if counterError != nil {
		return counterError
	}
	if effectiveModelName != modelName {
		loggerInstance.Info(tokenizerFallbackMessage,
			zap.String("model", modelName),
			zap.String("encoding", effectiveModelName))
	}

	runContext, cancelRun := context.WithCancel(parentContext)
	defer cancelRun()

	tokenLedger := ledger.New(counter, 0)
	tokenLedger.Start(runContext)

	toolchain, toolchainError := backend.NewToolchain()
	if toolchainError != nil {
		return toolchainError
	}
	dispatcher := backend.NewDispatcher(toolchain, 0)

	application, applicationError := tui.New(selectionTree, tokenLedger, dispatcher, clipboard.NewService(), options, loggerInstance)
	if applicationError != nil {
		return applicationError
	}
	return application.Run(runContext)
}
