package main

import (
	"fmt"

	"github.com/arvinmi/sif/internal/cli"
	"github.com/arvinmi/sif/internal/utils"
)

// main is the entry point for the sif command.
func main() {
	loggerInstance, loggerInitializationError := utils.NewApplicationLogger()
	if loggerInitializationError != nil {
		panic(fmt.Errorf("failed to initialize logger: %w", loggerInitializationError))
	}
	defer loggerInstance.Sync()
	if applicationExecutionError := cli.Execute(loggerInstance); applicationExecutionError != nil {
		loggerInstance.Fatal("application failed: " + applicationExecutionError.Error())
	}
}
