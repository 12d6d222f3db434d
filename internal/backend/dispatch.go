package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/arvinmi/sif/internal/resolver"
)

const (
	// defaultDispatchTimeout bounds one backend run. Serializing a large
	// repository is slow, so the ceiling is generous.
	defaultDispatchTimeout = 5 * time.Minute

	repomixOutputFileFormat = "sif-repomix-%d.md"
)

// Dispatcher runs serialization backends against a resolved selection.
type Dispatcher struct {
	locator Locator
	timeout time.Duration
}

// NewDispatcher builds a dispatcher using the given locator. A zero timeout
// selects the default ceiling.
func NewDispatcher(locator Locator, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	return &Dispatcher{locator: locator, timeout: timeout}
}

// Dispatch runs the chosen backend over the selection and returns its raw
// output. The selection is passed as a literal file list, never as patterns.
// Failures are classified as a DispatchError and leave no state behind; the
// caller may simply retry.
func (d *Dispatcher) Dispatch(ctx context.Context, chosen Backend, selection resolver.SelectionSet, options Options) (*Output, error) {
	if selection.Empty() {
		return nil, ErrEmptySelection
	}
	if sanitizeError := sanitizeSelectionPaths(chosen, selection.Include); sanitizeError != nil {
		return nil, sanitizeError
	}

	runContext, cancelRun := context.WithTimeout(ctx, d.timeout)
	defer cancelRun()

	invocation, locateError := d.locator.Locate(runContext, chosen)
	if locateError != nil {
		var dispatchError *DispatchError
		if errors.As(locateError, &dispatchError) {
			return nil, dispatchError
		}
		return nil, notFound(chosen, locateError)
	}

	var content string
	var runError error
	switch chosen {
	case Yek:
		content, runError = d.runYek(runContext, invocation, selection)
	default:
		content, runError = d.runRepomix(runContext, invocation, selection, options)
	}
	if runError != nil {
		return nil, runError
	}

	if options.IncludeTree && chosen == Repomix {
		content = prependDirectoryTree(content, options)
	}
	return &Output{
		Content: content,
		Bytes:   len(content),
		Lines:   strings.Count(content, "\n"),
		Files:   len(selection.Include),
	}, nil
}

// runRepomix invokes repomix in the selection root with an explicit include
// list, directing output to a temporary file that is read back and removed.
func (d *Dispatcher) runRepomix(ctx context.Context, invocation Invocation, selection resolver.SelectionSet, options Options) (string, error) {
	outputPath := filepath.Join(selection.Root, fmt.Sprintf(repomixOutputFileFormat, os.Getpid()))
	defer os.Remove(outputPath)

	arguments := append([]string{}, invocation.Args...)
	arguments = append(arguments,
		"--no-gitignore",
		"--no-default-patterns",
		"--no-directory-structure",
		"--output", outputPath,
	)
	if options.Compress {
		arguments = append(arguments, "--compress")
	}
	if options.RemoveComments {
		arguments = append(arguments, "--remove-comments")
	}
	arguments = append(arguments, options.Style.repomixFlag())
	arguments = append(arguments, "--include", strings.Join(selection.Include, ","))
	arguments = append(arguments, ".")

	command := exec.CommandContext(ctx, invocation.Program, arguments...)
	command.Dir = selection.Root
	var stderrBuffer bytes.Buffer
	command.Stderr = &stderrBuffer
	if _, runError := d.classifyRun(ctx, Repomix, command, &stderrBuffer); runError != nil {
		return "", runError
	}

	outputContent, readError := os.ReadFile(outputPath)
	if readError != nil {
		return "", &DispatchError{
			Kind:    ErrorExecutionFailed,
			Backend: Repomix,
			Stderr:  stderrBuffer.String(),
			Err:     fmt.Errorf("repomix produced no output file: %w", readError),
		}
	}
	return string(outputContent), nil
}

// runYek invokes yek with the selected file paths as arguments and captures
// stdout. Yek takes no flags by design.
func (d *Dispatcher) runYek(ctx context.Context, invocation Invocation, selection resolver.SelectionSet) (string, error) {
	arguments := append([]string{}, invocation.Args...)
	arguments = append(arguments, selection.Include...)

	command := exec.CommandContext(ctx, invocation.Program, arguments...)
	command.Dir = selection.Root
	var stderrBuffer bytes.Buffer
	command.Stderr = &stderrBuffer
	var stdoutBuffer bytes.Buffer
	command.Stdout = &stdoutBuffer
	if _, runError := d.classifyRun(ctx, Yek, command, &stderrBuffer); runError != nil {
		return "", runError
	}
	return stdoutBuffer.String(), nil
}

// classifyRun executes a prepared command and folds its outcome into the
// dispatch error taxonomy.
func (d *Dispatcher) classifyRun(ctx context.Context, chosen Backend, command *exec.Cmd, stderrBuffer *bytes.Buffer) (int, error) {
	runError := command.Run()
	if runError == nil {
		return 0, nil
	}
	if ctx.Err() == context.DeadlineExceeded {
		return 0, &DispatchError{Kind: ErrorTimedOut, Backend: chosen, Err: ctx.Err()}
	}
	var exitError *exec.ExitError
	if errors.As(runError, &exitError) {
		return exitError.ExitCode(), &DispatchError{
			Kind:     ErrorExecutionFailed,
			Backend:  chosen,
			ExitCode: exitError.ExitCode(),
			Stderr:   stderrBuffer.String(),
			Err:      runError,
		}
	}
	return 0, notFound(chosen, runError)
}

// sanitizeSelectionPaths rejects any resolved path that could be read as an
// option or escape the selection root when handed to an external process.
// The resolver produces clean relative paths by construction, so a failure
// here indicates filesystem trickery and aborts the run.
func sanitizeSelectionPaths(chosen Backend, includePaths []string) error {
	for _, includePath := range includePaths {
		if includePath == "" {
			return fmt.Errorf("refusing to dispatch empty path")
		}
		if strings.HasPrefix(includePath, "-") {
			return fmt.Errorf("refusing to dispatch option-like path %q", includePath)
		}
		if filepath.IsAbs(includePath) {
			return fmt.Errorf("refusing to dispatch absolute path %q", includePath)
		}
		for _, segment := range strings.Split(filepath.ToSlash(includePath), "/") {
			if segment == ".." {
				return fmt.Errorf("refusing to dispatch path escaping the root: %q", includePath)
			}
		}
		if chosen == Repomix && strings.Contains(includePath, ",") {
			return fmt.Errorf("refusing to dispatch path with comma for repomix: %q", includePath)
		}
	}
	return nil
}

// prependDirectoryTree places the rendered directory structure ahead of the
// serialized content, framed to match the output style.
func prependDirectoryTree(content string, options Options) string {
	directoryTree := strings.TrimRight(options.DirectoryTree, "\n")
	if directoryTree == "" {
		return content
	}
	var builder strings.Builder
	switch options.Style {
	case StyleXML:
		builder.WriteString("<directory_structure>\n")
		builder.WriteString(directoryTree)
		builder.WriteString("\n</directory_structure>\n\n")
	case StyleMarkdown:
		builder.WriteString("# Directory Structure\n\n```\n")
		builder.WriteString(directoryTree)
		builder.WriteString("\n```\n\n")
	default:
		builder.WriteString("Directory Structure:\n")
		builder.WriteString(directoryTree)
		builder.WriteString("\n\n")
	}
	builder.WriteString(content)
	return builder.String()
}
