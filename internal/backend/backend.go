// Package backend invokes the external serialization tools with the exact
// file list produced by the resolver.
package backend

import (
	"fmt"
	"strings"
)

// Backend identifies one of the two supported serialization tools. The set
// is closed by design; there is no plugin mechanism.
type Backend int

const (
	// Repomix serializes via the repomix npm package running on node.
	Repomix Backend = iota
	// Yek serializes via the yek binary and accepts no options.
	Yek
)

// String returns the backend's display name.
func (b Backend) String() string {
	switch b {
	case Repomix:
		return "repomix"
	case Yek:
		return "yek"
	default:
		return "unknown"
	}
}

// ParseBackend resolves a backend name given on the command line.
func ParseBackend(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "repomix":
		return Repomix, nil
	case "yek":
		return Yek, nil
	default:
		return Repomix, fmt.Errorf("unknown backend %q (expected repomix or yek)", name)
	}
}

// Style selects the repomix output format. Yek has no equivalent.
type Style string

const (
	// StylePlain is repomix's plain text output.
	StylePlain Style = "plain"
	// StyleMarkdown is repomix's markdown output.
	StyleMarkdown Style = "markdown"
	// StyleXML is repomix's XML output.
	StyleXML Style = "xml"
)

// ParseStyle resolves a configured style name, defaulting to XML.
func ParseStyle(name string) Style {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case string(StylePlain):
		return StylePlain
	case string(StyleMarkdown):
		return StyleMarkdown
	default:
		return StyleXML
	}
}

// Next cycles through the styles in a fixed order for the interface's
// format toggle.
func (s Style) Next() Style {
	switch s {
	case StylePlain:
		return StyleMarkdown
	case StyleMarkdown:
		return StyleXML
	default:
		return StylePlain
	}
}

func (s Style) repomixFlag() string {
	return "--style=" + string(s)
}

// Options configures a dispatch. Every field applies to Repomix only; Yek
// takes no configuration by design.
type Options struct {
	Style          Style
	RemoveComments bool
	Compress       bool

	// IncludeTree prepends DirectoryTree, rendered by the caller from the
	// full scanned structure, to the serialized output.
	IncludeTree   bool
	DirectoryTree string
}

// Output is the raw result of a successful dispatch plus the counts shown
// to the user. The content is not interpreted further.
type Output struct {
	Content string
	Bytes   int
	Lines   int
	Files   int
}
