// Package diag renders Kestrel's stable E-coded diagnostics: a colored
// header, the primary span underlined with carets, and, where the check
// that raised it needs one, a secondary span pointing at the conflicting
// site. The color scheme (bold red header, red location, blue snippet,
// green carets) mirrors the `colored`-crate output of the original
// compiler's error.rs.
package diag

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"kestrel/pkg/source"
)

// Code is a stable diagnostic identifier, printed as E<NNN>.
type Code int

const (
	// ErrParse is the code for lex/parse failures. The lexer and parser
	// return plain errors (see parser.fmtError) and do not raise it.
	ErrParse Code = 1
	// ErrMovedBinding is raised on a Load of a binding in state Moved.
	ErrMovedBinding Code = 7
	// ErrMultipleReferences is raised when |refs(b)| > 1 for a binding b.
	ErrMultipleReferences Code = 9
	// ErrDerefOfNonReference is raised when * is applied to a non-reference.
	ErrDerefOfNonReference Code = 18
	// ErrValueNotLiveEnough is raised on reference escape / non-escape violations.
	ErrValueNotLiveEnough Code = 23
	// ErrMissingElse is raised when a value-producing if has no else arm.
	ErrMissingElse Code = 24
)

var summaries = map[Code]string{
	ErrParse:               "parse error",
	ErrMovedBinding:        "use of moved value",
	ErrMultipleReferences:  "multiple immutable references",
	ErrDerefOfNonReference: "cannot dereference a non-reference value",
	ErrValueNotLiveEnough:  "value does not live long enough",
	ErrMissingElse:         "conditional expression missing else",
}

// Label pairs a message with the span it points at. A Diagnostic's first
// Label is primary; any further Labels are secondary context (the move
// site, the earlier reference, the enclosing block).
type Label struct {
	Message string
	Span    source.Span
}

// Diagnostic is one compiler failure, ready to Render to a writer.
type Diagnostic struct {
	Code   Code
	Labels []Label
}

func New(code Code, primary string, span source.Span) *Diagnostic {
	return &Diagnostic{Code: code, Labels: []Label{{Message: primary, Span: span}}}
}

// WithSecondary appends a secondary span, e.g. the move site of E007 or
// the first reference of E009.
func (d *Diagnostic) WithSecondary(message string, span source.Span) *Diagnostic {
	d.Labels = append(d.Labels, Label{Message: message, Span: span})
	return d
}

func (d *Diagnostic) Error() string {
	msg := summaries[d.Code]
	if len(d.Labels) > 0 {
		msg = d.Labels[0].Message
	}
	return fmt.Sprintf("error[E%03d]: %s", int(d.Code), msg)
}

// Render writes the colored, multi-span form of the diagnostic to w, in
// label order (primary first): for each label a header line, its
// file:line:col location, the source line, and a caret underline.
func (d *Diagnostic) Render(w io.Writer, file *source.File) {
	var sb strings.Builder
	d.renderFile(&sb, file)
	fmt.Fprint(w, sb.String())
}

func (d *Diagnostic) renderFile(sb *strings.Builder, file *source.File) {
	headerColor := color.New(color.FgRed, color.Bold)
	locColor := color.New(color.FgRed)
	snippetColor := color.New(color.FgBlue)
	caretColor := color.New(color.FgGreen)

	for i, label := range d.Labels {
		header := fmt.Sprintf("error[E%03d]: %s", int(d.Code), label.Message)
		if i > 0 {
			header = label.Message
		}
		sb.WriteString(headerColor.Sprint(header))
		sb.WriteString("\n")

		loc := fmt.Sprintf("%s:%d:%d", file.Name, label.Span.Start.Line, label.Span.Start.Col)
		sb.WriteString(locColor.Sprint(loc))
		sb.WriteString("\n")

		line := label.Span.Start.Line
		snippet := file.Line(line)
		sb.WriteString(snippetColor.Sprint(snippet))
		sb.WriteString("\n")

		startCol := label.Span.Start.Col - 1
		endCol := label.Span.End.Col - 1
		if label.Span.End.Line != line || endCol <= startCol {
			endCol = startCol + 1
		}
		carets := make([]byte, len([]rune(snippet)))
		for i := range carets {
			if i >= startCol && i < endCol {
				carets[i] = '^'
			} else {
				carets[i] = ' '
			}
		}
		sb.WriteString(caretColor.Sprint(string(carets)))
		sb.WriteString("\n")
	}
}

// Sink collects diagnostics in the order they are reported. It does not
// stop a pass itself; each pass returns after reporting the first
// violation it finds in a function.
type Sink struct {
	file  *source.File
	items []*Diagnostic
}

func NewSink(file *source.File) *Sink {
	return &Sink{file: file}
}

func (s *Sink) Report(d *Diagnostic) {
	s.items = append(s.items, d)
}

func (s *Sink) HasErrors() bool {
	return len(s.items) > 0
}

func (s *Sink) Diagnostics() []*Diagnostic {
	return s.items
}

// Flush renders every collected diagnostic to w in source order.
func (s *Sink) Flush(w io.Writer) {
	for _, d := range s.items {
		d.Render(w, s.file)
	}
}

// RaiseInternal prints an internal-compiler-error and is the sole member
// of the ICE channel described in spec.md §7 — it carries no span because
// it signals a malformed-MIR bug in the compiler itself, not a user error.
func RaiseInternal(w io.Writer, msg string) {
	fmt.Fprintf(w, "internal compiler error: %s\n", msg)
}
