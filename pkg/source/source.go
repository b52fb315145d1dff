// Package source holds the file and position plumbing shared by every
// compiler pass: the raw bytes of a .ke file, a Position within it, and the
// Context each pass receives instead of reaching for package-level state.
package source

import "fmt"

// Position is a single point in a source file, 1-based for both line and
// column so it can be printed directly in a diagnostic.
type Position struct {
	Line   int
	Col    int
	Offset int // byte offset into File.Data
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// Span is a half-open byte range [Start, End) plus the Positions that bound
// it, used to underline the offending text in a rendered diagnostic.
type Span struct {
	Start, End Position
}

// Join returns the smallest Span covering both a and b.
func Join(a, b Span) Span {
	start, end := a.Start, a.End
	if b.Start.Offset < start.Offset {
		start = b.Start
	}
	if b.End.Offset > end.Offset {
		end = b.End
	}
	return Span{Start: start, End: end}
}

// File is the in-memory representation of a single .ke source file, read
// once at CLI entry and shared read-only by every subsequent pass.
type File struct {
	Name string
	Data []byte
	// lineStarts[i] is the byte offset of the first byte of line i+1.
	lineStarts []int
}

// NewFile indexes src's line starts so Line can slice out any line directly.
func NewFile(name string, src []byte) *File {
	f := &File{Name: name, Data: src, lineStarts: []int{0}}
	for i, b := range src {
		if b == '\n' {
			f.lineStarts = append(f.lineStarts, i+1)
		}
	}
	return f
}

// Line returns the raw text of the given 1-based line, without its
// trailing newline.
func (f *File) Line(n int) string {
	if n < 1 || n > len(f.lineStarts) {
		return ""
	}
	start := f.lineStarts[n-1]
	end := len(f.Data)
	if n < len(f.lineStarts) {
		end = f.lineStarts[n] - 1
	}
	if end < start {
		end = start
	}
	for end > start && (f.Data[end-1] == '\n' || f.Data[end-1] == '\r') {
		end--
	}
	return string(f.Data[start:end])
}

// Flags carries the CLI switches that change emission policy further down
// the pipeline (spec.md §4.4, §6).
type Flags struct {
	NoOUChecks bool   // -fno-ou-checks
	Sanitize   string // -fsanitize[=address|undefined], "" when absent
	Optimize   bool   // -o
	EmitMIR    bool   // -femit-mir
}

// Context is the explicit, non-global state threaded through every pass:
// the file being compiled and the CLI flags in effect. The diagnostic sink
// is a separate *diag.Sink passed alongside it. Constructed once at CLI
// entry and torn down on exit (spec.md §9).
type Context struct {
	File  *File
	Flags Flags
}

func NewContext(file *File, flags Flags) *Context {
	return &Context{File: file, Flags: flags}
}
