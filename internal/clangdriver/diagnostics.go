package clangdriver

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

// RenderDiagnostics writes res's captured compiler output to w, coloring
// known diagnostic line shapes (error:, warning:, note:, and caret/tilde
// indicator lines) when w is a terminal that supports ANSI (spec.md
// §4.1). Non-terminal writers get the raw text unmodified, preserving
// the diagnostic byte stream verbatim as spec.md requires.
func RenderDiagnostics(w io.Writer, res Result) {
	text := res.Combined()
	if text == "" {
		return
	}
	if !isTerminal(w) {
		io.WriteString(w, text)
		return
	}

	errColor := color.New(color.FgRed, color.Bold)
	warnColor := color.New(color.FgYellow, color.Bold)
	noteColor := color.New(color.FgCyan)
	caretColor := color.New(color.FgGreen, color.Bold)

	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.Contains(line, "error:"):
			errColor.Fprintln(w, line)
		case strings.Contains(line, "warning:"):
			warnColor.Fprintln(w, line)
		case strings.Contains(line, "note:"):
			noteColor.Fprintln(w, line)
		case isCaretLine(line):
			caretColor.Fprintln(w, line)
		default:
			fmt.Fprintln(w, line)
		}
	}
}

// isCaretLine recognizes clang's "^" / "~~~~" indicator lines: lines
// consisting only of whitespace, '^', '~', and digits (column markers).
func isCaretLine(line string) bool {
	trimmed := strings.TrimLeft(line, " \t")
	if trimmed == "" {
		return false
	}
	hasMarker := false
	for _, r := range trimmed {
		switch {
		case r == '^' || r == '~':
			hasMarker = true
		case r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return hasMarker
}

type fileStater interface {
	Stat() (os.FileInfo, error)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(fileStater)
	if !ok {
		return false
	}
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return stat.Mode()&os.ModeCharDevice != 0
}
