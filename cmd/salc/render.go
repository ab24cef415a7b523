package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/snrtools/salc/pkg/diag"
	"github.com/snrtools/salc/pkg/token"
)

// renderDiagnostics prints each diagnostic with its source line and a caret
// marker, followed by any secondary labels:
//
//	scene.sal:12:9: error: duplicate case 3; the first target wins
//	    3 => EXTRA,
//	    ^~~~
//	scene.sal:10:9: note: first case here
func renderDiagnostics(w io.Writer, file, src string, bag *diag.Bag) {
	ix := diag.NewLineIndex(src)
	for _, d := range bag.All() {
		renderSpan(w, file, ix, d.Span, d.Severity.String(), d.Message)
		for _, label := range d.Labels {
			renderSpan(w, file, ix, label.Span, "note", label.Message)
		}
	}
}

func renderSpan(w io.Writer, file string, ix *diag.LineIndex, span token.Span, kind, msg string) {
	line, col := ix.Position(span.Start)
	fmt.Fprintf(w, "%s:%d:%d: %s: %s\n", file, line, col, kind, msg)

	text := ix.Line(line)
	if text == "" {
		return
	}
	fmt.Fprintf(w, "    %s\n", strings.ReplaceAll(text, "\t", " "))

	width := span.End - span.Start
	if width < 1 {
		width = 1
	}
	if max := len(text) - col + 1; width > max {
		width = max
	}
	marker := "^"
	if width > 1 {
		marker += strings.Repeat("~", width-1)
	}
	fmt.Fprintf(w, "    %s%s\n", strings.Repeat(" ", col-1), marker)
}
