package compile

import "strings"

// segment is one top-level unit's slice of the source: an item plus the
// trivia lines that precede the next item.
type segment struct {
	text string
	base int
}

// splitUnits cuts the source into unit segments without lexing it. A new
// segment starts at a column-0 line that opens an item: an item keyword or a
// `NAME:` label. The scan tracks block comments, strings and line
// continuations so item-like text inside them never cuts a segment.
func splitUnits(src string) []segment {
	var segs []segment
	start := 0
	depth := 0 // block comment nesting
	continued := false
	pos := 0
	for pos < len(src) {
		lineStart := pos
		var line string
		if nl := strings.IndexByte(src[pos:], '\n'); nl < 0 {
			line = src[pos:]
			pos = len(src)
		} else {
			line = src[pos : pos+nl]
			pos += nl + 1
		}
		if depth == 0 && !continued && lineStart > start && startsItem(line) {
			segs = append(segs, segment{text: src[start:lineStart], base: start})
			start = lineStart
		}
		depth, continued = scanLine(line, depth)
	}
	if start < len(src) || len(segs) == 0 {
		segs = append(segs, segment{text: src[start:], base: start})
	}
	return segs
}

// scanLine advances the comment state across one line and reports whether it
// ends in a line continuation.
func scanLine(line string, depth int) (int, bool) {
	i := 0
	inStr := false
	for i < len(line) {
		c := line[i]
		switch {
		case depth > 0:
			if c == '/' && i+1 < len(line) && line[i+1] == '*' {
				depth++
				i += 2
				continue
			}
			if c == '*' && i+1 < len(line) && line[i+1] == '/' {
				depth--
				i += 2
				continue
			}
			i++
		case inStr:
			if c == '\\' {
				i += 2
				continue
			}
			if c == '"' {
				inStr = false
			}
			i++
		case c == '"':
			inStr = true
			i++
		case c == '/' && i+1 < len(line) && line[i+1] == '/':
			return depth, false
		case c == '/' && i+1 < len(line) && line[i+1] == '*':
			depth++
			i += 2
		default:
			i++
		}
	}
	continued := depth == 0 && !inStr && strings.HasSuffix(line, "\\")
	return depth, continued
}

func startsItem(line string) bool {
	word := leadingIdent(line)
	if word == "" {
		return false
	}
	switch word {
	case "function", "subroutine", "entry":
		return true
	}
	rest := strings.TrimLeft(line[len(word):], " \t")
	return strings.HasPrefix(rest, ":")
}

func leadingIdent(line string) string {
	i := 0
	for i < len(line) {
		c := line[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_' || i > 0 && c >= '0' && c <= '9' {
			i++
			continue
		}
		break
	}
	return line[:i]
}
