package knowledge

import (
	"strings"
)

// Flatten splits Markdown into facts. Paragraphs separated by blank lines
// become one fact each; every table row becomes its own fact with its cells
// joined by spaces. Header lines keep their text without the leading '#'.
// A table's header row is skipped when the row after it is a separator.
func Flatten(md string) []string {
	var (
		out  []string
		para []string
	)
	flush := func() {
		if len(para) > 0 {
			out = append(out, strings.Join(para, " "))
			para = para[:0]
		}
	}

	lines := strings.Split(strings.ReplaceAll(md, "\r\n", "\n"), "\n")
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		switch {
		case line == "":
			flush()
		case isTableRow(line):
			flush()
			if isSeparatorRow(line) {
				continue
			}
			if i+1 < len(lines) && isSeparatorRow(strings.TrimSpace(lines[i+1])) {
				continue
			}
			if cells := tableCells(line); len(cells) > 0 {
				out = append(out, strings.Join(cells, " "))
			}
		case strings.HasPrefix(line, "#"):
			flush()
			if h := strings.TrimSpace(strings.TrimLeft(line, "#")); h != "" {
				out = append(out, h)
			}
		default:
			para = append(para, strings.TrimSpace(strings.TrimLeft(line, "-*>")))
		}
	}
	flush()
	return out
}

func isTableRow(line string) bool {
	return len(line) > 1 && strings.HasPrefix(line, "|") && strings.HasSuffix(line, "|")
}

func isSeparatorRow(line string) bool {
	if !isTableRow(line) {
		return false
	}
	body := strings.Trim(line, "|")
	return strings.Trim(body, "|:- \t") == "" && strings.Contains(body, "-")
}

func tableCells(line string) []string {
	cols := strings.Split(strings.Trim(line, "|"), "|")
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}
