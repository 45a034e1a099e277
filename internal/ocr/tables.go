package ocr

import (
	"html"
	"regexp"
	"strings"
)

// columns in layout-preserved text are separated by runs of 2+ spaces
var reCellGap = regexp.MustCompile(`\s{2,}`)

type layoutLine struct {
	raw   string
	cells []string
}

// FlattenTables turns runs of two or more column-aligned lines with the same
// number of cells into an HTML <table> block, so the structuring model sees
// table structure instead of whitespace. Other lines pass through untouched.
func FlattenTables(text string) string {
	if text == "" {
		return text
	}
	var (
		out []string
		run []layoutLine
	)
	flush := func() {
		if len(run) >= 2 {
			out = append(out, "", renderTable(run), "")
		} else {
			for _, l := range run {
				out = append(out, l.raw)
			}
		}
		run = nil
	}
	for _, ln := range strings.Split(text, "\n") {
		cells := splitCells(ln)
		if len(cells) < 2 {
			flush()
			out = append(out, ln)
			continue
		}
		if len(run) > 0 && len(run[0].cells) != len(cells) {
			flush()
		}
		run = append(run, layoutLine{raw: ln, cells: cells})
	}
	flush()
	return strings.Join(out, "\n")
}

func splitCells(line string) []string {
	trimmed := strings.TrimSpace(strings.ReplaceAll(line, "\f", ""))
	if trimmed == "" {
		return nil
	}
	return reCellGap.Split(trimmed, -1)
}

func renderTable(rows []layoutLine) string {
	var b strings.Builder
	b.WriteString("<table>")
	for _, r := range rows {
		b.WriteString("<tr>")
		for _, c := range r.cells {
			b.WriteString("<td>")
			b.WriteString(html.EscapeString(c))
			b.WriteString("</td>")
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</table>")
	return b.String()
}
