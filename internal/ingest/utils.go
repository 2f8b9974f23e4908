package ingest

import (
	"strings"
	"text/tabwriter"
)

// Preview keeps the first n runes of text and marks the cut with "...".
func Preview(text string, n int) string {
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "..."
}

// renderTable lays rows out as space-aligned columns.
func renderTable(rows [][]string) string {
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	for _, row := range rows {
		tw.Write([]byte(strings.Join(row, "\t") + "\n"))
	}
	tw.Flush()
	return strings.TrimRight(b.String(), "\n")
}

// rowMap pairs header names with a row's cells; missing cells become "".
func rowMap(header, row []string) map[string]any {
	m := make(map[string]any, len(header))
	for i, h := range header {
		v := ""
		if i < len(row) {
			v = row[i]
		}
		m[h] = v
	}
	return m
}
