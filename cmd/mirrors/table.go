package main

import (
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

// writeTable prints rows as an aligned text table. Widths are measured in
// display cells so titles with wide characters still line up.
func writeTable(w io.Writer, header []string, rows [][]string) error {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			if cw := runewidth.StringWidth(row[i]); cw > widths[i] {
				widths[i] = cw
			}
		}
	}

	var sb strings.Builder
	writeRow := func(cells []string) {
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			if i > 0 {
				sb.WriteString("  ")
			}
			if i == len(widths)-1 {
				sb.WriteString(cell)
				continue
			}
			sb.WriteString(runewidth.FillRight(cell, widths[i]))
		}
		sb.WriteString("\n")
	}

	writeRow(header)
	rule := make([]string, len(widths))
	for i, n := range widths {
		rule[i] = strings.Repeat("-", n)
	}
	writeRow(rule)
	for _, row := range rows {
		writeRow(row)
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// truncate shortens s to at most width display cells.
func truncate(s string, width int) string {
	return runewidth.Truncate(s, width, "...")
}
