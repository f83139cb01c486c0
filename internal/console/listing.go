package console

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/srg/blecon/internal/device"
	"github.com/srg/blecon/internal/gatt"
	"golang.org/x/term"
)

const defaultWidth = 80

// terminalWidth returns the width of stdout, or 80 when it is not a terminal.
func terminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return defaultWidth
	}
	return w
}

// deviceLines renders the device list one "#NN: name" per line.
func deviceLines(devs []device.DeviceInfo) []string {
	lines := make([]string, len(devs))
	for i, d := range devs {
		lines[i] = fmt.Sprintf("%s: %s", gatt.FormatIndex(i), d.Name)
	}
	return lines
}

// wideLines lays entries out in columns that fit width. Entries run down
// columns in round-robin order and are padded with spaces only.
func wideLines(entries []string, width int) []string {
	if len(entries) == 0 {
		return nil
	}
	maxLen := 0
	for _, e := range entries {
		maxLen = max(maxLen, utf8.RuneCountInString(e))
	}
	columns := max(1, width/(maxLen+5))
	columns = min(columns, len(entries))

	cols := make([][]string, columns)
	for i, e := range entries {
		cols[i%columns] = append(cols[i%columns], e+"   ")
	}
	for _, col := range cols {
		widest := 0
		for _, cell := range col {
			widest = max(widest, utf8.RuneCountInString(cell))
		}
		for j, cell := range col {
			col[j] = cell + strings.Repeat(" ", widest-utf8.RuneCountInString(cell))
		}
	}

	lines := make([]string, 0, len(cols[0]))
	for row := range cols[0] {
		var b strings.Builder
		for _, col := range cols {
			if row < len(col) {
				b.WriteString(col[row])
			}
		}
		lines = append(lines, strings.TrimRight(b.String(), " "))
	}
	return lines
}
