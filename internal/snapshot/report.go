package snapshot

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
	"gopkg.in/yaml.v3"
)

// RenderYAML writes reports as a YAML list.
func RenderYAML(w io.Writer, reports []Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(reports); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close report encoder: %w", err)
	}
	return nil
}

var tableHeader = []string{"session", "records", "expected", "no author", "unknown author",
	"no topic", "unknown topic", "no title", "dup title", "dup href", "bad type", "status"}

// RenderTable writes one aligned row per report, padding by display width.
func RenderTable(w io.Writer, reports []Report) error {
	rows := [][]string{tableHeader}
	for _, r := range reports {
		status := "ok"
		if !r.OK() {
			status = "FAIL"
		}
		expected := "-"
		if r.ExpectedRecords > 0 {
			expected = strconv.Itoa(r.ExpectedRecords)
		}
		rows = append(rows, []string{
			r.Session,
			strconv.Itoa(r.Records),
			expected,
			strconv.Itoa(len(r.MissingAuthors)),
			strconv.Itoa(len(r.UnknownAuthors)),
			strconv.Itoa(len(r.MissingTopics)),
			strconv.Itoa(len(r.UnknownTopics)),
			strconv.Itoa(len(r.MissingTitles)),
			strconv.Itoa(len(r.DuplicateTitles)),
			strconv.Itoa(len(r.DuplicateHrefs)),
			strconv.Itoa(len(r.InvalidDocumentTypes)),
			status,
		})
	}

	widths := make([]int, len(tableHeader))
	for _, row := range rows {
		for i, cell := range row {
			if cw := runewidth.StringWidth(cell); cw > widths[i] {
				widths[i] = cw
			}
		}
	}

	for _, row := range rows {
		var sb strings.Builder
		for i, cell := range row {
			if i > 0 {
				sb.WriteString("  ")
			}
			sb.WriteString(runewidth.FillRight(cell, widths[i]))
		}
		if _, err := fmt.Fprintln(w, strings.TrimRight(sb.String(), " ")); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	return nil
}
