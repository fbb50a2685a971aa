package ingestion

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/sondrmsk/divrec/internal/normalize"
)

// ReadCSV parses a dividend booking file into raw rows keyed by header
// name. The feeds are not uniform: the delimiter is sniffed from the
// header line (comma or semicolon), a UTF-8 BOM is stripped, header
// whitespace is trimmed and fully empty rows are dropped.
func ReadCSV(data []byte) ([]normalize.RawRow, error) {
	text := strings.TrimPrefix(string(data), "\uFEFF")

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = sniffDelimiter(text)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []normalize.RawRow
	lineNum := 1
	for {
		lineNum++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}

		row := make(normalize.RawRow, len(header))
		empty := true
		for i, cell := range record {
			if i >= len(header) {
				break
			}
			cell = strings.TrimSpace(cell)
			if cell != "" {
				empty = false
			}
			row[header[i]] = cell
		}
		if empty {
			continue
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// sniffDelimiter picks the separator by which occurs more often in the
// header line. Comma wins ties.
func sniffDelimiter(text string) rune {
	headerLine := text
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		headerLine = text[:idx]
	}
	if strings.Count(headerLine, ";") > strings.Count(headerLine, ",") {
		return ';'
	}
	return ','
}
