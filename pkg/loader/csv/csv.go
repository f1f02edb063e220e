package csv

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"
)

// ErrEmpty is returned for CSV input without any non-empty record.
var ErrEmpty = errors.New("csv file is empty or contains no valid data")

// Parse reads CSV content and renders one line per record. When the first
// record looks like a header, every following record is written as
// "column: value" pairs so each line stands on its own after splitting.
// Malformed records are skipped.
func Parse(content []byte) (string, error) {
	records := readRecords(content)
	if len(records) == 0 {
		return "", ErrEmpty
	}

	var out strings.Builder
	if isHeader(records) {
		header := records[0]
		for i, record := range records[1:] {
			if i > 0 {
				out.WriteByte('\n')
			}
			writeLabeled(&out, header, record)
		}
		return out.String(), nil
	}

	for i, record := range records {
		if i > 0 {
			out.WriteByte('\n')
		}
		for j, field := range record {
			if j > 0 {
				out.WriteByte(',')
			}
			out.WriteString(quoteField(field))
		}
	}
	return out.String(), nil
}

func readRecords(content []byte) [][]string {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		empty := true
		for i, field := range record {
			record[i] = strings.TrimSpace(field)
			if record[i] != "" {
				empty = false
			}
		}
		if !empty {
			records = append(records, record)
		}
	}
	return records
}

// isHeader treats the first record as a header when its fields are
// distinct, non-empty and not numeric.
func isHeader(records [][]string) bool {
	if len(records) < 2 {
		return false
	}
	seen := make(map[string]struct{}, len(records[0]))
	for _, field := range records[0] {
		if field == "" || isNumeric(field) {
			return false
		}
		key := strings.ToLower(field)
		if _, dup := seen[key]; dup {
			return false
		}
		seen[key] = struct{}{}
	}
	return true
}

func isNumeric(field string) bool {
	_, err := strconv.ParseFloat(strings.ReplaceAll(field, ",", ""), 64)
	return err == nil
}

func writeLabeled(out *strings.Builder, header, record []string) {
	first := true
	for i, value := range record {
		if value == "" {
			continue
		}
		if !first {
			out.WriteString(", ")
		}
		first = false
		if i < len(header) {
			out.WriteString(header[i])
			out.WriteString(": ")
		}
		out.WriteString(value)
	}
}

func quoteField(field string) string {
	if !strings.ContainsAny(field, ",\n\"") {
		return field
	}
	return "\"" + strings.ReplaceAll(field, "\"", "\"\"") + "\""
}
