package calendar

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	appLog "audiosched/internal/log"
	"audiosched/internal/model"
)

// Format is the on-disk encoding of a calendar table.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCSV  Format = "csv"
)

// FormatFor guesses the table format from a file name or URL path.
func FormatFor(name string) (Format, error) {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("calendar %q: unknown format (want .json, .yaml or .csv)", name)
	}
}

// Parse decodes, validates and converts a calendar table.
//
//   - JSON/YAML: a list of day records {"Month": 3, "Day": 1, "Fajr": "05:10", ...}
//   - CSV: header row "Month,Day,Fajr,Sunrise,Dhuhr,..." followed by one row per day
//
// Keys are matched case-insensitively. Records are checked against the
// table schema before conversion; duplicate (month, day) pairs are rejected.
func Parse(format Format, body []byte) ([]model.CalendarEntry, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("calendar table is empty")
	}

	var (
		raw []any
		err error
	)
	switch format {
	case FormatJSON:
		err = json.Unmarshal(body, &raw)
	case FormatYAML:
		err = yaml.Unmarshal(body, &raw)
	case FormatCSV:
		raw, err = csvRecords(bytes.NewReader(body))
	default:
		return nil, fmt.Errorf("unsupported calendar format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s calendar: %w", format, err)
	}

	for i, rec := range raw {
		m, ok := rec.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("calendar record %d: not an object", i)
		}
		raw[i] = normalizeRecord(m)
	}

	if err := validateRecords(raw); err != nil {
		return nil, err
	}
	return toEntries(raw)
}

func csvRecords(r io.Reader) ([]any, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, errors.New("csv needs a header and at least one data row")
	}

	header := rows[0]
	out := make([]any, 0, len(rows)-1)
	for n, row := range rows[1:] {
		rec := make(map[string]any, len(header))
		for i, col := range header {
			if i >= len(row) {
				break
			}
			val := strings.TrimSpace(row[i])
			switch model.FoldName(col) {
			case "month", "day":
				v, err := strconv.Atoi(val)
				if err != nil {
					return nil, fmt.Errorf("csv row %d: %s %q is not a number", n+2, col, val)
				}
				rec[col] = v
			default:
				rec[col] = val
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// normalizeRecord folds keys and renders non-string timestamps as strings so
// a YAML scalar such as 5.10 reaches the builder (and its warning) instead
// of failing the whole table.
func normalizeRecord(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		key := model.FoldName(k)
		switch key {
		case "month", "day":
			out[key] = v
		default:
			switch tv := v.(type) {
			case nil, string:
				out[key] = tv
			default:
				out[key] = fmt.Sprint(tv)
			}
		}
	}
	return out
}

func toEntries(raw []any) ([]model.CalendarEntry, error) {
	entries := make([]model.CalendarEntry, 0, len(raw))
	seen := make(map[[2]int]bool, len(raw))

	for _, rec := range raw {
		m := rec.(map[string]any)
		month, day := asInt(m["month"]), asInt(m["day"])
		if seen[[2]int{month, day}] {
			return nil, fmt.Errorf("calendar: duplicate entry for %02d-%02d", month, day)
		}
		seen[[2]int{month, day}] = true

		times := make(map[string]string, len(m))
		for k, v := range m {
			if k == "month" || k == "day" {
				continue
			}
			s, _ := v.(string)
			times[k] = s
		}
		entries = append(entries, model.NewCalendarEntry(month, day, times))
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Month != entries[j].Month {
			return entries[i].Month < entries[j].Month
		}
		return entries[i].Day < entries[j].Day
	})
	appLog.Debug("calendar parsed", "entries", len(entries))
	return entries, nil
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case uint64:
		return int(n)
	default:
		return 0
	}
}
