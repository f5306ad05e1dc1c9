package vintage

import (
	"bytes"
	"context"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/vintage-cli/internal/fetcher"
	"github.com/sells-group/vintage-cli/internal/model"
)

// Header keys that carry the publication date, most authoritative first.
var vintageDateKeys = []string{"Release date", "Last updated", "Date"}

var vintageDateLayouts = []string{
	"02 January 2006",
	"2 January 2006",
	"02 Jan 2006",
	"2 Jan 2006",
	"2006-01-02",
	"02-01-2006",
}

// Downloaded files are named ap2y_<version>_<YYYY-MM-DD>.csv.
var filenameDateRe = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})(?:\.[A-Za-z0-9]+)?$`)

// splitHeader separates leading key/value metadata rows from the table body.
// Metadata ends at the first row whose key is a time period, at a row wider than a
// key/value pair, or after an "Important notes" row. A key with no value is kept
// with an empty value.
func splitHeader(rows [][]string) (map[string]string, [][]string) {
	meta := make(map[string]string)
	for i, row := range rows {
		cells := nonEmptyPrefix(row)
		if len(cells) == 0 {
			continue
		}
		key := unquote(cells[0])
		if _, ok := parsePeriod(key); ok {
			return meta, rows[i:]
		}
		if len(cells) > 2 {
			return meta, rows[i:]
		}
		meta[key] = ""
		if len(cells) == 2 {
			meta[key] = unquote(cells[1])
		}
		if strings.HasPrefix(strings.ToLower(key), "important notes") {
			return meta, rows[i+1:]
		}
	}
	return meta, nil
}

// HeaderVintageDate reads the publication date from parsed header metadata.
func HeaderVintageDate(meta map[string]string) (time.Time, bool) {
	for _, key := range vintageDateKeys {
		v := strings.TrimSpace(lookupFold(meta, key))
		if v == "" {
			continue
		}
		for _, layout := range vintageDateLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return model.DateOnly(t), true
			}
		}
	}
	return time.Time{}, false
}

// FilenameVintageDate extracts the trailing YYYY-MM-DD stamp from a file name.
func FilenameVintageDate(source string) (time.Time, bool) {
	m := filenameDateRe.FindStringSubmatch(filepath.Base(source))
	if m == nil {
		return time.Time{}, false
	}
	t, err := time.Parse(model.DateLayout, m[1])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func lookupFold(meta map[string]string, key string) string {
	if v, ok := meta[key]; ok {
		return v
	}
	for k, v := range meta {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// nonEmptyPrefix drops trailing empty cells (spreadsheet exports pad rows).
func nonEmptyPrefix(row []string) []string {
	end := len(row)
	for end > 0 && strings.TrimSpace(row[end-1]) == "" {
		end--
	}
	return row[:end]
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// ReadMetadata decodes raw CSV bytes and returns only the header metadata.
func ReadMetadata(ctx context.Context, data []byte) (map[string]string, error) {
	text, err := decodeText(data)
	if err != nil {
		return nil, err
	}
	rows, err := fetcher.ReadCSV(ctx, bytes.NewReader(text), fetcher.CSVOptions{LazyQuotes: true, TrimSpace: true})
	if err != nil {
		return nil, eris.Wrap(err, "vintage: read header")
	}
	meta, _ := splitHeader(rows)
	return meta, nil
}
