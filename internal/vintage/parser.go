// Package vintage parses raw vintage files into typed vintage records.
package vintage

import (
	"bytes"
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/vintage-cli/internal/fetcher"
	"github.com/sells-group/vintage-cli/internal/model"
)

// Options configures a parse.
type Options struct {
	// FallbackDate is used as the vintage date when neither the header nor the
	// file name carries one. Zero means no fallback.
	FallbackDate time.Time

	// UseModTime makes ParseFile fill FallbackDate from the file's modification
	// time when FallbackDate is zero.
	UseModTime bool
}

// Parse reads one CSV vintage file.
func Parse(ctx context.Context, r io.Reader, source string, opts Options) (*model.VintageRecord, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrapf(err, "vintage: read %s", source)
	}
	text, err := decodeText(raw)
	if err != nil {
		return nil, malformed(source, "%v", err)
	}

	rows, err := fetcher.ReadCSV(ctx, bytes.NewReader(text), fetcher.CSVOptions{LazyQuotes: true, TrimSpace: true})
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrapf(err, "vintage: parse %s", source)
		}
		return nil, malformed(source, "unreadable csv: %v", err)
	}
	return ParseRows(rows, source, opts)
}

// ParseFile parses a CSV or XLSX vintage file from disk.
func ParseFile(ctx context.Context, path string, opts Options) (*model.VintageRecord, error) {
	source := filepath.Base(path)

	if opts.FallbackDate.IsZero() && opts.UseModTime {
		if fi, err := os.Stat(path); err == nil {
			opts.FallbackDate = fi.ModTime()
		}
	}

	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{})
		if err != nil {
			return nil, malformed(source, "unreadable xlsx: %v", err)
		}
		return ParseRows(rows, source, opts)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "vintage: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	return Parse(ctx, f, source, opts)
}

// ParseRows turns tabular rows into a vintage record. Monthly rows whose value is
// missing or non-numeric are counted as skipped; annual and quarterly rows are
// counted as ignored. A file with no monthly observations is malformed.
func ParseRows(rows [][]string, source string, opts Options) (*model.VintageRecord, error) {
	meta, body := splitHeader(rows)

	rec := &model.VintageRecord{
		Source:   source,
		Metadata: meta,
	}

	if d, ok := HeaderVintageDate(meta); ok {
		rec.VintageDate, rec.DateSource = d, model.DateSourceHeader
	} else if d, ok := FilenameVintageDate(source); ok {
		rec.VintageDate, rec.DateSource = d, model.DateSourceFilename
	} else if !opts.FallbackDate.IsZero() {
		rec.VintageDate, rec.DateSource = model.DateOnly(opts.FallbackDate), model.DateSourceFallback
	}
	rec.LowConfidenceDate = rec.DateSource != model.DateSourceHeader

	values := make(map[time.Time]float64)
	for _, row := range body {
		cells := nonEmptyPrefix(row)
		if len(cells) == 0 {
			continue
		}
		p, ok := parsePeriod(unquote(cells[0]))
		if !ok || p.kind != periodMonthly {
			rec.Ignored++
			continue
		}
		if len(cells) < 2 {
			rec.Skipped++
			continue
		}
		v, ok := parseValue(cells[1])
		if !ok {
			rec.Skipped++
			continue
		}
		// A repeated period within one file keeps the last row.
		values[p.month] = v
	}

	if len(values) == 0 {
		return nil, malformed(source, "no valid monthly rows (%d skipped, %d ignored)", rec.Skipped, rec.Ignored)
	}
	if rec.VintageDate.IsZero() {
		return nil, malformed(source, "no vintage date in header or file name and no fallback")
	}

	rec.Observations = make([]model.Observation, 0, len(values))
	for d, v := range values {
		rec.Observations = append(rec.Observations, model.Observation{Date: d, Value: v})
	}
	sort.Slice(rec.Observations, func(i, j int) bool {
		return rec.Observations[i].Date.Before(rec.Observations[j].Date)
	})

	return rec, nil
}

// parseValue parses a reported level. Blank cells and suppression markers such
// as "x" or ".." fail.
func parseValue(s string) (float64, bool) {
	s = strings.TrimSpace(unquote(s))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
