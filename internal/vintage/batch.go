package vintage

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/vintage-cli/internal/model"
)

// Failure records a file that could not be turned into a vintage record.
type Failure struct {
	Source string `json:"source" yaml:"source"`
	Err    error  `json:"-" yaml:"-"`
	Reason string `json:"reason" yaml:"reason"`
}

// BatchResult is the outcome of parsing a batch of files. Records keep the input
// order, which is the order the merge applies them in.
type BatchResult struct {
	Records  []*model.VintageRecord
	Failures []Failure
}

// SkippedRows totals the per-file skipped row counts.
func (b *BatchResult) SkippedRows() int {
	n := 0
	for _, r := range b.Records {
		n += r.Skipped
	}
	return n
}

// LowConfidenceDates returns the sources whose vintage date did not come from a header.
func (b *BatchResult) LowConfidenceDates() []string {
	var out []string
	for _, r := range b.Records {
		if r.LowConfidenceDate {
			out = append(out, r.Source)
		}
	}
	return out
}

// DiscoverFiles lists files in dir matching any of the glob patterns, sorted by
// name. This sort is the documented processing order for the merge.
func DiscoverFiles(dir string, patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, p := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, p))
		if err != nil {
			return nil, eris.Wrapf(err, "vintage: glob %s", p)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// ParseFiles parses files concurrently. A file that fails to parse is recorded
// as a Failure and never aborts the batch; only context cancellation does.
func ParseFiles(ctx context.Context, paths []string, opts Options, concurrency int) (*BatchResult, error) {
	log := zap.L().With(zap.String("component", "vintage.batch"))
	if concurrency < 1 {
		concurrency = 1
	}

	records := make([]*model.VintageRecord, len(paths))
	errs := make([]error, len(paths))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			rec, err := ParseFile(gCtx, path, opts)
			if err != nil {
				if gCtx.Err() != nil {
					return gCtx.Err()
				}
				errs[i] = err
				return nil
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "vintage: parse batch")
	}

	res := &BatchResult{}
	for i, path := range paths {
		if errs[i] != nil {
			source := filepath.Base(path)
			log.Warn("skipping vintage file", zap.String("source", source), zap.Error(errs[i]))
			res.Failures = append(res.Failures, Failure{Source: source, Err: errs[i], Reason: errs[i].Error()})
			continue
		}
		rec := records[i]
		if rec.Skipped > 0 {
			log.Warn("skipped unparseable rows", zap.String("source", rec.Source), zap.Int("skipped", rec.Skipped))
		}
		if rec.LowConfidenceDate {
			log.Warn("vintage date not taken from header",
				zap.String("source", rec.Source),
				zap.String("date_source", string(rec.DateSource)),
				zap.Time("vintage_date", rec.VintageDate),
			)
		}
		res.Records = append(res.Records, rec)
	}

	log.Info("parsed vintage files",
		zap.Int("files", len(paths)),
		zap.Int("parsed", len(res.Records)),
		zap.Int("failed", len(res.Failures)),
	)
	return res, nil
}
