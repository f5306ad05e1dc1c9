// Package revision measures how estimates for an observation month change as
// later vintages are published.
package revision

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/vintage-cli/internal/consolidate"
	"github.com/sells-group/vintage-cli/internal/model"
)

// AgeBasis selects what a revision's vintage age is measured from.
type AgeBasis string

const (
	// AgeObservation counts calendar months from the observation month to the
	// later vintage.
	AgeObservation AgeBasis = "observation"
	// AgeFirstRelease counts calendar months from the first vintage that
	// reported the observation month to the later vintage.
	AgeFirstRelease AgeBasis = "first_release"
)

// DefaultMinBucketSize is the sample count below which a bucket is low confidence.
const DefaultMinBucketSize = 2

// Options configures Analyze.
type Options struct {
	MinBucketSize int
	AgeBasis      AgeBasis
}

// Analysis is the full output of one analysis pass.
type Analysis struct {
	Records            []model.RevisionRecord `json:"records"`
	Summary            *model.RevisionSummary `json:"summary"`
	NegativeAgeSkipped int                    `json:"negative_age_skipped"`
}

// Analyze walks consecutive vintages of every observation month and aggregates
// the revisions by vintage age. It does not modify the table and returns the same
// output for the same table.
func Analyze(t *consolidate.Table, opts Options) (*Analysis, error) {
	if err := t.Validate(); err != nil {
		return nil, eris.Wrap(err, "revision: analyze")
	}
	if opts.MinBucketSize < 1 {
		opts.MinBucketSize = DefaultMinBucketSize
	}
	switch opts.AgeBasis {
	case "":
		opts.AgeBasis = AgeObservation
	case AgeObservation, AgeFirstRelease:
	default:
		return nil, eris.Errorf("revision: unknown age basis %q", opts.AgeBasis)
	}

	log := zap.L().With(zap.String("component", "revision"))
	a := &Analysis{}

	// Rows are ordered by observation date then vintage date, so each month's
	// vintages are a contiguous, already sorted run.
	rows := t.Rows()
	for start := 0; start < len(rows); {
		end := start + 1
		for end < len(rows) && rows[end].ObservationDate.Equal(rows[start].ObservationDate) {
			end++
		}
		a.walk(rows[start:end], opts.AgeBasis)
		start = end
	}

	if a.NegativeAgeSkipped > 0 {
		log.Warn("excluded revisions published before their observation month",
			zap.Int("count", a.NegativeAgeSkipped),
		)
	}

	a.Summary = Summarize(a.Records, opts.MinBucketSize)
	for _, b := range a.Summary.LowConfidenceBuckets() {
		log.Warn("low-confidence revision bucket",
			zap.Int("vintage_age_months", b.VintageAgeMonths),
			zap.Int("n", b.N),
			zap.Int("min_bucket_size", opts.MinBucketSize),
		)
	}
	return a, nil
}

func (a *Analysis) walk(vintages []model.VintageObservation, basis AgeBasis) {
	if len(vintages) < 2 {
		return
	}
	first := vintages[0]
	for i := 1; i < len(vintages); i++ {
		prev, cur := vintages[i-1], vintages[i]

		var age int
		if basis == AgeFirstRelease {
			age = model.MonthsBetween(first.VintageDate, cur.VintageDate)
		} else {
			age = model.MonthsBetween(cur.ObservationDate, cur.VintageDate)
		}
		if age < 0 {
			a.NegativeAgeSkipped++
			continue
		}

		a.Records = append(a.Records, model.RevisionRecord{
			ObservationDate:     cur.ObservationDate,
			VintageDate:         cur.VintageDate,
			PreviousVintageDate: prev.VintageDate,
			VintageAgeMonths:    age,
			RevisionValue:       cur.Value - prev.Value,
			CumulativeRevision:  cur.Value - first.Value,
		})
	}
}

// Summarize groups records by vintage age. Buckets smaller than minBucketSize
// are kept and flagged low confidence.
func Summarize(records []model.RevisionRecord, minBucketSize int) *model.RevisionSummary {
	byAge := make(map[int][]float64)
	for _, r := range records {
		byAge[r.VintageAgeMonths] = append(byAge[r.VintageAgeMonths], r.RevisionValue)
	}

	ages := make([]int, 0, len(byAge))
	for age := range byAge {
		ages = append(ages, age)
	}
	sort.Ints(ages)

	s := &model.RevisionSummary{MinBucketSize: minBucketSize, Buckets: make([]model.RevisionBucket, 0, len(ages))}
	for _, age := range ages {
		s.Buckets = append(s.Buckets, bucket(age, byAge[age], minBucketSize))
	}
	return s
}

func bucket(age int, values []float64, minBucketSize int) model.RevisionBucket {
	abs := make([]float64, len(values))
	var sum, sumAbs float64
	for i, v := range values {
		abs[i] = math.Abs(v)
		sum += v
		sumAbs += abs[i]
	}
	sort.Float64s(abs)
	n := float64(len(values))

	return model.RevisionBucket{
		VintageAgeMonths:  age,
		MeanAbsRevision:   sumAbs / n,
		MedianAbsRevision: quantile(abs, 0.5),
		N:                 len(values),
		MeanRevision:      sum / n,
		P90AbsRevision:    quantile(abs, 0.9),
		LowConfidence:     len(values) < minBucketSize,
	}
}

// quantile interpolates linearly between the closest ranks of sorted values.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
