// Package forecast produces a baseline forecast from the latest vintage, with
// bounds widened by the empirical revision spread.
package forecast

import (
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/vintage-cli/internal/consolidate"
	"github.com/sells-group/vintage-cli/internal/model"
)

// Method names recorded on a result.
const (
	MethodHoltWinters = "holt_winters_additive"
	MethodHolt        = "holt_linear"
)

// ErrInsufficientHistory is returned when the latest vintage is too short to fit.
var ErrInsufficientHistory = eris.New("insufficient history")

// InsufficientHistoryError reports the history length that was refused.
type InsufficientHistoryError struct {
	Have int
	Need int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("forecast: insufficient history: latest vintage has %d monthly points, need %d", e.Have, e.Need)
}

func (e *InsufficientHistoryError) Unwrap() error {
	return ErrInsufficientHistory
}

// Options configures Forecast.
type Options struct {
	Horizon             int
	MinHistory          int
	SeasonLength        int
	ResidualMultiplier  float64
	ComparableAgeWindow int
	MinBucketSize       int
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		Horizon:             12,
		MinHistory:          24,
		SeasonLength:        12,
		ResidualMultiplier:  1.96,
		ComparableAgeWindow: 2,
		MinBucketSize:       2,
	}
}

// Forecast fits the latest vintage's history and projects it opts.Horizon months
// ahead. summary may be nil, in which case every band comes from the residuals.
func Forecast(t *consolidate.Table, summary *model.RevisionSummary, opts Options) (*model.ForecastResult, error) {
	if err := t.Validate(); err != nil {
		return nil, eris.Wrap(err, "forecast")
	}
	if opts.Horizon < 1 {
		return nil, eris.Errorf("forecast: horizon must be >= 1, got %d", opts.Horizon)
	}
	if opts.MinHistory < 3 {
		opts.MinHistory = 3
	}

	log := zap.L().With(zap.String("component", "forecast"))

	vintage, _ := t.LatestVintage()
	rows := t.AtVintage(vintage)
	if len(rows) < opts.MinHistory {
		return nil, &InsufficientHistoryError{Have: len(rows), Need: opts.MinHistory}
	}

	hist := fillGaps(rows)
	if hist.interpolated > 0 {
		log.Warn("interpolated missing months in latest vintage",
			zap.String("vintage_date", vintage.Format(model.DateLayout)),
			zap.Int("interpolated", hist.interpolated),
		)
	}

	var fm *fit
	method := MethodHolt
	if m := opts.SeasonLength; m > 1 && len(hist.values) >= 2*m {
		fm = bestHoltWinters(hist.values, m)
		method = MethodHoltWinters
	} else {
		fm = bestHolt(hist.values)
	}

	res := &model.ForecastResult{
		BasedOnVintageDate: vintage,
		Method:             method,
		ResidualSD:         fm.residualSD(),
		HistoryLength:      len(hist.values),
		InterpolatedPoints: hist.interpolated,
		Rows:               make([]model.ForecastRow, 0, opts.Horizon),
	}

	residualBand := opts.ResidualMultiplier * res.ResidualSD
	for h := 1; h <= opts.Horizon; h++ {
		point := fm.predict(h)
		band, source := residualBand, model.BandResidual
		if b, ok := comparableBucket(summary, h, opts); ok {
			band, source = b.MeanAbsRevision, model.BandRevision
		}
		res.Rows = append(res.Rows, model.ForecastRow{
			HorizonIndex:       h,
			ObservationDate:    model.AddMonths(hist.last, h),
			PointForecast:      point,
			LowerBound:         point - band,
			UpperBound:         point + band,
			BasedOnVintageDate: vintage,
			BandSource:         source,
		})
	}

	log.Info("forecast complete",
		zap.String("vintage_date", vintage.Format(model.DateLayout)),
		zap.String("method", method),
		zap.Int("history", res.HistoryLength),
		zap.Int("horizon", opts.Horizon),
		zap.Float64("alpha", fm.alpha),
		zap.Float64("beta", fm.beta),
		zap.Float64("gamma", fm.gamma),
		zap.Float64("residual_sd", res.ResidualSD),
	)
	return res, nil
}

// comparableBucket picks the revision bucket whose age matches horizon h, or the
// nearest one within the window, preferring the younger age on ties. Buckets
// below the minimum sample size are not used.
func comparableBucket(s *model.RevisionSummary, h int, opts Options) (model.RevisionBucket, bool) {
	usable := func(age int) (model.RevisionBucket, bool) {
		b, ok := s.Bucket(age)
		if !ok || b.LowConfidence || b.N < opts.MinBucketSize {
			return model.RevisionBucket{}, false
		}
		return b, true
	}
	if b, ok := usable(h); ok {
		return b, true
	}
	for d := 1; d <= opts.ComparableAgeWindow; d++ {
		if b, ok := usable(h - d); ok {
			return b, true
		}
		if b, ok := usable(h + d); ok {
			return b, true
		}
	}
	return model.RevisionBucket{}, false
}
