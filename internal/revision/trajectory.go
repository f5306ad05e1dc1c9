package revision

import (
	"math"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/vintage-cli/internal/consolidate"
	"github.com/sells-group/vintage-cli/internal/model"
)

// ErrUnknownObservation is returned when a month has no vintages in the table.
var ErrUnknownObservation = eris.New("observation month not in table")

// TrajectoryPoint is one published estimate of an observation month.
type TrajectoryPoint struct {
	VintageDate      time.Time `json:"vintage_date"`
	Value            float64   `json:"value"`
	SourceFile       string    `json:"source_file"`
	VintageAgeMonths int       `json:"vintage_age_months"`
	Change           float64   `json:"change"` // versus the previous point; 0 for the first
}

// Trajectory is the evolution of one observation month across vintages.
type Trajectory struct {
	ObservationDate    time.Time         `json:"observation_date"`
	Points             []TrajectoryPoint `json:"points"`
	First              float64           `json:"first"`
	Latest             float64           `json:"latest"`
	TotalRevision      float64           `json:"total_revision"`
	Min                float64           `json:"min"`
	Max                float64           `json:"max"`
	Range              float64           `json:"range"`
	LargestStep        float64           `json:"largest_step"`
	LargestStepVintage time.Time         `json:"largest_step_vintage"`
}

// Trace builds the trajectory of one observation month.
func Trace(t *consolidate.Table, month time.Time) (*Trajectory, error) {
	month = model.MonthStart(month)
	vintages := t.ByObservation(month)
	if len(vintages) == 0 {
		return nil, eris.Wrapf(ErrUnknownObservation, "revision: trace %s", model.FormatMonth(month))
	}

	tr := &Trajectory{
		ObservationDate: month,
		First:           vintages[0].Value,
		Latest:          vintages[len(vintages)-1].Value,
		Min:             math.Inf(1),
		Max:             math.Inf(-1),
	}
	for i, v := range vintages {
		p := TrajectoryPoint{
			VintageDate:      v.VintageDate,
			Value:            v.Value,
			SourceFile:       v.SourceFile,
			VintageAgeMonths: model.MonthsBetween(month, v.VintageDate),
		}
		if i > 0 {
			p.Change = v.Value - vintages[i-1].Value
			if math.Abs(p.Change) > math.Abs(tr.LargestStep) {
				tr.LargestStep = p.Change
				tr.LargestStepVintage = v.VintageDate
			}
		}
		tr.Min = math.Min(tr.Min, v.Value)
		tr.Max = math.Max(tr.Max, v.Value)
		tr.Points = append(tr.Points, p)
	}
	tr.TotalRevision = tr.Latest - tr.First
	tr.Range = tr.Max - tr.Min
	return tr, nil
}
