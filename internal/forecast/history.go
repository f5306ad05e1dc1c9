package forecast

import (
	"time"

	"github.com/sells-group/vintage-cli/internal/model"
)

type history struct {
	values       []float64
	last         time.Time
	interpolated int
}

// fillGaps turns one vintage's rows (sorted by month) into a contiguous monthly
// series, linearly interpolating months missing between reported ones.
func fillGaps(rows []model.VintageObservation) history {
	h := history{last: rows[len(rows)-1].ObservationDate}
	h.values = append(h.values, rows[0].Value)
	for i := 1; i < len(rows); i++ {
		prev, cur := rows[i-1], rows[i]
		gap := model.MonthsBetween(prev.ObservationDate, cur.ObservationDate)
		for k := 1; k < gap; k++ {
			frac := float64(k) / float64(gap)
			h.values = append(h.values, prev.Value+(cur.Value-prev.Value)*frac)
			h.interpolated++
		}
		h.values = append(h.values, cur.Value)
	}
	return h
}
