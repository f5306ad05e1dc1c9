package consolidate

import (
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/vintage-cli/internal/model"
)

// ErrEmptyTable is returned when no usable observations survived consolidation.
var ErrEmptyTable = eris.New("consolidated table is empty")

// Table is an immutable consolidated table ordered by observation date, then
// vintage date. Each (observation_date, vintage_date) key appears once.
type Table struct {
	rows      []model.VintageObservation
	conflicts []Conflict
}

// VintageInfo summarizes one vintage date present in the table.
type VintageInfo struct {
	VintageDate time.Time `json:"vintage_date"`
	Sources     []string  `json:"sources"`
	Rows        int       `json:"rows"`
}

func newTable(rows []model.VintageObservation, conflicts []Conflict) *Table {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.ObservationDate.Equal(b.ObservationDate) {
			return a.ObservationDate.Before(b.ObservationDate)
		}
		return a.VintageDate.Before(b.VintageDate)
	})
	return &Table{rows: rows, conflicts: conflicts}
}

// Rows returns a copy of the ordered rows.
func (t *Table) Rows() []model.VintageObservation {
	out := make([]model.VintageObservation, len(t.rows))
	copy(out, t.rows)
	return out
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Conflicts returns the conflicts recorded while building the table.
func (t *Table) Conflicts() []Conflict {
	out := make([]Conflict, len(t.conflicts))
	copy(out, t.conflicts)
	return out
}

// Validate returns ErrEmptyTable when the table has no rows.
func (t *Table) Validate() error {
	if t == nil || len(t.rows) == 0 {
		return ErrEmptyTable
	}
	return nil
}

// ByObservation returns every known vintage of one observation month, oldest
// vintage first.
func (t *Table) ByObservation(month time.Time) []model.VintageObservation {
	month = model.MonthStart(month)
	i := sort.Search(len(t.rows), func(i int) bool {
		return !t.rows[i].ObservationDate.Before(month)
	})
	j := i
	for j < len(t.rows) && t.rows[j].ObservationDate.Equal(month) {
		j++
	}
	out := make([]model.VintageObservation, j-i)
	copy(out, t.rows[i:j])
	return out
}

// ObservationDates returns the distinct observation months in ascending order.
func (t *Table) ObservationDates() []time.Time {
	var out []time.Time
	for _, r := range t.rows {
		if n := len(out); n == 0 || !out[n-1].Equal(r.ObservationDate) {
			out = append(out, r.ObservationDate)
		}
	}
	return out
}

// VintageDates returns the distinct vintage dates in ascending order.
func (t *Table) VintageDates() []time.Time {
	seen := make(map[time.Time]bool)
	var out []time.Time
	for _, r := range t.rows {
		if !seen[r.VintageDate] {
			seen[r.VintageDate] = true
			out = append(out, r.VintageDate)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// LatestVintage returns the maximum vintage date in the table.
func (t *Table) LatestVintage() (time.Time, bool) {
	var latest time.Time
	for _, r := range t.rows {
		if r.VintageDate.After(latest) {
			latest = r.VintageDate
		}
	}
	return latest, !latest.IsZero()
}

// AtVintage returns the rows published in one vintage, ordered by observation date.
func (t *Table) AtVintage(vintage time.Time) []model.VintageObservation {
	vintage = model.DateOnly(vintage)
	var out []model.VintageObservation
	for _, r := range t.rows {
		if r.VintageDate.Equal(vintage) {
			out = append(out, r)
		}
	}
	return out
}

// Vintages lists the vintage dates with the files that supplied them.
func (t *Table) Vintages() []VintageInfo {
	idx := make(map[time.Time]int)
	var out []VintageInfo
	for _, r := range t.rows {
		i, ok := idx[r.VintageDate]
		if !ok {
			i = len(out)
			idx[r.VintageDate] = i
			out = append(out, VintageInfo{VintageDate: r.VintageDate})
		}
		out[i].Rows++
		out[i].Sources = appendUnique(out[i].Sources, r.SourceFile)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VintageDate.Before(out[j].VintageDate) })
	for i := range out {
		sort.Strings(out[i].Sources)
	}
	return out
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
