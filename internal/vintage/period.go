package vintage

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

type periodKind int

const (
	periodAnnual periodKind = iota + 1
	periodQuarterly
	periodMonthly
)

type period struct {
	kind  periodKind
	month time.Time // set for monthly periods only
}

var (
	annualRe      = regexp.MustCompile(`^\d{4}$`)
	quarterRe     = regexp.MustCompile(`^\d{4}\s+Q[1-4]$`)
	monthNameRe   = regexp.MustCompile(`^(\d{4})\s+([A-Za-z]{3})$`)
	monthNumberRe = regexp.MustCompile(`^(\d{4})(?:-|\s+M)(\d{2})$`)
)

var monthAbbrev = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// parsePeriod classifies a time-series key such as "2022 JUN", "2022 M06",
// "2022-06", "2022 Q2" or "2022".
func parsePeriod(key string) (period, bool) {
	key = strings.TrimSpace(key)
	switch {
	case annualRe.MatchString(key):
		return period{kind: periodAnnual}, true
	case quarterRe.MatchString(key):
		return period{kind: periodQuarterly}, true
	}

	if m := monthNameRe.FindStringSubmatch(key); m != nil {
		mon, ok := monthAbbrev[strings.ToUpper(m[2])]
		if !ok {
			return period{}, false
		}
		year, _ := strconv.Atoi(m[1])
		return period{kind: periodMonthly, month: time.Date(year, mon, 1, 0, 0, 0, 0, time.UTC)}, true
	}

	if m := monthNumberRe.FindStringSubmatch(key); m != nil {
		year, _ := strconv.Atoi(m[1])
		mon, _ := strconv.Atoi(m[2])
		if mon < 1 || mon > 12 {
			return period{}, false
		}
		return period{kind: periodMonthly, month: time.Date(year, time.Month(mon), 1, 0, 0, 0, 0, time.UTC)}, true
	}

	return period{}, false
}
