package model

import "time"

// DateSource records where a vintage date came from.
type DateSource string

const (
	DateSourceHeader   DateSource = "header"   // explicit header field
	DateSourceFilename DateSource = "filename" // download naming convention
	DateSourceFallback DateSource = "fallback" // caller default, e.g. file mod time
)

// VintageObservation is one reported value for an observation month as published
// in one vintage. It is a value type and is never mutated after creation.
type VintageObservation struct {
	ObservationDate time.Time `json:"observation_date"`
	Value           float64   `json:"value"`
	VintageDate     time.Time `json:"vintage_date"`
	SourceFile      string    `json:"source_file"`
}

// Key returns the consolidation key for the observation.
func (o VintageObservation) Key() ObservationKey {
	return ObservationKey{ObservationDate: o.ObservationDate, VintageDate: o.VintageDate}
}

// ObservationKey identifies one value in the consolidated table.
type ObservationKey struct {
	ObservationDate time.Time
	VintageDate     time.Time
}

// Observation is a dated value inside a single vintage file.
type Observation struct {
	Date  time.Time `json:"observation_date"`
	Value float64   `json:"value"`
}

// VintageRecord is the parsed content of one raw vintage file.
type VintageRecord struct {
	VintageDate       time.Time         `json:"vintage_date"`
	DateSource        DateSource        `json:"date_source"`
	LowConfidenceDate bool              `json:"low_confidence_date"`
	Source            string            `json:"source"`
	Observations      []Observation     `json:"observations"`
	Skipped           int               `json:"skipped"` // monthly rows with missing or non-numeric values
	Ignored           int               `json:"ignored"` // non-monthly rows (annual, quarterly)
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// VintageObservations expands the record into table facts.
func (r *VintageRecord) VintageObservations() []VintageObservation {
	out := make([]VintageObservation, len(r.Observations))
	for i, o := range r.Observations {
		out[i] = VintageObservation{
			ObservationDate: o.Date,
			Value:           o.Value,
			VintageDate:     r.VintageDate,
			SourceFile:      r.Source,
		}
	}
	return out
}
