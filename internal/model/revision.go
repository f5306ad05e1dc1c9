package model

import "time"

// RevisionRecord is the change in the reported value for one observation month
// between two consecutive vintages.
type RevisionRecord struct {
	ObservationDate     time.Time `json:"observation_date"`
	VintageDate         time.Time `json:"vintage_date"`
	PreviousVintageDate time.Time `json:"previous_vintage_date"`
	VintageAgeMonths    int       `json:"vintage_age_months"`
	RevisionValue       float64   `json:"revision_value"`
	CumulativeRevision  float64   `json:"cumulative_revision"` // value minus the first vintage's value
}

// RevisionBucket aggregates revisions of one vintage age across observation months.
type RevisionBucket struct {
	VintageAgeMonths  int     `json:"vintage_age_months"`
	MeanAbsRevision   float64 `json:"mean_abs_revision"`
	MedianAbsRevision float64 `json:"median_abs_revision"`
	N                 int     `json:"n"`
	MeanRevision      float64 `json:"mean_revision"`
	P90AbsRevision    float64 `json:"p90_abs_revision"`
	LowConfidence     bool    `json:"low_confidence"`
}

// RevisionSummary holds buckets ordered by ascending vintage age.
type RevisionSummary struct {
	Buckets       []RevisionBucket `json:"buckets"`
	MinBucketSize int              `json:"min_bucket_size"`
}

// Bucket returns the bucket for the given age, if present.
func (s *RevisionSummary) Bucket(age int) (RevisionBucket, bool) {
	if s == nil {
		return RevisionBucket{}, false
	}
	for _, b := range s.Buckets {
		if b.VintageAgeMonths == age {
			return b, true
		}
	}
	return RevisionBucket{}, false
}

// LowConfidenceBuckets returns the buckets below the minimum sample size.
func (s *RevisionSummary) LowConfidenceBuckets() []RevisionBucket {
	if s == nil {
		return nil
	}
	var out []RevisionBucket
	for _, b := range s.Buckets {
		if b.LowConfidence {
			out = append(out, b)
		}
	}
	return out
}
