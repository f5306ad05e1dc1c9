package model

import "time"

// BandSource names what widened a forecast row's bounds.
type BandSource string

const (
	BandRevision BandSource = "revision" // mean absolute revision at a comparable age
	BandResidual BandSource = "residual" // multiple of the model's residual SD
)

// ForecastRow is a single horizon step of a forecast.
type ForecastRow struct {
	HorizonIndex       int        `json:"horizon_index"`
	ObservationDate    time.Time  `json:"observation_date"`
	PointForecast      float64    `json:"point_forecast"`
	LowerBound         float64    `json:"lower_bound"`
	UpperBound         float64    `json:"upper_bound"`
	BasedOnVintageDate time.Time  `json:"based_on_vintage_date"`
	BandSource         BandSource `json:"band_source"`
}

// ForecastResult is an ordered forecast produced from a single vintage.
type ForecastResult struct {
	Rows               []ForecastRow `json:"rows"`
	BasedOnVintageDate time.Time     `json:"based_on_vintage_date"`
	Method             string        `json:"method"`
	ResidualSD         float64       `json:"residual_sd"`
	HistoryLength      int           `json:"history_length"`
	InterpolatedPoints int           `json:"interpolated_points"`
}
