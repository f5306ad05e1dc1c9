package report

import (
	"io"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/vintage-cli/internal/consolidate"
	"github.com/sells-group/vintage-cli/internal/vintage"
)

// Manifest lists everything a run consumed and every non-fatal condition it hit.
type Manifest struct {
	RunID                 string                 `yaml:"run_id,omitempty"`
	GeneratedAt           time.Time              `yaml:"generated_at"`
	Files                 []string               `yaml:"files"`
	Failures              []vintage.Failure      `yaml:"failures"`
	Rows                  int                    `yaml:"rows"`
	SkippedRows           int                    `yaml:"skipped_rows"`
	Conflicts             []consolidate.Conflict `yaml:"conflicts"`
	LowConfidenceVintages []string               `yaml:"low_confidence_vintages"`
	LowConfidenceBuckets  []int                  `yaml:"low_confidence_buckets"`
	NegativeAgeSkipped    int                    `yaml:"negative_age_skipped"`
	AgeBasis              string                 `yaml:"age_basis"`
	Forecast              *ForecastInfo          `yaml:"forecast,omitempty"`
	Artifacts             []string               `yaml:"artifacts"`
}

// ForecastInfo summarizes the forecast step of a run. Error is set when the
// forecast was refused.
type ForecastInfo struct {
	BasedOnVintageDate string  `yaml:"based_on_vintage_date,omitempty"`
	Method             string  `yaml:"method,omitempty"`
	Horizon            int     `yaml:"horizon"`
	ResidualSD         float64 `yaml:"residual_sd"`
	InterpolatedPoints int     `yaml:"interpolated_points"`
	Error              string  `yaml:"error,omitempty"`
}

// WriteManifest encodes m as YAML.
func WriteManifest(w io.Writer, m *Manifest) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return eris.Wrap(err, "report: encode manifest")
	}
	return eris.Wrap(enc.Close(), "report: close manifest encoder")
}

// ReadManifest decodes a manifest written by WriteManifest.
func ReadManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := yaml.NewDecoder(r).Decode(&m); err != nil {
		return nil, eris.Wrap(err, "report: decode manifest")
	}
	return &m, nil
}
