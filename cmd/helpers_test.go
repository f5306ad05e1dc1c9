package main

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/vintage-cli/internal/config"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// setTestConfig loads the default configuration and points every path at a
// temp directory.
func setTestConfig(t *testing.T) string {
	t.Helper()
	t.Setenv("VINTAGE_LOG_LEVEL", "error")
	c, err := config.Load()
	require.NoError(t, err)

	dir := t.TempDir()
	c.Store.Driver = "sqlite"
	c.Store.DatabaseURL = filepath.Join(dir, "data", "vintages.db")
	c.Ingest.RawDir = filepath.Join(dir, "raw")
	c.Report.OutDir = filepath.Join(dir, "reports")
	c.Report.ConsolidatedFile = filepath.Join(dir, "processed", "ap2y_consolidated.csv")
	cfg = c
	require.NoError(t, os.MkdirAll(c.Ingest.RawDir, 0o755))
	return dir
}

// seriesValue is a trending seasonal level for month index i.
func seriesValue(i int) float64 {
	return 1000 + 5*float64(i) + math.Round(40*math.Sin(2*math.Pi*float64(i%12)/12))
}

// writeVintage writes an ONS generator style CSV covering n months from start.
// bump is added to every value so later vintages revise earlier ones.
func writeVintage(t *testing.T, dir, name, release string, start time.Time, n int, bump float64) {
	t.Helper()
	var b strings.Builder
	b.WriteString("\"Title\",\"Vacancies: Total services\"\n")
	b.WriteString("\"CDID\",\"AP2Y\"\n")
	b.WriteString("\"PreUnit\",\"\"\n")
	b.WriteString("\"Unit\",\"Thousands\"\n")
	fmt.Fprintf(&b, "\"Release date\",%q\n", release)
	b.WriteString("\"Important notes\",\"\"\n")
	b.WriteString("\"2020\",\"12000\"\n")
	b.WriteString("\"2020 Q1\",\"3000\"\n")
	for i := 0; i < n; i++ {
		m := start.AddDate(0, i, 0)
		fmt.Fprintf(&b, "\"%d %s\",\"%g\"\n", m.Year(), strings.ToUpper(m.Format("Jan")), seriesValue(i)+bump)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(b.String()), 0o644))
}
