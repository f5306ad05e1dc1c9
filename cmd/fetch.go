package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/vintage-cli/internal/fetcher"
	"github.com/sells-group/vintage-cli/internal/ons"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download AP2Y vintage CSVs from the ONS previous-versions page",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("fetch"); err != nil {
			return err
		}
		ctx := cmd.Context()

		n, _ := cmd.Flags().GetInt("n")
		order, _ := cmd.Flags().GetString("order")
		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = cfg.Ingest.RawDir
		}

		f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:    cfg.ONS.UserAgent,
			Accept:       "text/csv,text/html;q=0.9,*/*;q=0.8",
			Timeout:      time.Duration(cfg.ONS.TimeoutSecs) * time.Second,
			MaxRetries:   cfg.ONS.MaxRetries,
			RateLimiters: fetcher.DefaultRateLimiters(cfg.ONS.RequestsPerSecond),
		})
		d := ons.NewDownloader(f, ons.Options{BaseURL: cfg.ONS.BaseURL})

		saved, err := d.DownloadN(ctx, cfg.ONS.PreviousURL, n, order, out)
		for _, s := range saved {
			fmt.Fprintf(os.Stdout, "Saved %s (vintage=%s)\n", filepath.Base(s.Path), vintageLabel(s))
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Downloaded %d files to %s\n", len(saved), out)
		return nil
	},
}

func vintageLabel(s ons.Saved) string {
	if !s.DateKnown {
		return "unknown"
	}
	return s.VintageDate.Format("2006-01-02")
}

func init() {
	fetchCmd.Flags().Int("n", 25, "number of CSV files to download (includes latest)")
	fetchCmd.Flags().String("order", ons.OrderRecent, "order of previous versions after latest: recent or oldest")
	fetchCmd.Flags().String("out", "", "directory to save CSVs (default ingest.raw_dir)")
	rootCmd.AddCommand(fetchCmd)
}
