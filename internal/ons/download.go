package ons

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/vintage-cli/internal/fetcher"
	"github.com/sells-group/vintage-cli/internal/model"
	"github.com/sells-group/vintage-cli/internal/resilience"
	"github.com/sells-group/vintage-cli/internal/vintage"
)

// DefaultPause is the polite delay between CSV downloads.
const DefaultPause = 1250 * time.Millisecond

// ErrHTMLResponse is returned when a CSV link serves an HTML page.
var ErrHTMLResponse = eris.New("html response instead of csv")

var unsafeNameRe = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// Saved describes one downloaded vintage file.
type Saved struct {
	Path        string    `json:"path"`
	Link        Link      `json:"link"`
	VintageDate time.Time `json:"vintage_date"`
	DateKnown   bool      `json:"date_known"`
	Bytes       int       `json:"bytes"`
}

// Options configures a Downloader.
type Options struct {
	BaseURL string
	Pause   time.Duration
	// Retry governs re-fetching a CSV link that returned an HTML page.
	Retry resilience.RetryConfig
}

// Downloader fetches vintage CSVs through a Fetcher.
type Downloader struct {
	fetcher fetcher.Fetcher
	opts    Options
}

// NewDownloader creates a Downloader. A negative Pause disables the delay.
func NewDownloader(f fetcher.Fetcher, opts Options) *Downloader {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://www.ons.gov.uk"
	}
	if opts.Pause == 0 {
		opts.Pause = DefaultPause
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry.MaxAttempts = 3
	}
	return &Downloader{fetcher: f, opts: opts}
}

// Links fetches the previous-versions page and returns its CSV links.
func (d *Downloader) Links(ctx context.Context, pageURL string) ([]Link, error) {
	body, err := d.fetcher.Download(ctx, pageURL)
	if err != nil {
		return nil, eris.Wrapf(err, "ons: fetch %s", pageURL)
	}
	defer body.Close() //nolint:errcheck

	links, err := FindCSVLinks(body, d.opts.BaseURL)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, eris.Errorf("ons: no CSV links found on %s", pageURL)
	}
	return links, nil
}

// DownloadN saves the first n links of the page in the given order to outDir as
// ap2y_<version>_<YYYY-MM-DD>.csv, using "unknown" when the header carries no date.
func (d *Downloader) DownloadN(ctx context.Context, pageURL string, n int, order, outDir string) ([]Saved, error) {
	if n < 1 {
		return nil, eris.Errorf("ons: n must be >= 1, got %d", n)
	}
	links, err := d.Links(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	links, err = Order(links, order)
	if err != nil {
		return nil, err
	}
	if len(links) > n {
		links = links[:n]
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "ons: create dir %s", outDir)
	}

	saved := make([]Saved, 0, len(links))
	for i, link := range links {
		if i > 0 {
			if err := d.pause(ctx); err != nil {
				return saved, err
			}
		}
		s, err := d.save(ctx, link, outDir)
		if err != nil {
			return saved, err
		}
		zap.L().Info("ons: saved vintage",
			zap.String("file", filepath.Base(s.Path)),
			zap.String("version", link.Version),
			zap.Bool("date_known", s.DateKnown),
		)
		saved = append(saved, *s)
	}
	return saved, nil
}

func (d *Downloader) save(ctx context.Context, link Link, outDir string) (*Saved, error) {
	data, err := d.fetchCSV(ctx, link.URL)
	if err != nil {
		return nil, err
	}

	meta, err := vintage.ReadMetadata(ctx, data)
	if err != nil {
		return nil, eris.Wrapf(err, "ons: read header of %s", link.Version)
	}
	s := &Saved{Link: link, Bytes: len(data)}
	stamp := "unknown"
	if t, ok := vintage.HeaderVintageDate(meta); ok {
		s.VintageDate, s.DateKnown = t, true
		stamp = t.Format(model.DateLayout)
	}

	name := "ap2y_" + unsafeNameRe.ReplaceAllString(link.Version, "_") + "_" + stamp + ".csv"
	s.Path = filepath.Join(outDir, name)
	if err := os.WriteFile(s.Path, data, 0o644); err != nil {
		return nil, eris.Wrapf(err, "ons: write %s", s.Path)
	}
	return s, nil
}

// fetchCSV downloads a generator link. The generator occasionally answers with
// an HTML page instead of CSV; only that response is retried here since the
// fetcher already retries network errors.
func (d *Downloader) fetchCSV(ctx context.Context, rawURL string) ([]byte, error) {
	cfg := d.opts.Retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("ons", rawURL)
	}
	if cfg.ShouldRetry == nil {
		cfg.ShouldRetry = func(err error) bool { return errors.Is(err, ErrHTMLResponse) }
	}
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		body, err := d.fetcher.Download(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		defer body.Close() //nolint:errcheck

		data, err := io.ReadAll(body)
		if err != nil {
			return nil, eris.Wrapf(err, "ons: read %s", rawURL)
		}
		if looksLikeHTML(data) {
			return nil, eris.Wrapf(ErrHTMLResponse, "ons: %s", rawURL)
		}
		return data, nil
	})
}

func (d *Downloader) pause(ctx context.Context) error {
	if d.opts.Pause <= 0 {
		return nil
	}
	t := time.NewTimer(d.opts.Pause)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "ons: download cancelled")
	case <-t.C:
		return nil
	}
}

func looksLikeHTML(data []byte) bool {
	head := bytes.ToLower(bytes.TrimSpace(bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})))
	return bytes.HasPrefix(head, []byte("<!doctype html")) || bytes.HasPrefix(head, []byte("<html"))
}
