// Package ons discovers and downloads AP2Y vintages from the ONS "previous
// versions" page.
package ons

import (
	"io"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
)

// LatestLabel is the version label of the current release.
const LatestLabel = "latest"

// Download orders accepted by Order.
const (
	OrderRecent = "recent"
	OrderOldest = "oldest"
)

var versionRe = regexp.MustCompile(`/previous/(v\d+)$`)

// Link is one CSV generator link.
type Link struct {
	URL     string `json:"url"`
	URI     string `json:"uri"`
	Version string `json:"version"` // vNNN or "latest"
}

// number returns the numeric part of a vNNN label, or -1.
func (l Link) number() int {
	if !strings.HasPrefix(l.Version, "v") {
		return -1
	}
	n, err := strconv.Atoi(l.Version[1:])
	if err != nil {
		return -1
	}
	return n
}

// FindCSVLinks returns the /generator?format=csv links on a page, de-duplicated
// by series URI in page order. Relative links are resolved against baseURL.
func FindCSVLinks(page io.Reader, baseURL string) ([]Link, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, eris.Wrapf(err, "ons: parse base url %q", baseURL)
	}

	var links []Link
	seen := make(map[string]bool)
	z := html.NewTokenizer(page)
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() == io.EOF {
				return links, nil
			}
			return nil, eris.Wrap(z.Err(), "ons: tokenize page")
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		tok := z.Token()
		if tok.Data != "a" {
			continue
		}
		for _, attr := range tok.Attr {
			if attr.Key != "href" {
				continue
			}
			link, ok := parseGeneratorHref(base, strings.TrimSpace(attr.Val))
			if ok && !seen[link.URI] {
				seen[link.URI] = true
				links = append(links, link)
			}
		}
	}
}

func parseGeneratorHref(base *url.URL, href string) (Link, bool) {
	u, err := url.Parse(href)
	if err != nil || u.Path != "/generator" {
		return Link{}, false
	}
	q := u.Query()
	uri := q.Get("uri")
	if q.Get("format") != "csv" || uri == "" {
		return Link{}, false
	}
	version := LatestLabel
	if m := versionRe.FindStringSubmatch(uri); m != nil {
		version = m[1]
	}
	return Link{URL: base.ResolveReference(u).String(), URI: uri, Version: version}, true
}

// Order sorts links for download. The latest release always comes first; previous
// versions follow newest first for "recent" or oldest first for "oldest".
func Order(links []Link, order string) ([]Link, error) {
	if order != OrderRecent && order != OrderOldest {
		return nil, eris.Errorf("ons: order must be %q or %q, got %q", OrderRecent, OrderOldest, order)
	}
	out := make([]Link, len(links))
	copy(out, links)
	sort.SliceStable(out, func(i, j int) bool {
		li, lj := out[i].Version == LatestLabel, out[j].Version == LatestLabel
		if li != lj {
			return li
		}
		if order == OrderRecent {
			return out[i].number() > out[j].number()
		}
		return out[i].number() < out[j].number()
	})
	return out, nil
}
