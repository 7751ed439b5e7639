// Package manifest fetches a project's published package-list and turns it
// into normalized published-version entries.
package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/joescharf/igwatch/internal/logging"
	"github.com/joescharf/igwatch/internal/models"
	"github.com/joescharf/igwatch/internal/proxy"
	"github.com/joescharf/igwatch/internal/version"
)

// ErrManifestFetch matches any *FetchError.
var ErrManifestFetch = errors.New("manifest fetch failed")

// FetchError reports a manifest that could not be read or decoded.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch manifest %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch manifest %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is implements errors.Is support.
func (e *FetchError) Is(target error) bool { return target == ErrManifestFetch }

// Fetcher reads published manifests, either through a running /proxy server
// or straight from the host each manifest URL names.
type Fetcher struct {
	http     *http.Client
	proxyURL string
}

// NewFetcher returns a Fetcher. When proxyURL is set, resolved /proxy paths are
// fetched from it; otherwise the package-list is read from the manifest's own host.
func NewFetcher(proxyURL string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		http:     &http.Client{Timeout: timeout},
		proxyURL: strings.TrimSuffix(proxyURL, "/"),
	}
}

// Fetch returns the published versions listed at rawURL. Any failure is logged
// and yields an empty list.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) []models.PublishedVersion {
	log := logging.FromContext(ctx)

	entries, err := f.fetch(ctx, rawURL)
	if err != nil {
		log.Warn().Err(err).Str("manifest", rawURL).Msg("published manifest unavailable")
		return []models.PublishedVersion{}
	}
	log.Debug().Str("manifest", rawURL).Int("versions", len(entries)).Msg("fetched published manifest")
	return entries
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) ([]models.PublishedVersion, error) {
	target, err := f.target(ctx, rawURL)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &FetchError{URL: target, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, &FetchError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: target, Status: resp.StatusCode}
	}

	var doc packageList
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, &FetchError{URL: target, Err: fmt.Errorf("decode: %w", err)}
	}
	return doc.entries(), nil
}

// target resolves rawURL to the URL actually requested.
func (f *Fetcher) target(ctx context.Context, rawURL string) (string, error) {
	resolved, ok := proxy.Resolve(rawURL)
	if !ok {
		logging.FromContext(ctx).Warn().Str("manifest", rawURL).Msg("unknown proxy host, using original URL")
		if u, err := url.Parse(resolved); err != nil || !u.IsAbs() {
			return "", fmt.Errorf("not an absolute URL: %q", rawURL)
		}
		return resolved, nil
	}

	if f.proxyURL != "" {
		return f.proxyURL + resolved, nil
	}
	return proxy.ManifestURL(rawURL)
}

type packageList struct {
	List []struct {
		Version string `json:"version"`
		Path    string `json:"path"`
	} `json:"list"`
}

// entries drops unversioned and sentinel entries and normalizes the rest, in order.
func (d packageList) entries() []models.PublishedVersion {
	out := make([]models.PublishedVersion, 0, len(d.List))
	for _, e := range d.List {
		if strings.TrimSpace(e.Version) == "" || version.IsSentinel(e.Version) {
			continue
		}
		out = append(out, models.PublishedVersion{
			Version: version.Normalize(e.Version),
			URL:     e.Path,
		})
	}
	return out
}
