// Package proxy maps published-manifest URLs onto the internal /proxy routes
// and serves those routes as a reverse proxy to the configured upstreams.
package proxy

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

const manifestFile = "package-list.json"

var errInvalidOrigin = errors.New("upstream origin must be an absolute URL")

// rule routes manifest URLs whose host contains host to /proxy/{prefix}.
type rule struct {
	host   string
	prefix string
}

// rules are checked in order; the first host match wins.
var rules = []rule{
	{host: "smart.who.int", prefix: "smart"},
	{host: "fhir.org", prefix: "fhir"},
	{host: "github.io", prefix: "githubio"},
}

// Prefixes returns the proxy route prefixes, in rule order.
func Prefixes() []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.prefix
	}
	return out
}

// Resolve maps a published-manifest URL to its package-list path under /proxy.
// When no rule matches the host, or raw is not a URL, raw is returned unchanged
// with ok=false.
func Resolve(raw string) (path string, ok bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw, false
	}
	for _, r := range rules {
		if strings.Contains(u.Host, r.host) {
			p := strings.TrimSuffix(u.Path, "/")
			return "/proxy/" + r.prefix + p + "/" + manifestFile, true
		}
	}
	return raw, false
}

// ManifestURL returns the package-list URL on raw's own scheme and host.
func ManifestURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("not an absolute URL: %q", raw)
	}
	m := url.URL{
		Scheme: u.Scheme,
		User:   u.User,
		Host:   u.Host,
		Path:   strings.TrimSuffix(u.Path, "/") + "/" + manifestFile,
	}
	return m.String(), nil
}

// Router holds the upstream origin for each proxy prefix.
type Router struct {
	upstreams map[string]*url.URL
	log       zerolog.Logger
}

// NewRouter parses upstream origins keyed by rule prefix ("smart", "fhir", "githubio").
func NewRouter(upstreams map[string]string, log zerolog.Logger) (*Router, error) {
	r := &Router{upstreams: make(map[string]*url.URL, len(upstreams)), log: log}
	for prefix, origin := range upstreams {
		u, err := url.Parse(origin)
		if err != nil {
			return nil, err
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, &url.Error{Op: "parse", URL: origin, Err: errInvalidOrigin}
		}
		r.upstreams[prefix] = u
	}
	return r, nil
}

// Handler serves /proxy/{prefix}/... by forwarding to the prefix's upstream.
func (r *Router) Handler() http.Handler {
	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			prefix, rest, _ := split(pr.In.URL.Path)
			target := r.upstreams[prefix]
			pr.SetURL(target)
			pr.Out.URL.Path = strings.TrimSuffix(target.Path, "/") + rest
			pr.Out.URL.RawPath = ""
			pr.Out.Host = target.Host
		},
		ErrorHandler: func(w http.ResponseWriter, req *http.Request, err error) {
			r.log.Warn().Err(err).Str("path", req.URL.Path).Msg("proxy upstream failed")
			w.WriteHeader(http.StatusBadGateway)
		},
	}

	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		prefix, _, ok := split(req.URL.Path)
		if !ok {
			http.NotFound(w, req)
			return
		}
		if _, known := r.upstreams[prefix]; !known {
			http.NotFound(w, req)
			return
		}
		if req.Method != http.MethodGet && req.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		rp.ServeHTTP(w, req)
	})
}

// split breaks /proxy/{prefix}/rest into prefix and "/rest".
func split(path string) (prefix, rest string, ok bool) {
	trimmed, found := strings.CutPrefix(path, "/proxy/")
	if !found {
		return "", "", false
	}
	prefix, rest, _ = strings.Cut(trimmed, "/")
	if prefix == "" {
		return "", "", false
	}
	return prefix, "/" + rest, true
}
