// Package catalog loads the list of tracked projects from a file or URL.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/joescharf/igwatch/internal/models"
)

// ErrConfigLoad matches any *LoadError.
var ErrConfigLoad = errors.New("project list load failed")

// LoadError reports a project list that could not be read, parsed, or validated.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load project list %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Is implements errors.Is support.
func (e *LoadError) Is(target error) bool { return target == ErrConfigLoad }

// document is the on-disk shape, written as YAML or JSON.
type document struct {
	IGs []models.TrackedProject `json:"igs" yaml:"igs"`
}

// Loader reads project lists. The zero value uses http.DefaultClient.
type Loader struct {
	HTTP *http.Client
}

// NewLoader returns a Loader whose remote fetches time out after timeout.
func NewLoader(timeout time.Duration) *Loader {
	return &Loader{HTTP: &http.Client{Timeout: timeout}}
}

// Load reads the project list at source, a file path or an http(s) URL.
func (l *Loader) Load(ctx context.Context, source string) ([]models.TrackedProject, error) {
	if strings.TrimSpace(source) == "" {
		return nil, &LoadError{Source: "<unset>", Err: errors.New("no project list source configured")}
	}

	var (
		data []byte
		err  error
	)
	if isRemote(source) {
		data, err = l.fetch(ctx, source)
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, &LoadError{Source: source, Err: err}
	}

	projects, err := parse(data, isJSONSource(source) || looksJSON(data))
	if err != nil {
		return nil, &LoadError{Source: source, Err: err}
	}
	return projects, nil
}

// Parse decodes and validates a project list document. Content starting with
// '{' is read as JSON, anything else as YAML.
func Parse(data []byte) ([]models.TrackedProject, error) {
	return parse(data, looksJSON(data))
}

func parse(data []byte, asJSON bool) ([]models.TrackedProject, error) {
	var doc document
	if asJSON {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if doc.IGs == nil {
		return nil, errors.New(`missing "igs" list`)
	}

	seen := make(map[string]int, len(doc.IGs))
	for i := range doc.IGs {
		p := &doc.IGs[i]
		p.Name = strings.TrimSpace(p.Name)
		p.Repo = strings.TrimSpace(p.Repo)
		p.Published = strings.TrimSpace(p.Published)

		if p.Name == "" {
			return nil, fmt.Errorf("entry %d: name is required", i)
		}
		if p.Repo == "" {
			return nil, fmt.Errorf("entry %d (%s): repo is required", i, p.Name)
		}
		// GitHub repo names are case-insensitive.
		key := strings.ToLower(p.Repo)
		if prev, ok := seen[key]; ok {
			return nil, fmt.Errorf("entry %d (%s): repo %s already listed at entry %d", i, p.Name, p.Repo, prev)
		}
		seen[key] = i
	}
	return doc.IGs, nil
}

func (l *Loader) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	client := l.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// looksJSON reports whether data is a JSON object.
func looksJSON(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(data), []byte("{"))
}

// isJSONSource reports whether the path or URL path ends in .json.
func isJSONSource(source string) bool {
	if isRemote(source) {
		if u, err := url.Parse(source); err == nil {
			source = u.Path
		}
	}
	return strings.EqualFold(filepath.Ext(source), ".json")
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}
