package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/joescharf/igwatch/internal/models"
)

// DefaultAPIURL is the public GitHub API root.
const DefaultAPIURL = "https://api.github.com"

// refLimit is the page size for branch and tag refs; only the first page is read.
const refLimit = 100

// RepoMetadata is the branch and tag snapshot of one repository.
type RepoMetadata struct {
	WebURL             string
	DefaultBranch      string
	DefaultCommittedAt *time.Time
	Branches           []models.BranchRef
	Tags               []string
}

// Client fetches repository metadata from GitHub.
type Client interface {
	RepoMetadata(ctx context.Context, repo string) (*RepoMetadata, error)
}

// RealClient implements Client against the GitHub GraphQL API.
type RealClient struct {
	http    *http.Client
	apiURL  string
	headers map[string]string
}

// NewClient returns a RealClient. The token is sent as a bearer credential on
// every request and is never modified.
func NewClient(token, apiURL string, timeout time.Duration) *RealClient {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	headers := map[string]string{"Content-Type": "application/json"}
	if token != "" {
		headers["Authorization"] = "Bearer " + token
	}
	return &RealClient{
		http:    &http.Client{Timeout: timeout},
		apiURL:  strings.TrimSuffix(apiURL, "/"),
		headers: headers,
	}
}

const repoQuery = `query($owner: String!, $name: String!, $limit: Int!) {
  repository(owner: $owner, name: $name) {
    url
    defaultBranchRef {
      name
      target { ... on Commit { committedDate } }
    }
    branches: refs(refPrefix: "refs/heads/", first: $limit) {
      nodes {
        name
        target { ... on Commit { committedDate } }
      }
    }
    tags: refs(refPrefix: "refs/tags/", first: $limit) {
      nodes { name }
    }
  }
}`

// RepoMetadata runs a single GraphQL query for repo ("owner/name"). A response
// without repository data yields a *RepositoryLookupError when GitHub reports
// NOT_FOUND (or no error at all); other GraphQL errors wrap ErrNetwork. The gh-pages branch
// and branches without a commit date are dropped.
func (c *RealClient) RepoMetadata(ctx context.Context, repo string) (*RepoMetadata, error) {
	owner, name, err := ParseRepo(repo)
	if err != nil {
		return nil, &RepositoryLookupError{Repo: repo, Reason: err.Error()}
	}

	body, err := json.Marshal(graphQLRequest{
		Query:     repoQuery,
		Variables: map[string]any{"owner": owner, "name": name, "limit": refLimit},
	})
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/graphql", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: graphql %s: status %d", ErrNetwork, repo, resp.StatusCode)
	}

	var out graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("parse repository metadata: %w", err)
	}

	if out.Data.Repository == nil {
		if !out.notFound() {
			return nil, fmt.Errorf("%w: graphql %s: %s", ErrNetwork, repo, out.errorMessage())
		}
		return nil, &RepositoryLookupError{Repo: repo, Reason: out.errorMessage()}
	}
	return out.Data.Repository.toMetadata(), nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLResponse struct {
	Data struct {
		Repository *repositoryNode `json:"repository"`
	} `json:"data"`
	Errors []struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"errors"`
}

// notFound reports whether a reply without repository data means the
// repository does not exist, as opposed to rate limiting or a denied token.
func (r graphQLResponse) notFound() bool {
	if len(r.Errors) == 0 {
		return true
	}
	for _, e := range r.Errors {
		if e.Type == "NOT_FOUND" {
			return true
		}
	}
	return false
}

func (r graphQLResponse) errorMessage() string {
	if len(r.Errors) == 0 {
		return "no repository in response"
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Message
	}
	return strings.Join(msgs, "; ")
}

type commitTarget struct {
	CommittedDate *time.Time `json:"committedDate"`
}

type repositoryNode struct {
	URL              string `json:"url"`
	DefaultBranchRef *struct {
		Name   string       `json:"name"`
		Target commitTarget `json:"target"`
	} `json:"defaultBranchRef"`
	Branches struct {
		Nodes []struct {
			Name   string       `json:"name"`
			Target commitTarget `json:"target"`
		} `json:"nodes"`
	} `json:"branches"`
	Tags struct {
		Nodes []struct {
			Name string `json:"name"`
		} `json:"nodes"`
	} `json:"tags"`
}

func (n *repositoryNode) toMetadata() *RepoMetadata {
	m := &RepoMetadata{
		WebURL:   n.URL,
		Branches: make([]models.BranchRef, 0, len(n.Branches.Nodes)),
		Tags:     make([]string, 0, len(n.Tags.Nodes)),
	}
	if n.DefaultBranchRef != nil {
		m.DefaultBranch = n.DefaultBranchRef.Name
		m.DefaultCommittedAt = n.DefaultBranchRef.Target.CommittedDate
	}
	for _, b := range n.Branches.Nodes {
		if b.Name == models.PagesBranch || b.Target.CommittedDate == nil {
			continue
		}
		m.Branches = append(m.Branches, models.BranchRef{Name: b.Name, CommittedAt: *b.Target.CommittedDate})
	}
	for _, t := range n.Tags.Nodes {
		m.Tags = append(m.Tags, t.Name)
	}
	return m
}

// ParseRepo splits a repository identifier into owner and name. It accepts
// "owner/repo" as well as GitHub HTTPS and SSH remote URLs.
func ParseRepo(repo string) (owner, name string, err error) {
	s := strings.TrimSpace(repo)

	// SSH: git@github.com:owner/repo.git
	if strings.HasPrefix(s, "git@") {
		parts := strings.SplitN(s, ":", 2)
		if len(parts) != 2 {
			return "", "", fmt.Errorf("cannot parse SSH remote: %s", repo)
		}
		s = parts[1]
	}

	s = strings.TrimSuffix(s, ".git")
	s = strings.TrimPrefix(s, "https://github.com/")
	s = strings.TrimPrefix(s, "http://github.com/")
	s = strings.TrimSuffix(s, "/")

	segments := strings.Split(s, "/")
	if len(segments) != 2 || segments[0] == "" || segments[1] == "" {
		return "", "", fmt.Errorf("cannot parse owner/repo from: %s", repo)
	}
	return segments[0], segments[1], nil
}
