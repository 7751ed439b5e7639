// Package git reads the origin of a local clone so the CLI can tell which
// tracked project the working directory belongs to.
package git

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/joescharf/igwatch/internal/github"
)

// Client defines the local git operations igwatch needs.
type Client interface {
	RepoRoot(path string) (string, error)
	RemoteURL(path string) (string, error)
}

// RealClient implements Client using real git commands.
type RealClient struct{}

// NewClient returns a new RealClient.
func NewClient() *RealClient {
	return &RealClient{}
}

func gitCmd(path string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", path}, args...)
	out, err := exec.Command("git", fullArgs...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (c *RealClient) RepoRoot(path string) (string, error) {
	return gitCmd(path, "rev-parse", "--show-toplevel")
}

func (c *RealClient) RemoteURL(path string) (string, error) {
	out, err := gitCmd(path, "remote", "get-url", "origin")
	if err != nil {
		return "", nil // no remote is not an error
	}
	return out, nil
}

// OriginRepo returns the "owner/repo" of the clone containing path.
func OriginRepo(c Client, path string) (string, error) {
	root, err := c.RepoRoot(path)
	if err != nil {
		return "", err
	}
	remote, err := c.RemoteURL(root)
	if err != nil {
		return "", err
	}
	if remote == "" {
		return "", fmt.Errorf("%s has no origin remote", root)
	}
	owner, name, err := github.ParseRepo(remote)
	if err != nil {
		return "", err
	}
	return owner + "/" + name, nil
}
