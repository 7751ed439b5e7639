package github

import (
	"errors"
	"fmt"
)

var (
	// ErrRepositoryLookup matches any *RepositoryLookupError.
	ErrRepositoryLookup = errors.New("repository lookup failed")

	// ErrNetwork wraps transport failures, non-200 responses, and GraphQL errors
	// other than NOT_FOUND.
	ErrNetwork = errors.New("network error")
)

// RepositoryLookupError reports that the metadata query returned no repository.
type RepositoryLookupError struct {
	Repo   string
	Reason string
}

func (e *RepositoryLookupError) Error() string {
	return fmt.Sprintf("repository %s not found: %s", e.Repo, e.Reason)
}

// Is implements errors.Is support.
func (e *RepositoryLookupError) Is(target error) bool {
	return target == ErrRepositoryLookup
}
