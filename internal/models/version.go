package models

// PublishedVersion is a version listed in a project's published package manifest.
type PublishedVersion struct {
	Version string `json:"version"`
	URL     string `json:"url"`
}

// ReconciledVersion merges tag presence and publication for one version identifier.
// A nil PublishedURL means the version is not published.
type ReconciledVersion struct {
	Version      string  `json:"version"`
	HasTag       bool    `json:"has_tag"`
	PublishedURL *string `json:"published_url"`
}
