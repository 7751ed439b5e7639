package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/iter"

	"github.com/joescharf/igwatch/internal/github"
	"github.com/joescharf/igwatch/internal/health"
	"github.com/joescharf/igwatch/internal/logging"
	"github.com/joescharf/igwatch/internal/models"
	"github.com/joescharf/igwatch/internal/version"
)

// DefaultConcurrency bounds how many projects are fetched at once.
const DefaultConcurrency = 8

// ManifestFetcher returns the published versions listed at a manifest URL.
// Failures are absorbed by the fetcher and reported as an empty list.
type ManifestFetcher interface {
	Fetch(ctx context.Context, rawURL string) []models.PublishedVersion
}

// Outcome is the result of refreshing one project. Record is always usable;
// when Err is set it is the degraded, identity-only record.
type Outcome struct {
	Record models.ProjectRecord
	Err    error
}

// PanicError wraps a panic recovered while building a project record.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Aggregator builds project records from GitHub metadata and published manifests.
type Aggregator struct {
	gh          github.Client
	manifests   ManifestFetcher
	concurrency int
	now         func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithConcurrency bounds parallel project fetches. n <= 0 runs every project at once.
func WithConcurrency(n int) Option {
	return func(a *Aggregator) { a.concurrency = n }
}

// WithClock overrides the time source used for branch staleness.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// NewAggregator returns an Aggregator using the given metadata sources.
func NewAggregator(gh github.Client, manifests ManifestFetcher, opts ...Option) *Aggregator {
	a := &Aggregator{
		gh:          gh,
		manifests:   manifests,
		concurrency: DefaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Project builds the record for a single project. It never returns a bare
// error: any failure, including a panic, produces a degraded record with Err set.
func (a *Aggregator) Project(ctx context.Context, p models.TrackedProject, now time.Time) (out Outcome) {
	log := logging.FromContext(ctx).With().Str("project", p.Name).Str("repo", p.Repo).Logger()

	defer func() {
		if r := recover(); r != nil {
			err := &PanicError{Value: r}
			log.Error().Err(err).Msg("project refresh panicked")
			out = Outcome{Record: models.DegradedRecord(p), Err: err}
		}
	}()

	meta, err := a.gh.RepoMetadata(ctx, p.Repo)
	if err != nil {
		log.Warn().Err(err).Msg("repository lookup failed")
		return Outcome{Record: models.DegradedRecord(p), Err: fmt.Errorf("%s: %w", p.Name, err)}
	}

	published := []models.PublishedVersion{}
	if p.Published != "" {
		published = a.manifests.Fetch(logging.WithLogger(ctx, &log), p.Published)
	}

	rec := models.ProjectRecord{
		Name:                p.Name,
		Repo:                p.Repo,
		WebURL:              meta.WebURL,
		DefaultBranch:       meta.DefaultBranch,
		LastDefaultCommitAt: meta.DefaultCommittedAt,
		Branches:            health.ClassifyBranches(meta.Branches, meta.DefaultBranch, now),
		Versions:            version.Reconcile(version.FromTags(meta.Tags), published),
		PublishedVersions:   published,
	}

	log.Debug().
		Int("branches", len(rec.Branches)).
		Int("versions", len(rec.Versions)).
		Int("published", len(published)).
		Msg("project refreshed")
	return Outcome{Record: rec}
}

// Fleet refreshes every project concurrently and returns one record per input
// project, in input order. It does not fail on per-project errors.
func (a *Aggregator) Fleet(ctx context.Context, projects []models.TrackedProject) models.FleetResult {
	now := a.now()
	runID := ulid.Make().String()
	log := logging.FromContext(ctx).With().Str("run_id", runID).Logger()
	ctx = logging.WithLogger(ctx, &log)

	outcomes := a.run(ctx, projects, now)

	result := models.FleetResult{
		RunID:       runID,
		GeneratedAt: now,
		Projects:    make([]models.ProjectRecord, len(outcomes)),
	}
	failed := 0
	for i, o := range outcomes {
		result.Projects[i] = o.Record
		if o.Err != nil {
			failed++
		}
	}

	level := zerolog.InfoLevel
	if failed > 0 {
		level = zerolog.WarnLevel
	}
	log.WithLevel(level).Int("total", len(projects)).Int("healthy", len(projects)-failed).Int("degraded", failed).Msg("fleet refresh complete")
	return result
}

func (a *Aggregator) run(ctx context.Context, projects []models.TrackedProject, now time.Time) []Outcome {
	if len(projects) == 0 {
		return []Outcome{}
	}
	limit := a.concurrency
	if limit <= 0 || limit > len(projects) {
		limit = len(projects)
	}
	mapper := iter.Mapper[models.TrackedProject, Outcome]{MaxGoroutines: limit}
	return mapper.Map(projects, func(p *models.TrackedProject) Outcome {
		return a.Project(ctx, *p, now)
	})
}
