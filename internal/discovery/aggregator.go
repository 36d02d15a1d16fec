// Package discovery is the glue between external job-search collaborators
// and the postings log: it stores normalized listings as job links and runs
// deduplication over the result. The search heuristics and match scoring
// themselves live outside this module.
package discovery

import (
	"context"
	"time"

	"github.com/gildigital/aijobapply/internal/circuitbreaker"
	"github.com/gildigital/aijobapply/internal/dedup"
	"github.com/gildigital/aijobapply/internal/logging"
	"github.com/gildigital/aijobapply/internal/models"
	"github.com/gildigital/aijobapply/internal/retry"
	"github.com/gildigital/aijobapply/internal/types"
)

// Searcher is an external discovery collaborator yielding normalized
// postings for a query.
type Searcher interface {
	Name() string
	Search(ctx context.Context, userID int64, query string) ([]*models.JobListing, error)
}

// LinkStore is the postings-log surface the aggregator writes to.
type LinkStore interface {
	Create(ctx context.Context, link *models.JobLink) (int64, bool, error)
}

// Aggregator fans a query out to discovery sources, records the postings,
// and triggers deduplication. Source failures are non-fatal: a failing
// board contributes an empty result, never an error, matching the
// collaborator contract.
type Aggregator struct {
	sources  []Searcher
	links    LinkStore
	dedup    *dedup.Deduplicator
	breakers map[string]*circuitbreaker.CircuitBreaker
	retryCfg *retry.Config
	logger   *logging.Logger
}

// NewAggregator creates an aggregator over the given sources.
func NewAggregator(sources []Searcher, links LinkStore, deduplicator *dedup.Deduplicator, logger *logging.Logger) *Aggregator {
	breakers := make(map[string]*circuitbreaker.CircuitBreaker, len(sources))
	for _, src := range sources {
		breakers[src.Name()] = circuitbreaker.New(src.Name(), 3, time.Minute)
	}

	return &Aggregator{
		sources:  sources,
		links:    links,
		dedup:    deduplicator,
		breakers: breakers,
		retryCfg: retry.DefaultConfig(),
		logger:   logger,
	}
}

// DiscoverResult summarizes one discovery run.
type DiscoverResult struct {
	Listings   int `json:"listings"`
	NewLinks   int `json:"newLinks"`
	Duplicates int `json:"duplicates"`
	Demoted    int `json:"demoted"`
}

// Discover runs a query against every source, stores the postings, and
// deduplicates the user's links.
func (a *Aggregator) Discover(ctx context.Context, userID int64, query string) (*DiscoverResult, error) {
	result := &DiscoverResult{}

	for _, src := range a.sources {
		listings := a.searchSource(ctx, src, userID, query)
		result.Listings += len(listings)

		for _, listing := range listings {
			externalID := listing.ExternalID
			link := &models.JobLink{
				UserID:   userID,
				URL:      listing.ApplyURL,
				Source:   listing.Source,
				Status:   types.LinkPending,
				Priority: priorityFor(listing),
			}
			if externalID != "" {
				link.ExternalJobID = &externalID
			}
			if query != "" {
				q := query
				link.Query = &q
			}

			_, created, err := a.links.Create(ctx, link)
			if err != nil {
				// Persistence failures are fatal: a half-recorded run would
				// skew the dedup pass below.
				return nil, err
			}
			if created {
				result.NewLinks++
			} else {
				result.Duplicates++
			}
		}
	}

	dedupResult, err := a.dedup.Run(ctx, userID)
	if err != nil {
		return nil, err
	}
	result.Demoted = dedupResult.Demoted

	a.logger.WithFields(map[string]interface{}{
		"userId":   userID,
		"query":    query,
		"listings": result.Listings,
		"newLinks": result.NewLinks,
		"demoted":  result.Demoted,
	}).Info("Discovery run finished")

	return result, nil
}

// searchSource queries one board through its circuit breaker with retries.
// All failures surface as an empty slice.
func (a *Aggregator) searchSource(ctx context.Context, src Searcher, userID int64, query string) []*models.JobListing {
	var listings []*models.JobListing

	err := a.breakers[src.Name()].Execute(ctx, func(ctx context.Context) error {
		return retry.WithExponentialBackoff(ctx, a.retryCfg, func(ctx context.Context, attempt int) error {
			found, err := src.Search(ctx, userID, query)
			if err != nil {
				return err
			}
			listings = found
			return nil
		})
	})
	if err != nil {
		a.logger.WithError(err).WithFields(map[string]interface{}{
			"source": src.Name(),
			"userId": userID,
		}).Warn("Discovery source failed, continuing without it")
		return nil
	}

	return listings
}

// priorityFor derives the advisory link priority from the listing's match
// score, defaulting to 1.0 when unscored.
func priorityFor(listing *models.JobListing) float64 {
	if listing.MatchScore != nil && *listing.MatchScore > 0 {
		return *listing.MatchScore
	}
	return 1.0
}
