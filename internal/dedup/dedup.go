package dedup

import (
	"context"
	"sort"

	apperrors "github.com/gildigital/aijobapply/internal/errors"
	"github.com/gildigital/aijobapply/internal/logging"
	"github.com/gildigital/aijobapply/internal/models"
)

// LinkStore is the persistence surface the deduplicator needs.
type LinkStore interface {
	ListByUser(ctx context.Context, userID int64) ([]*models.JobLink, error)
	DemotePriorities(ctx context.Context, ids []int64) error
}

// Deduplicator clusters a user's discovered postings by slug-token Jaccard
// similarity and demotes every non-canonical cluster member's priority to 0.
// Rows are never deleted. A run is idempotent given unchanged input: the
// canonical member is always the cluster's lowest id, and already-demoted
// links are not rewritten again.
type Deduplicator struct {
	store     LinkStore
	threshold float64
	minToken  int
	logger    *logging.Logger
}

// Result summarizes one clustering run.
type Result struct {
	Links    int `json:"links"`
	Clusters int `json:"clusters"`
	Demoted  int `json:"demoted"`
}

// New creates a deduplicator. threshold is the minimum Jaccard similarity
// for two slugs to be considered the same job; minToken is the shortest
// slug token kept.
func New(store LinkStore, threshold float64, minToken int, logger *logging.Logger) *Deduplicator {
	return &Deduplicator{
		store:     store,
		threshold: threshold,
		minToken:  minToken,
		logger:    logger,
	}
}

// Run clusters all of a user's links and persists the priority demotions in
// a single atomic operation. A persistence error aborts the run with nothing
// written.
func (d *Deduplicator) Run(ctx context.Context, userID int64) (*Result, error) {
	links, err := d.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.NewDedupError("load links", err)
	}

	demoted, clusters := d.Cluster(links)

	if len(demoted) > 0 {
		if err := d.store.DemotePriorities(ctx, demoted); err != nil {
			return nil, apperrors.NewDedupError("priority rewrite", err)
		}
	}

	result := &Result{
		Links:    len(links),
		Clusters: clusters,
		Demoted:  len(demoted),
	}

	d.logger.WithFields(map[string]interface{}{
		"userId":   userID,
		"links":    result.Links,
		"clusters": result.Clusters,
		"demoted":  result.Demoted,
	}).Info("Deduplication run finished")

	return result, nil
}

// Cluster computes the ids whose priority should be rewritten to 0: every
// member of a multi-link cluster except the lowest id, excluding links that
// are already demoted. It performs no persistence. The second return value
// is the number of clusters with more than one member.
func (d *Deduplicator) Cluster(links []*models.JobLink) ([]int64, int) {
	// Token sets per link; slug-less links never cluster.
	tokens := make([]map[string]struct{}, len(links))
	for i, link := range links {
		tokens[i] = Tokenize(ExtractSlug(link.URL), d.minToken)
	}

	// Inverted index: token -> link positions. Candidate pairs share at
	// least one token, bounding comparison to O(n * avg bucket) instead of
	// O(n^2).
	buckets := make(map[string][]int)
	for i, set := range tokens {
		for tok := range set {
			buckets[tok] = append(buckets[tok], i)
		}
	}

	uf := NewUnionFind(len(links))
	for _, link := range links {
		uf.Add(link.ID)
	}

	type pair struct{ a, b int }
	compared := make(map[pair]struct{})

	for i := range links {
		for tok := range tokens[i] {
			for _, j := range buckets[tok] {
				if j <= i {
					continue
				}
				p := pair{i, j}
				if _, seen := compared[p]; seen {
					continue
				}
				compared[p] = struct{}{}

				if Jaccard(tokens[i], tokens[j]) >= d.threshold {
					uf.Union(links[i].ID, links[j].ID)
				}
			}
		}
	}

	priorities := make(map[int64]float64, len(links))
	for _, link := range links {
		priorities[link.ID] = link.Priority
	}

	var demoted []int64
	clusters := 0
	for canonical, members := range uf.Clusters() {
		if len(members) < 2 {
			continue
		}
		clusters++
		for _, id := range members {
			if id != canonical && priorities[id] != 0 {
				demoted = append(demoted, id)
			}
		}
	}

	// Stable output order keeps runs deterministic.
	sort.Slice(demoted, func(i, j int) bool { return demoted[i] < demoted[j] })
	return demoted, clusters
}
