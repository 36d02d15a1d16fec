package dedup

import (
	"context"
	"errors"
	"testing"

	"github.com/gildigital/aijobapply/internal/logging"
	"github.com/gildigital/aijobapply/internal/models"
)

type mockLinkStore struct {
	links       []*models.JobLink
	listErr     error
	demoteErr   error
	demoteCalls [][]int64
}

func (m *mockLinkStore) ListByUser(ctx context.Context, userID int64) ([]*models.JobLink, error) {
	return m.links, m.listErr
}

func (m *mockLinkStore) DemotePriorities(ctx context.Context, ids []int64) error {
	if m.demoteErr != nil {
		return m.demoteErr
	}
	m.demoteCalls = append(m.demoteCalls, ids)
	for _, link := range m.links {
		for _, id := range ids {
			if link.ID == id {
				link.Priority = 0
			}
		}
	}
	return nil
}

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.LevelError, logging.FormatText)
}

func link(id int64, url string, priority float64) *models.JobLink {
	return &models.JobLink{ID: id, UserID: 1, URL: url, Priority: priority}
}

func TestRun_ClustersNearDuplicates(t *testing.T) {
	// Same posting republished under two hosts with one extra slug token:
	// 6 shared tokens of 7 total, similarity ~0.857.
	store := &mockLinkStore{links: []*models.JobLink{
		link(10, "https://boards.example.com/jobs/senior-backend-engineer-remote-new-york", 1.0),
		link(11, "https://jobs.other.com/view/senior-backend-engineer-remote-new-york-usa", 1.0),
		link(12, "https://careers.example.com/jobs/junior-data-analyst-chicago", 1.0),
	}}

	d := New(store, 0.8, 3, testLogger())
	result, err := d.Run(context.Background(), 1)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Links != 3 {
		t.Errorf("Expected 3 links, got %d", result.Links)
	}
	if result.Clusters != 1 {
		t.Errorf("Expected 1 cluster, got %d", result.Clusters)
	}
	if result.Demoted != 1 {
		t.Errorf("Expected 1 demotion, got %d", result.Demoted)
	}

	if len(store.demoteCalls) != 1 {
		t.Fatalf("Expected exactly one demote call, got %d", len(store.demoteCalls))
	}
	if len(store.demoteCalls[0]) != 1 || store.demoteCalls[0][0] != 11 {
		t.Errorf("Expected demotion of id 11 (canonical is lowest id 10), got %v", store.demoteCalls[0])
	}
}

func TestRun_Transitivity(t *testing.T) {
	// A~B and B~C cluster all three even if A and C alone fall below the
	// threshold.
	store := &mockLinkStore{links: []*models.JobLink{
		link(1, "https://a.example.com/jobs/senior-backend-engineer-remote-new-york-usa", 1.0),
		link(2, "https://b.example.com/jobs/senior-backend-engineer-remote-new-york", 1.0),
		link(3, "https://c.example.com/jobs/senior-backend-engineer-remote-new-austin", 1.0),
	}}

	d := New(store, 0.65, 3, testLogger())
	result, err := d.Run(context.Background(), 1)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Clusters != 1 {
		t.Errorf("Expected 1 transitive cluster, got %d", result.Clusters)
	}
	if result.Demoted != 2 {
		t.Errorf("Expected ids 2 and 3 demoted, got %d demotions", result.Demoted)
	}
}

func TestRun_Idempotent(t *testing.T) {
	store := &mockLinkStore{links: []*models.JobLink{
		link(10, "https://a.example.com/jobs/senior-backend-engineer-remote-new-york", 1.0),
		link(11, "https://b.example.com/jobs/senior-backend-engineer-remote-new-york", 1.0),
	}}

	d := New(store, 0.8, 3, testLogger())

	first, err := d.Run(context.Background(), 1)
	if err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	if first.Demoted != 1 {
		t.Fatalf("Expected 1 demotion on first run, got %d", first.Demoted)
	}

	second, err := d.Run(context.Background(), 1)
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if second.Demoted != 0 {
		t.Errorf("Second run should demote nothing, got %d", second.Demoted)
	}
	if len(store.demoteCalls) != 1 {
		t.Errorf("Second run should not write at all, got %d demote calls", len(store.demoteCalls))
	}
}

func TestRun_BelowThresholdStaysApart(t *testing.T) {
	store := &mockLinkStore{links: []*models.JobLink{
		link(1, "https://a.example.com/jobs/senior-backend-engineer", 1.0),
		link(2, "https://b.example.com/jobs/senior-frontend-designer", 1.0),
	}}

	d := New(store, 0.8, 3, testLogger())
	result, err := d.Run(context.Background(), 1)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Clusters != 0 || result.Demoted != 0 {
		t.Errorf("Dissimilar links should not cluster: %+v", result)
	}
}

func TestRun_SluglessLinksNeverCluster(t *testing.T) {
	store := &mockLinkStore{links: []*models.JobLink{
		link(1, "https://a.example.com", 1.0),
		link(2, "https://b.example.com", 1.0),
	}}

	d := New(store, 0.8, 3, testLogger())
	result, err := d.Run(context.Background(), 1)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Demoted != 0 {
		t.Errorf("Slug-less links must not cluster, got %d demotions", result.Demoted)
	}
}

func TestRun_PersistenceErrorAborts(t *testing.T) {
	store := &mockLinkStore{
		links: []*models.JobLink{
			link(10, "https://a.example.com/jobs/senior-backend-engineer-remote", 1.0),
			link(11, "https://b.example.com/jobs/senior-backend-engineer-remote", 1.0),
		},
		demoteErr: errors.New("connection reset"),
	}

	d := New(store, 0.8, 3, testLogger())
	if _, err := d.Run(context.Background(), 1); err == nil {
		t.Fatal("Expected error when priority rewrite fails")
	}

	// Nothing was demoted in memory either
	for _, l := range store.links {
		if l.Priority == 0 {
			t.Errorf("Link %d should keep its priority after aborted run", l.ID)
		}
	}
}

func TestRun_EmptyInput(t *testing.T) {
	store := &mockLinkStore{}

	d := New(store, 0.8, 3, testLogger())
	result, err := d.Run(context.Background(), 1)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Links != 0 || result.Demoted != 0 || result.Clusters != 0 {
		t.Errorf("Empty input should produce an empty result: %+v", result)
	}
}
