package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalScanner/internal/domain"
	"SignalScanner/internal/ports"
	"SignalScanner/internal/telemetry"
)

type fakeSource struct {
	batch domain.Batch
	err   error
	names []string
}

func (f *fakeSource) Collect(_ context.Context, names []string) (domain.Batch, error) {
	f.names = names
	return f.batch, f.err
}

type fakeRepo struct {
	ports.ItemRepository

	mu        sync.Mutex
	upserted  []domain.Item
	unscored  []domain.Item
	scored    []domain.Item
	top       []domain.Item
	gotMin    *float64
	gotTopK   int
	upsertErr error
}

func (f *fakeRepo) Upsert(_ context.Context, items []domain.Item) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	f.upserted = append(f.upserted, items...)
	return len(items), nil
}

func (f *fakeRepo) FetchUnscored(_ context.Context, limit int) ([]domain.Item, error) {
	if len(f.unscored) > limit {
		return f.unscored[:limit], nil
	}
	return f.unscored, nil
}

func (f *fakeRepo) UpdateScores(_ context.Context, items []domain.Item) (int, error) {
	f.scored = append(f.scored, items...)
	return len(items), nil
}

func (f *fakeRepo) TopItems(_ context.Context, limit int, minScore *float64) ([]domain.Item, error) {
	f.gotTopK = limit
	f.gotMin = minScore
	return f.top, nil
}

type tagEnricher struct{}

func (tagEnricher) EnrichAll(items []domain.Item) []domain.Item {
	out := make([]domain.Item, len(items))
	for i, it := range items {
		it.Metrics.EnrichMethod = "regex"
		out[i] = it
	}
	return out
}

type constScorer struct{ score float64 }

func (c constScorer) ScoreAll(items []domain.Item) []domain.Item {
	out := make([]domain.Item, len(items))
	for i, it := range items {
		s := c.score
		it.Score = &s
		out[i] = it
	}
	return out
}

type recordingSender struct {
	sent [][]domain.Item
	err  error
}

func (r *recordingSender) Channel() string { return "test" }

func (r *recordingSender) Send(_ context.Context, items []domain.Item) error {
	r.sent = append(r.sent, items)
	return r.err
}

func newItem(src domain.Source, title string) domain.Item {
	return domain.NewItem(src, "https://example.com/"+title, title)
}

func TestIngestEnrichesAndUpsertsDespiteSourceFailures(t *testing.T) {
	src := &fakeSource{batch: domain.Batch{
		Items:     []domain.Item{newItem(domain.SourceHN, "a"), newItem(domain.SourceHN, "b")},
		PerSource: map[string]int{"hn": 2},
		Failures:  []domain.SourceFailure{{Source: "reddit", Err: errors.New("503")}},
	}}
	repo := &fakeRepo{}
	m := telemetry.New(nil)
	p := NewPipeline(PipelineDeps{Source: src, Repository: repo, Enricher: tagEnricher{}, Metrics: m})

	n, batch, err := p.Ingest(context.Background(), []string{"hn", "reddit"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, batch.Failures, 1)
	assert.Equal(t, []string{"hn", "reddit"}, src.names)
	require.Len(t, repo.upserted, 2)
	assert.Equal(t, "regex", repo.upserted[0].Metrics.EnrichMethod)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ItemsFetched.WithLabelValues("hn")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StageErrors.WithLabelValues(telemetry.StageCollect, "reddit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ItemsUpserted))
}

func TestIngestReturnsPersistenceFailure(t *testing.T) {
	boom := errors.New("disk full")
	p := NewPipeline(PipelineDeps{
		Source:     &fakeSource{batch: domain.Batch{Items: []domain.Item{newItem(domain.SourceHN, "a")}}},
		Repository: &fakeRepo{upsertErr: boom},
	})

	_, _, err := p.Ingest(context.Background(), []string{"hn"})
	assert.ErrorIs(t, err, boom)
}

func TestScoreWritesBack(t *testing.T) {
	repo := &fakeRepo{unscored: []domain.Item{newItem(domain.SourceHN, "a"), newItem(domain.SourceHN, "b"), newItem(domain.SourceHN, "c")}}
	p := NewPipeline(PipelineDeps{Repository: repo, Scorer: constScorer{0.4}})

	n, err := p.Score(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, repo.scored, 2)
	assert.Equal(t, 0.4, *repo.scored[0].Score)

	n, err = NewPipeline(PipelineDeps{Repository: &fakeRepo{}, Scorer: constScorer{1}}).Score(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestAlertUsesThresholdAndTopK(t *testing.T) {
	repo := &fakeRepo{top: []domain.Item{newItem(domain.SourceHN, "a")}}
	sender := &recordingSender{}
	p := NewPipeline(PipelineDeps{Repository: repo, Sender: sender})

	n, err := p.Alert(context.Background(), 0.65, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 10, repo.gotTopK)
	require.NotNil(t, repo.gotMin)
	assert.Equal(t, 0.65, *repo.gotMin)
	assert.Len(t, sender.sent, 1)

	repo.top = nil
	n, err = p.Alert(context.Background(), 0.99, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, sender.sent, 1, "empty result sends nothing")
}

func TestRunCycle(t *testing.T) {
	repo := &fakeRepo{
		unscored: []domain.Item{newItem(domain.SourceX, "u")},
		top:      []domain.Item{newItem(domain.SourceX, "u")},
	}
	sender := &recordingSender{}
	m := telemetry.New(nil)
	p := NewPipeline(PipelineDeps{
		Source:     &fakeSource{batch: domain.Batch{Items: []domain.Item{newItem(domain.SourceX, "u")}, PerSource: map[string]int{"x_mock": 1}}},
		Repository: repo,
		Scorer:     constScorer{0.8},
		Sender:     sender,
		Metrics:    m,
	})

	report, err := p.RunCycle(context.Background(), CycleOptions{Sources: []string{"x"}, MinScore: 0.5, TopK: 5})
	require.NoError(t, err)
	assert.Equal(t, CycleReport{Fetched: 1, Upserted: 1, Scored: 1, Alerted: 1}, report)
	assert.Equal(t, 1, testutil.CollectAndCount(m.CycleDuration))

	sender.err = errors.New("telegram down")
	_, err = p.RunCycle(context.Background(), CycleOptions{Sources: []string{"x"}})
	assert.ErrorContains(t, err, "telegram down")
}

type manualDriver struct {
	job func(context.Context, time.Time)
}

func (d *manualDriver) Start(_ context.Context, job func(context.Context, time.Time)) error {
	d.job = job
	return nil
}

func (d *manualDriver) Stop(context.Context) error { return nil }

func TestSchedulerContinuesAfterFailedCycle(t *testing.T) {
	src := &fakeSource{err: errors.New("registry missing")}
	repo := &fakeRepo{}
	p := NewPipeline(PipelineDeps{Source: src, Repository: repo, Scorer: constScorer{1}})
	driver := &manualDriver{}
	s := NewScheduler(driver, p, CycleOptions{Sources: []string{"hn"}}, nil)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	require.NotNil(t, driver.job)

	driver.job(ctx, time.Now())
	assert.Empty(t, repo.upserted)

	src.err = nil
	src.batch = domain.Batch{Items: []domain.Item{newItem(domain.SourceHN, "later")}}
	driver.job(ctx, time.Now())
	assert.Len(t, repo.upserted, 1)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	driver.job(cancelled, time.Now())
	assert.Len(t, repo.upserted, 1, "cancelled context skips the cycle")
	require.NoError(t, s.Stop(ctx))
}
