package extract

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jaffleworks/shop-etl/pkg/source"
)

var testEndpoint = source.Endpoint{
	Name:       "orders",
	Path:       "/orders",
	PrimaryKey: "id",
	MaxPages:   10,
}

// pageRecorder wraps a fetcher and records every requested page.
type pageRecorder struct {
	mu    sync.Mutex
	pages []int
	fn    FetcherFunc
}

func (r *pageRecorder) FetchPage(ctx context.Context, ep source.Endpoint, page int) ([]source.Record, error) {
	r.mu.Lock()
	r.pages = append(r.pages, page)
	r.mu.Unlock()
	return r.fn(ctx, ep, page)
}

func (r *pageRecorder) requested() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	pages := make([]int, len(r.pages))
	copy(pages, r.pages)
	sort.Ints(pages)
	return pages
}

// pageOfRecords builds n records for a page.
func pageOfRecords(page, n int) []source.Record {
	records := make([]source.Record, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, source.Record{"id": fmt.Sprintf("%d-%d", page, i)})
	}
	return records
}

// drain consumes the run and returns all chunks.
func drain(t *testing.T, run *Run) []Chunk {
	t.Helper()
	var chunks []Chunk
	for c := range run.Chunks() {
		chunks = append(chunks, c)
	}
	return chunks
}

func TestNewEngine_RequiresFetcher(t *testing.T) {
	if _, err := NewEngine(nil, DefaultConfig()); err == nil {
		t.Fatal("expected error for nil fetcher")
	}
}

func TestExtract_PagePartitioning(t *testing.T) {
	recorder := &pageRecorder{
		fn: func(_ context.Context, _ source.Endpoint, page int) ([]source.Record, error) {
			return pageOfRecords(page, 1), nil
		},
	}

	engine, err := NewEngine(recorder, Config{
		BatchSize:           10,
		Concurrency:         4,
		ChunkThreshold:      10000,
		EmptyBatchThreshold: 3,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	ep := source.Endpoint{Name: "orders", Path: "/orders", PrimaryKey: "id", MaxPages: 47}
	run := engine.Extract(context.Background(), ep, 3)
	drain(t, run)

	if err := run.Err(); err != nil {
		t.Fatalf("run error: %v", err)
	}

	pages := recorder.requested()
	want := make([]int, 0, 45)
	for p := 3; p <= 47; p++ {
		want = append(want, p)
	}
	if len(pages) != len(want) {
		t.Fatalf("scheduled %d pages, want %d", len(pages), len(want))
	}
	for i, p := range pages {
		if p != want[i] {
			t.Fatalf("scheduled pages = %v, want each of 3..47 exactly once", pages)
		}
	}

	stats := run.Stats()
	if stats.PagesScheduled != 45 {
		t.Errorf("PagesScheduled = %d, want 45", stats.PagesScheduled)
	}
	if stats.NextPage != 48 {
		t.Errorf("NextPage = %d, want 48", stats.NextPage)
	}
}

func TestExtract_ChunkSizesAndCompleteness(t *testing.T) {
	fetcher := FetcherFunc(func(_ context.Context, _ source.Endpoint, page int) ([]source.Record, error) {
		return pageOfRecords(page, 50), nil
	})

	engine, err := NewEngine(fetcher, Config{
		BatchSize:           5,
		Concurrency:         8,
		ChunkThreshold:      200,
		EmptyBatchThreshold: 3,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	run := engine.Extract(context.Background(), testEndpoint, 1)
	chunks := drain(t, run)

	if err := run.Err(); err != nil {
		t.Fatalf("run error: %v", err)
	}

	// 10 pages x 50 records with threshold 200: two full chunks plus a
	// short final one.
	total := 0
	for i, c := range chunks {
		total += len(c)
		if i < len(chunks)-1 && len(c) != 200 {
			t.Errorf("chunk %d has %d records, want exactly 200", i, len(c))
		}
		if len(c) > 200 {
			t.Errorf("chunk %d has %d records, exceeds threshold 200", i, len(c))
		}
	}
	if total != 500 {
		t.Errorf("total records across chunks = %d, want 500", total)
	}
	if len(chunks) != 3 {
		t.Errorf("emitted %d chunks, want 3", len(chunks))
	}

	stats := run.Stats()
	if stats.Records != 500 {
		t.Errorf("Stats.Records = %d, want 500", stats.Records)
	}
	if stats.Chunks != 3 {
		t.Errorf("Stats.Chunks = %d, want 3", stats.Chunks)
	}
	if stats.EndOfData {
		t.Error("EndOfData = true, want false (stopped at max pages)")
	}
}

func TestExtract_EmptyRunTermination(t *testing.T) {
	recorder := &pageRecorder{
		fn: func(context.Context, source.Endpoint, int) ([]source.Record, error) {
			return nil, nil
		},
	}

	engine, err := NewEngine(recorder, Config{
		BatchSize:           1,
		Concurrency:         2,
		ChunkThreshold:      100,
		EmptyBatchThreshold: 3,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	run := engine.Extract(context.Background(), testEndpoint, 1)
	chunks := drain(t, run)

	if err := run.Err(); err != nil {
		t.Fatalf("run error: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("emitted %d chunks, want 0", len(chunks))
	}

	pages := recorder.requested()
	if len(pages) != 3 {
		t.Fatalf("scheduled pages %v, want exactly 1..3", pages)
	}

	stats := run.Stats()
	if !stats.EndOfData {
		t.Error("EndOfData = false, want true")
	}
	if stats.NextPage != 4 {
		t.Errorf("NextPage = %d, want 4", stats.NextPage)
	}
	if stats.Records != 0 {
		t.Errorf("Records = %d, want 0", stats.Records)
	}
}

func TestExtract_NonEmptyBatchResetsCounter(t *testing.T) {
	// With batchSize 1 and threshold 3: pages 1,2 empty, page 3 has
	// data, pages 4..6 empty again. The run must survive past page 2
	// and stop only after page 6.
	data := map[int]int{3: 5}
	recorder := &pageRecorder{
		fn: func(_ context.Context, _ source.Endpoint, page int) ([]source.Record, error) {
			return pageOfRecords(page, data[page]), nil
		},
	}

	engine, err := NewEngine(recorder, Config{
		BatchSize:           1,
		Concurrency:         2,
		ChunkThreshold:      100,
		EmptyBatchThreshold: 3,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	ep := source.Endpoint{Name: "orders", Path: "/orders", PrimaryKey: "id", MaxPages: 20}
	run := engine.Extract(context.Background(), ep, 1)
	drain(t, run)

	if err := run.Err(); err != nil {
		t.Fatalf("run error: %v", err)
	}

	stats := run.Stats()
	if stats.NextPage != 7 {
		t.Errorf("NextPage = %d, want 7 (stop after pages 4..6 empty)", stats.NextPage)
	}
	if !stats.EndOfData {
		t.Error("EndOfData = false, want true")
	}
	if stats.Records != 5 {
		t.Errorf("Records = %d, want 5", stats.Records)
	}
}

func TestExtract_FetchFailureIsolation(t *testing.T) {
	// One page of a five-page batch fails; the other four contribute
	// records and the batch does not count as empty.
	fetcher := FetcherFunc(func(_ context.Context, _ source.Endpoint, page int) ([]source.Record, error) {
		if page == 3 {
			return nil, errors.New("boom")
		}
		return pageOfRecords(page, 10), nil
	})

	engine, err := NewEngine(fetcher, Config{
		BatchSize:           5,
		Concurrency:         5,
		ChunkThreshold:      1000,
		EmptyBatchThreshold: 3,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	ep := source.Endpoint{Name: "orders", Path: "/orders", PrimaryKey: "id", MaxPages: 5}
	run := engine.Extract(context.Background(), ep, 1)
	chunks := drain(t, run)

	if err := run.Err(); err != nil {
		t.Fatalf("fetch failure must not fail the run, got: %v", err)
	}

	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	if total != 40 {
		t.Errorf("records forwarded = %d, want 40", total)
	}

	stats := run.Stats()
	if stats.PagesFailed != 1 {
		t.Errorf("PagesFailed = %d, want 1", stats.PagesFailed)
	}
	if stats.PagesFetched != 4 {
		t.Errorf("PagesFetched = %d, want 4", stats.PagesFetched)
	}
	if stats.EndOfData {
		t.Error("EndOfData = true, want false")
	}
}

func TestExtract_AllPagesFailingLooksLikeEndOfData(t *testing.T) {
	// A full outage yields a "successful" empty run; PagesFailed is the
	// only signal distinguishing it from real end-of-data.
	fetcher := FetcherFunc(func(context.Context, source.Endpoint, int) ([]source.Record, error) {
		return nil, errors.New("connection refused")
	})

	engine, err := NewEngine(fetcher, Config{
		BatchSize:           2,
		Concurrency:         2,
		ChunkThreshold:      100,
		EmptyBatchThreshold: 3,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	run := engine.Extract(context.Background(), testEndpoint, 1)
	chunks := drain(t, run)

	if err := run.Err(); err != nil {
		t.Fatalf("run error: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("emitted %d chunks, want 0", len(chunks))
	}

	stats := run.Stats()
	if !stats.EndOfData {
		t.Error("EndOfData = false, want true")
	}
	if stats.PagesFailed != 6 {
		t.Errorf("PagesFailed = %d, want 6 (three two-page batches)", stats.PagesFailed)
	}
	if stats.PagesFetched != 0 {
		t.Errorf("PagesFetched = %d, want 0", stats.PagesFetched)
	}
}

func TestExtract_StartPageBeyondMaxPages(t *testing.T) {
	calls := 0
	fetcher := FetcherFunc(func(context.Context, source.Endpoint, int) ([]source.Record, error) {
		calls++
		return nil, nil
	})

	engine, err := NewEngine(fetcher, DefaultConfig())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	run := engine.Extract(context.Background(), testEndpoint, 11)
	chunks := drain(t, run)

	if err := run.Err(); err != nil {
		t.Fatalf("run error: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("emitted %d chunks, want 0", len(chunks))
	}
	if calls != 0 {
		t.Errorf("fetcher called %d times, want 0", calls)
	}
	if got := run.Stats().NextPage; got != 11 {
		t.Errorf("NextPage = %d, want 11", got)
	}
}

func TestExtract_CancellationStopsAtBatchBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	fetcher := FetcherFunc(func(_ context.Context, _ source.Endpoint, page int) ([]source.Record, error) {
		return pageOfRecords(page, 1), nil
	})

	engine, err := NewEngine(fetcher, Config{
		BatchSize:           1,
		Concurrency:         1,
		ChunkThreshold:      1,
		EmptyBatchThreshold: 3,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	ep := source.Endpoint{Name: "orders", Path: "/orders", PrimaryKey: "id", MaxPages: 100000}
	run := engine.Extract(ctx, ep, 1)

	// Take one chunk, then cancel and drain.
	select {
	case <-run.Chunks():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for first chunk")
	}
	cancel()
	for range run.Chunks() {
	}

	if err := run.Err(); !errors.Is(err, context.Canceled) {
		t.Errorf("run error = %v, want context.Canceled", err)
	}

	// The resume point covers only fully joined batches: every page
	// before NextPage must actually have been fetched.
	stats := run.Stats()
	if stats.NextPage-1 > stats.PagesFetched {
		t.Errorf("NextPage = %d with only %d pages fetched; resume point ran past fetched pages",
			stats.NextPage, stats.PagesFetched)
	}
}

func TestExtract_CancelledBatchDoesNotAdvanceResumePoint(t *testing.T) {
	// Cancellation lands while page 3 of a five-page batch is in
	// flight: pages 4 and 5 are skipped, so the batch never joins
	// completely. The resume point must stay at the batch start and
	// the observer must not record the batch as done, or a resumed run
	// would silently skip the unfetched pages.
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	var fetched []int
	var observed []int

	fetcher := FetcherFunc(func(_ context.Context, _ source.Endpoint, page int) ([]source.Record, error) {
		mu.Lock()
		fetched = append(fetched, page)
		mu.Unlock()
		if page == 3 {
			cancel()
		}
		return pageOfRecords(page, 2), nil
	})

	engine, err := NewEngine(fetcher, Config{
		BatchSize:           5,
		Concurrency:         1,
		ChunkThreshold:      1000,
		EmptyBatchThreshold: 3,
		BatchObserver: func(_ string, lastCompletedPage int) {
			mu.Lock()
			observed = append(observed, lastCompletedPage)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	run := engine.Extract(ctx, testEndpoint, 1)
	drain(t, run)

	if err := run.Err(); !errors.Is(err, context.Canceled) {
		t.Fatalf("run error = %v, want context.Canceled", err)
	}

	stats := run.Stats()
	if stats.NextPage != 1 {
		t.Errorf("NextPage = %d, want 1 (interrupted batch must be refetched)", stats.NextPage)
	}
	if stats.PagesFetched != 3 {
		t.Errorf("PagesFetched = %d, want 3", stats.PagesFetched)
	}
	if stats.PagesCancelled != 2 {
		t.Errorf("PagesCancelled = %d, want 2", stats.PagesCancelled)
	}
	if stats.PagesFailed != 0 {
		t.Errorf("PagesFailed = %d, want 0 (skipped pages are not absorbed failures)", stats.PagesFailed)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(fetched) != 3 {
		t.Errorf("pages fetched = %v, want exactly 1..3", fetched)
	}
	if len(observed) != 0 {
		t.Errorf("observer recorded incomplete batch as done: %v", observed)
	}
}

func TestExtract_BatchObserverSeesJoinedBatches(t *testing.T) {
	var mu sync.Mutex
	var observed []int

	fetcher := FetcherFunc(func(_ context.Context, _ source.Endpoint, page int) ([]source.Record, error) {
		return pageOfRecords(page, 1), nil
	})

	engine, err := NewEngine(fetcher, Config{
		BatchSize:           10,
		Concurrency:         4,
		ChunkThreshold:      1000,
		EmptyBatchThreshold: 3,
		BatchObserver: func(endpoint string, lastCompletedPage int) {
			mu.Lock()
			observed = append(observed, lastCompletedPage)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	ep := source.Endpoint{Name: "orders", Path: "/orders", PrimaryKey: "id", MaxPages: 25}
	run := engine.Extract(context.Background(), ep, 1)
	drain(t, run)

	if err := run.Err(); err != nil {
		t.Fatalf("run error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []int{10, 20, 25}
	if len(observed) != len(want) {
		t.Fatalf("observer calls = %v, want %v", observed, want)
	}
	for i, p := range want {
		if observed[i] != p {
			t.Fatalf("observer calls = %v, want %v", observed, want)
		}
	}
}
