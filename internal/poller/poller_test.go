package poller

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"sellerbot/internal/marketplace"
	"sellerbot/internal/novelty"
	logx "sellerbot/pkg/logx"
)

type fakeClient struct {
	mu sync.Mutex

	sales    []marketplace.Sale
	salesErr error
	salesTry int
	lastFrom time.Time

	reviews     []marketplace.Review
	reviewsErr  error
	questions   []marketplace.Question
	questionErr error
}

func (f *fakeClient) Sales(_ context.Context, from time.Time) ([]marketplace.Sale, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.salesTry++
	f.lastFrom = from
	if f.salesErr != nil {
		return nil, f.salesErr
	}
	return f.sales, nil
}

func (f *fakeClient) Reviews(_ context.Context, take, skip int) ([]marketplace.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reviewsErr != nil {
		return nil, f.reviewsErr
	}
	return f.reviews, nil
}

func (f *fakeClient) Questions(_ context.Context, take, skip int) ([]marketplace.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.questionErr != nil {
		return nil, f.questionErr
	}
	return f.questions, nil
}

type recordingBroadcaster struct {
	mu    sync.Mutex
	calls []broadcastCall
}

type broadcastCall struct {
	kind marketplace.Kind
	text string
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, kind marketplace.Kind, text string) (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, broadcastCall{kind: kind, text: text})
	return 1, 0
}

func (b *recordingBroadcaster) recorded() []broadcastCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]broadcastCall(nil), b.calls...)
}

func newTestPoller(cfg Config, client Client, bc Broadcaster) (*Poller, *novelty.Tracker) {
	tracker := novelty.NewTracker()
	return New(cfg, client, tracker, bc, logx.Nop()), tracker
}

func TestFeedbackCycleBroadcastsOnlyNew(t *testing.T) {
	t.Parallel()
	client := &fakeClient{
		reviews: []marketplace.Review{
			{ID: "r1", Text: "good"},
			{ID: "r2", Text: "bad"},
		},
		questions: []marketplace.Question{{ID: "q1", Text: "size?"}},
	}
	bc := &recordingBroadcaster{}
	p, _ := newTestPoller(Config{}, client, bc)

	p.RunFeedbackCycle(context.Background())
	if got := bc.recorded(); len(got) != 3 {
		t.Fatalf("first cycle broadcast %d events, want 3: %v", len(got), got)
	}

	// Same remote state: nothing is new, nothing goes out.
	p.RunFeedbackCycle(context.Background())
	if got := bc.recorded(); len(got) != 3 {
		t.Fatalf("second cycle re-broadcast: %v", got)
	}

	// One review answered, one appeared: exactly the new one goes out.
	client.mu.Lock()
	client.reviews = []marketplace.Review{
		{ID: "r2", Text: "bad"},
		{ID: "r3", Text: "new"},
	}
	client.mu.Unlock()

	p.RunFeedbackCycle(context.Background())
	got := bc.recorded()
	if len(got) != 4 {
		t.Fatalf("third cycle: %v", got)
	}
	last := got[3]
	if last.kind != marketplace.KindReview || !strings.Contains(last.text, "new") {
		t.Fatalf("third cycle delivered %+v", last)
	}
}

func TestFeedbackCycleIsolatesFailures(t *testing.T) {
	t.Parallel()
	client := &fakeClient{
		reviewsErr: fmt.Errorf("%w: http 500", marketplace.ErrUnavailable),
		questions:  []marketplace.Question{{ID: "q1", Text: "when?"}},
	}
	bc := &recordingBroadcaster{}
	p, _ := newTestPoller(Config{}, client, bc)

	p.RunFeedbackCycle(context.Background())

	got := bc.recorded()
	if len(got) != 1 || got[0].kind != marketplace.KindQuestion {
		t.Fatalf("broadcasts = %v, want only the question", got)
	}
}

func TestSalesCycleAdvancesWindowOnSuccess(t *testing.T) {
	t.Parallel()
	client := &fakeClient{sales: []marketplace.Sale{{SaleID: "S1", ForPay: 500}}}
	bc := &recordingBroadcaster{}
	p, tracker := newTestPoller(Config{SalesEvery: 10 * time.Minute}, client, bc)

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return t0 }

	p.RunSalesCycle(context.Background())

	// First cycle covers one cadence back from now.
	if want := t0.Add(-10 * time.Minute); !client.lastFrom.Equal(want) {
		t.Fatalf("dateFrom = %v, want %v", client.lastFrom, want)
	}
	if cur, ok := tracker.Window(marketplace.KindSale); !ok || !cur.Equal(t0) {
		t.Fatalf("cursor = %v ok=%v, want %v", cur, ok, t0)
	}
	if got := bc.recorded(); len(got) != 1 || got[0].kind != marketplace.KindSale {
		t.Fatalf("broadcasts = %v", got)
	}

	// Next cycle starts where the previous one ended.
	t1 := t0.Add(10 * time.Minute)
	p.now = func() time.Time { return t1 }
	p.RunSalesCycle(context.Background())
	if !client.lastFrom.Equal(t0) {
		t.Fatalf("second dateFrom = %v, want %v", client.lastFrom, t0)
	}
}

func TestSalesCycleKeepsCursorOnFailure(t *testing.T) {
	t.Parallel()
	client := &fakeClient{salesErr: fmt.Errorf("%w: http 503", marketplace.ErrUnavailable)}
	bc := &recordingBroadcaster{}
	p, tracker := newTestPoller(Config{SalesEvery: 10 * time.Minute}, client, bc)

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker.AdvanceWindow(marketplace.KindSale, t0)
	p.now = func() time.Time { return t0.Add(10 * time.Minute) }

	p.RunSalesCycle(context.Background())

	if cur, _ := tracker.Window(marketplace.KindSale); !cur.Equal(t0) {
		t.Fatalf("cursor moved to %v after failed cycle", cur)
	}
	if got := bc.recorded(); len(got) != 0 {
		t.Fatalf("failed cycle broadcast %v", got)
	}
}

func TestSalesCycleQuietWhenEmpty(t *testing.T) {
	t.Parallel()
	client := &fakeClient{}
	bc := &recordingBroadcaster{}
	p, tracker := newTestPoller(Config{SalesEvery: time.Minute}, client, bc)

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return t0 }
	p.RunSalesCycle(context.Background())

	if got := bc.recorded(); len(got) != 0 {
		t.Fatalf("empty window broadcast %v", got)
	}
	// The window still advances: an empty range is covered, not pending.
	if cur, ok := tracker.Window(marketplace.KindSale); !ok || !cur.Equal(t0) {
		t.Fatalf("cursor = %v ok=%v", cur, ok)
	}
}

func TestWithRetryRecoversTransientFailure(t *testing.T) {
	t.Parallel()
	client := &fakeClient{sales: []marketplace.Sale{{SaleID: "S1"}}}
	bc := &recordingBroadcaster{}
	p, _ := newTestPoller(Config{RetryMax: 2}, client, bc)

	client.salesErr = fmt.Errorf("%w: timeout", marketplace.ErrUnavailable)
	go func() {
		// Let the first attempt fail, then heal the remote.
		time.Sleep(500 * time.Millisecond)
		client.mu.Lock()
		client.salesErr = nil
		client.mu.Unlock()
	}()

	p.RunSalesCycle(context.Background())

	client.mu.Lock()
	tries := client.salesTry
	client.mu.Unlock()
	if tries < 2 {
		t.Fatalf("salesTry = %d, want at least one retry", tries)
	}
	if got := bc.recorded(); len(got) != 1 {
		t.Fatalf("broadcasts = %v", got)
	}
}

func TestRetriesDisabledMeansSingleAttempt(t *testing.T) {
	t.Parallel()
	client := &fakeClient{salesErr: fmt.Errorf("%w: timeout", marketplace.ErrUnavailable)}
	bc := &recordingBroadcaster{}
	p, _ := newTestPoller(Config{RetryMax: 0}, client, bc)

	p.RunSalesCycle(context.Background())

	client.mu.Lock()
	tries := client.salesTry
	client.mu.Unlock()
	if tries != 1 {
		t.Fatalf("salesTry = %d, want exactly one attempt with retries disabled", tries)
	}
}

func TestWithRetryStopsOnRejected(t *testing.T) {
	t.Parallel()
	client := &fakeClient{salesErr: fmt.Errorf("%w: http 401", marketplace.ErrRejected)}
	bc := &recordingBroadcaster{}
	p, _ := newTestPoller(Config{RetryMax: 5}, client, bc)

	p.RunSalesCycle(context.Background())

	client.mu.Lock()
	tries := client.salesTry
	client.mu.Unlock()
	if tries != 1 {
		t.Fatalf("salesTry = %d, rejected request must not be retried", tries)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	t.Parallel()
	client := &fakeClient{}
	bc := &recordingBroadcaster{}
	p, _ := newTestPoller(Config{SalesEvery: time.Hour, FeedbackEvery: time.Hour}, client, bc)

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Second Start is a no-op.
	if err := p.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}

	sctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	p.Stop(sctx)
	// Stop after Stop is safe.
	p.Stop(sctx)
}
