// Package poller drives the fetch -> classify -> dispatch cycles on fixed
// wall-clock cadences.
//
// Two independent jobs run on one cron runner: the sales window cycle and
// the reviews/questions cycle. Each job is wrapped with SkipIfStillRunning
// (a cycle never overlaps itself) and Recover (a panic is logged, the timer
// keeps its schedule). Transient remote failures are retried with capped
// backoff inside the cycle; a cycle that still fails aborts with cursors
// untouched and stays silent towards recipients.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/robfig/cron/v3"

	"sellerbot/internal/dispatch"
	"sellerbot/internal/marketplace"
	"sellerbot/internal/novelty"
	logx "sellerbot/pkg/logx"
)

// Client is the slice of the marketplace client the poller consumes.
type Client interface {
	Sales(ctx context.Context, from time.Time) ([]marketplace.Sale, error)
	Reviews(ctx context.Context, take, skip int) ([]marketplace.Review, error)
	Questions(ctx context.Context, take, skip int) ([]marketplace.Question, error)
}

// Broadcaster delivers one formatted event to all eligible recipients.
type Broadcaster interface {
	Broadcast(ctx context.Context, kind marketplace.Kind, text string) (sent, failed int)
}

type Config struct {
	SalesEvery    time.Duration // default 10m
	FeedbackEvery time.Duration // default 3m
	PageSize      int           // default 10
	RetryMax      int           // in-cycle retries for transient failures
}

type Poller struct {
	cfg     Config
	client  Client
	tracker *novelty.Tracker
	disp    Broadcaster
	log     logx.Logger

	c   *cron.Cron
	now func() time.Time
}

func New(cfg Config, client Client, tracker *novelty.Tracker, disp Broadcaster, log logx.Logger) *Poller {
	if cfg.SalesEvery <= 0 {
		cfg.SalesEvery = 10 * time.Minute
	}
	if cfg.FeedbackEvery <= 0 {
		cfg.FeedbackEvery = 3 * time.Minute
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 10
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	return &Poller{
		cfg:     cfg,
		client:  client,
		tracker: tracker,
		disp:    disp,
		log:     log,
		now:     time.Now,
	}
}

func (p *Poller) Start(ctx context.Context) error {
	if p.c != nil {
		return nil
	}
	cl := cronLogger{log: p.log}
	p.c = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cl),
		cron.Recover(cl),
	))

	if _, err := p.c.AddFunc(fmt.Sprintf("@every %s", p.cfg.FeedbackEvery), func() {
		p.RunFeedbackCycle(ctx)
	}); err != nil {
		return err
	}
	if _, err := p.c.AddFunc(fmt.Sprintf("@every %s", p.cfg.SalesEvery), func() {
		p.RunSalesCycle(ctx)
	}); err != nil {
		return err
	}

	p.c.Start()
	p.log.Info("polling scheduled",
		logx.Duration("sales_every", p.cfg.SalesEvery),
		logx.Duration("feedback_every", p.cfg.FeedbackEvery))
	return nil
}

// Stop halts the timers and waits for running cycles up to the ctx deadline.
func (p *Poller) Stop(ctx context.Context) {
	if p.c == nil {
		return
	}
	done := p.c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		p.log.Warn("poller stop deadline reached; cycle still running")
	}
	p.c = nil
}

// RunFeedbackCycle polls unanswered reviews and questions once. The two
// fetches are isolated: a failing reviews call does not block questions.
func (p *Poller) RunFeedbackCycle(ctx context.Context) {
	p.pollReviews(ctx)
	p.pollQuestions(ctx)
}

func (p *Poller) pollReviews(ctx context.Context) {
	var reviews []marketplace.Review
	err := p.withRetry(ctx, "reviews", func() error {
		var err error
		reviews, err = p.client.Reviews(ctx, p.cfg.PageSize, 0)
		return err
	})
	if err != nil {
		p.log.Warn("review poll failed", logx.Err(err))
		return
	}

	byID := make(map[string]marketplace.Review, len(reviews))
	ids := make([]string, 0, len(reviews))
	for _, r := range reviews {
		byID[r.ID] = r
		ids = append(ids, r.ID)
	}

	for _, id := range p.tracker.FilterNew(marketplace.KindReview, ids) {
		p.disp.Broadcast(ctx, marketplace.KindReview, dispatch.ReviewAlert(byID[id]))
	}
}

func (p *Poller) pollQuestions(ctx context.Context) {
	var questions []marketplace.Question
	err := p.withRetry(ctx, "questions", func() error {
		var err error
		questions, err = p.client.Questions(ctx, p.cfg.PageSize, 0)
		return err
	})
	if err != nil {
		p.log.Warn("question poll failed", logx.Err(err))
		return
	}

	byID := make(map[string]marketplace.Question, len(questions))
	ids := make([]string, 0, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
		ids = append(ids, q.ID)
	}

	for _, id := range p.tracker.FilterNew(marketplace.KindQuestion, ids) {
		p.disp.Broadcast(ctx, marketplace.KindQuestion, dispatch.QuestionAlert(byID[id]))
	}
}

// RunSalesCycle polls the sales window once. On failure the window cursor
// stays where it was, so the next cycle re-covers the same range.
func (p *Poller) RunSalesCycle(ctx context.Context) {
	start := p.now()
	cursor, ok := p.tracker.Window(marketplace.KindSale)
	if !ok {
		cursor = start.Add(-p.cfg.SalesEvery)
	}

	var sales []marketplace.Sale
	err := p.withRetry(ctx, "sales", func() error {
		var err error
		sales, err = p.client.Sales(ctx, cursor)
		return err
	})
	if err != nil {
		p.log.Warn("sales poll failed", logx.Err(err), logx.Time("cursor", cursor))
		return
	}

	if len(sales) > 0 {
		p.disp.Broadcast(ctx, marketplace.KindSale, dispatch.SalesBurst(sales))
	}
	p.tracker.AdvanceWindow(marketplace.KindSale, start)
}

// withRetry retries fn only for transient failures (ErrUnavailable).
// Rejected and malformed responses fail immediately: repeating the same
// request inside one cycle cannot fix them.
func (p *Poller) withRetry(ctx context.Context, what string, fn func() error) error {
	return retry.Do(fn,
		retry.Attempts(uint(1+p.cfg.RetryMax)),
		retry.Delay(2*time.Second),
		retry.MaxDelay(30*time.Second),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, marketplace.ErrUnavailable)
		}),
		retry.OnRetry(func(n uint, err error) {
			p.log.Debug("fetch retry", logx.String("what", what), logx.Any("attempt", n+1), logx.Err(err))
		}),
	)
}

// cronLogger adapts logx to the cron.Logger interface. SkipIfStillRunning
// reports skips through Info; Recover reports panics through Error.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	fields := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k := fmt.Sprint(kv[i])
		fields = append(fields, logx.Any(k, kv[i+1]))
	}
	return fields
}
