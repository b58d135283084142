// Package marketplace is a stateless client for the Wildberries seller API.
//
// Every call applies the shared authorization header and classifies failures
// into ErrUnavailable / ErrRejected / ErrMalformed. The client never retries;
// retry policy belongs to the caller (the poller).
package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "sellerbot/pkg/logx"
)

var (
	// ErrUnavailable covers network errors, timeouts, and 5xx responses.
	ErrUnavailable = errors.New("marketplace unavailable")
	// ErrRejected covers 4xx responses (bad auth or bad parameters).
	ErrRejected = errors.New("marketplace rejected request")
	// ErrMalformed covers responses that don't decode as the expected schema.
	ErrMalformed = errors.New("marketplace response malformed")
)

const (
	defaultStatisticsURL = "https://statistics-api.wildberries.ru"
	defaultFeedbacksURL  = "https://feedbacks-api.wildberries.ru"

	// dateFromLayout is what the statistics API accepts for dateFrom.
	dateFromLayout = "2006-01-02T15:04:05"

	maxResponseBytes = 16 << 20
)

type Config struct {
	APIKey         string
	StatisticsURL  string // empty means production
	FeedbacksURL   string // empty means production
	RequestTimeout time.Duration
	RatePerSec     int
}

type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("marketplace api key is empty")
	}
	if cfg.StatisticsURL == "" {
		cfg.StatisticsURL = defaultStatisticsURL
	}
	if cfg.FeedbacksURL == "" {
		cfg.FeedbacksURL = defaultFeedbacksURL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log,
	}, nil
}

// Sales fetches sales records starting at the given time.
func (c *Client) Sales(ctx context.Context, from time.Time) ([]Sale, error) {
	q := url.Values{"dateFrom": {from.Format(dateFromLayout)}}
	var out []Sale
	if err := c.getJSON(ctx, c.cfg.StatisticsURL+"/api/v1/supplier/sales", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Stocks fetches the current warehouse snapshot.
func (c *Client) Stocks(ctx context.Context) ([]Stock, error) {
	var out []Stock
	if err := c.getJSON(ctx, c.cfg.StatisticsURL+"/api/v1/supplier/stocks", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Reviews fetches one page of unanswered reviews, in remote order with
// duplicate ids removed.
func (c *Client) Reviews(ctx context.Context, take, skip int) ([]Review, error) {
	q := feedbackQuery(take, skip)
	var out struct {
		Data []Review `json:"data"`
	}
	if err := c.getJSON(ctx, c.cfg.FeedbacksURL+"/api/v1/feedbacks", q, &out); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(out.Data))
	res := out.Data[:0]
	for _, r := range out.Data {
		if r.ID == "" || seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		res = append(res, r)
	}
	return res, nil
}

// Questions fetches one page of unanswered questions, in remote order with
// duplicate ids removed.
func (c *Client) Questions(ctx context.Context, take, skip int) ([]Question, error) {
	q := feedbackQuery(take, skip)
	var out struct {
		Data []Question `json:"data"`
	}
	if err := c.getJSON(ctx, c.cfg.FeedbacksURL+"/api/v1/questions", q, &out); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(out.Data))
	res := out.Data[:0]
	for _, r := range out.Data {
		if r.ID == "" || seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		res = append(res, r)
	}
	return res, nil
}

func feedbackQuery(take, skip int) url.Values {
	if take <= 0 {
		take = 10
	}
	if skip < 0 {
		skip = 0
	}
	return url.Values{
		"isAnswered": {"false"},
		"take":       {strconv.Itoa(take)},
		"skip":       {strconv.Itoa(skip)},
	}
}

func (c *Client) getJSON(ctx context.Context, rawURL string, q url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	u := rawURL
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}
	req.Header.Set("Authorization", c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	c.log.Debug("api call", logx.String("url", rawURL),
		logx.Int("status", resp.StatusCode), logx.Duration("took", time.Since(start)))

	switch {
	case resp.StatusCode/100 == 2:
	case resp.StatusCode/100 == 4:
		return fmt.Errorf("%w: http %d", ErrRejected, resp.StatusCode)
	default:
		return fmt.Errorf("%w: http %d", ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
