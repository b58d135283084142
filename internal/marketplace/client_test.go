package marketplace

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	logx "sellerbot/pkg/logx"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		APIKey:        "test-key",
		StatisticsURL: srv.URL,
		FeedbacksURL:  srv.URL,
		RatePerSec:    1000,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, srv
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{APIKey: "  "}, logx.Nop()); err == nil {
		t.Fatal("empty api key accepted")
	}
}

func TestSalesParsesAndAuthorizes(t *testing.T) {
	t.Parallel()
	var gotAuth, gotDateFrom string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/supplier/sales" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		gotDateFrom = r.URL.Query().Get("dateFrom")
		w.Write([]byte(`[
			{"saleID":"S1","date":"2026-03-01T10:00:00","supplierArticle":"SKU-1","forPay":990.5},
			{"saleID":"S2","date":"2026-03-01T11:00:00","supplierArticle":"SKU-2","forPay":120}
		]`))
	}))

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	sales, err := c.Sales(context.Background(), from)
	if err != nil {
		t.Fatalf("Sales: %v", err)
	}
	if len(sales) != 2 || sales[0].SaleID != "S1" || sales[1].ForPay != 120 {
		t.Fatalf("sales = %+v", sales)
	}
	if gotAuth != "test-key" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if gotDateFrom != "2026-03-01T00:00:00" {
		t.Fatalf("dateFrom = %q", gotDateFrom)
	}
}

func TestStocksParses(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/supplier/stocks" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`[{"nmId":123,"supplierArticle":"SKU-1","quantity":7}]`))
	}))

	stocks, err := c.Stocks(context.Background())
	if err != nil {
		t.Fatalf("Stocks: %v", err)
	}
	if len(stocks) != 1 || stocks[0].NmID != 123 || stocks[0].Quantity != 7 {
		t.Fatalf("stocks = %+v", stocks)
	}
}

func TestReviewsDedupesAndQueries(t *testing.T) {
	t.Parallel()
	var gotQuery string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/feedbacks" {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"data":[
			{"id":"r1","text":"first"},
			{"id":"r1","text":"dup"},
			{"id":"","text":"no id"},
			{"id":"r2","text":"second"}
		]}`))
	}))

	reviews, err := c.Reviews(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("Reviews: %v", err)
	}
	if len(reviews) != 2 || reviews[0].ID != "r1" || reviews[1].ID != "r2" {
		t.Fatalf("reviews = %+v", reviews)
	}
	if gotQuery != "isAnswered=false&skip=0&take=10" {
		t.Fatalf("query = %q", gotQuery)
	}
}

func TestQuestionsParses(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/questions" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"data":[{"id":"q1","text":"size?","productDetails":{"supplierArticle":"SKU-9"}}]}`))
	}))

	qs, err := c.Questions(context.Background(), 0, -1)
	if err != nil {
		t.Fatalf("Questions: %v", err)
	}
	if len(qs) != 1 || qs[0].ProductDetails.SupplierArticle != "SKU-9" {
		t.Fatalf("questions = %+v", qs)
	}
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, `{}`, ErrRejected},
		{"too many requests", http.StatusTooManyRequests, `{}`, ErrRejected},
		{"server error", http.StatusInternalServerError, `{}`, ErrUnavailable},
		{"bad gateway", http.StatusBadGateway, ``, ErrUnavailable},
		{"bad json", http.StatusOK, `{"data": not-json`, ErrMalformed},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			_, err := c.Reviews(context.Background(), 10, 0)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestNetworkErrorIsUnavailable(t *testing.T) {
	t.Parallel()
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := c.Stocks(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}
