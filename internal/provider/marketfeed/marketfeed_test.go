package marketfeed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cagrikaymak/marketsync/internal/candle"
	"github.com/cagrikaymak/marketsync/internal/provider"
)

func TestFetch_ParsesBars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("symbol"); got != "AAPL" {
			t.Errorf("symbol param: got %q", got)
		}
		if got := r.URL.Query().Get("timeframe"); got != "1d" {
			t.Errorf("timeframe param: got %q", got)
		}
		fmt.Fprint(w, `{"symbol":"AAPL","bars":[
			{"t":1717372800,"o":100,"h":105,"l":99,"c":104,"v":1000000},
			{"t":1717459200,"o":104,"h":106,"l":103,"c":105,"v":1100000}
		]}`)
	}))
	defer srv.Close()

	p := New(WithEndpoint(srv.URL), WithClient(srv.Client()))

	rows, err := p.Fetch(context.Background(), "AAPL", candle.Timeframe1d,
		time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Close != 104 {
		t.Errorf("first close: got %v", rows[0].Close)
	}
	if rows[0].Ts != time.Unix(1717372800, 0).UTC() {
		t.Errorf("first ts: got %v", rows[0].Ts)
	}
	if rows[0].FetchedAt.IsZero() {
		t.Error("fetched_at not set")
	}
}

func TestFetch_ClassifiesStatusCodes(t *testing.T) {
	tests := []struct {
		status int
		want   provider.Kind
	}{
		{http.StatusTooManyRequests, provider.KindRateLimited},
		{http.StatusInternalServerError, provider.KindTransient},
		{http.StatusBadGateway, provider.KindTransient},
		{http.StatusUnauthorized, provider.KindFatal},
		{http.StatusBadRequest, provider.KindFatal},
		{http.StatusNotFound, provider.KindFatal},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			p := New(WithEndpoint(srv.URL), WithClient(srv.Client()))
			_, err := p.Fetch(context.Background(), "AAPL", candle.Timeframe1d, time.Time{}, time.Now())
			if err == nil {
				t.Fatal("expected error")
			}
			kind, ok := provider.KindOf(err)
			if !ok {
				t.Fatalf("expected classified error, got %v", err)
			}
			if kind != tt.want {
				t.Errorf("kind: got %v, want %v", kind, tt.want)
			}
		})
	}
}

func TestFetch_APIErrorIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"symbol":"AAPL","bars":[],"error":{"code":"unknown-symbol","description":"no such symbol"}}`)
	}))
	defer srv.Close()

	p := New(WithEndpoint(srv.URL), WithClient(srv.Client()))
	_, err := p.Fetch(context.Background(), "AAPL", candle.Timeframe1d, time.Time{}, time.Now())
	if err == nil {
		t.Fatal("expected error")
	}
	if kind, _ := provider.KindOf(err); kind != provider.KindFatal {
		t.Errorf("expected fatal, got %v", kind)
	}
}

func TestFetch_EmptySymbol(t *testing.T) {
	p := New()
	_, err := p.Fetch(context.Background(), "", candle.Timeframe1d, time.Time{}, time.Now())
	if err == nil {
		t.Fatal("expected error for empty symbol")
	}
}
