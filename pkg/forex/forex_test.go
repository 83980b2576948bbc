package forex

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

func TestEURUSD(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"amount": 1.0, "base": "EUR", "rates": {"USD": 1.0871}}`)
	}))
	defer server.Close()

	rate, err := NewProvider(server.URL).EURUSD(context.Background())
	if err != nil {
		t.Fatalf("EURUSD: %v", err)
	}
	if !rate.Equal(decimal.RequireFromString("1.0871")) {
		t.Fatalf("rate = %s, want 1.0871", rate)
	}
}

func TestEURUSDMissingRate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"amount": 1.0, "base": "EUR", "rates": {}}`)
	}))
	defer server.Close()

	if _, err := NewProvider(server.URL).EURUSD(context.Background()); err == nil {
		t.Fatal("expected error for missing USD rate")
	}
}

func TestEURUSDServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	if _, err := NewProvider(server.URL).EURUSD(context.Background()); err == nil {
		t.Fatal("expected error for HTTP 502")
	}
}
