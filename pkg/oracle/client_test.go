package oracle

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGetPrice(t *testing.T) {
	tests := []struct {
		name     string
		quoteID  string
		handler  http.HandlerFunc
		want     float64
		wantErr  error
	}{
		{
			name:    "price present",
			quoteID: "solana",
			handler: func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/simple/price", r.URL.Path)
				require.Equal(t, "solana", r.URL.Query().Get("ids"))
				fmt.Fprint(w, `{"solana":{"usd":20.0}}`)
			},
			want: 20.0,
		},
		{
			name:    "symbol missing from payload",
			quoteID: "solana",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"ethereum":{"usd":3000}}`)
			},
			wantErr: ErrPriceUnavailable,
		},
		{
			name:    "zero price is unavailable, not a quote",
			quoteID: "tether",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"tether":{"usd":0}}`)
			},
			wantErr: ErrPriceUnavailable,
		},
		{
			name:    "upstream 500",
			quoteID: "solana",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantErr: ErrUpstream,
		},
		{
			name:    "garbage body",
			quoteID: "solana",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `not json`)
			},
			wantErr: ErrUpstream,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()
			logger, _ := zap.NewDevelopment()
			client := NewClient(server.URL, logger)
			price, err := client.GetPrice(context.Background(), tt.quoteID)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, price)
		})
	}
}

func TestGetPriceStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		cancel()
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()
	logger, _ := zap.NewDevelopment()
	client := NewClient(server.URL, logger)

	_, err := client.GetPrice(ctx, "solana")
	require.ErrorIs(t, err, ErrUpstream)
	// the failing first call cancelled the context, so no retries follow
	require.Equal(t, int64(1), calls.Load())
}

func TestGetPriceRetriesTransientFailure(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"ethereum":{"usd":3100.5}}`)
	}))
	defer server.Close()
	logger, _ := zap.NewDevelopment()
	client := NewClient(server.URL, logger)
	price, err := client.GetPrice(context.Background(), "ethereum")
	require.NoError(t, err)
	require.Equal(t, 3100.5, price)
	require.Equal(t, 3, calls)
}
