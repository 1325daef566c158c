package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/avast/retry-go"
	"go.uber.org/zap"
)

// ErrPriceUnavailable means the quote source answered but carried no price
// for the requested symbol. It must propagate to the caller: a defaulted zero
// price would silently corrupt the expected-quantity comparison downstream.
var ErrPriceUnavailable = errors.New("price unavailable for symbol")

// ErrUpstream means the quote source itself failed (transport error or
// non-2xx status).
var ErrUpstream = errors.New("price source upstream failure")

// Client fetches current USD prices from a CoinGecko-shaped endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// GetPrice returns the current USD price for a quote identifier
// (e.g. "solana", "tether"). The expected response shape is
// {"<id>": {"usd": <number>}}; absence of the key is an error, not a zero.
func (c *Client) GetPrice(ctx context.Context, quoteID string) (float64, error) {
	requestURL := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", c.baseURL, url.QueryEscape(quoteID))
	var respBody io.ReadCloser
	err := retry.Do(func() error {
		body, err := c.sendRequest(ctx, requestURL)
		if err != nil {
			return err
		}
		respBody = body
		return nil
	}, retry.Attempts(3), retry.Delay(100*time.Millisecond), retry.LastErrorOnly(true),
		// a cancelled request must not burn further upstream calls
		retry.RetryIf(func(error) bool { return ctx.Err() == nil }))
	if err != nil {
		c.logger.Error("failed to fetch price", zap.String("quote_id", quoteID), zap.Error(err))
		errorsCounter.WithLabelValues("transport").Inc()
		return 0, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	price, err := convertedPriceResponse(respBody, quoteID)
	if err != nil {
		c.logger.Error("failed to convert price response", zap.String("quote_id", quoteID), zap.Error(err))
		errorsCounter.WithLabelValues("decode").Inc()
		return 0, err
	}
	return price, nil
}

func convertedPriceResponse(respBody io.ReadCloser, quoteID string) (float64, error) {
	defer respBody.Close()
	var data map[string]struct {
		USD float64 `json:"usd"`
	}
	if err := json.NewDecoder(respBody).Decode(&data); err != nil {
		return 0, fmt.Errorf("%w: failed to decode response: %v", ErrUpstream, err)
	}
	quote, ok := data[quoteID]
	if !ok || quote.USD <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrPriceUnavailable, quoteID)
	}
	return quote.USD, nil
}

// Note: the response body is closed by the converter; here it is closed ONLY
// in case of a bad status code.
func (c *Client) sendRequest(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("bad status code: %v %v", resp.StatusCode, url)
	}
	return resp.Body, nil
}
