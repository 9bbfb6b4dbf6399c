package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Emmet-Finance/Bridge-Data/internal/types"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
)

// HTTPFeed reads a price from an HTTP endpoint answering in the
// Chainlink External Adapter format: {"data": {"result": <price>}}.
// A bare {"result": <price>} body is accepted too.
type HTTPFeed struct {
	url         string
	apiKey      string
	decimals    uint8
	description string
	httpClient  *http.Client
}

// NewHTTPFeed creates a feed client from its configuration
func NewHTTPFeed(cfg types.FeedConfig) *HTTPFeed {
	return &HTTPFeed{
		url:         cfg.URL,
		apiKey:      cfg.APIKey,
		decimals:    cfg.Decimals,
		description: cfg.Description,
		httpClient:  newRetryClient().StandardClient(),
	}
}

// newRetryClient creates a new HTTP client with retry capabilities
func newRetryClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 3 * time.Second
	c.Logger = nil
	return c
}

type adapterResponse struct {
	Result json.Number `json:"result"`
	Data   struct {
		Result json.Number `json:"result"`
	} `json:"data"`
}

// Price fetches the current price
func (f *HTTPFeed) Price(ctx context.Context) (*uint256.Int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	if f.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	logrus.Debugf("Fetching price from %s", f.url)
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching price from %s: %w", f.description, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s feed error: status %d, body: %s", f.description, resp.StatusCode, string(body))
	}

	var response adapterResponse
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&response); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}

	raw := response.Data.Result
	if raw == "" {
		raw = response.Result
	}
	if raw == "" {
		return nil, fmt.Errorf("no price returned from %s", f.description)
	}
	price, err := uint256.FromDecimal(raw.String())
	if err != nil {
		return nil, fmt.Errorf("invalid price %q from %s: %w", raw, f.description, err)
	}
	return price, nil
}

func (f *HTTPFeed) Decimals() uint8     { return f.decimals }
func (f *HTTPFeed) Description() string { return f.description }
