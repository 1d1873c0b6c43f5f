package marketdata

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/yungbote/listingtrust-backend/internal/observability"
	"github.com/yungbote/listingtrust-backend/internal/platform/httpx"
	"github.com/yungbote/listingtrust-backend/internal/platform/logger"
)

// Quote is the market price band for one vehicle spec.
type Quote struct {
	Median     float64 `json:"median"`
	Low        float64 `json:"low"`
	High       float64 `json:"high"`
	SampleSize int     `json:"sample_size"`
	// Cost is what the provider billed for this lookup.
	Cost float64 `json:"cost"`
}

// InBand reports whether price sits inside [Low, High].
func (q Quote) InBand(price float64) bool {
	return price >= q.Low && price <= q.High
}

type Query struct {
	Brand   string
	Model   string
	Year    int
	City    string
	Mileage *int
}

// Client is the paid market-price lookup used by selective validation.
type Client interface {
	MarketPrice(ctx context.Context, q Query) (Quote, error)
}

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type client struct {
	log  *logger.Logger
	http *resty.Client
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	return newClient(log, cfg)
}

func newClient(log *logger.Logger, cfg Config) (*client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("missing MARKET_API_URL")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rc := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		rc.SetAuthToken(key)
	}
	return &client{log: log.With("service", "MarketDataClient"), http: rc}, nil
}

func (c *client) MarketPrice(ctx context.Context, q Query) (out Quote, err error) {
	start := time.Now()
	defer func() {
		observability.Current().ObserveExternalCall("market_price", httpx.Classify(err), time.Since(start))
	}()

	params := map[string]string{
		"brand": q.Brand,
		"model": q.Model,
		"year":  strconv.Itoa(q.Year),
	}
	if q.City != "" {
		params["city"] = q.City
	}
	if q.Mileage != nil {
		params["mileage"] = strconv.Itoa(*q.Mileage)
	}

	var quote Quote
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&quote).
		Get("/v1/market-price")
	if err != nil {
		return Quote{}, fmt.Errorf("market price request: %w", err)
	}
	if resp.IsError() {
		return Quote{}, &httpx.StatusError{Service: "market_price", StatusCode: resp.StatusCode(), Body: truncate(resp.String(), 256)}
	}
	if quote.Median <= 0 || quote.Low > quote.High {
		return Quote{}, fmt.Errorf("market price decode: implausible band median=%v low=%v high=%v", quote.Median, quote.Low, quote.High)
	}
	return quote, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
