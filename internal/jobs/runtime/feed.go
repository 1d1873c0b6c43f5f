package runtime

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/yungbote/listingtrust-backend/internal/ingestion"
	"github.com/yungbote/listingtrust-backend/internal/observability"
	"github.com/yungbote/listingtrust-backend/internal/platform/httpx"
)

// FeedExtractor pulls a JSON array of raw extraction records from a scraper's export
// endpoint, or from a local file when the location is not an http(s) URL.
type FeedExtractor struct {
	name     string
	location string
	http     *resty.Client
}

func NewFeedExtractor(name, location string, timeout time.Duration) (*FeedExtractor, error) {
	name = strings.TrimSpace(name)
	location = strings.TrimSpace(location)
	if name == "" || location == "" {
		return nil, fmt.Errorf("feed %q: name and location required", name)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &FeedExtractor{
		name:     name,
		location: location,
		http: resty.New().
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
	}, nil
}

func (f *FeedExtractor) Name() string { return f.name }

func (f *FeedExtractor) remote() bool {
	return strings.HasPrefix(f.location, "http://") || strings.HasPrefix(f.location, "https://")
}

func (f *FeedExtractor) Extract(ctx context.Context) (recs []ingestion.RawExtractionRecord, err error) {
	if !f.remote() {
		data, err := os.ReadFile(f.location)
		if err != nil {
			return nil, fmt.Errorf("read feed %s: %w", f.name, err)
		}
		return ingestion.DecodeRecords(data)
	}

	start := time.Now()
	defer func() {
		observability.Current().ObserveExternalCall("scraper_feed", httpx.Classify(err), time.Since(start))
	}()
	resp, err := f.http.R().SetContext(ctx).Get(f.location)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", f.name, err)
	}
	if resp.IsError() {
		return nil, &httpx.StatusError{Service: "scraper_feed", StatusCode: resp.StatusCode(), Body: snippet(resp.String())}
	}
	return ingestion.DecodeRecords(resp.Body())
}

func snippet(s string) string {
	if len(s) > 256 {
		return s[:256]
	}
	return s
}
