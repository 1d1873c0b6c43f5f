package runtime

import (
	"context"
	"fmt"
	"sort"
	"sync"

	types "github.com/yungbote/listingtrust-backend/internal/domain"
	"github.com/yungbote/listingtrust-backend/internal/ingestion"
)

// Extractor is one scraper. Extract returns the raw records of a single run.
type Extractor interface {
	Name() string
	Extract(ctx context.Context) ([]ingestion.RawExtractionRecord, error)
}

// ImageResolver is implemented by extractors that fetch gallery URLs in a second pass.
type ImageResolver interface {
	ResolveImages(ctx context.Context, c types.ListingCandidate) ([]string, error)
}

type Registry struct {
	mu         sync.RWMutex
	extractors map[string]Extractor
}

func NewRegistry() *Registry {
	return &Registry{extractors: make(map[string]Extractor)}
}

func (r *Registry) Register(e Extractor) error {
	if e == nil {
		return fmt.Errorf("nil extractor")
	}
	name := e.Name()
	if name == "" {
		return fmt.Errorf("extractor Name() is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.extractors[name]; exists {
		return fmt.Errorf("extractor already registered for scraper=%s", name)
	}
	r.extractors[name] = e
	return nil
}

func (r *Registry) Get(name string) (Extractor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.extractors[name]
	return e, ok
}

// Names lists registered scrapers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.extractors))
	for name := range r.extractors {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// StaticExtractor replays a fixed record set. The CLI uses it for file imports.
type StaticExtractor struct {
	ScraperName string
	Records     []ingestion.RawExtractionRecord
	Err         error
}

func (s *StaticExtractor) Name() string { return s.ScraperName }

func (s *StaticExtractor) Extract(context.Context) ([]ingestion.RawExtractionRecord, error) {
	return s.Records, s.Err
}
