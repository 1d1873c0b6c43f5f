package dedup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/listingtrust-backend/internal/data/repos"
	types "github.com/yungbote/listingtrust-backend/internal/domain"
	"github.com/yungbote/listingtrust-backend/internal/observability"
	"github.com/yungbote/listingtrust-backend/internal/platform/dbctx"
	"github.com/yungbote/listingtrust-backend/internal/platform/logger"
	"github.com/yungbote/listingtrust-backend/internal/platform/openai"
	"github.com/yungbote/listingtrust-backend/internal/platform/qdrant"
)

type Config struct {
	// Threshold is the minimum confidence at which a candidate is linked to a canonical listing.
	Threshold float64
	TopK      int
	// TextPool bounds how many stored listings of the same model the text fallback compares against.
	TextPool    int
	CallTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 || c.Threshold > 1 {
		c.Threshold = 0.92
	}
	if c.TopK <= 0 {
		c.TopK = 5
	}
	if c.TextPool <= 0 {
		c.TextPool = 200
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 30 * time.Second
	}
	return c
}

// Result is the outcome of one duplicate check. Pass it back to Register when the
// candidate is stored as its own canonical listing.
type Result struct {
	Outcome     types.DedupOutcome
	Fingerprint string
	embedding   []float32
}

type Service interface {
	// Check compares c against stored canonical listings and records a CanonicalListingLink
	// whether or not a link was made.
	Check(ctx context.Context, c types.ListingCandidate) (Result, error)
	// Register makes c a canonical listing for future checks.
	Register(ctx context.Context, c types.ListingCandidate, res Result) error
}

type service struct {
	log          *logger.Logger
	links        repos.CanonicalLinkRepo
	fingerprints repos.FingerprintRepo
	ai           openai.Client
	vectors      qdrant.VectorStore
	cfg          Config
}

// NewService builds the dedup service. ai and vectors may be nil, in which case only the
// fingerprint and text-similarity paths run.
func NewService(log *logger.Logger, links repos.CanonicalLinkRepo, fingerprints repos.FingerprintRepo, ai openai.Client, vectors qdrant.VectorStore, cfg Config) (Service, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if links == nil || fingerprints == nil {
		return nil, fmt.Errorf("link and fingerprint repos required")
	}
	return &service{
		log:          log.With("service", "DeduplicationService"),
		links:        links,
		fingerprints: fingerprints,
		ai:           ai,
		vectors:      vectors,
		cfg:          cfg.withDefaults(),
	}, nil
}

type match struct {
	key        string
	confidence float64
	method     string
}

func (s *service) Check(ctx context.Context, c types.ListingCandidate) (Result, error) {
	key := c.Key()
	res := Result{Fingerprint: Fingerprint(c)}
	dbc := dbctx.Context{Ctx: ctx}

	best, err := s.bestMatch(ctx, c, &res)
	if err != nil {
		return Result{}, err
	}

	out := types.DedupOutcome{Method: types.DedupMethodNone}
	if best != nil {
		conf := best.confidence
		out.Confidence = &conf
		out.Method = best.method
		if conf >= s.cfg.Threshold {
			canonical := best.key
			out.CanonicalID = &canonical
			out.Linked = true
		}
	}
	res.Outcome = out

	link := &types.CanonicalListingLink{
		ListingKey:          key,
		CanonicalListingKey: out.CanonicalID,
		Confidence:          out.Confidence,
		Method:              out.Method,
		Linked:              out.Linked,
	}
	if err := s.links.Create(dbc, link); err != nil {
		return Result{}, fmt.Errorf("record canonical link: %w", err)
	}
	observability.Current().IncDedup(out.Method, out.Linked)
	if out.Linked {
		s.log.Info("duplicate linked", "listing", key, "canonical", *out.CanonicalID, "confidence", *out.Confidence, "method", out.Method)
	}
	return res, nil
}

// bestMatch tries the exact fingerprint, then the vector index, then text similarity.
// Vector failures degrade to the text path.
func (s *service) bestMatch(ctx context.Context, c types.ListingCandidate, res *Result) (*match, error) {
	key := c.Key()
	dbc := dbctx.Context{Ctx: ctx}

	exact, err := s.fingerprints.FindByFingerprint(dbc, res.Fingerprint, key)
	if err != nil {
		return nil, fmt.Errorf("fingerprint lookup: %w", err)
	}
	if exact != nil {
		return &match{key: exact.ListingKey, confidence: 1.0, method: types.DedupMethodFingerprint}, nil
	}

	if s.ai != nil && s.vectors != nil {
		m, err := s.vectorMatch(ctx, c, res)
		if err == nil {
			return m, nil
		}
		s.log.Warn("vector dedup unavailable; using text similarity", "listing", key, "error", err)
	}
	return s.textMatch(dbc, c)
}

func (s *service) vectorMatch(ctx context.Context, c types.ListingCandidate, res *Result) (*match, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	embs, err := s.ai.Embed(callCtx, []string{embeddingText(c)})
	if err != nil {
		return nil, err
	}
	if len(embs) != 1 || len(embs[0]) == 0 {
		return nil, errors.New("empty embedding")
	}
	res.embedding = embs[0]

	matches, err := s.vectors.Query(callCtx, res.embedding, s.cfg.TopK, qdrant.Filter{
		Equals:  map[string]any{"brand": normalize(c.Brand), "model": normalize(c.Model)},
		Exclude: []string{c.Key()},
	})
	if err != nil {
		return nil, err
	}
	var best *match
	for _, m := range matches {
		conf := confidence(m.Score, c.Price, metadataPrice(m.Metadata))
		if best == nil || conf > best.confidence {
			best = &match{key: m.ID, confidence: conf, method: types.DedupMethodVector}
		}
	}
	return best, nil
}

func (s *service) textMatch(dbc dbctx.Context, c types.ListingCandidate) (*match, error) {
	pool, err := s.fingerprints.ListByBrandModel(dbc, normalize(c.Brand), normalize(c.Model), c.Key(), s.cfg.TextPool)
	if err != nil {
		return nil, fmt.Errorf("load comparison pool: %w", err)
	}
	mine := tokens(embeddingText(c))
	var best *match
	for _, fp := range pool {
		conf := confidence(jaccard(mine, tokens(fp.Text)), c.Price, fp.Price)
		if best == nil || conf > best.confidence {
			best = &match{key: fp.ListingKey, confidence: conf, method: types.DedupMethodText}
		}
	}
	return best, nil
}

func (s *service) Register(ctx context.Context, c types.ListingCandidate, res Result) error {
	fp := res.Fingerprint
	if fp == "" {
		fp = Fingerprint(c)
	}
	err := s.fingerprints.Upsert(dbctx.Context{Ctx: ctx}, &types.ListingFingerprint{
		ListingKey:  c.Key(),
		Fingerprint: fp,
		Brand:       normalize(c.Brand),
		Model:       normalize(c.Model),
		Year:        c.Year,
		Price:       c.Price,
		City:        normalize(c.City),
		Text:        embeddingText(c),
	})
	if err != nil {
		return fmt.Errorf("register fingerprint: %w", err)
	}
	if s.vectors == nil || len(res.embedding) == 0 {
		return nil
	}
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	err = s.vectors.Upsert(callCtx, []qdrant.Vector{{
		ID:     c.Key(),
		Values: res.embedding,
		Metadata: map[string]any{
			"brand":  normalize(c.Brand),
			"model":  normalize(c.Model),
			"year":   c.Year,
			"price":  c.Price,
			"city":   normalize(c.City),
			"source": c.Source,
		},
	}})
	if err != nil {
		return fmt.Errorf("register vector: %w", err)
	}
	return nil
}

// embeddingText is what both the vector and text paths compare.
func embeddingText(c types.ListingCandidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %d", c.Brand, c.Model, c.Year)
	if c.FuelType != "" {
		b.WriteString(" " + c.FuelType)
	}
	if c.Transmission != "" {
		b.WriteString(" " + c.Transmission)
	}
	if c.City != "" {
		b.WriteString(" " + c.City)
	}
	if t := c.Text(); t != "" {
		b.WriteString("\n" + t)
	}
	return b.String()
}

func metadataPrice(md map[string]any) int64 {
	switch v := md["price"].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}
