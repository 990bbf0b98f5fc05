// Package search turns a word into candidate icon URLs by scraping an icon
// search page.
package search

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/icon-harvester/internal/icons"
	"github.com/JakeFAU/icon-harvester/internal/metrics"
)

// Config controls query construction.
type Config struct {
	// DefaultTemplate is used when a request carries no source of its own.
	DefaultTemplate string
	// Limit caps candidates per word.
	Limit int
	// Headless enables rendering script-driven pages that yield no images.
	Headless bool
}

// Searcher implements icons.Searcher.
type Searcher struct {
	cfg      Config
	plain    icons.Fetcher
	headless icons.Fetcher
	detector icons.HeadlessDetector
	logger   *zap.Logger
}

// New creates a Searcher. headless and detector may be nil when rendering is
// disabled.
func New(
	cfg Config,
	plain icons.Fetcher,
	headless icons.Fetcher,
	detector icons.HeadlessDetector,
	logger *zap.Logger,
) *Searcher {
	if cfg.DefaultTemplate == "" {
		cfg.DefaultTemplate = DefaultTemplate
	}
	if cfg.Limit <= 0 {
		cfg.Limit = icons.MaxIconsPerWord
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Searcher{
		cfg:      cfg,
		plain:    plain,
		headless: headless,
		detector: detector,
		logger:   logger.Named("search"),
	}
}

// Search fetches the result page once and returns up to Limit candidates.
// An empty slice with a nil error means the page had no usable images.
func (s *Searcher) Search(ctx context.Context, word, sourceConfig string) ([]string, error) {
	template := strings.TrimSpace(sourceConfig)
	if template == "" {
		template = s.cfg.DefaultTemplate
	}
	queryURL := QueryURL(template, word)

	resp, err := s.plain.Fetch(ctx, icons.FetchRequest{
		URL:     queryURL,
		Headers: http.Header{"Accept": {"text/html,application/xhtml+xml"}},
	})
	if err != nil {
		return nil, fmt.Errorf("page fetch: %w", err)
	}
	if resp.URL == "" {
		resp.URL = queryURL
	}
	refs, err := ExtractIconRefs(resp, s.cfg.Limit)
	if err != nil {
		return nil, err
	}
	if len(refs) > 0 {
		return refs, nil
	}
	if promoted, ok := s.maybePromote(ctx, word, queryURL, resp); ok {
		return promoted, nil
	}
	return refs, nil
}

func (s *Searcher) maybePromote(ctx context.Context, word, queryURL string, resp icons.FetchResponse) ([]string, bool) {
	if !s.cfg.Headless || s.detector == nil || s.headless == nil {
		return nil, false
	}
	if !s.detector.ShouldPromote(resp) {
		return nil, false
	}
	logger := s.logger.With(zap.String("word", word), zap.String("url", queryURL))

	rendered, err := s.headless.Fetch(ctx, icons.FetchRequest{URL: queryURL})
	if err != nil {
		metrics.ObserveHeadlessPromotion("error")
		logger.Warn("headless promotion failed", zap.Error(err))
		return nil, false
	}
	refs, err := ExtractIconRefs(rendered, s.cfg.Limit)
	if err != nil {
		metrics.ObserveHeadlessPromotion("error")
		logger.Warn("headless extraction failed", zap.Error(err))
		return nil, false
	}
	if len(refs) == 0 {
		metrics.ObserveHeadlessPromotion("empty")
		return nil, false
	}
	metrics.ObserveHeadlessPromotion("found")
	logger.Info("headless promotion applied", zap.Int("candidates", len(refs)))
	return refs, true
}
