// Package scanner pages through the catalog and runs the matcher over
// every listing.
package scanner

import (
	"context"
	"errors"
	"iter"
	"sort"

	"go.uber.org/zap"

	"jobmate/watch-service/internal/catalog"
	"jobmate/watch-service/internal/matcher"
	"jobmate/watch-service/internal/metrics"
	"jobmate/watch-service/internal/model"
)

const (
	DefaultPageSize            = 100
	DefaultMaxEnumerationPages = 10
	DefaultMaxSampleValues     = 50
)

// Config bounds a Scanner.
type Config struct {
	PageSize int
	// MaxEnumerationPages caps field enumeration scans only. Matching scans
	// always read the whole catalog.
	MaxEnumerationPages int
	MaxSampleValues     int
}

func (c *Config) setDefaults() {
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.MaxEnumerationPages <= 0 {
		c.MaxEnumerationPages = DefaultMaxEnumerationPages
	}
	if c.MaxSampleValues <= 0 {
		c.MaxSampleValues = DefaultMaxSampleValues
	}
}

// Scanner finds catalog listings matching a set of rules. It keeps no
// state between calls; every scan starts from page 1.
type Scanner struct {
	catalog catalog.Catalog
	matcher *matcher.Matcher
	cfg     Config
	log     *zap.Logger
	metrics *metrics.Metrics
}

// New constructs a Scanner. m and log may be nil.
func New(c catalog.Catalog, mt *matcher.Matcher, cfg Config, log *zap.Logger, m *metrics.Metrics) *Scanner {
	cfg.setDefaults()
	if mt == nil {
		mt = matcher.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scanner{catalog: c, matcher: mt, cfg: cfg, log: log, metrics: m}
}

// FindMatches lazily yields the published listings in categories whose
// verdict under rules and logic is true. A catalog failure is yielded once
// as a *model.ScanError and ends the sequence. Zero rules yield nothing.
func (s *Scanner) FindMatches(ctx context.Context, rules []matcher.Rule, logic matcher.Logic, categories []model.Category) iter.Seq2[model.Listing, error] {
	return func(yield func(model.Listing, error) bool) {
		if len(rules) == 0 {
			return
		}
		for l, err := range s.listings(ctx, categories, 0) {
			if err != nil {
				yield(model.Listing{}, err)
				return
			}
			s.metrics.ListingEvaluated()
			if !s.matcher.EvaluateListing(l, rules, logic).Matched {
				continue
			}
			if !yield(l, nil) {
				return
			}
		}
	}
}

// CollectMatches drains FindMatches.
func (s *Scanner) CollectMatches(ctx context.Context, rules []matcher.Rule, logic matcher.Logic, categories []model.Category) ([]model.Listing, error) {
	var out []model.Listing
	for l, err := range s.FindMatches(ctx, rules, logic, categories) {
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// FieldSummary describes one attribute path seen in the catalog.
type FieldSummary struct {
	Path    string   `json:"path"`
	Count   int      `json:"count"`
	Samples []string `json:"samples"`
}

// EnumerateFields collects attribute paths and sample values from at most
// MaxEnumerationPages pages, for building criteria forms.
func (s *Scanner) EnumerateFields(ctx context.Context, categories []model.Category) ([]FieldSummary, error) {
	type acc struct {
		count   int
		samples []string
		seen    map[string]bool
	}
	fields := map[string]*acc{}
	leaf := s.matcher.Leaf()

	for l, err := range s.listings(ctx, categories, s.cfg.MaxEnumerationPages) {
		if err != nil {
			return nil, err
		}
		for _, path := range matcher.Fields(l.Attributes, leaf) {
			a := fields[path]
			if a == nil {
				a = &acc{seen: map[string]bool{}}
				fields[path] = a
			}
			a.count++
			for _, sample := range sampleTexts(matcher.Resolve(l.Attributes, path, leaf)) {
				if len(a.samples) >= s.cfg.MaxSampleValues || a.seen[sample] {
					continue
				}
				a.seen[sample] = true
				a.samples = append(a.samples, sample)
			}
		}
	}

	out := make([]FieldSummary, 0, len(fields))
	for path, a := range fields {
		sort.Strings(a.samples)
		out = append(out, FieldSummary{Path: path, Count: a.count, Samples: a.samples})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// listings yields every published listing in categories with attributes
// loaded, page by page until an empty page, or until maxPages when it is
// positive. Listings repeated across pages are yielded once.
func (s *Scanner) listings(ctx context.Context, categories []model.Category, maxPages int) iter.Seq2[model.Listing, error] {
	return func(yield func(model.Listing, error) bool) {
		seen := map[string]bool{}
		for page := 1; maxPages <= 0 || page <= maxPages; page++ {
			q := catalog.PageQuery{
				Categories: categories,
				Status:     model.StatusPublished,
				Page:       page,
				PageSize:   s.cfg.PageSize,
			}
			batch, err := s.catalog.ListPage(ctx, q)
			if err != nil {
				s.metrics.ScanFailed()
				s.log.Warn("catalog page failed", zap.Int("page", page), zap.Error(err))
				yield(model.Listing{}, &model.ScanError{Page: page, Err: err})
				return
			}
			s.metrics.PageFetched()
			if len(batch) == 0 {
				return
			}

			for _, l := range batch {
				if seen[l.ID] {
					continue
				}
				seen[l.ID] = true
				// Remote catalogs may ignore the filters.
				if !q.Matches(l) {
					continue
				}

				if l.Attributes.IsAbsent() {
					attrs, err := s.catalog.Attributes(ctx, l.ID)
					if errors.Is(err, model.ErrNotFound) {
						// Deleted between the page query and the lookup.
						continue
					}
					if err != nil {
						s.metrics.ScanFailed()
						yield(model.Listing{}, &model.ScanError{Page: page, Err: err})
						return
					}
					l.Attributes = attrs
				}
				if !yield(l, nil) {
					return
				}
			}
		}
	}
}

func sampleTexts(v model.Value) []string {
	switch v.Kind() {
	case model.KindString, model.KindNumber, model.KindBool:
		s, _ := v.Text()
		return []string{s}
	case model.KindSequence:
		var out []string
		for _, e := range v.Items() {
			if s, ok := e.Text(); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
