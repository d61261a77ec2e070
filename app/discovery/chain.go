package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const DefaultMaxCandidates = 25

type Config struct {
	SitemapWindow time.Duration
}

type Chain struct {
	strategies map[string]Strategy
	now        func() time.Time
}

func NewChain(getter Getter, cfg Config) *Chain {
	if cfg.SitemapWindow <= 0 {
		cfg.SitemapWindow = 30 * 24 * time.Hour
	}

	c := &Chain{now: time.Now}
	c.strategies = map[string]Strategy{
		StrategyRSS:       NewRSSStrategy(getter),
		StrategyHTML:      NewLinkStrategy(getter),
		StrategySitemap:   NewSitemapStrategy(getter, cfg.SitemapWindow, c.clock),
		StrategyHeuristic: NewHeuristicStrategy(getter),
	}
	return c
}

func (c *Chain) clock() time.Time {
	return c.now()
}

// Order returns the strategy order for a scraping method. "auto" and
// unknown methods keep the default order; a concrete method moves to the
// front.
func Order(method string) []string {
	order := make([]string, 0, len(DefaultOrder))
	for _, name := range DefaultOrder {
		if name == method {
			order = append(order, name)
		}
	}
	for _, name := range DefaultOrder {
		if name != method {
			order = append(order, name)
		}
	}
	return order
}

// Run tries each strategy in order and returns the first non-empty, filtered
// and capped batch. A strategy that errors is logged and skipped. The error
// is only non-nil when every strategy failed.
func (c *Chain) Run(ctx context.Context, target Target, filter Filter) ([]Candidate, error) {
	limit := target.MaxCandidates
	if limit <= 0 {
		limit = DefaultMaxCandidates
	}

	var errs []error
	for _, name := range Order(target.Method) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		strategy, ok := c.strategies[name]
		if !ok {
			continue
		}

		found, err := strategy.Discover(ctx, target)
		if err != nil {
			slog.Warn("Discovery strategy failed", "source", target.Name, "strategy", name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}

		kept := c.accept(ctx, target, found, filter, limit)

		slog.Debug("Discovery strategy finished", "source", target.Name, "strategy", name,
			"found", len(found), "kept", len(kept))

		if len(kept) > 0 {
			return kept, nil
		}
	}

	if len(errs) == len(c.strategies) {
		return nil, fmt.Errorf("all discovery strategies failed: %w", errors.Join(errs...))
	}
	return nil, nil
}

func (c *Chain) accept(ctx context.Context, target Target, found []Candidate, filter Filter, limit int) []Candidate {
	seen := make(map[string]bool, len(found))
	kept := make([]Candidate, 0, min(len(found), limit))

	for _, candidate := range found {
		if len(kept) >= limit {
			break
		}
		if candidate.Normalized == "" || seen[candidate.Normalized] {
			continue
		}
		seen[candidate.Normalized] = true

		if target.MaxAge > 0 && candidate.PublishedAt != nil && c.now().Sub(*candidate.PublishedAt) > target.MaxAge {
			continue
		}
		if filter != nil && !filter(ctx, candidate) {
			continue
		}

		kept = append(kept, candidate)
	}

	return kept
}
