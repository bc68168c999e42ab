// Command catalog-ingest loads supplier SKU feeds into the product catalog.
//
// Suppliers publish very large gzip-compressed feeds of one SKU per line.
// A SKU is accepted only when at least two independent feeds list it; the
// cross-check happens in two streaming passes with one bloom filter per
// feed, so the full SKU set never has to fit in memory.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/pilldrop/commerce-api/internal/storage/postgres"
)

const (
	bloomCapacity = 120_000_000
	bloomFPR      = 0.001
	numFeeds      = 3
	progressEvery = 10_000_000
	minSKULen     = 8
	maxSKULen     = 24
)

// skuRule maps a SKU prefix to catalog defaults for newly ingested products.
type skuRule struct {
	category  string
	listPrice string
}

var prefixRules = map[string]skuRule{
	"PD-OMEGA": {category: "supplement", listPrice: "19.99"},
	"PD-VITD":  {category: "supplement", listPrice: "12.49"},
	"PD-PROBI": {category: "supplement", listPrice: "24.90"},
	"PD-MULTI": {category: "supplement", listPrice: "16.75"},
	"PD-SKIN":  {category: "skincare", listPrice: "29.00"},
}

var defaultRule = skuRule{category: "general", listPrice: "9.99"}

// feedResult holds candidate SKUs found in a single feed during pass 2.
type feedResult struct {
	candidates map[string]uint
}

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing skufeedN.gz files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	feeds := make([]string, numFeeds)
	for i := range numFeeds {
		feeds[i] = filepath.Join(dataDir, fmt.Sprintf("skufeed%d.gz", i+1))
	}
	for _, f := range feeds {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check feed %s", f)
		}
	}

	// Pass 1: build one bloom filter per feed, concurrently.
	slog.Info("pass 1: building bloom filters", slog.Int("feeds", numFeeds))

	filters, err := buildBloomFilters(ctx, feeds)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: find SKUs appearing in 2+ feeds.
	slog.Info("pass 2: cross-checking feeds")

	validSKUs, err := findValidSKUs(ctx, feeds, filters)
	if err != nil {
		return errors.Wrap(err, "find valid SKUs")
	}

	slog.Info("verified SKUs found", slog.Int("count", len(validSKUs)))

	if len(validSKUs) == 0 {
		slog.Info("no verified SKUs to insert")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := writeProducts(ctx, pool, validSKUs); err != nil {
		return errors.Wrap(err, "write products to database")
	}

	return nil
}

// buildBloomFilters creates one bloom filter per feed, concurrently.
func buildBloomFilters(ctx context.Context, feeds []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(feeds))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range feeds {
		g.Go(buildFilterForFeed(ctx, i, f, filters))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return filters, nil
}

func buildFilterForFeed(ctx context.Context, idx int, path string, filters []*bloom.BloomFilter) func() error {
	return func() error {
		filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		var count uint64

		if err := streamGzFile(ctx, path, func(sku string) {
			if len(sku) >= minSKULen && len(sku) <= maxSKULen {
				filter.AddString(sku)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress",
						slog.Int("feed", idx+1),
						slog.Uint64("skus", count),
					)
				}
			}
		}); err != nil {
			return errors.Wrapf(err, "build filter for feed %d", idx+1)
		}

		slog.Info("pass 1 complete",
			slog.Int("feed", idx+1),
			slog.Uint64("total_skus", count),
		)

		filters[idx] = filter
		return nil
	}
}

// findValidSKUs re-streams each feed and checks SKUs against OTHER feeds'
// bloom filters. A SKU is verified if it appears in 2 or more feeds.
func findValidSKUs(ctx context.Context, feeds []string, filters []*bloom.BloomFilter) ([]string, error) {
	results := make([]feedResult, len(feeds))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range feeds {
		g.Go(findCandidatesInFeed(ctx, i, f, filters, results))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Merge bitmasks from all feeds.
	merged := make(map[string]uint)
	for _, r := range results {
		for sku, mask := range r.candidates {
			merged[sku] |= mask
		}
	}

	// Keep SKUs appearing in 2+ feeds.
	var valid []string
	for sku, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			valid = append(valid, sku)
		}
	}

	return valid, nil
}

func findCandidatesInFeed(
	ctx context.Context,
	idx int,
	path string,
	filters []*bloom.BloomFilter,
	results []feedResult,
) func() error {
	return func() error {
		candidates := make(map[string]uint)
		feedBit := uint(1) << uint(idx)
		var count uint64

		if err := streamGzFile(ctx, path, func(sku string) {
			if len(sku) < minSKULen || len(sku) > maxSKULen {
				return
			}

			count++
			if count%progressEvery == 0 {
				slog.Info("pass 2 progress",
					slog.Int("feed", idx+1),
					slog.Uint64("skus", count),
				)
			}

			// Check if this SKU appears in any OTHER feed's bloom filter.
			for j, f := range filters {
				if j == idx {
					continue
				}
				if f.TestString(sku) {
					candidates[sku] |= feedBit
					break
				}
			}
		}); err != nil {
			return errors.Wrapf(err, "scan feed %d for candidates", idx+1)
		}

		slog.Info("pass 2 complete",
			slog.Int("feed", idx+1),
			slog.Uint64("total_skus", count),
			slog.Int("candidates", len(candidates)),
		)

		results[idx] = feedResult{candidates: candidates}
		return nil
	}
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(sku string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

// ruleFor resolves catalog defaults by matching SKU prefix.
func ruleFor(sku string) skuRule {
	for prefix, rule := range prefixRules {
		if strings.HasPrefix(sku, prefix) {
			return rule
		}
	}
	return defaultRule
}

// writeProducts upserts all verified SKUs into the product catalog. New
// products land inactive so merchandising prices them before they go on sale.
func writeProducts(ctx context.Context, pool *pgxpool.Pool, skus []string) error {
	slog.Info("writing products to database", slog.Int("count", len(skus)))

	for i, sku := range skus {
		rule := ruleFor(sku)

		price, err := decimal.NewFromString(rule.listPrice)
		if err != nil {
			return errors.Wrapf(err, "parse list price for SKU %s", sku)
		}

		if _, err := pool.Exec(ctx, `
			INSERT INTO products (id, sku, name, price, category, active)
			VALUES ($1, $2, $3, $4, $5, FALSE)
			ON CONFLICT (sku) DO NOTHING`,
			"prod-"+strings.ToLower(sku), sku, sku, price, rule.category,
		); err != nil {
			return errors.Wrapf(err, "upsert product %s", sku)
		}

		if (i+1)%100 == 0 || i+1 == len(skus) {
			slog.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(skus)))
		}
	}

	return nil
}
