package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"datasetAnalyzer/store"
)

var ErrNotCached = errors.New("dataset not cached")

const (
	GenePrefix       = "hgnc:"
	PopulationPrefix = "wpp:"

	hgncLastModifiedKey = "meta:hgnc:last-modified"
	hgncFieldsKey       = "meta:hgnc:fields"
	wppLastModifiedKey  = "meta:wpp:last-modified"
)

// Cache reads the dataset namespace. Loaders fill it.
type Cache struct {
	store  store.Store
	logger *zap.Logger
}

func NewCache(s store.Store, logger *zap.Logger) *Cache {
	return &Cache{store: s, logger: logger}
}

// ReadPartition returns one raw cached record.
func (c *Cache) ReadPartition(ctx context.Context, key string) ([]byte, error) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotCached, key)
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// ListPartitionKeys returns cached keys under prefix, sorted.
func (c *Cache) ListPartitionKeys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := c.store.Keys(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (c *Cache) GeneIDs(ctx context.Context) ([]string, error) {
	keys, err := c.ListPartitionKeys(ctx, GenePrefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(keys))
	for i, k := range keys {
		ids[i] = strings.TrimPrefix(k, GenePrefix)
	}
	return ids, nil
}

// Genes returns every cached HGNC record as decoded JSON. Records that do
// not decode are skipped.
func (c *Cache) Genes(ctx context.Context) ([]map[string]any, error) {
	keys, err := c.ListPartitionKeys(ctx, GenePrefix)
	if err != nil {
		return nil, err
	}
	genes := make([]map[string]any, 0, len(keys))
	skipped := 0
	for _, k := range keys {
		data, err := c.ReadPartition(ctx, k)
		if err != nil {
			if errors.Is(err, ErrNotCached) {
				continue
			}
			return nil, err
		}
		var gene map[string]any
		if err := json.Unmarshal(data, &gene); err != nil {
			c.logger.Debug("Skipping undecodable gene record", zap.String("key", k), zap.Error(err))
			skipped++
			continue
		}
		genes = append(genes, gene)
	}
	if skipped > 0 {
		c.logger.Warn("Skipped undecodable gene records",
			zap.Int("skipped", skipped),
			zap.Int("total", len(keys)),
		)
	}
	return genes, nil
}

// Gene returns one record flattened for display: list values are joined
// with ", " and fields present on other records are padded with "".
func (c *Cache) Gene(ctx context.Context, id string) (map[string]any, error) {
	data, err := c.ReadPartition(ctx, GenePrefix+id)
	if err != nil {
		return nil, err
	}
	var gene map[string]any
	if err := json.Unmarshal(data, &gene); err != nil {
		return nil, fmt.Errorf("decode gene %s: %w", id, err)
	}
	for k, v := range gene {
		if list, ok := v.([]any); ok {
			parts := make([]string, len(list))
			for i, item := range list {
				parts[i] = fmt.Sprint(item)
			}
			gene[k] = strings.Join(parts, ", ")
		}
	}

	fields, err := c.geneFields(ctx)
	if err != nil {
		return nil, err
	}
	for _, f := range fields {
		if _, ok := gene[f]; !ok {
			gene[f] = ""
		}
	}
	return gene, nil
}

func (c *Cache) geneFields(ctx context.Context) ([]string, error) {
	data, err := c.store.Get(ctx, hgncFieldsKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("read gene fields: %w", err)
	}
	var fields []string
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decode gene fields: %w", err)
	}
	return fields, nil
}

// PopulationYears lists cached WPP years in ascending order.
func (c *Cache) PopulationYears(ctx context.Context) ([]int, error) {
	keys, err := c.store.Keys(ctx, PopulationPrefix)
	if err != nil {
		return nil, fmt.Errorf("list population years: %w", err)
	}
	years := make([]int, 0, len(keys))
	for _, k := range keys {
		y, err := strconv.Atoi(strings.TrimPrefix(k, PopulationPrefix))
		if err != nil {
			continue
		}
		years = append(years, y)
	}
	sort.Ints(years)
	return years, nil
}

func (c *Cache) PopulationYear(ctx context.Context, year int) ([]PopulationRow, error) {
	data, err := c.ReadPartition(ctx, populationKey(year))
	if err != nil {
		return nil, err
	}
	var rows []PopulationRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode population %d: %w", year, err)
	}
	return rows, nil
}

// Clear removes every cached record and returns how many were deleted.
func (c *Cache) Clear(ctx context.Context) (int, error) {
	keys, err := c.store.Keys(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("clear dataset: %w", err)
	}
	if err := c.store.Delete(ctx, keys...); err != nil {
		return 0, fmt.Errorf("clear dataset: %w", err)
	}
	return len(keys), nil
}

func (c *Cache) lastModified(ctx context.Context, key string) (string, error) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return string(data), nil
}

// replace swaps every record under prefix for records in one pass.
func (c *Cache) replace(ctx context.Context, prefix string, records map[string][]byte) error {
	old, err := c.store.Keys(ctx, prefix)
	if err != nil {
		return fmt.Errorf("list %s: %w", prefix, err)
	}
	var stale []string
	for _, k := range old {
		if _, ok := records[k]; !ok {
			stale = append(stale, k)
		}
	}
	if err := c.store.Delete(ctx, stale...); err != nil {
		return fmt.Errorf("delete stale %s: %w", prefix, err)
	}
	for k, v := range records {
		if err := c.store.Set(ctx, k, v); err != nil {
			return fmt.Errorf("write %s: %w", k, err)
		}
	}
	return nil
}

func populationKey(year int) string {
	return PopulationPrefix + strconv.Itoa(year)
}

// RefreshResult describes one loader run.
type RefreshResult struct {
	Refreshed    bool   `json:"refreshed"`
	Records      int    `json:"records"`
	LastModified string `json:"last_modified,omitempty"`
}
