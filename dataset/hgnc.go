package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"go.uber.org/zap"
)

const DefaultHGNCURL = "https://storage.googleapis.com/public-download-files/hgnc/json/json/hgnc_complete_set.json"

// HGNCLoader refreshes the gene records from the HGNC complete set.
type HGNCLoader struct {
	cache  *Cache
	client *http.Client
	url    string
	logger *zap.Logger
}

func NewHGNCLoader(cache *Cache, client *http.Client, url string, logger *zap.Logger) *HGNCLoader {
	if client == nil {
		client = http.DefaultClient
	}
	if url == "" {
		url = DefaultHGNCURL
	}
	return &HGNCLoader{cache: cache, client: client, url: url, logger: logger}
}

type hgncPayload struct {
	Response struct {
		Docs []json.RawMessage `json:"docs"`
	} `json:"response"`
}

// Refresh replaces the cached genes when the cache is empty or the
// upstream Last-Modified header changed.
func (l *HGNCLoader) Refresh(ctx context.Context) (*RefreshResult, error) {
	upstream, err := headLastModified(ctx, l.client, l.url)
	if err != nil {
		return nil, err
	}
	cached, err := l.cache.lastModified(ctx, hgncLastModifiedKey)
	if err != nil {
		return nil, err
	}
	ids, err := l.cache.GeneIDs(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 && upstream != "" && upstream == cached {
		l.logger.Debug("hgnc cache up to date", zap.String("last_modified", cached))
		return &RefreshResult{Records: len(ids), LastModified: cached}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build hgnc request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch hgnc: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch hgnc: unexpected status %d", resp.StatusCode)
	}

	var payload hgncPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode hgnc: %w", err)
	}

	records := make(map[string][]byte, len(payload.Response.Docs))
	fieldSet := make(map[string]struct{})
	for _, doc := range payload.Response.Docs {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(doc, &fields); err != nil {
			return nil, fmt.Errorf("decode hgnc doc: %w", err)
		}
		var id string
		if err := json.Unmarshal(fields["hgnc_id"], &id); err != nil || id == "" {
			l.logger.Warn("skipping hgnc doc without hgnc_id")
			continue
		}
		for f := range fields {
			fieldSet[f] = struct{}{}
		}
		records[GenePrefix+id] = doc
	}

	if err := l.cache.replace(ctx, GenePrefix, records); err != nil {
		return nil, err
	}

	fields := make([]string, 0, len(fieldSet))
	for f := range fieldSet {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	fieldsJSON, _ := json.Marshal(fields)
	if err := l.cache.store.Set(ctx, hgncFieldsKey, fieldsJSON); err != nil {
		return nil, fmt.Errorf("write gene fields: %w", err)
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		upstream = lm
	}
	if err := l.cache.store.Set(ctx, hgncLastModifiedKey, []byte(upstream)); err != nil {
		return nil, fmt.Errorf("write hgnc last-modified: %w", err)
	}

	l.logger.Info("hgnc cache refreshed",
		zap.Int("records", len(records)),
		zap.String("last_modified", upstream),
	)
	return &RefreshResult{Refreshed: true, Records: len(records), LastModified: upstream}, nil
}

func headLastModified(ctx context.Context, client *http.Client, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return "", fmt.Errorf("build head request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("head %s: %w", url, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("head %s: unexpected status %d", url, resp.StatusCode)
	}
	return resp.Header.Get("Last-Modified"), nil
}
