package dataset

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

const DefaultWPPURL = "https://population.un.org/wpp/assets/Excel%20Files/1_Indicator%20(Standard)/CSV_FILES/WPP2024_Demographic_Indicators_Medium.csv.gz"

// A cache whose newest year is older than this many years is reloaded even
// when upstream reports no change.
const wppStaleYears = 2

// PopulationRow is one location in one year with its numeric indicators.
type PopulationRow struct {
	Location string             `json:"location"`
	LocType  string             `json:"loc_type,omitempty"`
	Year     int                `json:"year"`
	Values   map[string]float64 `json:"values"`
}

func (r PopulationRow) Value(column string) (float64, bool) {
	v, ok := r.Values[column]
	return v, ok
}

// WPPLoader refreshes the UN World Population Prospects indicators.
type WPPLoader struct {
	cache  *Cache
	client *http.Client
	url    string
	now    func() time.Time
	logger *zap.Logger
}

func NewWPPLoader(cache *Cache, client *http.Client, url string, logger *zap.Logger) *WPPLoader {
	if client == nil {
		client = http.DefaultClient
	}
	if url == "" {
		url = DefaultWPPURL
	}
	return &WPPLoader{cache: cache, client: client, url: url, now: time.Now, logger: logger}
}

func (l *WPPLoader) Refresh(ctx context.Context) (*RefreshResult, error) {
	cached, err := l.cache.lastModified(ctx, wppLastModifiedKey)
	if err != nil {
		return nil, err
	}
	years, err := l.cache.PopulationYears(ctx)
	if err != nil {
		return nil, err
	}
	stale := len(years) == 0 || years[len(years)-1] < l.now().Year()-wppStaleYears

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build wpp request: %w", err)
	}
	if cached != "" && !stale {
		req.Header.Set("If-Modified-Since", cached)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch wpp: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return &RefreshResult{Records: len(years), LastModified: cached}, nil
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetch wpp: unexpected status %d", resp.StatusCode)
	}

	upstream := resp.Header.Get("Last-Modified")
	if !stale && upstream != "" && upstream == cached {
		return &RefreshResult{Records: len(years), LastModified: cached}, nil
	}

	byYear, err := parseWPP(resp.Body)
	if err != nil {
		return nil, err
	}

	records := make(map[string][]byte, len(byYear))
	for year, rows := range byYear {
		data, err := json.Marshal(rows)
		if err != nil {
			return nil, fmt.Errorf("encode population %d: %w", year, err)
		}
		records[populationKey(year)] = data
	}
	if err := l.cache.replace(ctx, PopulationPrefix, records); err != nil {
		return nil, err
	}
	if err := l.cache.store.Set(ctx, wppLastModifiedKey, []byte(upstream)); err != nil {
		return nil, fmt.Errorf("write wpp last-modified: %w", err)
	}

	l.logger.Info("wpp cache refreshed",
		zap.Int("years", len(records)),
		zap.String("last_modified", upstream),
	)
	return &RefreshResult{Refreshed: true, Records: len(records), LastModified: upstream}, nil
}

// parseWPP reads a plain or gzip-compressed indicators CSV and groups its
// rows by year.
func parseWPP(r io.Reader) (map[int][]PopulationRow, error) {
	br := bufio.NewReader(r)
	var src io.Reader = br
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open wpp gzip: %w", err)
		}
		defer gz.Close()
		src = gz
	}

	cr := csv.NewReader(src)
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read wpp header: %w", err)
	}
	header = append([]string(nil), header...)
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	locIdx, ok1 := col["Location"]
	timeIdx, ok2 := col["Time"]
	if !ok1 || !ok2 {
		return nil, errors.New("wpp csv: missing Location or Time column")
	}
	typeIdx, hasType := col["LocTypeName"]

	byYear := make(map[int][]PopulationRow)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read wpp row: %w", err)
		}
		year, err := strconv.Atoi(rec[timeIdx])
		if err != nil {
			continue
		}
		row := PopulationRow{
			Location: rec[locIdx],
			Year:     year,
			Values:   make(map[string]float64),
		}
		if hasType {
			row.LocType = rec[typeIdx]
		}
		for i, name := range header {
			if i == locIdx || i == timeIdx || rec[i] == "" {
				continue
			}
			if v, err := strconv.ParseFloat(rec[i], 64); err == nil {
				row.Values[name] = v
			}
		}
		byYear[year] = append(byYear[year], row)
	}
	return byYear, nil
}
