package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"datasetAnalyzer/dataset"
	"datasetAnalyzer/models"
)

// PopulationPlotter renders WPP indicators for a year range.
type PopulationPlotter struct {
	ds       Dataset
	renderer *Renderer
	logger   *zap.Logger
}

func NewPopulationPlotter(ds Dataset, renderer *Renderer, logger *zap.Logger) *PopulationPlotter {
	return &PopulationPlotter{ds: ds, renderer: renderer, logger: logger}
}

type seriesPoint struct {
	Year  int     `json:"year"`
	Value float64 `json:"value"`
}

func (p *PopulationPlotter) Analyze(ctx context.Context, job *models.Job) (*models.Result, error) {
	startYear, err := yearOf(job.Start)
	if err != nil {
		return nil, err
	}
	endYear, err := yearOf(job.End)
	if err != nil {
		return nil, err
	}

	p.logger.Info("Rendering population plot",
		zap.String("job_id", job.ID),
		zap.String("plot_type", job.PlotType),
		zap.Int("start", startYear),
		zap.Int("end", endYear),
		zap.Bool("animate", job.Animated()),
	)

	switch job.PlotType {
	case models.PlotLine, models.PlotBar:
		return p.series(ctx, job, startYear, endYear)
	case models.PlotScatter:
		return p.scatter(ctx, job, startYear, endYear)
	default:
		return nil, fmt.Errorf("unsupported plot type %q", job.PlotType)
	}
}

// years loads every cached year in [start, end], skipping years that are
// not cached.
func (p *PopulationPlotter) years(ctx context.Context, start, end int) (map[int][]dataset.PopulationRow, error) {
	out := make(map[int][]dataset.PopulationRow)
	for y := start; y <= end; y++ {
		rows, err := p.ds.PopulationYear(ctx, y)
		if err != nil {
			if errors.Is(err, dataset.ErrNotCached) {
				continue
			}
			return nil, err
		}
		out[y] = rows
	}
	return out, nil
}

func (p *PopulationPlotter) series(ctx context.Context, job *models.Job, start, end int) (*models.Result, error) {
	location := job.LocationOrDefault()
	query := job.Query1OrDefault()

	byYear, err := p.years(ctx, start, end)
	if err != nil {
		return nil, err
	}

	var points []Point
	var data []seriesPoint
	for y := start; y <= end; y++ {
		for _, row := range byYear[y] {
			if !strings.EqualFold(row.Location, location) {
				continue
			}
			if v, ok := row.Value(query); ok {
				points = append(points, Point{X: float64(y), Y: v})
				data = append(data, seriesPoint{Year: y, Value: v})
			}
			break
		}
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: %s for %s in %d-%d", ErrNoData, query, location, start, end)
	}

	blob, err := json.Marshal(map[string]any{
		"location": location,
		"query1":   query,
		"series":   data,
	})
	if err != nil {
		return nil, fmt.Errorf("encode series: %w", err)
	}
	result := &models.Result{Data: blob}

	bounds := BoundsOf(points, job.PlotType == models.PlotBar)
	if job.Animated() {
		frames := make([]*image.NRGBA, len(points))
		for i := range points {
			frames[i] = p.renderer.Series(job.PlotType, points[:i+1], bounds)
		}
		if result.Animation, err = p.renderer.EncodeGIF(frames); err != nil {
			return nil, err
		}
		return result, nil
	}

	img := p.renderer.Series(job.PlotType, points, bounds)
	if result.Image, err = p.renderer.EncodePNG(img); err != nil {
		return nil, err
	}
	return result, nil
}

func (p *PopulationPlotter) scatter(ctx context.Context, job *models.Job, start, end int) (*models.Result, error) {
	qx, qy := job.Query1OrDefault(), job.Query2OrDefault()

	byYear, err := p.years(ctx, start, end)
	if err != nil {
		return nil, err
	}

	perYear := make(map[int][]Point)
	var all []Point
	var years []int
	for y := start; y <= end; y++ {
		var pts []Point
		for _, row := range byYear[y] {
			x, okX := row.Value(qx)
			v, okY := row.Value(qy)
			if okX && okY {
				pts = append(pts, Point{X: x, Y: v})
			}
		}
		if len(pts) == 0 {
			continue
		}
		perYear[y] = pts
		all = append(all, pts...)
		years = append(years, y)
	}
	if len(years) == 0 {
		return nil, fmt.Errorf("%w: %s vs %s in %d-%d", ErrNoData, qx, qy, start, end)
	}

	counts := make(map[string]int, len(years))
	for _, y := range years {
		counts[strconv.Itoa(y)] = len(perYear[y])
	}
	blob, err := json.Marshal(map[string]any{
		"query1": qx,
		"query2": qy,
		"points": counts,
	})
	if err != nil {
		return nil, fmt.Errorf("encode scatter summary: %w", err)
	}
	result := &models.Result{Data: blob}

	bounds := BoundsOf(all, false)
	frames := make([]*image.NRGBA, len(years))
	for i, y := range years {
		frames[i] = p.renderer.Scatter(perYear[y], bounds)
	}

	if job.Animated() {
		if result.Animation, err = p.renderer.EncodeGIF(frames); err != nil {
			return nil, err
		}
		return result, nil
	}

	result.Images = make(map[string][]byte, len(years))
	for i, y := range years {
		png, err := p.renderer.EncodePNG(frames[i])
		if err != nil {
			return nil, err
		}
		result.Images[strconv.Itoa(y)] = png
	}
	return result, nil
}
