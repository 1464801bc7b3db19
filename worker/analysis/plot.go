package analysis

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"math"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"datasetAnalyzer/models"
)

const (
	defaultWidth  = 640
	defaultHeight = 480

	// Plots are drawn at this multiple of the output size and downsampled,
	// which smooths lines and markers.
	supersample = 2

	gifFrameDelay = 50 // hundredths of a second
)

var (
	background = color.NRGBA{255, 255, 255, 255}
	axisColor  = color.NRGBA{40, 40, 40, 255}
	gridColor  = color.NRGBA{225, 225, 225, 255}
	seriesBlue = color.NRGBA{31, 119, 180, 255}
)

// Point is one plotted value.
type Point struct {
	X, Y float64
}

// Renderer draws series onto fixed-size canvases and encodes them.
type Renderer struct {
	width, height int
	logger        *zap.Logger
}

func NewRenderer(logger *zap.Logger) *Renderer {
	return &Renderer{width: defaultWidth, height: defaultHeight, logger: logger}
}

// Series draws pts as a line or bar chart. Bounds are taken from bounds so
// that animation frames share axes.
func (r *Renderer) Series(kind string, pts []Point, bounds Bounds) *image.NRGBA {
	if kind == models.PlotBar {
		bounds.MinX -= 0.5
		bounds.MaxX += 0.5
	}
	c := r.newCanvas(bounds)
	c.grid()
	switch kind {
	case models.PlotBar:
		c.bars(pts, seriesBlue)
	default:
		c.polyline(pts, seriesBlue)
		c.markers(pts, seriesBlue, 3)
	}
	c.axes()
	return r.finish(c)
}

// Scatter draws pts as unconnected markers.
func (r *Renderer) Scatter(pts []Point, bounds Bounds) *image.NRGBA {
	c := r.newCanvas(bounds)
	c.grid()
	c.markers(pts, seriesBlue, 3)
	c.axes()
	return r.finish(c)
}

func (r *Renderer) finish(c *canvas) *image.NRGBA {
	return imaging.Resize(c.img, r.width, r.height, imaging.Lanczos)
}

func (r *Renderer) EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		r.logger.Error("Failed to encode PNG", zap.Error(err))
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeGIF builds a looping animation from frames.
func (r *Renderer) EncodeGIF(frames []*image.NRGBA) ([]byte, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("encode gif: %w", ErrNoData)
	}
	anim := &gif.GIF{}
	for _, f := range frames {
		p := image.NewPaletted(f.Bounds(), palette.Plan9)
		draw.Draw(p, p.Rect, f, f.Bounds().Min, draw.Src)
		anim.Image = append(anim.Image, p)
		anim.Delay = append(anim.Delay, gifFrameDelay)
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		r.logger.Error("Failed to encode GIF", zap.Int("frames", len(frames)), zap.Error(err))
		return nil, fmt.Errorf("encode gif: %w", err)
	}
	return buf.Bytes(), nil
}

// Bounds is the data range mapped onto the plot area.
type Bounds struct {
	MinX, MaxX, MinY, MaxY float64
}

// BoundsOf returns the range covering pts, widened so that no side is
// degenerate. When zeroY is set the y range always includes zero.
func BoundsOf(pts []Point, zeroY bool) Bounds {
	b := Bounds{MinX: math.Inf(1), MaxX: math.Inf(-1), MinY: math.Inf(1), MaxY: math.Inf(-1)}
	for _, p := range pts {
		b.MinX = math.Min(b.MinX, p.X)
		b.MaxX = math.Max(b.MaxX, p.X)
		b.MinY = math.Min(b.MinY, p.Y)
		b.MaxY = math.Max(b.MaxY, p.Y)
	}
	if len(pts) == 0 {
		return Bounds{MinX: 0, MaxX: 1, MinY: 0, MaxY: 1}
	}
	if zeroY {
		b.MinY = math.Min(b.MinY, 0)
		b.MaxY = math.Max(b.MaxY, 0)
	}
	if b.MaxX == b.MinX {
		b.MinX--
		b.MaxX++
	}
	if b.MaxY == b.MinY {
		b.MinY--
		b.MaxY++
	}
	padY := (b.MaxY - b.MinY) * 0.05
	b.MaxY += padY
	if !zeroY || b.MinY < 0 {
		b.MinY -= padY
	}
	return b
}

type canvas struct {
	img                      *image.NRGBA
	left, right, top, bottom int
	bounds                   Bounds
}

func (r *Renderer) newCanvas(b Bounds) *canvas {
	w, h := r.width*supersample, r.height*supersample
	margin := 40 * supersample
	return &canvas{
		img:    imaging.New(w, h, background),
		left:   margin,
		right:  w - margin/2,
		top:    margin / 2,
		bottom: h - margin,
		bounds: b,
	}
}

func (c *canvas) px(p Point) (int, int) {
	fx := (p.X - c.bounds.MinX) / (c.bounds.MaxX - c.bounds.MinX)
	fy := (p.Y - c.bounds.MinY) / (c.bounds.MaxY - c.bounds.MinY)
	x := c.left + int(fx*float64(c.right-c.left))
	y := c.bottom - int(fy*float64(c.bottom-c.top))
	return x, y
}

func (c *canvas) grid() {
	for i := 1; i < 5; i++ {
		y := c.top + i*(c.bottom-c.top)/5
		c.hline(c.left, c.right, y, gridColor)
		x := c.left + i*(c.right-c.left)/5
		c.vline(x, c.top, c.bottom, gridColor)
	}
}

func (c *canvas) axes() {
	for t := 0; t < supersample*2; t++ {
		c.hline(c.left, c.right, c.bottom+t, axisColor)
		c.vline(c.left-t, c.top, c.bottom, axisColor)
	}
}

func (c *canvas) polyline(pts []Point, col color.NRGBA) {
	for i := 1; i < len(pts); i++ {
		x0, y0 := c.px(pts[i-1])
		x1, y1 := c.px(pts[i])
		c.segment(x0, y0, x1, y1, col, supersample*2)
	}
}

func (c *canvas) markers(pts []Point, col color.NRGBA, radius int) {
	r := radius * supersample
	for _, p := range pts {
		x, y := c.px(p)
		c.fillRect(x-r, y-r, x+r, y+r, col)
	}
}

func (c *canvas) bars(pts []Point, col color.NRGBA) {
	if len(pts) == 0 {
		return
	}
	span := c.bounds.MaxX - c.bounds.MinX
	slot := float64(c.right-c.left) / span
	half := int(slot * 0.4)
	if half < 1 {
		half = 1
	}
	_, zero := c.px(Point{Y: math.Max(c.bounds.MinY, 0)})
	for _, p := range pts {
		x, y := c.px(p)
		top, bottom := y, zero
		if top > bottom {
			top, bottom = bottom, top
		}
		c.fillRect(x-half, top, x+half, bottom, col)
	}
}

func (c *canvas) fillRect(x0, y0, x1, y1 int, col color.NRGBA) {
	r := image.Rect(x0, y0, x1+1, y1+1).Intersect(c.img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c.img.SetNRGBA(x, y, col)
		}
	}
}

func (c *canvas) hline(x0, x1, y int, col color.NRGBA) {
	for x := x0; x <= x1; x++ {
		c.img.SetNRGBA(x, y, col)
	}
}

func (c *canvas) vline(x, y0, y1 int, col color.NRGBA) {
	for y := y0; y <= y1; y++ {
		c.img.SetNRGBA(x, y, col)
	}
}

// segment draws a thick line with Bresenham's algorithm.
func (c *canvas) segment(x0, y0, x1, y1 int, col color.NRGBA, thickness int) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	half := thickness / 2
	e := dx + dy
	for {
		for ox := -half; ox <= half; ox++ {
			for oy := -half; oy <= half; oy++ {
				c.img.SetNRGBA(x0+ox, y0+oy, col)
			}
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
