// Package chart renders a channel feed as a line-chart PNG and derives a
// fixed-size thumbnail from it. All rendering is done into in-memory buffers
// scoped to the caller, so concurrent requests can never cross-deliver images.
package chart

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strconv"

	gochart "github.com/wcharczuk/go-chart/v2"
	"golang.org/x/image/draw"

	"github.com/ycwu/pulseline/internal/config"
)

// ErrNoData is returned when the series to render is empty.
var ErrNoData = errors.New("no data to render")

// Renderer draws line charts of timestamped sensor values.
type Renderer struct {
	width         int
	height        int
	thumbnailSize int
}

// NewRenderer creates a renderer with the configured dimensions.
func NewRenderer(cfg config.ChartConfig) *Renderer {
	return &Renderer{
		width:         cfg.Width,
		height:        cfg.Height,
		thumbnailSize: cfg.ThumbnailSize,
	}
}

// Render draws a line chart (markers plus connecting stroke) with the given
// timestamp labels on the x-axis (rotated for legibility) and values on the
// y-axis, returning the encoded PNG. Labels and values must have equal length;
// each value must parse as a float. An empty series returns ErrNoData.
func (r *Renderer) Render(labels []string, values []string) ([]byte, error) {
	if len(labels) != len(values) {
		return nil, fmt.Errorf("label/value length mismatch: %d != %d", len(labels), len(values))
	}
	if len(values) == 0 {
		return nil, ErrNoData
	}

	xs := make([]float64, len(values))
	ys := make([]float64, len(values))
	ticks := make([]gochart.Tick, len(values))
	minY, maxY := 0.0, 0.0
	for i, raw := range values {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("non-numeric value %q at index %d: %w", raw, i, err)
		}
		xs[i] = float64(i)
		ys[i] = v
		ticks[i] = gochart.Tick{Value: float64(i), Label: labels[i]}
		if i == 0 || v < minY {
			minY = v
		}
		if i == 0 || v > maxY {
			maxY = v
		}
	}

	graph := gochart.Chart{
		Title:  "Thingspeak",
		Width:  r.width,
		Height: r.height,
		XAxis: gochart.XAxis{
			Name:  "Time",
			Ticks: ticks,
			TickStyle: gochart.Style{
				TextRotationDegrees: 45.0,
			},
		},
		YAxis: gochart.YAxis{
			Name: "BPM",
		},
		Series: []gochart.Series{
			gochart.ContinuousSeries{
				XValues: xs,
				YValues: ys,
				Style: gochart.Style{
					StrokeColor: gochart.ColorRed,
					DotColor:    gochart.ColorRed,
					DotWidth:    4.0,
				},
			},
		},
	}

	// go-chart refuses a zero-delta axis range, which a single reading or a
	// flat series would otherwise produce. Pad the degenerate axis around the
	// data instead of failing.
	if len(values) == 1 {
		graph.XAxis.Range = &gochart.ContinuousRange{Min: -1, Max: 1}
	}
	if minY == maxY {
		graph.YAxis.Range = &gochart.ContinuousRange{Min: minY - 1, Max: maxY + 1}
	}

	var buf bytes.Buffer
	if err := graph.Render(gochart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}
	return buf.Bytes(), nil
}

// Thumbnail decodes a rendered chart PNG and scales it down to the fixed
// square thumbnail size, returning the encoded PNG.
func (r *Renderer) Thumbnail(chartPNG []byte) ([]byte, error) {
	src, err := png.Decode(bytes.NewReader(chartPNG))
	if err != nil {
		return nil, fmt.Errorf("failed to decode chart image: %w", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, r.thumbnailSize, r.thumbnailSize))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
