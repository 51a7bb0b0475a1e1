// Package charts renders series and indicator overlays to chart artifacts
package charts

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/finlens/finlens/internal/common"
	"github.com/finlens/finlens/internal/interfaces"
	"github.com/finlens/finlens/internal/models"
	"github.com/finlens/finlens/internal/storage"
)

// overlayPalette cycles across indicator overlays.
var overlayPalette = []string{
	"f59e0b", // amber-500
	"10b981", // emerald-500
	"8b5cf6", // violet-500
	"ef4444", // red-500
	"06b6d4", // cyan-500
}

// Renderer implements ChartRenderer. Artifacts are content-addressed: the
// hash is a pure function of (series, overlays, style), so an artifact that
// already exists under its hash is reused instead of re-rendered.
type Renderer struct {
	blobs  storage.BlobStore
	logger *common.Logger
}

// NewRenderer creates a renderer publishing into the given charts store.
func NewRenderer(logger *common.Logger, blobs storage.BlobStore) *Renderer {
	return &Renderer{blobs: blobs, logger: logger}
}

// ContentHash derives the artifact hash from the chart inputs.
func ContentHash(series *models.Series, overlays []*models.IndicatorResult, style models.ChartStyle) string {
	st := style.Normalize()

	h := sha256.New()
	fmt.Fprintf(h, "series=%s|%s|%s\n", series.Symbol, series.Granularity, series.Range)
	for _, b := range series.Bars {
		fmt.Fprintf(h, "bar=%d|%.8f|%.8f|%.8f|%.8f|%d\n",
			b.Date.Unix(), b.Open, b.High, b.Low, b.Close, b.Volume)
	}
	for _, o := range overlays {
		fmt.Fprintf(h, "overlay=%s\n", o.Spec.Key())
	}
	fmt.Fprintf(h, "style=%s|%d|%d|%s\n", st.Theme, st.Width, st.Height, st.Title)
	return hex.EncodeToString(h.Sum(nil))
}

// Render produces a PNG chart artifact for the series plus overlays.
// On write failure nothing partial is registered.
func (r *Renderer) Render(ctx context.Context, series *models.Series, overlays []*models.IndicatorResult, style models.ChartStyle) (*models.ChartArtifact, error) {
	if series.Len() < 2 {
		return nil, &models.ParameterError{
			Param: "series",
			Msg:   fmt.Sprintf("need at least 2 bars to chart, got %d", series.Len()),
		}
	}

	hash := ContentHash(series, overlays, style)
	key := hash + ".png"

	overlayNames := make([]string, len(overlays))
	for i, o := range overlays {
		overlayNames[i] = o.Spec.Key()
	}

	// Dedup: identical inputs always address the same stored artifact.
	if meta, err := r.blobs.Metadata(ctx, key); err == nil {
		r.logger.Debug().Str("hash", hash).Msg("Chart artifact already stored")
		return &models.ChartArtifact{
			Hash:      hash,
			Path:      key,
			Symbol:    series.Symbol,
			Overlays:  overlayNames,
			Size:      meta.Size,
			CreatedAt: meta.LastModified,
		}, nil
	}

	png, err := r.renderPNG(series, overlays, style.Normalize())
	if err != nil {
		return nil, err
	}

	if err := r.blobs.Put(ctx, key, png); err != nil {
		return nil, &models.StorageError{Op: "write", Key: key, Err: err}
	}

	r.logger.Debug().
		Str("symbol", series.Symbol).
		Str("hash", hash).
		Int("bytes", len(png)).
		Msg("Chart artifact rendered")

	return &models.ChartArtifact{
		Hash:      hash,
		Path:      key,
		Symbol:    series.Symbol,
		Overlays:  overlayNames,
		Size:      int64(len(png)),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// renderPNG draws the close price line plus one line per overlay.
func (r *Renderer) renderPNG(series *models.Series, overlays []*models.IndicatorResult, style models.ChartStyle) ([]byte, error) {
	xValues := make([]time.Time, series.Len())
	closeY := make([]float64, series.Len())
	for i, b := range series.Bars {
		xValues[i] = b.Date
		closeY[i] = b.Close
	}

	priceSeries := chart.TimeSeries{
		Name: series.Symbol,
		Style: chart.Style{
			StrokeColor: drawing.ColorFromHex("2563eb"), // blue-600
			StrokeWidth: 2.5,
		},
		XValues: xValues,
		YValues: closeY,
	}

	chartSeries := []chart.Series{priceSeries}

	for i, overlay := range overlays {
		// Skip warm-up entries; go-chart cannot plot NaN.
		var xs []time.Time
		var ys []float64
		for j := range overlay.Values {
			if !overlay.Defined(j) {
				continue
			}
			xs = append(xs, series.Bars[j].Date)
			ys = append(ys, overlay.Values[j])
		}
		if len(xs) < 2 {
			continue
		}

		color := overlayPalette[i%len(overlayPalette)]
		chartSeries = append(chartSeries, chart.TimeSeries{
			Name: overlay.Spec.Key(),
			Style: chart.Style{
				StrokeColor:     drawing.ColorFromHex(color),
				StrokeWidth:     1.5,
				StrokeDashArray: []float64{5.0, 3.0},
			},
			XValues: xs,
			YValues: ys,
		})
	}

	title := style.Title
	if title == "" {
		title = fmt.Sprintf("%s %s", series.Symbol, series.Range)
	}

	graph := chart.Chart{
		Title:  title,
		Width:  style.Width,
		Height: style.Height,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			TickPosition: chart.TickPositionBetweenTicks,
			ValueFormatter: func(v interface{}) string {
				if t, ok := v.(float64); ok {
					return chart.TimeFromFloat64(t).Format("Jan 06")
				}
				return ""
			},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.2f", f)
				}
				return ""
			},
		},
		Series: chartSeries,
	}

	if style.Theme == "dark" {
		dark := drawing.ColorFromHex("111827") // gray-900
		light := drawing.ColorFromHex("e5e7eb") // gray-200
		graph.Background.FillColor = dark
		graph.Canvas = chart.Style{FillColor: dark}
		graph.TitleStyle = chart.Style{FontColor: light}
		graph.XAxis.Style = chart.Style{FontColor: light}
		graph.YAxis.Style = chart.Style{FontColor: light}
	}

	graph.Elements = []chart.Renderable{
		chart.LegendLeft(&graph),
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}

	return buf.Bytes(), nil
}

var _ interfaces.ChartRenderer = (*Renderer)(nil)
