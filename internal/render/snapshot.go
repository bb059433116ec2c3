// Package render draws the clustering canvas server-side.
package render

import (
	"fmt"
	"io"

	"lasso-go/internal/lasso"

	"github.com/gogpu/gg"
)

const (
	pointRadius = 5
	lineWidth   = 5
)

// Canvas is everything visible on the drawing surface at one moment.
type Canvas struct {
	Width   int
	Height  int
	Points  []lasso.Point
	Covered []bool
	Strokes [][]lasso.Sample
	// Pending is the stroke currently being drawn, left open.
	Pending []lasso.Sample
}

// FromTrial captures the canvas of a trial's current attempt.
func FromTrial(t *lasso.Trial) Canvas {
	surface := t.Surface()
	c := Canvas{
		Width:  surface.Width,
		Height: surface.Height,
		Points: t.Stimulus().Points,
	}

	policy := t.Policy()
	if policy == nil {
		c.Covered = make([]bool, len(c.Points))
		return c
	}
	for _, r := range policy.Regions() {
		c.Strokes = append(c.Strokes, r.Samples())
	}
	c.Covered = policy.Coverage()
	c.Pending = policy.Pending()
	return c
}

// PNG renders the canvas: points in black, covered points in blue, strokes
// closed back to their first sample.
func PNG(w io.Writer, c Canvas) error {
	dc := gg.NewContext(c.Width, c.Height)
	defer dc.Close()

	dc.ClearWithColor(gg.White)

	for i, p := range c.Points {
		if i < len(c.Covered) && c.Covered[i] {
			dc.SetHexColor("#0000FF")
		} else {
			dc.SetRGB(0, 0, 0)
		}
		dc.DrawCircle(p.X, p.Y, pointRadius)
		if err := dc.Fill(); err != nil {
			return fmt.Errorf("failed to draw point %d: %w", i, err)
		}
	}

	dc.SetRGB(0, 0, 0)
	dc.SetLineWidth(lineWidth)
	for i, stroke := range c.Strokes {
		if err := drawStroke(dc, stroke, true); err != nil {
			return fmt.Errorf("failed to draw stroke %d: %w", i, err)
		}
	}
	if err := drawStroke(dc, c.Pending, false); err != nil {
		return fmt.Errorf("failed to draw pending stroke: %w", err)
	}

	return dc.EncodePNG(w)
}

func drawStroke(dc *gg.Context, samples []lasso.Sample, closed bool) error {
	if len(samples) < 2 {
		return nil
	}
	dc.MoveTo(samples[0].X, samples[0].Y)
	for _, s := range samples[1:] {
		dc.LineTo(s.X, s.Y)
	}
	if closed {
		dc.ClosePath()
	}
	return dc.Stroke()
}
