// Package export renders stored motions for viewing outside the terminal.
package export

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/san-kum/dynodom/internal/pose"
	"github.com/san-kum/dynodom/internal/storage"
)

const (
	EstimateColor = "#00d7af"
	TruthColor    = "#ff87ff"
	TargetColor   = "#ffd700"
)

// frame maps field inches to SVG pixels with +Y up and equal scale on both
// axes.
type frame struct {
	minX, minY, maxY float64
	scale            float64
	width, height    int
}

func newFrame(ps []pose.Pose, width, height int) frame {
	minX, maxX := ps[0].X, ps[0].X
	minY, maxY := ps[0].Y, ps[0].Y
	for _, p := range ps {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}

	// Add padding
	rangeX := math.Max(maxX-minX, 1)
	rangeY := math.Max(maxY-minY, 1)
	pad := 0.1 * math.Max(rangeX, rangeY)
	minX, maxX = minX-pad, maxX+pad
	minY, maxY = minY-pad, maxY+pad

	scale := math.Min(float64(width)/(maxX-minX), float64(height)/(maxY-minY))
	return frame{minX: minX, minY: minY, maxY: maxY, scale: scale, width: width, height: height}
}

func (f frame) point(x, y float64) (float64, float64) {
	return (x - f.minX) * f.scale, (f.maxY - y) * f.scale
}

func (f frame) path(w io.Writer, ps []pose.Pose, color string) {
	fmt.Fprintf(w, `<path fill="none" stroke="%s" stroke-width="1.5" d="`, color)
	for i, p := range ps {
		x, y := f.point(p.X, p.Y)
		if i == 0 {
			fmt.Fprintf(w, "M%.1f,%.1f", x, y)
		} else {
			fmt.Fprintf(w, " L%.1f,%.1f", x, y)
		}
	}
	fmt.Fprint(w, "\"/>\n")
}

// heading draws an arrow along a compass heading in radians.
func (f frame) heading(w io.Writer, p pose.Pose, length float64, color string) {
	x0, y0 := f.point(p.X, p.Y)
	sin, cos := math.Sincos(p.Theta)
	x1, y1 := f.point(p.X+length*sin, p.Y+length*cos)
	fmt.Fprintf(w, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="%s" stroke-width="2"/>`+"\n", x0, y0, x1, y1, color)
	fmt.Fprintf(w, `<circle cx="%.1f" cy="%.1f" r="3" fill="%s"/>`+"\n", x0, y0, color)
}

// TrajectorySVG draws the estimated and true paths of a stored motion with
// its target and final headings.
func TrajectorySVG(w io.Writer, meta *storage.RunMetadata, samples []storage.Sample, width, height int) error {
	if len(samples) < 2 {
		return errors.New("export: need at least two samples")
	}

	target := meta.Target.Pose()
	estimate := make([]pose.Pose, len(samples))
	truth := make([]pose.Pose, len(samples))
	for i, s := range samples {
		estimate[i], truth[i] = s.Pose, s.Truth
	}
	all := append(append([]pose.Pose{target}, estimate...), truth...)
	f := newFrame(all, width, height)

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height)

	f.path(bw, truth, TruthColor)
	f.path(bw, estimate, EstimateColor)

	tx, ty := f.point(target.X, target.Y)
	fmt.Fprintf(bw, `<circle cx="%.1f" cy="%.1f" r="5" fill="none" stroke="%s" stroke-width="2"/>`+"\n", tx, ty, TargetColor)
	if meta.Kind == "pose" {
		f.heading(bw, target, 4, TargetColor)
	}
	f.heading(bw, truth[len(truth)-1], 4, TruthColor)
	f.heading(bw, estimate[len(estimate)-1], 4, EstimateColor)

	fmt.Fprintf(bw, `<text x="8" y="18" fill="#bcbcbc" font-family="monospace" font-size="12">%s %s %s</text>`+"\n",
		meta.Kind, meta.Result, meta.ID)
	fmt.Fprint(bw, "</svg>\n")
	return bw.Flush()
}
