package tui

import (
	"math"
	"strings"

	"github.com/san-kum/dynodom/internal/pose"
)

// Braille cells are 2x4 dots:
//
//	1 4
//	2 5
//	3 6
//	7 8
var pixelMap = [4][2]int{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

const brailleBlank = 0x2800

// Canvas is a braille grid of Width x Height cells, or (2*Width) x
// (4*Height) dots.
type Canvas struct {
	Width, Height int
	Grid          [][]rune
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{Width: w, Height: h, Grid: make([][]rune, h)}
	for i := range c.Grid {
		c.Grid[i] = make([]rune, w)
	}
	c.Clear()
	return c
}

// Set lights the dot at (x, y), origin top left.
func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}
	col, row := x/2, y/4
	if col >= c.Width || row >= c.Height {
		return
	}
	c.Grid[row][col] |= rune(pixelMap[y%4][x%2])
}

func (c *Canvas) Clear() {
	for i := range c.Grid {
		for j := range c.Grid[i] {
			c.Grid[i][j] = brailleBlank
		}
	}
}

// DrawLine draws a dot line with Bresenham's algorithm.
func (c *Canvas) DrawLine(x0, y0, x1, y1 int) {
	dx, dy := absInt(x1-x0), absInt(y1-y0)
	sx, sy := -1, -1
	if x0 < x1 {
		sx = 1
	}
	if y0 < y1 {
		sy = 1
	}
	err := dx - dy

	for {
		c.Set(x0, y0)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.Grid {
		b.WriteString(string(row))
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Field maps field coordinates in inches onto a canvas, +Y up.
type Field struct {
	*Canvas
	MinX, MinY, MaxX, MaxY float64
}

func NewField(w, h int, minX, minY, maxX, maxY float64) *Field {
	return &Field{Canvas: NewCanvas(w, h), MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}
}

// Fit grows the bounds to include every pose with margin around it.
func (f *Field) Fit(margin float64, ps ...pose.Pose) {
	for _, p := range ps {
		f.MinX = math.Min(f.MinX, p.X-margin)
		f.MaxX = math.Max(f.MaxX, p.X+margin)
		f.MinY = math.Min(f.MinY, p.Y-margin)
		f.MaxY = math.Max(f.MaxY, p.Y+margin)
	}
}

func (f *Field) dot(x, y float64) (int, int) {
	w := float64(f.Width*2 - 1)
	h := float64(f.Height*4 - 1)
	px := (x - f.MinX) / (f.MaxX - f.MinX) * w
	py := (f.MaxY - y) / (f.MaxY - f.MinY) * h
	return int(math.Round(px)), int(math.Round(py))
}

func (f *Field) Plot(x, y float64) {
	f.Set(f.dot(x, y))
}

func (f *Field) Path(ps []pose.Pose) {
	for i := 1; i < len(ps); i++ {
		x0, y0 := f.dot(ps[i-1].X, ps[i-1].Y)
		x1, y1 := f.dot(ps[i].X, ps[i].Y)
		f.DrawLine(x0, y0, x1, y1)
	}
	if len(ps) == 1 {
		f.Plot(ps[0].X, ps[0].Y)
	}
}

// Robot draws a heading arrow of length size at p, theta in radians on the
// compass frame.
func (f *Field) Robot(p pose.Pose, size float64) {
	sin, cos := math.Sincos(p.Theta)
	tipX, tipY := p.X+size*sin, p.Y+size*cos
	x0, y0 := f.dot(p.X, p.Y)
	x1, y1 := f.dot(tipX, tipY)
	f.DrawLine(x0, y0, x1, y1)

	for _, a := range []float64{p.Theta + 2.5, p.Theta - 2.5} {
		s, c := math.Sincos(a)
		bx, by := f.dot(tipX+size*0.4*s, tipY+size*0.4*c)
		f.DrawLine(x1, y1, bx, by)
	}
}

// Target draws a small cross.
func (f *Field) Target(x, y, size float64) {
	a0, b0 := f.dot(x-size, y-size)
	a1, b1 := f.dot(x+size, y+size)
	f.DrawLine(a0, b0, a1, b1)
	a0, b0 = f.dot(x-size, y+size)
	a1, b1 = f.dot(x+size, y-size)
	f.DrawLine(a0, b0, a1, b1)
}
