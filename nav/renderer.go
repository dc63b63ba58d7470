package nav

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"

	"github.com/paulmach/orb"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Raster palette
var (
	colorBackground = color.RGBA{255, 255, 255, 255}
	colorFloor      = color.RGBA{235, 235, 225, 255}
	colorAbsent     = color.RGBA{120, 120, 120, 255}
	colorGridLine   = color.RGBA{200, 200, 200, 255}
	colorWall       = color.RGBA{40, 40, 40, 255}
	colorCandidate  = color.RGBA{70, 130, 180, 255}
	colorTrail      = color.RGBA{255, 140, 100, 255}
	colorRobot      = color.RGBA{255, 69, 0, 255}
	colorText       = color.RGBA{0, 0, 0, 255}
)

// RasterRenderer draws the grid and the tracked state into an RGBA image
type RasterRenderer struct {
	Map     *Map
	State   *StateTracker // optional overlay source
	Scale   float64       // pixels per centimeter
	Padding int           // pixels around the grid
}

// NewRasterRenderer creates a raster renderer with default settings
func NewRasterRenderer(m *Map, st *StateTracker) *RasterRenderer {
	return &RasterRenderer{
		Map:     m,
		State:   st,
		Scale:   4.0,
		Padding: 24,
	}
}

// toImage converts map coordinates to pixels; image y grows downward
func (r *RasterRenderer) toImage(p orb.Point) (int, int) {
	minX, _, _, maxY := r.Map.Bounds()
	x := int(math.Round((p[0]-minX)*r.Scale)) + r.Padding
	y := int(math.Round((maxY-p[1])*r.Scale)) + r.Padding
	return x, y
}

// Render produces the image
func (r *RasterRenderer) Render() *image.RGBA {
	minX, minY, maxX, maxY := r.Map.Bounds()
	width := int(math.Ceil((maxX-minX)*r.Scale)) + 2*r.Padding
	height := int(math.Ceil((maxY-minY)*r.Scale)) + 2*r.Padding

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	fillRect(img, img.Bounds(), colorBackground)

	for x := 0; x < GridSize; x++ {
		for y := 0; y < GridSize; y++ {
			b := r.Map.TileBound(x, y)
			x0, y0 := r.toImage(orb.Point{b.Min[0], b.Max[1]})
			x1, y1 := r.toImage(orb.Point{b.Max[0], b.Min[1]})
			c := colorAbsent
			if r.Map.Present(x, y) {
				c = colorFloor
			}
			fillRect(img, image.Rect(x0, y0, x1, y1), c)
			drawLine(img, x0, y0, x1, y0, 1, colorGridLine)
			drawLine(img, x0, y0, x0, y1, 1, colorGridLine)
			drawText(img, x0+3, y0+13, fmt.Sprintf("%d,%d", x, y), colorText)
		}
	}

	for _, seg := range r.Map.WallSegments() {
		x0, y0 := r.toImage(seg[0])
		x1, y1 := r.toImage(seg[1])
		drawLine(img, x0, y0, x1, y1, 3, colorWall)
	}

	if r.State == nil {
		return img
	}

	candidates := r.State.Candidates()
	for _, h := range candidates {
		cx, cy := r.Map.TileCenter(h.X, h.Y)
		dx, dy := h.Orientation.Delta()
		reach := r.Map.TileSize() * 0.3
		x0, y0 := r.toImage(orb.Point{cx, cy})
		x1, y1 := r.toImage(orb.Point{cx + float64(dx)*reach, cy + float64(dy)*reach})
		drawLine(img, x0, y0, x1, y1, 2, colorCandidate)
		drawCircle(img, x1, y1, 3, colorCandidate)
	}

	trail := r.State.Trail()
	for i := 1; i < len(trail); i++ {
		x0, y0 := r.toImage(trail[i-1])
		x1, y1 := r.toImage(trail[i])
		drawLine(img, x0, y0, x1, y1, 1, colorTrail)
	}

	if pose, _, ok := r.State.Pose(); ok {
		px, py := r.toImage(orb.Point{pose.X, pose.Y})
		// Image angle: 0 = East, clockwise; compass heading 0 = North, clockwise
		drawRobotIcon(img, px, py, int(8*r.Scale), pose.HeadingDeg()-90, colorRobot)
	}

	label := fmt.Sprintf("%d candidates", len(candidates))
	if res := r.State.Result(); res != nil {
		label = fmt.Sprintf("start %s after %d observations", res.Start, res.Observations)
	}
	drawText(img, r.Padding, height-6, label, colorText)

	return img
}

// WritePNG encodes the rendered image to w
func (r *RasterRenderer) WritePNG(w io.Writer) error {
	return png.Encode(w, r.Render())
}

// SavePNG renders and saves to a file
func (r *RasterRenderer) SavePNG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return r.WritePNG(f)
}

func fillRect(img *image.RGBA, rect image.Rectangle, c color.RGBA) {
	rect = rect.Canon().Intersect(img.Bounds())
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

// drawCircle draws a filled circle
func drawCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				setPixel(img, cx+dx, cy+dy, c)
			}
		}
	}
}

// drawLine draws a line of the given thickness by stamping squares along it
func drawLine(img *image.RGBA, x0, y0, x1, y1, thickness int, c color.RGBA) {
	steps := int(math.Max(math.Abs(float64(x1-x0)), math.Abs(float64(y1-y0))))
	if steps == 0 {
		steps = 1
	}
	half := thickness / 2
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := x0 + int(math.Round(t*float64(x1-x0)))
		y := y0 + int(math.Round(t*float64(y1-y0)))
		for dy := -half; dy <= thickness-1-half; dy++ {
			for dx := -half; dx <= thickness-1-half; dx++ {
				setPixel(img, x+dx, y+dy, c)
			}
		}
	}
}

func setPixel(img *image.RGBA, x, y int, c color.RGBA) {
	if (image.Point{x, y}).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}

// drawRobotIcon draws the robot body with a wedge pointing along angleDeg
// (image coordinates: 0 = right, 90 = down).
func drawRobotIcon(img *image.RGBA, cx, cy, size int, angleDeg float64, c color.RGBA) {
	radius := float64(size) / 2
	outline := color.RGBA{40, 40, 40, 255}

	drawCircle(img, cx, cy, int(radius)+1, outline)
	drawCircle(img, cx, cy, int(radius), c)

	rad := angleDeg * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	tipX := float64(cx) + radius*1.4*cos
	tipY := float64(cy) + radius*1.4*sin
	drawLine(img, cx, cy, int(math.Round(tipX)), int(math.Round(tipY)), 2, outline)

	// Arrow head
	for _, side := range []float64{-1, 1} {
		bx := tipX - radius*0.5*cos + side*radius*0.35*-sin
		by := tipY - radius*0.5*sin + side*radius*0.35*cos
		drawLine(img, int(math.Round(tipX)), int(math.Round(tipY)), int(math.Round(bx)), int(math.Round(by)), 2, outline)
	}
}

// drawText renders text onto an image at the specified position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
