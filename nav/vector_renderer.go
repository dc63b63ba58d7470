package nav

import (
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/paulmach/orb"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// VectorRenderer draws the grid, the surviving hypotheses, the trail and the
// current pose as vector graphics. Map units are centimeters; Scale converts
// them to canvas millimeters.
type VectorRenderer struct {
	Map        *Map
	State      *StateTracker // optional overlay source
	Scale      float64
	Padding    float64 // in map units
	Resolution canvas.Resolution
	Tolerance  float64 // trail simplification, cm
}

// NewVectorRenderer creates a vector renderer with default settings
func NewVectorRenderer(m *Map, st *StateTracker) *VectorRenderer {
	return &VectorRenderer{
		Map:        m,
		State:      st,
		Scale:      10.0,
		Padding:    10.0,
		Resolution: canvas.DPI(96),
		Tolerance:  0.5,
	}
}

// canvasRenderer is an interface that both svg and rasterizer renderers implement
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

func (r *VectorRenderer) size() (width, height float64) {
	minX, minY, maxX, maxY := r.Map.Bounds()
	width = ((maxX - minX) + 2*r.Padding) * r.Scale
	height = ((maxY - minY) + 2*r.Padding) * r.Scale
	return width, height
}

// RenderToSVG writes the map as an SVG to the provided writer
func (r *VectorRenderer) RenderToSVG(w io.Writer) error {
	width, height := r.size()
	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, width, height)
	return svgRenderer.Close()
}

// RenderToPNG writes the map as a PNG to the provided writer
func (r *VectorRenderer) RenderToPNG(w io.Writer) error {
	width, height := r.size()
	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, width, height)
	return png.Encode(w, rast)
}

var robotColor = color.RGBA{R: 255, G: 69, B: 0, A: 255}

// toCanvas maps a map-frame point to canvas coordinates. Both frames have y up.
func (r *VectorRenderer) toCanvas(p orb.Point) (float64, float64) {
	minX, minY, _, _ := r.Map.Bounds()
	return (p[0] - minX + r.Padding) * r.Scale, (p[1] - minY + r.Padding) * r.Scale
}

func (r *VectorRenderer) linePath(ls orb.LineString) *canvas.Path {
	cp := &canvas.Path{}
	for i, pt := range ls {
		cx, cy := r.toCanvas(pt)
		if i == 0 {
			cp.MoveTo(cx, cy)
		} else {
			cp.LineTo(cx, cy)
		}
	}
	return cp
}

func (r *VectorRenderer) renderToCanvas(renderer canvasRenderer, width, height float64) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	tileSize := r.Map.TileSize() * r.Scale

	// Present tiles light, absent tiles solid grey
	floorStyle := canvas.DefaultStyle
	floorStyle.Fill = canvas.Paint{Color: color.RGBA{R: 235, G: 235, B: 225, A: 255}}
	floorStyle.Stroke = canvas.Paint{Color: color.RGBA{R: 200, G: 200, B: 200, A: 255}}
	floorStyle.StrokeWidth = 0.5 * r.Scale / 10
	absentStyle := canvas.DefaultStyle
	absentStyle.Fill = canvas.Paint{Color: color.RGBA{R: 120, G: 120, B: 120, A: 255}}
	absentStyle.Stroke = canvas.Paint{Color: canvas.Transparent}

	for x := 0; x < GridSize; x++ {
		for y := 0; y < GridSize; y++ {
			b := r.Map.TileBound(x, y)
			cx, cy := r.toCanvas(b.Min)
			style := absentStyle
			if r.Map.Present(x, y) {
				style = floorStyle
			}
			renderer.RenderPath(canvas.Rectangle(tileSize, tileSize).Translate(cx, cy), style, canvas.Identity)
		}
	}

	wallStyle := canvas.DefaultStyle
	wallStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	wallStyle.Stroke = canvas.Paint{Color: color.RGBA{R: 40, G: 40, B: 40, A: 255}}
	wallStyle.StrokeWidth = 1.5 * r.Scale
	for _, seg := range r.Map.WallSegments() {
		renderer.RenderPath(r.linePath(seg), wallStyle, canvas.Identity)
	}

	if r.State == nil {
		return
	}

	// Candidate hypotheses as short ticks from the tile center toward the
	// hypothesised heading
	candStyle := canvas.DefaultStyle
	candStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	candStyle.Stroke = canvas.Paint{Color: color.RGBA{R: 70, G: 130, B: 180, A: 255}}
	candStyle.StrokeWidth = 0.8 * r.Scale
	for _, h := range r.State.Candidates() {
		cx, cy := r.Map.TileCenter(h.X, h.Y)
		dx, dy := h.Orientation.Delta()
		reach := r.Map.TileSize() * 0.35
		tick := orb.LineString{{cx, cy}, {cx + float64(dx)*reach, cy + float64(dy)*reach}}
		renderer.RenderPath(r.linePath(tick), candStyle, canvas.Identity)
	}

	trailStyle := canvas.DefaultStyle
	trailStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	trailStyle.Stroke = canvas.Paint{Color: robotColor}
	trailStyle.StrokeWidth = 0.4 * r.Scale
	trailStyle.Dashes = []float64{1.0 * r.Scale, 0.5 * r.Scale}
	if trail := r.State.SimplifiedTrail(r.Tolerance); len(trail) >= 2 {
		renderer.RenderPath(r.linePath(trail), trailStyle, canvas.Identity)
	}

	pose, _, ok := r.State.Pose()
	if !ok {
		return
	}
	cx, cy := r.toCanvas(orb.Point{pose.X, pose.Y})

	bodyStyle := canvas.DefaultStyle
	bodyStyle.Fill = canvas.Paint{Color: robotColor}
	bodyStyle.Stroke = canvas.Paint{Color: canvas.Black}
	bodyStyle.StrokeWidth = 0.3 * r.Scale
	renderer.RenderPath(canvas.Circle(4.0*r.Scale).Translate(cx, cy), bodyStyle, canvas.Identity)

	// Heading is clockwise from North; canvas y is up
	dirLen := 7.0 * r.Scale
	dirStyle := canvas.DefaultStyle
	dirStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	dirStyle.Stroke = canvas.Paint{Color: canvas.Black}
	dirStyle.StrokeWidth = 0.6 * r.Scale
	dirPath := &canvas.Path{}
	dirPath.MoveTo(cx, cy)
	dirPath.LineTo(cx+dirLen*math.Sin(pose.Heading), cy+dirLen*math.Cos(pose.Heading))
	renderer.RenderPath(dirPath, dirStyle, canvas.Identity)
}
