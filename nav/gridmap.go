package nav

import (
	"fmt"
	"math"
	"strings"
)

// GridSize is the number of tiles along each side of the map
const GridSize = 4

// DefaultTileSize is the side length of a floor tile in centimeters
const DefaultTileSize = 30.46

// ReferenceLayout is the lab map, top row (y=3) first. '#' marks an absent tile.
var ReferenceLayout = []string{
	"#...",
	"..##",
	"....",
	".#..",
}

// Map is the static 4x4 tile grid. It is built once and never mutated, so a
// single *Map may be shared freely between goroutines.
type Map struct {
	tiles    [GridSize][GridSize]Tile // tiles[x][y]
	tileSize float64
}

// ReferenceMap returns the lab map with the default tile size
func ReferenceMap() *Map {
	m, err := NewMapFromLayout(ReferenceLayout, nil, DefaultTileSize)
	if err != nil {
		panic(err)
	}
	return m
}

// NewMapFromLayout builds a map from layout rows (top first). '#' or 'X' is
// an absent tile, '.' is a present tile. An edge is walled when the neighbour
// is absent or beyond the grid; walls adds interior walls on both sides of an
// edge.
func NewMapFromLayout(rows []string, walls []WallSpec, tileSize float64) (*Map, error) {
	if len(rows) != GridSize {
		return nil, fmt.Errorf("map layout must have %d rows, got %d", GridSize, len(rows))
	}
	if tileSize <= 0 {
		return nil, fmt.Errorf("tile size must be positive, got %g", tileSize)
	}

	m := &Map{tileSize: tileSize}
	for i, row := range rows {
		row = strings.TrimSpace(row)
		if len(row) != GridSize {
			return nil, fmt.Errorf("map layout row %d must have %d tiles, got %q", i, GridSize, row)
		}
		y := GridSize - 1 - i
		for x, c := range row {
			switch c {
			case '.', 'o', 'O':
				m.tiles[x][y].Present = true
			case '#', 'X', 'x':
			default:
				return nil, fmt.Errorf("map layout row %d: unknown tile %q", i, c)
			}
		}
	}

	for x := 0; x < GridSize; x++ {
		for y := 0; y < GridSize; y++ {
			if !m.tiles[x][y].Present {
				continue
			}
			for _, o := range Orientations {
				dx, dy := o.Delta()
				m.tiles[x][y].Walls[o] = !m.Present(x+dx, y+dy)
			}
		}
	}

	for i, w := range walls {
		if !m.Present(w.X, w.Y) {
			return nil, fmt.Errorf("wall[%d] at (%d, %d): %w", i, w.X, w.Y, ErrOutOfBounds)
		}
		m.tiles[w.X][w.Y].Walls[w.Side] = true
		dx, dy := w.Side.Delta()
		if m.Present(w.X+dx, w.Y+dy) {
			m.tiles[w.X+dx][w.Y+dy].Walls[Rotate(w.Side, 2)] = true
		}
	}

	return m, nil
}

// TileSize returns the tile side length in centimeters
func (m *Map) TileSize() float64 {
	return m.tileSize
}

// InBounds reports whether (x, y) lies on the grid
func InBounds(x, y int) bool {
	return x >= 0 && x < GridSize && y >= 0 && y < GridSize
}

// Present reports whether (x, y) is on the grid and the tile exists
func (m *Map) Present(x, y int) bool {
	return InBounds(x, y) && m.tiles[x][y].Present
}

// Tile returns the tile at (x, y)
func (m *Map) Tile(x, y int) (Tile, error) {
	if !m.Present(x, y) {
		return Tile{}, fmt.Errorf("tile (%d, %d): %w", x, y, ErrOutOfBounds)
	}
	return m.tiles[x][y], nil
}

// IsWalled reports whether the edge of tile (x, y) facing o is walled
func (m *Map) IsWalled(x, y int, o Orientation) (bool, error) {
	if !m.Present(x, y) {
		return false, fmt.Errorf("tile (%d, %d): %w", x, y, ErrOutOfBounds)
	}
	return m.tiles[x][y].Walls[o.normalize()], nil
}

// PresentTiles returns the coordinates of every present tile, column-major
func (m *Map) PresentTiles() [][2]int {
	var out [][2]int
	for x := 0; x < GridSize; x++ {
		for y := 0; y < GridSize; y++ {
			if m.tiles[x][y].Present {
				out = append(out, [2]int{x, y})
			}
		}
	}
	return out
}

// TileCenter returns the center of tile (x, y) in map coordinates (cm). The
// map frame puts the origin on the far corner of tile (0, 0), so tile (x, y)
// spans [(x-1)*T, x*T] x [(y-1)*T, y*T].
func (m *Map) TileCenter(x, y int) (float64, float64) {
	return (float64(x) - 0.5) * m.tileSize, (float64(y) - 0.5) * m.tileSize
}

// TileAt returns the tile coordinates containing the map point (px, py)
func (m *Map) TileAt(px, py float64) (int, int) {
	return int(math.Floor(px/m.tileSize)) + 1, int(math.Floor(py/m.tileSize)) + 1
}

// Bounds returns the map-frame rectangle covered by the grid
func (m *Map) Bounds() (minX, minY, maxX, maxY float64) {
	return -m.tileSize, -m.tileSize, (GridSize - 1) * m.tileSize, (GridSize - 1) * m.tileSize
}
