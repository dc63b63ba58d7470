package nav

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// TileBound returns the map-frame square covered by tile (x, y)
func (m *Map) TileBound(x, y int) orb.Bound {
	t := m.tileSize
	return orb.Bound{
		Min: orb.Point{float64(x-1) * t, float64(y-1) * t},
		Max: orb.Point{float64(x) * t, float64(y) * t},
	}
}

// WallSegment returns the edge of tile (x, y) facing o as a two-point line
func (m *Map) WallSegment(x, y int, o Orientation) orb.LineString {
	b := m.TileBound(x, y)
	switch o.normalize() {
	case North:
		return orb.LineString{{b.Min[0], b.Max[1]}, {b.Max[0], b.Max[1]}}
	case South:
		return orb.LineString{{b.Min[0], b.Min[1]}, {b.Max[0], b.Min[1]}}
	case East:
		return orb.LineString{{b.Max[0], b.Min[1]}, {b.Max[0], b.Max[1]}}
	default:
		return orb.LineString{{b.Min[0], b.Min[1]}, {b.Min[0], b.Max[1]}}
	}
}

// WallSegments returns every walled edge once, even when both neighbouring
// tiles carry it.
func (m *Map) WallSegments() []orb.LineString {
	seen := make(map[string]bool)
	var out []orb.LineString
	for _, xy := range m.PresentTiles() {
		tile := m.tiles[xy[0]][xy[1]]
		for _, o := range Orientations {
			if !tile.Walls[o] {
				continue
			}
			seg := m.WallSegment(xy[0], xy[1], o)
			key := fmt.Sprintf("%.3f,%.3f-%.3f,%.3f", seg[0][0], seg[0][1], seg[1][0], seg[1][1])
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, seg)
		}
	}
	return out
}

// MapToFeatureCollection exports the grid: one polygon per present tile and
// one line per wall.
func MapToFeatureCollection(m *Map) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, xy := range m.PresentTiles() {
		f := geojson.NewFeature(m.TileBound(xy[0], xy[1]).ToPolygon())
		f.Properties["kind"] = "tile"
		f.Properties["x"] = xy[0]
		f.Properties["y"] = xy[1]
		fc.Append(f)
	}
	for _, seg := range m.WallSegments() {
		f := geojson.NewFeature(seg)
		f.Properties["kind"] = "wall"
		fc.Append(f)
	}
	return fc
}

// StateToFeatureCollection adds the tracked trail, pose and candidates to the
// map export. The trail is simplified with the given tolerance (cm).
func StateToFeatureCollection(m *Map, st *StateTracker, tolerance float64) *geojson.FeatureCollection {
	fc := MapToFeatureCollection(m)
	if st == nil {
		return fc
	}

	if trail := st.SimplifiedTrail(tolerance); len(trail) >= 2 {
		f := geojson.NewFeature(trail)
		f.Properties["kind"] = "trail"
		fc.Append(f)
	}

	for _, h := range st.Candidates() {
		cx, cy := m.TileCenter(h.X, h.Y)
		f := geojson.NewFeature(orb.Point{cx, cy})
		f.Properties["kind"] = "candidate"
		f.Properties["orientation"] = h.Orientation.Cardinal()
		fc.Append(f)
	}

	if pose, _, ok := st.Pose(); ok {
		f := geojson.NewFeature(orb.Point{pose.X, pose.Y})
		f.Properties["kind"] = "pose"
		f.Properties["heading"] = pose.HeadingDeg()
		fc.Append(f)
	}

	if r := st.Result(); r != nil {
		fc.ExtraMembers = geojson.Properties{
			"runId":        r.RunID,
			"start":        r.Start.String(),
			"observations": r.Observations,
		}
	}
	return fc
}
