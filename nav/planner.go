package nav

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync/atomic"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// PoseSource provides consistent pose snapshots
type PoseSource interface {
	Snapshot() Pose
}

// Planner drives the robot in straight lines to destinations in map
// coordinates.
type Planner struct {
	poses      PoseSource
	act        Actuator
	navigating atomic.Bool
}

// NewPlanner creates a planner reading poses from poses
func NewPlanner(poses PoseSource, act Actuator) *Planner {
	return &Planner{poses: poses, act: act}
}

// IsNavigating reports whether a Travel is in progress
func (p *Planner) IsNavigating() bool {
	return p.navigating.Load()
}

// Heading computes the turn (degrees, clockwise positive, minimal rotation)
// and distance (cm) from pose to target.
func Heading(pose Pose, target orb.Point) (turn, distance float64) {
	from := orb.Point{pose.X, pose.Y}
	bearing := Degrees(math.Atan2(target.X()-from.X(), target.Y()-from.Y()))
	turn = NormalizeTurn(bearing - pose.HeadingDeg())
	distance = planar.Distance(from, target)
	return turn, distance
}

// Travel turns toward (x, y) and drives there. The pose is read once at the
// start of the move.
func (p *Planner) Travel(x, y float64) error {
	pose := p.poses.Snapshot()
	turn, distance := Heading(pose, orb.Point{x, y})

	p.navigating.Store(true)
	defer p.navigating.Store(false)

	log.Printf("[NAV] Travel from (%.1f, %.1f) to (%.1f, %.1f): turn %.1f°, drive %.1f cm",
		pose.X, pose.Y, x, y, turn, distance)

	if err := p.act.Turn(turn); err != nil {
		return fmt.Errorf("turn toward (%.1f, %.1f): %w", x, y, err)
	}
	if err := p.act.DriveForward(distance); err != nil {
		return fmt.Errorf("drive to (%.1f, %.1f): %w", x, y, err)
	}
	return nil
}

// FollowRoute travels to each waypoint in order
func (p *Planner) FollowRoute(ctx context.Context, route orb.LineString) error {
	for i, pt := range route {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.Travel(pt.X(), pt.Y()); err != nil {
			if stopErr := p.act.Stop(); stopErr != nil {
				log.Printf("[NAV] Warning: stop failed: %v", stopErr)
			}
			return fmt.Errorf("waypoint %d: %w", i, err)
		}
	}
	return nil
}

// RouteFromWaypoints converts configured waypoints to a line string
func RouteFromWaypoints(wps []Waypoint) orb.LineString {
	route := make(orb.LineString, len(wps))
	for i, wp := range wps {
		route[i] = orb.Point{wp.X, wp.Y}
	}
	return route
}

// DemoTiles is the tour driven in demo mode when no waypoints are configured.
// Consecutive legs stay on present tiles of the reference map.
var DemoTiles = [][2]int{{0, 1}, {3, 1}, {3, 0}, {3, 1}, {1, 1}, {1, 2}}

// DemoWaypoints converts DemoTiles to tile centers on m, skipping tiles m
// does not have.
func DemoWaypoints(m *Map) []Waypoint {
	var wps []Waypoint
	for _, t := range DemoTiles {
		if !m.Present(t[0], t[1]) {
			continue
		}
		x, y := m.TileCenter(t[0], t[1])
		wps = append(wps, Waypoint{X: x, Y: y})
	}
	return wps
}
