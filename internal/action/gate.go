// SPDX-License-Identifier: MIT

package action

import (
	"github.com/zebatus/sxvrs-go/internal/config"
	"github.com/zebatus/sxvrs-go/internal/memory"
)

// gate implements the per-action gating predicate: the
// report must be "ok" with at least one detection, and it returns the
// subset of objects that individually pass the class/blacklist/score/
// polygon/use_memory checks. An action with no surviving objects is
// skipped entirely by the caller.
func gate(cfg config.ActionConfig, outcome string, objects []Object, mem *memory.Memory, actionName string) []Object {
	if outcome != "ok" || len(objects) == 0 {
		return nil
	}

	var matched []Object
	for _, o := range objects {
		if !classAllowed(cfg, o.Detection.Class) {
			continue
		}
		if o.Detection.Score < cfg.ScoreMin {
			continue
		}
		if len(cfg.Polygon) >= 3 && !boxTouchesPolygon(o.Detection.Box, cfg.Polygon) {
			continue
		}
		if cfg.UseMemory && mem != nil && mem.HasTriggered(o.ClusterID, actionName) {
			continue
		}
		matched = append(matched, o)
	}
	return matched
}

// classAllowed reports whether class passes the whitelist (empty = any)
// and blacklist.
func classAllowed(cfg config.ActionConfig, class string) bool {
	for _, excluded := range cfg.ObjectsExclude {
		if excluded == class {
			return false
		}
	}
	if len(cfg.Objects) == 0 {
		return true
	}
	for _, allowed := range cfg.Objects {
		if allowed == class {
			return true
		}
	}
	return false
}

// boxTouchesPolygon reports whether at least one of the bounding box's four
// corners lies inside polygon. Box is (x1,y1,x2,y2).
func boxTouchesPolygon(box [4]int, polygon [][2]int) bool {
	corners := [4][2]int{
		{box[0], box[1]},
		{box[2], box[3]},
		{box[2], box[1]},
		{box[0], box[3]},
	}
	for _, c := range corners {
		if pointInPolygon(c, polygon) {
			return true
		}
	}
	return false
}

// pointInPolygon is a standard even-odd ray-casting test.
func pointInPolygon(p [2]int, polygon [][2]int) bool {
	x, y := float64(p[0]), float64(p[1])
	inside := false
	n := len(polygon)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := float64(polygon[i][0]), float64(polygon[i][1])
		xj, yj := float64(polygon[j][0]), float64(polygon[j][1])
		intersects := ((yi > y) != (yj > y)) &&
			(x < (xj-xi)*(y-yi)/(yj-yi)+xi)
		if intersects {
			inside = !inside
		}
	}
	return inside
}
