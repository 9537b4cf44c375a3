// SPDX-License-Identifier: MIT

// Package memory implements Detection Memory: a time-windowed
// de-duplication arena for object detections. Clusters are held in a
// per-camera slice addressed by integer ClusterID — detections reference a
// cluster by that ID rather than a pointer, so the arena serializes (and
// garbage collects) without any cycle-aware bookkeeping.
package memory

import (
	"sync"
	"time"

	"github.com/zebatus/sxvrs-go/internal/config"
)

// Cluster is a Memory Object: a class label, the boxes of every detection
// folded into it so far, the set of action kinds already triggered for it,
// and the timestamp it was last refreshed.
type Cluster struct {
	ID        int
	Class     string
	History   [][4]int
	Triggered map[string]bool
	LastSeen  time.Time
}

// Memory is the per-camera Detection Memory arena. All methods are
// serialized by an internal mutex.
type Memory struct {
	mu       sync.Mutex
	cfg      config.MemoryConfig
	clusters []*Cluster
	nextID   int
}

// New constructs a Memory arena for one camera.
func New(cfg config.MemoryConfig) *Memory {
	return &Memory{cfg: cfg}
}

// Add folds one detection (class, box) into the arena at time now. It
// returns the cluster the detection was folded into and whether the
// detection is "eligible" — a genuinely new observation rather than one
// already covered by an existing cluster.
//
// Memory is bypassed — always eligible, no cluster retained — when remember
// time is negative, or the class is excluded, or a non-empty whitelist does
// not name it.
func (m *Memory) Add(class string, box [4]int, now time.Time) (clusterID int, eligible bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.RememberTime < 0 || !m.remembers(class) {
		return -1, true
	}

	m.cleanup(now)

	for _, c := range m.clusters {
		if c.Class != class {
			continue
		}
		for _, h := range c.History {
			if matches(h, box, m.cfg) {
				c.History = append(c.History, box)
				c.LastSeen = now
				return c.ID, false
			}
		}
	}

	m.nextID++
	c := &Cluster{
		ID:        m.nextID,
		Class:     class,
		History:   [][4]int{box},
		Triggered: make(map[string]bool),
		LastSeen:  now,
	}
	m.clusters = append(m.clusters, c)
	return c.ID, true
}

// remembers reports whether class passes the whitelist/blacklist inclusion
// filter. An empty whitelist admits every class not explicitly excluded.
func (m *Memory) remembers(class string) bool {
	for _, excluded := range m.cfg.ObjectsExclude {
		if excluded == class {
			return false
		}
	}
	if len(m.cfg.Objects) == 0 {
		return true
	}
	for _, allowed := range m.cfg.Objects {
		if allowed == class {
			return true
		}
	}
	return false
}

// cleanup drops clusters idle longer than RememberTime. Called on every Add.
func (m *Memory) cleanup(now time.Time) {
	kept := m.clusters[:0]
	for _, c := range m.clusters {
		if now.Sub(c.LastSeen) <= m.cfg.RememberTime {
			kept = append(kept, c)
		}
	}
	m.clusters = kept
}

// HasTriggered reports whether actionName has already fired for clusterID —
// the per-(cluster, action) gate that lets a use_memory=true action fire at
// most once per cluster. A negative clusterID (memory
// bypassed) never counts as triggered.
func (m *Memory) HasTriggered(clusterID int, actionName string) bool {
	if clusterID < 0 {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.clusters {
		if c.ID == clusterID {
			return c.Triggered[actionName]
		}
	}
	return false
}

// MarkTriggered records that actionName fired for clusterID. A negative
// clusterID (memory bypassed) is a no-op.
func (m *Memory) MarkTriggered(clusterID int, actionName string) {
	if clusterID < 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.clusters {
		if c.ID == clusterID {
			c.Triggered[actionName] = true
			return
		}
	}
}

// Len reports the number of live clusters, for diagnostics/tests.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clusters)
}

// matches decides whether candidate is the same physical object as
// existing. It is deliberately permissive: any one of the three predicates
// satisfied counts as a match, rather than requiring all three.
func matches(existing, candidate [4]int, cfg config.MemoryConfig) bool {
	if intersectionRatio(existing, candidate) >= cfg.AreaIntersect/100 {
		return true
	}
	if symmetricSizeChange(existing, candidate) >= cfg.SizeSimilarity {
		return true
	}
	return centerDisplacement(existing, candidate) < cfg.MoveThreshold
}

func boxDims(b [4]int) (width, height, cx, cy float64) {
	width = float64(b[2] - b[0])
	height = float64(b[3] - b[1])
	cx = float64(b[0]+b[2]) / 2
	cy = float64(b[1]+b[3]) / 2
	return
}

// intersectionRatio is intersection-area / area(candidate).
func intersectionRatio(existing, candidate [4]int) float64 {
	x1 := maxInt(existing[0], candidate[0])
	y1 := maxInt(existing[1], candidate[1])
	x2 := minInt(existing[2], candidate[2])
	y2 := minInt(existing[3], candidate[3])

	iw := x2 - x1
	ih := y2 - y1
	if iw <= 0 || ih <= 0 {
		return 0
	}

	cw, ch, _, _ := boxDims(candidate)
	candidateArea := cw * ch
	if candidateArea <= 0 {
		return 0
	}
	return float64(iw*ih) / candidateArea
}

// symmetricSizeChange averages the relative width and height change between
// the two boxes, as a percentage.
func symmetricSizeChange(existing, candidate [4]int) float64 {
	ew, eh, _, _ := boxDims(existing)
	cw, ch, _, _ := boxDims(candidate)

	widthChange := relativeChange(ew, cw)
	heightChange := relativeChange(eh, ch)
	return (widthChange + heightChange) / 2 * 100
}

func relativeChange(a, b float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if m == 0 {
		return 0
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff / m
}

// centerDisplacement is the max of |Δx|,|Δy| between box centers, in pixels.
func centerDisplacement(existing, candidate [4]int) float64 {
	_, _, ecx, ecy := boxDims(existing)
	_, _, ccx, ccy := boxDims(candidate)

	dx := ecx - ccx
	if dx < 0 {
		dx = -dx
	}
	dy := ecy - ccy
	if dy < 0 {
		dy = -dy
	}
	if dx > dy {
		return dx
	}
	return dy
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
