// SPDX-License-Identifier: MIT

package memory

import (
	"testing"
	"time"

	"github.com/zebatus/sxvrs-go/internal/config"
)

func baseConfig() config.MemoryConfig {
	return config.MemoryConfig{
		RememberTime:   60 * time.Second,
		AreaIntersect:  50,
		SizeSimilarity: 20,
		MoveThreshold:  10,
	}
}

func TestAddFirstDetectionIsEligibleAndCreatesCluster(t *testing.T) {
	m := New(baseConfig())
	now := time.Now()

	id, eligible := m.Add("car", [4]int{100, 100, 200, 200}, now)
	if !eligible {
		t.Fatal("first detection of a class should be eligible")
	}
	if id < 0 {
		t.Fatal("expected a valid cluster id")
	}
	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", m.Len())
	}
}

func TestAddSecondNearbyDetectionDeduplicates(t *testing.T) {
	m := New(baseConfig())
	now := time.Now()

	id1, _ := m.Add("car", [4]int{100, 100, 200, 200}, now)
	later := now.Add(3 * time.Second)
	id2, eligible := m.Add("car", [4]int{102, 101, 203, 204}, later)

	if eligible {
		t.Fatal("overlapping box of the same class should be suppressed (matched)")
	}
	if id1 != id2 {
		t.Fatalf("expected same cluster id, got %d and %d", id1, id2)
	}
	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (deduped)", m.Len())
	}
}

func TestAddDistantDetectionCreatesNewCluster(t *testing.T) {
	m := New(baseConfig())
	now := time.Now()

	m.Add("car", [4]int{0, 0, 10, 10}, now)
	id2, eligible := m.Add("car", [4]int{900, 900, 910, 910}, now)

	if !eligible {
		t.Fatal("a far-away box of the same size should not match the existing cluster")
	}
	if id2 < 0 {
		t.Fatal("expected a valid cluster id")
	}
	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", m.Len())
	}
}

func TestAddMatchesAgainstAnyHistoricalBoxNotJustTheLatest(t *testing.T) {
	m := New(baseConfig())
	now := time.Now()

	id1, _ := m.Add("car", [4]int{0, 0, 10, 10}, now)
	// Moves far enough away that it no longer matches the first box.
	id2, eligible2 := m.Add("car", [4]int{900, 900, 910, 910}, now.Add(time.Second))
	if !eligible2 || id1 == id2 {
		t.Fatalf("distant box should start its own cluster, got id1=%d id2=%d eligible2=%v", id1, id2, eligible2)
	}

	// Revisits the first cluster's original position. The most recent
	// history entry (id2's box) doesn't match, but an earlier entry does.
	id3, eligible3 := m.Add("car", [4]int{2, 2, 12, 12}, now.Add(2*time.Second))
	if eligible3 {
		t.Fatal("revisiting an earlier position already covered by a cluster should be suppressed")
	}
	if id3 != id1 {
		t.Fatalf("expected the revisit to fold into the original cluster %d, got %d", id1, id3)
	}
	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (no spurious third cluster)", m.Len())
	}
}

func TestAddNegativeRememberTimeAlwaysEligible(t *testing.T) {
	cfg := baseConfig()
	cfg.RememberTime = -1
	m := New(cfg)
	now := time.Now()

	for i := 0; i < 3; i++ {
		id, eligible := m.Add("car", [4]int{100, 100, 200, 200}, now)
		if !eligible {
			t.Fatal("memory disabled: add must always report eligible")
		}
		if id != -1 {
			t.Fatalf("memory disabled: expected sentinel cluster id -1, got %d", id)
		}
	}
	if m.Len() != 0 {
		t.Fatalf("memory disabled: no clusters should be retained, got %d", m.Len())
	}
}

func TestAddExcludedClassBypassesMemory(t *testing.T) {
	cfg := baseConfig()
	cfg.ObjectsExclude = []string{"bird"}
	m := New(cfg)
	now := time.Now()

	id, eligible := m.Add("bird", [4]int{0, 0, 10, 10}, now)
	if !eligible || id != -1 {
		t.Fatalf("excluded class should bypass memory: got id=%d eligible=%v", id, eligible)
	}
	if m.Len() != 0 {
		t.Fatal("excluded class should not create a cluster")
	}
}

func TestAddWhitelistExcludesUnlistedClass(t *testing.T) {
	cfg := baseConfig()
	cfg.Objects = []string{"person"}
	m := New(cfg)
	now := time.Now()

	id, eligible := m.Add("car", [4]int{0, 0, 10, 10}, now)
	if !eligible || id != -1 {
		t.Fatalf("class outside whitelist should bypass memory: got id=%d eligible=%v", id, eligible)
	}

	id2, eligible2 := m.Add("person", [4]int{0, 0, 10, 10}, now)
	if id2 < 0 || !eligible2 {
		t.Fatalf("whitelisted class should be remembered as a new cluster, got id=%d eligible=%v", id2, eligible2)
	}
}

func TestCleanupExpiresStaleClusters(t *testing.T) {
	m := New(baseConfig())
	now := time.Now()

	m.Add("car", [4]int{0, 0, 10, 10}, now)
	if m.Len() != 1 {
		t.Fatal("expected one cluster")
	}

	later := now.Add(61 * time.Second)
	m.Add("dog", [4]int{500, 500, 600, 600}, later)

	if m.Len() != 1 {
		t.Fatalf("stale 'car' cluster should have expired, Len() = %d", m.Len())
	}
}

func TestTriggeredActionsGateRepeatFire(t *testing.T) {
	m := New(baseConfig())
	now := time.Now()

	id, _ := m.Add("car", [4]int{100, 100, 200, 200}, now)
	if m.HasTriggered(id, "mail") {
		t.Fatal("fresh cluster should not have any triggered actions")
	}
	m.MarkTriggered(id, "mail")
	if !m.HasTriggered(id, "mail") {
		t.Fatal("expected mail to be marked as triggered")
	}
	if m.HasTriggered(id, "copy") {
		t.Fatal("marking one action must not affect another")
	}
}

func TestTriggeredActionsNoOpForBypassedMemory(t *testing.T) {
	cfg := baseConfig()
	cfg.RememberTime = -1
	m := New(cfg)

	m.MarkTriggered(-1, "mail")
	if m.HasTriggered(-1, "mail") {
		t.Fatal("sentinel cluster id -1 must never report as triggered")
	}
}
