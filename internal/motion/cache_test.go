package motion

import (
	"testing"
	"time"
)

func TestCacheSeedsInstalledAxes(t *testing.T) {
	c := newStateCache([]string{"X", "Y", "Z"})

	snap := c.snapshot()
	if len(snap) != 3 {
		t.Fatalf("snapshot size = %d, want 3", len(snap))
	}
	for axis, st := range snap {
		if st.Position != 0 || st.Moving || st.ServoEnabled {
			t.Errorf("axis %s not zero-seeded: %+v", axis, st)
		}
		if st.LastUpdated.IsZero() {
			t.Errorf("axis %s missing timestamp", axis)
		}
	}
}

func TestCacheIgnoresUnknownAxes(t *testing.T) {
	c := newStateCache([]string{"X"})

	c.setPositions(map[string]float64{"X": 1.5, "Q": 9.9})
	if _, ok := c.get("Q"); ok {
		t.Error("unknown axis should not enter the cache")
	}
	st, _ := c.get("X")
	if st.Position != 1.5 {
		t.Errorf("X position = %v, want 1.5", st.Position)
	}
}

func TestCacheMarkMoving(t *testing.T) {
	c := newStateCache([]string{"X"})

	c.markMoving("X")
	st, _ := c.get("X")
	if !st.Moving {
		t.Error("markMoving should set the moving flag")
	}

	// An authoritative status read overrides the optimistic flag.
	c.setStatus(map[string]bool{"X": false}, nil)
	st, _ = c.get("X")
	if st.Moving {
		t.Error("authoritative read should clear the moving flag")
	}
}

func TestCacheStatusFreshness(t *testing.T) {
	c := newStateCache([]string{"X"})

	if c.statusFresh(time.Hour) {
		t.Error("status should be stale before any authoritative read")
	}

	c.setStatus(map[string]bool{"X": true}, nil)
	if !c.statusFresh(time.Hour) {
		t.Error("status should be fresh right after a read")
	}
	time.Sleep(2 * time.Millisecond)
	if c.statusFresh(time.Millisecond) {
		t.Error("status should age out past the window")
	}
}

func TestCacheReset(t *testing.T) {
	c := newStateCache([]string{"X"})
	c.setPositions(map[string]float64{"X": 42})
	c.setStatus(map[string]bool{"X": true}, map[string]bool{"X": true})

	c.reset()

	st, _ := c.get("X")
	if st.Position != 0 || st.Moving || st.ServoEnabled {
		t.Errorf("reset left state behind: %+v", st)
	}
	if c.statusFresh(time.Hour) {
		t.Error("reset should clear status freshness")
	}
}

func TestCacheSnapshotIsACopy(t *testing.T) {
	c := newStateCache([]string{"X"})

	snap := c.snapshot()
	snap["X"] = AxisState{Position: 99}

	st, _ := c.get("X")
	if st.Position != 0 {
		t.Error("mutating a snapshot must not touch the cache")
	}
}

func TestQueueFIFO(t *testing.T) {
	var q commandQueue

	q.push(PendingCommand{Axis: "X", Kind: CommandMoveAbsolute, Value: 1})
	q.push(PendingCommand{Axis: "Y", Kind: CommandMoveRelative, Value: 2})
	q.push(PendingCommand{Axis: "X", Kind: CommandMoveAbsolute, Value: 3})

	if q.len() != 3 {
		t.Fatalf("len = %d, want 3", q.len())
	}

	got := q.drain()
	want := []PendingCommand{
		{Axis: "X", Kind: CommandMoveAbsolute, Value: 1},
		{Axis: "Y", Kind: CommandMoveRelative, Value: 2},
		{Axis: "X", Kind: CommandMoveAbsolute, Value: 3},
	}
	if len(got) != len(want) {
		t.Fatalf("drained %d commands, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	if q.len() != 0 {
		t.Error("drain should empty the queue")
	}
	if got := q.drain(); got != nil {
		t.Errorf("second drain = %v, want nil", got)
	}
}
