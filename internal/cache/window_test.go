// internal/cache/window_test.go
package cache

import (
	"sync"
	"testing"
)

func mustWindow(t *testing.T, capacity int) *Window[string] {
	t.Helper()
	w, err := New[string](capacity)
	if err != nil {
		t.Fatalf("New(%d) err=%v", capacity, err)
	}
	return w
}

func TestNew_RejectsZeroCapacity(t *testing.T) {
	if _, err := New[int](0); err == nil {
		t.Fatalf("expected error for zero capacity")
	}
}

func TestWindow_EvictsOldest(t *testing.T) {
	w := mustWindow(t, 3)
	for _, r := range []string{"r1", "r2", "r3", "r4", "r5"} {
		w.Push(r)
	}

	got := w.History(0)
	want := []string{"r3", "r4", "r5"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if w.Len() != 3 {
		t.Fatalf("expected len 3, got %d", w.Len())
	}
}

func TestWindow_HistoryLimit(t *testing.T) {
	w := mustWindow(t, 10)
	for _, r := range []string{"a", "b", "c", "d"} {
		w.Push(r)
	}

	got := w.History(2)
	if len(got) != 2 || got[0] != "c" || got[1] != "d" {
		t.Fatalf("expected [c d], got %v", got)
	}

	got = w.History(50)
	if len(got) != 4 || got[0] != "a" {
		t.Fatalf("expected all 4 oldest-first, got %v", got)
	}
}

func TestWindow_LatestEmpty(t *testing.T) {
	w := mustWindow(t, 2)
	if _, ok := w.Latest(); ok {
		t.Fatalf("empty window reported a latest value")
	}
	if h := w.History(0); len(h) != 0 {
		t.Fatalf("empty window returned history %v", h)
	}

	w.Push("x")
	w.Push("y")
	w.Push("z")
	if v, ok := w.Latest(); !ok || v != "z" {
		t.Fatalf("expected latest z, got %q ok=%v", v, ok)
	}
}

func TestWindow_ConcurrentReadersSeeConsistentRuns(t *testing.T) {
	const pushes = 20000

	w, err := New[uint64](16)
	if err != nil {
		t.Fatalf("New err=%v", err)
	}

	var wg sync.WaitGroup
	done := make(chan struct{})

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}

				h := w.History(0)
				if len(h) > w.Cap() {
					t.Errorf("history exceeded capacity: %d", len(h))
					return
				}
				for i := 1; i < len(h); i++ {
					if h[i] != h[i-1]+1 {
						t.Errorf("non-consecutive run: %v", h)
						return
					}
				}
			}
		}()
	}

	for i := uint64(1); i <= pushes; i++ {
		if seq := w.Push(i); seq != i {
			t.Fatalf("Push returned seq %d want %d", seq, i)
		}
	}
	close(done)
	wg.Wait()

	if v, ok := w.Latest(); !ok || v != pushes {
		t.Fatalf("expected latest %d, got %d", pushes, v)
	}
}
