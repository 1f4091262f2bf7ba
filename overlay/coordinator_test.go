package overlay

import (
	"math/rand"
	"sync"
	"testing"
	"time"
)

func TestSetActiveForcesOthersClosed(t *testing.T) {
	c := NewCoordinator()
	c.SetActive(LocalSuggestion)
	if c.Active() != LocalSuggestion {
		t.Fatalf("Active = %v, want local-suggestion", c.Active())
	}
	c.SetActive(SelectionTools)
	if c.Active() != SelectionTools {
		t.Fatalf("Active = %v, want selection-tools", c.Active())
	}
	for _, k := range []Kind{LocalSuggestion, RemoteSuggestion, DictionaryPopup} {
		if c.CanShow(k) {
			t.Errorf("CanShow(%v) = true while selection-tools active", k)
		}
	}
	if !c.CanShow(SelectionTools) {
		t.Error("owner should be allowed to keep showing")
	}
}

func TestMutualExclusionRandomSequence(t *testing.T) {
	c := NewCoordinator()
	kinds := []Kind{None, LocalSuggestion, RemoteSuggestion, SelectionTools, DictionaryPopup}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		k := kinds[rng.Intn(len(kinds))]
		if rng.Intn(3) == 0 {
			c.Release(k)
		} else {
			c.SetActive(k)
		}
		visible := 0
		for _, q := range kinds[1:] {
			if c.Active() == q {
				visible++
			}
		}
		if visible > 1 {
			t.Fatalf("step %d: %d overlays active", i, visible)
		}
	}
}

func TestReleaseRequiresOwnership(t *testing.T) {
	c := NewCoordinator()
	c.SetActive(RemoteSuggestion)

	if c.Release(LocalSuggestion) {
		t.Error("Release by non-owner should be a no-op")
	}
	if c.Active() != RemoteSuggestion {
		t.Errorf("Active = %v, want remote-suggestion", c.Active())
	}
	if !c.Release(RemoteSuggestion) {
		t.Error("Release by owner should clear")
	}
	if c.Active() != None {
		t.Errorf("Active = %v, want none", c.Active())
	}
	if c.Release(None) {
		t.Error("Release(None) should report false")
	}
}

func TestSubscribeOnlyOnChange(t *testing.T) {
	c := NewCoordinator()
	var events [][2]Kind
	cancel := c.Subscribe(func(prev, next Kind) {
		events = append(events, [2]Kind{prev, next})
	})

	c.SetActive(LocalSuggestion)
	c.SetActive(LocalSuggestion)
	c.SetActive(DictionaryPopup)
	c.Release(DictionaryPopup)

	want := [][2]Kind{
		{None, LocalSuggestion},
		{LocalSuggestion, DictionaryPopup},
		{DictionaryPopup, None},
	}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %v, want %v", i, events[i], want[i])
		}
	}

	cancel()
	c.SetActive(SelectionTools)
	if len(events) != len(want) {
		t.Error("listener called after cancel")
	}
}

func TestListenerMaySetActive(t *testing.T) {
	c := NewCoordinator()
	c.Subscribe(func(prev, next Kind) {
		if next == DictionaryPopup {
			c.Release(DictionaryPopup)
		}
	})
	c.SetActive(DictionaryPopup)
	if c.Active() != None {
		t.Errorf("Active = %v, want none", c.Active())
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{None, LocalSuggestion, RemoteSuggestion, SelectionTools, DictionaryPopup} {
		got, err := ParseKind(k.String())
		if err != nil || got != k {
			t.Errorf("ParseKind(%q) = %v, %v", k.String(), got, err)
		}
	}
	if _, err := ParseKind("tooltip"); err == nil {
		t.Error("ParseKind should reject unknown names")
	}
}

func TestConcurrentChangesDeliveredInOrder(t *testing.T) {
	mismatches := 0
	for run := 0; run < 500; run++ {
		c := NewCoordinator()
		var mu sync.Mutex
		var seen []Kind
		c.Subscribe(func(_, _ Kind) {
			time.Sleep(time.Duration(rand.Intn(50)) * time.Microsecond)
		})
		c.Subscribe(func(prev, next Kind) {
			mu.Lock()
			seen = append(seen, prev, next)
			mu.Unlock()
		})

		var wg sync.WaitGroup
		for _, k := range []Kind{RemoteSuggestion, SelectionTools} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.SetActive(k)
			}()
		}
		wg.Wait()

		mu.Lock()
		if len(seen) != 4 || seen[0] != None || seen[1] != seen[2] || seen[3] != c.Active() {
			mismatches++
		}
		mu.Unlock()
	}
	if mismatches > 0 {
		t.Errorf("events out of order with Active in %d of 500 runs", mismatches)
	}
}

func TestChangeFromListenerDeliveredAfterCurrent(t *testing.T) {
	c := NewCoordinator()
	var events [][2]Kind
	c.Subscribe(func(prev, next Kind) {
		if next == SelectionTools {
			c.SetActive(RemoteSuggestion)
		}
	})
	c.Subscribe(func(prev, next Kind) {
		events = append(events, [2]Kind{prev, next})
	})
	c.SetActive(SelectionTools)
	want := [][2]Kind{{None, SelectionTools}, {SelectionTools, RemoteSuggestion}}
	if len(events) != 2 || events[0] != want[0] || events[1] != want[1] {
		t.Fatalf("events = %v, want %v", events, want)
	}
	if c.Active() != RemoteSuggestion {
		t.Errorf("Active = %v", c.Active())
	}
}
