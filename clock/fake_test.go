package clock

import (
	"testing"
	"time"
)

func TestFakeFiresInDeadlineOrder(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	var got []string
	f.AfterFunc(3*time.Second, func() { got = append(got, "c") })
	f.AfterFunc(1*time.Second, func() { got = append(got, "a") })
	f.AfterFunc(2*time.Second, func() { got = append(got, "b") })

	f.Advance(2 * time.Second)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("after 2s fired %v, want [a b]", got)
	}
	f.Advance(time.Second)
	if len(got) != 3 || got[2] != "c" {
		t.Fatalf("after 3s fired %v, want [a b c]", got)
	}
}

func TestFakeStop(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	fired := false
	tm := f.AfterFunc(time.Second, func() { fired = true })
	if !tm.Stop() {
		t.Fatal("Stop on live timer should return true")
	}
	if tm.Stop() {
		t.Error("second Stop should return false")
	}
	f.Advance(time.Minute)
	if fired {
		t.Error("stopped timer fired")
	}
	if f.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", f.Pending())
	}
}

func TestFakeRearmingCallback(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	ticks := 0
	var tick func()
	tick = func() {
		ticks++
		f.AfterFunc(10*time.Second, tick)
	}
	f.AfterFunc(10*time.Second, tick)

	f.Advance(35 * time.Second)
	if ticks != 3 {
		t.Errorf("ticks = %d, want 3", ticks)
	}
	if got := f.Now(); !got.Equal(time.Unix(35, 0)) {
		t.Errorf("Now = %v, want 35s", got)
	}
}
